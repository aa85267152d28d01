package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/models"
)

const interrogationName = "interrogations"

// InterrogationDatabase stores interrogations in the interrogations collection
type InterrogationDatabase struct {
	db DatabaseHelper
}

// NewInterrogationDatabase initializes a new instance of interrogation database with the provided db connection
func NewInterrogationDatabase(db DatabaseHelper) *InterrogationDatabase {
	return &InterrogationDatabase{
		db: db,
	}
}

// GetInterrogation returns the interrogation with id
func (i *InterrogationDatabase) GetInterrogation(ctx context.Context, id primitive.ObjectID) (*models.Interrogation, error) {
	in := &models.Interrogation{}
	if err := findByID(ctx, i.db.Collection(interrogationName), id, in); err != nil {
		return nil, err
	}
	return in, nil
}

// InsertInterrogation stores a new interrogation at version 0
func (i *InterrogationDatabase) InsertInterrogation(ctx context.Context, in *models.Interrogation) error {
	in.Version = 0
	_, err := i.db.Collection(interrogationName).InsertOne(ctx, in)
	return err
}

// SwapInterrogation writes in if the stored version still equals in.Version
func (i *InterrogationDatabase) SwapInterrogation(ctx context.Context, in *models.Interrogation) error {
	if err := swapVersioned(ctx, i.db.Collection(interrogationName), in.ID, in.Version, "interrogation", in.Details); err != nil {
		return err
	}
	in.Version++
	return nil
}
