package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/models"
)

const verdictName = "verdicts"

// VerdictDatabase stores verdicts in the verdicts collection
type VerdictDatabase struct {
	db DatabaseHelper
}

// NewVerdictDatabase initializes a new instance of verdict database with the provided db connection
func NewVerdictDatabase(db DatabaseHelper) *VerdictDatabase {
	return &VerdictDatabase{
		db: db,
	}
}

// GetVerdict returns the verdict with id
func (v *VerdictDatabase) GetVerdict(ctx context.Context, id primitive.ObjectID) (*models.Verdict, error) {
	verdict := &models.Verdict{}
	if err := findByID(ctx, v.db.Collection(verdictName), id, verdict); err != nil {
		return nil, err
	}
	return verdict, nil
}

// InsertVerdict stores a new verdict at version 0
func (v *VerdictDatabase) InsertVerdict(ctx context.Context, verdict *models.Verdict) error {
	verdict.Version = 0
	_, err := v.db.Collection(verdictName).InsertOne(ctx, verdict)
	return err
}

// SwapVerdict writes verdict if the stored version still equals verdict.Version
func (v *VerdictDatabase) SwapVerdict(ctx context.Context, verdict *models.Verdict) error {
	if err := swapVersioned(ctx, v.db.Collection(verdictName), verdict.ID, verdict.Version, "verdict", verdict.Details); err != nil {
		return err
	}
	verdict.Version++
	return nil
}

// CountVerdicts counts verdicts for a suspect on a case
func (v *VerdictDatabase) CountVerdicts(ctx context.Context, caseID, suspectID string) (int64, error) {
	return v.db.Collection(verdictName).CountDocuments(ctx, bson.M{
		"verdict.caseID":    caseID,
		"verdict.suspectID": suspectID,
	})
}
