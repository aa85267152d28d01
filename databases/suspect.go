package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/models"
)

const suspectName = "suspects"

// SuspectDatabase stores suspects in the suspects collection
type SuspectDatabase struct {
	db DatabaseHelper
}

// NewSuspectDatabase initializes a new instance of suspect database with the provided db connection
func NewSuspectDatabase(db DatabaseHelper) *SuspectDatabase {
	return &SuspectDatabase{
		db: db,
	}
}

// GetSuspect returns the suspect with id
func (s *SuspectDatabase) GetSuspect(ctx context.Context, id primitive.ObjectID) (*models.Suspect, error) {
	suspect := &models.Suspect{}
	if err := findByID(ctx, s.db.Collection(suspectName), id, suspect); err != nil {
		return nil, err
	}
	return suspect, nil
}

// InsertSuspect stores a new suspect at version 0
func (s *SuspectDatabase) InsertSuspect(ctx context.Context, suspect *models.Suspect) error {
	suspect.Version = 0
	_, err := s.db.Collection(suspectName).InsertOne(ctx, suspect)
	return err
}

// SwapSuspect writes suspect if the stored version still equals suspect.Version
func (s *SuspectDatabase) SwapSuspect(ctx context.Context, suspect *models.Suspect) error {
	if err := swapVersioned(ctx, s.db.Collection(suspectName), suspect.ID, suspect.Version, "suspect", suspect.Details); err != nil {
		return err
	}
	suspect.Version++
	return nil
}

// CountSuspectsByCase counts the suspects on a case
func (s *SuspectDatabase) CountSuspectsByCase(ctx context.Context, caseID string) (int64, error) {
	return s.db.Collection(suspectName).CountDocuments(ctx, bson.M{"suspect.caseID": caseID})
}

// ListSuspectsByCase returns every suspect on a case
func (s *SuspectDatabase) ListSuspectsByCase(ctx context.Context, caseID string) ([]models.Suspect, error) {
	suspects := []models.Suspect{}
	err := findAll(ctx, s.db.Collection(suspectName), bson.M{"suspect.caseID": caseID}, &suspects)
	return suspects, err
}

// ListUnarrestedSuspects returns every suspect not yet arrested
func (s *SuspectDatabase) ListUnarrestedSuspects(ctx context.Context) ([]models.Suspect, error) {
	suspects := []models.Suspect{}
	filter := bson.M{"suspect.status": bson.M{"$ne": models.SuspectArrested}}
	err := findAll(ctx, s.db.Collection(suspectName), filter, &suspects)
	return suspects, err
}
