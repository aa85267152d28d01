package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/workflow"
)

const caseName = "cases"

// CaseDatabase stores cases in the cases collection
type CaseDatabase struct {
	db DatabaseHelper
}

// NewCaseDatabase initializes a new instance of case database with the provided db connection
func NewCaseDatabase(db DatabaseHelper) *CaseDatabase {
	return &CaseDatabase{
		db: db,
	}
}

// GetCase returns the case with id
func (c *CaseDatabase) GetCase(ctx context.Context, id primitive.ObjectID) (*models.Case, error) {
	cs := &models.Case{}
	if err := findByID(ctx, c.db.Collection(caseName), id, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// InsertCase stores a new case at version 0
func (c *CaseDatabase) InsertCase(ctx context.Context, cs *models.Case) error {
	cs.Version = 0
	_, err := c.db.Collection(caseName).InsertOne(ctx, cs)
	return err
}

// SwapCase writes cs if the stored version still equals cs.Version
func (c *CaseDatabase) SwapCase(ctx context.Context, cs *models.Case) error {
	if err := swapVersioned(ctx, c.db.Collection(caseName), cs.ID, cs.Version, "case", cs.Details); err != nil {
		return err
	}
	cs.Version++
	return nil
}

// ListCases returns one page of cases, newest first, and the total matching count
func (c *CaseDatabase) ListCases(ctx context.Context, q workflow.CaseQuery) ([]models.Case, int64, error) {
	filter := bson.M{}
	if q.Status != models.StatusUnknown {
		filter["case.status"] = q.Status
	}
	if q.CreatorID != "" {
		filter["case.creatorID"] = q.CreatorID
	}
	coll := c.db.Collection(caseName)
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := newMongoPaginate(q.Limit, q.Page).getPaginatedOpts()
	opts.SetSort(bson.D{{Key: "case.createdAt", Value: -1}})

	cases := []models.Case{}
	if err := findAll(ctx, coll, filter, &cases, opts); err != nil {
		return nil, 0, err
	}
	return cases, total, nil
}
