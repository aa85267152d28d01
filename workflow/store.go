package workflow

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/models"
)

// Stores return models.ErrNotFound for a missing document. A Swap writes the entity
// only if the stored version equals the entity's Version, then bumps Version; on a
// mismatch it returns models.ErrVersionConflict and writes nothing.

// Page size bounds for listings
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// CaseQuery filters case listings
type CaseQuery struct {
	Status    models.CaseStatus
	CreatorID string
	Limit     int
	Page      int
}

// Normalized returns q with Limit in 1..MaxPageLimit and Page at least 1
func (q CaseQuery) Normalized() CaseQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return q
}

// CaseStore persists cases
type CaseStore interface {
	GetCase(ctx context.Context, id primitive.ObjectID) (*models.Case, error)
	InsertCase(ctx context.Context, c *models.Case) error
	SwapCase(ctx context.Context, c *models.Case) error
	ListCases(ctx context.Context, q CaseQuery) ([]models.Case, int64, error)
}

// SuspectStore persists suspects
type SuspectStore interface {
	GetSuspect(ctx context.Context, id primitive.ObjectID) (*models.Suspect, error)
	InsertSuspect(ctx context.Context, s *models.Suspect) error
	SwapSuspect(ctx context.Context, s *models.Suspect) error
	CountSuspectsByCase(ctx context.Context, caseID string) (int64, error)
	ListSuspectsByCase(ctx context.Context, caseID string) ([]models.Suspect, error)
	ListUnarrestedSuspects(ctx context.Context) ([]models.Suspect, error)
}

// InterrogationStore persists interrogations
type InterrogationStore interface {
	GetInterrogation(ctx context.Context, id primitive.ObjectID) (*models.Interrogation, error)
	InsertInterrogation(ctx context.Context, i *models.Interrogation) error
	SwapInterrogation(ctx context.Context, i *models.Interrogation) error
}

// VerdictStore persists verdicts
type VerdictStore interface {
	GetVerdict(ctx context.Context, id primitive.ObjectID) (*models.Verdict, error)
	InsertVerdict(ctx context.Context, v *models.Verdict) error
	SwapVerdict(ctx context.Context, v *models.Verdict) error
	CountVerdicts(ctx context.Context, caseID, suspectID string) (int64, error)
}
