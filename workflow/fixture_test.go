package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/databases/memdb"
	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/pursuit"
	"github.com/linesmerrill/case-portal-api/workflow"
)

var (
	citizen      = authority.NewPrincipal("citizen-1", "citizen")
	otherCitizen = authority.NewPrincipal("citizen-2", "citizen")
	trainee      = authority.NewPrincipal("trainee-1", "trainee")
	officer      = authority.NewPrincipal("officer-1", "officer")
	detective    = authority.NewPrincipal("detective-1", "detective")
	sergeant     = authority.NewPrincipal("sergeant-1", "sergeant")
	captain      = authority.NewPrincipal("captain-1", "captain")
	chief        = authority.NewPrincipal("chief-1", "chief")
	judge        = authority.NewPrincipal("judge-1", "judge")
	admin        = authority.NewPrincipal("admin-1", "admin")
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Notify(_ context.Context, ev models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofType(t models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	store      *memdb.Store
	events     *recorder
	deps       *workflow.Deps
	lifecycle  *workflow.CaseLifecycle
	consensus  *workflow.InterrogationConsensus
	settlement *workflow.VerdictSettlement
	board      *workflow.PursuitBoard
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := authority.DefaultMatrix()
	require.NoError(t, err)

	f := &fixture{
		store:  memdb.New(),
		events: &recorder{},
		now:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.deps = &workflow.Deps{
		Authority:      authority.New(m),
		Cases:          f.store,
		Suspects:       f.store,
		Interrogations: f.store,
		Verdicts:       f.store,
		Notifier:       f.events,
		Clock:          func() time.Time { return f.now },
		Backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 10)
		},
	}
	f.lifecycle = workflow.NewCaseLifecycle(f.deps, workflow.DefaultResolutionPolicy())
	f.consensus = workflow.NewInterrogationConsensus(f.deps)
	f.settlement = workflow.NewVerdictSettlement(f.deps)
	f.board = workflow.NewPursuitBoard(f.deps, pursuit.DefaultPolicy())
	return f
}

func approve() workflow.ReviewInput {
	return workflow.ReviewInput{Approved: true, Notes: "ok"}
}

func reject(notes string) workflow.ReviewInput {
	return workflow.ReviewInput{Approved: false, Notes: notes}
}

func (f *fixture) complaint(t *testing.T, level models.CrimeLevel) *models.Case {
	t.Helper()
	c, err := f.lifecycle.FileComplaint(context.Background(), citizen, workflow.ComplaintInput{
		Title:       "Stolen bicycle",
		Description: "Taken from the station rack",
		CrimeLevel:  level,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) sceneReport(t *testing.T, level models.CrimeLevel) *models.Case {
	t.Helper()
	c, err := f.lifecycle.FileSceneReport(context.Background(), officer, workflow.SceneReportInput{
		Title:      "Warehouse fire",
		CrimeLevel: level,
		Scene:      models.SceneReport{Location: "Dock 4", Witnesses: []string{"w1", "w1", "w2"}},
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) addSuspect(t *testing.T, caseID primitive.ObjectID, nationalCode string) *models.Suspect {
	t.Helper()
	s, err := f.lifecycle.AddSuspect(context.Background(), detective, caseID, workflow.SuspectInput{
		FirstName:    "Roy",
		LastName:     "Earle",
		NationalCode: nationalCode,
	})
	require.NoError(t, err)
	return s
}

// solved walks a scene report at level through to SO and returns it with its suspect
func (f *fixture) solved(t *testing.T, level models.CrimeLevel) (*models.Case, *models.Suspect) {
	t.Helper()
	ctx := context.Background()
	c := f.sceneReport(t, level)
	s := f.addSuspect(t, c.ID, "")
	_, err := f.lifecycle.SubmitResolution(ctx, detective, c.ID)
	require.NoError(t, err)
	c, err = f.lifecycle.SergeantReview(ctx, sergeant, c.ID, approve())
	require.NoError(t, err)
	if level.Critical() {
		c, err = f.lifecycle.ChiefReview(ctx, chief, c.ID, approve())
		require.NoError(t, err)
	}
	require.Equal(t, models.StatusSolved, c.Details.Status)
	return c, s
}

func (f *fixture) stored(t *testing.T, id primitive.ObjectID) *models.Case {
	t.Helper()
	c, err := f.store.GetCase(context.Background(), id)
	require.NoError(t, err)
	return c
}

func statuses(c *models.Case) []models.CaseStatus {
	out := make([]models.CaseStatus, 0, len(c.Details.History))
	for _, h := range c.Details.History {
		out = append(out, h.To)
	}
	return out
}

func newAnonymous() authority.Principal {
	return authority.NewPrincipal("")
}
