package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/case-portal-api/databases/memdb"
	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/workflow"
)

func TestFileComplaint(t *testing.T) {
	f := newFixture(t)
	c := f.complaint(t, models.CrimeLevelTwo)

	assert.Equal(t, models.StatusPendingTrainee, c.Details.Status)
	assert.Equal(t, "citizen-1", c.Details.CreatorID)
	assert.Equal(t, []string{"citizen-1"}, c.Details.Complainants)
	assert.Equal(t, 0, c.Details.SubmissionAttempts)

	evs := f.events.ofType(models.EventCaseStatusChanged)
	require.Len(t, evs, 1)
	assert.Equal(t, c.ID.Hex(), evs[0].EntityID)
	assert.Equal(t, models.StatusPendingTrainee, evs[0].To)
	assert.Equal(t, models.StatusUnknown, evs[0].From)
}

func TestFileComplaintValidatesAndChecksRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.lifecycle.FileComplaint(ctx, trainee, workflow.ComplaintInput{Title: "x", CrimeLevel: 1})
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	_, err = f.lifecycle.FileComplaint(ctx, citizen, workflow.ComplaintInput{Title: " ", CrimeLevel: 1})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.lifecycle.FileComplaint(ctx, citizen, workflow.ComplaintInput{Title: "x", CrimeLevel: 7})
	assert.ErrorIs(t, err, workflow.ErrValidation)
}

func TestFileSceneReportStartsActive(t *testing.T) {
	f := newFixture(t)
	c := f.sceneReport(t, models.CrimeLevelCritical)

	assert.Equal(t, models.StatusActive, c.Details.Status)
	require.NotNil(t, c.Details.SceneReport)
	assert.Equal(t, []string{"w1", "w2"}, c.Details.SceneReport.Witnesses)

	_, err := f.lifecycle.FileSceneReport(context.Background(), citizen, workflow.SceneReportInput{
		Title: "x", Scene: models.SceneReport{Location: "y"},
	})
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
}

func TestNonCriticalCaseSkipsChief(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.complaint(t, models.CrimeLevelOne)

	c, err := f.lifecycle.TraineeReview(ctx, trainee, c.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingOfficer, c.Details.Status)

	c, err = f.lifecycle.OfficerReview(ctx, officer, c.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, c.Details.Status)

	f.addSuspect(t, c.ID, "")
	c, err = f.lifecycle.SubmitResolution(ctx, detective, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingSergeant, c.Details.Status)

	c, err = f.lifecycle.SergeantReview(ctx, sergeant, c.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.StatusSolved, c.Details.Status)
	assert.NotContains(t, statuses(c), models.StatusPendingChief)
	assert.Equal(t, []models.CaseStatus{
		models.StatusPendingTrainee,
		models.StatusPendingOfficer,
		models.StatusActive,
		models.StatusPendingSergeant,
		models.StatusSolved,
	}, statuses(c))
}

func TestCriticalSceneReportGoesThroughChief(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.sceneReport(t, models.CrimeLevelCritical)
	f.addSuspect(t, c.ID, "")

	c, err := f.lifecycle.SubmitResolution(ctx, detective, c.ID)
	require.NoError(t, err)
	c, err = f.lifecycle.SergeantReview(ctx, sergeant, c.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingChief, c.Details.Status)

	c, err = f.lifecycle.ChiefReview(ctx, chief, c.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.StatusSolved, c.Details.Status)
	assert.Equal(t, []models.CaseStatus{
		models.StatusActive,
		models.StatusPendingSergeant,
		models.StatusPendingChief,
		models.StatusSolved,
	}, statuses(c))
}

func TestSergeantRejectionReturnsToActive(t *testing.T) {
	for _, level := range []models.CrimeLevel{0, 1, 2, 3} {
		f := newFixture(t)
		ctx := context.Background()
		c := f.sceneReport(t, level)
		f.addSuspect(t, c.ID, "")
		_, err := f.lifecycle.SubmitResolution(ctx, detective, c.ID)
		require.NoError(t, err)

		c, err = f.lifecycle.SergeantReview(ctx, sergeant, c.ID, reject("need more evidence"))
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, c.Details.Status, "level %d", level)
		assert.Equal(t, "need more evidence", c.Details.ReviewNotes)
	}
}

func TestChiefRejectionReturnsToActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.sceneReport(t, models.CrimeLevelCritical)
	f.addSuspect(t, c.ID, "")
	_, err := f.lifecycle.SubmitResolution(ctx, detective, c.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.SergeantReview(ctx, sergeant, c.ID, approve())
	require.NoError(t, err)

	c, err = f.lifecycle.ChiefReview(ctx, chief, c.ID, reject("weak motive"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, c.Details.Status)
}

func TestWrongStateIsInvalidTransitionWithoutMutation(t *testing.T) {
	f := newFixture(t)
	c := f.complaint(t, models.CrimeLevelTwo)

	_, err := f.lifecycle.OfficerReview(context.Background(), officer, c.ID, approve())
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	stored := f.stored(t, c.ID)
	assert.Equal(t, c.Version, stored.Version)
	assert.Equal(t, models.StatusPendingTrainee, stored.Details.Status)
	assert.Len(t, stored.Details.History, 1)
}

func TestRoleIsCheckedBeforeState(t *testing.T) {
	f := newFixture(t)
	c := f.complaint(t, models.CrimeLevelTwo)

	_, err := f.lifecycle.SergeantReview(context.Background(), citizen, c.ID, approve())
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
}

func TestRoleIsCheckedBeforePayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.complaint(t, models.CrimeLevelTwo)

	_, err := f.lifecycle.TraineeReview(ctx, citizen, c.ID, reject(""))
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	_, err = f.lifecycle.TraineeReview(ctx, trainee, c.ID, reject("incomplete"))
	require.NoError(t, err)
	_, err = f.lifecycle.Resubmit(ctx, otherCitizen, c.ID, workflow.ComplaintInput{CrimeLevel: 9})
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
	_, err = f.lifecycle.Resubmit(ctx, citizen, c.ID, workflow.ComplaintInput{CrimeLevel: 9})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	active := f.sceneReport(t, models.CrimeLevelTwo)
	_, err = f.lifecycle.SubmitResolution(ctx, citizen, active.ID)
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
	assert.Equal(t, models.StatusActive, f.stored(t, active.ID).Details.Status)
}

func TestCaptainMayActAsSergeant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.sceneReport(t, models.CrimeLevelThree)
	f.addSuspect(t, c.ID, "")
	_, err := f.lifecycle.SubmitResolution(ctx, detective, c.ID)
	require.NoError(t, err)

	c, err = f.lifecycle.SergeantReview(ctx, captain, c.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.StatusSolved, c.Details.Status)
}

func TestRejectionNeedsNotes(t *testing.T) {
	f := newFixture(t)
	c := f.complaint(t, models.CrimeLevelTwo)

	_, err := f.lifecycle.TraineeReview(context.Background(), trainee, c.ID, reject(""))
	assert.ErrorIs(t, err, workflow.ErrValidation)
}

func TestTraineeReviewReplacesComplainants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.complaint(t, models.CrimeLevelTwo)

	c, err := f.lifecycle.TraineeReview(ctx, trainee, c.ID, workflow.ReviewInput{
		Approved:              true,
		ConfirmedComplainants: []string{"citizen-1", "citizen-3", "citizen-3", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"citizen-1", "citizen-3"}, c.Details.Complainants)
}

func TestTraineeReviewNilComplainantsKeepsSet(t *testing.T) {
	f := newFixture(t)
	c := f.complaint(t, models.CrimeLevelTwo)

	c, err := f.lifecycle.TraineeReview(context.Background(), trainee, c.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, []string{"citizen-1"}, c.Details.Complainants)
}

func TestTraineeRejectionDoesNotCountAttempts(t *testing.T) {
	f := newFixture(t)
	c := f.complaint(t, models.CrimeLevelTwo)

	c, err := f.lifecycle.TraineeReview(context.Background(), trainee, c.ID, reject("missing date"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsResubmission, c.Details.Status)
	assert.Equal(t, 0, c.Details.SubmissionAttempts)
}

func TestResubmissionCapVoidsCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.complaint(t, models.CrimeLevelTwo)

	c, err := f.lifecycle.TraineeReview(ctx, trainee, c.ID, reject("incomplete"))
	require.NoError(t, err)

	attempts := []int{c.Details.SubmissionAttempts}
	for i := 1; i <= models.MaxSubmissionAttempts; i++ {
		c, err = f.lifecycle.Resubmit(ctx, citizen, c.ID, workflow.ComplaintInput{
			Title:      "Stolen bicycle, corrected",
			CrimeLevel: models.CrimeLevelThree,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPendingTrainee, c.Details.Status)
		assert.Equal(t, i, c.Details.SubmissionAttempts)
		attempts = append(attempts, c.Details.SubmissionAttempts)

		c, err = f.lifecycle.TraineeReview(ctx, trainee, c.ID, reject("still incomplete"))
		require.NoError(t, err)
		attempts = append(attempts, c.Details.SubmissionAttempts)
	}

	c, err = f.lifecycle.Resubmit(ctx, citizen, c.ID, workflow.ComplaintInput{Title: "again", CrimeLevel: 1})
	require.ErrorIs(t, err, workflow.ErrResubmissionLimitExceeded)
	require.NotNil(t, c)
	assert.Equal(t, models.StatusCancelled, c.Details.Status)
	assert.Equal(t, models.MaxSubmissionAttempts, c.Details.SubmissionAttempts)
	assert.Equal(t, "Stolen bicycle, corrected", c.Details.Title)
	attempts = append(attempts, c.Details.SubmissionAttempts)

	for i := 1; i < len(attempts); i++ {
		assert.GreaterOrEqual(t, attempts[i], attempts[i-1])
		assert.LessOrEqual(t, attempts[i], models.MaxSubmissionAttempts)
	}

	stored := f.stored(t, c.ID)
	assert.Equal(t, models.StatusCancelled, stored.Details.Status)

	_, err = f.lifecycle.Resubmit(ctx, citizen, c.ID, workflow.ComplaintInput{Title: "again", CrimeLevel: 1})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	_, err = f.lifecycle.AddComplainant(ctx, trainee, c.ID, "citizen-9")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestResubmitIsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.complaint(t, models.CrimeLevelTwo)
	_, err := f.lifecycle.TraineeReview(ctx, trainee, c.ID, reject("incomplete"))
	require.NoError(t, err)

	_, err = f.lifecycle.Resubmit(ctx, otherCitizen, c.ID, workflow.ComplaintInput{Title: "mine now", CrimeLevel: 1})
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	c, err = f.lifecycle.Resubmit(ctx, admin, c.ID, workflow.ComplaintInput{Title: "fixed by admin", CrimeLevel: 1})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingTrainee, c.Details.Status)
}

func TestAddComplainantIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.complaint(t, models.CrimeLevelTwo)

	c, err := f.lifecycle.AddComplainant(ctx, trainee, c.ID, "citizen-5")
	require.NoError(t, err)
	assert.Equal(t, []string{"citizen-1", "citizen-5"}, c.Details.Complainants)
	version := c.Version

	c, err = f.lifecycle.AddComplainant(ctx, trainee, c.ID, "citizen-5")
	require.NoError(t, err)
	assert.Equal(t, []string{"citizen-1", "citizen-5"}, c.Details.Complainants)
	assert.Equal(t, version, c.Version)

	_, err = f.lifecycle.AddComplainant(ctx, citizen, c.ID, "citizen-6")
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
}

func TestSubmitResolutionRequiresSuspects(t *testing.T) {
	f := newFixture(t)
	c := f.sceneReport(t, models.CrimeLevelTwo)

	_, err := f.lifecycle.SubmitResolution(context.Background(), detective, c.ID)
	assert.ErrorIs(t, err, workflow.ErrValidation)

	relaxed := workflow.NewCaseLifecycle(f.deps, workflow.ResolutionPolicy{RequireSuspects: false})
	c, err = relaxed.SubmitResolution(context.Background(), detective, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingSergeant, c.Details.Status)
}

func TestConcurrentApprovalsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.sceneReport(t, models.CrimeLevelTwo)
	f.addSuspect(t, c.ID, "")
	_, err := f.lifecycle.SubmitResolution(ctx, detective, c.ID)
	require.NoError(t, err)

	const reviewers = 8
	errs := make([]error, reviewers)
	var wg sync.WaitGroup
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.lifecycle.SergeantReview(ctx, sergeant, c.ID, approve())
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, workflow.ErrInvalidTransition) || errors.Is(err, workflow.ErrConflict), err)
	}
	assert.Equal(t, 1, ok)
	stored := f.stored(t, c.ID)
	assert.Equal(t, models.StatusSolved, stored.Details.Status)
	assert.Equal(t, 1, countTo(stored, models.StatusSolved))
}

func countTo(c *models.Case, s models.CaseStatus) int {
	n := 0
	for _, h := range c.Details.History {
		if h.To == s {
			n++
		}
	}
	return n
}

// conflictingStore loses every swap
type conflictingStore struct {
	*memdb.Store
}

func (conflictingStore) SwapCase(context.Context, *models.Case) error {
	return models.ErrVersionConflict
}

func TestPersistentConflictSurfacesAsConflict(t *testing.T) {
	f := newFixture(t)
	c := f.complaint(t, models.CrimeLevelTwo)

	f.deps.Cases = conflictingStore{f.store}
	f.deps.Backoff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }

	_, err := f.lifecycle.TraineeReview(context.Background(), trainee, c.ID, approve())
	assert.ErrorIs(t, err, workflow.ErrConflict)
	assert.Equal(t, models.StatusPendingTrainee, f.stored(t, c.ID).Details.Status)
}

func TestNotifierFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.deps.Notifier = workflow.NotifierFunc(func(context.Context, models.Event) error {
		return errors.New("broker down")
	})

	c, err := f.lifecycle.FileComplaint(context.Background(), citizen, workflow.ComplaintInput{Title: "x", CrimeLevel: 2})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingTrainee, c.Details.Status)
}

func TestEventsOutliveCancelledRequest(t *testing.T) {
	f := newFixture(t)
	c := f.sceneReport(t, models.CrimeLevelTwo)
	f.addSuspect(t, c.ID, "")

	var delivered []models.Event
	f.deps.Notifier = workflow.NotifierFunc(func(ctx context.Context, ev models.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		delivered = append(delivered, ev)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, err := f.lifecycle.SubmitResolution(ctx, detective, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingSergeant, c.Details.Status)

	require.Len(t, delivered, 1)
	assert.Equal(t, c.ID.Hex(), delivered[0].EntityID)
	assert.Equal(t, models.StatusPendingSergeant, delivered[0].To)
}

func TestMissingCaseIsNotFound(t *testing.T) {
	f := newFixture(t)
	c := f.complaint(t, models.CrimeLevelTwo)
	f.store = memdb.New()
	f.deps.Cases = f.store

	_, err := f.lifecycle.TraineeReview(context.Background(), trainee, c.ID, approve())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestGetCaseVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.complaint(t, models.CrimeLevelTwo)

	got, err := f.lifecycle.GetCase(ctx, citizen, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = f.lifecycle.GetCase(ctx, otherCitizen, c.ID)
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	_, err = f.lifecycle.GetCase(ctx, detective, c.ID)
	assert.NoError(t, err)
}

func TestListCasesScopesCitizens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.complaint(t, models.CrimeLevelTwo)
	f.sceneReport(t, models.CrimeLevelOne)

	cases, total, err := f.lifecycle.ListCases(ctx, citizen, workflow.CaseQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, cases, 1)
	assert.Equal(t, "citizen-1", cases[0].Details.CreatorID)

	_, total, err = f.lifecycle.ListCases(ctx, sergeant, workflow.CaseQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = f.lifecycle.ListCases(ctx, sergeant, workflow.CaseQuery{Status: models.StatusActive})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestSuspects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.complaint(t, models.CrimeLevelTwo)
	_, err := f.lifecycle.AddSuspect(ctx, detective, pending.ID, workflow.SuspectInput{FirstName: "A"})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	c := f.sceneReport(t, models.CrimeLevelTwo)
	_, err = f.lifecycle.AddSuspect(ctx, officer, c.ID, workflow.SuspectInput{FirstName: "A"})
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
	_, err = f.lifecycle.AddSuspect(ctx, detective, c.ID, workflow.SuspectInput{})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	s := f.addSuspect(t, c.ID, "123")
	assert.Equal(t, models.SuspectIdentified, s.Details.Status)
	assert.Equal(t, c.ID.Hex(), s.Details.CaseID)

	s, err = f.lifecycle.SetSuspectOnBoard(ctx, detective, s.ID, true)
	require.NoError(t, err)
	assert.True(t, s.Details.IsOnBoard)

	s, err = f.lifecycle.ArrestSuspect(ctx, officer, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuspectArrested, s.Details.Status)
	assert.NotZero(t, s.Details.ArrestedAt)

	_, err = f.lifecycle.ArrestSuspect(ctx, officer, s.ID)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestBoardFlagRefusedOnTerminalCase(t *testing.T) {
	f := newFixture(t)
	_, s := f.solved(t, models.CrimeLevelTwo)

	_, err := f.lifecycle.SetSuspectOnBoard(context.Background(), detective, s.ID, true)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}
