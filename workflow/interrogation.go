package workflow

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/models"
)

// InterrogationConsensus runs the dual-confirmation scoring protocol: the detective and a
// supervisor each commit a score, the captain decides once both are committed, and the
// chief confirms only on critical cases.
type InterrogationConsensus struct {
	deps *Deps
}

// NewInterrogationConsensus returns an InterrogationConsensus
func NewInterrogationConsensus(d *Deps) *InterrogationConsensus {
	return &InterrogationConsensus{deps: d}
}

// CreateInterrogation opens an interrogation of a suspect on an active case
func (ic *InterrogationConsensus) CreateInterrogation(ctx context.Context, p authority.Principal, suspectID primitive.ObjectID, transcript string) (*models.Interrogation, error) {
	const op = "CreateInterrogation"
	if !ic.deps.allowed(p, authority.ActionCreateInterrogation, authority.Snapshot{}) {
		return nil, denied(op)
	}
	s, err := ic.deps.Suspects.GetSuspect(ctx, suspectID)
	if err != nil {
		return nil, storeError(op, err)
	}
	c, err := loadCaseByHex(ctx, ic.deps, op, s.Details.CaseID)
	if err != nil {
		return nil, err
	}
	if c.Details.Status != models.StatusActive {
		return nil, newError(ErrInvalidTransition, op, "case is %s, expected %s", c.Details.Status, models.StatusActive)
	}
	now := ic.deps.nowDateTime()
	i := &models.Interrogation{
		ID: primitive.NewObjectID(),
		Details: models.InterrogationDetails{
			SuspectID:  suspectID.Hex(),
			CaseID:     s.Details.CaseID,
			Transcript: transcript,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
	if err := ic.deps.Interrogations.InsertInterrogation(ctx, i); err != nil {
		return nil, storeError(op, err)
	}
	return i, nil
}

// GetInterrogation returns an interrogation to police personnel
func (ic *InterrogationConsensus) GetInterrogation(ctx context.Context, p authority.Principal, id primitive.ObjectID) (*models.Interrogation, error) {
	const op = "GetInterrogation"
	if !ic.deps.allowed(p, authority.ActionCreateInterrogation, authority.Snapshot{}) &&
		!ic.deps.allowed(p, authority.ActionCaptainFeedback, authority.Snapshot{}) &&
		!ic.deps.allowed(p, authority.ActionCreateVerdict, authority.Snapshot{}) {
		return nil, denied(op)
	}
	i, err := ic.deps.Interrogations.GetInterrogation(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	return i, nil
}

// scoreSide picks the interrogator or supervisor half of an interrogation
type scoreSide struct {
	action    authority.Action
	score     func(*models.InterrogationDetails) **int
	scorer    func(*models.InterrogationDetails) *string
	confirmed func(*models.InterrogationDetails) *bool
	other     func(*models.InterrogationDetails) string
}

var interrogatorSide = scoreSide{
	action:    authority.ActionInterrogatorScore,
	score:     func(d *models.InterrogationDetails) **int { return &d.InterrogatorScore },
	scorer:    func(d *models.InterrogationDetails) *string { return &d.InterrogatorID },
	confirmed: func(d *models.InterrogationDetails) *bool { return &d.IsInterrogatorConfirmed },
	other:     func(d *models.InterrogationDetails) string { return d.SupervisorID },
}

var supervisorSide = scoreSide{
	action:    authority.ActionSupervisorScore,
	score:     func(d *models.InterrogationDetails) **int { return &d.SupervisorScore },
	scorer:    func(d *models.InterrogationDetails) *string { return &d.SupervisorID },
	confirmed: func(d *models.InterrogationDetails) *bool { return &d.IsSupervisorConfirmed },
	other:     func(d *models.InterrogationDetails) string { return d.InterrogatorID },
}

// RecordInterrogatorScore sets the detective's score while it is unconfirmed
func (ic *InterrogationConsensus) RecordInterrogatorScore(ctx context.Context, p authority.Principal, id primitive.ObjectID, score int) (*models.Interrogation, error) {
	return ic.recordScore(ctx, p, id, "RecordInterrogatorScore", interrogatorSide, score)
}

// ConfirmInterrogatorScore commits the detective's score. It is immutable afterwards.
func (ic *InterrogationConsensus) ConfirmInterrogatorScore(ctx context.Context, p authority.Principal, id primitive.ObjectID) (*models.Interrogation, error) {
	return ic.confirmScore(ctx, p, id, "ConfirmInterrogatorScore", interrogatorSide)
}

// RecordSupervisorScore sets the supervisor's score while it is unconfirmed
func (ic *InterrogationConsensus) RecordSupervisorScore(ctx context.Context, p authority.Principal, id primitive.ObjectID, score int) (*models.Interrogation, error) {
	return ic.recordScore(ctx, p, id, "RecordSupervisorScore", supervisorSide, score)
}

// ConfirmSupervisorScore commits the supervisor's score. It is immutable afterwards.
func (ic *InterrogationConsensus) ConfirmSupervisorScore(ctx context.Context, p authority.Principal, id primitive.ObjectID) (*models.Interrogation, error) {
	return ic.confirmScore(ctx, p, id, "ConfirmSupervisorScore", supervisorSide)
}

func (ic *InterrogationConsensus) recordScore(ctx context.Context, p authority.Principal, id primitive.ObjectID, op string, side scoreSide, score int) (*models.Interrogation, error) {
	return ic.swap(ctx, id, op, func(i *models.Interrogation) error {
		d := &i.Details
		if !ic.deps.allowed(p, side.action, authority.Snapshot{}) {
			return denied(op)
		}
		if *side.confirmed(d) {
			return newError(ErrImmutableFieldViolation, op, "score is already confirmed")
		}
		if score < models.MinInterrogationScore || score > models.MaxInterrogationScore {
			return newError(ErrValidation, op, "score %d is outside %d..%d", score, models.MinInterrogationScore, models.MaxInterrogationScore)
		}
		if !p.Roles.IsSuperuser() && p.UserID == side.other(d) {
			return newError(ErrPermissionDenied, op, "the same user cannot score both sides")
		}
		v := score
		*side.score(d) = &v
		*side.scorer(d) = p.UserID
		d.UpdatedAt = ic.deps.nowDateTime()
		return nil
	})
}

func (ic *InterrogationConsensus) confirmScore(ctx context.Context, p authority.Principal, id primitive.ObjectID, op string, side scoreSide) (*models.Interrogation, error) {
	return ic.swap(ctx, id, op, func(i *models.Interrogation) error {
		d := &i.Details
		if !ic.deps.allowed(p, side.action, authority.Snapshot{}) {
			return denied(op)
		}
		if *side.confirmed(d) {
			return newError(ErrImmutableFieldViolation, op, "score is already confirmed")
		}
		if *side.score(d) == nil {
			return newError(ErrValidation, op, "no score recorded")
		}
		if !p.Roles.IsSuperuser() && *side.scorer(d) != p.UserID {
			return newError(ErrPermissionDenied, op, "only the scorer can confirm")
		}
		*side.confirmed(d) = true
		d.UpdatedAt = ic.deps.nowDateTime()
		return nil
	})
}

// SubmitCaptainFeedback records the captain's decision, exactly once, after both scores
// are confirmed
func (ic *InterrogationConsensus) SubmitCaptainFeedback(ctx context.Context, p authority.Principal, id primitive.ObjectID, decision models.Decision, notes string) (*models.Interrogation, error) {
	const op = "SubmitCaptainFeedback"
	i, err := ic.swap(ctx, id, op, func(i *models.Interrogation) error {
		d := &i.Details
		if !ic.deps.allowed(p, authority.ActionCaptainFeedback, authority.Snapshot{}) {
			return denied(op)
		}
		if d.Feedback != nil {
			return newError(ErrImmutableFieldViolation, op, "feedback already recorded")
		}
		if !d.BothConfirmed() {
			return newError(ErrInvalidTransition, op, "both scores must be confirmed")
		}
		if !decision.Valid() {
			return newError(ErrValidation, op, "decision %q is not GUILTY or INNOCENT", decision)
		}
		now := ic.deps.nowDateTime()
		d.Feedback = &models.InterrogationFeedback{
			Decision:  decision,
			Notes:     strings.TrimSpace(notes),
			CaptainID: p.UserID,
			DecidedAt: now,
		}
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	ev := newEvent(models.EventInterrogationFeedbackRecorded, i.ID.Hex(), p.UserID, ic.deps.now())
	ev.Decision = decision
	ic.deps.emit(ctx, ev)
	return i, nil
}

// ChiefConfirm records the chief's agreement or disagreement with the captain on a
// critical case. Disagreement is data for the judge, the captain's decision stands.
func (ic *InterrogationConsensus) ChiefConfirm(ctx context.Context, p authority.Principal, id primitive.ObjectID, isConfirmed bool, notes string) (*models.Interrogation, error) {
	const op = "ChiefConfirm"
	if !ic.deps.allowed(p, authority.ActionChiefConfirm, authority.Snapshot{}) {
		return nil, denied(op)
	}
	current, err := ic.deps.Interrogations.GetInterrogation(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	c, err := loadCaseByHex(ctx, ic.deps, op, current.Details.CaseID)
	if err != nil {
		return nil, err
	}
	if !c.Details.CrimeLevel.Critical() {
		return nil, newError(ErrValidation, op, "chief confirmation only applies to critical cases, case is level %d", c.Details.CrimeLevel)
	}
	i, err := ic.swap(ctx, id, op, func(i *models.Interrogation) error {
		d := &i.Details
		if d.Feedback == nil {
			return newError(ErrInvalidTransition, op, "captain feedback is required first")
		}
		if d.Feedback.Chief != nil {
			return newError(ErrImmutableFieldViolation, op, "chief decision already recorded")
		}
		now := ic.deps.nowDateTime()
		d.Feedback.Chief = &models.ChiefConfirmation{
			IsConfirmed: isConfirmed,
			Notes:       strings.TrimSpace(notes),
			ChiefID:     p.UserID,
			DecidedAt:   now,
		}
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	ev := newEvent(models.EventInterrogationFeedbackRecorded, i.ID.Hex(), p.UserID, ic.deps.now())
	ev.Decision = i.Details.Feedback.Decision
	agrees := isConfirmed
	ev.ChiefAgrees = &agrees
	ic.deps.emit(ctx, ev)
	return i, nil
}

func (ic *InterrogationConsensus) swap(ctx context.Context, id primitive.ObjectID, op string, mutate func(*models.Interrogation) error) (*models.Interrogation, error) {
	return compareAndSwap(ctx, ic.deps, op,
		func(ctx context.Context) (*models.Interrogation, error) {
			return ic.deps.Interrogations.GetInterrogation(ctx, id)
		},
		cloneInterrogation,
		ic.deps.Interrogations.SwapInterrogation,
		mutate)
}
