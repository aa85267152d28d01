// Package workflow holds the case lifecycle, the interrogation consensus protocol and
// verdict settlement. Every mutation is a compare-and-swap on one entity and emits its
// event only after the swap commits.
package workflow

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/models"
)

// History actions
const (
	historyFiled       = "FILED"
	historySceneReport = "SCENE_REPORT"
	historyApproved    = "APPROVED"
	historyRejected    = "REJECTED"
	historySubmitted   = "RESOLUTION_SUBMITTED"
	historyResubmitted = "RESUBMITTED"
	historyVoided      = "VOIDED"
)

// ResolutionPolicy tunes SubmitResolution
type ResolutionPolicy struct {
	// RequireSuspects rejects resolving a case that has no suspects
	RequireSuspects bool
}

// DefaultResolutionPolicy requires at least one suspect
func DefaultResolutionPolicy() ResolutionPolicy {
	return ResolutionPolicy{RequireSuspects: true}
}

// ComplaintInput is the citizen's complaint, also used for resubmission edits
type ComplaintInput struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	CrimeLevel  models.CrimeLevel `json:"crimeLevel"`
}

// SceneReportInput is filed by police from a crime scene
type SceneReportInput struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	CrimeLevel  models.CrimeLevel  `json:"crimeLevel"`
	Scene       models.SceneReport `json:"scene"`
}

// ReviewInput is the payload of every approve/reject review step
type ReviewInput struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`

	// ConfirmedComplainants is only read by the trainee review. nil leaves the set as is.
	ConfirmedComplainants []string `json:"confirmedComplainants,omitempty"`
}

// SuspectInput identifies a new suspect on a case
type SuspectInput struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	NationalCode  string `json:"nationalCode"`
	IsMainSuspect bool   `json:"isMainSuspect"`
}

// CaseLifecycle routes cases through intake, investigation and review
type CaseLifecycle struct {
	deps   *Deps
	policy ResolutionPolicy
}

// NewCaseLifecycle returns a CaseLifecycle
func NewCaseLifecycle(d *Deps, policy ResolutionPolicy) *CaseLifecycle {
	return &CaseLifecycle{deps: d, policy: policy}
}

func validateComplaint(op, title string, level models.CrimeLevel) error {
	if strings.TrimSpace(title) == "" {
		return newError(ErrValidation, op, "title is required")
	}
	if !level.Valid() {
		return newError(ErrValidation, op, "crime level %d is out of range", level)
	}
	return nil
}

// FileComplaint opens a case in PT owned by the citizen
func (l *CaseLifecycle) FileComplaint(ctx context.Context, p authority.Principal, in ComplaintInput) (*models.Case, error) {
	const op = "FileComplaint"
	if !l.deps.allowed(p, authority.ActionFileComplaint, authority.Snapshot{}) {
		return nil, denied(op)
	}
	if err := validateComplaint(op, in.Title, in.CrimeLevel); err != nil {
		return nil, err
	}
	c := l.newCase(p, in.Title, in.Description, in.CrimeLevel, models.StatusPendingTrainee, historyFiled)
	c.Details.Complainants = []string{p.UserID}
	if err := l.deps.Cases.InsertCase(ctx, c); err != nil {
		return nil, storeError(op, err)
	}
	l.emitStatus(ctx, c, models.StatusUnknown, p.UserID)
	return c, nil
}

// FileSceneReport opens a case directly in AC, skipping citizen intake
func (l *CaseLifecycle) FileSceneReport(ctx context.Context, p authority.Principal, in SceneReportInput) (*models.Case, error) {
	const op = "FileSceneReport"
	if !l.deps.allowed(p, authority.ActionFileSceneReport, authority.Snapshot{}) {
		return nil, denied(op)
	}
	if err := validateComplaint(op, in.Title, in.CrimeLevel); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Scene.Location) == "" {
		return nil, newError(ErrValidation, op, "scene location is required")
	}
	c := l.newCase(p, in.Title, in.Description, in.CrimeLevel, models.StatusActive, historySceneReport)
	scene := in.Scene
	scene.Witnesses = dedupe(scene.Witnesses)
	c.Details.SceneReport = &scene
	c.Details.Complainants = []string{}
	if err := l.deps.Cases.InsertCase(ctx, c); err != nil {
		return nil, storeError(op, err)
	}
	l.emitStatus(ctx, c, models.StatusUnknown, p.UserID)
	return c, nil
}

func (l *CaseLifecycle) newCase(p authority.Principal, title, desc string, level models.CrimeLevel, status models.CaseStatus, action string) *models.Case {
	now := l.deps.nowDateTime()
	return &models.Case{
		ID: primitive.NewObjectID(),
		Details: models.CaseDetails{
			Title:       strings.TrimSpace(title),
			Description: desc,
			CrimeLevel:  level,
			Status:      status,
			CreatorID:   p.UserID,
			History: []models.CaseHistoryEntry{{
				Action:    action,
				To:        status,
				UserID:    p.UserID,
				Timestamp: now,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// TraineeReview screens a complaint in PT. Rejection does not count against the
// resubmission cap.
func (l *CaseLifecycle) TraineeReview(ctx context.Context, p authority.Principal, id primitive.ObjectID, in ReviewInput) (*models.Case, error) {
	return l.review(ctx, p, id, in, reviewStep{
		op:     "TraineeReview",
		action: authority.ActionTraineeReview,
		from:   models.StatusPendingTrainee,
		approve: func(models.CaseDetails) models.CaseStatus {
			return models.StatusPendingOfficer
		},
		reject: models.StatusNeedsResubmission,
		extra: func(d *models.CaseDetails) {
			if in.ConfirmedComplainants != nil {
				d.Complainants = dedupe(in.ConfirmedComplainants)
			}
		},
	})
}

// OfficerReview moves a screened complaint into investigation
func (l *CaseLifecycle) OfficerReview(ctx context.Context, p authority.Principal, id primitive.ObjectID, in ReviewInput) (*models.Case, error) {
	return l.review(ctx, p, id, in, reviewStep{
		op:     "OfficerReview",
		action: authority.ActionOfficerReview,
		from:   models.StatusPendingOfficer,
		approve: func(models.CaseDetails) models.CaseStatus {
			return models.StatusActive
		},
		reject: models.StatusNeedsResubmission,
	})
}

// SergeantReview closes non-critical cases and escalates critical ones to the chief.
// Rejection always bounces the case back to the detective.
func (l *CaseLifecycle) SergeantReview(ctx context.Context, p authority.Principal, id primitive.ObjectID, in ReviewInput) (*models.Case, error) {
	return l.review(ctx, p, id, in, reviewStep{
		op:     "SergeantReview",
		action: authority.ActionSergeantReview,
		from:   models.StatusPendingSergeant,
		approve: func(d models.CaseDetails) models.CaseStatus {
			if d.CrimeLevel.Critical() {
				return models.StatusPendingChief
			}
			return models.StatusSolved
		},
		reject: models.StatusActive,
	})
}

// ChiefReview signs off critical cases
func (l *CaseLifecycle) ChiefReview(ctx context.Context, p authority.Principal, id primitive.ObjectID, in ReviewInput) (*models.Case, error) {
	return l.review(ctx, p, id, in, reviewStep{
		op:     "ChiefReview",
		action: authority.ActionChiefReview,
		from:   models.StatusPendingChief,
		approve: func(models.CaseDetails) models.CaseStatus {
			return models.StatusSolved
		},
		reject: models.StatusActive,
	})
}

type reviewStep struct {
	op      string
	action  authority.Action
	from    models.CaseStatus
	approve func(models.CaseDetails) models.CaseStatus
	reject  models.CaseStatus
	extra   func(*models.CaseDetails)
}

func (l *CaseLifecycle) review(ctx context.Context, p authority.Principal, id primitive.ObjectID, in ReviewInput, step reviewStep) (*models.Case, error) {
	return l.transition(ctx, p, id, step.op, step.action, func(c *models.Case) error {
		if !in.Approved && strings.TrimSpace(in.Notes) == "" {
			return newError(ErrValidation, step.op, "notes are required when rejecting")
		}
		if c.Details.Status != step.from {
			return newError(ErrInvalidTransition, step.op, "case is %s, expected %s", c.Details.Status, step.from)
		}
		if step.extra != nil {
			step.extra(&c.Details)
		}
		to, action := step.reject, historyRejected
		if in.Approved {
			to, action = step.approve(c.Details), historyApproved
		}
		c.Details.ReviewNotes = in.Notes
		l.advance(c, action, to, p.UserID, in.Notes)
		return nil
	})
}

// SubmitResolution hands an active case to the sergeant
func (l *CaseLifecycle) SubmitResolution(ctx context.Context, p authority.Principal, id primitive.ObjectID) (*models.Case, error) {
	const op = "SubmitResolution"
	return l.transition(ctx, p, id, op, authority.ActionSubmitResolution, func(c *models.Case) error {
		if c.Details.Status != models.StatusActive {
			return newError(ErrInvalidTransition, op, "case is %s, expected %s", c.Details.Status, models.StatusActive)
		}
		if l.policy.RequireSuspects {
			n, err := l.deps.Suspects.CountSuspectsByCase(ctx, id.Hex())
			if err != nil {
				return storeError(op, err)
			}
			if n == 0 {
				return newError(ErrValidation, op, "case has no suspects")
			}
		}
		l.advance(c, historySubmitted, models.StatusPendingSergeant, p.UserID, "")
		return nil
	})
}

// Resubmit lets the owning citizen correct a rejected complaint. The attempt that
// would exceed MaxSubmissionAttempts voids the case instead: the voided case is
// persisted and returned along with ErrResubmissionLimitExceeded.
func (l *CaseLifecycle) Resubmit(ctx context.Context, p authority.Principal, id primitive.ObjectID, in ComplaintInput) (*models.Case, error) {
	const op = "Resubmit"
	var voided bool
	c, err := l.transition(ctx, p, id, op, authority.ActionResubmit, func(c *models.Case) error {
		if err := validateComplaint(op, in.Title, in.CrimeLevel); err != nil {
			return err
		}
		if c.Details.Status != models.StatusNeedsResubmission {
			return newError(ErrInvalidTransition, op, "case is %s, expected %s", c.Details.Status, models.StatusNeedsResubmission)
		}
		voided = c.Details.SubmissionAttempts >= models.MaxSubmissionAttempts
		if voided {
			l.advance(c, historyVoided, models.StatusCancelled, p.UserID, "")
			return nil
		}
		c.Details.SubmissionAttempts++
		c.Details.Title = strings.TrimSpace(in.Title)
		c.Details.Description = in.Description
		c.Details.CrimeLevel = in.CrimeLevel
		l.advance(c, historyResubmitted, models.StatusPendingTrainee, p.UserID, "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	if voided {
		return c, newError(ErrResubmissionLimitExceeded, op, "case voided after %d attempts", models.MaxSubmissionAttempts)
	}
	return c, nil
}

// AddComplainant adds userID to the complainant set. Adding an existing id is a no-op.
func (l *CaseLifecycle) AddComplainant(ctx context.Context, p authority.Principal, id primitive.ObjectID, userID string) (*models.Case, error) {
	const op = "AddComplainant"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newError(ErrValidation, op, "user id is required")
	}
	return l.transition(ctx, p, id, op, authority.ActionAddComplainant, func(c *models.Case) error {
		if c.Details.Status.Terminal() {
			return newError(ErrInvalidTransition, op, "case is %s", c.Details.Status)
		}
		if c.Details.HasComplainant(userID) {
			return errUnchanged
		}
		c.Details.Complainants = append(c.Details.Complainants, userID)
		c.Details.UpdatedAt = l.deps.nowDateTime()
		return nil
	})
}

// transition runs mutate under compare-and-swap after the role check and emits
// CaseStatusChanged when the status moved
func (l *CaseLifecycle) transition(ctx context.Context, p authority.Principal, id primitive.ObjectID, op string, action authority.Action, mutate func(*models.Case) error) (*models.Case, error) {
	var from models.CaseStatus
	c, err := compareAndSwap(ctx, l.deps, op,
		func(ctx context.Context) (*models.Case, error) { return l.deps.Cases.GetCase(ctx, id) },
		cloneCase,
		l.deps.Cases.SwapCase,
		func(c *models.Case) error {
			if !l.deps.allowed(p, action, authority.Snapshot{OwnerID: c.Details.CreatorID}) {
				return denied(op)
			}
			from = c.Details.Status
			return mutate(c)
		})
	if err != nil {
		return nil, err
	}
	if c.Details.Status != from {
		l.emitStatus(ctx, c, from, p.UserID)
	}
	return c, nil
}

// advance moves the case to `to` and appends the history entry
func (l *CaseLifecycle) advance(c *models.Case, action string, to models.CaseStatus, actor, notes string) {
	now := l.deps.nowDateTime()
	c.Details.History = append(c.Details.History, models.CaseHistoryEntry{
		Action:    action,
		From:      c.Details.Status,
		To:        to,
		UserID:    actor,
		Notes:     notes,
		Timestamp: now,
	})
	c.Details.Status = to
	c.Details.UpdatedAt = now
}

func (l *CaseLifecycle) emitStatus(ctx context.Context, c *models.Case, from models.CaseStatus, actor string) {
	ev := newEvent(models.EventCaseStatusChanged, c.ID.Hex(), actor, l.deps.now())
	ev.From = from
	ev.To = c.Details.Status
	ev.Recipients = dedupe(append([]string{c.Details.CreatorID}, c.Details.Complainants...))
	l.deps.emit(ctx, ev)
}

// GetCase returns a case the principal may see. Citizens only see cases they filed or
// are a complainant on.
func (l *CaseLifecycle) GetCase(ctx context.Context, p authority.Principal, id primitive.ObjectID) (*models.Case, error) {
	const op = "GetCase"
	if !l.deps.allowed(p, authority.ActionViewCase, authority.Snapshot{}) {
		return nil, denied(op)
	}
	c, err := l.deps.Cases.GetCase(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	if citizenOnly(p) && c.Details.CreatorID != p.UserID && !c.Details.HasComplainant(p.UserID) {
		return nil, denied(op)
	}
	return c, nil
}

// ListCases pages through cases. Citizens are restricted to their own.
func (l *CaseLifecycle) ListCases(ctx context.Context, p authority.Principal, q CaseQuery) ([]models.Case, int64, error) {
	const op = "ListCases"
	if !l.deps.allowed(p, authority.ActionViewCase, authority.Snapshot{}) {
		return nil, 0, denied(op)
	}
	q = q.Normalized()
	if citizenOnly(p) {
		q.CreatorID = p.UserID
	}
	cases, total, err := l.deps.Cases.ListCases(ctx, q)
	if err != nil {
		return nil, 0, storeError(op, err)
	}
	return cases, total, nil
}

func citizenOnly(p authority.Principal) bool {
	return p.Roles.Len() == 1 && p.Roles.Has(authority.RoleCitizen)
}

// AddSuspect identifies a suspect on a case under investigation
func (l *CaseLifecycle) AddSuspect(ctx context.Context, p authority.Principal, caseID primitive.ObjectID, in SuspectInput) (*models.Suspect, error) {
	const op = "AddSuspect"
	if !l.deps.allowed(p, authority.ActionAddSuspect, authority.Snapshot{}) {
		return nil, denied(op)
	}
	if strings.TrimSpace(in.FirstName) == "" && strings.TrimSpace(in.LastName) == "" {
		return nil, newError(ErrValidation, op, "suspect name is required")
	}
	c, err := l.deps.Cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, storeError(op, err)
	}
	if c.Details.Status != models.StatusActive {
		return nil, newError(ErrInvalidTransition, op, "case is %s, expected %s", c.Details.Status, models.StatusActive)
	}
	now := l.deps.nowDateTime()
	s := &models.Suspect{
		ID: primitive.NewObjectID(),
		Details: models.SuspectDetails{
			CaseID:        caseID.Hex(),
			FirstName:     strings.TrimSpace(in.FirstName),
			LastName:      strings.TrimSpace(in.LastName),
			NationalCode:  strings.TrimSpace(in.NationalCode),
			IsMainSuspect: in.IsMainSuspect,
			Status:        models.SuspectIdentified,
			AddedByUserID: p.UserID,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
	if err := l.deps.Suspects.InsertSuspect(ctx, s); err != nil {
		return nil, storeError(op, err)
	}
	return s, nil
}

// ArrestSuspect marks a suspect arrested. The transition is one-way.
func (l *CaseLifecycle) ArrestSuspect(ctx context.Context, p authority.Principal, id primitive.ObjectID) (*models.Suspect, error) {
	const op = "ArrestSuspect"
	return l.mutateSuspect(ctx, p, id, op, authority.ActionArrestSuspect, func(c *models.Case, s *models.Suspect) error {
		if c.Details.Status == models.StatusCancelled {
			return newError(ErrInvalidTransition, op, "case is %s", c.Details.Status)
		}
		if s.Details.Status == models.SuspectArrested {
			return newError(ErrInvalidTransition, op, "suspect is already arrested")
		}
		s.Details.Status = models.SuspectArrested
		s.Details.ArrestedAt = l.deps.nowDateTime()
		s.Details.UpdatedAt = s.Details.ArrestedAt
		return nil
	})
}

// SetSuspectOnBoard toggles investigation board visibility
func (l *CaseLifecycle) SetSuspectOnBoard(ctx context.Context, p authority.Principal, id primitive.ObjectID, onBoard bool) (*models.Suspect, error) {
	const op = "SetSuspectOnBoard"
	return l.mutateSuspect(ctx, p, id, op, authority.ActionBoardSuspect, func(c *models.Case, s *models.Suspect) error {
		if c.Details.Status.Terminal() {
			return newError(ErrInvalidTransition, op, "case is %s", c.Details.Status)
		}
		if s.Details.IsOnBoard == onBoard {
			return errUnchanged
		}
		s.Details.IsOnBoard = onBoard
		s.Details.UpdatedAt = l.deps.nowDateTime()
		return nil
	})
}

func (l *CaseLifecycle) mutateSuspect(ctx context.Context, p authority.Principal, id primitive.ObjectID, op string, action authority.Action, mutate func(*models.Case, *models.Suspect) error) (*models.Suspect, error) {
	if !l.deps.allowed(p, action, authority.Snapshot{}) {
		return nil, denied(op)
	}
	current, err := l.deps.Suspects.GetSuspect(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	c, err := loadCaseByHex(ctx, l.deps, op, current.Details.CaseID)
	if err != nil {
		return nil, err
	}
	return compareAndSwap(ctx, l.deps, op,
		func(ctx context.Context) (*models.Suspect, error) { return l.deps.Suspects.GetSuspect(ctx, id) },
		cloneSuspect,
		l.deps.Suspects.SwapSuspect,
		func(s *models.Suspect) error { return mutate(c, s) })
}

func loadCaseByHex(ctx context.Context, d *Deps, op, hex string) (*models.Case, error) {
	cID, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, newError(ErrNotFound, op, "case %q", hex)
	}
	c, err := d.Cases.GetCase(ctx, cID)
	if err != nil {
		return nil, storeError(op, err)
	}
	return c, nil
}

// dedupe drops blanks and repeats, keeping first-seen order
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
