package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/workflow"
)

// Case exported for testing purposes
type Case struct {
	Lifecycle *workflow.CaseLifecycle
}

// CaseListResponse is one page of cases
type CaseListResponse struct {
	Cases []models.Case `json:"cases"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type complainantRequest struct {
	UserID string `json:"userID"`
}

type boardRequest struct {
	OnBoard bool `json:"onBoard"`
}

// FileComplaintHandler opens a case from a citizen complaint
func (c Case) FileComplaintHandler(w http.ResponseWriter, r *http.Request) {
	var in workflow.ComplaintInput
	if !decode(w, r, &in) {
		return
	}
	cs, err := c.Lifecycle.FileComplaint(r.Context(), principal(r), in)
	if err != nil {
		workflowError("failed to file complaint", w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cs)
}

// FileSceneReportHandler opens an active case from an officer's scene report
func (c Case) FileSceneReportHandler(w http.ResponseWriter, r *http.Request) {
	var in workflow.SceneReportInput
	if !decode(w, r, &in) {
		return
	}
	cs, err := c.Lifecycle.FileSceneReport(r.Context(), principal(r), in)
	if err != nil {
		workflowError("failed to file scene report", w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cs)
}

// CaseHandler returns a page of cases, newest first
func (c Case) CaseHandler(w http.ResponseWriter, r *http.Request) {
	q := workflow.CaseQuery{
		CreatorID: r.URL.Query().Get("creator"),
		Limit:     queryInt(r, "limit", workflow.DefaultPageLimit),
		Page:      queryInt(r, "page", 1),
	}.Normalized()
	if code := r.URL.Query().Get("status"); code != "" {
		s, err := models.ParseCaseStatus(code)
		if err != nil {
			workflowError("invalid status filter", w, &workflow.Error{Kind: workflow.ErrValidation, Op: "ListCases", Msg: err.Error()})
			return
		}
		q.Status = s
	}

	cases, total, err := c.Lifecycle.ListCases(r.Context(), principal(r), q)
	if err != nil {
		workflowError("failed to get cases", w, err)
		return
	}
	if cases == nil {
		cases = []models.Case{}
	}
	writeJSON(w, http.StatusOK, CaseListResponse{Cases: cases, Total: total, Page: q.Page, Limit: q.Limit})
}

// CaseByIDHandler returns a case by ID
func (c Case) CaseByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "case_id")
	if !ok {
		return
	}
	cs, err := c.Lifecycle.GetCase(r.Context(), principal(r), id)
	if err != nil {
		workflowError("failed to get case by ID", w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

type caseStep func(context.Context, authority.Principal, primitive.ObjectID, workflow.ReviewInput) (*models.Case, error)

func (c Case) review(w http.ResponseWriter, r *http.Request, step caseStep) {
	id, ok := objectID(w, r, "case_id")
	if !ok {
		return
	}
	var in workflow.ReviewInput
	if !decode(w, r, &in) {
		return
	}
	cs, err := step(r.Context(), principal(r), id, in)
	if err != nil {
		workflowError("failed to review case", w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// TraineeReviewHandler records the trainee's decision on a pending complaint
func (c Case) TraineeReviewHandler(w http.ResponseWriter, r *http.Request) {
	c.review(w, r, c.Lifecycle.TraineeReview)
}

// OfficerReviewHandler records the officer's decision
func (c Case) OfficerReviewHandler(w http.ResponseWriter, r *http.Request) {
	c.review(w, r, c.Lifecycle.OfficerReview)
}

// SergeantReviewHandler records the sergeant's decision on a submitted resolution
func (c Case) SergeantReviewHandler(w http.ResponseWriter, r *http.Request) {
	c.review(w, r, c.Lifecycle.SergeantReview)
}

// ChiefReviewHandler records the chief's sign-off on a critical case
func (c Case) ChiefReviewHandler(w http.ResponseWriter, r *http.Request) {
	c.review(w, r, c.Lifecycle.ChiefReview)
}

// SubmitResolutionHandler sends a solved case to the sergeant
func (c Case) SubmitResolutionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "case_id")
	if !ok {
		return
	}
	cs, err := c.Lifecycle.SubmitResolution(r.Context(), principal(r), id)
	if err != nil {
		workflowError("failed to submit resolution", w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// ResubmitHandler resubmits a complaint that was sent back. Running out of attempts
// voids the case, and the voided case is returned alongside the error.
func (c Case) ResubmitHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "case_id")
	if !ok {
		return
	}
	var in workflow.ComplaintInput
	if !decode(w, r, &in) {
		return
	}
	cs, err := c.Lifecycle.Resubmit(r.Context(), principal(r), id, in)
	if errors.Is(err, workflow.ErrResubmissionLimitExceeded) && cs != nil {
		zap.S().Infow("case voided after too many resubmissions", "caseId", cs.ID.Hex())
		writeJSON(w, http.StatusUnprocessableEntity, VoidedCaseResponse{
			Response: models.MessageError{
				Message: "resubmission limit exceeded, case cancelled",
				Error:   err.Error(),
				Code:    strconv.Itoa(http.StatusUnprocessableEntity),
			},
			Case: cs,
		})
		return
	}
	if err != nil {
		workflowError("failed to resubmit case", w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// AddComplainantHandler adds a complainant to a case
func (c Case) AddComplainantHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "case_id")
	if !ok {
		return
	}
	var in complainantRequest
	if !decode(w, r, &in) {
		return
	}
	cs, err := c.Lifecycle.AddComplainant(r.Context(), principal(r), id, in.UserID)
	if err != nil {
		workflowError("failed to add complainant", w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// AddSuspectHandler records a suspect on an active case
func (c Case) AddSuspectHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "case_id")
	if !ok {
		return
	}
	var in workflow.SuspectInput
	if !decode(w, r, &in) {
		return
	}
	s, err := c.Lifecycle.AddSuspect(r.Context(), principal(r), id, in)
	if err != nil {
		workflowError("failed to add suspect", w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// ArrestSuspectHandler marks a suspect arrested
func (c Case) ArrestSuspectHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "suspect_id")
	if !ok {
		return
	}
	s, err := c.Lifecycle.ArrestSuspect(r.Context(), principal(r), id)
	if err != nil {
		workflowError("failed to arrest suspect", w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// SuspectBoardHandler puts a suspect on or off the board
func (c Case) SuspectBoardHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "suspect_id")
	if !ok {
		return
	}
	var in boardRequest
	if !decode(w, r, &in) {
		return
	}
	s, err := c.Lifecycle.SetSuspectOnBoard(r.Context(), principal(r), id, in.OnBoard)
	if err != nil {
		workflowError("failed to update suspect", w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
