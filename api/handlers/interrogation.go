package handlers

import (
	"context"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/workflow"
)

// Interrogation exported for testing purposes
type Interrogation struct {
	Consensus *workflow.InterrogationConsensus
}

type interrogationRequest struct {
	Transcript string `json:"transcript"`
}

type scoreRequest struct {
	Score int `json:"score"`
}

type feedbackRequest struct {
	Decision models.Decision `json:"decision"`
	Notes    string          `json:"notes"`
}

type chiefConfirmationRequest struct {
	IsConfirmed bool   `json:"isConfirmed"`
	Notes       string `json:"notes"`
}

func writeInterrogation(w http.ResponseWriter, status int, i *models.Interrogation) {
	writeJSON(w, status, i.View())
}

// CreateInterrogationHandler opens an interrogation of a suspect
func (h Interrogation) CreateInterrogationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "suspect_id")
	if !ok {
		return
	}
	var in interrogationRequest
	if !decode(w, r, &in) {
		return
	}
	i, err := h.Consensus.CreateInterrogation(r.Context(), principal(r), id, in.Transcript)
	if err != nil {
		workflowError("failed to create interrogation", w, err)
		return
	}
	writeInterrogation(w, http.StatusCreated, i)
}

// InterrogationByIDHandler returns an interrogation with its stage and final score
func (h Interrogation) InterrogationByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "interrogation_id")
	if !ok {
		return
	}
	i, err := h.Consensus.GetInterrogation(r.Context(), principal(r), id)
	if err != nil {
		workflowError("failed to get interrogation by ID", w, err)
		return
	}
	writeInterrogation(w, http.StatusOK, i)
}

type scoreStep func(context.Context, authority.Principal, primitive.ObjectID, int) (*models.Interrogation, error)

type confirmStep func(context.Context, authority.Principal, primitive.ObjectID) (*models.Interrogation, error)

func (h Interrogation) score(w http.ResponseWriter, r *http.Request, step scoreStep) {
	id, ok := objectID(w, r, "interrogation_id")
	if !ok {
		return
	}
	var in scoreRequest
	if !decode(w, r, &in) {
		return
	}
	i, err := step(r.Context(), principal(r), id, in.Score)
	if err != nil {
		workflowError("failed to record score", w, err)
		return
	}
	writeInterrogation(w, http.StatusOK, i)
}

func (h Interrogation) confirm(w http.ResponseWriter, r *http.Request, step confirmStep) {
	id, ok := objectID(w, r, "interrogation_id")
	if !ok {
		return
	}
	i, err := step(r.Context(), principal(r), id)
	if err != nil {
		workflowError("failed to confirm score", w, err)
		return
	}
	writeInterrogation(w, http.StatusOK, i)
}

// InterrogatorScoreHandler records the interrogating detective's score
func (h Interrogation) InterrogatorScoreHandler(w http.ResponseWriter, r *http.Request) {
	h.score(w, r, h.Consensus.RecordInterrogatorScore)
}

// ConfirmInterrogatorScoreHandler locks the interrogator's score
func (h Interrogation) ConfirmInterrogatorScoreHandler(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.Consensus.ConfirmInterrogatorScore)
}

// SupervisorScoreHandler records the supervising sergeant's score
func (h Interrogation) SupervisorScoreHandler(w http.ResponseWriter, r *http.Request) {
	h.score(w, r, h.Consensus.RecordSupervisorScore)
}

// ConfirmSupervisorScoreHandler locks the supervisor's score
func (h Interrogation) ConfirmSupervisorScoreHandler(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.Consensus.ConfirmSupervisorScore)
}

// FeedbackHandler records the captain's decision once both scores are confirmed
func (h Interrogation) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "interrogation_id")
	if !ok {
		return
	}
	var in feedbackRequest
	if !decode(w, r, &in) {
		return
	}
	i, err := h.Consensus.SubmitCaptainFeedback(r.Context(), principal(r), id, in.Decision, in.Notes)
	if err != nil {
		workflowError("failed to submit feedback", w, err)
		return
	}
	writeInterrogation(w, http.StatusOK, i)
}

// ChiefConfirmationHandler records the chief's agreement on a critical case
func (h Interrogation) ChiefConfirmationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "interrogation_id")
	if !ok {
		return
	}
	var in chiefConfirmationRequest
	if !decode(w, r, &in) {
		return
	}
	i, err := h.Consensus.ChiefConfirm(r.Context(), principal(r), id, in.IsConfirmed, in.Notes)
	if err != nil {
		workflowError("failed to confirm feedback", w, err)
		return
	}
	writeInterrogation(w, http.StatusOK, i)
}
