package handlers

import (
	"net/http"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/workflow"
)

// Verdict exported for testing purposes
type Verdict struct {
	Settlement *workflow.VerdictSettlement
	Authority  *authority.Authority
}

type bailFineRequest struct {
	BailAmount *int64 `json:"bailAmount"`
	FineAmount *int64 `json:"fineAmount"`
}

type paymentResultRequest struct {
	Kind         models.PaymentKind `json:"kind"`
	TrackingCode string             `json:"trackingCode"`
	Success      bool               `json:"success"`
}

// CreateVerdictHandler records a judge's verdict on a suspect of a solved case
func (v Verdict) CreateVerdictHandler(w http.ResponseWriter, r *http.Request) {
	var in workflow.VerdictInput
	if !decode(w, r, &in) {
		return
	}
	vd, err := v.Settlement.CreateVerdict(r.Context(), principal(r), in)
	if err != nil {
		workflowError("failed to create verdict", w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vd)
}

// VerdictByIDHandler returns a verdict by ID
func (v Verdict) VerdictByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "verdict_id")
	if !ok {
		return
	}
	vd, err := v.Settlement.GetVerdict(r.Context(), principal(r), id)
	if err != nil {
		workflowError("failed to get verdict by ID", w, err)
		return
	}
	writeJSON(w, http.StatusOK, vd)
}

// BailFineHandler sets the bail and fine amounts of a verdict
func (v Verdict) BailFineHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "verdict_id")
	if !ok {
		return
	}
	var in bailFineRequest
	if !decode(w, r, &in) {
		return
	}
	vd, err := v.Settlement.SetBailFine(r.Context(), principal(r), id, in.BailAmount, in.FineAmount)
	if err != nil {
		workflowError("failed to set bail and fine", w, err)
		return
	}
	writeJSON(w, http.StatusOK, vd)
}

// PaymentResultHandler lets the payment collaborator report the outcome of a payment
func (v Verdict) PaymentResultHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := objectID(w, r, "verdict_id")
	if !ok {
		return
	}
	if !v.Authority.HasPermission(principal(r), authority.ActionReportPayment, authority.Snapshot{}) {
		workflowError("failed to report payment", w, &workflow.Error{Kind: workflow.ErrPermissionDenied, Op: "ReportPaymentResult"})
		return
	}
	var in paymentResultRequest
	if !decode(w, r, &in) {
		return
	}
	vd, err := v.Settlement.ReportPaymentResult(r.Context(), id, in.Kind, in.TrackingCode, in.Success)
	if err != nil {
		workflowError("failed to report payment", w, err)
		return
	}
	writeJSON(w, http.StatusOK, vd)
}
