package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/case-portal-api/api"
	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/config"
	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/workflow"
)

const maxRequestBytes = 1 << 20

// VoidedCaseResponse is returned with 422 when a resubmission voids the case
type VoidedCaseResponse struct {
	Response models.MessageError `json:"response"`
	Case     *models.Case        `json:"case"`
}

func principal(r *http.Request) authority.Principal {
	p, _ := api.PrincipalFrom(r.Context())
	return p
}

// objectID reads a hex id route variable, writing 400 when it is malformed
func objectID(w http.ResponseWriter, r *http.Request, key string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)[key])
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return primitive.NilObjectID, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

// statusFor maps workflow error kinds onto http statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrResubmissionLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrImmutableFieldViolation),
		errors.Is(err, workflow.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// workflowError writes err with the status its kind maps to
func workflowError(message string, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		config.ErrorStatus(message, status, w, err)
		return
	}
	zap.S().Infow(message, "status", status, "error", err)
	writeJSON(w, status, models.ErrorMessageResponse{
		Response: models.MessageError{
			Message: message,
			Error:   err.Error(),
			Code:    strconv.Itoa(status),
		},
	})
}

// queryInt reads a positive integer query parameter, falling back to def
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}
