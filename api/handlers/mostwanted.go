package handlers

import (
	"net/http"

	"github.com/linesmerrill/case-portal-api/pursuit"
	"github.com/linesmerrill/case-portal-api/workflow"
)

// MostWanted exported for testing purposes
type MostWanted struct {
	Board *workflow.PursuitBoard
}

// MostWantedResponse is one page of the ranked board
type MostWantedResponse struct {
	Entries []pursuit.Entry `json:"entries"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
}

// FetchMostWantedHandler returns a page of the most wanted board, highest score first
func (mw MostWanted) FetchMostWantedHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	if limit > workflow.MaxPageLimit {
		limit = workflow.MaxPageLimit
	}
	page := queryInt(r, "page", 1)

	entries, err := mw.Board.MostWanted(r.Context(), principal(r))
	if err != nil {
		workflowError("failed to get most wanted", w, err)
		return
	}

	start := len(entries)
	if page-1 < (len(entries)+limit-1)/limit {
		start = (page - 1) * limit
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	writeJSON(w, http.StatusOK, MostWantedResponse{
		Entries: append([]pursuit.Entry{}, entries[start:end]...),
		Total:   len(entries),
		Page:    page,
		Limit:   limit,
	})
}
