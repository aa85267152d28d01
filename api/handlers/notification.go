package handlers

import (
	"net/http"

	"github.com/linesmerrill/case-portal-api/notify"
)

// Events exported for testing purposes
type Events struct {
	Hub *notify.Hub
}

// EventsWebSocketHandler subscribes the caller to the workflow events that concern them
func (e Events) EventsWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	e.Hub.ServeWS(w, r, principal(r).UserID)
}
