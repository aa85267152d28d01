package notify

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linesmerrill/case-portal-api/models"
)

// Metrics counts events by type and destination status
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics registers the event counter with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "case_portal_workflow_events_total",
		Help: "Workflow events emitted, by type and target status",
	}, []string{"type", "to"})
	if err := reg.Register(events); err != nil {
		return nil, err
	}
	return &Metrics{events: events}, nil
}

// Notify counts ev
func (m *Metrics) Notify(_ context.Context, ev models.Event) error {
	to := ""
	if ev.To.Valid() {
		to = ev.To.String()
	}
	m.events.WithLabelValues(string(ev.Type), to).Inc()
	return nil
}
