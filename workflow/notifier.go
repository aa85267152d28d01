package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linesmerrill/case-portal-api/models"
)

// Notifier consumes events after a transition has committed
type Notifier interface {
	Notify(ctx context.Context, ev models.Event) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, ev models.Event) error

// Notify calls f
func (f NotifierFunc) Notify(ctx context.Context, ev models.Event) error {
	return f(ctx, ev)
}

func newEvent(t models.EventType, entityID, actor string, at time.Time) models.Event {
	return models.Event{
		ID:         uuid.New().String(),
		Type:       t,
		EntityID:   entityID,
		Actor:      actor,
		OccurredAt: at.UTC(),
	}
}

// EventTimeout bounds the delivery of one event
const EventTimeout = 15 * time.Second

// emit never fails the caller: the transition is already durable. Delivery outlives
// the caller's context, so a cancelled request still announces what it committed.
func (d *Deps) emit(ctx context.Context, ev models.Event) {
	if d.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), EventTimeout)
	defer cancel()
	if err := d.Notifier.Notify(ctx, ev); err != nil {
		zap.S().Errorw("failed to deliver workflow event",
			"eventId", ev.ID,
			"type", ev.Type,
			"entityId", ev.EntityID,
			"error", err,
		)
	}
}
