// Package notify delivers workflow events to their consumers: a durable RabbitMQ queue,
// connected websocket clients and email.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/linesmerrill/case-portal-api/models"
)

// Notifier consumes one event
type Notifier interface {
	Notify(ctx context.Context, ev models.Event) error
}

// Nop drops every event
type Nop struct{}

// Notify does nothing
func (Nop) Notify(context.Context, models.Event) error { return nil }

// Fanout delivers every event to each sink. A failing sink does not stop the others.
type Fanout []Notifier

// Notify delivers ev to every sink and joins their errors
func (f Fanout) Notify(ctx context.Context, ev models.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dedupe forwards each event id once per TTL window
type Dedupe struct {
	next Notifier
	seen *cache.Cache
	ttl  time.Duration
}

// NewDedupe wraps next, remembering event ids for ttl
func NewDedupe(next Notifier, ttl time.Duration) *Dedupe {
	return &Dedupe{
		next: next,
		seen: cache.New(ttl, 2*ttl),
		ttl:  ttl,
	}
}

// Notify forwards ev unless its id was seen within the window. A failed delivery
// forgets the id so a redelivery can go through.
func (d *Dedupe) Notify(ctx context.Context, ev models.Event) error {
	if ev.ID == "" {
		return d.next.Notify(ctx, ev)
	}
	if err := d.seen.Add(ev.ID, struct{}{}, d.ttl); err != nil {
		zap.S().Debugw("dropping duplicate event", "eventId", ev.ID, "type", ev.Type)
		return nil
	}
	if err := d.next.Notify(ctx, ev); err != nil {
		d.seen.Delete(ev.ID)
		return err
	}
	return nil
}
