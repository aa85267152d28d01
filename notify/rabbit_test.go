package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/case-portal-api/models"
)

type fakeChannel struct {
	declareErr error
	failures   int
	declared   []string
	published  []amqp.Publishing
	keys       []string
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}
	if durable {
		f.declared = append(f.declared, name)
	}
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("channel closed")
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func newTestPublisher(t *testing.T, ch *fakeChannel) *RabbitPublisher {
	t.Helper()
	p, err := NewRabbitPublisher(ch, "case-events")
	require.NoError(t, err)
	p.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	return p
}

func TestRabbitPublisherDeclaresDurableQueue(t *testing.T) {
	ch := &fakeChannel{}
	newTestPublisher(t, ch)
	assert.Equal(t, []string{"case-events"}, ch.declared)
}

func TestRabbitPublisherDeclareError(t *testing.T) {
	_, err := NewRabbitPublisher(&fakeChannel{declareErr: errors.New("access refused")}, "case-events")
	assert.ErrorContains(t, err, "failed to declare queue")
}

func TestRabbitPublisherPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(t, ch)
	ev := statusEvent("e1")

	require.NoError(t, p.Notify(context.Background(), ev))
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, "case-events", ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "e1", msg.MessageId)
	assert.Equal(t, "CaseStatusChanged", msg.Type)

	var got models.Event
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, models.StatusSolved, got.To)
}

func TestRabbitPublisherRetries(t *testing.T) {
	ch := &fakeChannel{failures: 2}
	p := newTestPublisher(t, ch)

	require.NoError(t, p.Notify(context.Background(), statusEvent("e1")))
	assert.Len(t, ch.published, 1)
}

func TestRabbitPublisherGivesUp(t *testing.T) {
	ch := &fakeChannel{failures: 5}
	p := newTestPublisher(t, ch)

	err := p.Notify(context.Background(), statusEvent("e1"))
	assert.ErrorContains(t, err, "failed to publish event e1")
	assert.Empty(t, ch.published)
}
