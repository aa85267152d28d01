// Package payments turns payment provider callbacks into settlement results
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/workflow"
)

const maxBodyBytes = int64(65536)

// Checkout session metadata keys set when the payment link is created
const (
	MetadataVerdictID = "verdict_id"
	MetadataKind      = "kind"
)

// ErrIgnored is returned by Parse for events that carry no payment result
var ErrIgnored = errors.New("event ignored")

// Reporter records the outcome of a payment attempt
type Reporter interface {
	ReportPaymentResult(ctx context.Context, id primitive.ObjectID, kind models.PaymentKind, trackingCode string, success bool) (*models.Verdict, error)
}

// Result is a payment outcome extracted from a webhook event
type Result struct {
	VerdictID    primitive.ObjectID
	Kind         models.PaymentKind
	TrackingCode string
	Success      bool
}

// StripeWebhook verifies Stripe checkout events and reports them to the settlement service
type StripeWebhook struct {
	secret   string
	reporter Reporter
}

// NewStripeWebhook returns a webhook verifying signatures with secret
func NewStripeWebhook(secret string, r Reporter) *StripeWebhook {
	return &StripeWebhook{secret: secret, reporter: r}
}

// Parse verifies the signature header and extracts the payment result
func (s *StripeWebhook) Parse(payload []byte, signature string) (*Result, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook: %w", err)
	}

	var success bool
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		success = true
	case "checkout.session.async_payment_failed":
		success = false
	default:
		return nil, ErrIgnored
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session: %w", err)
	}
	// a completed session with a delayed method is settled by the async events
	if event.Type == "checkout.session.completed" && session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, ErrIgnored
	}

	id, err := primitive.ObjectIDFromHex(session.Metadata[MetadataVerdictID])
	if err != nil {
		return nil, fmt.Errorf("checkout session %s has no valid verdict id", session.ID)
	}
	return &Result{
		VerdictID:    id,
		Kind:         models.PaymentKind(session.Metadata[MetadataKind]),
		TrackingCode: session.ID,
		Success:      success,
	}, nil
}

// ServeHTTP handles POST /api/v1/payments/stripe/webhook
func (s *StripeWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		zap.S().Errorw("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	res, err := s.Parse(payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, ErrIgnored) {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		zap.S().Errorw("rejected stripe webhook", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	v, err := s.reporter.ReportPaymentResult(r.Context(), res.VerdictID, res.Kind, res.TrackingCode, res.Success)
	if err != nil {
		zap.S().Errorw("failed to report payment", "verdictId", res.VerdictID.Hex(), "trackingCode", res.TrackingCode, "error", err)
		// only transient failures are worth a redelivery
		var werr *workflow.Error
		if errors.As(err, &werr) && !errors.Is(err, workflow.ErrConflict) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	zap.S().Infow("payment reported", "verdictId", v.ID.Hex(), "kind", res.Kind, "success", res.Success)
	w.WriteHeader(http.StatusOK)
}
