package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/case-portal-api/models"
	templates "github.com/linesmerrill/case-portal-api/templates/html"
)

// Sender sends one message. *sendgrid.Client satisfies it.
type Sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// UserLookup resolves a user id to a user record
type UserLookup interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Mailer emails the case creator when their case is solved, sent back or cancelled
type Mailer struct {
	sender  Sender
	users   UserLookup
	from    *mail.Email
	baseURL string
}

// NewMailer returns a Mailer sending through SendGrid with apiKey
func NewMailer(apiKey, from, baseURL string, users UserLookup) *Mailer {
	return NewMailerWithSender(sendgrid.NewSendClient(apiKey), from, baseURL, users)
}

// NewMailerWithSender returns a Mailer sending through s
func NewMailerWithSender(s Sender, from, baseURL string, users UserLookup) *Mailer {
	return &Mailer{
		sender:  s,
		users:   users,
		from:    mail.NewEmail("Case Portal", from),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Notify sends the status email for ev. Events that do not concern a citizen are ignored.
func (m *Mailer) Notify(ctx context.Context, ev models.Event) error {
	if ev.Type != models.EventCaseStatusChanged || len(ev.Recipients) == 0 {
		return nil
	}
	caseURL := ""
	if m.baseURL != "" {
		caseURL = m.baseURL + "/cases/" + ev.EntityID
	}
	subject, htmlContent, ok := templates.RenderCaseStatusEmail(ev.EntityID, ev.To, caseURL)
	if !ok {
		return nil
	}

	// the creator is always the first recipient
	id, err := primitive.ObjectIDFromHex(ev.Recipients[0])
	if err != nil {
		zap.S().Infow("skipping email for non user recipient", "recipient", ev.Recipients[0], "eventId", ev.ID)
		return nil
	}
	user, err := m.users.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load recipient %s: %w", id.Hex(), err)
	}
	if user.Details.Email == "" {
		return nil
	}

	to := mail.NewEmail(user.Details.Name, user.Details.Email)
	plainText := fmt.Sprintf("%s. Case %s is now %s.", subject, ev.EntityID, ev.To)
	message := mail.NewSingleEmail(m.from, subject, to, plainText, htmlContent)
	response, err := m.sender.Send(message)
	if err != nil {
		zap.S().Errorw("failed to send case status email", "error", err, "to", user.Details.Email)
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", user.Details.Email)
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	zap.S().Infow("case status email sent", "to", user.Details.Email, "caseId", ev.EntityID, "status", ev.To.String())
	return nil
}
