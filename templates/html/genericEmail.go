package templates

import (
	"fmt"
	"html"
	"strings"

	"github.com/linesmerrill/case-portal-api/models"
)

var statusSubjects = map[models.CaseStatus]string{
	models.StatusSolved:            "Your case has been solved",
	models.StatusNeedsResubmission: "Your case needs changes",
	models.StatusCancelled:         "Your case has been closed",
}

var statusBodies = map[models.CaseStatus]string{
	models.StatusSolved:            "The department has closed case %s as solved. A verdict may follow for any suspects.",
	models.StatusNeedsResubmission: "Case %s was sent back for changes. Review the notes on the case, update it and resubmit.",
	models.StatusCancelled:         "Case %s has been cancelled and can no longer be changed.",
}

// RenderCaseStatusEmail builds the subject and branded HTML sent to a citizen when their
// case moves to status. ok is false for statuses that do not warrant an email.
func RenderCaseStatusEmail(caseID string, status models.CaseStatus, caseURL string) (subject, body string, ok bool) {
	subject, ok = statusSubjects[status]
	if !ok {
		return "", "", false
	}
	text := fmt.Sprintf(statusBodies[status], caseID)
	if caseURL != "" {
		text += "\n\nView your case: " + caseURL
	}
	return subject, RenderGenericEmail(subject, text), true
}

// RenderGenericEmail generates branded HTML for a generic email.
// The subject is displayed in the header banner, and bodyContent is plain text
// that gets HTML-escaped and has newlines converted to <br> tags.
func RenderGenericEmail(subject, bodyContent string) string {
	escaped := html.EscapeString(bodyContent)
	htmlBody := strings.ReplaceAll(escaped, "\n", "<br>")

	safeSubject := html.EscapeString(subject)

	return fmt.Sprintf(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, minimum-scale=1, maximum-scale=1">
  <title>%s</title>
  <style type="text/css">
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 0; background-color: #f3f4f6; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; }
    .header { background-color: #1e3a5f; padding: 32px 30px; text-align: center; }
    .header h1 { color: #fff; margin: 0; font-size: 22px; font-weight: 700; }
    .content { padding: 32px 30px; color: #1f2937; line-height: 1.6; font-size: 15px; }
    .footer { padding: 24px; text-align: center; color: #6b7280; font-size: 12px; border-top: 1px solid #e5e7eb; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>%s</h1>
    </div>
    <div class="content">
      %s
    </div>
    <div class="footer">
      <p>This message was sent by the case portal. Do not reply to this email.</p>
    </div>
  </div>
</body>
</html>`, safeSubject, safeSubject, htmlBody)
}
