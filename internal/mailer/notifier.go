// Package mailer delivers outbound notifications. The auth subsystem only
// depends on EmailNotifier.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"
)

// EmailNotifier sends a single HTML email.
type EmailNotifier interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) error
}

const ResetSubject = "Password Reset Request - OHMS"

var resetTemplate = template.Must(template.New("reset").Parse(`<p>Hello {{.Username}},</p>
<p>To reset your password, visit the following link:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>This link expires in {{.Minutes}} minutes.</p>
<p>If you did not make this request then simply ignore this email and no changes will be made.</p>
`))

// RenderResetEmail builds the HTML body of the password reset email.
func RenderResetEmail(username, link string, ttl time.Duration) (string, error) {
	var buf bytes.Buffer
	err := resetTemplate.Execute(&buf, struct {
		Username string
		Link     string
		Minutes  int
	}{username, link, int(ttl.Minutes())})
	if err != nil {
		return "", fmt.Errorf("rendering reset email: %w", err)
	}
	return buf.String(), nil
}

var _ EmailNotifier = (*LogNotifier)(nil)

// LogNotifier records that a message would have been sent. Used when SMTP
// is disabled. The body is not logged because it carries reset links.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, recipient, subject, _ string) error {
	n.logger.InfoContext(ctx, "Mail delivery disabled, message dropped",
		slog.String("recipient", recipient),
		slog.String("subject", subject),
	)
	return nil
}
