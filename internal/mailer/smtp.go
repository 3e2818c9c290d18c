package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/FACorreiaa/go-ohms-auth/config"
)

var _ EmailNotifier = (*SMTPNotifier)(nil)

// SMTPNotifier delivers mail through an authenticated SMTP relay.
type SMTPNotifier struct {
	logger *slog.Logger
	cfg    config.MailConfig
}

func NewSMTPNotifier(cfg config.MailConfig, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{logger: logger, cfg: cfg}
}

func (n *SMTPNotifier) message(recipient, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	l := n.logger.With(slog.String("method", "Send"), slog.String("recipient", recipient))

	msg, err := n.message(recipient, subject, htmlBody)
	if err != nil {
		return err
	}

	opts := []mail.Option{mail.WithPort(n.cfg.Port)}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}
	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		l.ErrorContext(ctx, "SMTP delivery failed", slog.Any("error", err))
		return fmt.Errorf("sending mail: %w", err)
	}
	l.InfoContext(ctx, "Mail sent", slog.String("subject", subject))
	return nil
}
