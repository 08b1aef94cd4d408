package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/nta-library/library-service/pkg/logger"
)

// SMTPConfig carries mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers email through a relay using plain SMTP auth.
type SMTPSender struct {
	cfg SMTPConfig
}

var _ EmailSender = (*SMTPSender)(nil)

// NewSMTPSender constructs a relay-backed sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers one message. The context is honoured only before dialing;
// net/smtp has no per-operation deadline hooks.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. Used in
// development and when no relay is configured.
type LogSender struct {
	log *logger.Logger
}

var _ EmailSender = (*LogSender)(nil)

// NewLogSender constructs a log-backed sender.
func NewLogSender(log *logger.Logger) *LogSender {
	if log == nil {
		log = logger.NewDefault("mail")
	}
	return &LogSender{log: log}
}

// Send logs the message instead of sending it.
func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.log.WithField("to", to).
		WithField("subject", subject).
		WithField("bytes", len(body)).
		Info("email suppressed, logging only")
	return nil
}
