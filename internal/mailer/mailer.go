// Package mailer sends outbound notification emails.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages. Implementations make a single attempt.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Drivers selectable from configuration.
const (
	DriverLog    = "log"
	DriverResend = "resend"
	DriverSMTP   = "smtp"
)

// ErrUnknownDriver is returned by New for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown mail driver")

// Config selects and configures a Sender.
type Config struct {
	Driver       string
	From         string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// New builds the Sender named by cfg.Driver.
func New(cfg Config, logger *slog.Logger) (Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "", DriverLog:
		return NewLogSender(logger), nil
	case DriverResend:
		if cfg.ResendAPIKey == "" {
			return nil, errors.New("resend driver requires an API key")
		}
		return NewResendSender(cfg.ResendAPIKey, cfg.From), nil
	case DriverSMTP:
		if cfg.SMTPHost == "" {
			return nil, errors.New("smtp driver requires a host")
		}
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.From), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "mailer")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "email",
		"to", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
	)
	return nil
}
