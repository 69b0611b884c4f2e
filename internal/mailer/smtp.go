package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPSender sends through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	if port == 0 {
		port = 587
	}
	return &SMTPSender{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

func (s *SMTPSender) message(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	return m
}

// Send dials the relay for each message. gomail has no context support, so
// ctx is only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(s.message(msg)); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}
