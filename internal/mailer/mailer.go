// Package mailer is the notification boundary. Sends are fire-and-forget from
// the caller's perspective: failures are logged and surfaced as warnings, never
// as a reason to undo a committed state change.
package mailer

import (
	"log"

	mail "github.com/wneessen/go-mail"
)

// Mailer sends one HTML email.
type Mailer interface {
	Send(to, subject, html string) error
}

// SMTPConfig carries the settings for the SMTP-backed mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers via go-mail over SMTP.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTP(cfg SMTPConfig) *SMTPMailer { return &SMTPMailer{cfg: cfg} }

func (m *SMTPMailer) Send(to, subject, html string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return err
	}
	return client.DialAndSend(msg)
}

// LogMailer is the dev/test fallback used when SMTP is not configured.
type LogMailer struct{}

func (LogMailer) Send(to, subject, _ string) error {
	log.Printf("[mail] to=%s subject=%q (smtp not configured, not sent)", to, subject)
	return nil
}
