package service

import (
	"context"
	"fmt"

	mail "github.com/go-mail/mail/v2"
	"github.com/sirupsen/logrus"
)

type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends notification emails over SMTP with STARTTLS.
type SMTPMailer struct {
	dialer *mail.Dialer
	from   string
	log    logrus.FieldLogger
}

func NewSMTPMailer(opts SMTPOptions, log logrus.FieldLogger) (*SMTPMailer, error) {
	if opts.Host == "" || opts.From == "" {
		return nil, fmt.Errorf("SMTP_HOST and SMTP_FROM are required")
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	d := mail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password)
	if opts.Username != "" {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	return &SMTPMailer{dialer: d, from: opts.From, log: log}, nil
}

func (m *SMTPMailer) message(to, subject, body string) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return msg
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(m.message(to, subject, body)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	m.log.WithFields(logrus.Fields{"to": to, "subject": subject}).Debug("mail sent")
	return nil
}
