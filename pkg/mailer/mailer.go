package mailer

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"
	"github.com/rs/zerolog"
)

// Message is a single HTML email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Enabled reports whether enough settings are present to dial the relay.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// SMTPMailer sends mail through an SMTP relay using STARTTLS.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *mail.Dialer
	logger zerolog.Logger
}

// NewSMTPMailer builds a mailer for the relay described by cfg.
func NewSMTPMailer(cfg SMTPConfig, logger zerolog.Logger) (*SMTPMailer, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("smtp host and sender must be provided")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	dialer.StartTLSPolicy = mail.MandatoryStartTLS
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	return &SMTPMailer{
		cfg:    cfg,
		dialer: dialer,
		logger: logger.With().Str("component", "smtp_mailer").Logger(),
	}, nil
}

// Send delivers msg. Context cancellation is honoured before dialing only.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.dialer.DialAndSend(buildMessage(m.cfg.From, msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	m.logger.Info().Strs("to", msg.To).Str("subject", msg.Subject).Msg("mail sent")
	return nil
}

func buildMessage(from string, msg Message) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return m
}

// LogMailer records messages in the log instead of sending them.
type LogMailer struct {
	logger zerolog.Logger
}

// NewLogMailer constructs a logging mailer.
func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "log_mailer").Logger()}
}

// Send logs the message and reports success.
func (l *LogMailer) Send(_ context.Context, msg Message) error {
	l.logger.Info().Strs("to", msg.To).Str("subject", msg.Subject).Msg("mail delivery skipped, smtp not configured")
	return nil
}
