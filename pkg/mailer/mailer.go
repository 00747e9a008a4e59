package mailer

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/noah-isme/course-enrollment-api/pkg/config"
)

// Message is a single outgoing email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender sends mail through a gomail dialer.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// New returns an SMTP sender, or a logging sender when notifications are disabled.
func New(cfg config.NotificationsConfig, logger *zap.Logger) Sender {
	if !cfg.Enabled {
		if logger == nil {
			logger = zap.NewNop()
		}
		return LogSender{logger: logger}
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		from:   cfg.From,
	}
}

func (s *SMTPSender) Send(msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email %q: %w", msg.Subject, err)
	}
	return nil
}

// LogSender records messages instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

func (s LogSender) Send(msg Message) error {
	s.logger.Info("email suppressed", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}
