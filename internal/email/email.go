// Package email sends operator-facing notifications over SMTP.
package email

import (
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/afp-labs/mailgrant/internal/observability/logger"
	"github.com/afp-labs/mailgrant/internal/util"
)

// Sender delivers one message. Implemented by SMTPSender in production and
// by fakes in tests.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// SMTPSender sends mail through a single configured SMTP relay.
type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool

	log *zap.Logger
}

func NewSMTPSender(host string, port int, from, user, pass, tlsMode string) *SMTPSender {
	if tlsMode == "" {
		tlsMode = "auto"
	}
	return &SMTPSender{
		Host:    host,
		Port:    port,
		From:    from,
		User:    user,
		Pass:    pass,
		TLSMode: tlsMode,
		log:     logger.Named("smtp"),
	}
}

// Send delivers a multipart/alternative message (text + html).
func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	if textBody != "" {
		m.SetBody("text/plain", textBody)
	}
	if htmlBody != "" {
		if textBody == "" {
			m.SetBody("text/html", htmlBody)
		} else {
			m.AddAlternative("text/html", htmlBody)
		}
	}

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}

	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: s.InsecureSkipVerify}
	default:
		// "auto"/"starttls": go-mail negotiates STARTTLS when offered.
	}

	if err := d.DialAndSend(m); err != nil {
		s.log.Error("smtp send failed",
			logger.String("host", s.Host),
			logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}

	s.log.Debug("email sent", logger.String("to", util.MaskEmail(to)))
	return nil
}

// NopSender discards messages. Used when SMTP is not configured.
type NopSender struct{}

func (NopSender) Send(to, subject, htmlBody, textBody string) error { return nil }
