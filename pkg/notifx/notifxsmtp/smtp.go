package notifxsmtp

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/notifx"
	mail "github.com/go-mail/mail"
)

var smtpErrors = errx.NewRegistry("NOTIFX_SMTP")

var ErrSendFailed = smtpErrors.Register("SEND_FAILED", errx.TypeExternal, 500, "SMTP send email failed")

// Dialer sends prepared messages. *mail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPProvider implements notifx.EmailSender over SMTP with STARTTLS.
type SMTPProvider struct {
	dialer Dialer
	from   string
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

func NewSMTPProvider(cfg Config) *SMTPProvider {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	d.StartTLSPolicy = mail.MandatoryStartTLS

	from := cfg.From
	if cfg.FromName != "" {
		from = mail.NewMessage().FormatAddress(cfg.From, cfg.FromName)
	}
	return NewSMTPProviderWithDialer(d, from)
}

func NewSMTPProviderWithDialer(d Dialer, from string) *SMTPProvider {
	return &SMTPProvider{dialer: d, from: from}
}

func (p *SMTPProvider) SendEmail(ctx context.Context, msg notifx.EmailMessage, _ ...notifx.Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.dialer.DialAndSend(p.buildMessage(msg)); err != nil {
		return smtpErrors.NewWithCause(ErrSendFailed, err).
			WithDetail("to", strings.Join(msg.To, ","))
	}
	return nil
}

func (p *SMTPProvider) buildMessage(msg notifx.EmailMessage) *mail.Message {
	from := msg.From
	if from == "" {
		from = p.from
	}

	m := mail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}
	return m
}
