package notifxconsole

import (
	"context"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/Abraxas-365/keybridge/pkg/notifx"
)

// ConsoleProvider logs emails instead of sending them. Development only.
type ConsoleProvider struct{}

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

func (p *ConsoleProvider) SendEmail(ctx context.Context, msg notifx.EmailMessage, opts ...notifx.Option) error {
	so := notifx.ApplySendOptions(opts)

	logx.WithContext(ctx).WithFields(logx.Fields{
		"from":    msg.From,
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
		"kind":    so.Tags["kind"],
	}).Info("notifx/console: email sent (dev mode)")

	if msg.HTMLBody != "" {
		logx.Debugf("notifx/console: html body:\n%s", msg.HTMLBody)
	}
	return nil
}
