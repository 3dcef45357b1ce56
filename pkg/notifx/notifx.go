package notifx

import (
	"context"
	"errors"

	"github.com/Abraxas-365/keybridge/pkg/errx"
)

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error
}

// Client validates messages, renders templates and hands mail to a provider.
type Client struct {
	provider    EmailSender
	templates   *TemplateRegistry
	defaultFrom string
}

// NewClient creates a notification client sending through provider.
func NewClient(provider EmailSender, opts ...ClientOption) *Client {
	c := &Client{
		provider:  provider,
		templates: NewTemplateRegistry(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendEmail validates msg and sends it through the provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error {
	if len(msg.To) == 0 {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	if msg.Subject == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	if msg.From == "" {
		msg.From = c.defaultFrom
	}

	if err := c.provider.SendEmail(ctx, msg, opts...); err != nil {
		var coded *errx.Error
		if errors.As(err, &coded) {
			return err
		}
		return notifxErrors.NewWithCause(ErrSendFailed, err).WithDetail("to", msg.FirstRecipient())
	}
	return nil
}

// RegisterTemplate parses and stores a named template.
func (c *Client) RegisterTemplate(name, tmpl string) error {
	return c.templates.Register(name, tmpl)
}

// SendTemplatedEmail renders templateName with data into msg.HTMLBody and sends it.
func (c *Client) SendTemplatedEmail(ctx context.Context, templateName string, data any, msg EmailMessage, opts ...Option) error {
	body, err := c.templates.Render(templateName, data)
	if err != nil {
		return err
	}

	msg.HTMLBody = body
	return c.SendEmail(ctx, msg, opts...)
}
