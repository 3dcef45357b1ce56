package usersrv

import (
	"context"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/jobx"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/Abraxas-365/keybridge/pkg/notifx"
)

// Subjects of the mails the service sends.
const (
	SubjectActivation    = "Welcome to To Do App - Activate Your Account"
	SubjectPasswordReset = "Password Reset"
)

const activationTemplate = `<p>Hello {{.Username}},</p>
<p>Thanks for signing up. Activate your account within the next hour:</p>
<p><a href="{{.Link}}">Activate my account</a></p>
<p>If you did not create this account you can ignore this email.</p>`

const resetTemplate = `<p>Hello {{.Username}},</p>
<p>We received a request to reset your password. The link expires in one hour:</p>
<p><a href="{{.Link}}">Reset my password</a></p>
<p>If you did not ask for this you can ignore this email.</p>`

// TemplatedSender renders and sends a named template.
type TemplatedSender interface {
	SendTemplatedEmail(ctx context.Context, templateName string, data any, msg notifx.EmailMessage, opts ...notifx.Option) error
}

// RegisterTemplates adds the activation and reset templates to c.
func RegisterTemplates(c *notifx.Client) error {
	if err := c.RegisterTemplate(string(EmailActivation), activationTemplate); err != nil {
		return err
	}
	return c.RegisterTemplate(string(EmailPasswordReset), resetTemplate)
}

// Mailer builds activation and reset mails and hands them to the job
// queue, sending inline when the queue is unavailable.
type Mailer struct {
	sender         TemplatedSender
	jobs           jobx.JobEnqueuer
	authServiceURL string
	frontendURL    string
}

// NewMailer creates a Mailer. A nil jobs sends every mail inline. Base
// URLs lose any trailing slash.
func NewMailer(sender TemplatedSender, jobs jobx.JobEnqueuer, authServiceURL, frontendURL string) *Mailer {
	return &Mailer{
		sender:         sender,
		jobs:           jobs,
		authServiceURL: strings.TrimRight(authServiceURL, "/"),
		frontendURL:    strings.TrimRight(frontendURL, "/"),
	}
}

// ActivationLink is the backend URL that activates the account behind token.
func (m *Mailer) ActivationLink(token string) string {
	return m.authServiceURL + "/user/activate/" + token
}

// ResetLink is the frontend page where the user picks a new password.
func (m *Mailer) ResetLink(token string) string {
	return m.frontendURL + "/reset-password/" + token
}

// SendActivation queues the activation mail for to.
func (m *Mailer) SendActivation(ctx context.Context, to, username, token string) error {
	return m.dispatch(ctx, EmailJob{Kind: EmailActivation, To: to, Username: username, Link: m.ActivationLink(token)})
}

// SendPasswordReset queues the password reset mail for to.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, username, token string) error {
	return m.dispatch(ctx, EmailJob{Kind: EmailPasswordReset, To: to, Username: username, Link: m.ResetLink(token)})
}

func (m *Mailer) dispatch(ctx context.Context, mail EmailJob) error {
	if m.jobs != nil {
		job, err := jobx.NewJob(JobSendEmail, "", mail)
		if err == nil {
			if _, err = m.jobs.Enqueue(ctx, job); err == nil {
				return nil
			}
		}
		logx.WithContext(ctx).WithError(err).WithField("kind", mail.Kind).
			Warn("mailer: enqueue failed, sending inline")
	}
	return m.Deliver(ctx, mail)
}

// Deliver renders and sends mail. It is the JobSendEmail handler.
func (m *Mailer) Deliver(ctx context.Context, mail EmailJob) error {
	subject := SubjectActivation
	if mail.Kind == EmailPasswordReset {
		subject = SubjectPasswordReset
	} else if mail.Kind != EmailActivation {
		return errx.New("unknown email kind", errx.TypeValidation).WithDetail("kind", mail.Kind)
	}

	return m.sender.SendTemplatedEmail(ctx, string(mail.Kind), mail, notifx.EmailMessage{
		To:      []string{mail.To},
		Subject: subject,
	}, notifx.WithTags(map[string]string{"kind": string(mail.Kind)}))
}
