package usersrv

import (
	"context"
	"errors"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/jobx"
	"github.com/Abraxas-365/keybridge/pkg/kernel"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/Abraxas-365/keybridge/pkg/ptrx"
)

// placeholderName fills first/last name when an OAuth profile has none.
const placeholderName = "."

type provisionRequest struct {
	Username      string
	Email         string
	Password      string
	FirstName     string
	LastName      string
	Provider      iam.SSOProvider
	EmailVerified bool
}

// Register creates a password account in Keycloak and locally, then mails
// an activation link. A mail failure does not fail registration.
func (s *UserService) Register(ctx context.Context, reg user.Registration) (*user.User, error) {
	if err := reg.Validate(); err != nil {
		s.audit.LogRegistration(ctx, reg.Email, "password", false, "validation")
		return nil, err
	}

	if err := s.ensureAvailable(ctx, reg.Email, reg.Username); err != nil {
		s.audit.LogRegistration(ctx, reg.Email, "password", false, errx.CodeOf(err))
		return nil, err
	}

	u, err := s.provision(ctx, provisionRequest{
		Username:  reg.Username,
		Email:     reg.Email,
		Password:  reg.Password,
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
	})
	if err != nil {
		s.audit.LogRegistration(ctx, reg.Email, "password", false, errx.CodeOf(err))
		return nil, err
	}

	if err := s.sendActivation(ctx, u); err != nil {
		logx.WithContext(ctx).WithError(err).WithField("email", u.Email).
			Error("registration: activation mail not sent")
	}

	s.audit.LogRegistration(ctx, u.Email, "password", true, "")
	return u, nil
}

// ensureAvailable rejects an email or username already held locally,
// checking email first.
func (s *UserService) ensureAvailable(ctx context.Context, email, username string) error {
	existing, err := s.users.FindByEmailOrUsername(ctx, email, username)
	if errx.IsCode(err, iam.CodeUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Email == user.NormalizeEmail(email) {
		return iam.ErrDuplicateEmail()
	}
	return iam.ErrDuplicateUsername()
}

// ProvisionSSOUser creates an account for an OAuth identity, using the
// shared default password. Keycloak marks the email verified since the
// OAuth provider vouched for it.
func (s *UserService) ProvisionSSOUser(ctx context.Context, identity SSOIdentity) (*user.User, error) {
	password, err := s.settings.Get(ctx, user.SettingPasswordDefault)
	if err != nil {
		return nil, err
	}

	u, err := s.provision(ctx, provisionRequest{
		Username:      identity.Username,
		Email:         identity.Email,
		Password:      password,
		FirstName:     orPlaceholder(identity.FirstName),
		LastName:      orPlaceholder(identity.LastName),
		Provider:      identity.Provider,
		EmailVerified: true,
	})
	s.audit.LogRegistration(ctx, identity.Email, strings.ToLower(string(identity.Provider)), err == nil, errx.CodeOf(err))
	return u, err
}

// SSOIdentity is the account an OAuth profile maps to.
type SSOIdentity struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Provider  iam.SSOProvider
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return placeholderName
	}
	return s
}

// provision runs the create-external, create-local, back-reference saga.
// A delayed reconcile job is enqueued before the first write so a crash
// mid-way is repaired; a failed step undoes the earlier ones before the
// error is returned.
func (s *UserService) provision(ctx context.Context, req provisionRequest) (*user.User, error) {
	req.Username = user.NormalizeUsername(req.Username)
	intent := ReconcileIntent{Username: req.Username, Email: user.NormalizeEmail(req.Email)}
	if err := s.scheduleReconcile(ctx, intent, true); err != nil {
		logx.WithContext(ctx).WithError(err).WithField("username", req.Username).
			Warn("provision: reconcile intent not recorded")
	}

	kcID, err := s.idp.CreateUser(ctx, keycloak.UserRepresentation{
		Username:      req.Username,
		Email:         intent.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Enabled:       ptrx.Bool(true),
		EmailVerified: ptrx.Bool(req.EmailVerified),
		Credentials:   []keycloak.Credential{keycloak.PasswordCredential(req.Password)},
	})
	if err != nil {
		if keycloak.IsConflict(err) {
			return nil, conflictError(err)
		}
		return nil, keycloak.ProviderError(err)
	}

	u := user.NewUser(req.Email, req.Username, req.Provider)
	u.KeycloakUserID = kernel.IdentityID(kcID)

	if err := s.users.Create(ctx, u); err != nil {
		s.compensate(ctx, intent, "delete external user", func(ctx context.Context) error {
			return s.idp.DeleteUser(ctx, kcID)
		})
		return nil, err
	}

	if err := s.idp.LinkLocalUser(ctx, kcID, u.ID.String()); err != nil {
		s.compensate(ctx, intent, "delete local and external user", func(ctx context.Context) error {
			return errors.Join(s.users.Delete(ctx, u.ID), s.idp.DeleteUser(ctx, kcID))
		})
		return nil, keycloak.ProviderError(err)
	}

	return u, nil
}

// compensate runs undo detached from request cancellation. If undo fails
// the identity is handed to an immediate reconcile job.
func (s *UserService) compensate(ctx context.Context, intent ReconcileIntent, what string, undo func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	log := logx.WithContext(ctx).WithFields(logx.Fields{"username": intent.Username, "step": what})

	if err := undo(ctx); err != nil {
		log.WithError(err).Error("provision: compensation failed")
		if err := s.scheduleReconcile(ctx, intent, false); err != nil {
			log.WithError(err).Error("provision: reconcile not scheduled, manual cleanup needed")
		}
		return
	}
	log.Warn("provision: rolled back partial identity")
}

func (s *UserService) scheduleReconcile(ctx context.Context, intent ReconcileIntent, delayed bool) error {
	if s.jobs == nil {
		return errx.New("no job queue configured", errx.TypeInternal)
	}
	job, err := jobx.NewJob(JobReconcileIdentity, "", intent)
	if err != nil {
		return err
	}
	if delayed {
		_, err = s.jobs.EnqueueDelayed(ctx, job, s.cfg.ReconcileDelay)
	} else {
		_, err = s.jobs.Enqueue(ctx, job)
	}
	return err
}

// conflictError maps a Keycloak 409 to the matching duplicate error.
func conflictError(err error) error {
	var e *errx.Error
	if errors.As(err, &e) {
		if body, _ := e.Details["body"].(string); strings.Contains(strings.ToLower(body), "email") {
			return iam.ErrDuplicateEmail()
		}
	}
	return iam.ErrDuplicateUsername()
}

func (s *UserService) sendActivation(ctx context.Context, u *user.User) error {
	token, err := s.tokens.Issue(u.Email, auth.PurposeActivation)
	if err != nil {
		return err
	}
	return s.mailer.SendActivation(ctx, u.Email, u.Username, token)
}

// VerifyActivation marks the Keycloak user of a valid activation token as
// email-verified.
func (s *UserService) VerifyActivation(ctx context.Context, token string) error {
	email, err := s.tokens.Verify(token, auth.PurposeActivation)
	if err != nil {
		s.audit.LogActivation(ctx, "", false)
		return err
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.audit.LogActivation(ctx, email, false)
		return err
	}
	if !u.IsLinked() {
		s.audit.LogActivation(ctx, email, false)
		return iam.ErrUserNotFound().WithDetail("reason", "identity not linked")
	}

	if err := s.idp.SetEmailVerified(ctx, u.KeycloakUserID.String(), true); err != nil {
		s.audit.LogActivation(ctx, email, false)
		return keycloak.ProviderError(err)
	}

	s.audit.LogActivation(ctx, email, true)
	return nil
}

// ResendActivation mails a fresh activation link to an unverified password
// account. Unknown, SSO and already verified accounts are silently skipped.
func (s *UserService) ResendActivation(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return iam.ErrValidation("Missing required information.")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if errx.IsCode(err, iam.CodeUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if u.IsSSO() || !u.IsLinked() {
		return nil
	}

	ext, err := s.idp.GetUser(ctx, u.KeycloakUserID.String())
	if err != nil {
		return keycloak.ProviderError(err)
	}
	if ptrx.BoolValue(ext.EmailVerified) {
		return nil
	}
	return s.sendActivation(ctx, u)
}
