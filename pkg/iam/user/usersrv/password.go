package usersrv

import (
	"context"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
)

// ForgotPassword mails a reset link to a password account. The result is
// the same whether or not the account exists.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return iam.ErrValidation("Missing required information.")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if errx.IsCode(err, iam.CodeUserNotFound) {
		s.audit.LogPasswordReset(ctx, email, "request", false)
		return nil
	}
	if err != nil {
		return err
	}
	if u.IsSSO() {
		s.audit.LogPasswordReset(ctx, email, "request", false)
		return nil
	}

	token, err := s.tokens.Issue(u.Email, auth.PurposePasswordReset)
	if err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, u.Email, u.Username, token); err != nil {
		s.audit.LogPasswordReset(ctx, email, "request", false)
		return err
	}
	s.audit.LogPasswordReset(ctx, email, "request", true)
	return nil
}

// ResetPassword sets a new Keycloak password for the holder of a valid
// reset token.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" || password == "" {
		return iam.ErrValidation("Missing required information.")
	}

	email, err := s.tokens.Verify(token, auth.PurposePasswordReset)
	if err != nil {
		s.audit.LogPasswordReset(ctx, "", "complete", false)
		return err
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.audit.LogPasswordReset(ctx, email, "complete", false)
		return err
	}
	if !u.IsLinked() {
		return iam.ErrUserNotFound().WithDetail("reason", "identity not linked")
	}

	if err := s.idp.ResetPassword(ctx, u.KeycloakUserID.String(), password); err != nil {
		s.audit.LogPasswordReset(ctx, email, "complete", false)
		return keycloak.ProviderError(err)
	}
	s.audit.LogPasswordReset(ctx, email, "complete", true)
	return nil
}
