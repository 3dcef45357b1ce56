package usersrv

import (
	"context"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
)

// Login checks credentials against Keycloak and returns its token bundle.
// Unless bypassSSOCheck is set, the identifier must name a local password
// account. A token whose email_verified claim is false is withheld.
func (s *UserService) Login(ctx context.Context, identifier, password string, bypassSSOCheck bool) (*keycloak.TokenBundle, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, iam.ErrValidation("Missing required information.")
	}

	username := identifier
	if !bypassSSOCheck {
		u, err := s.users.FindByIdentifier(ctx, identifier)
		if errx.IsCode(err, iam.CodeUserNotFound) {
			s.audit.LogLoginAttempt(ctx, identifier, "password", false, "unknown_user")
			return nil, iam.ErrInvalidCredentials()
		}
		if err != nil {
			return nil, err
		}
		if u.IsSSO() {
			s.audit.LogLoginAttempt(ctx, identifier, "password", false, "sso_account")
			return nil, iam.ErrInvalidCredentials()
		}
		username = u.Username
	}

	method := "password"
	if bypassSSOCheck {
		method = "sso"
	}

	bundle, err := s.idp.PasswordGrant(ctx, username, password)
	if keycloak.IsInvalidGrant(err) {
		s.audit.LogLoginAttempt(ctx, identifier, method, false, "invalid_grant")
		return nil, iam.ErrInvalidCredentials()
	}
	if err != nil {
		s.audit.LogLoginAttempt(ctx, identifier, method, false, "provider")
		return nil, keycloak.ProviderError(err)
	}

	claims, err := keycloak.DecodeClaims(bundle.AccessToken)
	if err != nil {
		return nil, keycloak.ProviderError(err)
	}
	if !claims.EmailVerified {
		s.audit.LogLoginAttempt(ctx, identifier, method, false, "not_verified")
		return nil, iam.ErrAccountNotVerified()
	}

	s.audit.LogLoginAttempt(ctx, identifier, method, true, "")
	return bundle, nil
}

// LoginSSO mints tokens for an OAuth-provisioned account using the shared
// default password.
func (s *UserService) LoginSSO(ctx context.Context, u *user.User) (*keycloak.TokenBundle, error) {
	password, err := s.settings.Get(ctx, user.SettingPasswordDefault)
	if err != nil {
		return nil, err
	}
	return s.Login(ctx, u.Username, password, true)
}
