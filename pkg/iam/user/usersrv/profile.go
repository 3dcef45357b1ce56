package usersrv

import (
	"context"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
)

// GetProfile merges the local record for email with the names Keycloak
// holds.
func (s *UserService) GetProfile(ctx context.Context, email string) (*user.Profile, error) {
	u, err := s.users.FindByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}

	var first, last string
	if u.IsLinked() {
		ext, err := s.idp.GetUser(ctx, u.KeycloakUserID.String())
		if err != nil {
			return nil, keycloak.ProviderError(err)
		}
		first, last = ext.FirstName, ext.LastName
	}
	return user.NewProfile(u, first, last), nil
}

// UpdateProfile writes names to Keycloak and the remaining fields locally.
// Username and email never change.
func (s *UserService) UpdateProfile(ctx context.Context, email string, in user.ProfileUpdate) (*user.Profile, error) {
	u, err := s.users.FindByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}

	if in.ChangesNames() {
		if !u.IsLinked() {
			return nil, iam.ErrUserNotFound().WithDetail("reason", "identity not linked")
		}
		ext, err := s.idp.GetUser(ctx, u.KeycloakUserID.String())
		if err != nil {
			return nil, keycloak.ProviderError(err)
		}
		if in.FirstName != nil {
			ext.FirstName = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			ext.LastName = strings.TrimSpace(*in.LastName)
		}
		if err := s.idp.UpdateUser(ctx, ext.ID, *ext); err != nil {
			return nil, keycloak.ProviderError(err)
		}
	}

	u.ApplyProfile(in)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, u.Email)
}

// UpgradeVIP assigns the VIP realm role to the identity behind email.
// source names the caller for auditing, e.g. "admin" or "momo".
func (s *UserService) UpgradeVIP(ctx context.Context, email, source string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return iam.ErrValidation("Missing required information.")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.audit.LogRoleGranted(ctx, email, s.cfg.VIPRole, source, false)
		return err
	}
	if !u.IsLinked() {
		s.audit.LogRoleGranted(ctx, email, s.cfg.VIPRole, source, false)
		return iam.ErrUserNotFound().WithDetail("reason", "identity not linked")
	}

	if err := s.idp.AssignRealmRole(ctx, u.KeycloakUserID.String(), s.cfg.VIPRole); err != nil {
		s.audit.LogRoleGranted(ctx, email, s.cfg.VIPRole, source, false)
		return keycloak.ProviderError(err)
	}
	s.audit.LogRoleGranted(ctx, email, s.cfg.VIPRole, source, true)
	return nil
}
