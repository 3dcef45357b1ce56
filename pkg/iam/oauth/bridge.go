package oauth

import (
	"context"
	"strings"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/google/uuid"
)

// Accounts provisions and signs in OAuth accounts. usersrv.UserService
// implements it.
type Accounts interface {
	ProvisionSSOUser(ctx context.Context, identity usersrv.SSOIdentity) (*user.User, error)
	LoginSSO(ctx context.Context, u *user.User) (*keycloak.TokenBundle, error)
}

// Bridge turns a completed OAuth handshake into Keycloak tokens.
type Bridge struct {
	providers map[iam.SSOProvider]Provider
	users     user.UserRepository
	accounts  Accounts
	states    auth.StateStore
	stateTTL  time.Duration
}

func NewBridge(users user.UserRepository, accounts Accounts, states auth.StateStore, stateTTL time.Duration, providers ...Provider) *Bridge {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	b := &Bridge{
		providers: make(map[iam.SSOProvider]Provider, len(providers)),
		users:     users,
		accounts:  accounts,
		states:    states,
		stateTTL:  stateTTL,
	}
	for _, p := range providers {
		b.providers[p.Name()] = p
	}
	return b
}

func (b *Bridge) provider(name iam.SSOProvider) (Provider, error) {
	p, ok := b.providers[name]
	if !ok {
		return nil, ErrInvalidProvider(string(name))
	}
	return p, nil
}

// Begin records a single-use state value and returns the provider's
// consent URL.
func (b *Bridge) Begin(ctx context.Context, name iam.SSOProvider) (string, error) {
	p, err := b.provider(name)
	if err != nil {
		return "", err
	}

	state := uuid.NewString()
	if err := b.states.Save(ctx, state, auth.OAuthState{Provider: string(name), CreatedAt: time.Now().UTC()}, b.stateTTL); err != nil {
		return "", err
	}
	return p.AuthURL(state), nil
}

// Callback validates state, resolves the provider profile and signs the
// user in.
func (b *Bridge) Callback(ctx context.Context, name iam.SSOProvider, state, code string) (*keycloak.TokenBundle, error) {
	p, err := b.provider(name)
	if err != nil {
		return nil, err
	}

	saved, err := b.states.Consume(ctx, state)
	if err != nil {
		return nil, ErrInvalidState().WithCause(err)
	}
	if saved.Provider != string(name) {
		return nil, ErrInvalidState().WithDetail("reason", "provider mismatch")
	}

	profile, err := p.ResolveProfile(ctx, code)
	if err != nil {
		return nil, err
	}
	return b.SignIn(ctx, profile)
}

// SignIn reuses or provisions the account for profile, then logs it in.
// A password account holding the same username or email is never merged.
func (b *Bridge) SignIn(ctx context.Context, profile *Profile) (*keycloak.TokenBundle, error) {
	identity, err := IdentityFor(profile)
	if err != nil {
		return nil, err
	}
	log := logx.WithContext(ctx).WithFields(logx.Fields{"provider": profile.Provider, "username": identity.Username})

	u, err := b.match(ctx, identity)
	switch {
	case err == nil && !u.IsSSO():
		log.Warn("oauth: identity collides with a password account")
		return nil, iam.ErrPasswordAccountExists().WithDetail("provider", profile.Provider.DisplayName())
	case err == nil:
		log.Debug("oauth: reusing account")
	case errx.IsCode(err, iam.CodeUserNotFound):
		u, err = b.accounts.ProvisionSSOUser(ctx, identity)
		if err != nil {
			return nil, keycloak.ProviderError(err)
		}
		log.Info("oauth: account provisioned")
	default:
		return nil, keycloak.ProviderError(err)
	}

	bundle, err := b.accounts.LoginSSO(ctx, u)
	if err != nil {
		return nil, keycloak.ProviderError(err)
	}
	return bundle, nil
}

// match looks the identity up by username, then by email.
func (b *Bridge) match(ctx context.Context, identity usersrv.SSOIdentity) (*user.User, error) {
	u, err := b.users.FindByUsername(ctx, identity.Username)
	if !errx.IsCode(err, iam.CodeUserNotFound) {
		return u, err
	}
	return b.users.FindByEmail(ctx, identity.Email)
}

// IdentityFor maps a provider profile onto the account it signs in as.
// Google accounts use the email as username; GitHub accounts use the login
// and get login@github.com when no email is shared.
func IdentityFor(p *Profile) (usersrv.SSOIdentity, error) {
	email := user.NormalizeEmail(p.Email)
	username := email
	if p.Provider == iam.SSOProviderGitHub && strings.TrimSpace(p.Login) != "" {
		username = user.NormalizeUsername(p.Login)
	}
	if email == "" && username != "" {
		email = username + "@" + p.Provider.Domain()
	}
	if username == "" {
		return usersrv.SSOIdentity{}, ErrProfileUnavailable(nil).WithDetail("reason", "profile has no email or login")
	}

	return usersrv.SSOIdentity{
		Username:  username,
		Email:     email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Provider:  p.Provider,
	}, nil
}

// ParseProvider maps a route segment such as "google" to a provider tag.
func ParseProvider(s string) (iam.SSOProvider, bool) {
	p := iam.SSOProvider(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.IsSSO() && p.IsValid()
}
