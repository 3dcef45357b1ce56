package oauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/config"
	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/keybridge/pkg/iam/oauth"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/keybridge/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/keybridge/pkg/kernel"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeAccounts struct {
	users       *userinfra.MemoryUserRepository
	provisioned []usersrv.SSOIdentity
	logins      []string
}

func (f *fakeAccounts) ProvisionSSOUser(ctx context.Context, identity usersrv.SSOIdentity) (*user.User, error) {
	f.provisioned = append(f.provisioned, identity)
	u := user.NewUser(identity.Email, identity.Username, identity.Provider)
	u.KeycloakUserID = kernel.IdentityID("kc-" + identity.Username)
	return u, f.users.Create(ctx, u)
}

func (f *fakeAccounts) LoginSSO(_ context.Context, u *user.User) (*keycloak.TokenBundle, error) {
	f.logins = append(f.logins, u.Username)
	return &keycloak.TokenBundle{AccessToken: "at-" + u.Username}, nil
}

type fakeProvider struct {
	name    iam.SSOProvider
	profile *oauth.Profile
}

func (p *fakeProvider) Name() iam.SSOProvider { return p.name }

func (p *fakeProvider) AuthURL(state string) string {
	return "https://idp.test/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) ResolveProfile(context.Context, string) (*oauth.Profile, error) {
	return p.profile, nil
}

func newBridge(t *testing.T, providers ...oauth.Provider) (*oauth.Bridge, *fakeAccounts) {
	t.Helper()
	users := userinfra.NewMemoryUserRepository()
	accounts := &fakeAccounts{users: users}
	return oauth.NewBridge(users, accounts, authinfra.NewMemoryStateStore(), time.Minute, providers...), accounts
}

func TestSignIn_RejectsPasswordAccountWithoutWrites(t *testing.T) {
	ctx := context.Background()
	b, accounts := newBridge(t)
	require.NoError(t, accounts.users.Create(ctx, user.NewUser("alice@x.com", "alice", iam.SSOProviderNone)))

	_, err := b.SignIn(ctx, &oauth.Profile{Provider: iam.SSOProviderGoogle, Email: "alice@x.com"})
	assert.True(t, errx.IsCode(err, iam.CodePasswordAccountExists), "got %v", err)
	assert.Equal(t, 409, errx.ResponseFor(err).StatusCode)
	assert.Empty(t, accounts.provisioned)
	assert.Empty(t, accounts.logins)

	_, err = b.SignIn(ctx, &oauth.Profile{Provider: iam.SSOProviderGitHub, Login: "alice", Email: "other@x.com"})
	assert.True(t, errx.IsCode(err, iam.CodePasswordAccountExists), "username collision, got %v", err)
	assert.Empty(t, accounts.provisioned)
}

func TestSignIn_ProvisionsThenReuses(t *testing.T) {
	ctx := context.Background()
	b, accounts := newBridge(t)
	profile := &oauth.Profile{Provider: iam.SSOProviderGoogle, Email: "Carol@Gmail.com", FirstName: "Carol"}

	bundle, err := b.SignIn(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, "at-carol@gmail.com", bundle.AccessToken)
	require.Len(t, accounts.provisioned, 1)
	assert.Equal(t, "carol@gmail.com", accounts.provisioned[0].Username)

	_, err = b.SignIn(ctx, profile)
	require.NoError(t, err)
	assert.Len(t, accounts.provisioned, 1)
	assert.Len(t, accounts.logins, 2)
}

func TestIdentityFor_GitHubWithoutEmail(t *testing.T) {
	id, err := oauth.IdentityFor(&oauth.Profile{Provider: iam.SSOProviderGitHub, Login: "Octo"})
	require.NoError(t, err)
	assert.Equal(t, "octo", id.Username)
	assert.Equal(t, "octo@github.com", id.Email)

	_, err = oauth.IdentityFor(&oauth.Profile{Provider: iam.SSOProviderGoogle})
	assert.True(t, errx.IsCode(err, oauth.CodeProfileUnavailable))
}

func TestBeginAndCallback_StateIsSingleUse(t *testing.T) {
	ctx := context.Background()
	google := &fakeProvider{name: iam.SSOProviderGoogle, profile: &oauth.Profile{Provider: iam.SSOProviderGoogle, Email: "dan@gmail.com"}}
	github := &fakeProvider{name: iam.SSOProviderGitHub, profile: &oauth.Profile{Provider: iam.SSOProviderGitHub, Login: "dan"}}
	b, _ := newBridge(t, google, github)

	authURL, err := b.Begin(ctx, iam.SSOProviderGoogle)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	_, err = b.Callback(ctx, iam.SSOProviderGitHub, state, "code")
	assert.True(t, errx.IsCode(err, oauth.CodeInvalidState), "state issued for google")

	authURL, _ = b.Begin(ctx, iam.SSOProviderGoogle)
	u, _ = url.Parse(authURL)
	state = u.Query().Get("state")

	_, err = b.Callback(ctx, iam.SSOProviderGoogle, state, "code")
	require.NoError(t, err)

	_, err = b.Callback(ctx, iam.SSOProviderGoogle, state, "code")
	assert.True(t, errx.IsCode(err, oauth.CodeInvalidState))
}

func TestBegin_UnknownProvider(t *testing.T) {
	b, _ := newBridge(t)
	_, err := b.Begin(context.Background(), iam.SSOProviderGitHub)
	assert.True(t, errx.IsCode(err, oauth.CodeInvalidProvider))
}

// fakeOAuthServer serves a token endpoint and the profile APIs.
func fakeOAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	authorized := func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer tok-1" }

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, map[string]any{"access_token": "tok-1", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("GET /oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]string{"id": "g-1", "email": "erin@gmail.com", "given_name": "Erin", "family_name": "Stone"})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"id": 42, "login": "erin", "name": "Erin Stone", "email": nil})
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"email": "old@x.com", "primary": false, "verified": true},
			{"email": "erin@x.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func providerOpts(srv *httptest.Server) []oauth.Option {
	return []oauth.Option{
		oauth.WithEndpoint(oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		oauth.WithAPIBaseURL(srv.URL),
		oauth.WithHTTPClient(srv.Client()),
	}
}

func TestGoogleProvider_ResolveProfile(t *testing.T) {
	srv := fakeOAuthServer(t)
	cfg := config.OAuthProviderConfig{ClientID: "cid", ClientSecret: "secret", RedirectURL: "http://app/user/callback"}
	p := oauth.NewGoogleProvider(cfg, providerOpts(srv)...)

	authURL, err := url.Parse(p.AuthURL("st"))
	require.NoError(t, err)
	assert.Equal(t, "st", authURL.Query().Get("state"))
	assert.Equal(t, "cid", authURL.Query().Get("client_id"))

	profile, err := p.ResolveProfile(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "erin@gmail.com", profile.Email)
	assert.Equal(t, "Erin", profile.FirstName)
	assert.Equal(t, iam.SSOProviderGoogle, profile.Provider)

	_, err = p.ResolveProfile(context.Background(), "bad")
	assert.True(t, errx.IsCode(err, oauth.CodeAuthorizationFailed))
}

func TestGitHubProvider_FallsBackToPrimaryEmail(t *testing.T) {
	srv := fakeOAuthServer(t)
	p := oauth.NewGitHubProvider(config.OAuthProviderConfig{ClientID: "cid", ClientSecret: "secret"}, providerOpts(srv)...)

	profile, err := p.ResolveProfile(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "erin", profile.Login)
	assert.Equal(t, "erin@x.com", profile.Email)
	assert.Equal(t, "Stone", profile.LastName)
	assert.Equal(t, "42", profile.Subject)
}

func TestParseProvider(t *testing.T) {
	p, ok := oauth.ParseProvider("github")
	assert.True(t, ok)
	assert.Equal(t, iam.SSOProviderGitHub, p)

	_, ok = oauth.ParseProvider("")
	assert.False(t, ok)
	_, ok = oauth.ParseProvider("myspace")
	assert.False(t, ok)
}
