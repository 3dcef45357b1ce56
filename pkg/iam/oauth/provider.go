// Package oauth signs users in through Google and GitHub and maps them onto
// Keycloak accounts.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/iam"
	"golang.org/x/oauth2"
)

// Profile is what a provider tells us about the signed-in user.
type Profile struct {
	Provider  iam.SSOProvider
	Subject   string
	Email     string
	Login     string
	FirstName string
	LastName  string
}

// Provider is one OAuth2 authorization-code integration.
type Provider interface {
	Name() iam.SSOProvider
	AuthURL(state string) string
	ResolveProfile(ctx context.Context, code string) (*Profile, error)
}

type Option func(*base)

// WithEndpoint replaces the provider's authorize and token URLs.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(b *base) { b.conf.Endpoint = ep }
}

// WithAPIBaseURL replaces the base URL profile requests are sent to.
func WithAPIBaseURL(u string) Option {
	return func(b *base) { b.apiBase = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the client used for the token exchange and profile
// requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *base) { b.httpClient = hc }
}

type base struct {
	conf       oauth2.Config
	apiBase    string
	httpClient *http.Client
}

func (b *base) AuthURL(state string) string {
	return b.conf.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// client exchanges code and returns an HTTP client carrying the token.
func (b *base) client(ctx context.Context, code string) (*http.Client, error) {
	if b.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrAuthorizationFailed(fmt.Errorf("missing authorization code"))
	}
	tok, err := b.conf.Exchange(ctx, code)
	if err != nil {
		return nil, ErrAuthorizationFailed(err)
	}
	return b.conf.Client(ctx, tok), nil
}

func getJSON(ctx context.Context, hc *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ErrProfileUnavailable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return ErrProfileUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ErrProfileUnavailable(fmt.Errorf("GET %s: %d %s", url, resp.StatusCode, body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ErrProfileUnavailable(err)
	}
	return nil
}
