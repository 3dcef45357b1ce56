package keycloak

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/golang-jwt/jwt/v5"
)

// PasswordGrant exchanges a username (or email) and password for tokens
// using the realm client. Rejected credentials yield ErrInvalidGrant.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*TokenBundle, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("scope", "openid")

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Accept", "application/json")

	resp, err := c.send(ctx, http.MethodPost, c.TokenURL(), strings.NewReader(form.Encode()), header)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusBadRequest || resp.status == http.StatusUnauthorized:
		return nil, statusError(ErrInvalidGrant, resp.status, nil)
	case resp.status < 200 || resp.status >= 300:
		return nil, statusError(ErrUnexpectedStatus, resp.status, resp.body).WithDetail("url", c.TokenURL())
	}

	var bundle TokenBundle
	if err := json.Unmarshal(resp.body, &bundle); err != nil {
		return nil, errorRegistry.NewWithCause(ErrDecode, err)
	}
	if bundle.AccessToken == "" {
		return nil, errorRegistry.New(ErrDecode).WithDetail("reason", "missing access_token")
	}
	return &bundle, nil
}

// AccessClaims are the Keycloak access token claims the service reads.
type AccessClaims struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

// DecodeClaims parses an access token without checking its signature. It
// is only meant for tokens just received from the token endpoint.
func DecodeClaims(accessToken string) (*AccessClaims, error) {
	var claims AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return nil, errorRegistry.NewWithCause(ErrDecode, err).WithDetail("reason", "malformed access token")
	}
	return &claims, nil
}

// FetchCerts downloads the realm signing keys.
func (c *Client) FetchCerts(ctx context.Context) (*JWKS, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")

	resp, err := c.send(ctx, http.MethodGet, c.CertsURL(), nil, header)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, statusError(ErrUnexpectedStatus, resp.status, resp.body).WithDetail("url", c.CertsURL())
	}

	var set JWKS
	if err := json.Unmarshal(resp.body, &set); err != nil {
		return nil, errorRegistry.NewWithCause(ErrDecode, err)
	}
	return &set, nil
}

func IsNotFound(err error) bool { return errx.IsCode(err, ErrNotFound) }

func IsConflict(err error) bool { return errx.IsCode(err, ErrConflict) }

func IsInvalidGrant(err error) bool { return errx.IsCode(err, ErrInvalidGrant) }
