// Package keycloak is a small client for the Keycloak realm token endpoint
// and admin REST API.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/patrickmn/go-cache"
)

const (
	DefaultTimeout = 10 * time.Second

	adminTokenKey = "admin"

	// adminTokenSkew is subtracted from expires_in so a cached token is
	// never used in its last seconds.
	adminTokenSkew = 30 * time.Second
)

// Config identifies the realm and the credentials used against it.
type Config struct {
	BaseURL       string
	Realm         string
	ClientID      string
	ClientSecret  string
	AdminUsername string
	AdminPassword string
	Timeout       time.Duration
}

// Client talks to one realm. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *cache.Cache
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a Keycloak client. Admin tokens are fetched lazily and
// cached until shortly before they expire.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     cache.New(cache.NoExpiration, 5*time.Minute),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) realmURL() string {
	return c.cfg.BaseURL + "/realms/" + url.PathEscape(c.cfg.Realm)
}

// TokenURL is the realm's OpenID Connect token endpoint.
func (c *Client) TokenURL() string {
	return c.realmURL() + "/protocol/openid-connect/token"
}

func (c *Client) CertsURL() string {
	return c.realmURL() + "/protocol/openid-connect/certs"
}

func (c *Client) adminURL(path string) string {
	return c.cfg.BaseURL + "/admin/realms/" + url.PathEscape(c.cfg.Realm) + path
}

// adminToken returns a cached admin access token, fetching a new one when
// the cache is empty or expired.
func (c *Client) adminToken(ctx context.Context) (string, error) {
	if tok, ok := c.tokens.Get(adminTokenKey); ok {
		return tok.(string), nil
	}

	bundle, err := c.PasswordGrant(ctx, c.cfg.AdminUsername, c.cfg.AdminPassword)
	if err != nil {
		return "", errorRegistry.New(ErrAdminAuth).WithDetail("cause", err.Error())
	}

	ttl := time.Duration(bundle.ExpiresIn)*time.Second - adminTokenSkew
	if ttl < time.Second {
		ttl = time.Second
	}
	c.tokens.Set(adminTokenKey, bundle.AccessToken, ttl)
	return bundle.AccessToken, nil
}

// InvalidateAdminToken drops the cached admin token.
func (c *Client) InvalidateAdminToken() {
	c.tokens.Delete(adminTokenKey)
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) send(ctx context.Context, method, rawURL string, body io.Reader, header http.Header) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, errorRegistry.NewWithCause(ErrRequest, err).WithDetail("url", rawURL)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errorRegistry.NewWithCause(ErrRequest, err).
			WithDetail("method", method).
			WithDetail("url", rawURL)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorRegistry.NewWithCause(ErrRequest, err).WithDetail("url", rawURL)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// admin performs an authenticated admin API call. A 401 evicts the cached
// token and the call is retried once with a fresh one.
func (c *Client) admin(ctx context.Context, method, path string, in, out any) (*response, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return nil, errx.Wrap(err, "encode admin request", errx.TypeInternal)
		}
	}

	var resp *response
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.adminToken(ctx)
		if err != nil {
			return nil, err
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		header.Set("Accept", "application/json")
		if payload != nil {
			header.Set("Content-Type", "application/json")
		}

		resp, err = c.send(ctx, method, c.adminURL(path), bytes.NewReader(payload), header)
		if err != nil {
			return nil, err
		}
		if resp.status != http.StatusUnauthorized {
			break
		}
		logx.WithContext(ctx).Warn("keycloak: admin token rejected, refreshing")
		c.InvalidateAdminToken()
	}

	switch {
	case resp.status >= 200 && resp.status < 300:
	case resp.status == http.StatusNotFound:
		return nil, statusError(ErrNotFound, resp.status, nil).WithDetail("path", path)
	case resp.status == http.StatusConflict:
		return nil, statusError(ErrConflict, resp.status, resp.body)
	case resp.status == http.StatusUnauthorized:
		return nil, statusError(ErrAdminAuth, resp.status, resp.body)
	default:
		return nil, statusError(ErrUnexpectedStatus, resp.status, resp.body).
			WithDetail("method", method).
			WithDetail("path", path)
	}

	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return nil, errorRegistry.NewWithCause(ErrDecode, err).WithDetail("path", path)
		}
	}
	return resp, nil
}
