package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/httpx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/kernel"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCerts struct {
	set   *keycloak.JWKS
	err   error
	calls atomic.Int32
}

func (f *fakeCerts) FetchCerts(context.Context) (*keycloak.JWKS, error) {
	f.calls.Add(1)
	return f.set, f.err
}

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func jwkFor(kid string, k *rsa.PrivateKey) keycloak.JWK {
	return keycloak.JWK{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(k.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.E)).Bytes()),
	}
}

func sign(t *testing.T, kid string, k *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(k)
	require.NoError(t, err)
	return raw
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":                "kc-1",
		"preferred_username": "alice",
		"email":              "alice@x.com",
		"realm_access":       map[string]any{"roles": []string{"user", "admin"}},
		"exp":                time.Now().Add(time.Hour).Unix(),
	}
}

func TestKeycloakVerifier_AcceptsValidTokenAndCachesKeys(t *testing.T) {
	key := newKey(t)
	certs := &fakeCerts{set: &keycloak.JWKS{Keys: []keycloak.JWK{jwkFor("k1", key)}}}
	v := auth.NewKeycloakVerifier(certs, time.Minute)

	for range 3 {
		ac, err := v.Verify(context.Background(), sign(t, "k1", key, validClaims()))
		require.NoError(t, err)
		assert.Equal(t, "alice", ac.Username)
		assert.Equal(t, "alice@x.com", ac.Email)
		assert.True(t, ac.HasRole("admin"))
	}
	assert.Equal(t, int32(1), certs.calls.Load())
}

func TestKeycloakVerifier_RejectsBadTokens(t *testing.T) {
	key := newKey(t)
	other := newKey(t)
	certs := &fakeCerts{set: &keycloak.JWKS{Keys: []keycloak.JWK{jwkFor("k1", key)}}}
	v := auth.NewKeycloakVerifier(certs, time.Minute)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	hs.Header["kid"] = "k1"
	hsRaw, err := hs.SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"wrong signature": sign(t, "k1", other, validClaims()),
		"unknown kid":     sign(t, "k9", key, validClaims()),
		"expired":         sign(t, "k1", key, expired),
		"hs256":           hsRaw,
		"garbage":         "not.a.token",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), raw)
			require.Error(t, err)
			assert.True(t, errx.IsCode(err, iam.CodeUnauthorized), "got %v", err)
		})
	}
}

func TestKeycloakVerifier_UnknownKidRefetchIsThrottled(t *testing.T) {
	key := newKey(t)
	certs := &fakeCerts{set: &keycloak.JWKS{Keys: []keycloak.JWK{jwkFor("k1", key)}}}
	v := auth.NewKeycloakVerifier(certs, time.Minute)

	for range 5 {
		_, _ = v.Verify(context.Background(), sign(t, "rotated", key, validClaims()))
	}
	assert.Equal(t, int32(1), certs.calls.Load())
}

func TestKeycloakVerifier_CertsFailureIsProviderError(t *testing.T) {
	key := newKey(t)
	v := auth.NewKeycloakVerifier(&fakeCerts{err: errors.New("connection refused")}, time.Minute)

	_, err := v.Verify(context.Background(), sign(t, "k1", key, validClaims()))
	assert.True(t, errx.IsCode(err, keycloak.ErrProvider))
}

func TestParseRSAKey_FallsBackToCertificate(t *testing.T) {
	key := newKey(t)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "demo"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	pub, err := auth.ParseRSAKey(keycloak.JWK{Kid: "k1", Kty: "RSA", X5c: []string{base64.StdEncoding.EncodeToString(der)}})
	require.NoError(t, err)
	assert.Equal(t, 0, pub.N.Cmp(key.N))
}

func TestEmailTokenService_PurposeAndExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := auth.NewEmailTokenService("s3cret", time.Hour, time.Hour).WithClock(func() time.Time { return now })

	tok, err := svc.Issue("alice@x.com", auth.PurposeActivation)
	require.NoError(t, err)

	email, err := svc.Verify(tok, auth.PurposeActivation)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", email)

	_, err = svc.Verify(tok, auth.PurposePasswordReset)
	assert.True(t, errx.IsCode(err, iam.CodeInvalidToken), "activation token must not reset passwords")

	now = now.Add(61 * time.Minute)
	_, err = svc.Verify(tok, auth.PurposeActivation)
	assert.True(t, errx.IsCode(err, iam.CodeInvalidToken), "expired token must be rejected")

	other := auth.NewEmailTokenService("different", time.Hour, time.Hour)
	_, err = other.Verify(tok, auth.PurposeActivation)
	assert.Error(t, err)
}

type stubVerifier struct{ ac *kernel.AuthContext }

func (s stubVerifier) Verify(_ context.Context, token string) (*kernel.AuthContext, error) {
	if token != "good" {
		return nil, iam.ErrUnauthorized()
	}
	return s.ac, nil
}

func TestTokenMiddleware(t *testing.T) {
	mw := auth.NewTokenMiddleware(stubVerifier{ac: &kernel.AuthContext{Username: "alice", Roles: []string{"user"}}})

	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler})
	app.Get("/me", mw.Authenticate(), func(c *fiber.Ctx) error {
		ac, _ := auth.FromCtx(c)
		return c.SendString(ac.Username)
	})
	app.Get("/admin", mw.Authenticate(), mw.RequireRole("admin"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	cases := []struct {
		path, header string
		want         int
	}{
		{"/me", "", fiber.StatusUnauthorized},
		{"/me", "Basic abc", fiber.StatusUnauthorized},
		{"/me", "Bearer bad", fiber.StatusUnauthorized},
		{"/me", "Bearer good", fiber.StatusOK},
		{"/admin", "Bearer good", fiber.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.StatusCode, "%s %q", tc.path, tc.header)
	}
}
