package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/kernel"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

// MinRefetchInterval bounds how often an unknown kid can trigger a certs
// download.
const MinRefetchInterval = 10 * time.Second

// CertsFetcher downloads the realm signing keys.
type CertsFetcher interface {
	FetchCerts(ctx context.Context) (*keycloak.JWKS, error)
}

// KeycloakVerifier verifies RS256 access tokens against the realm keys,
// caching parsed keys by kid.
type KeycloakVerifier struct {
	fetcher    CertsFetcher
	keys       *cache.Cache
	ttl        time.Duration
	minRefetch time.Duration

	mu        sync.Mutex
	lastFetch time.Time
}

// NewKeycloakVerifier creates a verifier caching realm keys for keyTTL.
func NewKeycloakVerifier(fetcher CertsFetcher, keyTTL time.Duration) *KeycloakVerifier {
	if keyTTL <= 0 {
		keyTTL = 10 * time.Minute
	}
	return &KeycloakVerifier{
		fetcher:    fetcher,
		keys:       cache.New(keyTTL, 2*keyTTL),
		ttl:        keyTTL,
		minRefetch: MinRefetchInterval,
	}
}

// Verify checks signature, algorithm and expiry and returns the caller.
// Any verification failure is iam.ErrUnauthorized; a certs download
// failure is a provider error.
func (v *KeycloakVerifier) Verify(ctx context.Context, raw string) (*kernel.AuthContext, error) {
	var fetchErr error
	claims := &keycloak.AccessClaims{}

	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		key, err := v.key(ctx, kid)
		if err != nil {
			fetchErr = err
			return nil, err
		}
		if key == nil {
			return nil, fmt.Errorf("no signing key for kid %q", kid)
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	if fetchErr != nil {
		return nil, keycloak.ProviderError(fetchErr)
	}
	if err != nil {
		logx.WithContext(ctx).WithError(err).Debug("auth: bearer token rejected")
		return nil, iam.ErrUnauthorized()
	}

	ac := &kernel.AuthContext{
		Subject:  claims.Subject,
		Username: claims.PreferredUsername,
		Email:    claims.Email,
		Roles:    claims.RealmAccess.Roles,
	}
	if !ac.IsValid() {
		return nil, iam.ErrUnauthorized().WithDetail("reason", "token carries no identity")
	}
	return ac, nil
}

// key returns the cached key for kid, refreshing the set at most once per
// minRefetch. A nil key with a nil error means the kid is unknown.
func (v *KeycloakVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := v.keys.Get(kid); ok {
		return k.(*rsa.PublicKey), nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// Another request may have refreshed while we waited.
	if k, ok := v.keys.Get(kid); ok {
		return k.(*rsa.PublicKey), nil
	}
	if !v.lastFetch.IsZero() && time.Since(v.lastFetch) < v.minRefetch {
		return nil, nil
	}

	set, err := v.fetcher.FetchCerts(ctx)
	if err != nil {
		return nil, err
	}
	v.lastFetch = time.Now()

	for _, jwk := range set.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		pub, err := ParseRSAKey(jwk)
		if err != nil {
			logx.WithField("kid", jwk.Kid).WithError(err).Warn("auth: skipping unusable signing key")
			continue
		}
		v.keys.Set(jwk.Kid, pub, v.ttl)
	}

	if k, ok := v.keys.Get(kid); ok {
		return k.(*rsa.PublicKey), nil
	}
	return nil, nil
}

// ParseRSAKey builds a public key from the JWK modulus and exponent,
// falling back to the first x5c certificate.
func ParseRSAKey(jwk keycloak.JWK) (*rsa.PublicKey, error) {
	if jwk.N != "" && jwk.E != "" {
		n, errN := base64.RawURLEncoding.DecodeString(jwk.N)
		e, errE := base64.RawURLEncoding.DecodeString(jwk.E)
		if errN == nil && errE == nil && len(e) > 0 {
			return &rsa.PublicKey{
				N: new(big.Int).SetBytes(n),
				E: int(new(big.Int).SetBytes(e).Int64()),
			}, nil
		}
	}

	if len(jwk.X5c) == 0 {
		return nil, errx.New("jwk has neither n/e nor x5c", errx.TypeValidation)
	}
	der, err := base64.StdEncoding.DecodeString(jwk.X5c[0])
	if err != nil {
		return nil, errx.Wrap(err, "decode x5c", errx.TypeValidation)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errx.Wrap(err, "parse x5c certificate", errx.TypeValidation)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errx.New("x5c certificate key is not RSA", errx.TypeValidation)
	}
	return pub, nil
}
