package auth

import (
	"fmt"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose keeps an activation token from being accepted as a reset
// token and the other way round.
type TokenPurpose string

const (
	PurposeActivation    TokenPurpose = "activation"
	PurposePasswordReset TokenPurpose = "password_reset"
)

type emailClaims struct {
	Email   string       `json:"email"`
	Purpose TokenPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// EmailTokenService signs the HS256 tokens mailed for activation and
// password reset. They are not persisted.
type EmailTokenService struct {
	secret []byte
	issuer string
	ttls   map[TokenPurpose]time.Duration
	now    func() time.Time
}

// NewEmailTokenService creates a token service signing with secret.
func NewEmailTokenService(secret string, activationTTL, resetTTL time.Duration) *EmailTokenService {
	if activationTTL == 0 {
		activationTTL = time.Hour
	}
	if resetTTL == 0 {
		resetTTL = time.Hour
	}
	return &EmailTokenService{
		secret: []byte(secret),
		issuer: "keybridge",
		ttls: map[TokenPurpose]time.Duration{
			PurposeActivation:    activationTTL,
			PurposePasswordReset: resetTTL,
		},
		now: time.Now,
	}
}

// WithClock replaces the time source used for issuing and validating.
func (s *EmailTokenService) WithClock(now func() time.Time) *EmailTokenService {
	s.now = now
	return s
}

// Issue signs a token for email, valid for the TTL of purpose.
func (s *EmailTokenService) Issue(email string, purpose TokenPurpose) (string, error) {
	now := s.now()
	claims := emailClaims{
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttls[purpose])),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

// Verify returns the email of a valid token of the given purpose, or
// iam.ErrInvalidToken.
func (s *EmailTokenService) Verify(token string, purpose TokenPurpose) (string, error) {
	var claims emailClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", iam.ErrInvalidToken().WithCause(err)
	}
	if claims.Purpose != purpose || claims.Email == "" {
		return "", iam.ErrInvalidToken()
	}
	return claims.Email, nil
}
