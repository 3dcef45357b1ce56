package auth

import (
	"context"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/kernel"
)

// TokenVerifier authenticates a bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*kernel.AuthContext, error)
}

// AuditService records authentication events.
type AuditService interface {
	LogRegistration(ctx context.Context, email, method string, success bool, reason string)
	LogLoginAttempt(ctx context.Context, identifier, method string, success bool, reason string)
	LogActivation(ctx context.Context, email string, success bool)
	LogPasswordReset(ctx context.Context, email, stage string, success bool)
	LogRoleGranted(ctx context.Context, email, role, source string, success bool)
	LogPaymentCallback(ctx context.Context, orderID, state string)
}

// OAuthState is what an issued OAuth state value stands for.
type OAuthState struct {
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

// StateStore keeps OAuth state values between redirect and callback.
// Consume returns iam.ErrInvalidToken for unknown, expired or reused
// values.
type StateStore interface {
	Save(ctx context.Context, state string, data OAuthState, ttl time.Duration) error
	Consume(ctx context.Context, state string) (*OAuthState, error)
}
