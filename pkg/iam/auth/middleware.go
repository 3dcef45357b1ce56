package auth

import (
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// TokenMiddleware authenticates requests carrying a Keycloak bearer token.
type TokenMiddleware struct {
	verifier TokenVerifier
}

// NewTokenMiddleware creates bearer-token middleware over verifier.
func NewTokenMiddleware(verifier TokenVerifier) *TokenMiddleware {
	return &TokenMiddleware{verifier: verifier}
}

// Authenticate requires "Authorization: Bearer <token>" and stores the
// caller in Locals under kernel.AuthContextKey.
func (m *TokenMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return iam.ErrUnauthorized()
		}

		ac, err := m.verifier.Verify(c.UserContext(), strings.TrimSpace(token))
		if err != nil {
			return err
		}

		c.Locals(string(kernel.AuthContextKey), ac)
		return c.Next()
	}
}

// RequireRole allows the request when the caller holds any of roles.
// It must run after Authenticate.
func (m *TokenMiddleware) RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, ok := FromCtx(c)
		if !ok {
			return iam.ErrUnauthorized()
		}
		if !ac.HasAnyRole(roles...) {
			return iam.ErrAccessDenied().WithDetail("required_roles", roles)
		}
		return c.Next()
	}
}

// FromCtx returns the caller stored by Authenticate.
func FromCtx(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	ac, ok := c.Locals(string(kernel.AuthContextKey)).(*kernel.AuthContext)
	return ac, ok && ac != nil
}
