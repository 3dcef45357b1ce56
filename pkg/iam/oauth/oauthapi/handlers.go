// Package oauthapi mounts the Google and GitHub sign-in routes.
package oauthapi

import (
	"context"

	"github.com/Abraxas-365/keybridge/pkg/httpx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/gofiber/fiber/v2"
)

// Bridge is the part of oauth.Bridge the handlers call.
type Bridge interface {
	Begin(ctx context.Context, name iam.SSOProvider) (string, error)
	Callback(ctx context.Context, name iam.SSOProvider, state, code string) (*keycloak.TokenBundle, error)
}

// Handlers serves the social sign-in routes under /user.
type Handlers struct {
	bridge Bridge
}

// NewHandlers creates the OAuth handlers.
func NewHandlers(bridge Bridge) *Handlers {
	return &Handlers{bridge: bridge}
}

// RegisterRoutes mounts the redirect and callback routes. Google keeps the
// callback path its console registration uses, /user/callback.
func (h *Handlers) RegisterRoutes(app fiber.Router) {
	g := app.Group("/user")

	g.Get("/auth/google", h.begin(iam.SSOProviderGoogle))
	g.Get("/callback", h.callback(iam.SSOProviderGoogle))
	g.Get("/auth/github", h.begin(iam.SSOProviderGitHub))
	g.Get("/auth/github/callback", h.callback(iam.SSOProviderGitHub))
}

func (h *Handlers) begin(provider iam.SSOProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		url, err := h.bridge.Begin(c.UserContext(), provider)
		if err != nil {
			return err
		}
		return c.Redirect(url, fiber.StatusFound)
	}
}

func (h *Handlers) callback(provider iam.SSOProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if msg := c.Query("error"); msg != "" {
			return fiber.NewError(fiber.StatusBadRequest, "OAuth authorization denied: "+msg)
		}

		bundle, err := h.bridge.Callback(c.UserContext(), provider, c.Query("state"), c.Query("code"))
		if err != nil {
			return err
		}
		return httpx.OK(c, fiber.StatusOK, provider.DisplayName()+" login successful", bundle)
	}
}
