// Package userapi exposes the account flows over HTTP.
package userapi

import (
	"context"
	"html/template"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/httpx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/gofiber/fiber/v2"
)

// Service is the part of usersrv.UserService the handlers call.
type Service interface {
	Register(ctx context.Context, reg user.Registration) (*user.User, error)
	Login(ctx context.Context, identifier, password string, bypassSSOCheck bool) (*keycloak.TokenBundle, error)
	VerifyActivation(ctx context.Context, token string) error
	ResendActivation(ctx context.Context, email string) error
	GetProfile(ctx context.Context, email string) (*user.Profile, error)
	UpdateProfile(ctx context.Context, email string, in user.ProfileUpdate) (*user.Profile, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	UpgradeVIP(ctx context.Context, email, source string) error
}

// Handlers serves the account routes under /user.
type Handlers struct {
	svc       Service
	adminRole string
}

// NewHandlers creates the account handlers. adminRole guards upgrade-vip
// and defaults to "admin".
func NewHandlers(svc Service, adminRole string) *Handlers {
	if adminRole == "" {
		adminRole = "admin"
	}
	return &Handlers{svc: svc, adminRole: adminRole}
}

// RegisterRoutes mounts the /user routes. Profile and VIP routes need a
// bearer token; upgrade-vip also needs the admin role.
func (h *Handlers) RegisterRoutes(app fiber.Router, mw *auth.TokenMiddleware) {
	g := app.Group("/user")

	g.Post("/register", h.register)
	g.Post("/login", h.login)
	g.Get("/activate/:token", h.activate)
	g.Post("/resend-activation", h.resendActivation)
	g.Post("/forgot-password", h.forgotPassword)
	g.Post("/reset-password", h.resetPassword)

	g.Get("/profile", mw.Authenticate(), h.getProfile)
	g.Put("/profile", mw.Authenticate(), h.updateProfile)
	g.Post("/upgrade-vip", mw.Authenticate(), mw.RequireRole(h.adminRole), h.upgradeVIP)
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// identifier accepts any of the field names clients have used.
func (r loginRequest) identifier() string {
	for _, v := range []string{r.Identifier, r.Username, r.Email} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handlers) register(c *fiber.Ctx) error {
	var reg user.Registration
	if err := httpx.BodyParser(c, &reg); err != nil {
		return err
	}

	u, err := h.svc.Register(c.UserContext(), reg)
	if err != nil {
		return err
	}
	return httpx.OK(c, fiber.StatusCreated, "User registered successfully", fiber.Map{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
	})
}

func (h *Handlers) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := httpx.BodyParser(c, &req); err != nil {
		return err
	}

	bundle, err := h.svc.Login(c.UserContext(), req.identifier(), req.Password, false)
	if err != nil {
		return err
	}
	return httpx.OK(c, fiber.StatusOK, "Login successful", bundle)
}

var activationPage = template.Must(template.New("activation").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family:sans-serif;text-align:center;margin-top:10%">
<h1>{{.Title}}</h1><p>{{.Message}}</p>
</body></html>`))

func (h *Handlers) activate(c *fiber.Ctx) error {
	title, message, status := "Account activated", "Your email is verified. You can now log in.", fiber.StatusOK

	if err := h.svc.VerifyActivation(c.UserContext(), c.Params("token")); err != nil {
		logx.WithContext(c.UserContext()).WithError(err).Debug("activation rejected")
		title, status = "Activation failed", fiber.StatusBadRequest
		message = "This activation link is invalid or has expired."
		if errx.ResponseFor(err).StatusCode >= fiber.StatusInternalServerError {
			status = fiber.StatusInternalServerError
			message = "Something went wrong. Please try again later."
		}
	}

	var b strings.Builder
	if err := activationPage.Execute(&b, map[string]string{"Title": title, "Message": message}); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).SendString(b.String())
}

func (h *Handlers) resendActivation(c *fiber.Ctx) error {
	var req emailRequest
	if err := httpx.BodyParser(c, &req); err != nil {
		return err
	}
	if err := h.svc.ResendActivation(c.UserContext(), req.Email); err != nil {
		return err
	}
	return httpx.OK(c, fiber.StatusOK, "If the account needs activation, an email has been sent.", nil)
}

func (h *Handlers) forgotPassword(c *fiber.Ctx) error {
	var req emailRequest
	if err := httpx.BodyParser(c, &req); err != nil {
		return err
	}
	if err := h.svc.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return httpx.OK(c, fiber.StatusOK, "If the email is registered, a reset link has been sent.", nil)
}

func (h *Handlers) resetPassword(c *fiber.Ctx) error {
	var req resetRequest
	if err := httpx.BodyParser(c, &req); err != nil {
		return err
	}
	if err := h.svc.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return err
	}
	return httpx.OK(c, fiber.StatusOK, "Password has been reset successfully", nil)
}

func (h *Handlers) getProfile(c *fiber.Ctx) error {
	ac, ok := auth.FromCtx(c)
	if !ok {
		return iam.ErrUnauthorized()
	}

	profile, err := h.svc.GetProfile(c.UserContext(), ac.Email)
	if err != nil {
		return err
	}
	return httpx.OK(c, fiber.StatusOK, "Profile retrieved successfully", profile)
}

func (h *Handlers) updateProfile(c *fiber.Ctx) error {
	ac, ok := auth.FromCtx(c)
	if !ok {
		return iam.ErrUnauthorized()
	}

	var in user.ProfileUpdate
	if err := httpx.BodyParser(c, &in); err != nil {
		return err
	}

	profile, err := h.svc.UpdateProfile(c.UserContext(), ac.Email, in)
	if err != nil {
		return err
	}
	return httpx.OK(c, fiber.StatusOK, "Profile updated successfully", profile)
}

func (h *Handlers) upgradeVIP(c *fiber.Ctx) error {
	var req emailRequest
	if err := httpx.BodyParser(c, &req); err != nil {
		return err
	}
	if err := h.svc.UpgradeVIP(c.UserContext(), req.Email, "admin"); err != nil {
		return err
	}
	return httpx.OK(c, fiber.StatusOK, "User upgraded to VIP", nil)
}
