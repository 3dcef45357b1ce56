// Package paymentapi mounts the MoMo payment routes.
package paymentapi

import (
	"context"

	"github.com/Abraxas-365/keybridge/pkg/httpx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/payment"
	"github.com/Abraxas-365/keybridge/pkg/payment/momo"
	"github.com/gofiber/fiber/v2"
)

// Service is the part of paymentsrv.Service the handlers call.
type Service interface {
	CreatePayment(ctx context.Context, email string) (*momo.CreateResponse, error)
	HandleCallback(ctx context.Context, n momo.IPN) (payment.State, error)
}

// Handlers serves the payment routes under /user.
type Handlers struct {
	svc Service
}

// NewHandlers creates the payment handlers.
func NewHandlers(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

// RegisterRoutes mounts create-payment behind authentication. The MoMo
// callback is public; its signature authenticates it.
func (h *Handlers) RegisterRoutes(app fiber.Router, mw *auth.TokenMiddleware) {
	g := app.Group("/user")
	g.Post("/create-payment", mw.Authenticate(), h.createPayment)
	g.Post("/momo-callback", h.callback)
}

func (h *Handlers) createPayment(c *fiber.Ctx) error {
	ac, ok := auth.FromCtx(c)
	if !ok {
		return iam.ErrUnauthorized()
	}

	resp, err := h.svc.CreatePayment(c.UserContext(), ac.Email)
	if err != nil {
		return err
	}
	return httpx.OK(c, fiber.StatusOK, "Payment created", PaymentLinks{
		OrderID:   resp.OrderID,
		PayURL:    resp.PayURL,
		Deeplink:  resp.Deeplink,
		QRCodeURL: resp.QRCodeURL,
	})
}

// PaymentLinks carries every entry point MoMo returned for a created payment.
// Deeplink and QRCodeURL are empty when MoMo omits them.
type PaymentLinks struct {
	OrderID   string `json:"orderId"`
	PayURL    string `json:"payUrl"`
	Deeplink  string `json:"deeplink,omitempty"`
	QRCodeURL string `json:"qrCodeUrl,omitempty"`
}

// callback answers 204 once the notification is handled, which is what
// MoMo expects; declined payments are handled too.
func (h *Handlers) callback(c *fiber.Ctx) error {
	var n momo.IPN
	if err := httpx.BodyParser(c, &n); err != nil {
		return err
	}
	if _, err := h.svc.HandleCallback(c.UserContext(), n); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
