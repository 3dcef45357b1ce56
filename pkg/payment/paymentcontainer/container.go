package paymentcontainer

import (
	"github.com/Abraxas-365/keybridge/pkg/config"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/Abraxas-365/keybridge/pkg/payment/momo"
	"github.com/Abraxas-365/keybridge/pkg/payment/paymentapi"
	"github.com/Abraxas-365/keybridge/pkg/payment/paymentsrv"
	"github.com/gofiber/fiber/v2"
)

// Deps: the payment context only needs the role upgrade from IAM.
type Deps struct {
	Cfg        config.MoMoConfig
	Upgrader   paymentsrv.RoleUpgrader
	Audit      auth.AuditService
	Middleware *auth.TokenMiddleware
}

// Container is the public surface of the payment module.
type Container struct {
	Service  *paymentsrv.Service
	Handlers *paymentapi.Handlers

	middleware *auth.TokenMiddleware
}

// New builds the payment graph. Missing MoMo credentials are logged, not
// fatal.
func New(deps Deps) *Container {
	if !deps.Cfg.Enabled() {
		logx.Warn("MoMo credentials missing: create-payment will answer 503")
	}

	client := momo.NewClient(deps.Cfg)
	svc := paymentsrv.NewService(client, client.Signer(), deps.Upgrader, deps.Audit)

	return &Container{
		Service:    svc,
		Handlers:   paymentapi.NewHandlers(svc),
		middleware: deps.Middleware,
	}
}

// RegisterRoutes mounts the payment routes on app.
func (c *Container) RegisterRoutes(app fiber.Router) {
	c.Handlers.RegisterRoutes(app, c.middleware)
}
