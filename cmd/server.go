package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/asyncx"
	"github.com/Abraxas-365/keybridge/pkg/httpx"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	healthCheckTimeout = 2 * time.Second
	shutdownTimeout    = 30 * time.Second
)

// newApp builds the fiber app with the global middleware stack and every
// module's routes.
func newApp(container *Container) *fiber.App {
	cfg := container.Config.Server

	app := fiber.New(fiber.Config{
		AppName:               "Keybridge API",
		DisableStartupMessage: true,
		ErrorHandler:          httpx.ErrorHandler,
		BodyLimit:             cfg.BodyLimit,
		IdleTimeout:           cfg.IdleTimeout,
	})

	// Global Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Debug,
	}))

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	// Carries the request id into service-layer logs.
	app.Use(func(c *fiber.Ctx) error {
		ctx := context.WithValue(c.UserContext(), logx.RequestIDKey, httpx.RequestID(c))
		c.SetUserContext(ctx)
		return c.Next()
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${respHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	// Health & metrics
	app.Get("/health", healthCheckHandler(container))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(container.Metrics, promhttp.HandlerOpts{})))

	// Routes
	container.IAM.RegisterRoutes(app)
	logx.Info("✓ User, OAuth and auth routes registered")

	container.Payment.RegisterRoutes(app)
	logx.Info("✓ Payment routes registered")

	app.Use(notFoundHandler)
	return app
}

// healthCheckHandler pings every backing store concurrently.
func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ping := func(fn func(context.Context) error) func(context.Context) (struct{}, error) {
			return func(ctx context.Context) (struct{}, error) {
				return asyncx.WithTimeout(ctx, healthCheckTimeout, func(ctx context.Context) (struct{}, error) {
					return struct{}{}, fn(ctx)
				})
			}
		}

		results := asyncx.AllSettled(c.UserContext(),
			ping(container.DB.PingContext),
			ping(func(ctx context.Context) error { return container.Redis.Ping(ctx).Err() }),
		)

		health := fiber.Map{
			"status":  "healthy",
			"service": "keybridge",
			"version": container.Config.Server.Version,
		}
		names := []string{"db", "redis"}
		for i, r := range results {
			if r.OK() {
				health[names[i]] = "healthy"
				continue
			}
			health[names[i]] = "unhealthy"
			health[names[i]+"_error"] = r.Err.Error()
			health["status"] = "degraded"
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(httpx.Envelope{
		Success:   false,
		Message:   "The requested endpoint does not exist",
		Code:      "NOT_FOUND",
		RequestID: httpx.RequestID(c),
	})
}

// serve runs the HTTP server and job workers until SIGINT or SIGTERM.
func serve(container *Container) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(container)
	workersDone := container.StartBackgroundServices(ctx)

	port := container.Config.Server.Port
	errCh := make(chan error, 1)
	go func() {
		logx.Infof("🚀 Server listening on port %s", port)
		logx.Infof("💚 Health Check: http://localhost:%s/health", port)
		errCh <- app.Listen(":" + port)
	}()

	select {
	case err := <-errCh:
		stop()
		<-workersDone
		return err
	case <-ctx.Done():
	}

	logx.Info("🛑 Shutting down gracefully...")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}
	<-workersDone

	logx.Info("✅ Server exited successfully")
	return nil
}
