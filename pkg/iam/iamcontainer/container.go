package iamcontainer

import (
	"net/http"

	"github.com/Abraxas-365/keybridge/pkg/config"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/keybridge/pkg/iam/oauth"
	"github.com/Abraxas-365/keybridge/pkg/iam/oauth/oauthapi"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/iam/user/userapi"
	"github.com/Abraxas-365/keybridge/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/keybridge/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/keybridge/pkg/jobx"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/Abraxas-365/keybridge/pkg/notifx"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// ---------------------------------------------------------------------------

// Deps are the external dependencies the IAM module requires.
type Deps struct {
	// DB may be nil, in which case users and settings live in memory.
	DB    *sqlx.DB
	Redis redis.UniversalClient
	Cfg   *config.Config

	Jobs     *jobx.Client
	Notifier *notifx.Client
	Metrics  prometheus.Registerer
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// ---------------------------------------------------------------------------

// Container is the public surface of the IAM module.
type Container struct {
	UserService *usersrv.UserService
	Bridge      *oauth.Bridge
	Keycloak    *keycloak.Client
	Audit       auth.AuditService
	Settings    user.SettingRepository

	AuthMiddleware *auth.TokenMiddleware

	UserHandlers  *userapi.Handlers
	OAuthHandlers *oauthapi.Handlers
}

// New builds the IAM graph: infra, repos, services, handlers.
func New(deps Deps) (*Container, error) {
	logx.Info("Initializing IAM container...")
	cfg := deps.Cfg
	c := &Container{}

	// ── Repositories ─────────────────────────────────────────────────────

	var users user.UserRepository
	if deps.DB != nil {
		users = userinfra.NewPostgresUserRepository(deps.DB)
		c.Settings = userinfra.NewPostgresSettingRepository(deps.DB)
	} else {
		users = userinfra.NewMemoryUserRepository()
		c.Settings = userinfra.NewMemorySettingRepository(nil)
		logx.Warn("  using in-memory user store (not for production)")
	}

	// ── Infrastructure services ──────────────────────────────────────────

	c.Keycloak = keycloak.New(keycloak.Config{
		BaseURL:       cfg.Keycloak.BaseURL,
		Realm:         cfg.Keycloak.Realm,
		ClientID:      cfg.Keycloak.ClientID,
		ClientSecret:  cfg.Keycloak.ClientSecret,
		AdminUsername: cfg.Keycloak.AdminUsername,
		AdminPassword: cfg.Keycloak.AdminPassword,
		Timeout:       cfg.Keycloak.Timeout,
	})

	var states auth.StateStore
	if cfg.OAuth.StateStore == "redis" && deps.Redis != nil {
		states = authinfra.NewRedisStateStore(deps.Redis)
		logx.Info("  using Redis OAuth state store")
	} else {
		states = authinfra.NewMemoryStateStore()
		logx.Warn("  using in-memory OAuth state store")
	}

	c.Audit = authinfra.NewLogxAuditService(deps.Metrics)

	if err := usersrv.RegisterTemplates(deps.Notifier); err != nil {
		return nil, err
	}
	mailer := usersrv.NewMailer(deps.Notifier, enqueuer(deps.Jobs), cfg.Auth.AuthServiceURL, cfg.Auth.FrontendURL)
	tokens := auth.NewEmailTokenService(cfg.Auth.JWTSecret, cfg.Auth.ActivationTTL, cfg.Auth.ResetTTL)

	// ── Domain services ──────────────────────────────────────────────────

	c.UserService = usersrv.NewUserService(usersrv.Deps{
		Users:    users,
		Settings: c.Settings,
		Identity: c.Keycloak,
		Tokens:   tokens,
		Mailer:   mailer,
		Jobs:     enqueuer(deps.Jobs),
		Audit:    c.Audit,
	}, usersrv.Config{
		VIPRole:        cfg.Auth.VIPRole,
		ReconcileDelay: cfg.Auth.ReconcileDelay,
	})
	if deps.Jobs != nil {
		c.UserService.RegisterJobs(deps.Jobs)
	}

	// ── OAuth providers ──────────────────────────────────────────────────

	oauthClient := &http.Client{Timeout: cfg.OAuth.Timeout}
	var providers []oauth.Provider
	if cfg.OAuth.Google.Enabled() {
		providers = append(providers, oauth.NewGoogleProvider(cfg.OAuth.Google, oauth.WithHTTPClient(oauthClient)))
		logx.Info("  Google OAuth enabled")
	}
	if cfg.OAuth.GitHub.Enabled() {
		providers = append(providers, oauth.NewGitHubProvider(cfg.OAuth.GitHub, oauth.WithHTTPClient(oauthClient)))
		logx.Info("  GitHub OAuth enabled")
	}
	c.Bridge = oauth.NewBridge(users, c.UserService, states, cfg.OAuth.StateTTL, providers...)

	// ── Handlers & middleware ────────────────────────────────────────────

	c.AuthMiddleware = auth.NewTokenMiddleware(auth.NewKeycloakVerifier(c.Keycloak, cfg.Auth.JWKSCacheTTL))
	c.UserHandlers = userapi.NewHandlers(c.UserService, cfg.Auth.AdminRole)
	c.OAuthHandlers = oauthapi.NewHandlers(c.Bridge)

	logx.Info("IAM container initialized")
	return c, nil
}

// RegisterRoutes mounts every IAM route on app.
func (c *Container) RegisterRoutes(app fiber.Router) {
	c.UserHandlers.RegisterRoutes(app, c.AuthMiddleware)
	c.OAuthHandlers.RegisterRoutes(app)
}

// enqueuer avoids handing a typed nil *jobx.Client to an interface field.
func enqueuer(c *jobx.Client) jobx.JobEnqueuer {
	if c == nil {
		return nil
	}
	return c
}
