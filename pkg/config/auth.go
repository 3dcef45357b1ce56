package config

import "time"

type AuthConfig struct {
	// JWTSecret signs activation and password reset tokens
	JWTSecret      string        `env:"JWT_SECRET"`
	ActivationTTL  time.Duration `env:"ACTIVATION_TTL" envDefault:"1h"`
	ResetTTL       time.Duration `env:"RESET_TTL" envDefault:"1h"`
	JWKSCacheTTL   time.Duration `env:"JWKS_CACHE_TTL" envDefault:"10m"`
	AuthServiceURL string        `env:"AUTH_SERVICE_URL" envDefault:"http://localhost:5000"`
	FrontendURL    string        `env:"FRONTEND_SERVICE_URL" envDefault:"http://localhost:3000"`
	AdminRole      string        `env:"ADMIN_ROLE" envDefault:"admin"`
	VIPRole        string        `env:"VIP_ROLE" envDefault:"user-vip"`

	// ReconcileDelay is how long after a provisioning attempt the
	// reconcile job inspects both stores.
	ReconcileDelay time.Duration `env:"RECONCILE_DELAY" envDefault:"5m"`
}

type OAuthConfig struct {
	Google     OAuthProviderConfig `envPrefix:"GOOGLE_"`
	GitHub     OAuthProviderConfig `envPrefix:"GITHUB_"`
	StateTTL   time.Duration       `env:"OAUTH_STATE_TTL" envDefault:"10m"`
	StateStore string              `env:"OAUTH_STATE_STORE" envDefault:"redis"`
	Timeout    time.Duration       `env:"OAUTH_TIMEOUT" envDefault:"10s"`
}

type OAuthProviderConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URI"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// Enabled reports whether the provider has credentials configured.
func (p OAuthProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}
