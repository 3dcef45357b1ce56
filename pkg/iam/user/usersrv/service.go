package usersrv

import (
	"time"

	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/jobx"
)

// EmailTokens issues and checks the tokens mailed to users.
type EmailTokens interface {
	Issue(email string, purpose auth.TokenPurpose) (string, error)
	Verify(token string, purpose auth.TokenPurpose) (string, error)
}

// Config holds the tunables of UserService.
type Config struct {
	// VIPRole is the realm role UpgradeVIP assigns. Defaults to "user-vip".
	VIPRole string

	// ReconcileDelay is how long after a provisioning attempt its
	// reconcile job runs.
	ReconcileDelay time.Duration
}

// Deps are the collaborators UserService needs. Jobs may be nil, in which
// case reconcile intents are not recorded.
type Deps struct {
	Users    user.UserRepository
	Settings user.SettingRepository
	Identity user.IdentityProvider
	Tokens   EmailTokens
	Mailer   *Mailer
	Jobs     jobx.JobEnqueuer
	Audit    auth.AuditService
}

// UserService owns every flow that touches both the local store and
// Keycloak.
type UserService struct {
	users    user.UserRepository
	settings user.SettingRepository
	idp      user.IdentityProvider
	tokens   EmailTokens
	mailer   *Mailer
	jobs     jobx.JobEnqueuer
	audit    auth.AuditService
	cfg      Config
}

// NewUserService creates a UserService, filling Config defaults.
func NewUserService(deps Deps, cfg Config) *UserService {
	if cfg.VIPRole == "" {
		cfg.VIPRole = "user-vip"
	}
	if cfg.ReconcileDelay <= 0 {
		cfg.ReconcileDelay = 5 * time.Minute
	}
	return &UserService{
		users:    deps.Users,
		settings: deps.Settings,
		idp:      deps.Identity,
		tokens:   deps.Tokens,
		mailer:   deps.Mailer,
		jobs:     deps.Jobs,
		audit:    deps.Audit,
		cfg:      cfg,
	}
}

// RegisterJobs binds the service's background jobs to c.
func (s *UserService) RegisterJobs(c *jobx.Client) {
	jobx.Handle(c, JobSendEmail, s.mailer.Deliver)
	jobx.Handle(c, JobReconcileIdentity, s.Reconcile)
}
