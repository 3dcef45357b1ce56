// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis, jobs, mail) and
// composes the bounded-context containers.
package main

import (
	"context"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/config"
	"github.com/Abraxas-365/keybridge/pkg/dbx"
	"github.com/Abraxas-365/keybridge/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/keybridge/pkg/jobx"
	"github.com/Abraxas-365/keybridge/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/Abraxas-365/keybridge/pkg/notifx"
	"github.com/Abraxas-365/keybridge/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/keybridge/pkg/notifx/notifxses"
	"github.com/Abraxas-365/keybridge/pkg/notifx/notifxsmtp"
	"github.com/Abraxas-365/keybridge/pkg/payment/paymentcontainer"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// Container holds shared infrastructure and composed module containers.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB       *sqlx.DB
	Redis    *redis.Client
	Jobs     *jobx.Client
	Notifier *notifx.Client
	Metrics  *prometheus.Registry

	// Bounded-context containers
	IAM     *iamcontainer.Container
	Payment *paymentcontainer.Container
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logx.Info("Initializing application container...")

	c := &Container{Config: cfg}

	if err := c.initInfrastructure(ctx); err != nil {
		c.Cleanup()
		return nil, err
	}
	if err := c.initModules(); err != nil {
		c.Cleanup()
		return nil, err
	}

	logx.Info("Application container initialized")
	return c, nil
}

// ---------------------------------------------------------------------------
// Infrastructure: DB, Redis, jobs, mail, metrics
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure(ctx context.Context) error {
	db, err := dbx.Connect(c.Config.Database)
	if err != nil {
		return err
	}
	c.DB = db
	logx.Info("  Database connected")

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		return err
	}
	logx.Info("  Redis connected")

	jc := c.Config.Jobx
	c.Jobs = jobx.NewClient(
		jobxredis.NewRedisQueue(c.Redis,
			jobxredis.WithKeyPrefix("keybridge:jobs"),
			jobxredis.WithFinishedTTL(24*time.Hour),
		),
		jobx.WithQueues(jc.Queues...),
		jobx.WithConcurrency(jc.Concurrency),
		jobx.WithPollInterval(jc.PollInterval),
		jobx.WithShutdownTimeout(jc.ShutdownTimeout),
		jobx.WithDequeueTimeout(jc.DequeueTimeout),
		jobx.WithDefaultRetryDelay(jc.DefaultRetryDelay),
	)

	sender, err := c.emailProvider(ctx)
	if err != nil {
		return err
	}
	c.Notifier = notifx.NewClient(sender, notifx.WithDefaultFrom(c.Config.Notifx.FromAddress))

	c.Metrics = prometheus.NewRegistry()
	c.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return nil
}

func (c *Container) emailProvider(ctx context.Context) (notifx.EmailSender, error) {
	nc := c.Config.Notifx

	switch nc.Provider {
	case "ses":
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(nc.AWSRegion))
		if err != nil {
			return nil, err
		}
		logx.Infof("  SES email provider (region: %s)", nc.AWSRegion)
		return notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), nc.FromAddress), nil
	case "smtp":
		logx.Infof("  SMTP email provider (%s:%d)", nc.SMTP.Host, nc.SMTP.Port)
		return notifxsmtp.NewSMTPProvider(notifxsmtp.Config{
			Host:     nc.SMTP.Host,
			Port:     nc.SMTP.Port,
			Username: nc.SMTP.Username,
			Password: nc.SMTP.Password,
			From:     nc.FromAddress,
			FromName: nc.FromName,
		}), nil
	default:
		logx.Warn("  console email provider, mails are only logged")
		return notifxconsole.NewConsoleProvider(), nil
	}
}

// ---------------------------------------------------------------------------
// Module composition: each bounded context wires itself
// ---------------------------------------------------------------------------

func (c *Container) initModules() error {
	iam, err := iamcontainer.New(iamcontainer.Deps{
		DB:       c.DB,
		Redis:    c.Redis,
		Cfg:      c.Config,
		Jobs:     c.Jobs,
		Notifier: c.Notifier,
		Metrics:  c.Metrics,
	})
	if err != nil {
		return err
	}
	c.IAM = iam

	c.Payment = paymentcontainer.New(paymentcontainer.Deps{
		Cfg:        c.Config.MoMo,
		Upgrader:   iam.UserService,
		Audit:      iam.Audit,
		Middleware: iam.AuthMiddleware,
	})
	return nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartBackgroundServices runs the job workers until ctx is done. The
// returned channel closes once they have stopped.
func (c *Container) StartBackgroundServices(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if !c.Config.Jobx.Enabled {
		logx.Warn("Job workers disabled; queued mails and reconcile jobs wait for another node")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		if err := c.Jobs.Start(ctx); err != nil {
			logx.WithError(err).Error("job workers stopped")
		}
	}()
	return done
}

func (c *Container) Cleanup() {
	logx.Info("Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		}
	}
}
