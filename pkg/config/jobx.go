package config

import "time"

// JobxConfig configures the background job workers.
type JobxConfig struct {
	Enabled           bool          `env:"ENABLED" envDefault:"true"`
	Concurrency       int           `env:"CONCURRENCY" envDefault:"4"`
	Queues            []string      `env:"QUEUES" envSeparator:"," envDefault:"iam"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	DequeueTimeout    time.Duration `env:"DEQUEUE_TIMEOUT" envDefault:"5s"`
	DefaultRetryDelay time.Duration `env:"DEFAULT_RETRY_DELAY" envDefault:"30s"`
}
