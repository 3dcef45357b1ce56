package config

// NotifxConfig selects and configures the email provider.
type NotifxConfig struct {
	// Provider is console, ses or smtp
	Provider    string     `env:"PROVIDER" envDefault:"console"`
	FromAddress string     `env:"FROM_ADDRESS" envDefault:"noreply@keybridge.local"`
	FromName    string     `env:"FROM_NAME" envDefault:"To Do App"`
	AWSRegion   string     `env:"AWS_REGION" envDefault:"us-east-1"`
	SMTP        SMTPConfig `envPrefix:"SMTP_"`
}

type SMTPConfig struct {
	Host     string `env:"HOST" envDefault:"smtp.gmail.com"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}
