package config

import "time"

// MoMoConfig configures the MoMo payment gateway.
type MoMoConfig struct {
	PartnerCode string        `env:"PARTNER_CODE"`
	AccessKey   string        `env:"ACCESS_KEY"`
	SecretKey   string        `env:"SECRET_KEY"`
	Endpoint    string        `env:"ENDPOINT" envDefault:"https://test-payment.momo.vn/v2/gateway/api/create"`
	RedirectURL string        `env:"REDIRECT_URL"`
	IPNURL      string        `env:"IPN_URL"`
	Amount      int64         `env:"AMOUNT" envDefault:"50000"`
	OrderInfo   string        `env:"ORDER_INFO" envDefault:"Upgrade account to VIP"`
	RequestType string        `env:"REQUEST_TYPE" envDefault:"captureWallet"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

func (m MoMoConfig) Enabled() bool {
	return m.PartnerCode != "" && m.AccessKey != "" && m.SecretKey != ""
}
