package notifx

// SendOptions holds optional per-send settings.
type SendOptions struct {
	Tags map[string]string
}

type Option func(*SendOptions)

// WithTags attaches metadata tags, e.g. the mail kind.
func WithTags(tags map[string]string) Option {
	return func(o *SendOptions) {
		o.Tags = tags
	}
}

// ApplySendOptions folds opts into a SendOptions value for providers.
func ApplySendOptions(opts []Option) SendOptions {
	var so SendOptions
	for _, o := range opts {
		o(&so)
	}
	return so
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDefaultFrom sets the sender used when a message has none.
func WithDefaultFrom(from string) ClientOption {
	return func(c *Client) {
		c.defaultFrom = from
	}
}
