package restapi

import "time"

// Config configures the backend client and poller.
type Config struct {
	BaseURL      string        `env:"API_BASE_URL"`                          // BaseURL is the backend root, e.g. https://school.example.com/api. Empty disables REST.
	Token        string        `env:"API_TOKEN"`                             // Token is sent as a bearer credential.
	PollInterval time.Duration `env:"API_POLL_INTERVAL" envDefault:"60s"`    // PollInterval is the pause between two polls.
	PageSize     int           `env:"API_PAGE_SIZE" envDefault:"50"`         // PageSize is the per_page value of each poll.
	Timeout      time.Duration `env:"API_TIMEOUT" envDefault:"15s"`          // Timeout bounds a single request attempt.
	MaxRetries   int           `env:"API_MAX_RETRIES" envDefault:"2"`        // MaxRetries is how often a temporary failure is retried.
	RetryBackoff time.Duration `env:"API_RETRY_BACKOFF" envDefault:"500ms"`  // RetryBackoff is the first retry delay; it doubles per attempt.
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}
