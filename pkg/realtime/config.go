package realtime

import "time"

// Config configures the realtime client.
type Config struct {
	URL               string        `env:"REALTIME_URL" envDefault:"ws://localhost:3000/ws"`    // URL is the websocket endpoint.
	ConnectTimeout    time.Duration `env:"REALTIME_CONNECT_TIMEOUT" envDefault:"10s"`            // ConnectTimeout bounds a single connect attempt.
	ReconnectAttempts int           `env:"REALTIME_RECONNECT_ATTEMPTS" envDefault:"5"`           // ReconnectAttempts is how many times a lost connection is retried; 0 disables reconnects.
	ReconnectDelay    time.Duration `env:"REALTIME_RECONNECT_DELAY" envDefault:"1s"`             // ReconnectDelay is the fixed wait before each reconnect attempt.
	WriteTimeout      time.Duration `env:"REALTIME_WRITE_TIMEOUT" envDefault:"10s"`              // WriteTimeout bounds each outbound frame.
	PingInterval      time.Duration `env:"REALTIME_PING_INTERVAL" envDefault:"25s"`              // PingInterval is the keepalive period; 0 disables pings.
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReconnectAttempts < 0 {
		c.ReconnectAttempts = 0
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}
