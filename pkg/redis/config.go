package redis

import "time"

// Config configures the connection and the notification mirror.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`                                               // ConnectionURL is the server URL, e.g. "redis://:password@localhost:6379/0". Empty disables the mirror.
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`                      // RetryAttempts is the number of connection attempts.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`                     // RetryInterval is the pause between connection attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`                   // ConnectTimeout bounds all connection attempts together.
	MirrorKey      string        `env:"REDIS_MIRROR_KEY" envDefault:"schoolfeed:notifications"`   // MirrorKey is the hash holding mirrored records.
	ChannelPrefix  string        `env:"REDIS_CHANNEL_PREFIX" envDefault:"user_notifications:"`    // ChannelPrefix is prepended to the user id to form the relay channel.
}
