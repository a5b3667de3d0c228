package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/schoolfeed/pkg/config"
)

type channelConfig struct {
	URL      string        `env:"TEST_CHANNEL_URL" envDefault:"ws://localhost:3000/ws"`
	Timeout  time.Duration `env:"TEST_CHANNEL_TIMEOUT" envDefault:"10s"`
	Attempts int           `env:"TEST_CHANNEL_ATTEMPTS" envDefault:"5"`
}

type requiredConfig struct {
	Token string `env:"TEST_REQUIRED_TOKEN,required"`
}

type cachedConfig struct {
	Value string `env:"TEST_CACHED_VALUE" envDefault:"first"`
}

func TestLoad(t *testing.T) {
	config.Reset()
	t.Setenv("TEST_CHANNEL_URL", "wss://school.example/ws")
	t.Setenv("TEST_CHANNEL_ATTEMPTS", "3")

	var cfg channelConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "wss://school.example/ws", cfg.URL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Attempts)
}

func TestLoad_Cached(t *testing.T) {
	config.Reset()
	t.Setenv("TEST_CACHED_VALUE", "first")

	var a cachedConfig
	require.NoError(t, config.Load(&a))

	t.Setenv("TEST_CACHED_VALUE", "second")
	var b cachedConfig
	require.NoError(t, config.Load(&b))
	assert.Equal(t, "first", b.Value)

	config.Reset()
	var c cachedConfig
	require.NoError(t, config.Load(&c))
	assert.Equal(t, "second", c.Value)
}

func TestLoad_Errors(t *testing.T) {
	config.Reset()

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrParsingConfig))

	var nilCfg *requiredConfig
	assert.ErrorIs(t, config.Load(nilCfg), config.ErrNilPointer)

	t.Setenv("TEST_REQUIRED_TOKEN", "secret")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "secret", cfg.Token)
}

func TestMustLoad(t *testing.T) {
	config.Reset()
	var cfg requiredConfig
	assert.Panics(t, func() { config.MustLoad(&cfg) })
}

func TestParse(t *testing.T) {
	t.Setenv("TEST_CHANNEL_URL", "ws://other/ws")
	var cfg channelConfig
	require.NoError(t, config.Parse(&cfg))
	assert.Equal(t, "ws://other/ws", cfg.URL)
}
