// Package config loads environment configuration into typed structs.
//
// Structs declare their variables with caarlos0/env tags; Load reads the
// optional .env file once per process (godotenv) and parses the environment
// into the struct. Each config type is parsed once and cached, so components
// that call Load for the same type share one value.
//
//	type Config struct {
//		URL            string        `env:"REALTIME_URL,required"`
//		ConnectTimeout time.Duration `env:"REALTIME_CONNECT_TIMEOUT" envDefault:"10s"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
package config
