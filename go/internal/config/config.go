// Package config loads settings from an optional YAML file with environment
// overrides on top, defaults baked in.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the authority binary.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	NATSURL        string   `yaml:"nats_url"`
	RelaySubject   string   `yaml:"relay_subject"`
}

// ClientConfig configures the observer client binary.
type ClientConfig struct {
	URL          string        `yaml:"url"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

// Config is the full on-disk configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":3000",
			AllowedOrigins: []string{"*"},
		},
		Client: ClientConfig{
			URL:          "ws://localhost:3000/ws",
			ReconnectMin: 500 * time.Millisecond,
			ReconnectMax: 30 * time.Second,
		},
	}
}

// Load reads path (skipped when empty or missing) and applies CLOCKTOWER_*
// environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file is fine; env and defaults carry it.
		case err != nil:
			return cfg, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.Server.Addr = getEnv("CLOCKTOWER_ADDR", cfg.Server.Addr)
	cfg.Server.NATSURL = getEnv("CLOCKTOWER_NATS_URL", cfg.Server.NATSURL)
	cfg.Server.RelaySubject = getEnv("CLOCKTOWER_RELAY_SUBJECT", cfg.Server.RelaySubject)
	cfg.Client.URL = getEnv("CLOCKTOWER_URL", cfg.Client.URL)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
