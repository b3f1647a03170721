package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config defines the client-side environment variables. Flags override them.
type Config struct {
	ServerAddress string `envconfig:"CITYCHAT_SERVER_ADDR" default:"localhost:8080"`
	IdentityPath  string `envconfig:"CITYCHAT_IDENTITY_PATH"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"WARN"`
	Width         int    `envconfig:"CITYCHAT_WIDTH" default:"80"`
}

func loadConfig() (Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if config.IdentityPath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			config.IdentityPath = filepath.Join(dir, "citychat", "identity")
		}
	}
	return config, nil
}
