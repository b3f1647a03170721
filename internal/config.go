// Package internal holds the server configuration and its debug HTTP surface.
package internal

import (
	"citychat/repositories"
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"min=1"`
	TelemetryBufferSize  int           `env:"TELEMETRY_BUFFER_SIZE,default=1024" validate:"min=1"`
	HistoryLimit         int           `env:"HISTORY_LIMIT,default=10" validate:"min=1,max=1000"`
	MaxMessageLength     int           `env:"MAX_MESSAGE_LENGTH,default=4096" validate:"min=1"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	StoreDriver          string        `env:"STORE_DRIVER,default=badger" validate:"oneof=badger pebble"`
	StorePath            string        `env:"STORE_PATH,required=true" validate:"required"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO" validate:"required"`
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080" validate:"min=1,max=65535"`
	DebugPort            int           `env:"DEBUG_PORT,default=0" validate:"min=0,max=65535"`
}

// LoadConfig reads the environment, after an optional .env file of the working directory.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func (c Config) Driver() repositories.Driver {
	return repositories.Driver(c.StoreDriver)
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) DebugAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.DebugPort)
}
