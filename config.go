package chatsdk

import (
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultBaseURL   = "https://api.slackclone.com"
	DefaultSocketURL = "ws://localhost:4000/socket/websocket"
)

// Config holds the endpoints and HTTP behaviour of a Client. The mapstructure
// tags let it be loaded with viper.
type Config struct {
	BaseURL   string `mapstructure:"base_url" json:"base_url" validate:"required,url"`
	SocketURL string `mapstructure:"socket_url" json:"socket_url" validate:"required,url"`
	// Timeout bounds every single HTTP attempt.
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
	RetryAttempts int           `mapstructure:"retry_attempts" json:"retry_attempts" validate:"gte=0,lte=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" json:"retry_delay" validate:"gte=0"`
	// HeartbeatInterval enables Phoenix heartbeats when > 0.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" json:"heartbeat_interval" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		SocketURL:     DefaultSocketURL,
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
