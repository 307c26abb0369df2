package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig holds all configuration for the auth pipeline client.
// Tags use mapstructure for Viper unmarshalling.
type ClientConfig struct {
	ServerEndpoint string `mapstructure:"SERVER_ENDPOINT"`
	RequestTimeout string `mapstructure:"REQUEST_TIMEOUT"`

	// NearExpiryWindowMin is the proactive-refresh margin in minutes.
	NearExpiryWindowMin int  `mapstructure:"NEAR_EXPIRY_WINDOW_MIN"`
	ExtendSession       bool `mapstructure:"EXTEND_SESSION"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// Session store selection: "memory", "bolt", "redis" or "mongo".
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	BoltPath     string `mapstructure:"BOLT_PATH"`
	RedisAddr    string `mapstructure:"REDIS_ADDR"`
	RedisPrefix  string `mapstructure:"REDIS_PREFIX"`
	MongoURI     string `mapstructure:"MONGO_URI"`
	MongoDBName  string `mapstructure:"MONGO_DB_NAME"`
}

// NearExpiryWindow returns the configured window as a duration.
func (c *ClientConfig) NearExpiryWindow() time.Duration {
	return time.Duration(c.NearExpiryWindowMin) * time.Minute
}

// Timeout parses RequestTimeout, defaulting to 30s on malformed input.
func (c *ClientConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ClientConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/authflow/")
	v.AddConfigPath("$HOME/.authflow")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SERVER_ENDPOINT", "http://localhost:8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("NEAR_EXPIRY_WINDOW_MIN", 5)
	v.SetDefault("EXTEND_SESSION", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("STORE_BACKEND", "bolt")
	v.SetDefault("BOLT_PATH", "$HOME/.authflow/session.db")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PREFIX", "authflow")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/authflow")
	v.SetDefault("MONGO_DB_NAME", "authflow")

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}
