// Package config loads application configuration from a config file and
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const appName = "chatscope"

// Config is the main configuration structure for the application.
type Config struct {
	API   APIConfig  `json:"api"`
	Auth  AuthConfig `json:"auth"`
	Debug bool       `json:"debug,omitempty"`
}

// APIConfig defines how the product backend is reached.
type APIConfig struct {
	BaseURL          string `json:"baseURL"`
	RequestTimeoutMs int    `json:"requestTimeoutMs"`
}

// AuthConfig holds the bearer credential. An empty token means the user is
// unauthenticated; the session manager degrades to a non-persisted surface.
type AuthConfig struct {
	Token string `json:"token,omitempty"`
}

// Load reads configuration from .chatscope config files and CHATSCOPE_*
// environment variables, with sensible defaults.
func Load() (*Config, error) {
	configureViper()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func configureViper() {
	viper.SetConfigName(fmt.Sprintf(".%s", appName))
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func setDefaults() {
	viper.SetDefault("api.baseURL", "https://api.recap.app")
	viper.SetDefault("api.requestTimeoutMs", 60000)
	viper.SetDefault("auth.token", "")
	viper.SetDefault("debug", false)
}
