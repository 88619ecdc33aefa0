package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM      LLMConfig
	Models   []ModelConfig `mapstructure:"models"`
	Server   ServerConfig
	History  HistoryConfig
	Identity IdentityConfig
	Reveal   RevealConfig
	Log      LogConfig
}

// LLMConfig holds the completion API configuration
type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Temperature  float32       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ModelConfig is one entry of the model picker.
type ModelConfig struct {
	ID    string `mapstructure:"id"`
	Label string `mapstructure:"label"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// HistoryConfig controls SQLite persistence of signed-in conversations.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// IdentityConfig selects the identity provider.
//
// Provider is one of "guest", "static" or "identitytoolkit".
type IdentityConfig struct {
	Provider    string `mapstructure:"provider"`
	DisplayName string `mapstructure:"display_name"`
	Email       string `mapstructure:"email"`
	Endpoint    string `mapstructure:"endpoint"`
	APIKey      string `mapstructure:"api_key"`
	IDToken     string `mapstructure:"id_token"`
}

// RevealConfig holds the typewriter cadence.
type RevealConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

const envPrefix = "SONAR"

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.system_prompt", "You are a helpful AI assistant.")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8080")
	v.SetDefault("history.db_path", "history.db")
	v.SetDefault("identity.provider", "guest")
	v.SetDefault("identity.endpoint", "https://identitytoolkit.googleapis.com/v1")
	v.SetDefault("reveal.interval", 20*time.Millisecond)
	v.SetDefault("log.level", "info")
}

// Load loads the configuration from config.yaml, CONFIG_PATH or the given
// path, with SONAR_* environment variables taking precedence. A missing
// config file is not an error.
func Load(path ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about.
	for _, key := range []string{"llm.base_url", "llm.api_key", "llm.model", "identity.id_token", "identity.api_key", "identity.display_name", "identity.email"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	file := ""
	if len(path) > 0 && path[0] != "" {
		file = path[0]
	} else if env := os.Getenv("CONFIG_PATH"); env != "" {
		file = env
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings every command relies on. The completion
// endpoint is checked separately by ValidateLLM.
func (c *Config) Validate() error {
	for i, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("models[%d]: id is required", i)
		}
	}
	switch c.Identity.Provider {
	case "", "guest", "static", "identitytoolkit":
	default:
		return fmt.Errorf("unknown identity provider %q", c.Identity.Provider)
	}
	return nil
}

// ValidateLLM checks the settings needed to talk to the completion API.
func (c *Config) ValidateLLM() error {
	if c.LLM.BaseURL == "" {
		return errors.New("llm.base_url is required")
	}
	return nil
}
