// Package config decodes and validates the chatd configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration
type Config struct {
	DataDir  string         `mapstructure:"data_dir" validate:"required"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	NovelAI  NovelAIConfig  `mapstructure:"novelai"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver" validate:"oneof=sqlite pgx"`
	DSN            string        `mapstructure:"dsn"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gte=0"`
}

type GeminiConfig struct {
	Model    string `mapstructure:"model"`
	ToolMode string `mapstructure:"tool_mode" validate:"oneof=auto any none"`
}

type AgentConfig struct {
	MaxToolRounds int    `mapstructure:"max_tool_rounds" validate:"gte=1,lte=64"`
	SystemPrompt  string `mapstructure:"system_prompt"`
}

type ToolsConfig struct {
	Alert      ToggleConfig     `mapstructure:"alert"`
	JavaScript JavaScriptConfig `mapstructure:"javascript"`
	Query      QueryConfig      `mapstructure:"query"`
	Image      ToggleConfig     `mapstructure:"image"`
}

type ToggleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type JavaScriptConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type QueryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	AllowWrites bool `mapstructure:"allow_writes"`
}

type NovelAIConfig struct {
	Endpoint string        `mapstructure:"endpoint" validate:"required,url"`
	Model    string        `mapstructure:"model" validate:"required"`
	Size     string        `mapstructure:"size" validate:"required"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// DefaultDataDir returns ~/.chatd
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatd"
	}
	return filepath.Join(home, ".chatd")
}

// SetDefaults registers the default of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.connect_timeout", 30*time.Second)
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.tool_mode", "auto")
	v.SetDefault("agent.max_tool_rounds", 8)
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("tools.alert.enabled", true)
	v.SetDefault("tools.javascript.enabled", false)
	v.SetDefault("tools.javascript.timeout", 2*time.Second)
	v.SetDefault("tools.query.enabled", true)
	v.SetDefault("tools.query.allow_writes", false)
	v.SetDefault("tools.image.enabled", true)
	v.SetDefault("novelai.endpoint", "https://image.novelai.net/ai/generate-image")
	v.SetDefault("novelai.model", "nai-diffusion-4-full")
	v.SetDefault("novelai.size", "832x1216")
	v.SetDefault("novelai.timeout", 120*time.Second)
}

// Load decodes v into a Config and validates it. An empty sqlite DSN becomes
// <data_dir>/chatd.db.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = filepath.Join(cfg.DataDir, "chatd.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("invalid configuration: database.dsn is required for driver %s", c.Database.Driver)
	}
	return nil
}
