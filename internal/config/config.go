// Package config loads workforce settings from defaults, an optional YAML file
// and WORKFORCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration.
type Config struct {
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Log       LogConfig       `mapstructure:"log"`
}

type GatewayConfig struct {
	Provider  string            `mapstructure:"provider" validate:"required,oneof=anthropic openai perplexity google ollama"`
	Model     string            `mapstructure:"model"`
	PlanModel string            `mapstructure:"planmodel"`
	BaseURL   string            `mapstructure:"baseurl"`
	MaxTokens int               `mapstructure:"maxtokens" validate:"gte=1"`
	Timeout   time.Duration     `mapstructure:"timeout" validate:"gte=0"`
	APIKeys   map[string]string `mapstructure:"apikeys"`
}

type DirectoryConfig struct {
	// Path to a directory of roster YAML files. Empty means the built-in roster.
	Path string `mapstructure:"path"`
}

type LedgerConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type QuotaConfig struct {
	FreeTierTokens   int64 `mapstructure:"freetiertokens" validate:"gte=0"`
	PaidTierTokens   int64 `mapstructure:"paidtiertokens" validate:"gte=0"`
	FreeMonthlyLimit int64 `mapstructure:"freemonthlylimit" validate:"gte=0"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.provider", "anthropic")
	v.SetDefault("gateway.model", "")
	v.SetDefault("gateway.planModel", "")
	v.SetDefault("gateway.baseURL", "")
	v.SetDefault("gateway.maxTokens", 4096)
	v.SetDefault("gateway.timeout", 2*time.Minute)
	v.SetDefault("directory.path", "")
	v.SetDefault("ledger.path", ".workforce/ledger.db")
	v.SetDefault("quota.freeTierTokens", 100_000)
	v.SetDefault("quota.paidTierTokens", 1_000_000)
	v.SetDefault("quota.freeMonthlyLimit", 500_000)
	v.SetDefault("log.file", "workforce.log")
	v.SetDefault("log.level", "info")
}

// Load resolves configuration. path may be empty; a missing explicit file is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WORKFORCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("workforce")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Gateway.Provider = strings.ToLower(strings.TrimSpace(cfg.Gateway.Provider))

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// APIKey returns the key for provider: config first, then the provider's env var.
func (c *Config) APIKey(provider string) string {
	if k := strings.TrimSpace(c.Gateway.APIKeys[strings.ToLower(provider)]); k != "" {
		return k
	}
	switch provider {
	case "anthropic":
		return strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	case "openai":
		return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	case "perplexity":
		return strings.TrimSpace(os.Getenv("PERPLEXITY_API_KEY"))
	case "google":
		key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		if key == "" {
			key = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
		}
		return key
	default:
		return ""
	}
}
