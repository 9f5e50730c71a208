package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Parser    ParserConfig    `yaml:"parser" mapstructure:"parser"`
	Workflow  WorkflowConfig  `yaml:"workflow" mapstructure:"workflow"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the session persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	InputPerMTok   float64 `yaml:"input_per_mtok" mapstructure:"input_per_mtok"`
	OutputPerMTok  float64 `yaml:"output_per_mtok" mapstructure:"output_per_mtok"`
}

// ParserConfig configures extraction behavior.
type ParserConfig struct {
	MaxPrice    float64 `yaml:"max_price" mapstructure:"max_price"`
	MaxPercent  float64 `yaml:"max_percent" mapstructure:"max_percent"`
	OverlayFile string  `yaml:"overlay_file" mapstructure:"overlay_file"`
}

// WorkflowConfig configures the session state machine.
type WorkflowConfig struct {
	MaxRecoveryAttempts int `yaml:"max_recovery_attempts" mapstructure:"max_recovery_attempts"`
	ErrorCooldownSecs   int `yaml:"error_cooldown_secs" mapstructure:"error_cooldown_secs"`
	Retries             int `yaml:"retries" mapstructure:"retries"`
}

// ErrorCooldown returns the auto-recover cooldown as a duration.
func (w WorkflowConfig) ErrorCooldown() time.Duration {
	return time.Duration(w.ErrorCooldownSecs) * time.Second
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKETLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "marketlens.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout_secs", 30)
	v.SetDefault("anthropic.requests_per_sec", 2.0)
	v.SetDefault("anthropic.input_per_mtok", 3.00)
	v.SetDefault("anthropic.output_per_mtok", 15.00)
	v.SetDefault("parser.max_price", 1_000_000)
	v.SetDefault("parser.max_percent", 50)
	v.SetDefault("workflow.max_recovery_attempts", 3)
	v.SetDefault("workflow.error_cooldown_secs", 30)
	v.SetDefault("workflow.retries", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is sufficient for the given
// mode. Modes map to commands: "run" needs API credentials, "serve"
// additionally needs a valid port, "parse" is offline and only checks
// shared bounds.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	// Shared bounds
	check(c.Parser.MaxPrice > 0, "parser.max_price must be > 0")
	check(c.Parser.MaxPercent > 0, "parser.max_percent must be > 0")
	check(c.Workflow.MaxRecoveryAttempts >= 1 && c.Workflow.MaxRecoveryAttempts <= 10,
		"workflow.max_recovery_attempts must be between 1 and 10")
	check(c.Workflow.ErrorCooldownSecs >= 0, "workflow.error_cooldown_secs must be >= 0")

	switch mode {
	case "parse":
		// Offline: nothing beyond shared bounds.
	case "run":
		check(c.Anthropic.Key != "", "anthropic.key is required")
		check(c.Anthropic.Model != "", "anthropic.model is required")
	case "serve":
		check(c.Anthropic.Key != "", "anthropic.key is required")
		check(c.Anthropic.Model != "", "anthropic.model is required")
		check(c.Server.Port > 0, "server.port must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver == "postgres" {
		check(c.Store.DatabaseURL != "", "store.database_url is required for postgres driver")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
