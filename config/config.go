package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. RAAF_RUNNER_MAX_TURNS.
const EnvPrefix = "RAAF"

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Provider   ProviderConfig   `mapstructure:"provider"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Session    SessionConfig    `mapstructure:"session"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Agents     AgentsConfig     `mapstructure:"agents"`
}

// ProviderConfig selects and configures the model provider.
type ProviderConfig struct {
	Type    string `mapstructure:"type"`     // "openai", "anthropic", "ollama", "mock"
	Model   string `mapstructure:"model"`    // Default model id
	APIKey  string `mapstructure:"api_key"`  // Falls back to the vendor's env var when empty
	BaseURL string `mapstructure:"base_url"` // Override endpoint (proxies, local servers)
}

// RunnerConfig bounds a run.
type RunnerConfig struct {
	MaxTurns        int           `mapstructure:"max_turns"`
	ContextBudget   int           `mapstructure:"context_budget"` // Tokens handed to the memory manager
	ToolParallelism int           `mapstructure:"tool_parallelism"`
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"` // 0 disables
}

// RetryConfig configures provider backoff.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	Factor         float64       `mapstructure:"factor"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// MemoryConfig selects the context strategy.
type MemoryConfig struct {
	Strategy      string  `mapstructure:"strategy"`       // "sliding_window", "summarization", "semantic", "hybrid"
	MaxMessages   int     `mapstructure:"max_messages"`   // sliding_window cap, 0 = none
	ReserveTokens int     `mapstructure:"reserve_tokens"` // summary space, 0 = auto
	Threshold     float64 `mapstructure:"threshold"`      // semantic cosine threshold
	RecentGroups  int     `mapstructure:"recent_groups"`  // hybrid recency window
	EmbeddingDims int     `mapstructure:"embedding_dims"`
	LLMSummaries  bool    `mapstructure:"llm_summaries"` // summarize through the provider
}

// SessionConfig selects the session store.
type SessionConfig struct {
	Store           string        `mapstructure:"store"` // "memory", "libsql"
	DSN             string        `mapstructure:"dsn"`   // libsql: file:raaf.db or libsql://host
	AuthToken       string        `mapstructure:"auth_token"`
	TTL             time.Duration `mapstructure:"ttl"`              // 0 = never expire
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // serve purges expired sessions; 0 = off
}

// GuardrailsConfig configures the runner-wide tool call chain.
type GuardrailsConfig struct {
	AllowedTools []string `mapstructure:"allowed_tools"` // Empty means allow all
	RedactSecret bool     `mapstructure:"redact_secrets"`
	Parallel     bool     `mapstructure:"parallel"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`   // debug, info, warn, error
	Format  string `mapstructure:"format"`  // json, text, console
	Backend string `mapstructure:"backend"` // slog, zerolog
}

// ServerConfig configures `raaf serve`.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// AgentsConfig locates agent definitions.
type AgentsConfig struct {
	Path    string `mapstructure:"path"`    // YAML file or directory
	Default string `mapstructure:"default"` // Agent used when a request names none
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.type", "openai")
	v.SetDefault("provider.model", "gpt-4o-mini")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")

	v.SetDefault("runner.max_turns", 10)
	v.SetDefault("runner.context_budget", 8000)
	v.SetDefault("runner.tool_parallelism", 4)
	v.SetDefault("runner.tool_timeout", "30s")
	v.SetDefault("runner.run_timeout", "0s")

	// Retry defaults (4 attempts, 500ms doubling up to 30s)
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.factor", 2.0)
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.attempt_timeout", "60s")

	v.SetDefault("memory.strategy", "sliding_window")
	v.SetDefault("memory.max_messages", 0)
	v.SetDefault("memory.reserve_tokens", 0)
	v.SetDefault("memory.threshold", 0.2)
	v.SetDefault("memory.recent_groups", 4)
	v.SetDefault("memory.embedding_dims", 256)
	v.SetDefault("memory.llm_summaries", false)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.dsn", "file:raaf.db")
	v.SetDefault("session.auth_token", "")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.cleanup_interval", "10m")

	v.SetDefault("guardrails.allowed_tools", []string{})
	v.SetDefault("guardrails.redact_secrets", false)
	v.SetDefault("guardrails.parallel", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.backend", "slog")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("agents.path", "agents")
	v.SetDefault("agents.default", "")
}

// Load reads configuration from configPath, or from raaf.yaml in the working
// directory or $HOME/.raaf when configPath is empty. A missing file in the
// search locations is not an error; an explicit path that does not exist is.
// RAAF_* environment variables override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".raaf"))
		}
		v.SetConfigName("raaf")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. runner.max_turns becomes RAAF_RUNNER_MAX_TURNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(oneOf(c.Provider.Type, "openai", "anthropic", "ollama", "mock"), "provider.type: unknown provider %q", c.Provider.Type)

	check(c.Runner.MaxTurns > 0, "runner.max_turns must be > 0, got %d", c.Runner.MaxTurns)
	check(c.Runner.ContextBudget > 0, "runner.context_budget must be > 0, got %d", c.Runner.ContextBudget)
	check(c.Runner.ToolParallelism > 0, "runner.tool_parallelism must be > 0, got %d", c.Runner.ToolParallelism)
	check(c.Runner.ToolTimeout >= 0, "runner.tool_timeout must be >= 0")
	check(c.Runner.RunTimeout >= 0, "runner.run_timeout must be >= 0")

	check(c.Retry.MaxAttempts >= 1, "retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	check(c.Retry.Factor >= 1, "retry.factor must be >= 1, got %v", c.Retry.Factor)
	check(c.Retry.BaseDelay >= 0 && c.Retry.MaxDelay >= 0, "retry delays must be >= 0")

	check(oneOf(c.Memory.Strategy, "sliding_window", "summarization", "semantic", "hybrid"),
		"memory.strategy: unknown strategy %q", c.Memory.Strategy)
	check(c.Memory.Threshold >= -1 && c.Memory.Threshold <= 1, "memory.threshold must be in [-1,1], got %v", c.Memory.Threshold)
	check(c.Memory.MaxMessages >= 0 && c.Memory.ReserveTokens >= 0, "memory limits must be >= 0")

	check(oneOf(c.Session.Store, "memory", "libsql"), "session.store: unknown store %q", c.Session.Store)
	check(c.Session.Store != "libsql" || c.Session.DSN != "", "session.dsn is required for the libsql store")
	check(c.Session.TTL >= 0, "session.ttl must be >= 0")
	check(c.Session.CleanupInterval >= 0, "session.cleanup_interval must be >= 0")

	check(oneOf(strings.ToLower(c.Logging.Level), "debug", "info", "warn", "warning", "error"), "logging.level: unknown level %q", c.Logging.Level)
	check(oneOf(c.Logging.Format, "json", "text", "console"), "logging.format: unknown format %q", c.Logging.Format)
	check(oneOf(c.Logging.Backend, "slog", "zerolog"), "logging.backend: unknown backend %q", c.Logging.Backend)

	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
