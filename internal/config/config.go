// Package config provides configuration management for secretary.
// Settings come from three layers, later layers overriding earlier ones:
// built-in defaults, an optional YAML file, and environment variables with
// the SECRETARY_ prefix. CLI flags are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the secretary pipeline.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Persona PersonaConfig `yaml:"persona"`
	Memo    MemoConfig    `yaml:"memo"`
	Mailbox MailboxConfig `yaml:"mailbox"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StorageConfig contains on-disk layout settings.
type StorageConfig struct {
	DataPath   string `yaml:"data_path"`   // Root for checkpoints, memoboard and ledger (default: ./data)
	LedgerPath string `yaml:"ledger_path"` // SQLite run ledger, "off" disables it (default: <data_path>/ledger.db)
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`            // ollama, openai, anthropic (default: ollama)
	OllamaURL         string        `yaml:"ollama_url"`          // default: http://localhost:11434
	OllamaModel       string        `yaml:"ollama_model"`        // default: qwen2.5:7b
	OpenAIAPIKey      string        `yaml:"openai_api_key"`      // also used for any OpenAI-compatible endpoint
	OpenAIBaseURL     string        `yaml:"openai_base_url"`     // e.g. https://api.groq.com/openai/v1
	OpenAIModel       string        `yaml:"openai_model"`        // default: gpt-4o-mini
	AnthropicAPIKey   string        `yaml:"anthropic_api_key"`   // Anthropic API key
	AnthropicModel    string        `yaml:"anthropic_model"`     // default: claude-haiku-4-5-20251001
	Temperature       float64       `yaml:"temperature"`         // default: 0.3
	MaxTokens         int           `yaml:"max_tokens"`          // default: 4096
	Timeout           time.Duration `yaml:"timeout"`             // per request (default: 120s)
	RequestsPerMinute float64       `yaml:"requests_per_minute"` // 0 disables rate limiting
}

// PersonaConfig contains persona aggregation settings.
type PersonaConfig struct {
	BatchSize      int    `yaml:"batch_size"`      // default: 10
	CheckpointPath string `yaml:"checkpoint_path"` // default: <data_path>/persona
	OwnerAddress   string `yaml:"owner_address"`   // the user's own address, helps the model tell sent from received
}

// MemoConfig contains memoboard settings.
type MemoConfig struct {
	BoardPath     string `yaml:"board_path"`      // default: <data_path>
	MaxBodyTokens int    `yaml:"max_body_tokens"` // body budget before summarization (default: 6000, 0 disables)
}

// MailboxConfig contains email source settings.
type MailboxConfig struct {
	SourcePath   string `yaml:"source_path"`   // directory of .json/.eml messages (default: ./emails)
	LookbackDays int    `yaml:"lookback_days"` // default: 3
}

// LoggingConfig contains log sink settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // default: info
	File  string `yaml:"file"`  // default: app.log
}

// MetricsConfig contains metrics export settings.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"` // prometheus textfile written at exit; empty disables
}

// LoadConfig loads configuration from defaults, the optional YAML file at
// path (skipped when path is empty) and environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "ollama", "openai", "anthropic":
	default:
		return fmt.Errorf("config: unsupported LLM provider %q", c.LLM.Provider)
	}
	if c.Persona.BatchSize < 1 {
		return fmt.Errorf("config: persona batch_size must be >= 1, got %d", c.Persona.BatchSize)
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("config: llm requests_per_minute must be >= 0, got %v", c.LLM.RequestsPerMinute)
	}
	if c.Mailbox.LookbackDays < 0 {
		return fmt.Errorf("config: mailbox lookback_days must be >= 0, got %d", c.Mailbox.LookbackDays)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			DataPath: "./data",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "qwen2.5:7b",
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-haiku-4-5-20251001",
			Temperature:    0.3,
			MaxTokens:      4096,
			Timeout:        120 * time.Second,
		},
		Persona: PersonaConfig{
			BatchSize: 10,
		},
		Memo: MemoConfig{
			MaxBodyTokens: 6000,
		},
		Mailbox: MailboxConfig{
			SourcePath:   "./emails",
			LookbackDays: 3,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "app.log",
		},
	}
}

// applyEnv overrides fields from SECRETARY_* environment variables.
func applyEnv(c *Config) {
	c.Storage.DataPath = getEnv("SECRETARY_DATA_PATH", c.Storage.DataPath)
	c.Storage.LedgerPath = getEnv("SECRETARY_LEDGER_PATH", c.Storage.LedgerPath)

	c.LLM.Provider = getEnv("SECRETARY_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.OllamaURL = getEnv("SECRETARY_OLLAMA_URL", c.LLM.OllamaURL)
	c.LLM.OllamaModel = getEnv("SECRETARY_OLLAMA_MODEL", c.LLM.OllamaModel)
	c.LLM.OpenAIAPIKey = getEnv("SECRETARY_OPENAI_API_KEY", c.LLM.OpenAIAPIKey)
	c.LLM.OpenAIBaseURL = getEnv("SECRETARY_OPENAI_BASE_URL", c.LLM.OpenAIBaseURL)
	c.LLM.OpenAIModel = getEnv("SECRETARY_OPENAI_MODEL", c.LLM.OpenAIModel)
	c.LLM.AnthropicAPIKey = getEnv("SECRETARY_ANTHROPIC_API_KEY", c.LLM.AnthropicAPIKey)
	c.LLM.AnthropicModel = getEnv("SECRETARY_ANTHROPIC_MODEL", c.LLM.AnthropicModel)
	c.LLM.Temperature = getEnvFloat("SECRETARY_LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.MaxTokens = getEnvInt("SECRETARY_LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = getEnvDuration("SECRETARY_LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.RequestsPerMinute = getEnvFloat("SECRETARY_LLM_REQUESTS_PER_MINUTE", c.LLM.RequestsPerMinute)

	c.Persona.BatchSize = getEnvInt("SECRETARY_BATCH_SIZE", c.Persona.BatchSize)
	c.Persona.CheckpointPath = getEnv("SECRETARY_CHECKPOINT_PATH", c.Persona.CheckpointPath)
	c.Persona.OwnerAddress = getEnv("SECRETARY_OWNER_ADDRESS", c.Persona.OwnerAddress)

	c.Memo.BoardPath = getEnv("SECRETARY_BOARD_PATH", c.Memo.BoardPath)
	c.Memo.MaxBodyTokens = getEnvInt("SECRETARY_MAX_BODY_TOKENS", c.Memo.MaxBodyTokens)

	c.Mailbox.SourcePath = getEnv("SECRETARY_SOURCE_PATH", c.Mailbox.SourcePath)
	c.Mailbox.LookbackDays = getEnvInt("SECRETARY_LOOKBACK_DAYS", c.Mailbox.LookbackDays)

	c.Logging.Level = getEnv("SECRETARY_LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnv("SECRETARY_LOG_FILE", c.Logging.File)

	c.Metrics.TextfilePath = getEnv("SECRETARY_METRICS_FILE", c.Metrics.TextfilePath)
}

// LedgerDisabled is the ledger_path value that turns the run ledger off.
const LedgerDisabled = "off"

// resolvePaths fills the paths that default relative to the data directory.
func (c *Config) resolvePaths() {
	if c.Storage.LedgerPath == "" {
		c.Storage.LedgerPath = filepath.Join(c.Storage.DataPath, "ledger.db")
	}
	if c.Persona.CheckpointPath == "" {
		c.Persona.CheckpointPath = filepath.Join(c.Storage.DataPath, "persona")
	}
	if c.Memo.BoardPath == "" {
		c.Memo.BoardPath = c.Storage.DataPath
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// SetModel overrides the model of the selected provider.
func (c *LLMConfig) SetModel(model string) {
	if model == "" {
		return
	}
	switch c.Provider {
	case "openai":
		c.OpenAIModel = model
	case "anthropic":
		c.AnthropicModel = model
	default:
		c.OllamaModel = model
	}
}

// Model returns the model name of the selected provider.
func (c *LLMConfig) Model() string {
	switch c.Provider {
	case "openai":
		return c.OpenAIModel
	case "anthropic":
		return c.AnthropicModel
	default:
		return c.OllamaModel
	}
}
