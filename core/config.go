package core

import "time"

// Config is the top-level runtime configuration, grounded on the teacher's
// AgentConfig shape (agent/agent_config.go): plain struct with yaml tags,
// a DefaultConfig constructor, and a Validate method.
type Config struct {
	LogLevel string `yaml:"log_level"`

	OpenAI OpenAIConfig `yaml:"openai"`
	Vertex VertexConfig `yaml:"vertex"`

	Redis RedisConfig `yaml:"redis"`

	DatabasePath string `yaml:"database_path"`

	Concurrency  int           `yaml:"concurrency"`
	HardDeadline time.Duration `yaml:"hard_deadline"`
	SoftDeadline time.Duration `yaml:"soft_deadline"`
}

// OpenAIConfig holds OpenAI Responses API connection settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// VertexConfig holds Vertex AI connection settings.
type VertexConfig struct {
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
}

// RedisConfig holds the optional Redis connection used by the Version
// Service's idempotency guard. Addr == "" disables Redis entirely.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		Vertex:       VertexConfig{Location: "us-central1"},
		DatabasePath: "./ai-ranker.db",
		Concurrency:  defaultConcurrency,
		HardDeadline: defaultHardDeadline,
		SoftDeadline: defaultSoftDeadline,
	}
}

// Validate reports configuration combinations that would fail at runtime
// in a more confusing way if left unchecked.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return NewValidationError("concurrency must be positive", map[string]interface{}{"concurrency": c.Concurrency})
	}
	if c.HardDeadline <= 0 {
		return NewValidationError("hard_deadline must be positive", map[string]interface{}{"hard_deadline": c.HardDeadline})
	}
	if c.SoftDeadline <= 0 || c.SoftDeadline > c.HardDeadline {
		return NewValidationError("soft_deadline must be positive and not exceed hard_deadline", map[string]interface{}{
			"soft_deadline": c.SoftDeadline, "hard_deadline": c.HardDeadline,
		})
	}
	if c.Vertex.Project != "" && c.Vertex.Location == "" {
		return NewValidationError("vertex.location is required when vertex.project is set", nil)
	}
	return nil
}

// ParseLogLevel maps the config's string level to a LogLevel, defaulting
// to Info on an unrecognized value.
func (c *Config) ParseLogLevel() LogLevel {
	switch c.LogLevel {
	case "none":
		return LogLevelNone
	case "error":
		return LogLevelError
	case "warn":
		return LogLevelWarn
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}
