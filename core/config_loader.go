package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML config file over top of DefaultConfig, so an
// empty or partial file still produces a valid Config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadConfigWithEnvOverrides applies the small set of environment
// variables operators expect to be able to set without editing the config
// file (api keys in particular should never live in a committed YAML
// file).
//
//   - AI_RANKER_OPENAI_API_KEY
//   - AI_RANKER_VERTEX_PROJECT
//   - AI_RANKER_VERTEX_LOCATION
//   - AI_RANKER_REDIS_ADDR
//   - AI_RANKER_DATABASE_PATH
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("AI_RANKER_OPENAI_API_KEY"); v != "" {
		config.OpenAI.APIKey = v
	}
	if v := os.Getenv("AI_RANKER_VERTEX_PROJECT"); v != "" {
		config.Vertex.Project = v
	}
	if v := os.Getenv("AI_RANKER_VERTEX_LOCATION"); v != "" {
		config.Vertex.Location = v
	}
	if v := os.Getenv("AI_RANKER_REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	}
	if v := os.Getenv("AI_RANKER_DATABASE_PATH"); v != "" {
		config.DatabasePath = v
	}
}
