package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/contestra/ai-ranker-core/core"
	"github.com/contestra/ai-ranker-core/core/provider"
	"github.com/contestra/ai-ranker-core/core/provider/openai"
	"github.com/contestra/ai-ranker-core/core/provider/vertex"
	"github.com/contestra/ai-ranker-core/core/storesql"
)

// runtime bundles everything a command needs once config is resolved.
type runtime struct {
	config       *core.Config
	logger       core.Logger
	store        *storesql.Store
	adapters     map[core.Provider]provider.Adapter
	versions     *core.VersionService
	orchestrator *core.Orchestrator
	dispatcher   *core.RunDispatcher
	health       *core.HealthChecker
}

// loadConfigFromViper resolves the config file viper found (or the
// defaults, if none) and layers the database path and log level from
// persistent flags or AI_RANKER_* environment variables on top. The other
// environment overrides of core.LoadConfigWithEnvOverrides (API key,
// Vertex project/location, Redis address) apply only when a config file
// was found.
func loadConfigFromViper() (*core.Config, error) {
	var config *core.Config
	var err error

	if path := viper.ConfigFileUsed(); path != "" {
		config, err = core.LoadConfigWithEnvOverrides(path)
		if err != nil {
			return nil, err
		}
	} else {
		config = core.DefaultConfig()
	}

	if db := viper.GetString("database_path"); db != "" {
		config.DatabasePath = db
	}
	if level := viper.GetString("log_level"); level != "" {
		config.LogLevel = level
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// newRuntime wires storage, adapters, and the orchestration layer from
// resolved configuration. Provider adapters are constructed lazily:
// an adapter is omitted from the map (not an error) when its credentials
// are absent, so `ai-ranker template create` works without both API keys.
func newRuntime(ctx context.Context) (*runtime, error) {
	config, err := loadConfigFromViper()
	if err != nil {
		return nil, err
	}

	logger := core.NewStdLogger(config.ParseLogLevel())

	store, err := storesql.Open(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	adapters := map[core.Provider]provider.Adapter{}
	if config.OpenAI.APIKey != "" {
		adapters[core.ProviderOpenAI] = openai.New(config.OpenAI.APIKey, config.OpenAI.BaseURL, logger)
	}
	if config.Vertex.Project != "" {
		vertexAdapter, err := vertex.New(ctx, config.Vertex.Project, config.Vertex.Location, logger)
		if err != nil {
			return nil, fmt.Errorf("init vertex adapter: %w", err)
		}
		adapters[core.ProviderGoogle] = vertexAdapter
	}

	var redisClient *redis.Client
	if config.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
	}

	versions := core.NewVersionService(store, redisClient, logger)
	orchestrator := core.NewOrchestrator(adapters, versions, logger)
	dispatcher := core.NewRunDispatcher(orchestrator, store, logger, config.Concurrency)
	health := core.NewHealthChecker(adapters, logger)

	return &runtime{
		config:       config,
		logger:       logger,
		store:        store,
		adapters:     adapters,
		versions:     versions,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		health:       health,
	}, nil
}
