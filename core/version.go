package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/contestra/ai-ranker-core/core/provider"
)

// VersionStore persists Version rows. The SQL implementation lives in
// core/storesql; tests use an in-memory fake.
type VersionStore interface {
	UpsertVersion(ctx context.Context, v *Version) (*Version, error)
}

// VersionService implements spec.md 4.6: capture the one-token provider
// version fingerprint from a RunResult and upsert it, guarded by an
// optional Redis SetNX lock so concurrent runs for the same
// (org, workspace, template, provider, model, hour) bucket only write once.
type VersionService struct {
	store  VersionStore
	redis  *redis.Client
	ttl    time.Duration
	logger Logger
}

// NewVersionService wires a VersionStore and an optional Redis client for
// the idempotency guard (adapted from the teacher's RedisCache.SetNX,
// agent/cache_redis.go). redisClient may be nil, in which case every call
// upserts unconditionally.
func NewVersionService(store VersionStore, redisClient *redis.Client, logger Logger) *VersionService {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &VersionService{store: store, redis: redisClient, ttl: time.Hour, logger: logger}
}

// fingerprintFor extracts the provider's one-token version signal from a
// RunResult (spec.md 4.6 "one-token probe"): OpenAI's system_fingerprint,
// Google's model_version (surfaced here as ModelVersion), or, failing
// both, the response's model_version field generically.
func fingerprintFor(prov Provider, result *provider.RunResult) string {
	switch prov {
	case ProviderOpenAI, ProviderAzureOpenAI:
		if result.SystemFingerprint != "" {
			return result.SystemFingerprint
		}
	case ProviderGoogle:
		if result.ModelVersion != "" {
			return result.ModelVersion
		}
	case ProviderAnthropic:
		if result.ModelVersion != "" {
			return result.ModelVersion
		}
	}
	return result.ModelVersion
}

func idempotencyKey(orgID, workspaceID, templateID string, prov Provider, modelID string, bucket time.Time) string {
	return fmt.Sprintf("ai-ranker:version:%s:%s:%s:%s:%s:%s",
		orgID, workspaceID, templateID, prov, modelID, bucket.UTC().Format("2006010215"))
}

// Ensure implements ensure_version: given the Template this run belongs to
// and the provider's observed RunResult, it upserts a Version row keyed by
// (org, workspace, template, provider, provider_version_key) and returns
// the winning row so callers (the Orchestrator) can thread its id onto the
// Result (spec.md 3 "Result.version_id"). When a Redis client is
// configured, a SetNX-guarded hourly bucket suppresses redundant writes
// for the same combination within the TTL window; a lock miss is not an
// error, it just skips the upsert for this call and returns (nil, nil).
func (s *VersionService) Ensure(ctx context.Context, tmpl *Template, prov Provider, modelID string, result *provider.RunResult) (*Version, error) {
	fingerprint := fingerprintFor(prov, result)
	if fingerprint == "" {
		return nil, NewValidationError("provider returned no fingerprint to record", map[string]interface{}{"provider": string(prov), "model_id": modelID})
	}

	if s.redis != nil {
		key := idempotencyKey(tmpl.OrgID, tmpl.WorkspaceID, tmpl.ID, prov, modelID, time.Now())
		acquired, err := s.redis.SetNX(ctx, key, "1", s.ttl).Result()
		if err != nil {
			s.logger.Warn(ctx, "version: redis setnx failed, upserting unconditionally", F("error", err.Error()))
		} else if !acquired {
			s.logger.Debug(ctx, "version: idempotency bucket already claimed", F("key", key))
			return nil, nil
		}
	}

	now := time.Now().UTC()
	v := &Version{
		ID:                    uuid.NewString(),
		TemplateID:            tmpl.ID,
		OrgID:                 tmpl.OrgID,
		WorkspaceID:           tmpl.WorkspaceID,
		Provider:              prov,
		ProviderVersionKey:    fingerprint,
		ModelID:               modelID,
		FingerprintCapturedAt: &now,
		FirstSeenAt:           now,
		LastSeenAt:            now,
	}

	return s.store.UpsertVersion(ctx, v)
}
