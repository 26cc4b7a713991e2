package core

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/contestra/ai-ranker-core/core/provider"
)

type fakeVersionStore struct {
	upserts []*Version
}

func (f *fakeVersionStore) UpsertVersion(ctx context.Context, v *Version) (*Version, error) {
	f.upserts = append(f.upserts, v)
	return v, nil
}

func testTemplate() *Template {
	return &Template{ID: "tmpl-1", OrgID: "org-1", WorkspaceID: "ws-1"}
}

func TestVersionService_EnsureWithoutRedis_AlwaysUpserts(t *testing.T) {
	store := &fakeVersionStore{}
	svc := NewVersionService(store, nil, nil)

	result := &provider.RunResult{SystemFingerprint: "fp_123"}
	v1, err := svc.Ensure(context.Background(), testTemplate(), ProviderOpenAI, "gpt-4o", result)
	require.NoError(t, err)
	require.NotNil(t, v1)
	v2, err := svc.Ensure(context.Background(), testTemplate(), ProviderOpenAI, "gpt-4o", result)
	require.NoError(t, err)
	require.NotNil(t, v2)
	require.Len(t, store.upserts, 2)
}

func TestVersionService_EnsureWithRedis_SuppressesDuplicateWithinBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := &fakeVersionStore{}
	svc := NewVersionService(store, client, nil)

	result := &provider.RunResult{SystemFingerprint: "fp_abc"}
	v1, err := svc.Ensure(context.Background(), testTemplate(), ProviderOpenAI, "gpt-4o", result)
	require.NoError(t, err)
	require.NotNil(t, v1)
	v2, err := svc.Ensure(context.Background(), testTemplate(), ProviderOpenAI, "gpt-4o", result)
	require.NoError(t, err)
	require.Nil(t, v2)

	require.Len(t, store.upserts, 1)
}

func TestVersionService_MissingFingerprintIsValidationError(t *testing.T) {
	store := &fakeVersionStore{}
	svc := NewVersionService(store, nil, nil)

	_, err := svc.Ensure(context.Background(), testTemplate(), ProviderGoogle, "gemini-2.0-flash", &provider.RunResult{})
	require.Error(t, err)

	var typed *Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, KindValidation, typed.Kind)
}

func TestFingerprintFor_GooglePrefersModelVersion(t *testing.T) {
	result := &provider.RunResult{ModelVersion: "gemini-2.0-flash-001"}
	require.Equal(t, "gemini-2.0-flash-001", fingerprintFor(ProviderGoogle, result))
}

func TestFingerprintFor_OpenAIPrefersSystemFingerprint(t *testing.T) {
	result := &provider.RunResult{SystemFingerprint: "fp_xyz", ModelVersion: "gpt-4o-2024-08-06"}
	require.Equal(t, "fp_xyz", fingerprintFor(ProviderOpenAI, result))
}
