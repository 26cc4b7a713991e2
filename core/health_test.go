package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contestra/ai-ranker-core/core/provider"
)

func TestHealthChecker_CheckUngrounded_OK(t *testing.T) {
	adapter := &fakeAdapter{name: "openai", result: &provider.RunResult{Text: "ok"}}
	checker := NewHealthChecker(map[Provider]provider.Adapter{ProviderOpenAI: adapter}, nil)

	status := checker.CheckUngrounded(context.Background(), ProviderOpenAI, "gpt-4o")
	require.True(t, status.OK)
	require.Empty(t, status.Error)
}

func TestHealthChecker_CheckUngrounded_NoAdapterRegistered(t *testing.T) {
	checker := NewHealthChecker(map[Provider]provider.Adapter{}, nil)
	status := checker.CheckUngrounded(context.Background(), ProviderGoogle, "gemini-2.0-flash")
	require.False(t, status.OK)
	require.NotEmpty(t, status.Error)
}

func TestHealthChecker_CheckGrounded_ReportsGroundedOK(t *testing.T) {
	adapter := &fakeAdapter{name: "google", result: &provider.RunResult{Text: "ok", GroundedEffective: true}}
	checker := NewHealthChecker(map[Provider]provider.Adapter{ProviderGoogle: adapter}, nil)

	status := checker.CheckGrounded(context.Background(), ProviderGoogle, "gemini-2.0-flash")
	require.True(t, status.OK)
	require.True(t, status.GroundedOK)
}

func TestHealthChecker_CheckGrounded_AdapterError(t *testing.T) {
	adapter := &fakeAdapter{name: "google", err: NewGroundingRequiredError("health-check-grounded", "google", "gemini-2.0-flash")}
	checker := NewHealthChecker(map[Provider]provider.Adapter{ProviderGoogle: adapter}, nil)

	status := checker.CheckGrounded(context.Background(), ProviderGoogle, "gemini-2.0-flash")
	require.False(t, status.OK)
	require.NotEmpty(t, status.Error)
}
