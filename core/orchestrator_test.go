package core

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contestra/ai-ranker-core/core/provider"
)

type fakeAdapter struct {
	name   string
	result *provider.RunResult
	err    error
	mu     sync.Mutex
	calls  []*provider.RunRequest
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Run(ctx context.Context, req *provider.RunRequest) (*provider.RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestInferProvider(t *testing.T) {
	require.Equal(t, ProviderOpenAI, InferProvider("gpt-4o"))
	require.Equal(t, ProviderOpenAI, InferProvider("o3-mini"))
	require.Equal(t, ProviderGoogle, InferProvider("gemini-2.0-flash"))
	require.Equal(t, ProviderAnthropic, InferProvider("claude-3-5-sonnet"))
	require.Equal(t, ProviderAzureOpenAI, InferProvider("azure-gpt-4o"))
	require.Equal(t, ProviderUnknown, InferProvider("llama-3"))
}

func basicTemplate() *Template {
	return &Template{
		ID: "tmpl-1", OrgID: "org-1", WorkspaceID: "ws-1",
		Identity: Identity{ModelID: "gpt-4o", SystemInstructions: "be concise"},
	}
}

func TestOrchestrator_Dispatch_HappyPath(t *testing.T) {
	adapter := &fakeAdapter{name: "openai", result: &provider.RunResult{Text: "ok", SystemFingerprint: "fp_1"}}
	store := &fakeVersionStore{}
	versions := NewVersionService(store, nil, nil)
	orch := NewOrchestrator(map[Provider]provider.Adapter{ProviderOpenAI: adapter}, versions, nil)

	spec := &RunSpec{RunID: "run-1", Template: basicTemplate(), Country: "DE", GroundingMode: GroundingOff, UserPrompt: "what is the VAT rate?"}
	result, err := orch.Dispatch(context.Background(), spec)

	require.NoError(t, err)
	require.Equal(t, "ok", result.Text)
	require.Len(t, adapter.calls, 1)
	require.NotNil(t, adapter.calls[0].ALSBlock)
	require.Len(t, store.upserts, 1)
	require.NotEmpty(t, result.VersionID)
	require.Equal(t, store.upserts[0].ID, result.VersionID)
}

func TestOrchestrator_Dispatch_SentinelCountrySkipsALS(t *testing.T) {
	adapter := &fakeAdapter{name: "openai", result: &provider.RunResult{Text: "ok", SystemFingerprint: "fp_1"}}
	orch := NewOrchestrator(map[Provider]provider.Adapter{ProviderOpenAI: adapter}, nil, nil)

	spec := &RunSpec{RunID: "run-1", Template: basicTemplate(), Country: ALSSentinelNone, GroundingMode: GroundingOff, UserPrompt: "hello"}
	_, err := orch.Dispatch(context.Background(), spec)

	require.NoError(t, err)
	require.Nil(t, adapter.calls[0].ALSBlock)
}

func TestOrchestrator_Dispatch_UnknownProviderIsValidationError(t *testing.T) {
	orch := NewOrchestrator(map[Provider]provider.Adapter{}, nil, nil)
	tmpl := basicTemplate()
	tmpl.Identity.ModelID = "llama-3-70b"

	spec := &RunSpec{RunID: "run-1", Template: tmpl, Country: "DE", GroundingMode: GroundingOff, UserPrompt: "hi"}
	_, err := orch.Dispatch(context.Background(), spec)

	require.Error(t, err)
	var typed *Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, KindValidation, typed.Kind)
}

func TestOrchestrator_Dispatch_NoAdapterRegisteredForInferredProvider(t *testing.T) {
	orch := NewOrchestrator(map[Provider]provider.Adapter{}, nil, nil)
	spec := &RunSpec{RunID: "run-1", Template: basicTemplate(), Country: "DE", GroundingMode: GroundingOff, UserPrompt: "hi"}
	_, err := orch.Dispatch(context.Background(), spec)

	require.Error(t, err)
	var typed *Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, KindValidation, typed.Kind)
}

func TestOrchestrator_Dispatch_AdapterErrorPassedThroughUnmodified(t *testing.T) {
	sentinelErr := NewProviderTransportError("openai", context.DeadlineExceeded)
	adapter := &fakeAdapter{name: "openai", err: sentinelErr}
	orch := NewOrchestrator(map[Provider]provider.Adapter{ProviderOpenAI: adapter}, nil, nil)

	spec := &RunSpec{RunID: "run-1", Template: basicTemplate(), Country: "DE", GroundingMode: GroundingOff, UserPrompt: "hi"}
	_, err := orch.Dispatch(context.Background(), spec)

	require.Same(t, sentinelErr, err)
}

func TestOrchestrator_Dispatch_InvalidGroundingModeRejected(t *testing.T) {
	orch := NewOrchestrator(map[Provider]provider.Adapter{}, nil, nil)
	spec := &RunSpec{RunID: "run-1", Template: basicTemplate(), Country: "DE", GroundingMode: "bogus", UserPrompt: "hi"}
	_, err := orch.Dispatch(context.Background(), spec)

	require.Error(t, err)
	var typed *Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, KindValidation, typed.Kind)
}
