package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/contestra/ai-ranker-core/core/provider"
)

type fakeTemplateStore struct {
	recorded []*Result
}

func (f *fakeTemplateStore) CreateTemplate(ctx context.Context, tmpl *Template) (*Template, error) {
	return tmpl, nil
}
func (f *fakeTemplateStore) CheckDuplicate(ctx context.Context, orgID, workspaceID, configHash string) (*Template, bool, error) {
	return nil, false, nil
}
func (f *fakeTemplateStore) GetTemplate(ctx context.Context, orgID, workspaceID, id string) (*Template, error) {
	return nil, nil
}
func (f *fakeTemplateStore) ListTemplates(ctx context.Context, orgID, workspaceID string) ([]*Template, error) {
	return nil, nil
}
func (f *fakeTemplateStore) SoftDelete(ctx context.Context, orgID, workspaceID, id string, deletedAt time.Time) error {
	return nil
}
func (f *fakeTemplateStore) RecordResult(ctx context.Context, r *Result) error {
	f.recorded = append(f.recorded, r)
	return nil
}

func dispatcherTemplate() *Template {
	return &Template{
		ID: "tmpl-1", OrgID: "org-1", WorkspaceID: "ws-1",
		Identity: Identity{ModelID: "gpt-4o"},
	}
}

func TestRunDispatcher_CartesianExpansion(t *testing.T) {
	adapter := &fakeAdapter{name: "openai", result: &provider.RunResult{Text: "ok", SystemFingerprint: "fp_1"}}
	orch := NewOrchestrator(map[Provider]provider.Adapter{ProviderOpenAI: adapter}, nil, nil)
	store := &fakeTemplateStore{}
	dispatcher := NewRunDispatcher(orch, store, nil, 4)

	req := &DispatchRequest{
		Template:       dispatcherTemplate(),
		Countries:      []string{"DE", "CH", ALSSentinelNone},
		GroundingModes: []GroundingMode{GroundingOff, GroundingRequired},
		UserPrompt:     "what is the VAT rate?",
	}

	results, err := dispatcher.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 6)
	require.Len(t, store.recorded, 6)
	require.Len(t, adapter.calls, 6)
}

func TestRunDispatcher_GroundingRequiredFailureRecordedNotAborted(t *testing.T) {
	adapter := &fakeAdapter{name: "openai", err: NewGroundingRequiredError("run-x", "openai", "gpt-4o")}
	orch := NewOrchestrator(map[Provider]provider.Adapter{ProviderOpenAI: adapter}, nil, nil)
	store := &fakeTemplateStore{}
	dispatcher := NewRunDispatcher(orch, store, nil, 2)

	req := &DispatchRequest{
		Template:       dispatcherTemplate(),
		Countries:      []string{"DE", "FR"},
		GroundingModes: []GroundingMode{GroundingRequired},
		UserPrompt:     "what is the VAT rate?",
	}

	results, err := dispatcher.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.False(t, r.JSONValid)
		require.Equal(t, string(KindGroundingRequired), r.Response["kind"])
	}
}

func TestRunDispatcher_LocaleProbeAttachesAnalysisConfig(t *testing.T) {
	adapter := &fakeAdapter{name: "openai", result: &provider.RunResult{
		Text:              `{"vat":"19%","plug":["F","C"],"emergency":["112"]}`,
		SystemFingerprint: "fp_1",
	}}
	orch := NewOrchestrator(map[Provider]provider.Adapter{ProviderOpenAI: adapter}, nil, nil)
	store := &fakeTemplateStore{}
	dispatcher := NewRunDispatcher(orch, store, nil, 1)

	req := &DispatchRequest{
		Template:       dispatcherTemplate(),
		Countries:      []string{"DE"},
		GroundingModes: []GroundingMode{GroundingOff},
		UserPrompt:     "what is the VAT rate, plug type, and emergency number?",
		IsLocaleProbe:  true,
	}

	results, err := dispatcher.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 1)

	cfg := results[0].AnalysisConfig
	require.Equal(t, true, cfg["probe"].(map[string]interface{})["pass"])
	require.Equal(t, string(ConfidenceFullMatch), cfg["probe"].(map[string]interface{})["confidence"])
	require.Contains(t, cfg, "leak")
	require.Equal(t, false, cfg["leak"].(map[string]interface{})["detected"])
}

func TestRunDispatcher_NonProbeRunStillRunsLeakDetection(t *testing.T) {
	adapter := &fakeAdapter{name: "openai", result: &provider.RunResult{
		Text: "Es ist Dienstag in Berlin und die Antwort lautet 19%.", SystemFingerprint: "fp_1",
	}}
	orch := NewOrchestrator(map[Provider]provider.Adapter{ProviderOpenAI: adapter}, nil, nil)
	store := &fakeTemplateStore{}
	dispatcher := NewRunDispatcher(orch, store, nil, 1)

	req := &DispatchRequest{
		Template:       dispatcherTemplate(),
		Countries:      []string{"DE"},
		GroundingModes: []GroundingMode{GroundingOff},
		UserPrompt:     "what is the VAT rate?",
	}

	results, err := dispatcher.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotContains(t, results[0].AnalysisConfig, "probe")
	require.Contains(t, results[0].AnalysisConfig, "leak")
}

func TestRunDispatcher_SuccessRowCarriesProviderVersionKey(t *testing.T) {
	adapter := &fakeAdapter{name: "openai", result: &provider.RunResult{Text: "ok", SystemFingerprint: "fp_99", GroundedEffective: true, ToolCallCount: 2}}
	orch := NewOrchestrator(map[Provider]provider.Adapter{ProviderOpenAI: adapter}, nil, nil)
	store := &fakeTemplateStore{}
	dispatcher := NewRunDispatcher(orch, store, nil, 1)

	req := &DispatchRequest{
		Template:       dispatcherTemplate(),
		Countries:      []string{"US"},
		GroundingModes: []GroundingMode{GroundingOff},
		UserPrompt:     "what is the plug type?",
	}

	results, err := dispatcher.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "fp_99", results[0].ProviderVersionKey)
	require.Equal(t, "fp_99", results[0].SystemFingerprint)
	require.True(t, results[0].GroundedEffective)
	require.Equal(t, 2, results[0].ToolCallCount)
}
