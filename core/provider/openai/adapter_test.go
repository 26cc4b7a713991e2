package openai

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contestra/ai-ranker-core/core"
	"github.com/contestra/ai-ranker-core/core/provider"
)

func newTestAdapter() *Adapter {
	return New("test-key", "", nil)
}

func TestBuildParams_AttachesWebSearchWhenGroundingRequired(t *testing.T) {
	a := newTestAdapter()
	req := &provider.RunRequest{
		ModelID:       "gpt-4o",
		SystemText:    "be helpful",
		UserPrompt:    "what is the VAT rate?",
		GroundingMode: core.GroundingRequired,
	}

	params := a.buildParams(req)
	require.Len(t, params.Tools, 1)
	require.NotNil(t, params.Instructions)
}

func TestBuildParams_NoToolsWhenGroundingOff(t *testing.T) {
	a := newTestAdapter()
	req := &provider.RunRequest{
		ModelID:       "gpt-4o",
		UserPrompt:    "hello",
		GroundingMode: core.GroundingOff,
	}

	params := a.buildParams(req)
	require.Empty(t, params.Tools)
}

func TestBuildParams_ALSBlockIncludedAsSeparateInputItem(t *testing.T) {
	a := newTestAdapter()
	req := &provider.RunRequest{
		ModelID:    "gpt-4o",
		UserPrompt: "what is the plug type?",
		ALSBlock:   &core.ALSBlock{Country: "DE", Text: "Es ist Dienstag in Berlin."},
	}

	params := a.buildParams(req)
	items := params.Input.OfInputItemList
	require.Len(t, items, 2)
}

func TestBuildParams_SeedNeverForwarded(t *testing.T) {
	a := newTestAdapter()
	seed := int64(42)
	req := &provider.RunRequest{
		ModelID:    "gpt-4o",
		UserPrompt: "hello",
		Seed:       &seed,
	}

	// buildParams must not panic or forward Seed; ResponseNewParams has no
	// seed field to assert against, so this exercises the no-op path only.
	require.NotPanics(t, func() { a.buildParams(req) })
}

func TestName(t *testing.T) {
	a := newTestAdapter()
	require.Equal(t, "openai", a.Name())
}
