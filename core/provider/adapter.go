// Package provider defines the uniform request/result contract that every
// provider-specific adapter (OpenAI Responses, Vertex GenAI, ...)
// implements, plus the shared citation-shape coercion each adapter applies
// to its results (spec.md 4.4).
package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/contestra/ai-ranker-core/core"
)

// Adapter is the synchronous per-provider contract from spec.md 4.4:
// run(req) -> result, with fail-closed grounding and citation-shape
// invariants enforced inside each implementation before it returns.
type Adapter interface {
	// Run executes one provider call for the given RunRequest. It returns
	// core.GroundingRequiredError (via errors.As) when grounding_mode is
	// REQUIRED and no tool use was observed; in that case no RunResult is
	// returned alongside the error.
	Run(ctx context.Context, req *RunRequest) (*RunResult, error)

	// Name is the adapter's provider tag, e.g. "openai" or "google".
	Name() string
}

// RunRequest is the shared request shape every adapter converts into its
// provider-specific wire format (spec.md 4.4 "Shared RunRequest fields").
type RunRequest struct {
	RunID         string
	Provider      core.Provider
	ModelID       string
	SystemText    string
	ALSBlock      *core.ALSBlock
	UserPrompt    string
	GroundingMode core.GroundingMode
	Temperature   float64
	TopP          float64
	Seed          *int64
	ResponseSchema map[string]interface{}
	ToolsSpec      []map[string]interface{}

	// HardDeadline / SoftDeadline record the deadlines chosen for this call.
	// Neither adapter in this module reads them; a call is cancelled only
	// through ctx (the Run Dispatcher gives each step its own timeout).
	HardDeadline time.Duration
	SoftDeadline time.Duration
}

// RunResult is the shared response shape (spec.md 4.4 "Shared RunResult
// fields").
type RunResult struct {
	Text              string
	JSONObj           map[string]interface{}
	JSONValid         bool
	ToolCallCount     int
	GroundedEffective bool
	Citations         []core.Citation
	ModelVersion      string
	SystemFingerprint string
	ResponseID        string
	LatencyMS         int64
	Usage             core.TokenUsage

	// VersionID is the Version Service's upserted row id for this call
	// (spec.md 4.5 "post-call hook"), filled in by the Orchestrator after
	// the adapter returns; adapters never set it themselves.
	VersionID string
}

// TokenUsage re-exports core.TokenUsage so adapters only need to import
// this package's RunResult type; see core.TokenUsage for fields.
type TokenUsage = core.TokenUsage

// RawCitation is what a provider may hand back before coercion: either a
// bare URI string or a partially-populated mapping.
type RawCitation struct {
	URI    string
	Title  string
	Source string
}

// CoerceCitations applies spec.md 4.4 Invariant 2: citations is always a
// list of mappings. Each RawCitation becomes a core.Citation; an empty
// Source is replaced by defaultSource. An empty Title stays empty and is
// omitted from the citation's JSON form, not written as null.
func CoerceCitations(raw []RawCitation, defaultSource string) []core.Citation {
	out := make([]core.Citation, 0, len(raw))
	for _, r := range raw {
		source := r.Source
		if source == "" {
			source = defaultSource
		}
		out = append(out, core.Citation{URI: r.URI, Title: r.Title, Source: source})
	}
	return out
}

// ParseResponseJSON implements the adapter-side half of spec.md 4.4.3's
// schema invariant: when a RunRequest carries a response_schema, the
// adapter must attempt to parse the model's text into an object and set
// json_valid by the parse outcome, never raise. Markdown code fences are
// not stripped here (providers asked for structured output return bare
// JSON); callers needing fence-tolerant extraction use core.EvaluateProbe.
func ParseResponseJSON(text string) (map[string]interface{}, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// DeduplicateCitationsByURI keeps first-seen order, dropping later
// duplicates of the same URI (used by the Vertex adapter, which must build
// citations exclusively from grounding chunks, deduplicated by URI).
func DeduplicateCitationsByURI(in []core.Citation) []core.Citation {
	seen := make(map[string]struct{}, len(in))
	out := make([]core.Citation, 0, len(in))
	for _, c := range in {
		if _, dup := seen[c.URI]; dup {
			continue
		}
		seen[c.URI] = struct{}{}
		out = append(out, c)
	}
	return out
}
