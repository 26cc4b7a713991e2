package core

import (
	"context"
	"strings"
	"time"

	"github.com/contestra/ai-ranker-core/core/provider"
)

// Orchestrator resolves a Template + country + grounding mode into a
// provider.RunRequest, dispatches it to the matching adapter, and records
// the result against the Version Service (spec.md 4.5).
type Orchestrator struct {
	adapters map[Provider]provider.Adapter
	versions *VersionService
	logger   Logger
}

// NewOrchestrator wires a set of provider adapters keyed by provider tag.
func NewOrchestrator(adapters map[Provider]provider.Adapter, versions *VersionService, logger Logger) *Orchestrator {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &Orchestrator{adapters: adapters, versions: versions, logger: logger}
}

// InferProvider maps a model_id to a Provider by prefix (spec.md 4.5
// "provider inference"). Unknown prefixes return ProviderUnknown rather
// than erroring, since the caller may have supplied an explicit provider.
func InferProvider(modelID string) Provider {
	lower := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(lower, "gpt"), strings.HasPrefix(lower, "o3"), strings.HasPrefix(lower, "o4"), strings.HasPrefix(lower, "omni"), strings.HasPrefix(lower, "chatgpt"):
		return ProviderOpenAI
	case strings.HasPrefix(lower, "gemini"), strings.HasPrefix(lower, "google"):
		return ProviderGoogle
	case strings.HasPrefix(lower, "claude"), strings.HasPrefix(lower, "anthropic"):
		return ProviderAnthropic
	case strings.HasPrefix(lower, "azure"):
		return ProviderAzureOpenAI
	default:
		return ProviderUnknown
	}
}

// RunSpec is everything the Orchestrator needs to produce one provider
// call: a resolved Identity, the target country, and the grounding mode
// for this particular run.
type RunSpec struct {
	RunID         string
	Template      *Template
	Country       string
	GroundingMode GroundingMode
	UserPrompt    string
}

// Validate enforces the request-shape invariants from spec.md 4.5 before
// any network call is attempted.
func (s *RunSpec) Validate() error {
	switch s.GroundingMode {
	case GroundingRequired, GroundingPreferred, GroundingOff:
	default:
		return NewValidationError("unrecognized grounding mode", map[string]interface{}{"grounding_mode": s.GroundingMode})
	}

	if s.Template.Identity.ResponseFormat != nil {
		if t, ok := s.Template.Identity.ResponseFormat["type"]; ok && t != "json_schema" && t != "object" {
			return NewValidationError("unsupported response_format.type", map[string]interface{}{"type": t})
		}
	}

	if s.Country != ALSSentinelNone {
		if _, err := BuildALS(s.Country); err != nil {
			return err
		}
	}

	return nil
}

// Dispatch runs one (template, country, grounding_mode) combination end to
// end: build the ALS block, assemble the RunRequest, invoke the matching
// adapter, and record the observed version. Adapter errors are returned
// unmodified (spec.md 4.5: the Orchestrator never translates adapter
// errors, it only adds validation and version bookkeeping around them).
func (o *Orchestrator) Dispatch(ctx context.Context, spec *RunSpec) (*provider.RunResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	id := spec.Template.Identity
	prov := InferProvider(id.ModelID)
	if prov == ProviderUnknown {
		return nil, NewValidationError("cannot infer provider for model_id", map[string]interface{}{"model_id": id.ModelID})
	}

	adapter, ok := o.adapters[prov]
	if !ok {
		return nil, NewValidationError("no adapter registered for provider", map[string]interface{}{"provider": string(prov)})
	}

	var als *ALSBlock
	if spec.Country != ALSSentinelNone {
		block, err := BuildALS(spec.Country)
		if err != nil {
			return nil, err
		}
		als = block
	}

	systemText := CombineSystemInstructions(id.SystemInstructions, als != nil)

	req := &provider.RunRequest{
		RunID:          spec.RunID,
		Provider:       prov,
		ModelID:        id.ModelID,
		SystemText:     systemText,
		ALSBlock:       als,
		UserPrompt:     spec.UserPrompt,
		GroundingMode:  spec.GroundingMode,
		ResponseSchema: id.ResponseFormat,
		ToolsSpec:      id.ToolsSpec,
		HardDeadline:   120 * time.Second,
		SoftDeadline:   60 * time.Second,
	}
	if v, ok := id.InferenceParams["temperature"].(float64); ok {
		req.Temperature = v
	}
	if v, ok := id.InferenceParams["top_p"].(float64); ok {
		req.TopP = v
	}

	start := time.Now()
	result, err := adapter.Run(ctx, req)
	elapsed := time.Since(start)

	o.logger.Info(ctx, "orchestrator: dispatched run",
		F("run_id", spec.RunID), F("provider", string(prov)), F("model_id", id.ModelID),
		F("country", spec.Country), F("grounding_mode", string(spec.GroundingMode)),
		F("latency_ms", elapsed.Milliseconds()), F("error", err != nil))

	if err != nil {
		return nil, err
	}

	if o.versions != nil {
		version, verr := o.versions.Ensure(ctx, spec.Template, prov, id.ModelID, result)
		if verr != nil {
			o.logger.Warn(ctx, "orchestrator: version bookkeeping failed", F("run_id", spec.RunID), F("error", verr.Error()))
		} else if version != nil {
			result.VersionID = version.ID
		}
	}

	return result, nil
}
