package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"github.com/contestra/ai-ranker-core/core/provider"
)

const (
	defaultHardDeadline = 120 * time.Second
	defaultSoftDeadline = 60 * time.Second
	defaultConcurrency  = 8
)

// RunDispatcher implements C8 (spec.md 4.8): expand a Template's country
// set times the requested grounding modes, run each combination through
// the Orchestrator with bounded parallelism, and persist one audit Result
// row per attempt - including failed ones, so a REQUIRED-grounding miss
// for one country never silently drops that data point.
type RunDispatcher struct {
	orchestrator *Orchestrator
	store        TemplateStore
	logger       Logger
	concurrency  int
}

// NewRunDispatcher wires an Orchestrator and a TemplateStore for result
// persistence. concurrency <= 0 falls back to defaultConcurrency.
func NewRunDispatcher(orchestrator *Orchestrator, store TemplateStore, logger Logger, concurrency int) *RunDispatcher {
	if logger == nil {
		logger = &NoopLogger{}
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &RunDispatcher{orchestrator: orchestrator, store: store, logger: logger, concurrency: concurrency}
}

// DispatchRequest is one batch of work: a Template run across the
// Cartesian product of countries (the sentinel ALSSentinelNone is a valid
// member, meaning "no ALS block") and grounding modes.
type DispatchRequest struct {
	Template       *Template
	Countries      []string
	GroundingModes []GroundingMode
	UserPrompt     string

	// IsLocaleProbe marks this batch as a locale-probe run (spec.md 2
	// "Locale-Probe Evaluator ... validates the response ... when the
	// template is a probe"): each successful step's response is run
	// through EvaluateProbe and the summary is attached to the persisted
	// Result's AnalysisConfig.
	IsLocaleProbe bool
}

// stepOutcome pairs a country/mode combination with whatever happened.
type stepOutcome struct {
	country       string
	groundingMode GroundingMode
	result        *provider.RunResult
	err           error
}

// Run executes the full Cartesian expansion and returns one Result per
// combination attempted, in no particular order. It does not return an
// error for individual step failures; callers inspect each Result's
// GroundedEffective/JSONValid fields, and errors are logged and recorded
// as failure rows.
func (d *RunDispatcher) Run(ctx context.Context, req *DispatchRequest) ([]*Result, error) {
	type job struct {
		country string
		mode    GroundingMode
	}
	var jobs []job
	for _, c := range req.Countries {
		for _, m := range req.GroundingModes {
			jobs = append(jobs, job{country: c, mode: m})
		}
	}

	outcomes := make([]stepOutcome, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(d.concurrency)

	for i, j := range jobs {
		i, j := i, j
		eg.Go(func() error {
			outcomes[i] = d.runStep(egCtx, req, j.country, j.mode)
			return nil
		})
	}
	// Errors from individual steps are captured in stepOutcome, not
	// propagated through errgroup, so Wait only reports infrastructure
	// failures (e.g. a panic recovered upstream).
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(outcomes))
	for _, o := range outcomes {
		result, err := d.persist(ctx, req, o)
		if err != nil {
			d.logger.Warn(ctx, "dispatcher: failed to persist result",
				F("country", o.country), F("grounding_mode", string(o.groundingMode)), F("error", err.Error()))
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// runStep applies the hard/soft deadline model from spec.md 5: grounded
// calls get the extended soft deadline, everything is bounded by the hard
// deadline as an absolute ceiling.
func (d *RunDispatcher) runStep(ctx context.Context, req *DispatchRequest, country string, mode GroundingMode) stepOutcome {
	deadline := defaultHardDeadline
	if mode != GroundingOff {
		deadline = defaultSoftDeadline
	}
	stepCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	spec := &RunSpec{
		RunID:         uuid.NewString(),
		Template:      req.Template,
		Country:       country,
		GroundingMode: mode,
		UserPrompt:    req.UserPrompt,
	}

	result, err := d.orchestrator.Dispatch(stepCtx, spec)
	return stepOutcome{country: country, groundingMode: mode, result: result, err: err}
}

// persist builds the structured audit JSON for one outcome (success or
// failure) and records it via the TemplateStore.
func (d *RunDispatcher) persist(ctx context.Context, req *DispatchRequest, o stepOutcome) (*Result, error) {
	tmpl := req.Template
	requestJSON, err := buildRequestAudit(tmpl, o.country, o.groundingMode)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ID:         uuid.NewString(),
		TemplateID: tmpl.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := unmarshalInto(requestJSON, &result.Request); err != nil {
		return nil, err
	}

	if o.err != nil {
		var groundingErr *GroundingRequiredError
		responseJSON, buildErr := sjson.Set(`{}`, "error", o.err.Error())
		if buildErr != nil {
			return nil, buildErr
		}
		if errors.As(o.err, &groundingErr) {
			responseJSON, _ = sjson.Set(responseJSON, "kind", string(KindGroundingRequired))
		}
		if err := unmarshalInto(responseJSON, &result.Response); err != nil {
			return nil, err
		}
		if err := unmarshalInto("", &result.AnalysisConfig); err != nil {
			return nil, err
		}
		result.JSONValid = false
		if err := d.store.RecordResult(ctx, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	responseJSON, err := buildResponseAudit(o.result)
	if err != nil {
		return nil, err
	}
	if err := unmarshalInto(responseJSON, &result.Response); err != nil {
		return nil, err
	}

	analysisJSON, err := d.buildAnalysisAudit(req, o)
	if err != nil {
		return nil, err
	}
	if err := unmarshalInto(analysisJSON, &result.AnalysisConfig); err != nil {
		return nil, err
	}

	result.VersionID = o.result.VersionID
	result.ProviderVersionKey = fingerprintFor(InferProvider(tmpl.Identity.ModelID), o.result)
	result.SystemFingerprint = o.result.SystemFingerprint
	result.GroundedEffective = o.result.GroundedEffective
	result.ToolCallCount = o.result.ToolCallCount
	result.Citations = o.result.Citations
	result.JSONValid = o.result.JSONValid
	result.LatencyMS = o.result.LatencyMS

	if err := d.store.RecordResult(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// buildAnalysisAudit assembles the per-step analysis_config document
// (SPEC_FULL.md 3 supplement #3): ALS leak-detection (spec.md 4.2, P8) runs
// whenever an ALS block was attached, and locale-probe evaluation
// (spec.md 4.3) runs when the batch is marked as a probe run
// (spec.md 2 "validates the response and yields pass/fail signals").
func (d *RunDispatcher) buildAnalysisAudit(req *DispatchRequest, o stepOutcome) (string, error) {
	cfg := `{}`
	var err error

	if o.country != ALSSentinelNone {
		block, alsErr := BuildALS(o.country)
		if alsErr == nil && block != nil {
			leak := DetectLeak(o.country, block, o.result.Text)
			if cfg, err = sjson.Set(cfg, "leak.detected", leak.LeakDetected); err != nil {
				return "", err
			}
			if cfg, err = sjson.Set(cfg, "leak.offending_phrases", leak.OffendingPhrases); err != nil {
				return "", err
			}
		}
	}

	if req.IsLocaleProbe {
		probe := EvaluateProbe(o.country, o.result.Text)
		if cfg, err = sjson.Set(cfg, "probe.pass", probe.Pass); err != nil {
			return "", err
		}
		if cfg, err = sjson.Set(cfg, "probe.confidence", string(probe.Confidence)); err != nil {
			return "", err
		}
		if cfg, err = sjson.Set(cfg, "probe.vat_pass", probe.VATPass); err != nil {
			return "", err
		}
		if cfg, err = sjson.Set(cfg, "probe.plug_pass", probe.PlugPass); err != nil {
			return "", err
		}
		if cfg, err = sjson.Set(cfg, "probe.emergency_pass", probe.EmergencyPass); err != nil {
			return "", err
		}
		if cfg, err = sjson.Set(cfg, "probe.normalized_vat", probe.NormalizedVAT); err != nil {
			return "", err
		}
		if cfg, err = sjson.Set(cfg, "probe.normalized_plugs", probe.NormalizedPlugs); err != nil {
			return "", err
		}
		if cfg, err = sjson.Set(cfg, "probe.normalized_emergency", probe.NormalizedEmergency); err != nil {
			return "", err
		}
		if probe.Reason != "" {
			if cfg, err = sjson.Set(cfg, "probe.reason", probe.Reason); err != nil {
				return "", err
			}
		}
	}

	return cfg, nil
}

func buildRequestAudit(tmpl *Template, country string, mode GroundingMode) (string, error) {
	json := `{}`
	var err error
	json, err = sjson.Set(json, "template_id", tmpl.ID)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "model_id", tmpl.Identity.ModelID)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "country", country)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "grounding_mode", string(mode))
	if err != nil {
		return "", err
	}
	return json, nil
}

func buildResponseAudit(r *provider.RunResult) (string, error) {
	json := `{}`
	var err error
	json, err = sjson.Set(json, "text", r.Text)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "model_version", r.ModelVersion)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "response_id", r.ResponseID)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "tool_call_count", r.ToolCallCount)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "usage.total_tokens", r.Usage.TotalTokens)
	if err != nil {
		return "", err
	}
	return json, nil
}

func unmarshalInto(raw string, out *map[string]interface{}) error {
	if raw == "" {
		*out = map[string]interface{}{}
		return nil
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return fmt.Errorf("audit json: %w", err)
	}
	*out = m
	return nil
}
