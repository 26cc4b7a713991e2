package core

import (
	"context"
	"time"

	"github.com/contestra/ai-ranker-core/core/provider"
)

// HealthStatus is the outcome of one provider's smoke test.
type HealthStatus struct {
	Provider   Provider
	ModelID    string
	OK         bool
	GroundedOK bool
	LatencyMS  int64
	Error      string
}

// HealthChecker runs one-token smoke tests per provider so operators can
// confirm credentials and connectivity before scheduling a full dispatch
// batch (supplements spec.md with the preflight the original system's
// health-check surface performed but the distilled spec omitted).
type HealthChecker struct {
	adapters map[Provider]provider.Adapter
	logger   Logger
}

// NewHealthChecker wires the same adapter set the Orchestrator uses.
func NewHealthChecker(adapters map[Provider]provider.Adapter, logger Logger) *HealthChecker {
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &HealthChecker{adapters: adapters, logger: logger}
}

// CheckUngrounded sends a minimal ungrounded prompt to confirm the adapter
// can reach the provider and parse a response at all.
func (h *HealthChecker) CheckUngrounded(ctx context.Context, prov Provider, modelID string) HealthStatus {
	adapter, ok := h.adapters[prov]
	if !ok {
		return HealthStatus{Provider: prov, ModelID: modelID, OK: false, Error: "no adapter registered"}
	}

	start := time.Now()
	_, err := adapter.Run(ctx, &provider.RunRequest{
		RunID:         "health-check",
		Provider:      prov,
		ModelID:       modelID,
		UserPrompt:    "Reply with the single word: ok",
		GroundingMode: GroundingOff,
		HardDeadline:  10 * time.Second,
	})
	status := HealthStatus{Provider: prov, ModelID: modelID, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.OK = true
	return status
}

// CheckGrounded runs a grounded smoke test, used specifically to validate
// a Vertex model against the grounding-capable allow-list before it is
// offered to callers requesting REQUIRED or PREFERRED grounding.
func (h *HealthChecker) CheckGrounded(ctx context.Context, prov Provider, modelID string) HealthStatus {
	adapter, ok := h.adapters[prov]
	if !ok {
		return HealthStatus{Provider: prov, ModelID: modelID, OK: false, Error: "no adapter registered"}
	}

	start := time.Now()
	result, err := adapter.Run(ctx, &provider.RunRequest{
		RunID:         "health-check-grounded",
		Provider:      prov,
		ModelID:       modelID,
		UserPrompt:    "What is today's date according to a current web search?",
		GroundingMode: GroundingRequired,
		HardDeadline:  20 * time.Second,
	})
	status := HealthStatus{Provider: prov, ModelID: modelID, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.OK = true
	status.GroundedOK = result.GroundedEffective
	return status
}
