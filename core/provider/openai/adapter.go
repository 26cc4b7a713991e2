// Package openai implements the OpenAI Responses API adapter (spec.md
// 4.4.1), generalized from the teacher's Chat Completions adapter
// (agent/adapters/openai_adapter.go) onto the Responses endpoint so that
// web_search grounding and schema enforcement can be exercised in a single
// call.
package openai

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"github.com/contestra/ai-ranker-core/core"
	"github.com/contestra/ai-ranker-core/core/provider"
)

// Adapter wraps the OpenAI Go SDK's Responses client.
type Adapter struct {
	client *openai.Client
	logger core.Logger
}

// New creates an adapter for OpenAI's Responses API (or an
// OpenAI-compatible endpoint via baseURL).
func New(apiKey, baseURL string, logger core.Logger) *Adapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	if logger == nil {
		logger = &core.NoopLogger{}
	}
	return &Adapter{client: &client, logger: logger}
}

func (a *Adapter) Name() string { return string(core.ProviderOpenAI) }

// Run implements provider.Adapter. It sends [system, als-as-user,
// user-prompt] to the Responses API, attaches web_search when grounding is
// requested, and enforces the fail-closed invariant before returning.
func (a *Adapter) Run(ctx context.Context, req *provider.RunRequest) (*provider.RunResult, error) {
	start := time.Now()

	params := a.buildParams(req)

	var callOpts []option.RequestOption
	if req.ResponseSchema != nil {
		// Spec.md 4.4.1: the SDK has no first-class response_schema
		// parameter for text.format on Responses; set it via the
		// extra-body escape hatch instead of hand-rolling an HTTP call.
		callOpts = append(callOpts, option.WithJSONSet("text.format", map[string]interface{}{
			"type":   "json_schema",
			"name":   "locale_probe",
			"schema": req.ResponseSchema,
			"strict": true,
		}))
	}

	resp, err := a.client.Responses.New(ctx, params, callOpts...)
	if err != nil {
		return nil, core.NewProviderTransportError(a.Name(), err)
	}

	result := a.convertResponse(resp)
	result.LatencyMS = time.Since(start).Milliseconds()

	if req.ResponseSchema != nil {
		result.JSONObj, result.JSONValid = provider.ParseResponseJSON(result.Text)
	}

	if req.GroundingMode == core.GroundingRequired && !result.GroundedEffective {
		a.logger.Warn(ctx, "openai: grounding required but not observed", core.F("run_id", req.RunID), core.F("model", req.ModelID))
		return nil, core.NewGroundingRequiredError(req.RunID, a.Name(), req.ModelID)
	}

	return result, nil
}

func (a *Adapter) buildParams(req *provider.RunRequest) responses.ResponseNewParams {
	items := make([]responses.ResponseInputItemUnionParam, 0, 2)
	if req.ALSBlock != nil {
		items = append(items, responses.ResponseInputItemParamOfMessage(req.ALSBlock.Text, responses.EasyInputMessageRoleUser))
	}
	items = append(items, responses.ResponseInputItemParamOfMessage(req.UserPrompt, responses.EasyInputMessageRoleUser))

	params := responses.ResponseNewParams{
		Model: responses.ResponsesModel(req.ModelID),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: items,
		},
	}

	if req.SystemText != "" {
		params.Instructions = openai.String(req.SystemText)
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}

	// Responses API rejects seed; it is recorded for provenance only
	// (spec.md 4.4.1), never forwarded to the provider.
	_ = req.Seed

	if req.GroundingMode == core.GroundingRequired || req.GroundingMode == core.GroundingPreferred {
		params.Tools = []responses.ToolUnionParam{responses.ToolParamOfWebSearchPreview(responses.WebSearchToolTypeWebSearchPreview)}
		params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
			OfToolChoiceMode: openai.Opt(responses.ToolChoiceOptionsAuto),
		}
	}

	return params
}

func (a *Adapter) convertResponse(resp *responses.Response) *provider.RunResult {
	result := &provider.RunResult{
		ResponseID:   resp.ID,
		ModelVersion: string(resp.Model),
		Text:         resp.OutputText(),
	}

	toolCalls := 0
	var rawCitations []provider.RawCitation
	for _, item := range resp.Output {
		if item.Type == "web_search_call" {
			toolCalls++
		}
		for _, annotation := range extractURLCitations(item) {
			rawCitations = append(rawCitations, annotation)
		}
	}
	result.ToolCallCount = toolCalls
	result.GroundedEffective = toolCalls > 0
	result.Citations = provider.CoerceCitations(rawCitations, "web_search")

	if fingerprint, ok := resp.JSON.ExtraFields["system_fingerprint"]; ok {
		result.SystemFingerprint = fingerprint.Raw()
	}

	result.Usage = core.TokenUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}

	return result
}

// extractURLCitations pulls URL citation annotations out of a message
// output item's content parts, when the model cited a web_search result
// inline rather than (or in addition to) invoking a standalone tool call.
func extractURLCitations(item responses.ResponseOutputItemUnion) []provider.RawCitation {
	if item.Type != "message" {
		return nil
	}
	var out []provider.RawCitation
	for _, content := range item.AsMessage().Content {
		text := content.AsOutputText()
		for _, ann := range text.Annotations {
			if url := ann.AsURLCitation(); url.URL != "" {
				out = append(out, provider.RawCitation{URI: url.URL, Title: url.Title, Source: "web_search"})
			}
		}
	}
	return out
}
