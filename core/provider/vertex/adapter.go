// Package vertex implements the Vertex GenAI adapter (spec.md 4.4.2),
// grounded on the teacher's Gemini adapter shape (agent/adapters/
// gemini_adapter.go: config-then-call-then-convert) but rebuilt on
// google.golang.org/genai, the SDK that actually exposes Vertex AI's
// project/location addressing and grounding_metadata.
package vertex

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/contestra/ai-ranker-core/core"
	"github.com/contestra/ai-ranker-core/core/provider"
)

// groundingCapableModels is the allow-list of publisher models known to
// support GoogleSearch grounding on Vertex (spec.md 4.4.2 "model allow-list").
var groundingCapableModels = map[string]bool{
	"gemini-2.0-flash":      true,
	"gemini-2.0-flash-001":  true,
	"gemini-2.5-flash":      true,
	"gemini-2.5-pro":        true,
	"gemini-1.5-pro":        true,
	"gemini-1.5-flash":      true,
}

// Adapter wraps a Vertex-backed genai.Client.
type Adapter struct {
	client   *genai.Client
	project  string
	location string
	logger   core.Logger
}

// New creates an adapter against Vertex AI (not the Gemini Developer API):
// project and location are mandatory per spec.md 4.4.2.
func New(ctx context.Context, project, location string, logger core.Logger) (*Adapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  project,
		Location: location,
	})
	if err != nil {
		return nil, core.NewProviderTransportError(string(core.ProviderGoogle), err)
	}
	if logger == nil {
		logger = &core.NoopLogger{}
	}
	return &Adapter{client: client, project: project, location: location, logger: logger}, nil
}

func (a *Adapter) Name() string { return string(core.ProviderGoogle) }

// SupportsGrounding reports whether modelID is on the allow-list of models
// known to honor the GoogleSearch tool on Vertex.
func SupportsGrounding(modelID string) bool {
	return groundingCapableModels[normalizeModelID(modelID)]
}

// normalizeModelID strips a publishers/google/models/ prefix if the caller
// already passed a fully qualified resource name.
func normalizeModelID(modelID string) string {
	if idx := strings.LastIndex(modelID, "/"); idx >= 0 {
		return modelID[idx+1:]
	}
	return modelID
}

// Run implements provider.Adapter. When grounding is requested alongside a
// response schema, Vertex's schema-vs-grounding exclusivity (spec.md 4.4.2
// Invariant 3) forces two passes: a grounded pass without a schema to
// collect citations, then a schema-constrained pass without tools to get
// parseable JSON. The two are merged into a single RunResult.
func (a *Adapter) Run(ctx context.Context, req *provider.RunRequest) (*provider.RunResult, error) {
	start := time.Now()
	wantsGrounding := req.GroundingMode == core.GroundingRequired || req.GroundingMode == core.GroundingPreferred

	if wantsGrounding && !SupportsGrounding(req.ModelID) {
		return nil, core.NewUnsupportedGroundingError(req.ModelID)
	}

	if wantsGrounding && req.ResponseSchema != nil {
		return a.runTwoPass(ctx, req, start)
	}
	return a.runSinglePass(ctx, req, wantsGrounding, start)
}

func (a *Adapter) runSinglePass(ctx context.Context, req *provider.RunRequest, grounded bool, start time.Time) (*provider.RunResult, error) {
	cfg := a.buildConfig(req, grounded)
	// grounded is only true here when req.ResponseSchema is nil (Run routes
	// grounded+schema through runTwoPass), so applying the schema
	// unconditionally on this branch would never collide with Invariant 3.
	if !grounded && req.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = convertSchema(req.ResponseSchema)
	}

	resp, err := a.client.Models.GenerateContent(ctx, req.ModelID, a.buildContents(req), cfg)
	if err != nil {
		return nil, core.NewProviderTransportError(a.Name(), err)
	}

	result := a.convertResponse(resp)
	result.LatencyMS = time.Since(start).Milliseconds()

	if !grounded && req.ResponseSchema != nil {
		result.JSONObj, result.JSONValid = provider.ParseResponseJSON(result.Text)
	}

	if req.GroundingMode == core.GroundingRequired && !result.GroundedEffective {
		a.logger.Warn(ctx, "vertex: grounding required but not observed", core.F("run_id", req.RunID), core.F("model", req.ModelID))
		return nil, core.NewGroundingRequiredError(req.RunID, a.Name(), req.ModelID)
	}
	return result, nil
}

func (a *Adapter) runTwoPass(ctx context.Context, req *provider.RunRequest, start time.Time) (*provider.RunResult, error) {
	groundedCfg := a.buildConfig(req, true)
	groundedResp, err := a.client.Models.GenerateContent(ctx, req.ModelID, a.buildContents(req), groundedCfg)
	if err != nil {
		return nil, core.NewProviderTransportError(a.Name(), err)
	}
	groundedResult := a.convertResponse(groundedResp)

	if req.GroundingMode == core.GroundingRequired && !groundedResult.GroundedEffective {
		a.logger.Warn(ctx, "vertex: grounding required but not observed in grounded pass", core.F("run_id", req.RunID), core.F("model", req.ModelID))
		return nil, core.NewGroundingRequiredError(req.RunID, a.Name(), req.ModelID)
	}

	schemaCfg := a.buildConfig(req, false)
	schemaCfg.ResponseMIMEType = "application/json"
	schemaCfg.ResponseSchema = convertSchema(req.ResponseSchema)

	schemaResp, err := a.client.Models.GenerateContent(ctx, req.ModelID, a.buildContents(req), schemaCfg)
	if err != nil {
		return nil, core.NewProviderTransportError(a.Name(), err)
	}
	schemaResult := a.convertResponse(schemaResp)
	schemaResult.JSONObj, schemaResult.JSONValid = provider.ParseResponseJSON(schemaResult.Text)

	// Merge: structured text/JSON from the schema pass, grounding evidence
	// from the grounded pass.
	schemaResult.GroundedEffective = groundedResult.GroundedEffective
	schemaResult.ToolCallCount = groundedResult.ToolCallCount
	schemaResult.Citations = groundedResult.Citations
	schemaResult.LatencyMS = time.Since(start).Milliseconds()

	return schemaResult, nil
}

func (a *Adapter) buildContents(req *provider.RunRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, 2)
	if req.ALSBlock != nil {
		contents = append(contents, genai.NewContentFromText(req.ALSBlock.Text, genai.RoleUser))
	}
	contents = append(contents, genai.NewContentFromText(req.UserPrompt, genai.RoleUser))
	return contents
}

func (a *Adapter) buildConfig(req *provider.RunRequest, grounded bool) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.SystemText != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemText, genai.RoleUser)
	}

	temp := float32(req.Temperature)
	if grounded {
		// Vertex's 2.x grounded generations are documented to require
		// temperature=1.0; deviating silently degrades grounding quality.
		temp = 1.0
	}
	if temp > 0 {
		cfg.Temperature = genai.Ptr(temp)
	}
	if req.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}

	if grounded {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	return cfg
}

func convertSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}
	return jsonSchemaToGenaiSchema(schema)
}

// jsonSchemaToGenaiSchema converts the subset of JSON Schema the locale
// probe prompts use (object/string/array/enum) into genai.Schema.
func jsonSchemaToGenaiSchema(m map[string]interface{}) *genai.Schema {
	s := &genai.Schema{}
	switch t, _ := m["type"].(string); t {
	case "object":
		s.Type = genai.TypeObject
		props := map[string]*genai.Schema{}
		if rawProps, ok := m["properties"].(map[string]interface{}); ok {
			for k, v := range rawProps {
				if vm, ok := v.(map[string]interface{}); ok {
					props[k] = jsonSchemaToGenaiSchema(vm)
				}
			}
		}
		s.Properties = props
		if req, ok := m["required"].([]interface{}); ok {
			for _, r := range req {
				if rs, ok := r.(string); ok {
					s.Required = append(s.Required, rs)
				}
			}
		}
	case "array":
		s.Type = genai.TypeArray
		if items, ok := m["items"].(map[string]interface{}); ok {
			s.Items = jsonSchemaToGenaiSchema(items)
		}
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
	}
	if enum, ok := m["enum"].([]interface{}); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	return s
}

// convertResponse extracts text, grounding evidence and usage from a Vertex
// response. Citations are built exclusively from grounding chunks
// (spec.md 4.4.2), deduplicated by URI, never from model-authored prose.
func (a *Adapter) convertResponse(resp *genai.GenerateContentResponse) *provider.RunResult {
	result := &provider.RunResult{
		Text:         resp.Text(),
		ModelVersion: resp.ModelVersion,
	}

	if len(resp.Candidates) == 0 {
		return result
	}
	candidate := resp.Candidates[0]

	if gm := candidate.GroundingMetadata; gm != nil {
		var raw []provider.RawCitation
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			raw = append(raw, provider.RawCitation{URI: chunk.Web.URI, Title: chunk.Web.Title, Source: "google_search"})
		}
		citations := provider.CoerceCitations(raw, "google_search")
		result.Citations = provider.DeduplicateCitationsByURI(citations)

		// spec.md 4.4.2: tool_call_count = 1 if any chunk or query is
		// present, not a raw count of queries - a chunk with no matching
		// query (or vice versa) must still register as one observed call.
		hasSignal := len(gm.WebSearchQueries) > 0 || len(gm.GroundingChunks) > 0
		result.GroundedEffective = hasSignal
		if hasSignal {
			result.ToolCallCount = 1
		}
	}

	if resp.UsageMetadata != nil {
		result.Usage = core.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return result
}
