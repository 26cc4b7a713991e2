package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
)

// canonicalIdentity mirrors Identity but with a fixed, spec-ordered field
// list and pointer/nil-friendly types so that absent optional fields marshal
// to JSON null rather than being omitted (spec.md 4.1 rule 6).
type canonicalIdentity struct {
	SystemInstructions  string                   `json:"system_instructions"`
	UserPromptTemplate  string                   `json:"user_prompt_template"`
	CountrySet          []string                 `json:"country_set"`
	ModelID             string                   `json:"model_id"`
	InferenceParams     map[string]interface{}   `json:"inference_params"`
	ToolsSpec           []map[string]interface{} `json:"tools_spec"`
	ResponseFormat      map[string]interface{}   `json:"response_format"`
	GroundingProfileID  *string                  `json:"grounding_profile_id"`
	GroundingSnapshotID *string                  `json:"grounding_snapshot_id"`
	RetrievalParams     map[string]interface{}   `json:"retrieval_params"`
}

// countrySynonyms maps locally-used but non-ISO country codes to their
// ISO-3166 alpha-2 equivalent.
var countrySynonyms = map[string]string{
	"UK": "GB",
}

var whitespaceRun = regexp.MustCompile(`[ \t]+`)

// Canonicalize produces a byte-stable canonical JSON representation of an
// Identity and its SHA-256 digest. The function is total: it never errors,
// since the normalization rules are defined over arbitrary scalar/mapping
// input and illegal inputs (non-scalar inference_params leaves, non-string
// country codes) are the caller's responsibility per spec.md 4.1.
func Canonicalize(id Identity) (canonicalJSON string, configHash string) {
	ci := canonicalIdentity{
		SystemInstructions:  normalizeText(id.SystemInstructions),
		UserPromptTemplate:  normalizeText(id.UserPromptTemplate),
		CountrySet:          normalizeCountrySet(id.CountrySet),
		ModelID:             id.ModelID,
		InferenceParams:     normalizeMapping(id.InferenceParams),
		ToolsSpec:           normalizeToolsSpec(id.ToolsSpec),
		ResponseFormat:      normalizeMapping(id.ResponseFormat),
		GroundingProfileID:  id.GroundingProfileID,
		GroundingSnapshotID: id.GroundingSnapshotID,
		RetrievalParams:     normalizeMapping(id.RetrievalParams),
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	// json.Marshal/Encoder sort map[string]T keys lexicographically, which
	// gives us the "deep-sort mappings by key" rule for free on every
	// map-typed field; slices keep insertion order.
	if err := enc.Encode(ci); err != nil {
		// canonicalIdentity only contains scalars, slices and
		// map[string]interface{} built from normalizeMapping, which is
		// always JSON-marshalable; this path is unreachable in practice.
		panic("core: canonicalize: unexpected marshal failure: " + err.Error())
	}

	canonicalJSON = strings.TrimSuffix(buf.String(), "\n")
	sum := sha256.Sum256([]byte(canonicalJSON))
	configHash = hex.EncodeToString(sum[:])
	return canonicalJSON, configHash
}

// normalizeText applies spec.md 4.1 rule 1: CRLF -> LF, then collapse runs
// of spaces/tabs (never newlines) to a single space, then trim leading and
// trailing whitespace of the whole text. Newlines are semantically
// meaningful (e.g. in system instructions) and are preserved verbatim.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// normalizeCountrySet applies spec.md 4.1 rule 2: uppercase, map synonyms,
// de-duplicate, sort lexicographically.
func normalizeCountrySet(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		u := strings.ToUpper(strings.TrimSpace(c))
		if mapped, ok := countrySynonyms[u]; ok {
			u = mapped
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// normalizeToolsSpec applies spec.md 4.1 rule 4: preserve tool order
// (position is semantically meaningful to providers), deep-sort keys within
// each tool mapping.
func normalizeToolsSpec(tools []map[string]interface{}) []map[string]interface{} {
	if tools == nil {
		return nil
	}
	out := make([]map[string]interface{}, len(tools))
	for i, t := range tools {
		out[i] = normalizeMapping(t)
	}
	return out
}

// normalizeMapping applies spec.md 4.1 rules 3/5: recursively round every
// float to 4 decimal places; map key sort order is handled by the JSON
// encoder at marshal time, so this function's job is purely the float
// rounding walk plus nil-preservation (a nil input stays nil -> JSON null).
func normalizeMapping(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case float64:
		return roundTo4dp(val)
	case float32:
		return roundTo4dp(float64(val))
	case map[string]interface{}:
		return normalizeMapping(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return val
	}
}

func roundTo4dp(f float64) float64 {
	return math.Round(f*10000) / 10000
}
