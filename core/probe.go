package core

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// expectations is the authoritative per-country table from spec.md 4.3.
var expectations = map[string]CountryExpectation{
	"DE": {Country: "DE", VAT: "19%", Plugs: []string{"F", "C"}, EmergencyPrimary: "112"},
	"CH": {Country: "CH", VAT: "8.1%", Plugs: []string{"J", "C"}, EmergencyPrimary: "112"},
	"FR": {Country: "FR", VAT: "20%", Plugs: []string{"E", "F", "C"}, EmergencyPrimary: "112"},
	"IT": {Country: "IT", VAT: "22%", Plugs: []string{"L", "F", "C"}, EmergencyPrimary: "112"},
	"US": {Country: "US", VAT: "no federal VAT", Plugs: []string{"A", "B"}, EmergencyPrimary: "911"},
	"GB": {Country: "GB", VAT: "20%", Plugs: []string{"G"}, EmergencyPrimary: "999", EmergencyAlt: "112"},
	"AE": {Country: "AE", VAT: "5%", Plugs: []string{"G", "C", "D"}, EmergencyPrimary: "999", EmergencyAlt: "112"},
	"SG": {Country: "SG", VAT: "9%", Plugs: []string{"G"}, EmergencyPrimary: "999", EmergencyAlt: "995"},
}

// ExpectationFor returns the authoritative expectation for a country code.
func ExpectationFor(country string) (CountryExpectation, bool) {
	e, ok := expectations[strings.ToUpper(country)]
	return e, ok
}

// Confidence is the parser's confidence tier for a probe evaluation.
type Confidence string

const (
	ConfidenceFullMatch             Confidence = "full_match"
	ConfidencePartial               Confidence = "partial"
	ConfidenceStructuralParseOnly   Confidence = "structural_parse_only"
	ConfidenceFailed                Confidence = "failed"
)

// ProbeResult is the outcome of evaluating a provider response against a
// country's expected (VAT, plug, emergency) values.
type ProbeResult struct {
	Country string

	VATPass       bool
	PlugPass      bool
	EmergencyPass bool
	Pass          bool

	NormalizedVAT       string
	NormalizedPlugs     []string
	NormalizedEmergency []string

	Confidence Confidence
	Reason     string
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSONObject strips markdown code fences if present, then scans for
// the first balanced {...} object in the text (spec.md 4.3 step 1).
func extractJSONObject(text string) (map[string]interface{}, bool) {
	candidate := text
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}

	start := strings.IndexByte(candidate, '{')
	if start < 0 {
		return nil, false
	}

	depth := 0
	end := -1
	inString := false
	escaped := false
	for i := start; i < len(candidate); i++ {
		c := candidate[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, false
	}

	raw := candidate[start : end+1]
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj, true
	}

	// Tolerate near-valid JSON (trailing commas, unquoted-ish drift) before
	// falling back to gjson, which can pull individual fields out of text
	// that never fully parses as JSON.
	if repaired, err := jsonrepair.JSONRepair(raw); err == nil {
		if err := json.Unmarshal([]byte(repaired), &obj); err == nil {
			return obj, true
		}
	}

	scanned := extractByFieldScan(raw)
	return scanned, len(scanned) > 0
}

// extractByFieldScan is the last-resort path for text that never parses as
// JSON even after repair: it probes the known locale-probe keys directly
// with gjson, which tolerates structurally broken documents as long as the
// targeted value itself is well-formed.
func extractByFieldScan(raw string) map[string]interface{} {
	obj := map[string]interface{}{}
	for _, key := range []string{"vat", "vat_percent", "plug", "plug_type", "emergency", "emergency_numbers"} {
		if v := gjson.Get(raw, key); v.Exists() {
			if v.IsArray() {
				arr := make([]interface{}, 0)
				for _, e := range v.Array() {
					arr = append(arr, e.Value())
				}
				obj[key] = arr
			} else {
				obj[key] = v.Value()
			}
		}
	}
	return obj
}

var vatStripPattern = regexp.MustCompile(`(?i)TVA|VAT|GST|IVA|MwSt|BTW|:`)

// normalizeVAT applies spec.md 4.3 step 2.
func normalizeVAT(country, raw string) string {
	if strings.EqualFold(country, "US") {
		lower := strings.ToLower(strings.TrimSpace(raw))
		switch lower {
		case "no federal vat", "none", "no", "n/a", "na", "null", "0", "0%", "":
			return "no federal VAT"
		}
	}

	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", ".")
	s = vatStripPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, " ", "")

	if s == "" {
		return s
	}
	if _, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64); err == nil && !strings.HasSuffix(s, "%") {
		s += "%"
	}
	return s
}

var plugSplitter = regexp.MustCompile(`(?i)[/,;•]|\band\b|\bet\b|\by\b`)

var plugPrefixes = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)^type\s*`), ""},
	{regexp.MustCompile(`(?i)^typ\s*`), ""},
	{regexp.MustCompile(`(?i)^tipo\s*`), ""},
	{regexp.MustCompile(`(?i)bs\s*1363`), "G"},
	{regexp.MustCompile(`(?i)cee\s*7/4`), "F"},
	{regexp.MustCompile(`(?i)cee\s*7/5-?6?`), "E"},
	{regexp.MustCompile(`(?i)schuko`), "F"},
	{regexp.MustCompile(`(?i)europlug`), "C"},
	{regexp.MustCompile(`(?i)nema\s*1-15`), "A"},
	{regexp.MustCompile(`(?i)nema\s*5-15`), "B"},
	{regexp.MustCompile(`(?i)sev\s*1011`), "J"},
	{regexp.MustCompile(`(?i)cei\s*23-50`), "L"},
}

// normalizePlugs applies spec.md 4.3 step 3. Input may be a JSON array of
// letters/phrases or a single delimited string.
func normalizePlugs(raw interface{}) []string {
	var tokens []string
	switch v := raw.(type) {
	case []interface{}:
		for _, e := range v {
			tokens = append(tokens, fmtAny(e))
		}
	case string:
		tokens = plugSplitter.Split(v, -1)
	default:
		return nil
	}

	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		t := strings.TrimSpace(tok)
		if t == "" {
			continue
		}
		for _, p := range plugPrefixes {
			t = p.pattern.ReplaceAllString(t, p.replacement)
		}
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		// Keep only a single leading letter token if prose slipped through
		// (e.g. "TYPE G (BS 1363)" -> after replacement "G (G)").
		if len(t) > 1 {
			if m := regexp.MustCompile(`^[A-N]`).FindString(t); m != "" {
				t = m
			}
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

var emergencyNumberPattern = regexp.MustCompile(`\b\d{2,4}\b`)

// normalizeEmergency applies spec.md 4.3 step 4: extract every 2-4 digit
// integer substring, preserving order of first appearance.
func normalizeEmergency(raw interface{}) []string {
	var text string
	switch v := raw.(type) {
	case []interface{}:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = fmtAny(e)
		}
		text = strings.Join(parts, " ")
	case string:
		text = v
	default:
		return nil
	}

	matches := emergencyNumberPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{})
	for _, m := range matches {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func fmtAny(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// EvaluateProbe validates a provider response against a country's expected
// (VAT, plug, emergency) values (spec.md 4.3). Never raises: all failure
// modes return Confidence=failed with a Reason.
func EvaluateProbe(country, responseText string) ProbeResult {
	result := ProbeResult{Country: strings.ToUpper(country)}

	expected, ok := ExpectationFor(country)
	if !ok {
		result.Confidence = ConfidenceFailed
		result.Reason = "no expectation table entry for country"
		return result
	}

	obj, ok := extractJSONObject(responseText)
	if !ok {
		result.Confidence = ConfidenceFailed
		result.Reason = "no balanced JSON object found in response"
		return result
	}

	vatRaw := firstNonEmpty(obj, "vat", "vat_percent")
	plugRaw := firstField(obj, "plug", "plug_type")
	emergencyRaw := firstField(obj, "emergency", "emergency_numbers")

	result.NormalizedVAT = normalizeVAT(expected.Country, vatRaw)
	result.NormalizedPlugs = normalizePlugs(plugRaw)
	result.NormalizedEmergency = normalizeEmergency(emergencyRaw)

	result.VATPass = strings.EqualFold(result.NormalizedVAT, expected.VAT)
	result.PlugPass = isSubsetNonEmpty(result.NormalizedPlugs, expected.Plugs)
	result.EmergencyPass = containsAny(result.NormalizedEmergency, expected.EmergencyPrimary, expected.EmergencyAlt)

	result.Pass = result.VATPass && result.PlugPass && result.EmergencyPass

	switch {
	case result.Pass:
		result.Confidence = ConfidenceFullMatch
	case result.VATPass || result.PlugPass || result.EmergencyPass:
		result.Confidence = ConfidencePartial
	default:
		result.Confidence = ConfidenceStructuralParseOnly
		result.Reason = "JSON parsed but no field matched expectations"
	}
	return result
}

func firstNonEmpty(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if s := fmtAny(v); s != "" {
				return s
			}
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func firstField(obj map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return nil
}

func isSubsetNonEmpty(got, allowed []string) bool {
	if len(got) == 0 {
		return false
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = struct{}{}
	}
	for _, g := range got {
		if _, ok := allowedSet[g]; !ok {
			return false
		}
	}
	return true
}

func containsAny(got []string, values ...string) bool {
	set := make(map[string]struct{}, len(got))
	for _, g := range got {
		set[g] = struct{}{}
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
