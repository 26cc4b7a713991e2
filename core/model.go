// Package core implements the prompt-template experimental runtime: canonical
// identity hashing, ambient locale signals, provider orchestration, version
// tracking, template storage and the per-run dispatcher.
package core

import "time"

// Identity is the set of attributes that are hashed into a Template's
// config_hash. Non-identity attributes (org, workspace, name, provider label,
// audit timestamps) live on Template and are never part of the hash.
type Identity struct {
	SystemInstructions  string
	UserPromptTemplate  string
	CountrySet          []string
	ModelID             string
	InferenceParams     map[string]interface{}
	ToolsSpec           []map[string]interface{}
	ResponseFormat      map[string]interface{}
	GroundingProfileID  *string
	GroundingSnapshotID *string
	RetrievalParams     map[string]interface{}
}

// Template is a configuration bundle: an Identity plus the tenancy and
// bookkeeping attributes that sit outside the config_hash.
type Template struct {
	ID          string
	OrgID       string
	WorkspaceID string
	Name        string
	Provider    string // advisory label only, never hashed
	CreatedBy   string
	CreatedAt   time.Time
	DeletedAt   *time.Time

	Identity     Identity
	CanonicalRaw string // canonical JSON produced by Canonicalize
	ConfigHash   string
}

// Active reports whether the template has not been soft-deleted.
func (t *Template) Active() bool {
	return t.DeletedAt == nil
}

// Provider is the closed set of provider tags recognized by the core.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGoogle Provider = "google"
	ProviderAnthropic Provider = "anthropic"
	ProviderAzureOpenAI Provider = "azure-openai"
	ProviderUnknown Provider = "unknown"
)

// Version is a provider-reported identity for a Template at a point in time.
type Version struct {
	ID                     string
	TemplateID             string
	OrgID                  string
	WorkspaceID            string
	Provider               Provider
	ProviderVersionKey     string
	ModelID                string
	FingerprintCapturedAt  *time.Time
	FirstSeenAt            time.Time
	LastSeenAt             time.Time
}

// Citation is a single grounding source attached to a Result.
type Citation struct {
	URI    string `json:"uri"`
	Title  string `json:"title,omitempty"`
	Source string `json:"source,omitempty"`
}

// Result is the audit row for one provider call.
type Result struct {
	ID                 string
	TemplateID         string
	VersionID          string
	ProviderVersionKey string
	SystemFingerprint  string
	Request            map[string]interface{}
	Response            map[string]interface{}
	AnalysisConfig      map[string]interface{}
	CreatedAt           time.Time

	GroundedEffective bool
	ToolCallCount     int
	Citations         []Citation
	JSONValid         bool
	LatencyMS         int64
}

// CountryExpectation is the authoritative per-country set of acceptable
// locale-probe values used by the Locale-Probe Evaluator (C3).
type CountryExpectation struct {
	Country          string
	VAT              string
	Plugs            []string
	EmergencyPrimary string
	EmergencyAlt     string // alternate acceptable primary, e.g. GB "999 or 112"
}

// TokenUsage mirrors the teacher's agent.TokenUsage: token consumption
// statistics recorded on every RunResult for cost tracking.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GroundingMode is the provider grounding requirement for a RunRequest.
type GroundingMode string

const (
	GroundingRequired GroundingMode = "REQUIRED"
	GroundingPreferred GroundingMode = "PREFERRED"
	GroundingOff GroundingMode = "OFF"
)
