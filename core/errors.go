package core

import "fmt"

// Kind is the stable error taxonomy from spec.md 7. Each kind maps to one
// class of caller reaction; callers should switch on Kind (or errors.As a
// *Error) rather than comparing error strings.
type Kind string

const (
	KindValidation             Kind = "ValidationError"
	KindDuplicateTemplate      Kind = "DuplicateTemplate"
	KindProviderTransport      Kind = "ProviderTransportError"
	KindGroundingRequired      Kind = "GroundingRequiredError"
	KindUnsupportedGrounding   Kind = "UnsupportedGroundingError"
	KindSchemaValidationFailed Kind = "SchemaValidationFailure"
	KindLocaleProbeFailed      Kind = "LocaleProbeFailure"
)

// Error is the core's single error type, grounded on the teacher's
// agent.APIError/agent.ReActError shape: a typed Kind, a human message,
// optional contextual fields, and an unwrap chain.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s %v", e.Kind, e.Message, e.Fields)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(kind Kind, msg string, fields map[string]interface{}) *Error {
	return &Error{Kind: kind, Message: msg, Fields: fields}
}

// NewValidationError reports a malformed RunRequest, an ALS block over the
// 350-char budget, or an unrecognized grounding mode.
func NewValidationError(msg string, fields map[string]interface{}) *Error {
	return newErr(KindValidation, msg, fields)
}

// DuplicateTemplateError carries the existing active template so the caller
// can consume its id instead of editing the identity and retrying.
type DuplicateTemplateError struct {
	*Error
	ExistingID        string
	ExistingName      string
	ExistingCreatedAt string
}

// NewDuplicateTemplateError builds the 409-equivalent error for Template
// Store creation conflicts (spec.md 4.7).
func NewDuplicateTemplateError(existingID, existingName, existingCreatedAt string) *DuplicateTemplateError {
	return &DuplicateTemplateError{
		Error: newErr(KindDuplicateTemplate, "active template with this config_hash already exists", map[string]interface{}{
			"existing_id": existingID,
		}),
		ExistingID:        existingID,
		ExistingName:      existingName,
		ExistingCreatedAt: existingCreatedAt,
	}
}

// NewProviderTransportError wraps a retryable transport failure (timeout,
// 5xx, rate-limit) from an adapter.
func NewProviderTransportError(provider string, err error) *Error {
	e := newErr(KindProviderTransport, "provider transport error", map[string]interface{}{"provider": provider})
	e.Err = err
	return e
}

// GroundingRequiredError is raised when grounding_mode=REQUIRED and the
// adapter observed zero tool calls / grounding signals. No RunResult is
// returned alongside this error (fail-closed, spec.md invariant 1).
type GroundingRequiredError struct {
	*Error
	RunID    string
	Provider string
	ModelID  string
}

// NewGroundingRequiredError builds the fail-closed grounding error.
func NewGroundingRequiredError(runID, provider, modelID string) *GroundingRequiredError {
	return &GroundingRequiredError{
		Error: newErr(KindGroundingRequired, "grounding mode REQUIRED but no tool call or grounding signal observed", map[string]interface{}{
			"run_id": runID, "provider": provider, "model_id": modelID,
		}),
		RunID:    runID,
		Provider: provider,
		ModelID:  modelID,
	}
}

// UnsupportedGroundingError is raised when grounding is requested on a model
// outside the provider's grounding-capable allow-list.
type UnsupportedGroundingError struct {
	*Error
	ModelID string
}

// NewUnsupportedGroundingError builds the allow-list rejection error.
func NewUnsupportedGroundingError(modelID string) *UnsupportedGroundingError {
	return &UnsupportedGroundingError{
		Error:   newErr(KindUnsupportedGrounding, "model is not in the grounding-capable allow-list", map[string]interface{}{"model_id": modelID}),
		ModelID: modelID,
	}
}

// NewSchemaValidationFailure documents a response that could not be parsed
// into the requested JSON schema. Per spec.md 7 this is local recovery, not
// a raised error path in the adapter -- callers construct it only to record
// the reason alongside a Result with json_valid=false.
func NewSchemaValidationFailure(reason string) *Error {
	return newErr(KindSchemaValidationFailed, reason, nil)
}

// NewLocaleProbeFailure documents why a locale probe evaluation yielded
// pass=false. Never raised; EvaluateProbe itself reports the reason as the
// plain string ProbeResult.Reason and does not call this constructor.
func NewLocaleProbeFailure(reason string) *Error {
	return newErr(KindLocaleProbeFailed, reason, nil)
}
