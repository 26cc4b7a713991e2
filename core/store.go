package core

import (
	"context"
	"time"
)

// TemplateStore is the persistence contract for C7 (spec.md 4.7): create
// with active-only dedup, duplicate probing without mutation, soft delete,
// and result recording for the Run Dispatcher. core/storesql provides the
// SQL-backed implementation; tests may supply an in-memory fake.
type TemplateStore interface {
	// CreateTemplate inserts tmpl with the ConfigHash the caller computed
	// (via Canonicalize); it does not recompute the hash. If an
	// active template already exists with the same
	// (org_id, workspace_id, config_hash), it returns
	// *DuplicateTemplateError without inserting.
	CreateTemplate(ctx context.Context, tmpl *Template) (*Template, error)

	// CheckDuplicate reports whether an active template with the given
	// hash already exists, without creating anything.
	CheckDuplicate(ctx context.Context, orgID, workspaceID, configHash string) (*Template, bool, error)

	// GetTemplate fetches a template by id, including soft-deleted ones.
	GetTemplate(ctx context.Context, orgID, workspaceID, id string) (*Template, error)

	// ListTemplates returns active templates for a workspace.
	ListTemplates(ctx context.Context, orgID, workspaceID string) ([]*Template, error)

	// SoftDelete sets deleted_at on a template. It does not cascade to
	// versions or results (spec.md 4.7 "soft_delete").
	SoftDelete(ctx context.Context, orgID, workspaceID, id string, deletedAt time.Time) error

	// RecordResult persists one Run Dispatcher audit row.
	RecordResult(ctx context.Context, r *Result) error
}
