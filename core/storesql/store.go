// Package storesql implements core.TemplateStore and core.VersionStore on
// top of a pure-Go SQLite driver, grounded on the teacher pack's
// database/sql + modernc.org/sqlite pattern (Aureuma-si ReleaseParty
// backend/internal/store/store.go): Open runs migrations, one *sql.DB is
// shared, and schema lives as inline DDL strings.
package storesql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/contestra/ai-ranker-core/core"
)

// Store is the SQL-backed implementation of core.TemplateStore and
// core.VersionStore.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) a SQLite database file at path and runs
// migrations. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS prompt_templates (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			name TEXT NOT NULL,
			provider TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			deleted_at TEXT,
			system_instructions TEXT NOT NULL,
			user_prompt_template TEXT NOT NULL,
			country_set TEXT NOT NULL,
			model_id TEXT NOT NULL,
			inference_params TEXT NOT NULL,
			tools_spec TEXT NOT NULL,
			response_format TEXT NOT NULL,
			grounding_profile_id TEXT,
			grounding_snapshot_id TEXT,
			retrieval_params TEXT NOT NULL,
			canonical_raw TEXT NOT NULL,
			config_hash TEXT NOT NULL
		);`,
		// Partial unique index: only active (non-deleted) templates
		// participate in the dedup constraint (spec.md 4.7).
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_active_hash
			ON prompt_templates(org_id, workspace_id, config_hash)
			WHERE deleted_at IS NULL;`,
		`CREATE TABLE IF NOT EXISTS prompt_versions (
			id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			org_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			provider_version_key TEXT NOT NULL,
			model_id TEXT NOT NULL,
			fingerprint_captured_at TEXT,
			first_seen_at TEXT NOT NULL,
			last_seen_at TEXT NOT NULL,
			last_seen_at_unix INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_identity
			ON prompt_versions(org_id, workspace_id, template_id, provider, provider_version_key);`,
		`CREATE TABLE IF NOT EXISTS prompt_results (
			id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			version_id TEXT NOT NULL,
			provider_version_key TEXT NOT NULL,
			system_fingerprint TEXT NOT NULL,
			request TEXT NOT NULL,
			response TEXT NOT NULL,
			analysis_config TEXT NOT NULL,
			created_at TEXT NOT NULL,
			grounded_effective INTEGER NOT NULL,
			tool_call_count INTEGER NOT NULL,
			citations TEXT NOT NULL,
			json_valid INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "null", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(raw string, v interface{}) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

// CreateTemplate implements core.TemplateStore. It inserts optimistically
// and translates a unique-constraint violation on the active-hash index
// into a DuplicateTemplateError carrying the existing row's identity, per
// spec.md 4.7's UPSERT-via-insert-then-fetch pattern.
func (s *Store) CreateTemplate(ctx context.Context, tmpl *core.Template) (*core.Template, error) {
	countrySet, err := marshalJSON(tmpl.Identity.CountrySet)
	if err != nil {
		return nil, err
	}
	inferenceParams, err := marshalJSON(tmpl.Identity.InferenceParams)
	if err != nil {
		return nil, err
	}
	toolsSpec, err := marshalJSON(tmpl.Identity.ToolsSpec)
	if err != nil {
		return nil, err
	}
	responseFormat, err := marshalJSON(tmpl.Identity.ResponseFormat)
	if err != nil {
		return nil, err
	}
	retrievalParams, err := marshalJSON(tmpl.Identity.RetrievalParams)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prompt_templates (
			id, org_id, workspace_id, name, provider, created_by, created_at, deleted_at,
			system_instructions, user_prompt_template, country_set, model_id,
			inference_params, tools_spec, response_format,
			grounding_profile_id, grounding_snapshot_id, retrieval_params,
			canonical_raw, config_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tmpl.ID, tmpl.OrgID, tmpl.WorkspaceID, tmpl.Name, tmpl.Provider, tmpl.CreatedBy,
		tmpl.CreatedAt.UTC().Format(time.RFC3339Nano),
		tmpl.Identity.SystemInstructions, tmpl.Identity.UserPromptTemplate, countrySet, tmpl.Identity.ModelID,
		inferenceParams, toolsSpec, responseFormat,
		tmpl.Identity.GroundingProfileID, tmpl.Identity.GroundingSnapshotID, retrievalParams,
		tmpl.CanonicalRaw, tmpl.ConfigHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, found, lookupErr := s.CheckDuplicate(ctx, tmpl.OrgID, tmpl.WorkspaceID, tmpl.ConfigHash)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if found {
				return nil, core.NewDuplicateTemplateError(existing.ID, existing.Name, existing.CreatedAt.Format(time.RFC3339))
			}
		}
		return nil, fmt.Errorf("create template: %w", err)
	}

	return tmpl, nil
}

// isUniqueViolation matches the error text modernc.org/sqlite surfaces for
// a UNIQUE constraint failure; the driver does not expose a typed
// sqlite3.Error the way the CGO driver does.
func isUniqueViolation(err error) bool {
	return err != nil && (contains(err.Error(), "UNIQUE constraint failed") || contains(err.Error(), "constraint failed"))
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func (s *Store) CheckDuplicate(ctx context.Context, orgID, workspaceID, configHash string) (*core.Template, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, workspace_id, name, provider, created_by, created_at, deleted_at,
			system_instructions, user_prompt_template, country_set, model_id,
			inference_params, tools_spec, response_format,
			grounding_profile_id, grounding_snapshot_id, retrieval_params,
			canonical_raw, config_hash
		FROM prompt_templates
		WHERE org_id = ? AND workspace_id = ? AND config_hash = ? AND deleted_at IS NULL
		LIMIT 1`, orgID, workspaceID, configHash)

	tmpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return tmpl, true, nil
}

func (s *Store) GetTemplate(ctx context.Context, orgID, workspaceID, id string) (*core.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, workspace_id, name, provider, created_by, created_at, deleted_at,
			system_instructions, user_prompt_template, country_set, model_id,
			inference_params, tools_spec, response_format,
			grounding_profile_id, grounding_snapshot_id, retrieval_params,
			canonical_raw, config_hash
		FROM prompt_templates
		WHERE org_id = ? AND workspace_id = ? AND id = ?`, orgID, workspaceID, id)

	return scanTemplate(row)
}

func (s *Store) ListTemplates(ctx context.Context, orgID, workspaceID string) ([]*core.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, workspace_id, name, provider, created_by, created_at, deleted_at,
			system_instructions, user_prompt_template, country_set, model_id,
			inference_params, tools_spec, response_format,
			grounding_profile_id, grounding_snapshot_id, retrieval_params,
			canonical_raw, config_hash
		FROM prompt_templates
		WHERE org_id = ? AND workspace_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC`, orgID, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tmpl)
	}
	return out, rows.Err()
}

func (s *Store) SoftDelete(ctx context.Context, orgID, workspaceID, id string, deletedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE prompt_templates SET deleted_at = ?
		WHERE org_id = ? AND workspace_id = ? AND id = ? AND deleted_at IS NULL`,
		deletedAt.UTC().Format(time.RFC3339Nano), orgID, workspaceID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("template %s not found or already deleted", id)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTemplate.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*core.Template, error) {
	var (
		tmpl                                                core.Template
		createdAtRaw                                        string
		deletedAtRaw                                        sql.NullString
		countrySetRaw, inferenceParamsRaw, toolsSpecRaw      string
		responseFormatRaw, retrievalParamsRaw                string
		groundingProfileID, groundingSnapshotID              sql.NullString
	)

	if err := row.Scan(
		&tmpl.ID, &tmpl.OrgID, &tmpl.WorkspaceID, &tmpl.Name, &tmpl.Provider, &tmpl.CreatedBy, &createdAtRaw, &deletedAtRaw,
		&tmpl.Identity.SystemInstructions, &tmpl.Identity.UserPromptTemplate, &countrySetRaw, &tmpl.Identity.ModelID,
		&inferenceParamsRaw, &toolsSpecRaw, &responseFormatRaw,
		&groundingProfileID, &groundingSnapshotID, &retrievalParamsRaw,
		&tmpl.CanonicalRaw, &tmpl.ConfigHash,
	); err != nil {
		return nil, err
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtRaw)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	tmpl.CreatedAt = createdAt

	if deletedAtRaw.Valid {
		deletedAt, err := time.Parse(time.RFC3339Nano, deletedAtRaw.String)
		if err != nil {
			return nil, fmt.Errorf("parse deleted_at: %w", err)
		}
		tmpl.DeletedAt = &deletedAt
	}
	if groundingProfileID.Valid {
		tmpl.Identity.GroundingProfileID = &groundingProfileID.String
	}
	if groundingSnapshotID.Valid {
		tmpl.Identity.GroundingSnapshotID = &groundingSnapshotID.String
	}

	if err := unmarshalJSON(countrySetRaw, &tmpl.Identity.CountrySet); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(inferenceParamsRaw, &tmpl.Identity.InferenceParams); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(toolsSpecRaw, &tmpl.Identity.ToolsSpec); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(responseFormatRaw, &tmpl.Identity.ResponseFormat); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(retrievalParamsRaw, &tmpl.Identity.RetrievalParams); err != nil {
		return nil, err
	}

	return &tmpl, nil
}

// RecordResult persists one Run Dispatcher audit row (spec.md 4.8).
func (s *Store) RecordResult(ctx context.Context, r *core.Result) error {
	request, err := marshalJSON(r.Request)
	if err != nil {
		return err
	}
	response, err := marshalJSON(r.Response)
	if err != nil {
		return err
	}
	analysisConfig, err := marshalJSON(r.AnalysisConfig)
	if err != nil {
		return err
	}
	citations, err := marshalJSON(r.Citations)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prompt_results (
			id, template_id, version_id, provider_version_key, system_fingerprint,
			request, response, analysis_config, created_at,
			grounded_effective, tool_call_count, citations, json_valid, latency_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TemplateID, r.VersionID, r.ProviderVersionKey, r.SystemFingerprint,
		request, response, analysisConfig, r.CreatedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(r.GroundedEffective), r.ToolCallCount, citations, boolToInt(r.JSONValid), r.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// UpsertVersion implements core.VersionStore on top of the same database,
// per spec.md 4.6: insert, and on a conflict on
// (org, workspace, template, provider, provider_version_key), update
// last_seen_at to max(existing, captured_at) and backfill
// fingerprint_captured_at if it was previously unset. The MAX comparison
// runs on last_seen_at_unix (nanoseconds since epoch), not on the
// RFC3339Nano text column: trailing-zero-trimmed fractional seconds make
// the text column non-monotonic under lexicographic comparison (P10).
func (s *Store) UpsertVersion(ctx context.Context, v *core.Version) (*core.Version, error) {
	var fingerprintCapturedAt sql.NullString
	if v.FingerprintCapturedAt != nil {
		fingerprintCapturedAt = sql.NullString{String: v.FingerprintCapturedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_versions (
			id, template_id, org_id, workspace_id, provider, provider_version_key, model_id,
			fingerprint_captured_at, first_seen_at, last_seen_at, last_seen_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, workspace_id, template_id, provider, provider_version_key) DO UPDATE SET
			last_seen_at = CASE WHEN excluded.last_seen_at_unix > prompt_versions.last_seen_at_unix
				THEN excluded.last_seen_at ELSE prompt_versions.last_seen_at END,
			last_seen_at_unix = MAX(prompt_versions.last_seen_at_unix, excluded.last_seen_at_unix),
			fingerprint_captured_at = COALESCE(prompt_versions.fingerprint_captured_at, excluded.fingerprint_captured_at)`,
		v.ID, v.TemplateID, v.OrgID, v.WorkspaceID, string(v.Provider), v.ProviderVersionKey, v.ModelID,
		fingerprintCapturedAt, v.FirstSeenAt.UTC().Format(time.RFC3339Nano), v.LastSeenAt.UTC().Format(time.RFC3339Nano),
		v.LastSeenAt.UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert version: %w", err)
	}

	// Read back the canonical row: on a conflict, v.ID was never inserted
	// (the existing row's id is retained by ON CONFLICT DO UPDATE, which
	// never touches the id column), so returning v verbatim would hand
	// callers an id that names no row.
	row := s.db.QueryRowContext(ctx, `
		SELECT id, template_id, org_id, workspace_id, provider, provider_version_key, model_id,
			fingerprint_captured_at, first_seen_at, last_seen_at
		FROM prompt_versions
		WHERE org_id = ? AND workspace_id = ? AND template_id = ? AND provider = ? AND provider_version_key = ?`,
		v.OrgID, v.WorkspaceID, v.TemplateID, string(v.Provider), v.ProviderVersionKey,
	)
	return scanVersion(row)
}

func scanVersion(row rowScanner) (*core.Version, error) {
	var (
		out                   core.Version
		provider              string
		fingerprintCapturedAt sql.NullString
		firstSeenAtRaw        string
		lastSeenAtRaw         string
	)
	if err := row.Scan(
		&out.ID, &out.TemplateID, &out.OrgID, &out.WorkspaceID, &provider, &out.ProviderVersionKey, &out.ModelID,
		&fingerprintCapturedAt, &firstSeenAtRaw, &lastSeenAtRaw,
	); err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}
	out.Provider = core.Provider(provider)

	firstSeenAt, err := time.Parse(time.RFC3339Nano, firstSeenAtRaw)
	if err != nil {
		return nil, fmt.Errorf("parse first_seen_at: %w", err)
	}
	out.FirstSeenAt = firstSeenAt

	lastSeenAt, err := time.Parse(time.RFC3339Nano, lastSeenAtRaw)
	if err != nil {
		return nil, fmt.Errorf("parse last_seen_at: %w", err)
	}
	out.LastSeenAt = lastSeenAt

	if fingerprintCapturedAt.Valid {
		capturedAt, err := time.Parse(time.RFC3339Nano, fingerprintCapturedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse fingerprint_captured_at: %w", err)
		}
		out.FingerprintCapturedAt = &capturedAt
	}

	return &out, nil
}
