package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/contestra/ai-ranker-core/core"
)

var (
	tmplOrgID       string
	tmplWorkspaceID string
	tmplName        string
	tmplCreatedBy   string
	tmplModelID     string
	tmplSystemText  string
	tmplUserPrompt  string
	tmplCountries   []string
	tmplProvider    string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Create, inspect, and delete prompt templates.",
}

var templateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new prompt template, rejecting an exact config_hash duplicate.",
	RunE:  runTemplateCreate,
}

var templateCheckDupCmd = &cobra.Command{
	Use:   "check-dup",
	Short: "Report whether an active template already exists for this identity, without creating one.",
	RunE:  runTemplateCheckDup,
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active templates for a workspace.",
	RunE:  runTemplateList,
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <template-id>",
	Short: "Soft-delete a template by id.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateDelete,
}

func init() {
	for _, c := range []*cobra.Command{templateCreateCmd, templateCheckDupCmd, templateListCmd, templateDeleteCmd} {
		c.Flags().StringVar(&tmplOrgID, "org", "", "organization id")
		c.Flags().StringVar(&tmplWorkspaceID, "workspace", "", "workspace id")
		_ = c.MarkFlagRequired("org")
		_ = c.MarkFlagRequired("workspace")
	}

	templateCreateCmd.Flags().StringVar(&tmplName, "name", "", "human-readable template name")
	templateCreateCmd.Flags().StringVar(&tmplCreatedBy, "created-by", "cli", "creator identity recorded on the template")
	templateCreateCmd.Flags().StringVar(&tmplProvider, "provider", "", "advisory provider label (never hashed)")
	templateCreateCmd.Flags().StringVar(&tmplModelID, "model-id", "", "model_id (drives provider inference)")
	templateCreateCmd.Flags().StringVar(&tmplSystemText, "system-instructions", "", "system instructions")
	templateCreateCmd.Flags().StringVar(&tmplUserPrompt, "user-prompt", "", "user prompt template")
	templateCreateCmd.Flags().StringSliceVar(&tmplCountries, "countries", nil, "country_set, e.g. DE,US,GB")
	_ = templateCreateCmd.MarkFlagRequired("name")
	_ = templateCreateCmd.MarkFlagRequired("model-id")

	templateCheckDupCmd.Flags().StringVar(&tmplModelID, "model-id", "", "model_id")
	templateCheckDupCmd.Flags().StringVar(&tmplSystemText, "system-instructions", "", "system instructions")
	templateCheckDupCmd.Flags().StringVar(&tmplUserPrompt, "user-prompt", "", "user prompt template")
	templateCheckDupCmd.Flags().StringSliceVar(&tmplCountries, "countries", nil, "country_set, e.g. DE,US,GB")

	templateCmd.AddCommand(templateCreateCmd, templateCheckDupCmd, templateListCmd, templateDeleteCmd)
	rootCmd.AddCommand(templateCmd)
}

func identityFromFlags() core.Identity {
	return core.Identity{
		SystemInstructions: tmplSystemText,
		UserPromptTemplate: tmplUserPrompt,
		CountrySet:         tmplCountries,
		ModelID:            tmplModelID,
	}
}

func runTemplateCreate(cobraCmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cobraCmd.Context())
	if err != nil {
		return err
	}

	id := identityFromFlags()
	canonicalRaw, hash := core.Canonicalize(id)

	tmpl := &core.Template{
		ID:           uuid.NewString(),
		OrgID:        tmplOrgID,
		WorkspaceID:  tmplWorkspaceID,
		Name:         tmplName,
		Provider:     tmplProvider,
		CreatedBy:    tmplCreatedBy,
		CreatedAt:    time.Now().UTC(),
		Identity:     id,
		CanonicalRaw: canonicalRaw,
		ConfigHash:   hash,
	}

	created, err := rt.store.CreateTemplate(cobraCmd.Context(), tmpl)
	if err != nil {
		var dupErr *core.DuplicateTemplateError
		if errors.As(err, &dupErr) {
			fmt.Fprintf(os.Stderr, "a template with this identity already exists: %s (%s), created %s\n",
				dupErr.ExistingID, dupErr.ExistingName, dupErr.ExistingCreatedAt)
		}
		return err
	}

	return printJSON(created)
}

func runTemplateCheckDup(cobraCmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cobraCmd.Context())
	if err != nil {
		return err
	}

	id := identityFromFlags()
	_, hash := core.Canonicalize(id)

	existing, found, err := rt.store.CheckDuplicate(cobraCmd.Context(), tmplOrgID, tmplWorkspaceID, hash)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"duplicate":   found,
		"config_hash": hash,
		"existing":    existing,
	})
}

func runTemplateList(cobraCmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cobraCmd.Context())
	if err != nil {
		return err
	}
	templates, err := rt.store.ListTemplates(cobraCmd.Context(), tmplOrgID, tmplWorkspaceID)
	if err != nil {
		return err
	}
	return printJSON(templates)
}

func runTemplateDelete(cobraCmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cobraCmd.Context())
	if err != nil {
		return err
	}
	return rt.store.SoftDelete(cobraCmd.Context(), tmplOrgID, tmplWorkspaceID, args[0], time.Now().UTC())
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
