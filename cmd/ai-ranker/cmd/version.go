package cmd

import (
	"github.com/spf13/cobra"

	"github.com/contestra/ai-ranker-core/core"
	"github.com/contestra/ai-ranker-core/core/provider"
)

var (
	versionOrgID       string
	versionWorkspaceID string
	versionTemplateID  string
	versionProvider    string
	versionModelID     string
	versionFingerprint string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Provider version fingerprint bookkeeping.",
}

var versionEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Record a provider version fingerprint for a template, idempotently within the hourly bucket.",
	Long: `ensure records a (template, provider, model) version fingerprint the same
way the Orchestrator does after every successful run. It exists so an
operator can backfill or correct a version row without re-dispatching a
full provider call.`,
	RunE: runVersionEnsure,
}

func init() {
	versionEnsureCmd.Flags().StringVar(&versionOrgID, "org", "", "organization id")
	versionEnsureCmd.Flags().StringVar(&versionWorkspaceID, "workspace", "", "workspace id")
	versionEnsureCmd.Flags().StringVar(&versionTemplateID, "template", "", "template id")
	versionEnsureCmd.Flags().StringVar(&versionProvider, "provider", "", "provider tag: openai, google, anthropic, azure-openai")
	versionEnsureCmd.Flags().StringVar(&versionModelID, "model-id", "", "model_id")
	versionEnsureCmd.Flags().StringVar(&versionFingerprint, "fingerprint", "", "provider version fingerprint (system_fingerprint or model_version)")
	for _, flag := range []string{"org", "workspace", "template", "provider", "model-id", "fingerprint"} {
		_ = versionEnsureCmd.MarkFlagRequired(flag)
	}

	versionCmd.AddCommand(versionEnsureCmd)
	rootCmd.AddCommand(versionCmd)
}

func runVersionEnsure(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}

	tmpl, err := rt.store.GetTemplate(ctx, versionOrgID, versionWorkspaceID, versionTemplateID)
	if err != nil {
		return err
	}

	prov := core.Provider(versionProvider)
	result := &provider.RunResult{ModelVersion: versionFingerprint}
	if prov == core.ProviderOpenAI || prov == core.ProviderAzureOpenAI {
		result.SystemFingerprint = versionFingerprint
	}

	if _, err := rt.versions.Ensure(ctx, tmpl, prov, versionModelID, result); err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"template_id": tmpl.ID,
		"provider":    prov,
		"model_id":    versionModelID,
		"fingerprint": versionFingerprint,
	})
}
