package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contestra/ai-ranker-core/core"
)

var (
	runOrgID          string
	runWorkspaceID    string
	runTemplateID     string
	runUserPrompt     string
	runCountries      []string
	runGroundingModes []string
	runLocaleProbe    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch a template across a country x grounding-mode matrix.",
	RunE:  runRunDispatch,
}

func init() {
	runCmd.Flags().StringVar(&runOrgID, "org", "", "organization id")
	runCmd.Flags().StringVar(&runWorkspaceID, "workspace", "", "workspace id")
	runCmd.Flags().StringVar(&runTemplateID, "template", "", "template id to dispatch")
	runCmd.Flags().StringVar(&runUserPrompt, "user-prompt", "", "user prompt override for this batch")
	runCmd.Flags().StringSliceVar(&runCountries, "countries", []string{core.ALSSentinelNone}, "country_set to dispatch, NONE for no ALS")
	runCmd.Flags().StringSliceVar(&runGroundingModes, "grounding-modes", []string{string(core.GroundingOff)}, "grounding modes to dispatch: REQUIRED, PREFERRED, OFF")
	runCmd.Flags().BoolVar(&runLocaleProbe, "locale-probe", false, "evaluate each response against the per-country (VAT, plug, emergency) expectation table")
	_ = runCmd.MarkFlagRequired("org")
	_ = runCmd.MarkFlagRequired("workspace")
	_ = runCmd.MarkFlagRequired("template")

	rootCmd.AddCommand(runCmd)
}

func runRunDispatch(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}

	tmpl, err := rt.store.GetTemplate(ctx, runOrgID, runWorkspaceID, runTemplateID)
	if err != nil {
		return err
	}
	if !tmpl.Active() {
		return fmt.Errorf("template %s has been soft-deleted", runTemplateID)
	}

	modes := make([]core.GroundingMode, 0, len(runGroundingModes))
	for _, m := range runGroundingModes {
		modes = append(modes, core.GroundingMode(m))
	}

	userPrompt := runUserPrompt
	if userPrompt == "" {
		userPrompt = tmpl.Identity.UserPromptTemplate
	}

	results, err := rt.dispatcher.Run(ctx, &core.DispatchRequest{
		Template:       tmpl,
		Countries:      runCountries,
		GroundingModes: modes,
		UserPrompt:     userPrompt,
		IsLocaleProbe:  runLocaleProbe,
	})
	if err != nil {
		return err
	}

	return printJSON(results)
}
