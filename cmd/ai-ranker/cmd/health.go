package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contestra/ai-ranker-core/core"
)

var (
	healthProvider string
	healthModelID  string
	healthGrounded bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run a smoke test against a configured provider adapter.",
	RunE:  runHealthCheck,
}

func init() {
	healthCmd.Flags().StringVar(&healthProvider, "provider", "", "provider tag: openai, google, anthropic, azure-openai")
	healthCmd.Flags().StringVar(&healthModelID, "model-id", "", "model_id to probe")
	healthCmd.Flags().BoolVar(&healthGrounded, "grounded", false, "also verify the model is grounding-capable")
	_ = healthCmd.MarkFlagRequired("provider")
	_ = healthCmd.MarkFlagRequired("model-id")

	rootCmd.AddCommand(healthCmd)
}

func runHealthCheck(cobraCmd *cobra.Command, args []string) error {
	ctx := cobraCmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}

	prov := core.Provider(healthProvider)
	status := rt.health.CheckUngrounded(ctx, prov, healthModelID)
	if err := printJSON(status); err != nil {
		return err
	}
	if !status.OK {
		return fmt.Errorf("ungrounded health check failed: %s", status.Error)
	}

	if healthGrounded {
		groundedStatus := rt.health.CheckGrounded(ctx, prov, healthModelID)
		if err := printJSON(groundedStatus); err != nil {
			return err
		}
		if !groundedStatus.OK {
			return fmt.Errorf("grounded health check failed: %s", groundedStatus.Error)
		}
	}

	return nil
}
