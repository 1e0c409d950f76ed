package commands

import (
	"os"

	"github.com/seqops/dropsync/cmd/dropsync/opts"
	"github.com/seqops/dropsync/pkg/pipeline"
	"github.com/seqops/dropsync/pkg/report"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

// NewPlanCmd creates a new plan command
func NewPlanCmd(provide opts.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Decide per-file actions without executing them",
		Long: `Plan runs the full decision pipeline in dry-run mode.
It will:
1. Discover candidate files in the drop folder
2. Verify checksums and match metadata
3. Render collision-free target paths
4. Print the decided action for every file

Nothing is copied, written back or archived.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := provide(cmd.Context())
			if err != nil {
				return err
			}
			ctx := o.Logger.With().Str("command", "plan").Logger().WithContext(cmd.Context())

			p, err := pipeline.New(o.Config, o.Store, false)
			if err != nil {
				return errors.Errorf("assembling pipeline: %w", err)
			}

			pr, err := p.Plan(ctx)
			if err != nil {
				return errors.Errorf("planning: %w", err)
			}

			o.Reporter.Header("plan for " + o.Config.String())
			if err := report.PlanTable(os.Stdout, pr.Files, pr.Unmatched); err != nil {
				return err
			}

			planned := 0
			for _, fp := range pr.Files {
				if fp.Plan.Copy.Execute {
					planned++
				}
			}
			o.Reporter.Infof("%d of %d files would be copied", planned, len(pr.Files))

			return nil
		},
	}

	return cmd
}
