package commands

import (
	"os"

	"github.com/seqops/dropsync/cmd/dropsync/opts"
	"github.com/seqops/dropsync/pkg/pipeline"
	"github.com/seqops/dropsync/pkg/report"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

// NewSyncCmd creates a new sync command
func NewSyncCmd(provide opts.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy drop folder files into the repository",
		Long: `Sync plans and executes the pipeline for every file in the drop folder.
It will:
1. Decide per-file actions exactly as plan does
2. Copy approved files to their rendered target paths
3. Verify every transfer byte-for-byte and propagate sidecars
4. Update or create metadata store records
5. Archive verified sources`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := provide(cmd.Context())
			if err != nil {
				return err
			}
			ctx := o.Logger.With().Str("command", "sync").Logger().WithContext(cmd.Context())

			p, err := pipeline.New(o.Config, o.Store, true)
			if err != nil {
				return errors.Errorf("assembling pipeline: %w", err)
			}

			pr, err := p.Plan(ctx)
			if err != nil {
				return errors.Errorf("planning: %w", err)
			}

			o.Reporter.Header("syncing " + o.Config.String())

			results, err := p.Execute(ctx, pr, o.Workers)
			if err != nil {
				return errors.Errorf("executing: %w", err)
			}

			synced, failed := 0, 0
			for _, res := range results {
				o.Reporter.LogFileOutcome(ctx, report.Outcome(res))
				switch {
				case res.Err != nil:
					failed++
				case res.Copied:
					synced++
				}
			}
			o.Reporter.LogNewline()

			if err := report.SummaryTable(os.Stdout, results); err != nil {
				return err
			}

			if failed > 0 {
				o.Reporter.Errorf("%d of %d files failed", failed, len(results))
				return errors.Errorf("%d files failed", failed)
			}

			o.Reporter.Successf("%d of %d files synchronized", synced, len(results))
			return nil
		},
	}

	return cmd
}
