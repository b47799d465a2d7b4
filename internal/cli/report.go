package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BigJazzz/mosaic/internal/report"
)

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print today's attendance report for the active plan",
		Long: `Print today's attendance report for the active plan: one row per
synced lot, sorted by lot, with company owners split from their
representatives. Queued check-ins are not included; sync first.

Example:
  mosaic report --out SP1234.txt`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				snap, err := d.session.Refresh(ctx)
				if err != nil {
					return f.fail("build report", err)
				}
				r := report.Build(d.session.ActivePlan(), d.today(), snap)

				if f.Format == "json" {
					return f.Success(r)
				}
				if out == "" {
					return report.WriteText(f.Writer, r)
				}

				file, err := os.Create(out)
				if err != nil {
					return f.failCommand("create report file", err)
				}
				if err := report.WriteText(file, r); err != nil {
					file.Close()
					return f.failCommand("write report", err)
				}
				if err := file.Close(); err != nil {
					return f.failCommand("write report", err)
				}
				fmt.Fprintf(f.Writer, "Wrote %s (%d attending)\n", out, len(r.Rows))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the report to a file")

	return cmd
}
