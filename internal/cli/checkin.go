package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/engine"
	"github.com/BigJazzz/mosaic/internal/session"
)

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "lookup <lot>",
		Short:         "Show the selectable names for a lot of the active plan",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				res, err := d.session.LookupLot(ctx, args[0])
				if err != nil {
					return f.fail("lookup lot", err)
				}
				if f.Format == "json" {
					return f.Success(res)
				}
				if len(res.Names) == 0 {
					fmt.Fprintf(f.Writer, "Lot %s: no names on record\n", args[0])
					return nil
				}
				kind := "owners"
				if res.Company {
					kind = "company"
				}
				fmt.Fprintf(f.Writer, "Lot %s (%s):\n", args[0], kind)
				for _, n := range res.Names {
					fmt.Fprintf(f.Writer, "  %s\n", n)
				}
				return nil
			})
		},
	}
}

// CheckInOptions holds flags for the checkin command.
type CheckInOptions struct {
	*RootOptions
	Names     []string
	Financial bool
	Proxy     string
	Rep       string
	NoSync    bool
}

// CheckInResult is the output of the checkin command.
type CheckInResult struct {
	Submission attendance.Submission `json:"submission"`
	Sync       engine.Result         `json:"sync"`
	SyncError  string                `json:"sync_error,omitempty"`
}

// NewCheckInCommand creates the checkin command.
func NewCheckInCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckInOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkin <lot>",
		Short: "Record attendance for a lot of the active plan",
		Long: `Record attendance for a lot. The check-in is queued on this device
first, then one sync is attempted. An offline device keeps the check-in
queued until the next "mosaic sync".

Example:
  mosaic checkin 12 --name "Jane Doe" --financial
  mosaic checkin 7 --proxy 3
  mosaic checkin 4 --name "ABC Pty Ltd" --rep "John Smith"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				return runCheckIn(ctx, opts, args[0], d, f)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Names, "name", "n", nil, "attendee name (repeatable)")
	cmd.Flags().BoolVar(&opts.Financial, "financial", false, "financial (committee member for SCM)")
	cmd.Flags().StringVar(&opts.Proxy, "proxy", "", "record a proxy vote held by this lot")
	cmd.Flags().StringVar(&opts.Rep, "rep", "", "company representative name")
	cmd.Flags().BoolVar(&opts.NoSync, "no-sync", false, "queue only; do not attempt a sync")

	return cmd
}

func runCheckIn(ctx context.Context, opts *CheckInOptions, lot string, d *device, f *OutputFormatter) error {
	in := session.CheckIn{
		Lot:            lot,
		Names:          opts.Names,
		Financial:      opts.Financial,
		Proxy:          opts.Proxy != "",
		ProxyHolderLot: opts.Proxy,
		CompanyRep:     opts.Rep,
	}
	sub, err := d.session.Submit(ctx, in)
	if err != nil {
		return f.fail("check in", err)
	}

	out := CheckInResult{Submission: sub, Sync: engine.Result{Skipped: engine.SkipNone}}
	if !opts.NoSync {
		out.Sync, err = d.trySync(ctx)
		if err != nil {
			out.SyncError = err.Error()
			slog.Debug("sync after check-in failed", "error", err)
		}
	}

	if f.Format == "json" {
		return f.Success(out)
	}
	fmt.Fprintf(f.Writer, "Queued lot %s: %s\n", sub.LotID, sub.DisplayName())
	switch {
	case opts.NoSync:
	case out.SyncError != "":
		fmt.Fprintf(f.Writer, "Sync failed, will retry: %s\n", out.SyncError)
	case out.Sync.Skipped != engine.SkipNone:
		fmt.Fprintf(f.Writer, "Sync skipped (%s); check-in stays queued\n", out.Sync.Skipped)
	default:
		fmt.Fprintf(f.Writer, "Synced %d submission(s)\n", out.Sync.Confirmed+out.Sync.CleanedUp)
	}
	return nil
}

// NewAttendeesCommand creates the attendees command.
func NewAttendeesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "attendees",
		Short: "List synced and queued attendees of the active plan",
		Long: `List the active plan's attendees for today: synced rows from the
server plus check-ins still queued on this device. When the server cannot
be reached only queued rows are shown.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				if _, err := d.session.Refresh(ctx); err != nil {
					if !isOffline(err) {
						return f.fail("list attendees", err)
					}
					f.VerboseLog("server unreachable, showing queued check-ins only: %v", err)
				}
				list, err := d.session.Attendees(ctx)
				if err != nil {
					return f.fail("list attendees", err)
				}
				if f.Format == "json" {
					return f.Success(list)
				}
				writeAttendees(f.Writer, list)
				return nil
			})
		},
	}
}

func isOffline(err error) bool {
	return errorCode(err) == CodeOffline
}

func writeAttendees(w io.Writer, list []attendance.Attendee) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No attendees recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOT\tNAME\tSTATUS\tID")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Lot, a.Name, a.Status, a.SubmissionID)
	}
	tw.Flush()
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <lot>",
		Short: "Clear a lot's synced attendance on the server",
		Long: `Clear a lot's synced attendance for today's meeting on the active plan.
Use "mosaic queue rm" for check-ins that have not synced yet.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				if err := d.session.DeleteSynced(ctx, args[0]); err != nil {
					return f.fail("delete attendance", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]string{"deleted": args[0]})
				}
				fmt.Fprintf(f.Writer, "Cleared attendance for lot %s\n", args[0])
				return nil
			})
		},
	}
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or edit check-ins queued on this device",
	}

	var plan string
	list := &cobra.Command{
		Use:           "list",
		Short:         "List queued check-ins in insertion order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				subs, err := d.store.List(ctx, plan)
				if err != nil {
					return f.failCommand("read queue", err)
				}
				if f.Format == "json" {
					return f.Success(subs)
				}
				writeQueue(f.Writer, subs)
				return nil
			})
		},
	}
	list.Flags().StringVar(&plan, "plan", "", "only this plan")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:           "rm <id>",
		Short:         "Remove a queued check-in",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				removed, err := d.session.DeleteQueued(ctx, args[0])
				if err != nil {
					return f.fail("remove queued check-in", err)
				}
				if !removed {
					return f.fail("remove queued check-in", fmt.Errorf("%s: %w", args[0], errNotQueued))
				}
				if f.Format == "json" {
					return f.Success(map[string]string{"removed": args[0]})
				}
				fmt.Fprintf(f.Writer, "Removed %s\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

func writeQueue(w io.Writer, subs []attendance.Submission) {
	if len(subs) == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLAN\tLOT\tNAME\tFLAGS")
	for _, s := range subs {
		var flags []string
		if s.Financial {
			flags = append(flags, "financial")
		}
		if s.IsProxy() {
			flags = append(flags, "proxy")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.PlanID, s.LotID, s.DisplayName(), strings.Join(flags, ","))
	}
	tw.Flush()
}
