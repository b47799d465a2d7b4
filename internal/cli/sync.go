package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BigJazzz/mosaic/internal/engine"
	"github.com/BigJazzz/mosaic/internal/session"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push queued check-ins and reconcile with the server",
		Long: `Send every queued check-in to the server in one batch, then refresh
the attendance of the active plan and of every plan in the batch. Queued
check-ins whose lot is already recorded on the server are dropped.

With --watch, sync repeats every client.sync_interval until interrupted.
A rejected session stops syncing until "mosaic login".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				if watch {
					return runSyncWatch(ctx, d, f)
				}
				return runSyncOnce(ctx, d, f)
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep syncing until interrupted")
	cmd.AddCommand(newSyncStatusCommand(rootOpts))

	return cmd
}

func runSyncOnce(ctx context.Context, d *device, f *OutputFormatter) error {
	res, err := d.trySync(ctx)
	if err != nil {
		return f.fail("sync", err)
	}

	if f.Format == "json" {
		return f.Success(res)
	}
	switch res.Skipped {
	case engine.SkipNone:
		fmt.Fprintf(f.Writer, "Sent %d, written %d, confirmed %d, already synced %d\n",
			res.Batched, res.Processed, res.Confirmed, res.CleanedUp)
	case engine.SkipEmpty:
		fmt.Fprintln(f.Writer, "Nothing to sync")
	default:
		fmt.Fprintf(f.Writer, "Sync skipped: %s\n", res.Skipped)
	}
	return nil
}

func runSyncWatch(ctx context.Context, d *device, f *OutputFormatter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping sync", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(f.GetErrWriter(), "Syncing every %s. Press Ctrl-C to stop.\n", d.cfg.Client.SyncInterval)

	d.sync.Kick()
	err := d.sync.Run(ctx)

	// The loop's context is gone; record with a fresh one.
	st, stErr := d.sync.Status(context.WithoutCancel(ctx))
	if stErr == nil {
		d.recordSync(context.WithoutCancel(ctx), st.LastSync)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return f.fail("sync", err)
	}
	if st.Halted {
		return f.fail("sync", errors.New("session rejected; run mosaic login"))
	}
	if f.Format == "json" {
		return f.Success(st)
	}
	fmt.Fprintf(f.Writer, "Stopped with %d check-in(s) queued\n", st.Pending)
	return nil
}

// SyncStatusView is the output of `mosaic sync status`.
type SyncStatusView struct {
	Endpoint   string    `json:"endpoint"`
	Online     bool      `json:"online"`
	User       string    `json:"user,omitempty"`
	ActivePlan string    `json:"active_plan,omitempty"`
	Pending    int       `json:"pending"`
	LastSync   time.Time `json:"last_sync,omitzero"`
}

func newSyncStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show queued check-ins, the last sync and server reachability",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				st, err := d.sync.Status(ctx)
				if err != nil {
					return f.failCommand("read queue", err)
				}
				user, err := d.session.User(ctx)
				if err != nil {
					return f.failCommand("read session", err)
				}
				last, err := d.lastSync(ctx)
				if err != nil {
					return f.failCommand("read last sync", err)
				}

				view := SyncStatusView{
					Endpoint:   d.cfg.Client.Endpoint,
					Online:     d.api.Online(ctx),
					User:       user,
					ActivePlan: d.session.ActivePlan(),
					Pending:    st.Pending,
					LastSync:   last,
				}
				if f.Format == "json" {
					return f.Success(view)
				}
				writeSyncStatus(f, view)
				return nil
			})
		},
	}
}

func writeSyncStatus(f *OutputFormatter, v SyncStatusView) {
	reach := "unreachable"
	if v.Online {
		reach = "reachable"
	}
	orNone := func(s string) string {
		if s == "" {
			return "(none)"
		}
		return s
	}
	last := "never"
	if !v.LastSync.IsZero() {
		last = humanize.Time(v.LastSync)
	}

	fmt.Fprintf(f.Writer, "Server:    %s (%s)\n", v.Endpoint, reach)
	fmt.Fprintf(f.Writer, "User:      %s\n", orNone(v.User))
	fmt.Fprintf(f.Writer, "Plan:      %s\n", orNone(v.ActivePlan))
	fmt.Fprintf(f.Writer, "Queued:    %s\n", humanize.Comma(int64(v.Pending)))
	fmt.Fprintf(f.Writer, "Last sync: %s\n", last)
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local roster cache",
	}

	var force bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop cached rosters and the plan list",
		Long: `Drop every cached roster and the plan list so the next read fetches
fresh data. Refuses while check-ins are queued; --force discards them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				res, err := d.session.ClearCache(ctx, force)
				if errors.Is(err, session.ErrUnsyncedSubmissions) {
					return f.fail("clear cache", fmt.Errorf("%d check-in(s) not synced; sync first or use --force: %w",
						res.Unsynced, session.ErrUnsyncedSubmissions))
				}
				if err != nil {
					return f.fail("clear cache", err)
				}
				if f.Format == "json" {
					return f.Success(res)
				}
				fmt.Fprintf(f.Writer, "Cleared %d cache entries\n", res.CacheEntries)
				if res.QueueDiscarded > 0 {
					fmt.Fprintf(f.Writer, "Discarded %d unsynced check-in(s)\n", res.QueueDiscarded)
				}
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVar(&force, "force", false, "also discard unsynced check-ins")
	cmd.AddCommand(clearCmd)

	return cmd
}
