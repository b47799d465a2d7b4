package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BigJazzz/mosaic/internal/attendance"
)

// PlanView is one plan in `mosaic plans` output.
type PlanView struct {
	attendance.Plan
	Active bool `json:"active"`
}

// NewPlansCommand creates the plans command.
func NewPlansCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "plans",
		Short:         "List the plans you can check in to",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				plans, err := d.session.Plans(ctx)
				if err != nil {
					return f.fail("list plans", err)
				}
				active := d.session.ActivePlan()
				views := make([]PlanView, 0, len(plans))
				for _, p := range plans {
					views = append(views, PlanView{Plan: p, Active: p.ID == active})
				}
				if f.Format == "json" {
					return f.Success(views)
				}
				writePlans(f.Writer, views)
				return nil
			})
		},
	}
}

func writePlans(w io.Writer, plans []PlanView) {
	if len(plans) == 0 {
		fmt.Fprintln(w, "No plans available.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range plans {
		mark := " "
		if p.Active {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s %s\t%s\n", mark, p.ID, p.Suburb)
	}
	tw.Flush()
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <plan>",
		Short: "Make a plan the active plan and load its roster",
		Long: `Make a plan the active plan. Its roster is loaded through the local
cache, so a plan selected once can be checked in to while offline.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				roster, err := d.session.SelectPlan(ctx, args[0])
				if err != nil {
					return f.fail("select plan", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]any{"plan": args[0], "lots": len(roster)})
				}
				fmt.Fprintf(f.Writer, "Selected %s (%d lots)\n", args[0], len(roster))
				return nil
			})
		},
	}
}

// MeetingStatus is the output of the meeting commands.
type MeetingStatus struct {
	Plan            string `json:"plan"`
	Date            string `json:"date"`
	Exists          bool   `json:"exists"`
	MeetingType     string `json:"meeting_type,omitempty"`
	AttendanceCount int    `json:"attendance_count"`
	TotalLots       int    `json:"total_lots"`
}

func meetingStatus(d *device, snap attendance.Snapshot) MeetingStatus {
	return MeetingStatus{
		Plan:            d.session.ActivePlan(),
		Date:            d.today(),
		Exists:          snap.MeetingType != "",
		MeetingType:     snap.MeetingType,
		AttendanceCount: snap.AttendanceCount,
		TotalLots:       snap.TotalLots,
	}
}

func writeMeeting(f *OutputFormatter, st MeetingStatus) error {
	if f.Format == "json" {
		return f.Success(st)
	}
	if !st.Exists {
		fmt.Fprintf(f.Writer, "No meeting today (%s) for %s\n", st.Date, st.Plan)
		return nil
	}
	fmt.Fprintf(f.Writer, "%s %s %s: %d/%d lots attending\n",
		st.Plan, st.Date, st.MeetingType, st.AttendanceCount, st.TotalLots)
	return nil
}

// NewMeetingCommand creates the meeting command group.
func NewMeetingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meeting",
		Short: "Start, inspect or relabel today's meeting on the active plan",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "setup <type>",
		Short: "Start today's meeting, or join the one already running",
		Long: `Start today's meeting on the active plan. If a meeting was already
started today, it is joined and its type is left unchanged.

Example:
  mosaic meeting setup AGM`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				snap, err := d.session.SetupMeeting(ctx, args[0])
				if err != nil {
					return f.fail("setup meeting", err)
				}
				return writeMeeting(f, meetingStatus(d, snap))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "status",
		Short:         "Show today's meeting on the active plan",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				snap, err := d.session.Refresh(ctx)
				if err != nil {
					return f.fail("meeting status", err)
				}
				return writeMeeting(f, meetingStatus(d, snap))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "type <type>",
		Short:         "Relabel today's meeting (admin)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				if err := d.session.ChangeMeetingType(ctx, args[0]); err != nil {
					return f.fail("change meeting type", err)
				}
				snap, _ := d.session.Snapshot(d.session.ActivePlan())
				return writeMeeting(f, meetingStatus(d, snap))
			})
		},
	})

	return cmd
}
