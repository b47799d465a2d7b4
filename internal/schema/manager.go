package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata" // Australia/Sydney must resolve on hosts without zoneinfo

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/sheet"
)

const (
	// TemplateSheet is copied to create a plan sheet on first use.
	TemplateSheet = "Attendance Template"

	// DateLayout is the en-AU short date written at the start of each header.
	DateLayout = "02/01/2006"

	// DefaultZone is the time zone that decides what "today" is.
	DefaultZone = "Australia/Sydney"
)

// ErrNoMeetingToday is returned when a plan has no column block for today
// and the caller gave no meeting type to allocate one.
var ErrNoMeetingToday = errors.New("no meeting today")

// IsNoMeetingToday reports whether err is or wraps ErrNoMeetingToday.
func IsNoMeetingToday(err error) bool {
	return errors.Is(err, ErrNoMeetingToday)
}

// Manager finds and allocates today's column block on plan sheets.
//
// Thread-safety: Manager holds no mutable state. Header read-modify-write
// runs inside one workbook transaction, so two allocations for the same
// plan and day cannot both append a block.
type Manager struct {
	dest   *sheet.Workbook
	source *sheet.Workbook
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLocation sets the zone used to format today's date. Defaults to DefaultZone.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		m.loc = loc
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New creates a manager writing plan sheets to dest and reading roster tabs
// from source.
func New(dest, source *sheet.Workbook, opts ...Option) *Manager {
	m := &Manager{
		dest:   dest,
		source: source,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.loc == nil {
		loc, err := time.LoadLocation(DefaultZone)
		if err != nil {
			loc = time.UTC
		}
		m.loc = loc
	}
	return m
}

// Today returns today's date in DateLayout.
func (m *Manager) Today() string {
	return m.now().In(m.loc).Format(DateLayout)
}

// TodaysColumns returns today's block for planID. A plan with no sheet, or
// a sheet with no block for today, reports false with a nil error.
func (m *Manager) TodaysColumns(ctx context.Context, planID string) (attendance.ColumnSet, bool, error) {
	today := m.Today()
	sh, err := m.dest.Sheet(ctx, planID)
	if errors.Is(err, sheet.ErrSheetNotFound) {
		return attendance.ColumnSet{}, false, nil
	}
	if err != nil {
		return attendance.ColumnSet{}, false, err
	}
	return findColumns(ctx, sh, planID, today)
}

// GetOrCreateTodaysColumns returns today's block for planID, allocating it
// when absent. An existing block is returned unchanged whatever
// meetingType says. With no block and an empty meetingType it returns
// ErrNoMeetingToday.
func (m *Manager) GetOrCreateTodaysColumns(ctx context.Context, planID, meetingType string) (attendance.ColumnSet, error) {
	meetingType = strings.TrimSpace(meetingType)
	today := m.Today()

	var cs attendance.ColumnSet
	var allocated bool
	err := m.dest.InTx(ctx, func(tx *sheet.Workbook) error {
		sh, err := tx.Sheet(ctx, planID)
		switch {
		case errors.Is(err, sheet.ErrSheetNotFound):
			if meetingType == "" {
				return ErrNoMeetingToday
			}
			if sh, err = createPlanSheet(ctx, tx, planID); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		found, ok, err := findColumns(ctx, sh, planID, today)
		if err != nil {
			return err
		}
		if ok {
			cs = found
			return nil
		}
		if meetingType == "" {
			return ErrNoMeetingToday
		}

		last, err := sh.LastColumn(ctx)
		if err != nil {
			return err
		}
		cs = columnSet(planID, today, meetingType, last+1)
		if err := sh.SetRange(ctx, 1, cs.AttendanceCol, [][]string{headers(today, meetingType)}); err != nil {
			return fmt.Errorf("allocate columns for %s: %w", planID, err)
		}
		allocated = true
		return nil
	})
	if err != nil {
		return attendance.ColumnSet{}, err
	}

	if allocated {
		m.logger.Info("allocated meeting columns",
			"plan", planID,
			"date", today,
			"meeting_type", meetingType,
			"attendance_col", cs.AttendanceCol,
		)
		// CRITICAL: runs after the allocation commits. The source workbook
		// may share the destination's single connection.
		m.provision(ctx, planID)
	}
	return cs, nil
}

// ChangeMeetingType relabels today's block for planID. Only the attendance
// and secondary headers are rewritten; indices never move.
func (m *Manager) ChangeMeetingType(ctx context.Context, planID, newType string) (attendance.ColumnSet, error) {
	newType = strings.TrimSpace(newType)
	if newType == "" {
		return attendance.ColumnSet{}, attendance.NewValidationError("meeting_type", "a meeting type is required")
	}
	today := m.Today()

	var cs attendance.ColumnSet
	err := m.dest.InTx(ctx, func(tx *sheet.Workbook) error {
		sh, err := tx.Sheet(ctx, planID)
		if errors.Is(err, sheet.ErrSheetNotFound) {
			return ErrNoMeetingToday
		}
		if err != nil {
			return err
		}
		found, ok, err := findColumns(ctx, sh, planID, today)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoMeetingToday
		}

		h := headers(today, newType)
		if err := sh.Set(ctx, 1, found.AttendanceCol, h[0]); err != nil {
			return err
		}
		if err := sh.Set(ctx, 1, found.SecondaryCol, h[2]); err != nil {
			return err
		}
		found.MeetingType = newType
		cs = found
		return nil
	})
	if err != nil {
		return attendance.ColumnSet{}, err
	}
	return cs, nil
}

// findColumns scans the header row for the first cell starting with today.
func findColumns(ctx context.Context, sh *sheet.Sheet, planID, today string) (attendance.ColumnSet, bool, error) {
	row, err := sh.Row(ctx, 1)
	if err != nil {
		return attendance.ColumnSet{}, false, fmt.Errorf("read headers of %s: %w", planID, err)
	}
	for i, h := range row {
		if strings.HasPrefix(h, today) {
			meetingType := strings.TrimSpace(strings.TrimPrefix(h, today))
			return columnSet(planID, today, meetingType, i+1), true, nil
		}
	}
	return attendance.ColumnSet{}, false, nil
}

func columnSet(planID, today, meetingType string, col int) attendance.ColumnSet {
	return attendance.ColumnSet{
		PlanID:        planID,
		Date:          today,
		MeetingType:   meetingType,
		AttendanceCol: col,
		NameCol:       col + 1,
		SecondaryCol:  col + 2,
	}
}

func headers(today, meetingType string) []string {
	return []string{
		today + " " + meetingType,
		today + " Name",
		today + " " + attendance.SecondaryLabel(meetingType),
	}
}

func createPlanSheet(ctx context.Context, tx *sheet.Workbook, planID string) (*sheet.Sheet, error) {
	sh, err := tx.CopySheet(ctx, TemplateSheet, planID)
	if err != nil {
		return nil, fmt.Errorf("create plan sheet %s: %w", planID, err)
	}
	return sh, nil
}
