package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/remote"
	"github.com/BigJazzz/mosaic/internal/schema"
	"github.com/BigJazzz/mosaic/internal/sheet"
)

// Workbook names inside the remote database.
const (
	DestWorkbook   = "attendance"
	SourceWorkbook = "source"
)

// Sheet names in the source workbook.
const (
	PlanListSheet = "Strata Plan List"
	UsersSheet    = "Users"
)

// Roster tab columns in the source workbook.
const (
	rosterLotCol         = 3 // C
	rosterUnitCol        = 4 // D
	rosterFullNameCol    = 6 // F
	rosterMainContactCol = 7 // G
)

// Service serves the attendance actions.
//
// Thread-safety: Service holds no mutable state of its own. Writes are
// serialized by the workbooks' database.
type Service struct {
	dest       *sheet.Workbook
	source     *sheet.Workbook
	cols       *schema.Manager
	logger     *slog.Logger
	bcryptCost int
}

var _ remote.API = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithPasswordCost sets the bcrypt cost for new password hashes.
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// New creates a service over the destination and source workbooks.
// cols must be built over the same two workbooks.
func New(dest, source *sheet.Workbook, cols *schema.Manager, opts ...Option) *Service {
	s := &Service{
		dest:       dest,
		source:     source,
		cols:       cols,
		logger:     slog.Default(),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPlans lists the plans in plan-list order.
func (s *Service) GetPlans(ctx context.Context) ([]attendance.Plan, error) {
	sh, err := s.source.Sheet(ctx, PlanListSheet)
	if err != nil {
		return nil, fmt.Errorf("get plans: %w", err)
	}
	last, err := sh.LastRow(ctx)
	if err != nil {
		return nil, fmt.Errorf("get plans: %w", err)
	}
	plans := []attendance.Plan{}
	if last < 2 {
		return plans, nil
	}
	rows, err := sh.Range(ctx, 2, 1, last-1, 2)
	if err != nil {
		return nil, fmt.Errorf("get plans: %w", err)
	}
	for _, row := range rows {
		id := strings.TrimSpace(row[0])
		if id == "" {
			continue
		}
		plans = append(plans, attendance.Plan{ID: id, Suburb: strings.TrimSpace(row[1])})
	}
	return plans, nil
}

// requirePlan returns ErrPlanNotFound unless planID is on the plan list.
func (s *Service) requirePlan(ctx context.Context, planID string) error {
	sh, err := s.source.Sheet(ctx, PlanListSheet)
	if errors.Is(err, sheet.ErrSheetNotFound) {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	if err != nil {
		return err
	}
	row, err := sh.FindInColumn(ctx, 1, 2, strings.TrimSpace(planID))
	if err != nil {
		return err
	}
	if row == 0 {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	return nil
}

// GetRoster reads the plan's roster tab. Rows with a blank lot are skipped.
func (s *Service) GetRoster(ctx context.Context, planID string) (attendance.Roster, error) {
	if err := s.requirePlan(ctx, planID); err != nil {
		return nil, err
	}
	sh, err := s.source.Sheet(ctx, planID)
	if errors.Is(err, sheet.ErrSheetNotFound) {
		return nil, fmt.Errorf("%w: no roster tab for %s", ErrPlanNotFound, planID)
	}
	if err != nil {
		return nil, err
	}
	last, err := sh.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	roster := attendance.Roster{}
	if last < 2 {
		return roster, nil
	}
	rows, err := sh.Range(ctx, 2, rosterLotCol, last-1, rosterMainContactCol-rosterLotCol+1)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", planID, err)
	}
	field := func(row []string, col int) string {
		return strings.TrimSpace(row[col-rosterLotCol])
	}
	for _, row := range rows {
		lot := field(row, rosterLotCol)
		if lot == "" {
			continue
		}
		roster[lot] = attendance.RosterEntry{
			LotID:           lot,
			UnitNumber:      field(row, rosterUnitCol),
			MainContact:     field(row, rosterMainContactCol),
			FullNameOnTitle: field(row, rosterFullNameCol),
		}
	}
	return roster, nil
}

// TodaysColumns reports today's column block for planID.
func (s *Service) TodaysColumns(ctx context.Context, planID string) (attendance.ColumnSet, bool, error) {
	if err := s.requirePlan(ctx, planID); err != nil {
		return attendance.ColumnSet{}, false, err
	}
	return s.cols.TodaysColumns(ctx, planID)
}

// HasTodaysColumns implements remote.API.
func (s *Service) HasTodaysColumns(ctx context.Context, planID string) (bool, error) {
	_, ok, err := s.TodaysColumns(ctx, planID)
	return ok, err
}

// SetupAndFetch allocates today's block if needed and returns the snapshot.
func (s *Service) SetupAndFetch(ctx context.Context, planID, meetingType string) (attendance.Snapshot, error) {
	if strings.TrimSpace(meetingType) == "" {
		return attendance.Snapshot{}, attendance.NewValidationError("meeting_type", "a meeting type is required")
	}
	if err := s.requirePlan(ctx, planID); err != nil {
		return attendance.Snapshot{}, err
	}
	if _, err := s.cols.GetOrCreateTodaysColumns(ctx, planID, meetingType); err != nil {
		return attendance.Snapshot{}, err
	}
	return s.InitialSnapshot(ctx, planID)
}

// InitialSnapshot returns today's attendance for planID. A plan with no
// meeting today yields a zero snapshot with an empty meeting type.
func (s *Service) InitialSnapshot(ctx context.Context, planID string) (attendance.Snapshot, error) {
	snap := attendance.Snapshot{Attendees: []attendance.Attendee{}}

	cs, ok, err := s.TodaysColumns(ctx, planID)
	if err != nil || !ok {
		return snap, err
	}
	snap.MeetingType = cs.MeetingType

	sh, err := s.dest.Sheet(ctx, planID)
	if err != nil {
		return attendance.Snapshot{}, err
	}
	last, err := sh.LastRow(ctx)
	if err != nil {
		return attendance.Snapshot{}, err
	}
	if last < 2 {
		return snap, nil
	}
	rows, err := sh.Range(ctx, 2, 1, last-1, cs.SecondaryCol)
	if err != nil {
		return attendance.Snapshot{}, fmt.Errorf("snapshot %s: %w", planID, err)
	}
	for _, row := range rows {
		lot := strings.TrimSpace(row[0])
		if lot == "" {
			continue
		}
		snap.TotalLots++
		if row[cs.AttendanceCol-1] != "Y" {
			continue
		}
		snap.AttendanceCount++
		snap.Attendees = append(snap.Attendees, attendance.Attendee{
			Lot:    lot,
			Name:   row[cs.NameCol-1],
			Status: attendance.StatusSynced,
		})
	}
	return snap, nil
}

// BatchSubmit writes each submission to its plan's row for today and
// returns how many were written. Submissions for an unknown plan, a plan
// with no meeting today, or a lot with no row are skipped without error.
func (s *Service) BatchSubmit(ctx context.Context, subs []attendance.Submission) (int, error) {
	var order []string
	byPlan := make(map[string][]attendance.Submission)
	for _, sub := range subs {
		plan := strings.TrimSpace(sub.PlanID)
		if _, seen := byPlan[plan]; !seen {
			order = append(order, plan)
		}
		byPlan[plan] = append(byPlan[plan], sub)
	}

	processed := 0
	for _, plan := range order {
		n, err := s.writePlan(ctx, plan, byPlan[plan])
		if err != nil {
			return processed, err
		}
		processed += n
	}
	return processed, nil
}

func (s *Service) writePlan(ctx context.Context, planID string, subs []attendance.Submission) (int, error) {
	cs, ok, err := s.TodaysColumns(ctx, planID)
	if errors.Is(err, ErrPlanNotFound) {
		s.logger.Warn("batch skipped unknown plan", "plan", planID, "submissions", len(subs))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		s.logger.Warn("batch skipped plan with no meeting today", "plan", planID, "submissions", len(subs))
		return 0, nil
	}

	written := 0
	err = s.dest.InTx(ctx, func(tx *sheet.Workbook) error {
		written = 0
		sh, err := tx.Sheet(ctx, planID)
		if err != nil {
			return err
		}
		lots, err := sh.Column(ctx, 1, 2)
		if err != nil {
			return err
		}
		rowOf := make(map[string]int, len(lots))
		for i, lot := range lots {
			if lot = strings.TrimSpace(lot); lot != "" {
				if _, dup := rowOf[lot]; !dup {
					rowOf[lot] = i + 2
				}
			}
		}

		for _, sub := range subs {
			row, ok := rowOf[strings.TrimSpace(sub.LotID)]
			if !ok {
				s.logger.Debug("batch skipped unknown lot", "plan", planID, "lot", sub.LotID, "id", sub.ID)
				continue
			}
			if err := sh.Set(ctx, row, cs.AttendanceCol, "Y"); err != nil {
				return err
			}
			if err := sh.Set(ctx, row, cs.NameCol, sub.DisplayName()); err != nil {
				return err
			}
			if sub.Financial {
				if err := sh.Set(ctx, row, cs.SecondaryCol, "Y"); err != nil {
					return err
				}
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("batch write %s: %w", planID, err)
	}
	return written, nil
}

// DeleteAttendance clears today's three cells on the lot's row.
func (s *Service) DeleteAttendance(ctx context.Context, planID, lot string) error {
	lot = strings.TrimSpace(lot)
	if lot == "" {
		return attendance.NewValidationError("lot", "a lot number is required")
	}
	cs, ok, err := s.TodaysColumns(ctx, planID)
	if err != nil {
		return err
	}
	if !ok {
		return schema.ErrNoMeetingToday
	}

	sh, err := s.dest.Sheet(ctx, planID)
	if err != nil {
		return err
	}
	row, err := sh.FindInColumn(ctx, 1, 2, lot)
	if err != nil {
		return err
	}
	if row == 0 {
		return fmt.Errorf("%w: lot %s on %s", ErrLotNotFound, lot, planID)
	}
	return sh.ClearRange(ctx, row, cs.AttendanceCol, 1, 3)
}

// ChangeMeetingType relabels today's block for planID.
func (s *Service) ChangeMeetingType(ctx context.Context, planID, newType string) error {
	if err := s.requirePlan(ctx, planID); err != nil {
		return err
	}
	_, err := s.cols.ChangeMeetingType(ctx, planID, newType)
	return err
}
