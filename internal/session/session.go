package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/engine"
	"github.com/BigJazzz/mosaic/internal/names"
	"github.com/BigJazzz/mosaic/internal/remote"
	"github.com/BigJazzz/mosaic/internal/rostercache"
	"github.com/BigJazzz/mosaic/internal/store"
)

var (
	// ErrNoPlanSelected is returned by operations that need an active plan.
	ErrNoPlanSelected = errors.New("no plan selected")

	// ErrStaleSelection is returned when a fetch finished after the active
	// plan changed. Its result was discarded.
	ErrStaleSelection = errors.New("plan selection changed during fetch")

	// ErrUnsyncedSubmissions is returned by ClearCache when the queue is not
	// empty and force was not given.
	ErrUnsyncedSubmissions = errors.New("unsynced submissions would be lost")
)

// Sync is the reconciler as the session sees it.
// Implemented by *engine.Reconciler.
type Sync interface {
	InFlight() bool
	Kick()
	Resume(ctx context.Context) error
}

// Session is the explicit controller context for one device.
//
// Thread-safety: Session is safe for concurrent use. In-memory state is
// guarded by a mutex that is never held across a network call.
type Session struct {
	store  *store.Store
	cache  *rostercache.Cache
	remote remote.API
	logger *slog.Logger

	mu         sync.Mutex
	sync       Sync
	active     string
	generation uint64
	roster     attendance.Roster
	snapshots  map[string]attendance.Snapshot
}

var _ engine.View = (*Session)(nil)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New creates a session over the local store, the roster cache and the
// remote API.
func New(st *store.Store, cache *rostercache.Cache, api remote.API, opts ...Option) *Session {
	s := &Session{
		store:     st,
		cache:     cache,
		remote:    api,
		logger:    slog.Default(),
		snapshots: map[string]attendance.Snapshot{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachSync connects the reconciler. Until it is attached, queued items
// are never considered in flight.
func (s *Session) AttachSync(sy Sync) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync = sy
}

func (s *Session) syncer() Sync {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync
}

// Restore loads the persisted plan selection without fetching anything.
func (s *Session) Restore(ctx context.Context) error {
	plan, ok, err := s.store.Setting(ctx, store.SettingActivePlan)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if ok {
		s.mu.Lock()
		s.active = plan
		s.mu.Unlock()
	}
	return nil
}

// ActivePlan implements engine.View.
func (s *Session) ActivePlan() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ApplySnapshot implements engine.View.
func (s *Session) ApplySnapshot(planID string, snap attendance.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[planID] = snap
}

// Snapshot returns the last authoritative snapshot applied for planID.
func (s *Session) Snapshot(planID string) (attendance.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[planID]
	return snap, ok
}

// Plans returns the plan list through the cache.
func (s *Session) Plans(ctx context.Context) ([]attendance.Plan, error) {
	return s.cache.Plans(ctx)
}

// SelectPlan makes planID the active plan and loads its roster.
//
// CRITICAL: The selection changes before the fetch starts. If another
// SelectPlan runs while this one is fetching, this call's roster is
// discarded and ErrStaleSelection is returned.
func (s *Session) SelectPlan(ctx context.Context, planID string) (attendance.Roster, error) {
	if planID == "" {
		return nil, attendance.NewValidationError("plan", "a plan id is required")
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.active = planID
	s.roster = nil
	s.mu.Unlock()

	if err := s.store.SetSetting(ctx, store.SettingActivePlan, planID); err != nil {
		return nil, err
	}

	roster, err := s.cache.Roster(ctx, planID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		s.logger.Debug("discarding stale roster", "plan", planID, "active", s.active)
		return nil, ErrStaleSelection
	}
	if err != nil {
		return nil, err
	}
	s.roster = roster
	return roster, nil
}

// Roster returns the active plan's roster, loading it through the cache
// when the session has not fetched it yet.
func (s *Session) Roster(ctx context.Context) (attendance.Roster, error) {
	s.mu.Lock()
	plan, roster, gen := s.active, s.roster, s.generation
	s.mu.Unlock()

	if plan == "" {
		return nil, ErrNoPlanSelected
	}
	if roster != nil {
		return roster, nil
	}

	roster, err := s.cache.Roster(ctx, plan)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, ErrStaleSelection
	}
	s.roster = roster
	return roster, nil
}

// LookupLot resolves a lot of the active plan to selectable names.
// Returns an error wrapping names.ErrLotNotFound for an unknown lot.
func (s *Session) LookupLot(ctx context.Context, lot string) (names.Resolution, error) {
	roster, err := s.Roster(ctx)
	if err != nil {
		return names.Resolution{}, err
	}
	return names.Lookup(roster, lot)
}

// MeetingExists reports whether the active plan has a meeting today.
func (s *Session) MeetingExists(ctx context.Context) (bool, error) {
	plan := s.ActivePlan()
	if plan == "" {
		return false, ErrNoPlanSelected
	}
	return s.remote.HasTodaysColumns(ctx, plan)
}

// SetupMeeting starts today's meeting on the active plan, or joins the one
// already running, and applies the returned snapshot.
func (s *Session) SetupMeeting(ctx context.Context, meetingType string) (attendance.Snapshot, error) {
	plan := s.ActivePlan()
	if plan == "" {
		return attendance.Snapshot{}, ErrNoPlanSelected
	}
	snap, err := s.remote.SetupAndFetch(ctx, plan, meetingType)
	if err != nil {
		return attendance.Snapshot{}, err
	}
	s.ApplySnapshot(plan, snap)
	return snap, nil
}

// ChangeMeetingType relabels today's meeting on the active plan.
func (s *Session) ChangeMeetingType(ctx context.Context, meetingType string) error {
	plan := s.ActivePlan()
	if plan == "" {
		return ErrNoPlanSelected
	}
	if err := s.remote.ChangeMeetingType(ctx, plan, meetingType); err != nil {
		return err
	}
	_, err := s.Refresh(ctx)
	return err
}

// Refresh fetches and applies the active plan's authoritative snapshot.
func (s *Session) Refresh(ctx context.Context) (attendance.Snapshot, error) {
	plan := s.ActivePlan()
	if plan == "" {
		return attendance.Snapshot{}, ErrNoPlanSelected
	}
	snap, err := s.remote.InitialSnapshot(ctx, plan)
	if err != nil {
		return attendance.Snapshot{}, err
	}
	s.ApplySnapshot(plan, snap)
	return snap, nil
}

// Attendees returns the merged attendance view of the active plan: synced
// attendees from the last snapshot plus queued submissions, sorted by lot
// with synced rows first.
func (s *Session) Attendees(ctx context.Context) ([]attendance.Attendee, error) {
	plan := s.ActivePlan()
	if plan == "" {
		return nil, ErrNoPlanSelected
	}

	snap, _ := s.Snapshot(plan)
	out := make([]attendance.Attendee, 0, len(snap.Attendees))
	for _, a := range snap.Attendees {
		a.Status = attendance.StatusSynced
		out = append(out, a)
	}

	queued, err := s.store.List(ctx, plan)
	if err != nil {
		return nil, err
	}
	for _, sub := range queued {
		out = append(out, attendance.Attendee{
			Lot:          sub.LotID,
			Name:         sub.DisplayName(),
			Status:       attendance.StatusQueued,
			SubmissionID: sub.ID,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Lot != out[j].Lot {
			return attendance.LotLess(out[i].Lot, out[j].Lot)
		}
		return out[i].Status == attendance.StatusSynced && out[j].Status != attendance.StatusSynced
	})
	return out, nil
}
