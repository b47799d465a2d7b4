package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/engine"
	"github.com/BigJazzz/mosaic/internal/names"
)

// CheckIn is one attendee check-in as entered by the user.
type CheckIn struct {
	Lot            string
	Names          []string
	Financial      bool
	Proxy          bool
	ProxyHolderLot string
	CompanyRep     string
}

// Submit validates a check-in for the active plan and enqueues it.
//
// A non-proxy check-in for a company lot with no names selected takes the
// company entity from the roster. Validation failures return an
// *attendance.ValidationError and enqueue nothing. On success the
// reconciler is kicked so the submission syncs as soon as possible.
func (s *Session) Submit(ctx context.Context, in CheckIn) (attendance.Submission, error) {
	plan := s.ActivePlan()
	if plan == "" {
		return attendance.Submission{}, attendance.NewValidationError("plan", "a plan must be selected")
	}

	sub := attendance.Submission{
		PlanID:     plan,
		LotID:      in.Lot,
		Names:      in.Names,
		Financial:  in.Financial,
		CompanyRep: in.CompanyRep,
	}
	if in.Proxy {
		sub.ProxyHolderLot = in.ProxyHolderLot
	}
	sub = sub.Normalize()

	if !in.Proxy && len(sub.Names) == 0 && sub.LotID != "" {
		if res, err := s.LookupLot(ctx, sub.LotID); err == nil && res.Company {
			sub.Names = res.Names
		} else if err != nil && !errors.Is(err, names.ErrLotNotFound) {
			s.logger.Debug("company lookup failed", "lot", sub.LotID, "error", err)
		}
	}

	if err := sub.Validate(in.Proxy); err != nil {
		return attendance.Submission{}, err
	}

	stored, err := s.store.Enqueue(ctx, sub)
	if err != nil {
		return attendance.Submission{}, fmt.Errorf("submit: %w", err)
	}
	s.logger.Info("submission queued", "id", stored.ID, "plan", stored.PlanID, "lot", stored.LotID)

	if sy := s.syncer(); sy != nil {
		sy.Kick()
	}
	return stored, nil
}

// DeleteQueued removes a queued submission by id.
// Returns engine.ErrSyncInFlight while a round trip is running, since the
// item may be part of the batch being sent.
func (s *Session) DeleteQueued(ctx context.Context, id string) (bool, error) {
	if sy := s.syncer(); sy != nil && sy.InFlight() {
		return false, engine.ErrSyncInFlight
	}
	return s.store.DeleteQueued(ctx, id)
}

// DeleteSynced clears a lot's attendance on the remote store and refreshes
// the active plan's snapshot.
func (s *Session) DeleteSynced(ctx context.Context, lot string) error {
	plan := s.ActivePlan()
	if plan == "" {
		return ErrNoPlanSelected
	}
	if err := s.remote.DeleteAttendance(ctx, plan, lot); err != nil {
		return err
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("refresh after delete failed", "plan", plan, "error", err)
	}
	return nil
}

// ClearResult reports what ClearCache removed.
type ClearResult struct {
	Unsynced       int `json:"unsynced"`
	CacheEntries   int `json:"cache_entries"`
	QueueDiscarded int `json:"queue_discarded"`
}

// ClearCache drops every cached roster and the plan list.
//
// When submissions are still queued, ClearCache refuses with
// ErrUnsyncedSubmissions unless force is set; with force the queue is
// cleared too. The returned result always carries the unsynced count.
func (s *Session) ClearCache(ctx context.Context, force bool) (ClearResult, error) {
	var res ClearResult

	pending, err := s.store.PendingCount(ctx, "")
	if err != nil {
		return res, err
	}
	res.Unsynced = pending
	if pending > 0 && !force {
		return res, fmt.Errorf("%d queued: %w", pending, ErrUnsyncedSubmissions)
	}

	if pending > 0 {
		if sy := s.syncer(); sy != nil && sy.InFlight() {
			return res, engine.ErrSyncInFlight
		}
		n, err := s.store.ClearQueue(ctx)
		if err != nil {
			return res, err
		}
		res.QueueDiscarded = n
		s.logger.Warn("discarded unsynced submissions", "count", n)
	}

	n, err := s.cache.InvalidateAll(ctx)
	if err != nil {
		return res, err
	}
	res.CacheEntries = n

	s.mu.Lock()
	s.roster = nil
	s.mu.Unlock()
	return res, nil
}
