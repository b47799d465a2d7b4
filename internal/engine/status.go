package engine

import (
	"context"
	"time"
)

// Outcome is the result of the most recent round trip.
type Outcome string

const (
	OutcomeNever  Outcome = "never"
	OutcomeSynced Outcome = "synced"
	OutcomeFailed Outcome = "failed"
)

// Status is the reconciler state shown to the user.
type Status struct {
	Outcome   Outcome    `json:"outcome"`
	LastError string     `json:"last_error,omitempty"`
	LastSync  time.Time  `json:"last_sync,omitzero"`
	LastSkip  SkipReason `json:"last_skip,omitempty"`
	Last      Result     `json:"last"`
	Pending   int        `json:"pending"`
	InFlight  bool       `json:"in_flight"`
	Halted    bool       `json:"halted"`
}

// Status returns a snapshot of the reconciler state with a fresh pending count.
func (r *Reconciler) Status(ctx context.Context) (Status, error) {
	r.loadHalt(ctx)

	r.mu.Lock()
	st := r.status
	r.mu.Unlock()

	if st.Outcome == "" {
		st.Outcome = OutcomeNever
	}
	st.InFlight = r.InFlight()
	st.Halted = r.Halted()

	n, err := r.queue.PendingCount(ctx, "")
	if err != nil {
		return st, err
	}
	st.Pending = n
	return st, nil
}

// record stores the outcome of a round trip.
func (r *Reconciler) record(res Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Last = res
	r.status.LastSkip = SkipNone
	if err != nil {
		r.status.Outcome = OutcomeFailed
		r.status.LastError = err.Error()
		return
	}
	r.status.Outcome = OutcomeSynced
	r.status.LastError = ""
	r.status.LastSync = r.now()
}
