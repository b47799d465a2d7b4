package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/remote"
)

// DefaultInterval is how often Run triggers a sync.
const DefaultInterval = 60 * time.Second

// Queue is the local submission queue.
// Implemented by *store.Store.
type Queue interface {
	Pending(ctx context.Context, planID string) iter.Seq2[attendance.Submission, error]
	RemoveConfirmed(ctx context.Context, ids map[string]struct{}) (int, error)
	PendingCount(ctx context.Context, planID string) (int, error)
}

// Remote is the part of remote.API the reconciler uses.
type Remote interface {
	BatchSubmit(ctx context.Context, subs []attendance.Submission) (int, error)
	InitialSnapshot(ctx context.Context, planID string) (attendance.Snapshot, error)
}

// View holds the locally displayed authoritative attendance.
// Implemented by *session.Session.
type View interface {
	// ActivePlan returns the selected plan, or "" if none.
	ActivePlan() string

	// ApplySnapshot replaces the synced view of planID.
	ApplySnapshot(planID string, snap attendance.Snapshot)
}

// HaltStore persists the auth halt so it outlives the process.
// Implemented by *store.Store.
type HaltStore interface {
	SyncHalted(ctx context.Context) (bool, error)
	SetSyncHalted(ctx context.Context, halted bool) error
}

// SkipReason says why Trigger did not run a round trip.
type SkipReason string

const (
	SkipNone    SkipReason = ""
	SkipBusy    SkipReason = "busy"
	SkipOffline SkipReason = "offline"
	SkipEmpty   SkipReason = "empty"
	SkipHalted  SkipReason = "halted"
)

// Result describes one Trigger call.
type Result struct {
	Skipped   SkipReason
	Batched   int      // Submissions sent
	Processed int      // Submissions the server wrote
	Confirmed int      // Queue rows removed by acknowledgment
	CleanedUp int      // Queue rows removed because their lot was already synced
	Refreshed []string // Plans whose snapshot was refreshed, sorted
}

// Reconciler pushes the local queue to the remote store and reconciles
// local state against the authoritative snapshot.
//
// Thread-safety model:
//   - Trigger(): safe from any goroutine; concurrent calls are skipped
//   - Run(): must be called from exactly one goroutine
//   - Kick(), InFlight(), Status(), Resume(): safe from any goroutine
type Reconciler struct {
	queue    Queue
	remote   Remote
	view     View
	online   func(context.Context) bool
	halts    HaltStore
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	inFlight atomic.Bool
	halted   atomic.Bool
	kick     chan struct{}

	mu     sync.Mutex
	status Status
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithConnectivity sets the online check. Defaults to always online.
func WithConnectivity(online func(context.Context) bool) Option {
	return func(r *Reconciler) {
		r.online = online
	}
}

// WithHaltStore persists the auth halt in h. Without it the halt lasts
// only as long as the Reconciler.
func WithHaltStore(h HaltStore) Option {
	return func(r *Reconciler) {
		r.halts = h
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// WithInterval sets the Run tick interval.
//
// Default: 60s (DefaultInterval)
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		r.interval = d
	}
}

// WithClock overrides the wall clock used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// New creates a Reconciler over the local queue, the remote store and the
// session view.
func New(q Queue, rem Remote, view View, opts ...Option) *Reconciler {
	r := &Reconciler{
		queue:    q,
		remote:   rem,
		view:     view,
		online:   func(context.Context) bool { return true },
		logger:   slog.Default(),
		interval: DefaultInterval,
		now:      time.Now,
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InFlight reports whether a round trip is running.
func (r *Reconciler) InFlight() bool {
	return r.inFlight.Load()
}

// Halted reports whether automatic sync stopped after an auth rejection.
// A halt persisted by another process is seen after the next Trigger or Status.
func (r *Reconciler) Halted() bool {
	return r.halted.Load()
}

// Resume clears an auth halt, including a persisted one.
// Call after a successful login.
func (r *Reconciler) Resume(ctx context.Context) error {
	if r.halts != nil {
		if err := r.halts.SetSyncHalted(ctx, false); err != nil {
			return fmt.Errorf("resume sync: %w", err)
		}
	}
	if r.halted.CompareAndSwap(true, false) {
		r.logger.Info("sync resumed")
	}
	return nil
}

// loadHalt adopts a halt persisted by an earlier process.
// A read failure is logged and leaves the in-memory state alone.
func (r *Reconciler) loadHalt(ctx context.Context) {
	if r.halts == nil || r.halted.Load() {
		return
	}
	halted, err := r.halts.SyncHalted(ctx)
	if err != nil {
		r.logger.Warn("read sync halt", "error", err)
		return
	}
	if halted {
		r.halted.Store(true)
	}
}

// halt stops automatic sync after a session rejection and persists it.
func (r *Reconciler) halt(ctx context.Context, cause error) {
	if r.halted.CompareAndSwap(false, true) {
		r.logger.Warn("sync halted: session rejected", "error", cause)
	}
	if r.halts != nil {
		if err := r.halts.SetSyncHalted(ctx, true); err != nil {
			r.logger.Error("persist sync halt", "error", err)
		}
	}
}

// Kick asks Run to sync now. Never blocks; kicks coalesce.
func (r *Reconciler) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Trigger runs one sync round trip unless one is already running, the
// device is offline, the queue is empty, or sync is halted.
//
// The returned error is non-nil only when the batch request itself failed
// or the queue could not be read. Refresh and cleanup failures are logged;
// they never fail a sync whose batch succeeded.
func (r *Reconciler) Trigger(ctx context.Context) (Result, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return Result{Skipped: SkipBusy}, nil
	}
	defer r.inFlight.Store(false)

	r.loadHalt(ctx)
	if r.halted.Load() {
		return r.skip(SkipHalted), nil
	}
	if !r.online(ctx) {
		return r.skip(SkipOffline), nil
	}

	// Step 1: capture batch
	batch, err := r.capture(ctx)
	if err != nil {
		err = &SyncError{Code: ErrCodeQueueRead, Err: err}
		r.record(Result{}, err)
		return Result{}, err
	}
	if len(batch) == 0 {
		return r.skip(SkipEmpty), nil
	}

	res := Result{Batched: len(batch)}
	r.logger.Debug("sync starting", "batched", len(batch))

	// Step 2: send
	processed, sendErr := r.remote.BatchSubmit(ctx, batch)

	if sendErr == nil {
		// Step 3: remove exactly the acknowledged ids from the live queue
		res.Processed = processed
		ids := make(map[string]struct{}, len(batch))
		for _, sub := range batch {
			ids[sub.ID] = struct{}{}
		}
		n, err := r.queue.RemoveConfirmed(ctx, ids)
		if err != nil {
			r.logger.Error("remove confirmed submissions", "error", err)
		}
		res.Confirmed = n
	} else {
		// Step 4: leave the queue untouched
		code := ErrCodeBatchFailed
		if remote.IsAuthRejected(sendErr) {
			code = ErrCodeAuthRejected
			r.halt(ctx, sendErr)
		} else {
			r.logger.Warn("sync failed, will retry", "batched", len(batch), "error", sendErr)
		}
		sendErr = &SyncError{Code: code, Batched: len(batch), Err: sendErr}
	}

	// Step 5: refresh and clean up, whatever the outcome of the batch
	res.Refreshed, res.CleanedUp = r.reconcile(ctx, r.plansToRefresh(batch))

	r.record(res, sendErr)
	if sendErr == nil {
		r.logger.Info("sync complete",
			"batched", res.Batched,
			"processed", res.Processed,
			"confirmed", res.Confirmed,
			"cleaned_up", res.CleanedUp,
		)
	}
	return res, sendErr
}

// Run triggers a sync every interval and on Kick until ctx is cancelled.
//
// ERROR HANDLING: failures are logged and reflected in Status; Run keeps
// ticking. An auth halt makes every tick a no-op until Resume.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("sync loop starting", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sync loop stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
		case <-r.kick:
		}

		res, err := r.Trigger(ctx)
		if err != nil {
			continue
		}
		if res.Skipped != SkipNone && res.Skipped != SkipEmpty {
			r.logger.Debug("sync skipped", "reason", res.Skipped)
		}
	}
}

// capture reads the whole live queue in insertion order.
func (r *Reconciler) capture(ctx context.Context) ([]attendance.Submission, error) {
	var batch []attendance.Submission
	for sub, err := range r.queue.Pending(ctx, "") {
		if err != nil {
			return nil, fmt.Errorf("capture batch: %w", err)
		}
		batch = append(batch, sub)
	}
	return batch, nil
}

// plansToRefresh returns the active plan plus every plan in the batch, sorted.
func (r *Reconciler) plansToRefresh(batch []attendance.Submission) []string {
	set := map[string]struct{}{}
	if r.view != nil {
		if p := r.view.ActivePlan(); p != "" {
			set[p] = struct{}{}
		}
	}
	for _, sub := range batch {
		set[sub.PlanID] = struct{}{}
	}
	plans := make([]string, 0, len(set))
	for p := range set {
		plans = append(plans, p)
	}
	sort.Strings(plans)
	return plans
}

// reconcile refreshes each plan's snapshot and removes queued items whose
// lot already appears in it. A plan whose refresh fails is skipped.
// Returns the refreshed plans and the number of rows cleaned up.
func (r *Reconciler) reconcile(ctx context.Context, plans []string) ([]string, int) {
	var refreshed []string
	cleaned := 0

	for _, planID := range plans {
		snap, err := r.remote.InitialSnapshot(ctx, planID)
		if err != nil {
			if remote.IsAuthRejected(err) {
				r.halt(ctx, err)
			}
			r.logger.Warn("refresh snapshot failed", "plan", planID, "error", err)
			continue
		}
		refreshed = append(refreshed, planID)
		if r.view != nil {
			r.view.ApplySnapshot(planID, snap)
		}

		n, err := r.cleanup(ctx, planID, snap.Lots())
		if err != nil {
			r.logger.Error("cleanup failed", "plan", planID, "error", err)
			continue
		}
		if n > 0 {
			r.logger.Info("removed already-synced submissions", "plan", planID, "count", n)
		}
		cleaned += n
	}
	return refreshed, cleaned
}

// cleanup removes queued submissions for planID whose lot is in synced.
// Reads the live queue after the refresh, never the captured batch.
func (r *Reconciler) cleanup(ctx context.Context, planID string, synced map[string]struct{}) (int, error) {
	if len(synced) == 0 {
		return 0, nil
	}
	stale := map[string]struct{}{}
	for sub, err := range r.queue.Pending(ctx, planID) {
		if err != nil {
			return 0, err
		}
		if _, ok := synced[sub.LotID]; ok {
			stale[sub.ID] = struct{}{}
		}
	}
	return r.queue.RemoveConfirmed(ctx, stale)
}

func (r *Reconciler) skip(reason SkipReason) Result {
	res := Result{Skipped: reason}
	r.mu.Lock()
	r.status.LastSkip = reason
	r.mu.Unlock()
	return res
}
