package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/remote"
	"github.com/BigJazzz/mosaic/internal/store"
	"github.com/BigJazzz/mosaic/internal/testutil"
)

// fakeView records applied snapshots.
type fakeView struct {
	mu      sync.Mutex
	active  string
	applied map[string]attendance.Snapshot
}

func newFakeView(active string) *fakeView {
	return &fakeView{active: active, applied: map[string]attendance.Snapshot{}}
}

func (v *fakeView) ActivePlan() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *fakeView) ApplySnapshot(planID string, snap attendance.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.applied[planID] = snap
}

func (v *fakeView) snapshot(planID string) (attendance.Snapshot, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.applied[planID]
	return s, ok
}

type fixture struct {
	store  *store.Store
	remote *testutil.FakeRemote
	view   *fakeView
	rec    *Reconciler
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	rem := testutil.NewFakeRemote()
	roster := attendance.Roster{}
	for i := 1; i <= 8; i++ {
		lot := fmt.Sprint(i)
		roster[lot] = attendance.RosterEntry{LotID: lot, MainContact: "Owner " + lot}
	}
	rem.AddPlan(attendance.Plan{ID: "SP1", Suburb: "Bondi"}, roster)
	rem.AddPlan(attendance.Plan{ID: "SP2", Suburb: "Manly"}, roster)
	rem.StartMeeting("SP1", "AGM")
	rem.StartMeeting("SP2", "SCM")

	view := newFakeView("SP1")
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return &fixture{
		store:  s,
		remote: rem,
		view:   view,
		rec:    New(s, rem, view, opts...),
	}
}

func (f *fixture) enqueue(t *testing.T, id, plan, lot string) {
	t.Helper()
	_, err := f.store.Enqueue(context.Background(), attendance.Submission{
		ID:     id,
		PlanID: plan,
		LotID:  lot,
		Names:  []string{"Owner " + lot},
	})
	require.NoError(t, err)
}

func (f *fixture) queued(t *testing.T) []string {
	t.Helper()
	subs, err := f.store.List(context.Background(), "")
	require.NoError(t, err)
	ids := []string{}
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestTrigger_SuccessRemovesBatch(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "a", "SP1", "1")
	f.enqueue(t, "b", "SP1", "2")

	res, err := f.rec.Trigger(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SkipNone, res.Skipped)
	assert.Equal(t, 2, res.Batched)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Confirmed)
	assert.Equal(t, []string{"SP1"}, res.Refreshed)
	assert.Empty(t, f.queued(t))

	snap, ok := f.view.snapshot("SP1")
	require.True(t, ok)
	assert.Equal(t, 2, snap.AttendanceCount)
	assert.False(t, f.rec.InFlight())
}

func TestTrigger_EmptyQueueIsNoop(t *testing.T) {
	f := newFixture(t)

	res, err := f.rec.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SkipEmpty, res.Skipped)
	assert.Zero(t, f.remote.Calls(testutil.ActionBatchSubmit))
	assert.Zero(t, f.remote.Calls(testutil.ActionInitialSnapshot))
}

func TestTrigger_OfflineIsNoop(t *testing.T) {
	f := newFixture(t, WithConnectivity(func(context.Context) bool { return false }))
	f.enqueue(t, "a", "SP1", "1")

	res, err := f.rec.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SkipOffline, res.Skipped)
	assert.Equal(t, []string{"a"}, f.queued(t))
	assert.Zero(t, f.remote.Calls(testutil.ActionBatchSubmit))
}

func TestTrigger_ConcurrentTriggerIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "a", "SP1", "1")

	var inner Result
	var innerInFlight bool
	f.remote.OnBatch(func([]attendance.Submission) {
		innerInFlight = f.rec.InFlight()
		inner, _ = f.rec.Trigger(context.Background())
	})

	_, err := f.rec.Trigger(context.Background())
	require.NoError(t, err)

	assert.True(t, innerInFlight)
	assert.Equal(t, SkipBusy, inner.Skipped)
	assert.Equal(t, 1, f.remote.Calls(testutil.ActionBatchSubmit))
}

func TestTrigger_TransientFailureKeepsQueue(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "a", "SP1", "1")
	f.enqueue(t, "b", "SP2", "2")
	f.remote.FailNext(testutil.ActionBatchSubmit, &remote.Error{Kind: remote.KindTransient, Message: "offline"})

	res, err := f.rec.Trigger(context.Background())
	require.Error(t, err)
	assert.False(t, IsHalted(err))
	assert.Equal(t, 2, res.Batched)
	assert.Zero(t, res.Confirmed)
	assert.Equal(t, []string{"a", "b"}, f.queued(t))

	// Refresh still runs for the active plan and every batched plan.
	assert.Equal(t, []string{"SP1", "SP2"}, res.Refreshed)

	st, err := f.rec.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, st.Outcome)
	assert.Equal(t, 2, st.Pending)
	assert.False(t, st.Halted)

	// The next tick retries.
	_, err = f.rec.Trigger(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.queued(t))
}

func TestTrigger_AuthRejectionHalts(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "a", "SP1", "1")
	f.remote.FailNext(testutil.ActionBatchSubmit, &remote.Error{
		Kind: remote.KindAuth, Code: remote.CodeAuthRejected, Status: 401, Message: "token expired",
	})

	_, err := f.rec.Trigger(context.Background())
	require.Error(t, err)
	assert.True(t, IsHalted(err))
	assert.True(t, f.rec.Halted())

	res, err := f.rec.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SkipHalted, res.Skipped)
	assert.Equal(t, []string{"a"}, f.queued(t))

	require.NoError(t, f.rec.Resume(context.Background()))
	_, err = f.rec.Trigger(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.queued(t))
}

func TestTrigger_AuthHaltPersistsAcrossReconcilers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := New(f.store, f.remote, f.view, WithLogger(quietLogger()), WithHaltStore(f.store))

	f.enqueue(t, "a", "SP1", "1")
	f.remote.FailNext(testutil.ActionBatchSubmit, &remote.Error{
		Kind: remote.KindAuth, Code: remote.CodeAuthRejected, Status: 401, Message: "token expired",
	})
	_, err := first.Trigger(ctx)
	require.Error(t, err)
	require.True(t, IsHalted(err))

	// A later process over the same store must not resend the batch.
	second := New(f.store, f.remote, f.view, WithLogger(quietLogger()), WithHaltStore(f.store))
	res, err := second.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, SkipHalted, res.Skipped)
	assert.True(t, second.Halted())
	assert.Equal(t, 1, f.remote.Calls(testutil.ActionBatchSubmit))
	assert.Equal(t, []string{"a"}, f.queued(t))

	st, err := New(f.store, f.remote, f.view, WithHaltStore(f.store)).Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Halted)

	require.NoError(t, second.Resume(ctx))
	halted, err := f.store.SyncHalted(ctx)
	require.NoError(t, err)
	assert.False(t, halted)

	third := New(f.store, f.remote, f.view, WithLogger(quietLogger()), WithHaltStore(f.store))
	res, err = third.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, SkipNone, res.Skipped)
	assert.Equal(t, 1, res.Confirmed)
	assert.Empty(t, f.queued(t))
}

func TestTrigger_RefreshAuthRejectionPersistsHalt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := New(f.store, f.remote, f.view, WithLogger(quietLogger()), WithHaltStore(f.store))

	f.enqueue(t, "a", "SP1", "1")
	f.remote.FailNext(testutil.ActionInitialSnapshot, &remote.Error{
		Kind: remote.KindAuth, Code: remote.CodeAuthRejected, Status: 401, Message: "token expired",
	})
	_, err := rec.Trigger(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Halted())

	halted, err := f.store.SyncHalted(ctx)
	require.NoError(t, err)
	assert.True(t, halted)
}

func TestTrigger_ForbiddenDoesNotHalt(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "a", "SP1", "1")
	f.remote.FailNext(testutil.ActionBatchSubmit, &remote.Error{
		Kind: remote.KindForbidden, Code: remote.CodeForbidden, Status: 403, Message: "no access",
	})

	_, err := f.rec.Trigger(context.Background())
	require.Error(t, err)
	assert.False(t, IsHalted(err))
	assert.False(t, f.rec.Halted())
}

func TestTrigger_LostAckCleanedUp(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "a", "SP1", "3")
	f.remote.LoseNextAck()

	res, err := f.rec.Trigger(context.Background())
	require.Error(t, err)
	assert.Zero(t, res.Confirmed)
	assert.Equal(t, 1, res.CleanedUp)
	assert.Empty(t, f.queued(t))
}

func TestTrigger_CleanupWithoutAcknowledgment(t *testing.T) {
	f := newFixture(t)
	f.remote.MarkSynced("SP1", "5", "Owner 5")
	f.enqueue(t, "dup", "SP1", "5")
	f.enqueue(t, "keep", "SP1", "6")
	f.remote.FailNext(testutil.ActionBatchSubmit, &remote.Error{Kind: remote.KindTransient, Message: "timeout"})

	res, err := f.rec.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, res.CleanedUp)
	assert.Equal(t, []string{"keep"}, f.queued(t))
}

func TestTrigger_EnqueuedDuringRoundTripSurvives(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "a", "SP1", "1")
	f.enqueue(t, "b", "SP1", "2")

	f.remote.OnBatch(func([]attendance.Submission) {
		f.enqueue(t, "late", "SP1", "7")
	})

	res, err := f.rec.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Confirmed)
	assert.Equal(t, []string{"late"}, f.queued(t))
}

func TestTrigger_UnknownLotStillAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "a", "SP1", "1")
	f.enqueue(t, "ghost", "SP1", "404")

	res, err := f.rec.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batched)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 2, res.Confirmed)
	assert.Empty(t, f.queued(t))
}

func TestTrigger_RefreshFailureSkipsCleanup(t *testing.T) {
	f := newFixture(t)
	f.remote.MarkSynced("SP2", "2", "Owner 2")
	f.enqueue(t, "a", "SP2", "2")
	f.remote.FailNext(testutil.ActionBatchSubmit, &remote.Error{Kind: remote.KindTransient, Message: "offline"})
	f.remote.FailNext(testutil.ActionInitialSnapshot, &remote.Error{Kind: remote.KindTransient, Message: "offline"})
	f.remote.FailNext(testutil.ActionInitialSnapshot, &remote.Error{Kind: remote.KindTransient, Message: "offline"})

	res, err := f.rec.Trigger(context.Background())
	require.Error(t, err)
	assert.Empty(t, res.Refreshed)
	assert.Equal(t, []string{"a"}, f.queued(t))
}

func TestRun_KickTriggersSync(t *testing.T) {
	f := newFixture(t, WithInterval(time.Hour))
	f.enqueue(t, "a", "SP1", "1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.rec.Run(ctx) }()

	f.rec.Kick()
	require.Eventually(t, func() bool {
		n, err := f.store.PendingCount(context.Background(), "")
		return err == nil && n == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_TicksOnInterval(t *testing.T) {
	f := newFixture(t, WithInterval(20*time.Millisecond))
	f.enqueue(t, "a", "SP1", "1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.rec.Run(ctx)

	require.Eventually(t, func() bool {
		return f.remote.Calls(testutil.ActionBatchSubmit) >= 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStatus_AfterSuccess(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	f := newFixture(t, WithClock(clock.Now))

	st, err := f.rec.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNever, st.Outcome)

	f.enqueue(t, "a", "SP1", "1")
	_, err = f.rec.Trigger(context.Background())
	require.NoError(t, err)

	st, err = f.rec.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, st.Outcome)
	assert.Equal(t, clock.Now(), st.LastSync)
	assert.Empty(t, st.LastError)
	assert.Zero(t, st.Pending)
	assert.Equal(t, 1, st.Last.Confirmed)
}

func TestKick_NeverBlocks(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.rec.Kick()
	}
}
