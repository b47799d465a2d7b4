package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/engine"
	"github.com/BigJazzz/mosaic/internal/names"
	"github.com/BigJazzz/mosaic/internal/rostercache"
	"github.com/BigJazzz/mosaic/internal/store"
	"github.com/BigJazzz/mosaic/internal/testutil"
)

// gatedFetcher blocks roster fetches for one plan until released.
type gatedFetcher struct {
	*testutil.FakeRemote
	plan    string
	started chan struct{}
	release chan struct{}
}

func (g *gatedFetcher) GetRoster(ctx context.Context, planID string) (attendance.Roster, error) {
	if planID == g.plan {
		close(g.started)
		<-g.release
	}
	return g.FakeRemote.GetRoster(ctx, planID)
}

// stubSync records calls from the session.
type stubSync struct {
	inFlight atomic.Bool
	kicks    atomic.Int32
	resumes  atomic.Int32
}

func (s *stubSync) InFlight() bool { return s.inFlight.Load() }
func (s *stubSync) Kick()          { s.kicks.Add(1) }

func (s *stubSync) Resume(context.Context) error {
	s.resumes.Add(1)
	return nil
}

type fixture struct {
	store  *store.Store
	remote *testutil.FakeRemote
	sync   *stubSync
	sess   *Session
}

func newRemote() *testutil.FakeRemote {
	rem := testutil.NewFakeRemote()
	rem.AddPlan(attendance.Plan{ID: "SP1", Suburb: "Bondi"}, attendance.Roster{
		"1": {LotID: "1", UnitNumber: "101", MainContact: "John Smith and Jane Smith"},
		"2": {LotID: "2", UnitNumber: "102", MainContact: "Mr J. Smith", FullNameOnTitle: "John Smith & Mary Smith"},
		"3": {LotID: "3", UnitNumber: "103", MainContact: "ABC Pty Ltd (ref:123)"},
		"4": {LotID: "4", UnitNumber: "104"},
	})
	rem.AddPlan(attendance.Plan{ID: "SP2", Suburb: "Manly"}, attendance.Roster{
		"9": {LotID: "9", MainContact: "Bob Jones"},
	})
	return rem
}

func newFixture(t *testing.T, fetcher rostercache.Fetcher) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rem := newRemote()
	if fetcher == nil {
		fetcher = rem
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := rostercache.New(st, fetcher, rostercache.WithLogger(logger))
	sess := New(st, cache, rem, WithLogger(logger))
	sy := &stubSync{}
	sess.AttachSync(sy)
	return &fixture{store: st, remote: rem, sync: sy, sess: sess}
}

func TestSelectPlan_LoadsRosterAndPersists(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	roster, err := f.sess.SelectPlan(ctx, "SP1")
	require.NoError(t, err)
	assert.Len(t, roster, 4)
	assert.Equal(t, "SP1", f.sess.ActivePlan())

	// A fresh session over the same store restores the selection.
	other := New(f.store, rostercache.New(f.store, f.remote), f.remote)
	require.NoError(t, other.Restore(ctx))
	assert.Equal(t, "SP1", other.ActivePlan())
}

func TestSelectPlan_StaleFetchDiscarded(t *testing.T) {
	rem := newRemote()
	gated := &gatedFetcher{FakeRemote: rem, plan: "SP1", started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, gated)
	ctx := context.Background()

	var wg sync.WaitGroup
	var staleErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, staleErr = f.sess.SelectPlan(ctx, "SP1")
	}()

	<-gated.started
	roster, err := f.sess.SelectPlan(ctx, "SP2")
	require.NoError(t, err)
	close(gated.release)
	wg.Wait()

	assert.ErrorIs(t, staleErr, ErrStaleSelection)
	assert.Equal(t, "SP2", f.sess.ActivePlan())

	current, err := f.sess.Roster(ctx)
	require.NoError(t, err)
	assert.Equal(t, roster, current)
	_, ok := current["9"]
	assert.True(t, ok, "SP2 roster must not be replaced by the late SP1 result")
}

func TestLookupLot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.sess.LookupLot(ctx, "1")
	assert.ErrorIs(t, err, ErrNoPlanSelected)

	_, err = f.sess.SelectPlan(ctx, "SP1")
	require.NoError(t, err)

	res, err := f.sess.LookupLot(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"John Smith", "Mary Smith"}, res.Names)

	res, err = f.sess.LookupLot(ctx, "4")
	require.NoError(t, err)
	assert.Empty(t, res.Names)

	_, err = f.sess.LookupLot(ctx, "77")
	assert.ErrorIs(t, err, names.ErrLotNotFound)
}

func TestSubmit_ValidatesBeforeEnqueue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.sess.Submit(ctx, CheckIn{Lot: "1", Names: []string{"John Smith"}})
	assert.True(t, attendance.IsValidation(err), "no plan selected")

	_, err = f.sess.SelectPlan(ctx, "SP1")
	require.NoError(t, err)

	_, err = f.sess.Submit(ctx, CheckIn{Lot: "1", Proxy: true, ProxyHolderLot: "  "})
	assert.True(t, attendance.IsValidation(err))

	_, err = f.sess.Submit(ctx, CheckIn{Lot: "1"})
	assert.True(t, attendance.IsValidation(err))

	n, err := f.store.PendingCount(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.sync.kicks.Load())
}

func TestSubmit_EnqueuesAndKicks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sess.SelectPlan(ctx, "SP1")
	require.NoError(t, err)

	sub, err := f.sess.Submit(ctx, CheckIn{Lot: " 1 ", Names: []string{"John Smith", ""}, Financial: true})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "1", sub.LotID)
	assert.Equal(t, []string{"John Smith"}, sub.Names)
	assert.Equal(t, int32(1), f.sync.kicks.Load())

	proxy, err := f.sess.Submit(ctx, CheckIn{Lot: "2", Proxy: true, ProxyHolderLot: "1", Names: []string{"ignored"}})
	require.NoError(t, err)
	assert.Empty(t, proxy.Names)
	assert.Equal(t, "Proxy - Lot 1", proxy.DisplayName())
}

func TestSubmit_CompanyLotTakesEntity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sess.SelectPlan(ctx, "SP1")
	require.NoError(t, err)

	sub, err := f.sess.Submit(ctx, CheckIn{Lot: "3", CompanyRep: "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC Pty Ltd"}, sub.Names)
	assert.Equal(t, "ABC Pty Ltd - Jane Doe", sub.DisplayName())
}

func TestDeleteQueued_RejectedWhileInFlight(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sess.SelectPlan(ctx, "SP1")
	require.NoError(t, err)
	sub, err := f.sess.Submit(ctx, CheckIn{Lot: "1", Names: []string{"John Smith"}})
	require.NoError(t, err)

	f.sync.inFlight.Store(true)
	_, err = f.sess.DeleteQueued(ctx, sub.ID)
	assert.ErrorIs(t, err, engine.ErrSyncInFlight)

	f.sync.inFlight.Store(false)
	ok, err := f.sess.DeleteQueued(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttendees_MergesSyncedAndQueued(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sess.SelectPlan(ctx, "SP1")
	require.NoError(t, err)

	f.sess.ApplySnapshot("SP1", attendance.Snapshot{
		AttendanceCount: 1,
		Attendees:       []attendance.Attendee{{Lot: "2", Name: "John Smith"}},
	})
	_, err = f.sess.Submit(ctx, CheckIn{Lot: "2", Names: []string{"Mary Smith"}})
	require.NoError(t, err)
	queued, err := f.sess.Submit(ctx, CheckIn{Lot: "1", Names: []string{"Jane Smith"}})
	require.NoError(t, err)

	got, err := f.sess.Attendees(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, attendance.Attendee{Lot: "1", Name: "Jane Smith", Status: attendance.StatusQueued, SubmissionID: queued.ID}, got[0])
	assert.Equal(t, attendance.StatusSynced, got[1].Status)
	assert.Equal(t, "2", got[1].Lot)
	assert.Equal(t, attendance.StatusQueued, got[2].Status)
}

func TestMeetingFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sess.SelectPlan(ctx, "SP1")
	require.NoError(t, err)

	exists, err := f.sess.MeetingExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	snap, err := f.sess.SetupMeeting(ctx, "AGM")
	require.NoError(t, err)
	assert.Equal(t, "AGM", snap.MeetingType)
	assert.Equal(t, 4, snap.TotalLots)

	require.NoError(t, f.sess.ChangeMeetingType(ctx, "SCM"))
	got, ok := f.sess.Snapshot("SP1")
	require.True(t, ok)
	assert.Equal(t, "SCM", got.MeetingType)
}

func TestDeleteSynced_RefreshesSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sess.SelectPlan(ctx, "SP1")
	require.NoError(t, err)
	f.remote.StartMeeting("SP1", "AGM")
	f.remote.MarkSynced("SP1", "1", "John Smith")

	_, err = f.sess.Refresh(ctx)
	require.NoError(t, err)

	require.NoError(t, f.sess.DeleteSynced(ctx, "1"))
	snap, _ := f.sess.Snapshot("SP1")
	assert.Zero(t, snap.AttendanceCount)
}

func TestClearCache_WarnsOnUnsynced(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.sess.SelectPlan(ctx, "SP1")
	require.NoError(t, err)
	_, err = f.sess.Submit(ctx, CheckIn{Lot: "1", Names: []string{"John Smith"}})
	require.NoError(t, err)

	res, err := f.sess.ClearCache(ctx, false)
	assert.True(t, errors.Is(err, ErrUnsyncedSubmissions))
	assert.Equal(t, 1, res.Unsynced)

	// Nothing was cleared.
	_, err = f.sess.Roster(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.remote.Calls(testutil.ActionGetRoster))

	res, err = f.sess.ClearCache(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.QueueDiscarded)
	assert.Equal(t, 1, res.CacheEntries)

	_, err = f.sess.Roster(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.remote.Calls(testutil.ActionGetRoster))
}

func TestSaveLogin_ResumesSync(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.store.SetSyncHalted(ctx, true))
	require.NoError(t, f.sess.SaveLogin(ctx, "alice", "tok"))
	assert.Equal(t, int32(1), f.sync.resumes.Load())

	halted, err := f.store.SyncHalted(ctx)
	require.NoError(t, err)
	assert.False(t, halted, "login clears a halt persisted by an earlier process")

	tok, err := f.sess.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	user, err := f.sess.User(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	require.NoError(t, f.sess.Logout(ctx))
	tok, err = f.sess.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}
