package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/engine"
	"github.com/BigJazzz/mosaic/internal/remote"
	"github.com/BigJazzz/mosaic/internal/store"
	"github.com/BigJazzz/mosaic/internal/testutil"
)

// Epoch is the fixed wall clock every scenario starts at.
var Epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// Harness holds the device and remote state of one scenario run.
type Harness struct {
	store  *store.Store
	remote *testutil.FakeRemote
	sync   *engine.Reconciler
	view   *view
	clock  *testutil.FakeClock
	online bool
	nextID int
}

// view is the minimal engine.View a scenario needs.
type view struct {
	active    string
	snapshots map[string]attendance.Snapshot
}

func (v *view) ActivePlan() string { return v.active }

func (v *view) ApplySnapshot(planID string, snap attendance.Snapshot) {
	v.snapshots[planID] = snap
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// A returned error means the scenario could not be executed at all;
// failed expectations and assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", store.WithClock(func() time.Time { return Epoch }))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := newHarness(st, scenario)
	ctx := context.Background()

	result := NewResult()
	for i, step := range scenario.Flow {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Action, err)
		}
		ev.Seq = i + 1
		result.AddEvent(ev)
		for _, msg := range checkExpect(step.Expect, ev) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Action, msg))
		}
	}

	actx := &AssertionContext{
		Ctx:        ctx,
		Store:      st,
		Remote:     h.remote,
		Reconciler: h.sync,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) *Harness {
	fake := testutil.NewFakeRemote()
	for _, p := range scenario.Plans {
		roster := attendance.Roster{}
		for _, lot := range p.Lots {
			roster[lot] = attendance.RosterEntry{LotID: lot, UnitNumber: lot}
		}
		fake.AddPlan(attendance.Plan{ID: p.ID}, roster)
		if p.Meeting != "" {
			fake.StartMeeting(p.ID, p.Meeting)
		}
	}

	h := &Harness{
		store:  st,
		remote: fake,
		view:   &view{active: scenario.Active, snapshots: map[string]attendance.Snapshot{}},
		clock:  testutil.NewFakeClock(Epoch),
		online: true,
	}
	h.sync = engine.New(st, fake, h.view,
		engine.WithConnectivity(func(context.Context) bool { return h.online }),
		engine.WithHaltStore(st),
		engine.WithClock(h.clock.Now),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return h
}

// execute runs one step and returns its trace event without Seq.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{Action: step.Action, Plan: step.Plan, Lot: step.Lot}

	switch step.Action {
	case StepSubmit:
		if err := h.submit(ctx, step, &ev); err != nil {
			return ev, err
		}
	case StepSync:
		if err := h.runSync(ctx, &ev); err != nil {
			return ev, err
		}
	case StepFailNext:
		target := step.Target
		if target == "" {
			target = testutil.ActionBatchSubmit
		}
		h.remote.FailNext(target, failure(step.Error))
		ev.Error = step.Error
	case StepLoseAck:
		h.remote.LoseNextAck()
	case StepMarkSynced:
		name := step.Name
		if name == "" {
			name = "Other Device"
		}
		h.remote.MarkSynced(step.Plan, step.Lot, name)
	case StepRemove:
		ev.ID = step.ID
		removed, err := h.store.DeleteQueued(ctx, step.ID)
		if err != nil {
			return ev, err
		}
		if !removed {
			ev.Error = "NOT_QUEUED"
		}
	case StepSelect:
		h.view.active = step.Plan
	case StepOffline:
		h.online = false
	case StepOnline:
		h.online = true
	case StepResume:
		if err := h.sync.Resume(ctx); err != nil {
			return ev, err
		}
	default:
		return ev, fmt.Errorf("unknown action %q", step.Action)
	}

	queued, err := h.store.PendingCount(ctx, "")
	if err != nil {
		return ev, err
	}
	ev.Queued = queued
	h.clock.Advance(time.Second)
	return ev, nil
}

func (h *Harness) submit(ctx context.Context, step Step, ev *TraceEvent) error {
	sub := attendance.Submission{
		PlanID:         step.Plan,
		LotID:          step.Lot,
		Names:          step.Names,
		Financial:      step.Financial,
		ProxyHolderLot: step.Proxy,
		CompanyRep:     step.Rep,
	}.Normalize()
	if err := sub.Validate(step.Proxy != ""); err != nil {
		ev.Error = "VALIDATION"
		return nil
	}

	h.nextID++
	sub.ID = fmt.Sprintf("sub-%d", h.nextID)
	sub.CreatedAt = h.clock.Now()
	stored, err := h.store.Enqueue(ctx, sub)
	if err != nil {
		return err
	}
	ev.ID = stored.ID
	return nil
}

func (h *Harness) runSync(ctx context.Context, ev *TraceEvent) error {
	res, err := h.sync.Trigger(ctx)
	if err != nil {
		var se *engine.SyncError
		if !errors.As(err, &se) {
			return err
		}
		ev.Error = string(se.Code)
	}
	ev.Skipped = string(res.Skipped)
	ev.Batched = res.Batched
	ev.Processed = res.Processed
	ev.Confirmed = res.Confirmed
	ev.CleanedUp = res.CleanedUp
	ev.Refreshed = res.Refreshed
	return nil
}

// failure builds the remote error for a fail_next kind.
func failure(kind string) error {
	switch kind {
	case FailAuth:
		return &remote.Error{Kind: remote.KindAuth, Code: remote.CodeAuthRejected, Status: 401, Message: "token expired"}
	case FailInvalid:
		return &remote.Error{Kind: remote.KindInvalid, Code: remote.CodeValidation, Status: 400, Message: "scripted rejection"}
	default:
		return &remote.Error{Kind: remote.KindTransient, Message: "connection reset"}
	}
}

// checkExpect compares a step's event against its expect clause.
func checkExpect(exp *Expect, ev TraceEvent) []string {
	if exp == nil {
		return nil
	}
	var errs []string
	str := func(field string, want *string, got string) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Sprintf("%s = %q, want %q", field, got, *want))
		}
	}
	num := func(field string, want *int, got int) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Sprintf("%s = %d, want %d", field, got, *want))
		}
	}
	str("skipped", exp.Skipped, ev.Skipped)
	str("error", exp.Error, ev.Error)
	num("batched", exp.Batched, ev.Batched)
	num("processed", exp.Processed, ev.Processed)
	num("confirmed", exp.Confirmed, ev.Confirmed)
	num("cleaned_up", exp.CleanedUp, ev.CleanedUp)
	num("queued", exp.Queued, ev.Queued)
	return errs
}
