package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/BigJazzz/mosaic/internal/engine"
	"github.com/BigJazzz/mosaic/internal/store"
	"github.com/BigJazzz/mosaic/internal/testutil"
)

// AssertionContext provides the final state for assertion evaluation.
type AssertionContext struct {
	Ctx        context.Context
	Store      *store.Store
	Remote     *testutil.FakeRemote
	Reconciler *engine.Reconciler
}

// AssertionError is returned when an assertion fails.
// It includes the full trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Action)
		if ev.Plan != "" {
			fmt.Fprintf(&buf, " %s/%s", ev.Plan, ev.Lot)
		}
		if ev.Error != "" {
			fmt.Fprintf(&buf, " error=%s", ev.Error)
		}
		fmt.Fprintf(&buf, " queued=%d\n", ev.Queued)
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result.Trace, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d] %s: %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertQueueCount:
		n, err := actx.Store.PendingCount(actx.Ctx, a.Plan)
		if err != nil {
			return err
		}
		if n != a.Count {
			return fail(a.Type, fmt.Sprintf("%d queued", a.Count), fmt.Sprintf("%d queued", n), trace)
		}
	case AssertQueueLots:
		subs, err := actx.Store.List(actx.Ctx, a.Plan)
		if err != nil {
			return err
		}
		lots := make([]string, 0, len(subs))
		for _, s := range subs {
			lots = append(lots, s.LotID)
		}
		if !slices.Equal(lots, a.Lots) {
			return fail(a.Type, fmt.Sprintf("%v", a.Lots), fmt.Sprintf("%v", lots), trace)
		}
	case AssertRemoteLots:
		var lots []string
		for _, att := range actx.Remote.Attendees(a.Plan) {
			lots = append(lots, att.Lot)
		}
		if !slices.Equal(lots, a.Lots) {
			return fail(a.Type, fmt.Sprintf("%v", a.Lots), fmt.Sprintf("%v", lots), trace)
		}
	case AssertRemoteCalls:
		if n := actx.Remote.Calls(a.Action); n != a.Count {
			return fail(a.Type, fmt.Sprintf("%d %s calls", a.Count, a.Action), fmt.Sprintf("%d calls", n), trace)
		}
	case AssertHalted:
		if got := actx.Reconciler.Halted(); got != a.Value {
			return fail(a.Type, fmt.Sprintf("halted=%t", a.Value), fmt.Sprintf("halted=%t", got), trace)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func fail(typ, expected, actual string, trace []TraceEvent) error {
	return &AssertionError{Type: typ, Expected: expected, Actual: actual, Trace: trace}
}
