package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/remote"
)

// Action names accepted by FakeRemote.FailNext and FakeRemote.Calls.
const (
	ActionGetPlans          = "getPlans"
	ActionGetRoster         = "getRoster"
	ActionHasTodaysColumns  = "hasTodaysColumns"
	ActionSetupAndFetch     = "setupAndFetch"
	ActionInitialSnapshot   = "getInitialSnapshot"
	ActionBatchSubmit       = "batchSubmit"
	ActionDeleteAttendance  = "deleteAttendance"
	ActionChangeMeetingType = "changeMeetingType"
)

// FakeRemote is an in-memory remote.API for tests.
//
// It applies batches the way the real backend does: best effort per item,
// skipping unknown plans, plans without a meeting today, and unknown lots.
// Failures are scripted per action with FailNext.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
// Hooks run without the mutex held and may call back into the fake.
type FakeRemote struct {
	mu         sync.Mutex
	plans      []attendance.Plan
	rosters    map[string]attendance.Roster
	meetings   map[string]string
	attendance map[string]map[string]attendance.Attendee
	failures   map[string][]error
	lostAcks   int
	calls      map[string]int
	onBatch    func([]attendance.Submission)
}

var _ remote.API = (*FakeRemote)(nil)

// NewFakeRemote creates an empty fake.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		rosters:    map[string]attendance.Roster{},
		meetings:   map[string]string{},
		attendance: map[string]map[string]attendance.Attendee{},
		failures:   map[string][]error{},
		calls:      map[string]int{},
	}
}

// AddPlan registers a plan and its roster.
func (f *FakeRemote) AddPlan(plan attendance.Plan, roster attendance.Roster) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
	f.rosters[plan.ID] = roster
	f.attendance[plan.ID] = map[string]attendance.Attendee{}
}

// StartMeeting sets today's meeting type for a plan.
func (f *FakeRemote) StartMeeting(planID, meetingType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meetings[planID] = meetingType
}

// MarkSynced records an attendee directly, as if another device had synced it.
func (f *FakeRemote) MarkSynced(planID, lot, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attendance[planID] == nil {
		f.attendance[planID] = map[string]attendance.Attendee{}
	}
	f.attendance[planID][lot] = attendance.Attendee{Lot: lot, Name: name, Status: attendance.StatusSynced}
}

// FailNext makes the next call to action return err. Calls queue up.
func (f *FakeRemote) FailNext(action string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[action] = append(f.failures[action], err)
}

// LoseNextAck makes the next BatchSubmit apply its writes and then fail
// with a transient error, as when the response is lost in transit.
func (f *FakeRemote) LoseNextAck() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lostAcks++
}

// OnBatch installs a hook run at the start of every BatchSubmit.
func (f *FakeRemote) OnBatch(hook func([]attendance.Submission)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onBatch = hook
}

// Calls returns how many times action was invoked.
func (f *FakeRemote) Calls(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[action]
}

// Attendees returns the synced attendees of a plan sorted by lot.
func (f *FakeRemote) Attendees(planID string) []attendance.Attendee {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attendeesLocked(planID)
}

// begin counts a call and pops a scripted failure. Caller holds f.mu.
func (f *FakeRemote) begin(action string) error {
	f.calls[action]++
	if errs := f.failures[action]; len(errs) > 0 {
		f.failures[action] = errs[1:]
		return errs[0]
	}
	return nil
}

// GetPlans implements remote.API.
func (f *FakeRemote) GetPlans(context.Context) ([]attendance.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ActionGetPlans); err != nil {
		return nil, err
	}
	return append([]attendance.Plan(nil), f.plans...), nil
}

// GetRoster implements remote.API.
func (f *FakeRemote) GetRoster(_ context.Context, planID string) (attendance.Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ActionGetRoster); err != nil {
		return nil, err
	}
	roster, ok := f.rosters[planID]
	if !ok {
		return nil, &remote.Error{Kind: remote.KindNotFound, Code: remote.CodeNotFound, Status: 404, Message: "plan not found"}
	}
	out := make(attendance.Roster, len(roster))
	for k, v := range roster {
		out[k] = v
	}
	return out, nil
}

// HasTodaysColumns implements remote.API.
func (f *FakeRemote) HasTodaysColumns(_ context.Context, planID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ActionHasTodaysColumns); err != nil {
		return false, err
	}
	_, ok := f.meetings[planID]
	return ok, nil
}

// SetupAndFetch implements remote.API.
func (f *FakeRemote) SetupAndFetch(_ context.Context, planID, meetingType string) (attendance.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ActionSetupAndFetch); err != nil {
		return attendance.Snapshot{}, err
	}
	if _, ok := f.meetings[planID]; !ok {
		f.meetings[planID] = meetingType
	}
	return f.snapshotLocked(planID), nil
}

// InitialSnapshot implements remote.API.
func (f *FakeRemote) InitialSnapshot(_ context.Context, planID string) (attendance.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ActionInitialSnapshot); err != nil {
		return attendance.Snapshot{}, err
	}
	return f.snapshotLocked(planID), nil
}

// BatchSubmit implements remote.API.
func (f *FakeRemote) BatchSubmit(_ context.Context, subs []attendance.Submission) (int, error) {
	f.mu.Lock()
	hook := f.onBatch
	f.mu.Unlock()
	if hook != nil {
		hook(subs)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ActionBatchSubmit); err != nil {
		return 0, err
	}

	processed := 0
	for _, sub := range subs {
		if _, ok := f.meetings[sub.PlanID]; !ok {
			continue
		}
		if _, ok := f.rosters[sub.PlanID][sub.LotID]; !ok {
			continue
		}
		f.attendance[sub.PlanID][sub.LotID] = attendance.Attendee{
			Lot:    sub.LotID,
			Name:   sub.DisplayName(),
			Status: attendance.StatusSynced,
		}
		processed++
	}

	if f.lostAcks > 0 {
		f.lostAcks--
		return 0, &remote.Error{Kind: remote.KindTransient, Message: "connection reset"}
	}
	return processed, nil
}

// DeleteAttendance implements remote.API.
func (f *FakeRemote) DeleteAttendance(_ context.Context, planID, lot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ActionDeleteAttendance); err != nil {
		return err
	}
	if _, ok := f.meetings[planID]; !ok {
		return &remote.Error{Kind: remote.KindNotFound, Code: remote.CodeNoMeetingToday, Status: 404, Message: "no meeting today"}
	}
	delete(f.attendance[planID], lot)
	return nil
}

// ChangeMeetingType implements remote.API.
func (f *FakeRemote) ChangeMeetingType(_ context.Context, planID, newType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ActionChangeMeetingType); err != nil {
		return err
	}
	if _, ok := f.meetings[planID]; !ok {
		return &remote.Error{Kind: remote.KindNotFound, Code: remote.CodeNoMeetingToday, Status: 404, Message: "no meeting today"}
	}
	f.meetings[planID] = newType
	return nil
}

func (f *FakeRemote) snapshotLocked(planID string) attendance.Snapshot {
	attendees := f.attendeesLocked(planID)
	return attendance.Snapshot{
		AttendanceCount: len(attendees),
		TotalLots:       len(f.rosters[planID]),
		Attendees:       attendees,
		MeetingType:     f.meetings[planID],
	}
}

func (f *FakeRemote) attendeesLocked(planID string) []attendance.Attendee {
	out := make([]attendance.Attendee, 0, len(f.attendance[planID]))
	for _, a := range f.attendance[planID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return attendance.LotLess(out[i].Lot, out[j].Lot) })
	return out
}
