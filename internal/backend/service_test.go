package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/schema"
)

func TestGetPlans(t *testing.T) {
	f := newFixture(t)

	plans, err := f.svc.GetPlans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []attendance.Plan{
		{ID: "SP1", Suburb: "Sydney"},
		{ID: "SP2", Suburb: "Parramatta"},
	}, plans)
}

func TestGetRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roster, err := f.svc.GetRoster(ctx, "SP1")
	require.NoError(t, err)
	require.Len(t, roster, 3)
	assert.Equal(t, attendance.RosterEntry{
		LotID:           "2",
		UnitNumber:      "102",
		MainContact:     "Mr J. Brown",
		FullNameOnTitle: "Jack Brown & Jill Brown",
	}, roster["2"])

	_, err = f.svc.GetRoster(ctx, "SP9")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestHasTodaysColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.svc.HasTodaysColumns(ctx, "SP1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.SetupAndFetch(ctx, "SP1", "AGM")
	require.NoError(t, err)

	ok, err = f.svc.HasTodaysColumns(ctx, "SP1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.HasTodaysColumns(ctx, "nope")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestInitialSnapshot_NoMeeting(t *testing.T) {
	f := newFixture(t)

	snap, err := f.svc.InitialSnapshot(context.Background(), "SP1")
	require.NoError(t, err)
	assert.Equal(t, attendance.Snapshot{Attendees: []attendance.Attendee{}}, snap)
}

func TestSetupAndFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetupAndFetch(ctx, "SP1", "")
	assert.True(t, attendance.IsValidation(err))

	snap, err := f.svc.SetupAndFetch(ctx, "SP1", "AGM")
	require.NoError(t, err)
	assert.Equal(t, "AGM", snap.MeetingType)
	assert.Equal(t, 3, snap.TotalLots, "provisioning copied the roster lots")
	assert.Zero(t, snap.AttendanceCount)
	assert.Empty(t, snap.Attendees)
}

func TestBatchSubmit_WritesRowsAndSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SetupAndFetch(ctx, "SP1", "AGM")
	require.NoError(t, err)

	n, err := f.svc.BatchSubmit(ctx, []attendance.Submission{
		{ID: "a", PlanID: "SP1", LotID: "1", Names: []string{"John Smith"}, Financial: true},
		{ID: "b", PlanID: "SP1", LotID: "2", ProxyHolderLot: "1"},
		{ID: "c", PlanID: "SP1", LotID: "3", Names: []string{"ABC Pty Ltd"}, CompanyRep: "Jane Doe"},
		{ID: "d", PlanID: "SP1", LotID: "99", Names: []string{"Ghost"}},
		{ID: "e", PlanID: "SP2", LotID: "7", Names: []string{"Ann Lee"}},
		{ID: "f", PlanID: "SP9", LotID: "1", Names: []string{"Nobody"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n, "unknown lot, no-meeting plan and unknown plan are skipped")

	// Lot 1 is on row 2; today's block starts at column 3.
	assert.Equal(t, "Y", f.cell(t, "SP1", 2, 3))
	assert.Equal(t, "John Smith", f.cell(t, "SP1", 2, 4))
	assert.Equal(t, "Y", f.cell(t, "SP1", 2, 5))
	assert.Equal(t, "Proxy - Lot 1", f.cell(t, "SP1", 3, 4))
	assert.Empty(t, f.cell(t, "SP1", 3, 5))
	assert.Equal(t, "ABC Pty Ltd - Jane Doe", f.cell(t, "SP1", 4, 4))

	assert.Contains(t, f.logs.String(), "batch skipped plan with no meeting today")
	assert.Contains(t, f.logs.String(), "batch skipped unknown plan")
}

func TestBatchSubmit_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SetupAndFetch(ctx, "SP1", "AGM")
	require.NoError(t, err)

	sub := attendance.Submission{ID: "a", PlanID: "SP1", LotID: "1", Names: []string{"John Smith"}}
	for range 2 {
		n, err := f.svc.BatchSubmit(ctx, []attendance.Submission{sub})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	snap, err := f.svc.InitialSnapshot(ctx, "SP1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.AttendanceCount)
}

func TestInitialSnapshot_CountsAttendees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SetupAndFetch(ctx, "SP1", "SCM")
	require.NoError(t, err)
	_, err = f.svc.BatchSubmit(ctx, []attendance.Submission{
		{ID: "a", PlanID: "SP1", LotID: "3", Names: []string{"ABC Pty Ltd"}},
		{ID: "b", PlanID: "SP1", LotID: "1", Names: []string{"John Smith"}},
	})
	require.NoError(t, err)

	snap, err := f.svc.InitialSnapshot(ctx, "SP1")
	require.NoError(t, err)
	assert.Equal(t, attendance.Snapshot{
		AttendanceCount: 2,
		TotalLots:       3,
		MeetingType:     "SCM",
		Attendees: []attendance.Attendee{
			{Lot: "1", Name: "John Smith", Status: attendance.StatusSynced},
			{Lot: "3", Name: "ABC Pty Ltd", Status: attendance.StatusSynced},
		},
	}, snap)
}

func TestDeleteAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.DeleteAttendance(ctx, "SP1", "1")
	assert.ErrorIs(t, err, schema.ErrNoMeetingToday)

	_, err = f.svc.SetupAndFetch(ctx, "SP1", "AGM")
	require.NoError(t, err)
	_, err = f.svc.BatchSubmit(ctx, []attendance.Submission{
		{ID: "a", PlanID: "SP1", LotID: "1", Names: []string{"John Smith"}, Financial: true},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAttendance(ctx, "SP1", " 1 "))
	for col := 3; col <= 5; col++ {
		assert.Empty(t, f.cell(t, "SP1", 2, col))
	}
	assert.Equal(t, "1", f.cell(t, "SP1", 2, 1), "lot id survives")

	err = f.svc.DeleteAttendance(ctx, "SP1", "42")
	assert.ErrorIs(t, err, ErrLotNotFound)

	err = f.svc.DeleteAttendance(ctx, "SP1", "")
	assert.True(t, attendance.IsValidation(err))
}

func TestChangeMeetingType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.ChangeMeetingType(ctx, "SP1", "EGM")
	assert.ErrorIs(t, err, schema.ErrNoMeetingToday)

	_, err = f.svc.SetupAndFetch(ctx, "SP1", "AGM")
	require.NoError(t, err)
	require.NoError(t, f.svc.ChangeMeetingType(ctx, "SP1", "SCM"))

	snap, err := f.svc.InitialSnapshot(ctx, "SP1")
	require.NoError(t, err)
	assert.Equal(t, "SCM", snap.MeetingType)
	assert.Equal(t, "14/03/2026 Committee", f.cell(t, "SP1", 1, 5))

	err = f.svc.ChangeMeetingType(ctx, "SP9", "AGM")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}
