package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigJazzz/mosaic/internal/attendance"
)

func TestEnqueue_AssignsIDAndTimestamp(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(NewFixedGenerator("sub-1")))
	ctx := context.Background()

	got, err := s.Enqueue(ctx, createTestSubmission("", "SP1", "7", "Jane Smith"))
	require.NoError(t, err)

	assert.Equal(t, "sub-1", got.ID)
	assert.Equal(t, testEpoch, got.CreatedAt)
	assert.Equal(t, attendance.StatusQueued, got.Status)

	stored, ok, err := s.Get(ctx, "sub-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"Jane Smith"}, stored.Names)
	assert.True(t, stored.CreatedAt.Equal(testEpoch))
}

func TestEnqueue_PreservesAllFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sub := attendance.Submission{
		ID:         "sub-1",
		PlanID:     "SP1",
		LotID:      "12",
		Names:      []string{"Acme Pty Ltd"},
		Financial:  true,
		CompanyRep: "Bob Jones",
	}
	_, err := s.Enqueue(ctx, sub)
	require.NoError(t, err)

	proxy := attendance.Submission{ID: "sub-2", PlanID: "SP1", LotID: "13", ProxyHolderLot: "4"}
	_, err = s.Enqueue(ctx, proxy)
	require.NoError(t, err)

	got, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, got[0].Financial)
	assert.Equal(t, "Bob Jones", got[0].CompanyRep)
	assert.Equal(t, []string{"Acme Pty Ltd"}, got[0].Names)
	assert.Equal(t, "4", got[1].ProxyHolderLot)
	assert.Empty(t, got[1].Names)
	assert.NotNil(t, got[1].Names)
}

func TestEnqueue_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, createTestSubmission("sub-1", "SP1", "1", "First"))
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, createTestSubmission("sub-2", "SP1", "2", "Second"))
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, createTestSubmission("sub-1", "SP1", "1", "Changed"))
	require.NoError(t, err)

	got, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-1", "sub-2"}, ids(got))
	assert.Equal(t, []string{"First"}, got[0].Names, "duplicate enqueue must not overwrite")
}

func TestEnqueue_DuplicateReturnsStoredRow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.Enqueue(ctx, createTestSubmission("sub-1", "SP1", "1", "First"))
	require.NoError(t, err)

	dup := createTestSubmission("sub-1", "SP2", "9", "Changed")
	got, err := s.Enqueue(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, "SP1", got.PlanID)
	assert.Equal(t, "1", got.LotID)
	assert.Equal(t, []string{"First"}, got.Names)
	assert.Equal(t, first.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
	assert.Equal(t, attendance.StatusQueued, got.Status)
}

func TestRemoveConfirmed_KeepsUnconfirmed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Enqueue(ctx, createTestSubmission(id, "SP1", id, "Name "+id))
		require.NoError(t, err)
	}

	snapshot, err := s.List(ctx, "")
	require.NoError(t, err)

	// Enqueued while the snapshot was being uploaded.
	_, err = s.Enqueue(ctx, createTestSubmission("d", "SP1", "d", "Late"))
	require.NoError(t, err)

	confirmed := map[string]struct{}{}
	for _, sub := range snapshot {
		if sub.ID != "b" {
			confirmed[sub.ID] = struct{}{}
		}
	}

	n, err := s.RemoveConfirmed(ctx, confirmed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, ids(remaining))
}

func TestRemoveConfirmed_UnknownIDsIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, createTestSubmission("a", "SP1", "1", "A"))
	require.NoError(t, err)

	n, err := s.RemoveConfirmed(ctx, map[string]struct{}{"zzz": {}})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.RemoveConfirmed(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := s.PendingCount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteQueued(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, createTestSubmission("a", "SP1", "1", "A"))
	require.NoError(t, err)

	ok, err := s.DeleteQueued(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteQueued(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearQueue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := s.Enqueue(ctx, createTestSubmission(id, "SP1", id, id))
		require.NoError(t, err)
	}

	n, err := s.ClearQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := s.PendingCount(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, count)
}
