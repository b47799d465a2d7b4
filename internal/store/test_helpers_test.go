package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/BigJazzz/mosaic/internal/attendance"
)

var testEpoch = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithClock(func() time.Time { return testEpoch })}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSubmission creates a submission with minimal required fields.
func createTestSubmission(id, planID, lotID string, names ...string) attendance.Submission {
	return attendance.Submission{
		ID:     id,
		PlanID: planID,
		LotID:  lotID,
		Names:  names,
	}
}

func ids(subs []attendance.Submission) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}
