package backend

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BigJazzz/mosaic/internal/schema"
	"github.com/BigJazzz/mosaic/internal/sheet"
	"github.com/BigJazzz/mosaic/internal/testutil"
)

// 2026-03-14 in Sydney.
var meetingDay = time.Date(2026, 3, 13, 23, 0, 0, 0, time.UTC)

const seedYAML = `
plans:
  - id: SP1
    suburb: Sydney
    roster:
      - {lot: "1", unit: "101", main_contact: "John Smith", full_name: "John Smith"}
      - {lot: "2", unit: "102", main_contact: "Mr J. Brown", full_name: "Jack Brown & Jill Brown"}
      - {lot: "3", unit: "103", main_contact: "ABC Pty Ltd", full_name: "ABC Pty Ltd (ref:44)"}
  - id: SP2
    suburb: Parramatta
    roster:
      - {lot: "7", unit: "1A", main_contact: "Ann Lee", full_name: "Ann Lee"}
users:
  - {username: admin, password: adminpw, role: Admin}
  - {username: desk, password: deskpw, role: User, plans: [SP1]}
`

type fixture struct {
	svc   *Service
	dest  *sheet.Workbook
	src   *sheet.Workbook
	clock *testutil.FakeClock
	logs  *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	dest, err := sheet.Open(ctx, db, "attendance")
	require.NoError(t, err)
	src, err := sheet.Open(ctx, db, "source")
	require.NoError(t, err)

	clock := testutil.NewFakeClock(meetingDay)
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cols := schema.New(dest, src, schema.WithClock(clock.Now), schema.WithLogger(logger))
	svc := New(dest, src, cols, WithLogger(logger), WithPasswordCost(bcrypt.MinCost))

	seed, err := LoadSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	_, err = svc.Apply(ctx, seed)
	require.NoError(t, err)

	return &fixture{svc: svc, dest: dest, src: src, clock: clock, logs: logs}
}

func (f *fixture) cell(t *testing.T, plan string, row, col int) string {
	t.Helper()
	sh, err := f.dest.Sheet(context.Background(), plan)
	require.NoError(t, err)
	v, err := sh.Get(context.Background(), row, col)
	require.NoError(t, err)
	return v
}
