package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/backend"
	"github.com/BigJazzz/mosaic/internal/remote"
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
      - {lot: "2", unit: "102", main_contact: "Ann Lee", full_name: "Ann Lee"}
  - id: SP2
    suburb: Parramatta
    roster:
      - {lot: "7", unit: "1A", main_contact: "Bo Chen", full_name: "Bo Chen"}
users:
  - {username: admin, password: adminpw, role: Admin}
  - {username: desk, password: deskpw, role: User, plans: [SP1]}
`

type fixture struct {
	srv    *Server
	svc    *backend.Service
	tokens *backend.Tokens
	http   *httptest.Server
	logs   *bytes.Buffer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
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
	cols := schema.New(dest, src, schema.WithClock(clock.Now))
	svc := backend.New(dest, src, cols, backend.WithPasswordCost(bcrypt.MinCost))
	seed, err := backend.LoadSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	_, err = svc.Apply(ctx, seed)
	require.NoError(t, err)

	tokens, err := backend.NewTokens("test-secret", time.Hour, nil)
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(logs, nil)))}, opts...)
	srv := New(svc, tokens, opts...)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	return &fixture{srv: srv, svc: svc, tokens: tokens, http: hs, logs: logs}
}

// client returns a remote.Client logged in as username.
func (f *fixture) client(t *testing.T, username, password string) *remote.Client {
	t.Helper()
	c, err := remote.NewClient(f.http.URL+"/api/v1", remote.WithRateLimit(1000, 1000))
	require.NoError(t, err)
	_, err = c.Login(context.Background(), username, password)
	require.NoError(t, err)
	return c
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*http.Response, remote.Envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.http.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env remote.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp, env := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	c, err := remote.NewClient(f.http.URL + "/api/v1")
	require.NoError(t, err)
	resp, err := c.Login(context.Background(), "desk", "deskpw")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, remote.User{Username: "desk", Role: backend.RoleUser, Plans: []string{"SP1"}}, resp.User)
	assert.Equal(t, resp.Token, c.Token())

	_, err = c.Login(context.Background(), "desk", "nope")
	assert.True(t, remote.IsAuthRejected(err))

	r, env := f.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{"username": "desk"})
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	assert.Equal(t, remote.CodeValidation, env.Code)
}

func TestAuth_RejectsMissingAndBadTokens(t *testing.T) {
	f := newFixture(t)

	resp, env := f.do(t, http.MethodGet, "/api/v1/plans", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, remote.CodeAuthRejected, env.Code)
	assert.False(t, env.Success)

	resp, env = f.do(t, http.MethodGet, "/api/v1/plans", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, remote.CodeAuthRejected, env.Code)
}

func TestRoundTrip_MeetingLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.client(t, "admin", "adminpw")

	plans, err := c.GetPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	roster, err := c.GetRoster(ctx, "SP1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, roster.Lots())
	assert.Equal(t, "John Smith", roster["1"].MainContact)

	exists, err := c.HasTodaysColumns(ctx, "SP1")
	require.NoError(t, err)
	assert.False(t, exists)

	snap, err := c.InitialSnapshot(ctx, "SP1")
	require.NoError(t, err)
	assert.Empty(t, snap.MeetingType)

	snap, err = c.SetupAndFetch(ctx, "SP1", "AGM")
	require.NoError(t, err)
	assert.Equal(t, "AGM", snap.MeetingType)
	assert.Equal(t, 2, snap.TotalLots)

	n, err := c.BatchSubmit(ctx, []attendance.Submission{
		{ID: "a", PlanID: "SP1", LotID: "1", Names: []string{"John Smith"}, CreatedAt: meetingDay},
		{ID: "b", PlanID: "SP1", LotID: "99", Names: []string{"Ghost"}, CreatedAt: meetingDay},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err = c.InitialSnapshot(ctx, "SP1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.AttendanceCount)
	assert.Equal(t, []attendance.Attendee{{Lot: "1", Name: "John Smith", Status: attendance.StatusSynced}}, snap.Attendees)

	require.NoError(t, c.ChangeMeetingType(ctx, "SP1", "SCM"))
	snap, err = c.InitialSnapshot(ctx, "SP1")
	require.NoError(t, err)
	assert.Equal(t, "SCM", snap.MeetingType)

	require.NoError(t, c.DeleteAttendance(ctx, "SP1", "1"))
	snap, err = c.InitialSnapshot(ctx, "SP1")
	require.NoError(t, err)
	assert.Zero(t, snap.AttendanceCount)

	err = c.DeleteAttendance(ctx, "SP1", "42")
	assert.True(t, remote.IsNotFound(err))
}

func TestRoundTrip_ColumnsResponse(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "admin", "adminpw")
	_, err := c.SetupAndFetch(context.Background(), "SP1", "AGM")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/api/v1/plans/SP1/columns", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+c.Token())
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer r.Body.Close()

	var body remote.ColumnsResponse
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	require.True(t, body.Exists)
	require.NotNil(t, body.Columns)
	assert.Equal(t, 3, body.Columns.AttendanceCol)
	assert.Equal(t, "14/03/2026", body.Columns.Date)
}

func TestRoundTrip_NoMeetingToday(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "admin", "adminpw")

	err := c.DeleteAttendance(context.Background(), "SP1", "1")
	assert.True(t, remote.IsNoMeetingToday(err))
	assert.True(t, remote.IsNotFound(err))
	assert.False(t, remote.IsAuthRejected(err))
}

func TestRoundTrip_UnknownPlan(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "admin", "adminpw")

	_, err := c.GetRoster(context.Background(), "SP9")
	assert.True(t, remote.IsNotFound(err))
}

func TestPlanAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.client(t, "admin", "adminpw")
	desk := f.client(t, "desk", "deskpw")

	plans, err := desk.GetPlans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []attendance.Plan{{ID: "SP1", Suburb: "Sydney"}}, plans)

	_, err = desk.GetRoster(ctx, "SP2")
	assert.True(t, remote.IsForbidden(err))

	_, err = desk.SetupAndFetch(ctx, "SP1", "AGM")
	require.NoError(t, err)
	_, err = admin.SetupAndFetch(ctx, "SP2", "AGM")
	require.NoError(t, err)

	err = desk.ChangeMeetingType(ctx, "SP1", "SCM")
	assert.True(t, remote.IsForbidden(err), "relabel is admin only")

	n, err := desk.BatchSubmit(ctx, []attendance.Submission{
		{ID: "a", PlanID: "SP1", LotID: "1", Names: []string{"John Smith"}},
		{ID: "b", PlanID: "SP2", LotID: "7", Names: []string{"Bo Chen"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, f.logs.String(), "inaccessible plan")

	snap, err := admin.InitialSnapshot(ctx, "SP2")
	require.NoError(t, err)
	assert.Zero(t, snap.AttendanceCount)
}

func TestUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.client(t, "admin", "adminpw")
	desk := f.client(t, "desk", "deskpw")

	users, err := admin.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = desk.ListUsers(ctx)
	assert.True(t, remote.IsForbidden(err))

	require.NoError(t, admin.CreateUser(ctx, remote.CreateUserRequest{Username: "clerk", Password: "pw", Role: "User"}))

	err = admin.CreateUser(ctx, remote.CreateUserRequest{Username: "clerk", Password: "pw"})
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, remote.CodeConflict, re.Code)
	assert.Equal(t, remote.KindInvalid, re.Kind)

	err = admin.DeleteUser(ctx, "admin")
	require.ErrorAs(t, err, &re)
	assert.Equal(t, remote.CodeValidation, re.Code)

	require.NoError(t, admin.DeleteUser(ctx, "clerk"))
	assert.True(t, remote.IsNotFound(admin.DeleteUser(ctx, "clerk")))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	desk := f.client(t, "desk", "deskpw")

	require.NoError(t, desk.ChangePassword(ctx, "fresh"))

	_, err := desk.Login(ctx, "desk", "deskpw")
	assert.True(t, remote.IsAuthRejected(err))
	_, err = desk.Login(ctx, "desk", "fresh")
	assert.NoError(t, err)
}

func TestRequestLogger(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Contains(t, f.logs.String(), "msg=request")
	assert.Contains(t, f.logs.String(), "path=/healthz")
	assert.Contains(t, f.logs.String(), "status=200")
}

func TestRecoverer(t *testing.T) {
	logs := &bytes.Buffer{}
	h := recoverer(slog.New(slog.NewTextHandler(logs, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), remote.CodeInternal)
	assert.Contains(t, logs.String(), "handler panic")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Close()
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, ok())
	}))

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1:1002"), "same IP, new port")
	assert.Equal(t, http.StatusOK, hit("10.0.0.2:1000"), "other IPs have their own bucket")
}

func TestRateLimiter_ClientSeesTransient(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Close()
	f := newFixture(t, WithRateLimiter(rl))

	c, err := remote.NewClient(f.http.URL + "/api/v1")
	require.NoError(t, err)
	_, err = c.Login(context.Background(), "desk", "deskpw")
	require.NoError(t, err)

	_, err = c.GetPlans(context.Background())
	assert.True(t, remote.IsTransient(err))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
