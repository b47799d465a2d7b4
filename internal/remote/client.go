package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BigJazzz/mosaic/internal/attendance"
)

// API is the authoritative store as the client sees it.
type API interface {
	GetPlans(ctx context.Context) ([]attendance.Plan, error)
	GetRoster(ctx context.Context, planID string) (attendance.Roster, error)
	HasTodaysColumns(ctx context.Context, planID string) (bool, error)
	SetupAndFetch(ctx context.Context, planID, meetingType string) (attendance.Snapshot, error)
	InitialSnapshot(ctx context.Context, planID string) (attendance.Snapshot, error)
	BatchSubmit(ctx context.Context, subs []attendance.Submission) (int, error)
	DeleteAttendance(ctx context.Context, planID, lot string) error
	ChangeMeetingType(ctx context.Context, planID, newType string) error
}

// Client implements API over HTTP.
//
// Thread-safety: Client is safe for concurrent use. The token may be
// replaced at any time with SetToken.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.RWMutex
	token string
}

var _ API = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default client (30s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests at rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithToken sets the initial bearer token.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a client for the API rooted at endpoint,
// e.g. "http://localhost:8080/api/v1".
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q: scheme must be http or https", endpoint)
	}

	c := &Client{
		base:    base,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken replaces the bearer token sent with each request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Ping checks that the server answers. It needs no token.
func (c *Client) Ping(ctx context.Context) error {
	var resp Envelope
	return c.do(ctx, http.MethodGet, "/healthz", nil, &resp)
}

// Online reports whether Ping succeeds. It suits engine.WithConnectivity.
func (c *Client) Online(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// Login exchanges credentials for a session token and stores it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "/login", LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return LoginResponse{}, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

// GetPlans implements API.
func (c *Client) GetPlans(ctx context.Context) ([]attendance.Plan, error) {
	var resp PlansResponse
	if err := c.do(ctx, http.MethodGet, "/plans", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plans, nil
}

// GetRoster implements API.
func (c *Client) GetRoster(ctx context.Context, planID string) (attendance.Roster, error) {
	var resp RosterResponse
	if err := c.do(ctx, http.MethodGet, planPath(planID, "roster"), nil, &resp); err != nil {
		return nil, err
	}
	return DecodeRoster(resp.Roster), nil
}

// HasTodaysColumns implements API.
func (c *Client) HasTodaysColumns(ctx context.Context, planID string) (bool, error) {
	var resp ColumnsResponse
	if err := c.do(ctx, http.MethodGet, planPath(planID, "columns"), nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// SetupAndFetch implements API.
func (c *Client) SetupAndFetch(ctx context.Context, planID, meetingType string) (attendance.Snapshot, error) {
	var resp SnapshotResponse
	err := c.do(ctx, http.MethodPost, planPath(planID, "meeting"), MeetingRequest{MeetingType: meetingType}, &resp)
	if err != nil {
		return attendance.Snapshot{}, err
	}
	return resp.Snapshot, nil
}

// InitialSnapshot implements API.
func (c *Client) InitialSnapshot(ctx context.Context, planID string) (attendance.Snapshot, error) {
	var resp SnapshotResponse
	if err := c.do(ctx, http.MethodGet, planPath(planID, "snapshot"), nil, &resp); err != nil {
		return attendance.Snapshot{}, err
	}
	return resp.Snapshot, nil
}

// BatchSubmit implements API. Returns the server's processed count.
func (c *Client) BatchSubmit(ctx context.Context, subs []attendance.Submission) (int, error) {
	var resp BatchResponse
	if err := c.do(ctx, http.MethodPost, "/submissions/batch", BatchRequest{Submissions: subs}, &resp); err != nil {
		return 0, err
	}
	return resp.ProcessedCount, nil
}

// DeleteAttendance implements API.
func (c *Client) DeleteAttendance(ctx context.Context, planID, lot string) error {
	var resp Envelope
	return c.do(ctx, http.MethodDelete, planPath(planID, "attendance", lot), nil, &resp)
}

// ChangeMeetingType implements API.
func (c *Client) ChangeMeetingType(ctx context.Context, planID, newType string) error {
	var resp Envelope
	return c.do(ctx, http.MethodPut, planPath(planID, "meeting"), MeetingRequest{MeetingType: newType}, &resp)
}

// ListUsers returns every account. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var resp UsersResponse
	if err := c.do(ctx, http.MethodGet, "/users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// CreateUser adds an account. Admin only.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) error {
	var resp Envelope
	return c.do(ctx, http.MethodPost, "/users", req, &resp)
}

// DeleteUser removes an account. Admin only.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	var resp Envelope
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(username), nil, &resp)
}

// ChangePassword replaces the calling user's password.
func (c *Client) ChangePassword(ctx context.Context, newPassword string) error {
	var resp Envelope
	return c.do(ctx, http.MethodPut, "/users/me/password", PasswordRequest{Password: newPassword}, &resp)
}

func planPath(planID string, parts ...string) string {
	p := "/plans/" + url.PathEscape(planID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// do sends one request and decodes the envelope into out.
// out must embed Envelope.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Kind: KindTransient, Message: "rate limiter", Err: err}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Message: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &Error{Kind: KindTransient, Status: resp.StatusCode, Message: "read response", Err: err}
	}

	var env Envelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return &Error{Kind: KindTransient, Status: resp.StatusCode, Message: "decode response", Err: err}
		}
	}

	if resp.StatusCode >= 300 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		status := resp.StatusCode
		if status < 300 {
			// success:false carried on a 2xx is a server-side refusal.
			return &Error{Kind: KindInvalid, Code: env.Code, Status: status, Message: msg}
		}
		return &Error{Kind: classify(status, env.Code), Code: env.Code, Status: status, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindTransient, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}
