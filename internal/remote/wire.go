package remote

import (
	"github.com/BigJazzz/mosaic/internal/attendance"
)

// Envelope is the common part of every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries a signed session token.
type LoginResponse struct {
	Envelope
	Token string `json:"token"`
	User  User   `json:"user"`
}

// User is an account as seen over the wire. Password hashes never leave
// the server.
type User struct {
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Plans    []string `json:"plans,omitempty"` // Empty means every plan
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Role     string   `json:"role"`
	Plans    []string `json:"plans,omitempty"`
}

// PasswordRequest is the body of PUT /users/me/password.
type PasswordRequest struct {
	Password string `json:"password"`
}

// UsersResponse lists accounts.
type UsersResponse struct {
	Envelope
	Users []User `json:"users"`
}

// PlansResponse is the body of GET /plans.
type PlansResponse struct {
	Envelope
	Plans []attendance.Plan `json:"plans"`
}

// RosterResponse is the body of GET /plans/{plan}/roster.
// Each lot maps to [unitNumber, mainContact, fullNameOnTitle].
type RosterResponse struct {
	Envelope
	Roster map[string][3]string `json:"roster"`
}

// ColumnsResponse is the body of GET /plans/{plan}/columns.
type ColumnsResponse struct {
	Envelope
	Exists  bool                  `json:"exists"`
	Columns *attendance.ColumnSet `json:"columns,omitempty"`
}

// MeetingRequest is the body of POST and PUT /plans/{plan}/meeting.
type MeetingRequest struct {
	MeetingType string `json:"meeting_type"`
}

// SnapshotResponse is the body of GET /plans/{plan}/snapshot and
// POST /plans/{plan}/meeting.
type SnapshotResponse struct {
	Envelope
	attendance.Snapshot
}

// BatchRequest is the body of POST /submissions/batch.
type BatchRequest struct {
	Submissions []attendance.Submission `json:"submissions"`
}

// BatchResponse reports how many submissions were written. Skipped
// submissions are not errors.
type BatchResponse struct {
	Envelope
	ProcessedCount int `json:"processed_count"`
}

// EncodeRoster converts a roster to its wire form.
func EncodeRoster(r attendance.Roster) map[string][3]string {
	out := make(map[string][3]string, len(r))
	for lot, e := range r {
		out[lot] = [3]string{e.UnitNumber, e.MainContact, e.FullNameOnTitle}
	}
	return out
}

// DecodeRoster converts the wire form back to a roster.
func DecodeRoster(m map[string][3]string) attendance.Roster {
	out := make(attendance.Roster, len(m))
	for lot, f := range m {
		out[lot] = attendance.RosterEntry{
			LotID:           lot,
			UnitNumber:      f[0],
			MainContact:     f[1],
			FullNameOnTitle: f[2],
		}
	}
	return out
}
