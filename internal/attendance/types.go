package attendance

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SubmissionStatus tracks where a submission lives.
type SubmissionStatus string

const (
	// StatusQueued marks a submission recorded locally but not yet confirmed.
	StatusQueued SubmissionStatus = "queued"
	// StatusSynced marks an attendance record confirmed by the remote store.
	StatusSynced SubmissionStatus = "synced"
)

// Submission is one check-in recorded on a device.
type Submission struct {
	ID             string           `json:"id"`
	PlanID         string           `json:"plan_id"`
	LotID          string           `json:"lot_id"`
	Names          []string         `json:"names"`                      // Ordered; empty for proxies
	Financial      bool             `json:"financial"`                  // Committee member for SCM meetings
	ProxyHolderLot string           `json:"proxy_holder_lot,omitempty"` // Set only for proxy votes
	CompanyRep     string           `json:"company_rep,omitempty"`      // Representative of a company owner
	CreatedAt      time.Time        `json:"created_at"`
	Status         SubmissionStatus `json:"status"`
}

// IsProxy reports whether the submission is a proxy vote.
func (s Submission) IsProxy() bool {
	return s.ProxyHolderLot != ""
}

// DisplayName is the text written to the remote name column.
//
//   - proxy:       "Proxy - Lot 12"
//   - company rep: "ABC Pty Ltd - Jane Doe"
//   - otherwise:   names joined by ", "
func (s Submission) DisplayName() string {
	switch {
	case s.IsProxy():
		return "Proxy - Lot " + s.ProxyHolderLot
	case s.CompanyRep != "" && len(s.Names) > 0:
		return s.Names[0] + " - " + s.CompanyRep
	default:
		return strings.Join(s.Names, ", ")
	}
}

// RosterEntry is an immutable snapshot of one lot's contact fields.
type RosterEntry struct {
	LotID           string `json:"lot_id"`
	UnitNumber      string `json:"unit_number"`
	MainContact     string `json:"main_contact"`
	FullNameOnTitle string `json:"full_name_on_title"`
}

// Roster maps lot id to its entry for one plan.
type Roster map[string]RosterEntry

// Lots returns the roster's lot ids in ascending order.
// Numeric lot ids sort numerically; anything else sorts lexically after them.
func (r Roster) Lots() []string {
	lots := make([]string, 0, len(r))
	for lot := range r {
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool { return LotLess(lots[i], lots[j]) })
	return lots
}

// Plan is read-only reference data for a managed entity.
type Plan struct {
	ID     string `json:"id"`
	Suburb string `json:"suburb"`
}

// ColumnSet locates one calendar day's meeting on a plan sheet.
type ColumnSet struct {
	PlanID        string `json:"plan_id"`
	Date          string `json:"date"`
	MeetingType   string `json:"meeting_type"`
	AttendanceCol int    `json:"attendance_col"`
	NameCol       int    `json:"name_col"`
	SecondaryCol  int    `json:"secondary_col"`
}

// Attendee is one row of the attendance view.
type Attendee struct {
	Lot          string           `json:"lot"`
	Name         string           `json:"name"`
	Status       SubmissionStatus `json:"status"`
	SubmissionID string           `json:"submission_id,omitempty"` // Queued rows only
}

// Snapshot is the authoritative attendance state of a plan for today.
type Snapshot struct {
	AttendanceCount int        `json:"attendance_count"`
	TotalLots       int        `json:"total_lots"`
	Attendees       []Attendee `json:"attendees"`
	MeetingType     string     `json:"meeting_type"`
}

// Lots returns the set of lot ids present in the snapshot.
func (s Snapshot) Lots() map[string]struct{} {
	lots := make(map[string]struct{}, len(s.Attendees))
	for _, a := range s.Attendees {
		lots[strings.TrimSpace(a.Lot)] = struct{}{}
	}
	return lots
}

// SecondaryLabel returns the header label of the third column for a meeting type.
// Strata committee meetings record committee membership; everything else
// records financial standing.
func SecondaryLabel(meetingType string) string {
	if strings.EqualFold(strings.TrimSpace(meetingType), "SCM") {
		return "Committee"
	}
	return "Financial"
}

// LotLess orders lot ids numerically when both parse as integers.
// Ids too long for an int sort with the non-numeric ids.
func LotLess(a, b string) bool {
	na, aok := lotNumber(a)
	nb, bok := lotNumber(b)
	switch {
	case aok && bok:
		if na != nb {
			return na < nb
		}
		return a < b
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}

func lotNumber(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CacheEntry wraps a cached read with the time it was fetched.
type CacheEntry struct {
	Key       string          `json:"key"`
	Timestamp time.Time       `json:"timestamp"`
	TTL       time.Duration   `json:"ttl"`
	Payload   json.RawMessage `json:"payload"`
}

// Valid reports whether the entry is younger than its TTL at now.
// An entry exactly TTL old is expired.
func (e CacheEntry) Valid(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.Timestamp) < e.TTL
}
