package names

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BigJazzz/mosaic/internal/attendance"
)

// ErrLotNotFound is returned when a lot id is absent from the roster.
// It is distinct from a lot that resolves to no names.
var ErrLotNotFound = errors.New("lot not found")

// Resolution is the outcome of resolving one roster entry.
type Resolution struct {
	// Names are the selectable attendees, in first-seen order.
	Names []string `json:"names"`

	// Company is true when Names holds a single company entity.
	Company bool `json:"company"`

	// Source is the contact string that was parsed.
	Source string `json:"source"`
}

// SelectSource chooses which contact field to parse for a lot.
//
// The short main-contact field is preferred. It is passed over in favour of
// the fuller title name when it is empty, carries an honorific, or starts
// with a bare initial ("J. Smith"), since those are abbreviated forms of the
// full name. A disqualified main contact is still used when the title name is
// empty.
func SelectSource(mainContact, fullNameOnTitle string) string {
	main := strings.TrimSpace(mainContact)
	full := strings.TrimSpace(fullNameOnTitle)

	if main == "" {
		return full
	}
	if (hasHonorific(main) || startsWithInitial(main)) && full != "" {
		return full
	}
	return main
}

// Resolve parses the preferred contact field of a roster entry.
func Resolve(entry attendance.RosterEntry) Resolution {
	src := SelectSource(entry.MainContact, entry.FullNameOnTitle)
	return Resolution{
		Names:   Parse(src),
		Company: IsCompany(src),
		Source:  src,
	}
}

// Lookup resolves a lot against a roster.
// Returns an error wrapping ErrLotNotFound when the lot is unknown.
func Lookup(roster attendance.Roster, lot string) (Resolution, error) {
	lot = strings.TrimSpace(lot)
	entry, ok := roster[lot]
	if !ok {
		return Resolution{}, fmt.Errorf("lot %q: %w", lot, ErrLotNotFound)
	}
	return Resolve(entry), nil
}
