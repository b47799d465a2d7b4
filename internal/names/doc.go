// Package names turns freeform roster contact strings into attendee names.
//
// Roster contact fields are typed by hand and mix several owners, honorifics,
// reference annotations and company names in one string:
//
//	"Mr John Smith & Mrs Mary Smith (ref:1042)"
//	"ABC Pty Ltd (ref:77)"
//	"Per J. Citizen, Jane Citizen"
//
// Parse splits such a string into discrete, deduplicated names in first-seen
// order, or returns a company as a single entity. SelectSource chooses which
// of a lot's two contact fields to parse.
package names
