// Package schema allocates the per-day column block that records one
// meeting on a plan sheet.
//
// A plan sheet in the attendance workbook has the lot id in column A and
// the unit number in column B. Every meeting day appends three columns:
//
//	14/03/2026 AGM | 14/03/2026 Name | 14/03/2026 Financial
//
// The block is found again by scanning the header row for a cell that
// starts with today's date. The header text after the date is the meeting
// type; the third column reads "Committee" for SCM meetings and
// "Financial" otherwise.
//
// State per (plan, day):
//
//	NO_MEETING --allocate(type)--> MEETING_ACTIVE --relabel(type)--> MEETING_ACTIVE
//
// Nothing removes an active block within the same day, and relabeling
// never moves column indices.
//
// The first allocation for a plan also copies lot ids and unit numbers
// from the plan's roster tab in the source workbook (columns C and D) into
// columns A and B. That copy is best effort: a failure is logged at WARN
// and never fails the allocation.
package schema
