// Package report turns a day's attendance snapshot into report rows.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/names"
)

const proxyPrefix = "Proxy - Lot"

// Row is one attendee line. A company attendee's name column holds the
// representative and Company holds the entity; everyone else has an empty
// Company.
type Row struct {
	Lot     string `json:"lot"`
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
}

// Report is the attendance of one plan on one day.
type Report struct {
	PlanID      string `json:"plan_id"`
	Date        string `json:"date"`
	MeetingType string `json:"meeting_type"`
	Rows        []Row  `json:"rows"`
}

// Title is the report heading, e.g. "SP 1234 | 14/03/2026 AGM".
func (r Report) Title() string {
	return strings.TrimSpace(fmt.Sprintf("SP %s | %s %s", r.PlanID, r.Date, r.MeetingType))
}

// Build creates a report from synced attendees, sorted by lot.
func Build(planID, date string, snap attendance.Snapshot) Report {
	rows := make([]Row, 0, len(snap.Attendees))
	for _, a := range snap.Attendees {
		rows = append(rows, split(a))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return attendance.LotLess(rows[i].Lot, rows[j].Lot)
	})
	return Report{
		PlanID:      planID,
		Date:        date,
		MeetingType: snap.MeetingType,
		Rows:        rows,
	}
}

// split separates "Company - Representative" names. Proxies are never
// split, even when the proxy text mentions a company.
func split(a attendance.Attendee) Row {
	lot := strings.TrimSpace(a.Lot)
	name := strings.TrimSpace(a.Name)
	if strings.HasPrefix(name, proxyPrefix) || !names.IsCompany(name) {
		return Row{Lot: lot, Name: name}
	}
	company, rep, _ := strings.Cut(name, " - ")
	return Row{Lot: lot, Name: strings.TrimSpace(rep), Company: strings.TrimSpace(company)}
}

// WriteText renders the report as an aligned plain-text table.
func WriteText(w io.Writer, r Report) error {
	var b strings.Builder
	b.WriteString(r.Title())
	b.WriteString("\n\n")

	if len(r.Rows) == 0 {
		b.WriteString("No attendees recorded.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	header := Row{Lot: "Lot", Name: "Owner / Rep", Company: "Company"}
	lotW, nameW := runewidth.StringWidth(header.Lot), runewidth.StringWidth(header.Name)
	for _, row := range r.Rows {
		lotW = max(lotW, runewidth.StringWidth(row.Lot))
		nameW = max(nameW, runewidth.StringWidth(row.Name))
	}

	line := func(row Row) {
		text := runewidth.FillRight(row.Lot, lotW) + "  " + runewidth.FillRight(row.Name, nameW) + "  " + row.Company
		b.WriteString(strings.TrimRight(text, " "))
		b.WriteByte('\n')
	}
	line(header)
	line(Row{
		Lot:     strings.Repeat("-", lotW),
		Name:    strings.Repeat("-", nameW),
		Company: strings.Repeat("-", runewidth.StringWidth(header.Company)),
	})
	for _, row := range r.Rows {
		line(row)
	}
	fmt.Fprintf(&b, "\n%d attending\n", len(r.Rows))

	_, err := io.WriteString(w, b.String())
	return err
}
