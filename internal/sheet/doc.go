// Package sheet implements the authoritative tabular store: named
// workbooks holding named sheets of string cells, persisted in SQLite.
//
// Addressing is spreadsheet style. Rows and columns are 1-based; row 1 is
// the header row. A cell that was never written, or was written with the
// empty string, reads as "" and does not count towards LastRow or
// LastColumn.
//
// Several workbooks can share one database. Every operation is scoped by
// workbook name, so the attendance workbook and the roster source
// workbook never see each other's sheets.
package sheet
