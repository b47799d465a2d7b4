// Package backend implements the authoritative side of the attendance
// actions over two workbooks.
//
// The source workbook holds reference data: the "Strata Plan List" sheet
// (plan id in column A, suburb in B), one roster tab per plan named after
// the plan id (lot in C, unit in D, full name on title in F, main contact
// in G), and the "Users" sheet. The destination workbook holds one
// attendance sheet per plan, laid out by package schema.
//
// Service satisfies remote.API, so it can stand in for the HTTP client
// when the server and the engine share a process.
package backend
