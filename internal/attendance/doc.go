// Package attendance provides the domain types shared by every Mosaic package.
//
// This package contains type definitions and submission validation only.
// All other internal packages import attendance; attendance imports nothing
// internal.
//
// Key design constraints:
//   - Submission.ID is client-generated and stable once assigned
//   - Column indices are 1-based, matching the remote tabular store
//   - All JSON tags use snake_case
package attendance
