// Package rostercache provides the per-plan TTL cache of roster and plan-list
// reads.
//
// A Cache holds one entry per plan (key "roster:<planID>") plus one entry for
// the plan list (key "plans"). Entries are persisted through a Backend, either
// the local SQLite store or Redis. Whatever the backend does about expiry, a
// reader re-checks Timestamp+TTL on every load, so an entry older than its TTL
// is never returned as valid.
//
// The cache does not know which plan is selected. Discarding a fetch that
// completes after the user has switched plans is the session's job.
package rostercache
