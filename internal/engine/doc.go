// Package engine implements the sync reconciler that drains the local
// submission queue into the remote store.
//
// ARCHITECTURE:
//
// Single In-Flight Round Trip:
// At most one sync runs at a time. Trigger claims an atomic in-flight flag
// with CompareAndSwap; a second Trigger while one is running returns
// immediately with SkipBusy. Nothing is queued behind it; the next tick
// retries.
//
// Sync Protocol:
// 1. Capture batch B from the live queue (insertion order)
// 2. Send B in one batch request
// 3. On success, remove exactly the ids of B from the live queue
// 4. On failure, leave the queue untouched
// 5. Either way, refresh authoritative attendance for the active plan and
// every plan in B, then remove queued items whose lot is already synced
//
// CRITICAL PATTERNS:
//
// Fresh-Read Removal:
// Removal always diffs against the queue as it is after the network call.
// Items enqueued during the round trip are never in B and always survive.
//
// Auth Halt:
// Only a definitive session rejection (remote.IsAuthRejected) halts
// automatic sync. Network errors, server errors and permission errors are
// retried by the next tick. With WithHaltStore the halt is persisted, so a
// new process does not resend a batch with a rejected token. Resume clears
// the halt after a fresh login.
package engine
