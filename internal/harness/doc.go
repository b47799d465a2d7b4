// Package harness runs scripted reconciliation scenarios against the real
// local queue and sync reconciler.
//
// Each scenario gets a fresh in-memory store, a fake remote store seeded with
// the scenario's plans, and a fixed clock. Steps either act on the device
// (submit, sync, go offline) or script the remote (fail the next call, lose
// the next acknowledgment, record a lot as synced by another device). Every
// step appends one event to the trace, so the trace of a scenario is
// byte-for-byte reproducible and can be compared against a golden file.
//
// # Scenario Format
//
//	name: lost_ack
//	description: "The remote writes a batch but the response is lost"
//	active: SP1
//	plans:
//	  - id: SP1
//	    meeting: AGM
//	    lots: ["1", "2", "3"]
//	flow:
//	  - action: submit
//	    plan: SP1
//	    lot: "1"
//	    names: ["John Smith"]
//	  - action: lose_ack
//	  - action: sync
//	    expect:
//	      error: BATCH_FAILED
//	      cleaned_up: 1
//	      queued: 0
//	assertions:
//	  - type: queue_count
//	    count: 0
//	  - type: remote_lots
//	    plan: SP1
//	    lots: ["1"]
//
// # Step Actions
//
//   - submit: enqueue a check-in for plan/lot
//   - sync: run one reconciliation round trip
//   - fail_next: make the next remote call of target fail with error
//   - lose_ack: apply the next batch remotely but fail the response
//   - mark_synced: record plan/lot as synced by another device
//   - remove: delete a queued submission by id
//   - select: change the active plan
//   - offline / online: toggle connectivity
//   - resume: clear an auth halt
//
// # Assertion Types
//
//   - queue_count: number of queued submissions, optionally for one plan
//   - queue_lots: queued lots of a plan, in queue order
//   - remote_lots: synced lots of a plan, in lot order
//   - remote_calls: number of calls the remote received for an action
//   - halted: whether sync is halted after the flow
package harness
