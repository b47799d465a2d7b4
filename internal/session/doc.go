// Package session holds the client-side state of one signed-in device:
// the selected plan, its roster, the last authoritative attendance
// snapshot per plan, and the session token.
//
// A single Session is passed by reference to the components that need it.
// The sync reconciler reads the selected plan and pushes refreshed snapshots
// through the engine.View interface; the CLI drives every user-level
// operation through Session methods.
//
// Plan switches bump a generation counter. A roster fetch that completes
// after the selection changed is discarded and reported as
// ErrStaleSelection, never applied to the newer plan.
package session
