package param

import "sync/atomic"

// UID identifies a logical parameter for the lifetime of the process. Graph
// ports refer to parameters by UID, so a UID survives shader reloads that
// reorder the parameter list or temporarily drop the parameter.
//
// UIDs are never persisted literally: project files store them, but loading
// mints fresh UIDs and remaps every reference.
type UID uint32

// InvalidUID is never returned by UIDs.Next.
const InvalidUID UID = 0

// UIDs is a monotonic UID counter. It is shared by everything that mints
// parameter UIDs within one process (or one test), instead of living in a
// package global.
//
// UIDs is safe for concurrent use.
type UIDs struct {
	last atomic.Uint32
}

// NewUIDs returns a counter whose first UID is 1.
func NewUIDs() *UIDs {
	return &UIDs{}
}

// NewUIDsFrom returns a counter whose first UID is start. Tests use it to
// get deterministic sequences.
func NewUIDsFrom(start UID) *UIDs {
	u := &UIDs{}
	if start > 0 {
		u.last.Store(uint32(start) - 1)
	}
	return u
}

// Next mints a new UID.
func (u *UIDs) Next() UID {
	return UID(u.last.Add(1))
}
