package nucleo

import "sync/atomic"

// globalIDCounter is the source of unique IDs for all atom definitions.
// Using atomic operations ensures thread-safe ID generation without locks.
var globalIDCounter uint64

// nextID returns the next unique atom ID.
// IDs are monotonically increasing, process-wide, and never reused.
func nextID() uint64 {
	return atomic.AddUint64(&globalIDCounter, 1)
}
