package nucleo

// atomState is the mutable per-(store, atom) cache entry. Created lazily on
// first read or write and owned exclusively by the store under its lock.
type atomState struct {
	// epoch counts committed value changes. It starts at 0 (never
	// computed), increases strictly, and never decreases. An external set
	// on a primitive atom always bumps it.
	epoch uint64

	// value is the cached computed value when hasValue is set.
	value    any
	hasValue bool

	// err is the cached compute failure, mutually exclusive with value.
	err error

	// deps maps each dependency's atom ID to that dependency's epoch at
	// the time it was read. The snapshot is discarded and rebuilt on every
	// recomputation, which is how conditional dependencies are supported.
	deps map[uint64]uint64

	// depOrder preserves the order dependencies were first read in the
	// last computation, for deterministic mount and traversal order.
	depOrder []uint64
}

// resolved reports whether this entry holds a cached value or error.
func (st *atomState) resolved() bool {
	return st.hasValue || st.err != nil
}
