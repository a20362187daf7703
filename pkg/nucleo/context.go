package nucleo

// Reader provides read access to atom values. It is implemented by Store
// (top-level reads), Getter (tracked reads inside compute functions), and
// Setter (untracked reads inside write functions and mount hooks).
// Callers cannot implement it.
type Reader interface {
	readAtom(cfg *atomConfig, track bool) (any, error)
}

// Writer provides write access to atoms. It is implemented by Store
// (top-level sets, which run invalidation and the flush loop before
// returning) and Setter (nested sets inside a write function or mount
// hook, which accumulate into the enclosing pass).
type Writer interface {
	writeAtom(cfg *atomConfig, args any) error
}

// Getter is the dependency-tracking read context passed to compute
// functions. Every Get made through it records an edge from the computing
// atom to the atom read, together with the dependency's current epoch.
//
// A Getter is only valid for the duration of the compute call it was
// passed to; it must not be retained.
type Getter struct {
	store *Store

	// deps and depOrder collect the edges discovered during this
	// computation. nil deps means reads are not tracked.
	deps     map[uint64]uint64
	depOrder []uint64
}

// readAtom implements Reader. The dependency's value is resolved through
// the store's read algorithm (recursively, so transitive recomputation
// happens leaves-first), then recorded with its post-resolution epoch.
// A dependency that resolved to an error short-circuits the caller's
// compute with the same error. The edge is recorded before the
// short-circuit: a dependent of a failing atom must stay reachable from
// it, so fixing the failure's inputs invalidates the dependent too.
func (g *Getter) readAtom(cfg *atomConfig, track bool) (any, error) {
	st, err := g.store.resolve(cfg)
	if track && g.deps != nil {
		if _, seen := g.deps[cfg.id]; !seen {
			g.depOrder = append(g.depOrder, cfg.id)
		}
		var epoch uint64
		if st != nil {
			epoch = st.epoch
		} else if cur := g.store.states[cfg.id]; cur != nil {
			// The error path returns no state; the cached entry carries
			// the epoch the failure committed at.
			epoch = cur.epoch
		}
		g.deps[cfg.id] = epoch
	}
	if err != nil {
		return nil, err
	}
	return st.value, nil
}

// Setter is the write context passed to custom write functions and mount
// hooks. Its reads see current store state without creating dependencies,
// and its nested sets accumulate into the pending-changed set of the
// enclosing top-level operation. There is no rollback: nested sets already
// issued stay committed even if the write function later fails.
//
// A Setter is only valid for the duration of the call it was passed to.
type Setter struct {
	store *Store
}

// readAtom implements Reader; reads through a Setter are never tracked.
func (s *Setter) readAtom(cfg *atomConfig, _ bool) (any, error) {
	st, err := s.store.resolve(cfg)
	if err != nil {
		return nil, err
	}
	return st.value, nil
}

// writeAtom implements Writer for nested sets.
func (s *Setter) writeAtom(cfg *atomConfig, args any) error {
	return s.store.writeLocked(cfg, args)
}
