package nucleo

import (
	"sort"
	"sync"
)

// Unsubscribe removes the listener it was returned for. Calling it more
// than once is safe.
type Unsubscribe func()

// mountedState exists only while an atom is live: it has at least one
// direct listener, or it is a dependency of some mounted atom.
type mountedState struct {
	// seq orders mounts; flush notifies changed atoms in this order.
	seq uint64

	// listeners fire in subscription order.
	listeners []listenerEntry

	// cleanup is the handle returned by the atom's first-mount hook.
	cleanup Cleanup

	// deps and dependents restrict the dependency graph to the mounted
	// subset, for unmount propagation and eager recomputation.
	deps       map[uint64]struct{}
	dependents map[uint64]struct{}
}

type listenerEntry struct {
	id uint64
	fn func()
}

// Subscribe registers a listener that fires whenever the atom's value
// changes. Subscribing mounts the atom and, transitively, its current
// dependencies, so they are kept up to date eagerly from then on. The
// returned Unsubscribe removes the listener and unmounts whatever is no
// longer observed.
func (s *Store) Subscribe(a AnyAtom, listener func()) Unsubscribe {
	cfg := a.config()
	var entryID uint64
	err := s.instrument(OpSubscribe, cfg, func() error {
		nested := s.lockStore()
		defer s.unlockStore()
		m := s.mountAtom(cfg)
		s.listenerSeq++
		entryID = s.listenerSeq
		m.listeners = append(m.listeners, listenerEntry{id: entryID, fn: listener})
		if !nested {
			return s.flush()
		}
		return nil
	})
	if err != nil {
		s.logger.Error("nucleo: flush after subscribe failed", "atom", cfg.name(), "error", err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.removeListener(cfg, entryID)
		})
	}
}

// mountAtom mounts cfg and its transitive dependencies, dependencies
// first, using an explicit stack so deep graphs cannot overflow the call
// stack. Returns the atom's mounted record.
func (s *Store) mountAtom(cfg *atomConfig) *mountedState {
	if m := s.mounted[cfg.id]; m != nil {
		return m
	}
	type frame struct {
		cfg      *atomConfig
		expanded bool
	}
	stack := []frame{{cfg: cfg}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if !f.expanded {
			stack[len(stack)-1].expanded = true
			if s.mounted[f.cfg.id] != nil {
				stack = stack[:len(stack)-1]
				continue
			}
			// Resolve to discover current dependencies. A cached compute
			// failure does not prevent mounting.
			_, _ = s.resolve(f.cfg)
			if st := s.states[f.cfg.id]; st != nil {
				// Reverse push so dependencies mount in read order.
				for i := len(st.depOrder) - 1; i >= 0; i-- {
					depID := st.depOrder[i]
					if s.mounted[depID] == nil {
						stack = append(stack, frame{cfg: s.atoms[depID]})
					}
				}
			}
			continue
		}
		stack = stack[:len(stack)-1]
		s.mountOne(f.cfg)
	}
	return s.mounted[cfg.id]
}

// mountOne creates the mounted record for a single atom whose dependencies
// are already mounted, links the mounted edges, and queues the first-mount
// hook for the flush loop.
func (s *Store) mountOne(cfg *atomConfig) {
	m := s.mounted[cfg.id]
	if m == nil {
		s.mountSeq++
		m = &mountedState{
			seq:        s.mountSeq,
			deps:       make(map[uint64]struct{}),
			dependents: make(map[uint64]struct{}),
		}
		s.mounted[cfg.id] = m
		s.emit(EventMount, cfg, nil)
		if cfg.onMount != nil {
			hook := cfg.onMount
			rec := m
			s.pendingMounts = append(s.pendingMounts, func() {
				rec.cleanup = hook(&Setter{store: s})
			})
		}
	}
	if st := s.states[cfg.id]; st != nil {
		for _, depID := range st.depOrder {
			m.deps[depID] = struct{}{}
			if dm := s.mounted[depID]; dm != nil {
				dm.dependents[cfg.id] = struct{}{}
			}
		}
	}
}

// syncMountedDeps reconciles mounted edges after a recomputation of a
// mounted atom replaced its dependency snapshot: dependencies read for the
// first time are mounted, dropped ones are released and unmounted if
// nothing else observes them.
func (s *Store) syncMountedDeps(cfg *atomConfig, oldDeps map[uint64]uint64) {
	m := s.mounted[cfg.id]
	st := s.states[cfg.id]
	for _, depID := range st.depOrder {
		if _, had := m.deps[depID]; had {
			continue
		}
		m.deps[depID] = struct{}{}
		dm := s.mounted[depID]
		if dm == nil {
			dm = s.mountAtom(s.atoms[depID])
		}
		dm.dependents[cfg.id] = struct{}{}
	}
	for depID := range oldDeps {
		if _, still := st.deps[depID]; still {
			continue
		}
		delete(m.deps, depID)
		if dm := s.mounted[depID]; dm != nil {
			delete(dm.dependents, cfg.id)
			s.maybeUnmount(depID)
		}
	}
}

// removeListener drops a subscription and unmounts the atom if it was the
// last observer. Unmount propagation is immediate and synchronous.
func (s *Store) removeListener(cfg *atomConfig, entryID uint64) {
	s.lockStore()
	defer s.unlockStore()
	m := s.mounted[cfg.id]
	if m == nil {
		return
	}
	for i, e := range m.listeners {
		if e.id == entryID {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			break
		}
	}
	s.maybeUnmount(cfg.id)
}

// maybeUnmount unmounts every atom reachable from id that has no listeners
// and no mounted dependents, invoking cleanup hooks as records are
// destroyed. Worklist-based: safe for deep dependency chains.
func (s *Store) maybeUnmount(id uint64) {
	queue := []uint64{id}
	for len(queue) > 0 {
		cur := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		m := s.mounted[cur]
		if m == nil || len(m.listeners) > 0 || len(m.dependents) > 0 {
			continue
		}
		if m.cleanup != nil {
			m.cleanup()
			m.cleanup = nil
		}
		delete(s.mounted, cur)
		s.emit(EventUnmount, s.atoms[cur], nil)
		if st := s.states[cur]; st != nil {
			for _, depID := range st.depOrder {
				if _, had := m.deps[depID]; !had {
					continue
				}
				if dm := s.mounted[depID]; dm != nil {
					delete(dm.dependents, cur)
					queue = append(queue, depID)
				}
			}
		}
	}
}

// sortByMountSeq orders atom IDs by the sequence their mounted records
// were created, which keeps flush deterministic for a deterministic graph.
func sortByMountSeq(ids []uint64, mounted map[uint64]*mountedState) {
	sort.Slice(ids, func(i, j int) bool {
		return mounted[ids[i]].seq < mounted[ids[j]].seq
	})
}
