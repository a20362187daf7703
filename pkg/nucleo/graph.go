package nucleo

import "errors"

// updateDependents reconciles the reverse-edge index after a recomputation
// replaced an atom's dependency snapshot. Edges from the prior dependency
// set that were not touched in this pass are dropped.
func (s *Store) updateDependents(id uint64, oldDeps, newDeps map[uint64]uint64) {
	for depID := range oldDeps {
		if _, still := newDeps[depID]; !still {
			if rev := s.dependents[depID]; rev != nil {
				delete(rev, id)
				if len(rev) == 0 {
					delete(s.dependents, depID)
				}
			}
		}
	}
	for depID := range newDeps {
		rev := s.dependents[depID]
		if rev == nil {
			rev = make(map[uint64]struct{})
			s.dependents[depID] = rev
		}
		rev[id] = struct{}{}
	}
}

// invalidateDependents marks every atom reverse-reachable from id as stale,
// breadth-first. Already-invalidated atoms are not re-traversed, so the
// walk is idempotent. Invalidated atoms are not recomputed here: that
// happens lazily on the next read, or eagerly during flush for mounted
// atoms.
func (s *Store) invalidateDependents(id uint64) {
	queue := []uint64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for depID := range s.dependents[cur] {
			if _, done := s.invalidated[depID]; done {
				continue
			}
			s.invalidated[depID] = struct{}{}
			s.emit(EventInvalidate, s.atoms[depID], nil)
			queue = append(queue, depID)
		}
	}
}

// recomputeInvalidated eagerly recomputes the mounted, invalidated subset
// of the graph so listeners observe up-to-date values. Atoms are visited in
// topological order, dependencies before dependents, with an explicit stack
// so deep graphs cannot overflow the call stack. A back-edge found during
// the traversal is a cycle and aborts the pass.
func (s *Store) recomputeInvalidated() error {
	if len(s.invalidated) == 0 {
		return nil
	}
	roots := s.mountedInvalidated()
	if len(roots) == 0 {
		return nil
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[uint64]uint8, len(roots))
	var order []uint64

	type frame struct {
		id   uint64
		next int
	}
	for _, root := range roots {
		if color[root] != white {
			continue
		}
		color[root] = grey
		stack := []frame{{id: root}}
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			var deps []uint64
			if st := s.states[f.id]; st != nil {
				deps = st.depOrder
			}
			if f.next < len(deps) {
				dep := deps[f.next]
				f.next++
				if !s.needsEagerRecompute(dep) {
					continue
				}
				switch color[dep] {
				case white:
					color[dep] = grey
					stack = append(stack, frame{id: dep})
				case grey:
					path := make([]string, 0, len(stack)+1)
					for _, fr := range stack {
						path = append(path, s.atoms[fr.id].name())
					}
					path = append(path, s.atoms[dep].name())
					return &CycleError{Path: path}
				}
				continue
			}
			color[f.id] = black
			order = append(order, f.id)
			stack = stack[:len(stack)-1]
		}
	}

	for _, id := range order {
		if _, stale := s.invalidated[id]; !stale {
			continue
		}
		if _, err := s.resolve(s.atoms[id]); err != nil {
			if errors.Is(err, ErrCycleDetected) {
				return err
			}
			// Compute failures are cached; dependents short-circuit with
			// the same error, so the pass continues.
		}
	}
	return nil
}

// mountedInvalidated returns the mounted atoms currently marked stale,
// ordered by mount sequence for deterministic recomputation.
func (s *Store) mountedInvalidated() []uint64 {
	var ids []uint64
	for id := range s.invalidated {
		if s.mounted[id] != nil {
			ids = append(ids, id)
		}
	}
	sortByMountSeq(ids, s.mounted)
	return ids
}

func (s *Store) needsEagerRecompute(id uint64) bool {
	if s.mounted[id] == nil {
		return false
	}
	_, stale := s.invalidated[id]
	return stale
}
