package nucleo

import "fmt"

// flush drains the store to a fixpoint: run queued first-mount hooks,
// eagerly recompute the mounted invalidated subset, then notify the
// listeners of every changed atom. Listeners and hooks may themselves set
// atoms or subscribe, producing new pending work, so the loop repeats
// until one full pass produces no new changes and no pending lifecycle
// hooks. The iteration bound turns a non-converging update cycle into an
// ErrDivergentUpdate failure instead of a hang.
//
// Must be called with the store lock held, at the top of a non-nested
// operation.
func (s *Store) flush() error {
	passes := 0
	for {
		hooks := s.pendingMounts
		s.pendingMounts = nil
		for _, h := range hooks {
			h()
		}

		if err := s.recomputeInvalidated(); err != nil {
			return err
		}

		if len(s.changed) == 0 && len(s.pendingMounts) == 0 {
			if passes > 0 {
				s.emit(EventFlush, nil, func(ev *Event) { ev.Listeners = passes })
				s.logger.Debug("nucleo: flush settled", "passes", passes)
			}
			return nil
		}

		passes++
		if passes > s.maxFlushIters {
			return fmt.Errorf("%w after %d passes", ErrDivergentUpdate, s.maxFlushIters)
		}

		// Collect every listener for this pass before invoking any of
		// them: an atom changed once fires each of its listeners once,
		// regardless of how many upstream atoms changed.
		changedIDs := make([]uint64, 0, len(s.changed))
		for id := range s.changed {
			if s.mounted[id] != nil {
				changedIDs = append(changedIDs, id)
			}
		}
		sortByMountSeq(changedIDs, s.mounted)
		s.changed = make(map[uint64]struct{})

		for _, id := range changedIDs {
			m := s.mounted[id]
			if m == nil {
				// Unmounted by an earlier listener in this pass.
				continue
			}
			entries := make([]listenerEntry, len(m.listeners))
			copy(entries, m.listeners)
			for _, e := range entries {
				e.fn()
			}
			s.emit(EventNotify, s.atoms[id], func(ev *Event) { ev.Listeners = len(entries) })
		}
	}
}
