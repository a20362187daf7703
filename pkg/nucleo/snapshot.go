package nucleo

import (
	"fmt"
	"sort"
)

// AtomInfo is a point-in-time description of one atom's state in a store,
// for inspection and debugging tools.
type AtomInfo struct {
	ID        uint64   `json:"id"`
	Label     string   `json:"label"`
	Epoch     uint64   `json:"epoch"`
	HasValue  bool     `json:"hasValue"`
	Value     string   `json:"value,omitempty"`
	Err       string   `json:"err,omitempty"`
	Deps      []uint64 `json:"deps,omitempty"`
	Mounted   bool     `json:"mounted"`
	Listeners int      `json:"listeners"`
}

// Snapshot returns a description of every atom this store has state for,
// ordered by atom ID. Values are rendered with %v; the snapshot never
// exposes live references into the store.
func (s *Store) Snapshot() []AtomInfo {
	s.lockStore()
	defer s.unlockStore()

	infos := make([]AtomInfo, 0, len(s.states))
	for id, st := range s.states {
		cfg := s.atoms[id]
		info := AtomInfo{
			ID:       id,
			Label:    cfg.name(),
			Epoch:    st.epoch,
			HasValue: st.hasValue,
			Deps:     append([]uint64(nil), st.depOrder...),
		}
		if st.hasValue {
			info.Value = fmt.Sprintf("%v", st.value)
		}
		if st.err != nil {
			info.Err = st.err.Error()
		}
		if m := s.mounted[id]; m != nil {
			info.Mounted = true
			info.Listeners = len(m.listeners)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// MountedCount returns the number of currently mounted atoms.
func (s *Store) MountedCount() int {
	s.lockStore()
	defer s.unlockStore()
	return len(s.mounted)
}
