package nucleo

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Store is the runtime container that owns atom state: cached values,
// dependency snapshots, the mounted-atom table, and the pending sets driving
// invalidation and notification. A Store holds no atom identities itself;
// handles come from the process-wide definition counter and can be used
// against any number of independent stores.
//
// All three public operations (reads, writes, Subscribe) serialize on one
// exclusive lock held for the full top-level call, re-entrant only for the
// nested calls the engine itself makes on the same goroutine.
type Store struct {
	logger        *slog.Logger
	maxFlushIters int
	interceptors  []Interceptor
	observers     []Observer

	mu       sync.Mutex
	ownerGID atomic.Uint64
	depth    int

	// states and atoms are the per-store cache table and the configs of
	// every atom this store has seen.
	states map[uint64]*atomState
	atoms  map[uint64]*atomConfig

	// dependents is the reverse-edge index, kept consistent with the
	// forward dependency snapshots after every recomputation.
	dependents map[uint64]map[uint64]struct{}

	// invalidated marks atoms whose cache can no longer be trusted.
	// changed collects atoms whose value committed this pass, pending
	// listener notification.
	invalidated map[uint64]struct{}
	changed     map[uint64]struct{}

	// mounted tracks atoms with live observers. mountSeq orders mounts for
	// deterministic flush; listenerSeq identifies subscriptions.
	mounted     map[uint64]*mountedState
	mountSeq    uint64
	listenerSeq uint64

	// pendingMounts queues first-mount hooks for the flush loop.
	pendingMounts []func()

	// computing is the active recomputation stack, used for cycle
	// detection. computingSet mirrors it for O(1) membership checks.
	computing    []uint64
	computingSet map[uint64]struct{}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxFlushIterations <= 0 {
		cfg.MaxFlushIterations = defaultMaxFlushIterations
	}
	return &Store{
		logger:        cfg.Logger,
		maxFlushIters: cfg.MaxFlushIterations,
		interceptors:  cfg.Interceptors,
		observers:     cfg.Observers,
		states:        make(map[uint64]*atomState),
		atoms:         make(map[uint64]*atomConfig),
		dependents:    make(map[uint64]map[uint64]struct{}),
		invalidated:   make(map[uint64]struct{}),
		changed:       make(map[uint64]struct{}),
		mounted:       make(map[uint64]*mountedState),
		computingSet:  make(map[uint64]struct{}),
	}
}

// GetAny reads an atom through its type-erased handle. Prefer the typed
// Get method on the handle.
func (s *Store) GetAny(a AnyAtom) (any, error) {
	return s.readAtom(a.config(), false)
}

// SetAny writes an atom through its type-erased handle. It fails with
// ErrNotWritable for read-only atoms and ErrArgsMismatch when args do not
// match the atom's declared argument type. Prefer the typed Set method.
func (s *Store) SetAny(a AnyAtom, args any) error {
	return s.writeAtom(a.config(), args)
}

// lockStore acquires the store lock, re-entrant for nested calls made on
// the goroutine already holding it. Reports whether the call is nested.
func (s *Store) lockStore() (nested bool) {
	gid := getGoroutineID()
	if s.ownerGID.Load() == gid {
		s.depth++
		return true
	}
	s.mu.Lock()
	s.ownerGID.Store(gid)
	s.depth = 1
	return false
}

func (s *Store) unlockStore() {
	s.depth--
	if s.depth == 0 {
		s.ownerGID.Store(0)
		s.mu.Unlock()
	}
}

// readAtom implements Reader for top-level reads.
func (s *Store) readAtom(cfg *atomConfig, _ bool) (any, error) {
	var val any
	err := s.instrument(OpGet, cfg, func() error {
		s.lockStore()
		defer s.unlockStore()
		st, err := s.resolve(cfg)
		if err != nil {
			return err
		}
		val = st.value
		return nil
	})
	return val, err
}

// writeAtom implements Writer for top-level sets. After the write commits,
// dependents are invalidated and the flush loop runs to its fixpoint before
// control returns. A nested set (a listener or write function calling Set
// on the store directly) accumulates into the enclosing pass instead.
func (s *Store) writeAtom(cfg *atomConfig, args any) error {
	return s.instrument(OpSet, cfg, func() error {
		nested := s.lockStore()
		defer s.unlockStore()
		werr := s.writeLocked(cfg, args)
		if nested {
			return werr
		}
		ferr := s.flush()
		if werr != nil {
			return werr
		}
		return ferr
	})
}

// writeLocked applies a write under the store lock. Primitive atoms take
// the authoritative replace path; atoms with a custom write function run it
// with a Setter bound to this pass. There is no rollback: nested sets a
// failing write function already issued remain committed.
func (s *Store) writeLocked(cfg *atomConfig, args any) error {
	if cfg.write == nil && !cfg.primitive {
		return fmt.Errorf("%w: %s", ErrNotWritable, cfg.name())
	}
	if cfg.write != nil {
		s.ensureState(cfg)
		return cfg.write(&Setter{store: s}, args)
	}
	if cfg.checkArgs != nil && !cfg.checkArgs(args) {
		return fmt.Errorf("%w: %s given %T", ErrArgsMismatch, cfg.name(), args)
	}
	st := s.ensureState(cfg)
	st.value = args
	st.hasValue = true
	st.err = nil
	st.epoch++
	s.changed[cfg.id] = struct{}{}
	s.invalidateDependents(cfg.id)
	s.emit(EventSet, cfg, func(ev *Event) { ev.Epoch = st.epoch; ev.Changed = true })
	return nil
}

// ensureState returns the atom's cache entry, creating an empty one and
// registering the config on first contact.
func (s *Store) ensureState(cfg *atomConfig) *atomState {
	if st, ok := s.states[cfg.id]; ok {
		return st
	}
	st := &atomState{}
	s.states[cfg.id] = st
	s.atoms[cfg.id] = cfg
	return st
}

// resolve returns the atom's up-to-date state, recomputing if the cache
// cannot be trusted. This is the read algorithm behind every Get.
func (s *Store) resolve(cfg *atomConfig) (*atomState, error) {
	st := s.ensureState(cfg)
	if st.resolved() {
		if _, stale := s.invalidated[cfg.id]; !stale {
			if st.err != nil {
				return nil, st.err
			}
			return st, nil
		}
	}
	return s.recompute(cfg, st)
}

// recompute runs the atom's computation, commits the result, and rebuilds
// the dependency snapshot and reverse edges. Re-entering an atom already on
// the active stack is a cycle; cycle failures are not cached and leave the
// prior state untouched.
func (s *Store) recompute(cfg *atomConfig, st *atomState) (*atomState, error) {
	if _, active := s.computingSet[cfg.id]; active {
		return nil, s.cycleError(cfg)
	}
	s.computing = append(s.computing, cfg.id)
	s.computingSet[cfg.id] = struct{}{}
	defer func() {
		s.computing = s.computing[:len(s.computing)-1]
		delete(s.computingSet, cfg.id)
	}()

	// Dependency-epoch short-circuit: an invalidated atom whose inputs all
	// settled back to their snapshot epochs keeps its cached result.
	if st.resolved() && s.depsSettled(st) {
		delete(s.invalidated, cfg.id)
		if st.err != nil {
			return nil, st.err
		}
		return st, nil
	}

	if cfg.primitive {
		// First materialization seeds the initial value.
		st.value = cfg.initial
		st.hasValue = true
		st.epoch++
		delete(s.invalidated, cfg.id)
		return st, nil
	}

	g := &Getter{store: s, deps: make(map[uint64]uint64)}
	val, rerr := cfg.read(g)

	if rerr != nil && errors.Is(rerr, ErrCycleDetected) {
		return nil, rerr
	}

	first := st.epoch == 0
	oldDeps := st.deps
	st.deps = g.deps
	st.depOrder = g.depOrder
	s.updateDependents(cfg.id, oldDeps, st.deps)
	if s.mounted[cfg.id] != nil {
		s.syncMountedDeps(cfg, oldDeps)
	}
	delete(s.invalidated, cfg.id)

	if rerr != nil {
		var re *ReadError
		if !errors.As(rerr, &re) {
			rerr = &ReadError{Atom: cfg.name(), Err: rerr}
		}
		st.err = rerr
		st.value = nil
		st.hasValue = false
		st.epoch++
		if !first {
			s.changed[cfg.id] = struct{}{}
			s.invalidateDependents(cfg.id)
		}
		s.emit(EventRecompute, cfg, func(ev *Event) { ev.Epoch = st.epoch; ev.Changed = true })
		return nil, rerr
	}

	changed := !st.hasValue || st.err != nil || !cfg.equalsFn()(st.value, val)
	st.value = val
	st.hasValue = true
	st.err = nil
	if changed {
		st.epoch++
		// The very first computation establishes a value; it is not a
		// change anyone could have observed, so listeners stay quiet.
		if !first {
			s.changed[cfg.id] = struct{}{}
			s.invalidateDependents(cfg.id)
		}
	}
	s.emit(EventRecompute, cfg, func(ev *Event) { ev.Epoch = st.epoch; ev.Changed = changed })
	return st, nil
}

// depsSettled resolves each recorded dependency and reports whether every
// one still sits at the epoch captured in the snapshot. Resolving may
// recompute stale dependencies, so validation runs leaves-first.
func (s *Store) depsSettled(st *atomState) bool {
	for _, depID := range st.depOrder {
		depCfg := s.atoms[depID]
		if depCfg == nil {
			return false
		}
		ds, err := s.resolve(depCfg)
		if err != nil {
			return false
		}
		if ds.epoch != st.deps[depID] {
			return false
		}
	}
	return true
}

// cycleError builds a CycleError from the active computation stack.
func (s *Store) cycleError(cfg *atomConfig) error {
	path := make([]string, 0, len(s.computing)+1)
	for _, id := range s.computing {
		path = append(path, s.atoms[id].name())
	}
	path = append(path, cfg.name())
	return &CycleError{Path: path}
}
