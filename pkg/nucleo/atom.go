package nucleo

import "fmt"

// Cleanup is a function returned by a mount hook to release resources.
// It is called when the atom's last subscriber goes away.
type Cleanup func()

// MountFn is an optional first-mount hook. It runs when an atom gains its
// first subscriber (directly or through a mounted dependent) and receives a
// Setter bound to the current update pass, so the hook can seed the atom or
// cascade writes. The returned Cleanup, if any, runs on last unmount.
type MountFn func(s *Setter) Cleanup

// atomConfig is the immutable definition shared by every typed handle.
// Many stores may hold state for the same config; the config itself is
// never mutated after construction.
type atomConfig struct {
	id    uint64
	label string

	// read computes the atom's value. nil for primitive atoms.
	read func(g *Getter) (any, error)

	// write applies a custom write. nil for primitive and read-only atoms.
	write func(s *Setter, args any) error

	// primitive atoms hold an externally written value slot.
	primitive bool
	initial   any

	// checkArgs validates untyped set arguments for primitive atoms.
	checkArgs func(any) bool

	// equals decides whether a newly computed value counts as a change.
	// nil means defaultEquals.
	equals func(a, b any) bool

	onMount MountFn
}

// name returns the debug label, or a generated "atom<id>" fallback.
func (c *atomConfig) name() string {
	if c.label != "" {
		return c.label
	}
	return fmt.Sprintf("atom%d", c.id)
}

// equalsFn returns the effective equality policy for this atom.
func (c *atomConfig) equalsFn() func(a, b any) bool {
	if c.equals != nil {
		return c.equals
	}
	return defaultEquals
}

// AnyAtom is the type-erased view of an atom handle. It is implemented by
// Atom[T] and WritableAtom[T, A]; callers cannot implement it.
type AnyAtom interface {
	// ID returns the atom's process-wide unique identifier.
	ID() uint64

	// Label returns the debug label, or a generated name.
	Label() string

	config() *atomConfig
}

// Atom is a read-only handle to a derived atom. Handles are opaque,
// comparable, and cheap to copy; the zero value is not usable.
type Atom[T any] struct {
	cfg *atomConfig
}

func (a *Atom[T]) config() *atomConfig { return a.cfg }

// ID returns the atom's unique identifier.
func (a *Atom[T]) ID() uint64 { return a.cfg.id }

// Label returns the atom's debug label, or a generated name.
func (a *Atom[T]) Label() string { return a.cfg.name() }

// String implements fmt.Stringer.
func (a *Atom[T]) String() string { return a.cfg.name() }

// Get reads the atom's current value, recomputing if necessary.
// When r is a Getter inside a compute function, the read is recorded as a
// dependency of the computing atom. When r is a Store, this is a top-level
// read.
func (a *Atom[T]) Get(r Reader) (T, error) {
	v, err := r.readAtom(a.cfg, true)
	return recoverValue[T](a.cfg, v, err)
}

// Peek reads the atom's current value without recording a dependency.
func (a *Atom[T]) Peek(r Reader) (T, error) {
	v, err := r.readAtom(a.cfg, false)
	return recoverValue[T](a.cfg, v, err)
}

// WritableAtom is a handle to an atom that accepts writes: either a
// primitive value slot (A == T) or a derived atom with a custom write
// function taking arguments of type A.
type WritableAtom[T any, A any] struct {
	cfg *atomConfig
}

func (w *WritableAtom[T, A]) config() *atomConfig { return w.cfg }

// ID returns the atom's unique identifier.
func (w *WritableAtom[T, A]) ID() uint64 { return w.cfg.id }

// Label returns the atom's debug label, or a generated name.
func (w *WritableAtom[T, A]) Label() string { return w.cfg.name() }

// String implements fmt.Stringer.
func (w *WritableAtom[T, A]) String() string { return w.cfg.name() }

// Get reads the atom's current value, recomputing if necessary.
func (w *WritableAtom[T, A]) Get(r Reader) (T, error) {
	v, err := r.readAtom(w.cfg, true)
	return recoverValue[T](w.cfg, v, err)
}

// Peek reads the atom's current value without recording a dependency.
func (w *WritableAtom[T, A]) Peek(r Reader) (T, error) {
	v, err := r.readAtom(w.cfg, false)
	return recoverValue[T](w.cfg, v, err)
}

// ReadOnly returns a read-only view of this atom, useful for exposing a
// writable atom to consumers that should not set it.
func (w *WritableAtom[T, A]) ReadOnly() *Atom[T] {
	return &Atom[T]{cfg: w.cfg}
}

// Set writes the atom. When wr is a Store this is a top-level set: the
// write commits, dependents are invalidated, and the flush loop runs before
// Set returns. When wr is a Setter inside a write function or mount hook,
// the nested set accumulates into the enclosing pass.
//
// For primitive atoms the write replaces the value unconditionally: an
// external set is authoritative and always counts as a change, regardless
// of the equality policy.
func (w *WritableAtom[T, A]) Set(wr Writer, args A) error {
	return wr.writeAtom(w.cfg, args)
}

// recoverValue converts the type-erased stored value back to T.
// Handles are typed at creation, so a failed downcast is an internal
// invariant violation, not a user-facing error.
func recoverValue[T any](cfg *atomConfig, v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	tv, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("nucleo: value type mismatch for %s: stored %T", cfg.name(), v))
	}
	return tv, nil
}

// NewPrimitive defines a primitive atom with the given initial value.
// The returned handle is writable with values of the same type.
func NewPrimitive[T any](initial T, opts ...AtomOption) *WritableAtom[T, T] {
	cfg := newAtomConfig(opts)
	cfg.primitive = true
	cfg.initial = initial
	cfg.checkArgs = func(v any) bool {
		_, ok := v.(T)
		return ok
	}
	return &WritableAtom[T, T]{cfg: cfg}
}

// NewDerived defines a read-only derived atom. The compute function runs
// lazily; every atom it reads through the Getter becomes a dependency, and
// the dependency set is rebuilt from scratch on each recomputation, so
// conditional reads are tracked correctly.
func NewDerived[T any](read func(g *Getter) (T, error), opts ...AtomOption) *Atom[T] {
	cfg := newAtomConfig(opts)
	cfg.read = func(g *Getter) (any, error) { return read(g) }
	return &Atom[T]{cfg: cfg}
}

// NewWritable defines a derived atom with a custom write function. The
// write receives a Setter whose nested sets accumulate into the same
// update pass as the triggering Set.
func NewWritable[T any, A any](read func(g *Getter) (T, error), write func(s *Setter, args A) error, opts ...AtomOption) *WritableAtom[T, A] {
	cfg := newAtomConfig(opts)
	cfg.read = func(g *Getter) (any, error) { return read(g) }
	cfg.write = func(s *Setter, args any) error {
		a, ok := args.(A)
		if !ok {
			return fmt.Errorf("%w: %s wants %T", ErrArgsMismatch, cfg.name(), a)
		}
		return write(s, a)
	}
	return &WritableAtom[T, A]{cfg: cfg}
}

func newAtomConfig(opts []AtomOption) *atomConfig {
	cfg := &atomConfig{id: nextID()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// AtomOption is a functional option for configuring atoms at definition time.
type AtomOption func(*atomConfig)

// WithLabel attaches a debug label to the atom. Labels appear in errors,
// logs, and inspector payloads.
func WithLabel(label string) AtomOption {
	return func(c *atomConfig) {
		c.label = label
	}
}

// WithOnMount registers a first-mount hook for the atom.
func WithOnMount(hook MountFn) AtomOption {
	return func(c *atomConfig) {
		c.onMount = hook
	}
}

// WithEquals configures a custom equality policy. An atom's epoch only
// advances, and its listeners only fire, when a newly computed value is
// unequal to the previous one under this policy.
//
// Values of a different dynamic type than T never compare equal.
func WithEquals[T any](eq func(a, b T) bool) AtomOption {
	return func(c *atomConfig) {
		c.equals = func(a, b any) bool {
			av, aok := a.(T)
			bv, bok := b.(T)
			return aok && bok && eq(av, bv)
		}
	}
}
