// Package nucleo provides a reactive atom store for Go.
//
// State is modeled as atoms: small, independently defined units of state
// identified by cheap, comparable handles. A Store caches computed atom
// values, tracks the dependencies each computation actually reads, and
// propagates invalidation when inputs change, recomputing stale values in
// dependency order and notifying subscribers only when a value actually
// changes.
//
// # Core Types
//
// A primitive atom holds a value written from outside:
//
//	count := nucleo.NewPrimitive(0)
//	store := nucleo.NewStore()
//	v, _ := count.Get(store) // 0
//	count.Set(store, 5)
//
// A derived atom computes its value from other atoms. Dependencies are
// discovered at runtime by intercepting reads made through the Getter:
//
//	double := nucleo.NewDerived(func(g *nucleo.Getter) (int, error) {
//	    v, err := count.Get(g)
//	    return v * 2, err
//	})
//
// A writable atom pairs a computation with a custom write function that may
// cascade into writes on other atoms:
//
//	reset := nucleo.NewWritable(
//	    func(g *nucleo.Getter) (int, error) { return count.Get(g) },
//	    func(s *nucleo.Setter, _ struct{}) error { return count.Set(s, 0) },
//	)
//
// # Subscriptions
//
// Subscribe registers a listener that fires when the atom's value changes.
// Subscribed atoms (and their transitive dependencies) are mounted: they are
// recomputed eagerly after every write so listeners always observe
// up-to-date values.
//
//	unsub := store.Subscribe(double, func() { ... })
//	defer unsub()
//
// Derived atoms are lazy everywhere else: an unmounted atom recomputes only
// when read, and only if one of its dependencies changed since the last
// computation (tracked with per-atom epoch counters).
//
// # Concurrency
//
// A Store serializes Get, Set, and Subscribe under a single exclusive lock
// held for the full duration of the top-level call. Nested calls made by the
// engine itself (compute functions, write functions, listeners, mount hooks)
// re-enter freely on the same goroutine. Atom definitions are immutable and
// safely shared across any number of stores and goroutines.
package nucleo
