// Package atomutil provides helpers built on top of the core store:
// parameterized atom families, memoized projections, and reducer-style
// writable atoms.
package atomutil

import (
	"sync"
	"time"
)

// ShouldRemove decides whether a cached family member should be evicted.
// It receives the time the atom was created and its parameter.
type ShouldRemove[P comparable] func(createdAt time.Time, param P) bool

// Family creates and caches atoms keyed by a comparable parameter, so the
// same parameter always yields the same atom handle. Families are safe for
// concurrent use.
type Family[P comparable, A any] struct {
	create func(P) A

	mu           sync.Mutex
	cache        map[P]familyEntry[A]
	shouldRemove ShouldRemove[P]
}

type familyEntry[A any] struct {
	atom      A
	createdAt time.Time
}

// NewFamily creates an atom family from the given factory. The factory runs
// once per distinct parameter; its result is cached until removed.
func NewFamily[P comparable, A any](create func(P) A) *Family[P, A] {
	return &Family[P, A]{
		create: create,
		cache:  make(map[P]familyEntry[A]),
	}
}

// Get returns the atom for the parameter, creating and caching it on first
// use. If an eviction policy is set and rejects the cached entry, the atom
// is recreated.
func (f *Family[P, A]) Get(param P) A {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.cache[param]; ok {
		if f.shouldRemove == nil || !f.shouldRemove(e.createdAt, param) {
			return e.atom
		}
		delete(f.cache, param)
	}
	a := f.create(param)
	f.cache[param] = familyEntry[A]{atom: a, createdAt: time.Now()}
	return a
}

// Params returns the parameters of all currently cached atoms, in no
// particular order.
func (f *Family[P, A]) Params() []P {
	f.mu.Lock()
	defer f.mu.Unlock()
	params := make([]P, 0, len(f.cache))
	for p := range f.cache {
		params = append(params, p)
	}
	return params
}

// Remove evicts the cached atom for the parameter. A later Get creates a
// fresh atom with a new identity; store state held for the old atom is
// untouched.
func (f *Family[P, A]) Remove(param P) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, param)
}

// SetShouldRemove installs an eviction policy. Existing entries are checked
// immediately; future Gets check the entry they would return. Passing nil
// clears the policy.
func (f *Family[P, A]) SetShouldRemove(fn ShouldRemove[P]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shouldRemove = fn
	if fn == nil {
		return
	}
	for p, e := range f.cache {
		if fn(e.createdAt, p) {
			delete(f.cache, p)
		}
	}
}

// Len returns the number of cached atoms.
func (f *Family[P, A]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}
