package nucleo

import "time"

// Op identifies a top-level store operation for interceptors.
type Op string

const (
	OpGet       Op = "get"
	OpSet       Op = "set"
	OpSubscribe Op = "subscribe"
)

// OpInfo describes the top-level operation being intercepted.
type OpInfo struct {
	Op     Op
	Atom   string
	AtomID uint64
}

// Interceptor wraps a top-level store operation. Implementations must call
// next exactly once and may observe or replace its error.
type Interceptor func(info OpInfo, next func() error) error

// instrument runs fn through the store's interceptor chain, outermost
// interceptor first. Nested engine calls bypass the chain; a listener that
// itself calls Set re-enters it, which gives naturally nested spans.
func (s *Store) instrument(op Op, cfg *atomConfig, fn func() error) error {
	if len(s.interceptors) == 0 {
		return fn()
	}
	info := OpInfo{Op: op, Atom: cfg.name(), AtomID: cfg.id}
	next := fn
	for i := len(s.interceptors) - 1; i >= 0; i-- {
		ic := s.interceptors[i]
		inner := next
		next = func() error { return ic(info, inner) }
	}
	return next()
}

// EventType identifies an engine event.
type EventType string

const (
	// EventSet is emitted when a write commits to an atom.
	EventSet EventType = "set"

	// EventRecompute is emitted after an atom's compute function ran.
	EventRecompute EventType = "recompute"

	// EventInvalidate is emitted when an atom is marked stale.
	EventInvalidate EventType = "invalidate"

	// EventMount and EventUnmount bracket an atom's observed lifetime.
	EventMount   EventType = "mount"
	EventUnmount EventType = "unmount"

	// EventNotify is emitted after a changed atom's listeners were called.
	EventNotify EventType = "notify"

	// EventFlush is emitted when a flush loop reaches its fixpoint.
	EventFlush EventType = "flush"
)

// Event is a single engine event delivered to observers.
type Event struct {
	Type   EventType `json:"type"`
	Atom   string    `json:"atom,omitempty"`
	AtomID uint64    `json:"atomId,omitempty"`

	// Epoch is the atom's epoch after the event, where applicable.
	Epoch uint64 `json:"epoch,omitempty"`

	// Changed reports whether a recomputation produced a new value.
	Changed bool `json:"changed,omitempty"`

	// Listeners is the number of listeners called for EventNotify, and the
	// number of flush passes for EventFlush.
	Listeners int `json:"listeners,omitempty"`

	Time time.Time `json:"time"`
}

// Observer receives engine events. Observers run synchronously under the
// store lock: they must be fast and must not call back into the store.
type Observer interface {
	StoreEvent(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// StoreEvent implements Observer.
func (f ObserverFunc) StoreEvent(ev Event) { f(ev) }

// emit fans an event out to the store's observers.
func (s *Store) emit(t EventType, cfg *atomConfig, fill func(*Event)) {
	if len(s.observers) == 0 {
		return
	}
	ev := Event{Type: t, Time: time.Now()}
	if cfg != nil {
		ev.Atom = cfg.name()
		ev.AtomID = cfg.id
	}
	if fill != nil {
		fill(&ev)
	}
	for _, o := range s.observers {
		o.StoreEvent(ev)
	}
}
