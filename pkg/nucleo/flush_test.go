package nucleo

import (
	"errors"
	"testing"
)

func TestListenerCoalescing(t *testing.T) {
	// a feeds both b and c, which feed d: one set to a changes d once, so
	// d's listener fires once even though two inputs changed.
	store := NewStore()
	a := NewPrimitive(1, WithLabel("a"))
	b := NewDerived(func(g *Getter) (int, error) {
		v, err := a.Get(g)
		return v + 1, err
	}, WithLabel("b"))
	c := NewDerived(func(g *Getter) (int, error) {
		v, err := a.Get(g)
		return v * 10, err
	}, WithLabel("c"))
	d := NewDerived(func(g *Getter) (int, error) {
		bv, err := b.Get(g)
		if err != nil {
			return 0, err
		}
		cv, err := c.Get(g)
		return bv + cv, err
	}, WithLabel("d"))

	calls := 0
	unsub := store.Subscribe(d, func() { calls++ })
	defer unsub()

	if err := a.Set(store, 2); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 coalesced call, got %d", calls)
	}
	v, err := d.Get(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 23 {
		t.Errorf("expected 23, got %d", v)
	}
}

func TestEagerRecomputeOnMountedGraph(t *testing.T) {
	store := NewStore()
	count := NewPrimitive(0, WithLabel("count"))
	computes := 0
	double := NewDerived(func(g *Getter) (int, error) {
		computes++
		v, err := count.Get(g)
		return v * 2, err
	}, WithLabel("double"))

	unsub := store.Subscribe(double, func() {})
	defer unsub()
	if computes != 1 {
		t.Fatalf("expected 1 compute on mount, got %d", computes)
	}

	// While mounted, the set itself recomputes; the following read is a
	// cache hit.
	if err := count.Set(store, 3); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if computes != 2 {
		t.Errorf("expected eager recompute during set, got %d computes", computes)
	}
	v, err := double.Get(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 6 || computes != 2 {
		t.Errorf("expected cached 6 after 2 computes, got %d after %d", v, computes)
	}
}

func TestListenerCascade(t *testing.T) {
	// A listener on source mirrors its value into shadow. The nested set
	// feeds the same flush, so shadow's listener fires before the top-level
	// Set returns.
	store := NewStore()
	source := NewPrimitive(0, WithLabel("source"))
	shadow := NewPrimitive(0, WithLabel("shadow"))

	unsubSource := store.Subscribe(source, func() {
		v, err := source.Get(store)
		if err != nil {
			t.Errorf("read in listener failed: %v", err)
			return
		}
		if err := shadow.Set(store, v); err != nil {
			t.Errorf("nested set failed: %v", err)
		}
	})
	defer unsubSource()

	shadowCalls := 0
	unsubShadow := store.Subscribe(shadow, func() { shadowCalls++ })
	defer unsubShadow()

	if err := source.Set(store, 7); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if shadowCalls != 1 {
		t.Errorf("expected shadow listener to fire once, got %d", shadowCalls)
	}
	v, err := shadow.Get(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 7 {
		t.Errorf("expected mirrored 7, got %d", v)
	}
}

func TestDivergentUpdateBound(t *testing.T) {
	store := NewStore(WithMaxFlushIterations(10))
	ping := NewPrimitive(0, WithLabel("ping"))
	pong := NewPrimitive(0, WithLabel("pong"))

	unsubPing := store.Subscribe(ping, func() {
		v, _ := ping.Get(store)
		_ = pong.Set(store, v+1)
	})
	defer unsubPing()
	unsubPong := store.Subscribe(pong, func() {
		v, _ := pong.Get(store)
		_ = ping.Set(store, v+1)
	})
	defer unsubPong()

	err := ping.Set(store, 1)
	if !errors.Is(err, ErrDivergentUpdate) {
		t.Fatalf("expected ErrDivergentUpdate, got %v", err)
	}

	// The store recovers: pending work was abandoned, new operations run.
	unsubPing()
	unsubPong()
	if err := ping.Set(store, 100); err != nil {
		t.Errorf("store unusable after divergence: %v", err)
	}
}

func TestConvergingCascadeSettles(t *testing.T) {
	// The listener clamps instead of incrementing forever, so the flush
	// loop reaches its fixpoint well inside the bound.
	store := NewStore(WithMaxFlushIterations(100))
	n := NewPrimitive(0, WithLabel("n"))

	unsub := store.Subscribe(n, func() {
		v, _ := n.Get(store)
		if v < 5 {
			_ = n.Set(store, v+1)
		}
	})
	defer unsub()

	if err := n.Set(store, 1); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	v, err := n.Get(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 5 {
		t.Errorf("expected cascade to settle at 5, got %d", v)
	}
}

func TestWriteFailureDoesNotRollBack(t *testing.T) {
	store := NewStore()
	a := NewPrimitive(0, WithLabel("a"))
	failAfter := errors.New("write rejected")
	batch := NewWritable(
		func(g *Getter) (int, error) { return a.Get(g) },
		func(s *Setter, v int) error {
			if err := a.Set(s, v); err != nil {
				return err
			}
			return failAfter
		},
		WithLabel("batch"),
	)

	err := batch.Set(store, 9)
	if !errors.Is(err, failAfter) {
		t.Fatalf("expected write error, got %v", err)
	}
	// The nested set issued before the failure stays committed.
	v, err := a.Get(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 9 {
		t.Errorf("expected committed 9, got %d", v)
	}
}

func TestNestedSetsShareOneFlush(t *testing.T) {
	store := NewStore()
	x := NewPrimitive(0, WithLabel("x"))
	y := NewPrimitive(0, WithLabel("y"))
	both := NewWritable(
		func(g *Getter) (int, error) {
			xv, err := x.Get(g)
			if err != nil {
				return 0, err
			}
			yv, err := y.Get(g)
			return xv + yv, err
		},
		func(s *Setter, v int) error {
			if err := x.Set(s, v); err != nil {
				return err
			}
			return y.Set(s, v)
		},
		WithLabel("both"),
	)

	calls := 0
	unsub := store.Subscribe(both, func() { calls++ })
	defer unsub()

	if err := both.Set(store, 4); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	// Two nested sets, one changed derived value, one notification.
	if calls != 1 {
		t.Errorf("expected 1 call for the batched write, got %d", calls)
	}
	v, err := both.Get(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 8 {
		t.Errorf("expected 8, got %d", v)
	}
}

func TestMountedDependentRecoversFromError(t *testing.T) {
	store := NewStore()
	shouldFail := NewPrimitive(true, WithLabel("shouldFail"))
	boom := errors.New("boom")
	source := NewDerived(func(g *Getter) (int, error) {
		fail, err := shouldFail.Get(g)
		if err != nil {
			return 0, err
		}
		if fail {
			return 0, boom
		}
		return 42, nil
	}, WithLabel("source"))
	dependent := NewDerived(func(g *Getter) (int, error) {
		v, err := source.Get(g)
		return v + 1, err
	}, WithLabel("dependent"))

	calls := 0
	unsub := store.Subscribe(dependent, func() { calls++ })
	defer unsub()

	// Subscribing established the cached failure; it is not a change.
	if _, err := dependent.Get(store); !errors.Is(err, boom) {
		t.Fatalf("expected cached boom, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("listener fired %d times on subscribe", calls)
	}

	// The failing source and its input stay observed through the mounted
	// dependent, so fixing the input reaches it during flush.
	if got := store.MountedCount(); got != 3 {
		t.Fatalf("expected 3 mounted atoms, got %d", got)
	}

	if err := shouldFail.Set(store, false); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call for the error-to-value transition, got %d", calls)
	}
	v, err := dependent.Get(store)
	if err != nil {
		t.Fatalf("unexpected error after fix: %v", err)
	}
	if v != 43 {
		t.Errorf("expected 43, got %d", v)
	}
}

func TestUnsubscribeDuringNotification(t *testing.T) {
	store := NewStore()
	n := NewPrimitive(0)

	var unsub2 Unsubscribe
	calls2 := 0
	unsub1 := store.Subscribe(n, func() { unsub2() })
	unsub2 = store.Subscribe(n, func() { calls2++ })
	defer unsub1()

	// Listener snapshots are taken per pass, so the second listener still
	// fires this pass and stops after.
	if err := n.Set(store, 1); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if calls2 != 1 {
		t.Errorf("expected 1 call before removal, got %d", calls2)
	}
	if err := n.Set(store, 2); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if calls2 != 1 {
		t.Errorf("removed listener fired again (%d calls)", calls2)
	}
}
