package nucleo

import (
	"sync"
	"testing"
)

func TestConcurrentReadsAndWrites(t *testing.T) {
	store := NewStore()
	count := NewPrimitive(0, WithLabel("count"))
	double := NewDerived(func(g *Getter) (int, error) {
		v, err := count.Get(g)
		return v * 2, err
	}, WithLabel("double"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := count.Set(store, n*100+j); err != nil {
					t.Errorf("set failed: %v", err)
					return
				}
				c, err := count.Get(store)
				if err != nil {
					t.Errorf("get failed: %v", err)
					return
				}
				d, err := double.Get(store)
				if err != nil {
					t.Errorf("get failed: %v", err)
					return
				}
				// Another goroutine may write between the two reads, but
				// each read alone is consistent.
				if d%2 != 0 {
					t.Errorf("odd double %d", d)
					return
				}
				_ = c
			}
		}(i)
	}
	wg.Wait()

	// The final doubled value is consistent with the final count.
	c, err := count.Get(store)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	d, err := double.Get(store)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if d != c*2 {
		t.Errorf("expected %d, got %d", c*2, d)
	}
}

func TestConcurrentSubscribe(t *testing.T) {
	store := NewStore()
	count := NewPrimitive(0)

	var wg sync.WaitGroup
	unsubs := make([]Unsubscribe, 16)
	for i := range unsubs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unsubs[i] = store.Subscribe(count, func() {})
		}(i)
	}
	wg.Wait()

	if got := store.MountedCount(); got != 1 {
		t.Errorf("expected 1 mounted atom, got %d", got)
	}
	for _, u := range unsubs {
		u()
	}
	if got := store.MountedCount(); got != 0 {
		t.Errorf("expected 0 mounted atoms, got %d", got)
	}
}
