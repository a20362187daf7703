package nucleo

import (
	"fmt"
	"testing"
)

// Benchmark tests for the store engine.

func BenchmarkGetCached(b *testing.B) {
	store := NewStore()
	count := NewPrimitive(42)
	if _, err := count.Get(store); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = count.Get(store)
	}
}

func BenchmarkSetNoSubscribers(b *testing.B) {
	store := NewStore()
	count := NewPrimitive(0)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = count.Set(store, i)
	}
}

func BenchmarkSetWithSubscriber(b *testing.B) {
	store := NewStore()
	count := NewPrimitive(0)
	unsub := store.Subscribe(count, func() {})
	defer unsub()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = count.Set(store, i)
	}
}

func BenchmarkDerivedGetCached(b *testing.B) {
	store := NewStore()
	count := NewPrimitive(21)
	double := NewDerived(func(g *Getter) (int, error) {
		v, err := count.Get(g)
		return v * 2, err
	})
	if _, err := double.Get(store); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = double.Get(store)
	}
}

// BenchmarkChainPropagation measures a set followed by a read at the end of
// a derived chain of the given depth.
func BenchmarkChainPropagation(b *testing.B) {
	for _, depth := range []int{4, 16, 64} {
		b.Run(fmt.Sprintf("depth-%d", depth), func(b *testing.B) {
			store := NewStore()
			root := NewPrimitive(0)
			tail := root.ReadOnly()
			for i := 0; i < depth; i++ {
				prev := tail
				tail = NewDerived(func(g *Getter) (int, error) {
					v, err := prev.Get(g)
					return v + 1, err
				})
			}
			if _, err := tail.Get(store); err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_ = root.Set(store, i)
				_, _ = tail.Get(store)
			}
		})
	}
}

// BenchmarkFanOutNotification measures a set to one source feeding the given
// number of mounted dependents.
func BenchmarkFanOutNotification(b *testing.B) {
	for _, width := range []int{8, 64} {
		b.Run(fmt.Sprintf("width-%d", width), func(b *testing.B) {
			store := NewStore()
			root := NewPrimitive(0)
			for i := 0; i < width; i++ {
				offset := i
				d := NewDerived(func(g *Getter) (int, error) {
					v, err := root.Get(g)
					return v + offset, err
				})
				unsub := store.Subscribe(d, func() {})
				defer unsub()
			}
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				_ = root.Set(store, i)
			}
		})
	}
}
