package atomutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleo-dev/nucleo/pkg/nucleo"
)

type counterAction string

const (
	inc   counterAction = "inc"
	dec   counterAction = "dec"
	reset counterAction = "reset"
)

func newCounter() *nucleo.WritableAtom[int, counterAction] {
	return WithReducer(0, func(prev int, a counterAction) int {
		switch a {
		case inc:
			return prev + 1
		case dec:
			return prev - 1
		case reset:
			return 0
		default:
			return prev
		}
	}, nucleo.WithLabel("counter"))
}

func TestReducerAppliesActions(t *testing.T) {
	store := nucleo.NewStore()
	counter := newCounter()

	v, err := counter.Get(store)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, counter.Set(store, inc))
	require.NoError(t, counter.Set(store, inc))
	require.NoError(t, counter.Set(store, dec))
	v, err = counter.Get(store)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, counter.Set(store, reset))
	v, err = counter.Get(store)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestReducerNotifiesSubscribers(t *testing.T) {
	store := nucleo.NewStore()
	counter := newCounter()

	calls := 0
	unsub := store.Subscribe(counter, func() { calls++ })
	defer unsub()

	require.NoError(t, counter.Set(store, inc))
	assert.Equal(t, 1, calls)

	// A no-op action commits the same value: nothing to notify.
	require.NoError(t, counter.Set(store, counterAction("noop")))
	assert.Equal(t, 1, calls)
}

func TestReducerStoresAreIndependent(t *testing.T) {
	counter := newCounter()
	s1 := nucleo.NewStore()
	s2 := nucleo.NewStore()

	require.NoError(t, counter.Set(s1, inc))
	v1, err := counter.Get(s1)
	require.NoError(t, err)
	v2, err := counter.Get(s2)
	require.NoError(t, err)
	assert.Equal(t, 1, v1)
	assert.Equal(t, 0, v2)
}
