package atomutil

import (
	"github.com/nucleo-dev/nucleo/pkg/nucleo"
)

// WithReducer creates a writable atom whose writes apply a reducer to the
// previous value: Set(store, action) stores reduce(prev, action). The
// backing value slot is private to the returned handle.
func WithReducer[T, A any](initial T, reduce func(prev T, action A) T, opts ...nucleo.AtomOption) *nucleo.WritableAtom[T, A] {
	base := nucleo.NewPrimitive(initial)
	return nucleo.NewWritable(
		func(g *nucleo.Getter) (T, error) {
			return base.Get(g)
		},
		func(s *nucleo.Setter, action A) error {
			prev, err := base.Peek(s)
			if err != nil {
				return err
			}
			return base.Set(s, reduce(prev, action))
		},
		opts...,
	)
}
