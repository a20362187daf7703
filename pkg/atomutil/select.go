package atomutil

import (
	"github.com/nucleo-dev/nucleo/pkg/nucleo"
)

// Readable is any atom handle whose value can be read as T. Both read-only
// and writable handles satisfy it.
type Readable[T any] interface {
	nucleo.AnyAtom
	Get(r nucleo.Reader) (T, error)
}

// Select derives a projection of a source atom. The selector runs whenever
// the source changes, but the derived atom only counts as changed, and only
// notifies its subscribers, when the projected value itself differs under
// the default equality policy. Pass WithEquals to override the comparison.
func Select[T, U any](source Readable[T], selector func(T) U, opts ...nucleo.AtomOption) *nucleo.Atom[U] {
	return nucleo.NewDerived(func(g *nucleo.Getter) (U, error) {
		var zero U
		v, err := source.Get(g)
		if err != nil {
			return zero, err
		}
		return selector(v), nil
	}, opts...)
}
