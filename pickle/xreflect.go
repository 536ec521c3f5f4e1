package pickle

// Utilities that complement the std reflect package.

import (
	"reflect"
)

// deepEqual is like reflect.DeepEqual but understands the machine's
// pointer-like containers.
//
// It is needed because reflect.DeepEqual considers two Dicts not-equal (each
// Dict carries its own hash seed) and compares *List/*ByteArray by pointer
// before descending.
func deepEqual(a, b any) bool {
	switch av := a.(type) {
	case Dict, Set, FrozenSet:
		return equal(a, b)

	case *List:
		bv, ok := b.(*List)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !deepEqual(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true

	case *ByteArray:
		bv, ok := b.(*ByteArray)
		return ok && string(av.Data) == string(bv.Data)

	case Tuple:
		bv, ok := b.(Tuple)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}
