package pickle

// Set and FrozenSet on top of the same Python-equality machinery as Dict.

import (
	"fmt"
	"sort"

	"github.com/aristanetworks/gomap"
)

// Set represents set from Python.
//
// Membership follows the same equality rules as Dict keys, so a set holding
// int64(1) also contains float64(1.0). Like Dict, Set is pointer-like: copies
// share the same underlying storage.
type Set struct {
	m *gomap.Map[any, struct{}]
}

// NewSet returns a new set holding items.
func NewSet(items ...any) Set {
	s := Set{m: gomap.NewHint[any, struct{}](len(items), equal, hash)}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts item into the set.
//
// Add panics if item's type is not hashable.
func (s Set) Add(item any) {
	// replace any equal member so a later ByteString does not shadow
	// an equal string already present; see Dict.Set
	s.Del(item)
	s.m.Set(item, struct{}{})
}

// Has reports whether an equal item is present in the set.
func (s Set) Has(item any) bool {
	_, ok := s.m.Get(item)
	return ok
}

// Del removes equal items from the set.
func (s Set) Del(item any) {
	for {
		s.m.Delete(item)
		if !s.Has(item) {
			break
		}
	}
}

// Len returns the number of members.
func (s Set) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// Iter returns an iterator over the members, in arbitrary order.
func (s Set) Iter() func(yield func(any) bool) {
	return func(yield func(any) bool) {
		if s.m == nil {
			return
		}
		it := s.m.Iter()
		for it.Next() {
			if !yield(it.Key()) {
				break
			}
		}
	}
}

func (s Set) String() string {
	if s.Len() == 0 {
		return "set()"
	}
	return sprintSet(s)
}

// FrozenSet represents frozenset from Python: an immutable set that is
// itself hashable and thus usable as a Dict key or Set member.
type FrozenSet struct {
	set Set
}

// NewFrozenSet returns a frozenset holding items.
func NewFrozenSet(items ...any) FrozenSet {
	return FrozenSet{set: NewSet(items...)}
}

// Has reports whether an equal item is present.
func (f FrozenSet) Has(item any) bool { return f.set.Has(item) }

// Len returns the number of members.
func (f FrozenSet) Len() int { return f.set.Len() }

// Iter returns an iterator over the members, in arbitrary order.
func (f FrozenSet) Iter() func(yield func(any) bool) { return f.set.Iter() }

func (f FrozenSet) String() string {
	return "frozenset(" + sprintSet(f.set) + ")"
}

// sprintSet renders members sorted by their string form, for stable output.
func sprintSet(s Set) string {
	elems := make([]string, 0, s.Len())
	s.Iter()(func(item any) bool {
		elems = append(elems, fmt.Sprintf("%v", item))
		return true
	})
	sort.Strings(elems)

	out := "{"
	for i, e := range elems {
		if i > 0 {
			out += ", "
		}
		out += e
	}
	return out + "}"
}
