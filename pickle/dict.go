package pickle

// Python-like dict that handles keys by Python-like equality on access.
//
// For example Dict.Get() will access the same element for all keys int64(1),
// float64(1.0) and big.Int(1).

import (
	"encoding/binary"
	"fmt"
	"hash/maphash"
	"math"
	"math/big"
	"reflect"
	"sort"

	"github.com/aristanetworks/gomap"
)

// Dict represents dict from Python.
//
// It mirrors Python with respect to which types are allowed to be used as
// keys, and with respect to key equality. For example Tuple is allowed to be
// used as key, and all int64(1), float64(1.0) and big.Int(1) are considered
// to be equal.
//
// For strings, similarly to Python3, [Bytes] and string are considered to be
// not equal, even if their underlying content is the same. However with the
// same underlying content [ByteString], because it represents str from
// Python2, is treated equal to both [Bytes] and string.
//
// Note: similarly to builtin map Dict is pointer-like: its zero value
// represents a nil dictionary that is empty and invalid to Set on.
type Dict struct {
	m *gomap.Map[any, any]
}

// NewDict returns a new empty dictionary.
func NewDict() Dict {
	return NewDictWithSizeHint(0)
}

// NewDictWithSizeHint returns a new empty dictionary with preallocated space
// for size items.
func NewDictWithSizeHint(size int) Dict {
	return Dict{m: gomap.NewHint[any, any](size, equal, hash)}
}

// NewDictWithData returns a new dictionary with preset data.
//
// kv should be key₁, value₁, key₂, value₂, ...
func NewDictWithData(kv ...any) Dict {
	l := len(kv)
	if l%2 != 0 {
		panic("odd number of arguments")
	}
	d := NewDictWithSizeHint(l / 2)
	for i := 0; i < l; i += 2 {
		d.Set(kv[i], kv[i+1])
	}
	return d
}

// Get returns the value associated with an equal key.
//
// nil is returned if no matching key is present in the dictionary.
//
// Get panics if key's type is not allowed to be used as a Dict key.
func (d Dict) Get(key any) any {
	value, _ := d.Get_(key)
	return value
}

// Get_ is the comma-ok version of Get.
func (d Dict) Get_(key any) (value any, ok bool) {
	return d.m.Get(key)
}

// Set sets key to be associated with value.
//
// Any previous keys, equal to the new key, are removed from the dictionary
// before the assignment.
//
// Set panics if key's type is not allowed to be used as a Dict key.
func (d Dict) Set(key, value any) {
	// ByteString and container(with ByteString) are non-transitive equal
	// types, so Set(ByteString) must first remove Bytes and string, and
	// Set(Tuple{ByteString}) must first remove Tuple{Bytes} and
	// Tuple{string}.
	d.Del(key)
	d.m.Set(key, value)
}

// Del removes equal keys from the dictionary.
func (d Dict) Del(key any) {
	// see comment in Set about ByteString
	for {
		d.m.Delete(key)
		_, have := d.Get_(key)
		if !have {
			break
		}
	}
}

// Len returns the number of items in the dictionary.
func (d Dict) Len() int {
	if d.m == nil {
		return 0
	}
	return d.m.Len()
}

// Iter returns an iterator over all entries in the dictionary.
//
// The order of visit is arbitrary.
func (d Dict) Iter() func(yield func(any, any) bool) {
	return func(yield func(any, any) bool) {
		if d.m == nil {
			return
		}
		it := d.m.Iter()
		for it.Next() {
			if !yield(it.Key(), it.Elem()) {
				break
			}
		}
	}
}

// String returns a human-readable representation of the dictionary.
func (d Dict) String() string {
	return d.sprintf("%v")
}

// GoString returns a detailed human-readable representation of the dictionary.
func (d Dict) GoString() string {
	return fmt.Sprintf("%T%s", d, d.sprintf("%#v"))
}

// sprintf serves String and GoString.
func (d Dict) sprintf(format string) string {
	type KV struct{ k, v string }
	vkv := make([]KV, 0, d.Len())
	d.Iter()(func(k, v any) bool {
		vkv = append(vkv, KV{
			k: fmt.Sprintf(format, k),
			v: fmt.Sprintf(format, v),
		})
		return true
	})

	sort.Slice(vkv, func(i, j int) bool {
		return vkv[i].k < vkv[j].k
	})

	s := "{"
	for i, kv := range vkv {
		if i > 0 {
			s += ", "
		}
		s += kv.k + ": " + kv.v
	}
	return s + "}"
}

// ---- equal ----

// kind classifies a value for the equality matrix below.
type kind uint

const (
	kBool kind = iota
	kInt     // int64 and friends
	kUint    // uintX
	kFloat   // floatX
	kBigInt  // *big.Int

	kSlice   // Tuple and other slices
	kStruct  // struct values (None, Class, Ref, ...)
	kPointer // *List, *ByteArray, *Object, ...
	kOther   // everything else
)

// kindOf returns the kind of x.
func kindOf(x any) kind {
	r := reflect.ValueOf(x)

	switch r.Kind() {
	case reflect.Bool:
		return kBool
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		return kInt
	case reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8:
		return kUint
	case reflect.Float64, reflect.Float32:
		return kFloat
	case reflect.Slice, reflect.Array:
		return kSlice
	case reflect.Struct:
		return kStruct
	}

	if _, ok := x.(*big.Int); ok {
		return kBigInt
	}

	if r.Kind() == reflect.Pointer {
		return kPointer
	}
	return kOther
}

// equal implements equality matching what Python would return for a == b
// over the machine's value space.
//
// Properties:
//
//  1. extension of Go ==:    (a == b) ⇒ equal(a,b)
//  2. reflexive:             equal(a,a)
//  3. symmetric:             equal(a,b) = equal(b,a)
//  4. transitive over all values except ByteString and containers
//     holding ByteString.
func equal(xa, xb any) bool {
	// strings/bytes
	switch a := xa.(type) {
	case string:
		switch b := xb.(type) {
		case string:
			return a == b
		case ByteString:
			return a == string(b)
		default:
			return false
		}

	case ByteString:
		switch b := xb.(type) {
		case string:
			return a == ByteString(b)
		case ByteString:
			return a == b
		case Bytes:
			return a == ByteString(b)
		default:
			return false
		}

	case Bytes:
		switch b := xb.(type) {
		case ByteString:
			return a == Bytes(b)
		case Bytes:
			return a == b
		case *ByteArray:
			return string(a) == string(b.Data)
		default:
			return false
		}

	// mutable containers, compared like Python compares them
	case *List:
		b, ok := xb.(*List)
		if !ok {
			return false
		}
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true

	case *ByteArray:
		switch b := xb.(type) {
		case *ByteArray:
			return string(a.Data) == string(b.Data)
		case Bytes:
			return string(a.Data) == string(b)
		default:
			return false
		}

	case Dict:
		b, ok := xb.(Dict)
		if !ok {
			return false
		}
		return eqDict(a, b)

	case Set:
		b, ok := xb.(Set)
		if !ok {
			return false
		}
		return eqSet(a, b)

	case FrozenSet:
		b, ok := xb.(FrozenSet)
		if !ok {
			return false
		}
		return eqSet(a.set, b.set)
	}

	// numbers and the rest
	a := reflect.ValueOf(xa)
	b := reflect.ValueOf(xb)

	ak := kindOf(xa)
	bk := kindOf(xb)

	// equality is symmetric; implement one half of the matrix
	if ak > bk {
		a, b = b, a
		ak, bk = bk, ak
		xa, xb = xb, xa
	}
	// ak ≤ bk

	switch ak {
	case kBool:
		// bool compares to numbers as 1 or 0:  1.0 == True in Python
		abint := bint(a.Bool())
		switch bk {
		case kBool:
			return abint == bint(b.Bool())
		case kInt:
			return abint == b.Int()
		case kUint:
			return eqIntUint(abint, b.Uint())
		case kFloat:
			return float64(abint) == b.Float()
		case kBigInt:
			return eqIntBig(abint, xb.(*big.Int))
		}
		return false

	case kInt:
		aint := a.Int()
		switch bk {
		case kInt:
			return aint == b.Int()
		case kUint:
			return eqIntUint(aint, b.Uint())
		case kFloat:
			return float64(aint) == b.Float()
		case kBigInt:
			return eqIntBig(aint, xb.(*big.Int))
		}
		return false

	case kUint:
		auint := a.Uint()
		switch bk {
		case kUint:
			return auint == b.Uint()
		case kFloat:
			return float64(auint) == b.Float()
		case kBigInt:
			return eqUintBig(auint, xb.(*big.Int))
		}
		return false

	case kFloat:
		afloat := a.Float()
		switch bk {
		case kFloat:
			return afloat == b.Float()
		case kBigInt:
			return eqFloatBig(afloat, xb.(*big.Int))
		}
		return false

	case kBigInt:
		if bk == kBigInt {
			return xa.(*big.Int).Cmp(xb.(*big.Int)) == 0
		}
		return false

	case kSlice:
		if bk != kSlice {
			return false
		}
		return eqSlice(a, b)

	case kStruct:
		// covers None, Class, Call, Ref, ...
		if bk != kStruct || a.Type() != b.Type() {
			return false
		}
		return eqStruct(a, b)
	}

	// *Object and other pointers compare by identity
	return xa == xb
}

// equality matrix, nontrivial elements

func eqIntUint(a int64, b uint64) bool {
	return a >= 0 && uint64(a) == b
}

func eqIntBig(a int64, b *big.Int) bool {
	return b.IsInt64() && a == b.Int64()
}

func eqUintBig(a uint64, b *big.Int) bool {
	return b.IsUint64() && a == b.Uint64()
}

func eqFloatBig(a float64, b *big.Int) bool {
	bf, accuracy := bigIntFloat64(b)
	return accuracy == big.Exact && a == bf
}

func eqSlice(a, b reflect.Value) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if !equal(a.Index(i).Interface(), b.Index(i).Interface()) {
			return false
		}
	}
	return true
}

func eqStruct(a, b reflect.Value) bool {
	typ := a.Type()
	for i := 0; i < typ.NumField(); i++ {
		if !typ.Field(i).IsExported() {
			// none of the machine's struct values carry private
			// state that participates in equality
			continue
		}
		if !equal(a.Field(i).Interface(), b.Field(i).Interface()) {
			return false
		}
	}
	return true
}

func eqDict(a, b Dict) bool {
	// dicts D₁ and D₂ are considered equal iff
	//
	//	len(D₁) = len(D₂)  ^  ∀ k: equal(D₁[k], D₂[k])
	//
	// checked from both sides because ByteString keys make equality
	// non-transitive.
	if a.Len() != b.Len() {
		return false
	}

	eq := true
	a.Iter()(func(k, va any) bool {
		vb, ok := b.Get_(k)
		if !ok || !equal(va, vb) {
			eq = false
			return false
		}
		return true
	})
	if !eq {
		return false
	}

	b.Iter()(func(k, vb any) bool {
		va, ok := a.Get_(k)
		if !ok || !equal(va, vb) {
			eq = false
			return false
		}
		return true
	})
	return eq
}

func eqSet(a, b Set) bool {
	if a.Len() != b.Len() {
		return false
	}

	eq := true
	a.Iter()(func(k any) bool {
		if !b.Has(k) {
			eq = false
			return false
		}
		return true
	})
	if !eq {
		return false
	}

	b.Iter()(func(k any) bool {
		if !a.Has(k) {
			eq = false
			return false
		}
		return true
	})
	return eq
}

// ---- hash ----

// hash returns a hash of x consistent with the equality implemented by equal:
//
//	equal(a,b)  ⇒  hash(a) = hash(b)
//
// hash panics with "unhashable type: ..." if x is not allowed to be used as
// a Dict or Set key.
func hash(seed maphash.Seed, x any) uint64 {
	// strings/bytes use the standard hash of string
	switch v := x.(type) {
	case string:
		return maphash.String(seed, v)
	case ByteString:
		return maphash.String(seed, string(v))
	case Bytes:
		return maphash.String(seed, string(v))

	case *List, *ByteArray, *Buffer, Dict, Set:
		panic(fmt.Sprintf("unhashable type: %T", x))

	case FrozenSet:
		// commutative combination so the hash is independent of
		// iteration order
		var acc uint64
		v.set.Iter()(func(item any) bool {
			acc ^= hash(seed, item)
			return true
		})
		var h maphash.Hash
		h.SetSeed(seed)
		h.WriteString("frozenset")
		hashUint(&h, acc)
		return h.Sum64()
	}

	// for everything else custom hashing matching equal
	var h maphash.Hash
	h.SetSeed(seed)

	r := reflect.ValueOf(x)
	switch kindOf(x) {
	case kBool:
		hashInt(&h, bint(r.Bool()))
		return h.Sum64()
	case kInt:
		hashInt(&h, r.Int())
		return h.Sum64()
	case kUint:
		hashUint(&h, r.Uint())
		return h.Sum64()
	case kFloat:
		hashFloat(&h, seed, r.Float())
		return h.Sum64()

	case kBigInt:
		b := x.(*big.Int)
		switch {
		case b.IsInt64():
			hashInt(&h, b.Int64())
		case b.IsUint64():
			hashUint(&h, b.Uint64())
		default:
			if f, accuracy := bigIntFloat64(b); accuracy == big.Exact {
				hashFloat(&h, seed, f)
			} else {
				h.WriteString("bigInt")
				h.Write(b.Bytes())
			}
		}
		return h.Sum64()

	case kSlice:
		if t, ok := x.(Tuple); ok {
			h.WriteString("tuple")
			for _, item := range t {
				hashUint(&h, hash(seed, item))
			}
			return h.Sum64()
		}

	case kStruct:
		// None, Class, Call, Ref, ... hash by exported fields
		typ := r.Type()
		h.WriteString(typ.Name())
		for i := 0; i < typ.NumField(); i++ {
			if !typ.Field(i).IsExported() {
				continue
			}
			hashUint(&h, hash(seed, r.Field(i).Interface()))
		}
		return h.Sum64()

	case kPointer:
		// *Object and registered class values hash by identity,
		// like default instances in Python
		hashUint(&h, uint64(r.Pointer()))
		return h.Sum64()
	}

	panic(fmt.Sprintf("unhashable type: %T", x))
}

func hashUint(h *maphash.Hash, u uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], u)
	h.Write(b[:])
}

func hashInt(h *maphash.Hash, i int64) {
	hashUint(h, uint64(i))
}

func hashFloat(h *maphash.Hash, seed maphash.Seed, f float64) {
	// a float that is an integral number in int64 or uint64 range hashes
	// as that integer, so that equal(1, 1.0) keeps hash(1) == hash(1.0)
	switch {
	case f >= -(1<<63) && f < 1<<63 && float64(int64(f)) == f:
		hashInt(h, int64(f))
	case f >= 0 && f < 1<<64 && float64(uint64(f)) == f:
		hashUint(h, uint64(f))
	default:
		hashUint(h, math.Float64bits(f))
	}
}

// ---- misc ----

// bint returns 1 for true and 0 for false.
func bint(x bool) int64 {
	if x {
		return 1
	}
	return 0
}

// bigIntFloat64 converts b to float64, reporting accuracy.
func bigIntFloat64(b *big.Int) (float64, big.Accuracy) {
	return new(big.Float).SetInt(b).Float64()
}
