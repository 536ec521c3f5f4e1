package pickle

import (
	"math/big"
	"testing"
)

// TestDictPythonKeys: keys are matched with Python equality, so numeric
// types interchange and ByteString bridges string and Bytes.
func TestDictPythonKeys(t *testing.T) {
	d := NewDict()
	d.Set(int64(1), "one")

	for _, key := range []any{int64(1), float64(1.0), true, bigInt("1")} {
		if v := d.Get(key); v != any("one") {
			t.Errorf("Get(%T %v) = %v; want \"one\"", key, key, v)
		}
	}
	if v := d.Get(int64(2)); v != nil {
		t.Errorf("Get(2) = %v; want nil", v)
	}

	// setting through an equal key replaces, not duplicates
	d.Set(float64(1.0), "uno")
	if d.Len() != 1 {
		t.Errorf("len = %d; want 1", d.Len())
	}
	if v := d.Get(int64(1)); v != any("uno") {
		t.Errorf("Get(1) after float set = %v", v)
	}
}

func TestDictStringKinds(t *testing.T) {
	d := NewDict()
	d.Set("s", int64(1))
	d.Set(Bytes("s"), int64(2))
	if d.Len() != 2 {
		t.Fatalf("len = %d; want 2 (str and bytes are distinct)", d.Len())
	}

	// ByteString matches both
	if v := d.Get(ByteString("s")); v == nil {
		t.Error("ByteString key did not match")
	}

	// and setting a ByteString evicts both
	d.Set(ByteString("s"), int64(3))
	if d.Len() != 1 {
		t.Errorf("len after ByteString set = %d; want 1", d.Len())
	}
}

func TestDictTupleKeys(t *testing.T) {
	d := NewDict()
	d.Set(Tuple{int64(1), "a"}, "value")
	if v := d.Get(Tuple{int64(1), "a"}); v != any("value") {
		t.Errorf("tuple key lookup = %v", v)
	}
	if v := d.Get(Tuple{int64(1), "b"}); v != nil {
		t.Errorf("wrong tuple key lookup = %v", v)
	}
	// numeric equivalence applies inside tuples too
	if v := d.Get(Tuple{float64(1.0), "a"}); v != any("value") {
		t.Errorf("equivalent tuple key lookup = %v", v)
	}
}

func TestDictFrozenSetKeys(t *testing.T) {
	d := NewDict()
	d.Set(NewFrozenSet(int64(1), int64(2)), "fs")
	if v := d.Get(NewFrozenSet(int64(2), int64(1))); v != any("fs") {
		t.Errorf("frozenset key lookup = %v", v)
	}
	if v := d.Get(NewFrozenSet(int64(1))); v != nil {
		t.Errorf("different frozenset matched: %v", v)
	}
}

func TestDictUnhashableKeys(t *testing.T) {
	for _, key := range []any{
		NewList(int64(1)),
		NewDict(),
		NewSet(),
		NewByteArray([]byte("x")),
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Set(%T) did not panic", key)
				}
			}()
			d := NewDict()
			d.Set(key, 1)
		}()
	}
}

// TestObjectIdentityKeys: instances hash by identity, like default
// instances in Python.
func TestObjectIdentityKeys(t *testing.T) {
	a := NewObject(Class{Module: "m", Name: "C"}, nil)
	b := NewObject(Class{Module: "m", Name: "C"}, nil)

	d := NewDict()
	d.Set(a, "a")
	if v := d.Get(a); v != any("a") {
		t.Errorf("identity lookup = %v", v)
	}
	if v := d.Get(b); v != nil {
		t.Errorf("distinct instance matched: %v", v)
	}
}

func TestEqual(t *testing.T) {
	eq := []struct{ a, b any }{
		{int64(1), float64(1.0)},
		{int64(1), true},
		{int64(0), false},
		{bigInt("9223372036854775807"), int64(9223372036854775807)},
		{"abc", ByteString("abc")},
		{Bytes("abc"), ByteString("abc")},
		{Bytes("abc"), NewByteArray([]byte("abc"))},
		{Tuple{int64(1), int64(2)}, Tuple{float64(1), float64(2)}},
		{NewList(int64(1)), NewList(float64(1))},
		{NewDictWithData(int64(1), "x"), NewDictWithData(float64(1), "x")},
		{NewSet(int64(1), int64(2)), NewSet(float64(2), float64(1))},
		{NewFrozenSet(int64(1)), NewFrozenSet(float64(1))},
		{None{}, None{}},
		{Class{Module: "a", Name: "b"}, Class{Module: "a", Name: "b"}},
	}
	for _, tt := range eq {
		if !equal(tt.a, tt.b) {
			t.Errorf("equal(%#v, %#v) = false; want true", tt.a, tt.b)
		}
		if !equal(tt.b, tt.a) {
			t.Errorf("equal(%#v, %#v) not symmetric", tt.b, tt.a)
		}
	}

	ne := []struct{ a, b any }{
		{int64(1), int64(2)},
		{"abc", Bytes("abc")},
		{"abc", "abd"},
		{int64(1), "1"},
		{Tuple{int64(1)}, Tuple{int64(1), int64(2)}},
		{NewList(int64(1)), Tuple{int64(1)}},
		{NewSet(int64(1)), NewFrozenSet(int64(1))},
		{None{}, false},
		{Class{Module: "a", Name: "b"}, Class{Module: "a", Name: "c"}},
	}
	for _, tt := range ne {
		if equal(tt.a, tt.b) {
			t.Errorf("equal(%#v, %#v) = true; want false", tt.a, tt.b)
		}
	}
}

// TestHashConsistency: equal values must agree on hash.
func TestHashConsistency(t *testing.T) {
	d := NewDict() // provides the seed via its gomap
	pairs := []struct{ a, b any }{
		{int64(7), float64(7.0)},
		{int64(1), true},
		{bigInt("12"), int64(12)},
		{"abc", ByteString("abc")},
		{Tuple{int64(1), "x"}, Tuple{float64(1), ByteString("x")}},
		{NewFrozenSet(int64(1), int64(2)), NewFrozenSet(int64(2), int64(1))},
	}
	for _, p := range pairs {
		d.Set(p.a, "v")
		if v := d.Get(p.b); v != any("v") {
			t.Errorf("hash(%#v) and hash(%#v) disagree", p.a, p.b)
		}
		d.Del(p.a)
	}
}

func TestSetBasics(t *testing.T) {
	s := NewSet(int64(1), int64(2), int64(2))
	if s.Len() != 2 {
		t.Errorf("len = %d; want 2", s.Len())
	}
	if !s.Has(float64(2.0)) {
		t.Error("equivalent member not found")
	}
	s.Del(int64(2))
	if s.Has(int64(2)) {
		t.Error("deleted member still present")
	}

	var total int64
	s.Iter()(func(v any) bool {
		i, err := AsInt64(v)
		if err != nil {
			t.Fatal(err)
		}
		total += i
		return true
	})
	if total != 1 {
		t.Errorf("member sum = %d; want 1", total)
	}
}

func TestBigIntHashing(t *testing.T) {
	d := NewDict()
	huge := bigInt("123456789012345678901234567890")
	d.Set(huge, "huge")
	if v := d.Get(bigInt("123456789012345678901234567890")); v != any("huge") {
		t.Error("big.Int keys with equal value did not match")
	}
	if v := d.Get(new(big.Int).Add(huge, big.NewInt(1))); v != nil {
		t.Error("different big.Int matched")
	}
}
