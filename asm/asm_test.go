package asm

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pickledbg/pickledbg/pickle"
)

func load(t *testing.T, data []byte) any {
	t.Helper()
	v, err := pickle.NewMachine(bytes.NewReader(data)).Load()
	require.NoError(t, err, "pickle: %q", data)
	return v
}

func TestWireBytes(t *testing.T) {
	assert.Equal(t, []byte("\x80\x04"), Proto(4))
	assert.Equal(t, []byte("K\x2a"), BinInt1(42))
	assert.Equal(t, []byte("M\x39\x05"), BinInt2(1337))
	assert.Equal(t, []byte("J\xfe\xff\xff\xff"), BinInt(-2))
	assert.Equal(t, []byte("I1337\n"), Int(1337))
	assert.Equal(t, []byte("I01\n"), IntBool(true))
	assert.Equal(t, []byte("I00\n"), IntBool(false))
	assert.Equal(t, []byte("L123L\n"), Long(123))
	assert.Equal(t, []byte("U\x03abc"), ShortBinString("abc"))
	assert.Equal(t, []byte("\x8c\x03foo"), ShortBinUnicode("foo"))
	assert.Equal(t, []byte("B\x03\x00\x00\x00abc"), BinBytes([]byte("abc")))
	assert.Equal(t, []byte("S'abc'\n"), String("abc"))
	assert.Equal(t, []byte("cos\nsystem\n"), Global("os", "system"))
	assert.Equal(t, []byte("."), Stop())
	assert.Equal(t, []byte("\x95\x01\x00\x00\x00\x00\x00\x00\x00N"), Frame([]byte("N")))
}

func TestEncodeLong(t *testing.T) {
	tests := []struct {
		v    int64
		want []byte
	}{
		{0, nil},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x00}},
		{255, []byte{0xff, 0x00}},
		{256, []byte{0x00, 0x01}},
		{1337, []byte{0x39, 0x05}},
		{-1, []byte{0xff}},
		{-128, []byte{0x80}},
		{-129, []byte{0x7f, 0xff}},
		{-256, []byte{0x00, 0xff}},
	}
	for _, tt := range tests {
		got := encodeLong(big.NewInt(tt.v))
		assert.Equal(t, tt.want, got, "encodeLong(%d)", tt.v)
	}
}

// TestRoundTrip: streams assembled here decode to the values they spell.
func TestRoundTrip(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		p := Build(
			Proto(4),
			EmptyList(),
			Mark(),
			BinInt1(1), BinInt1(2), BinInt1(3),
			Appends(),
			Stop(),
		)
		want := pickle.NewList(int64(1), int64(2), int64(3))
		v := load(t, p)
		l, ok := v.(*pickle.List)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, want.Items, l.Items)
	})

	t.Run("dict", func(t *testing.T) {
		p := Build(
			Proto(4),
			EmptyDict(),
			Mark(),
			ShortBinUnicode("a"), BinInt1(1),
			ShortBinUnicode("b"), BinInt1(2),
			SetItems(),
			Stop(),
		)
		d, ok := load(t, p).(pickle.Dict)
		require.True(t, ok)
		assert.Equal(t, 2, d.Len())
		assert.Equal(t, any(int64(1)), d.Get("a"))
		assert.Equal(t, any(int64(2)), d.Get("b"))
	})

	t.Run("memoized-tuple", func(t *testing.T) {
		p := Build(
			Proto(4),
			ShortBinUnicode("foo"),
			Memoize(),
			BinGet(0),
			Tuple2(),
			Stop(),
		)
		v := load(t, p)
		assert.Equal(t, pickle.Tuple{"foo", "foo"}, v)
	})

	t.Run("longs", func(t *testing.T) {
		huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
		require.True(t, ok)
		p := Build(Long1(huge), Stop())
		v := load(t, p)
		b, ok := v.(*big.Int)
		require.True(t, ok, "got %T", v)
		assert.Zero(t, huge.Cmp(b))

		p = Build(Long4(big.NewInt(-1337)), Stop())
		assert.Equal(t, any(int64(-1337)), load(t, p))
	})

	t.Run("floats", func(t *testing.T) {
		assert.Equal(t, any(1.5), load(t, Build(BinFloat(1.5), Stop())))
		assert.Equal(t, any(-2.25), load(t, Build(Float(-2.25), Stop())))
	})

	t.Run("framed", func(t *testing.T) {
		p := Build(
			Proto(4),
			Frame(Build(EmptyList(), Mark(), BinInt1(9), Appends())),
			Stop(),
		)
		l, ok := load(t, p).(*pickle.List)
		require.True(t, ok)
		assert.Equal(t, []any{int64(9)}, l.Items)
	})

	t.Run("global-reduce", func(t *testing.T) {
		p := Build(
			Global("os", "system"),
			ShortBinUnicode("ls"),
			Tuple1(),
			Reduce(),
			Stop(),
		)
		v := load(t, p)
		call, ok := v.(pickle.Call)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, any(pickle.Class{Module: "os", Name: "system"}), call.Callable)
	})
}

// TestRaw: malformed streams authored with Raw still fail decoding the way
// they should.
func TestRaw(t *testing.T) {
	p := Build(Raw(0xff), Stop())
	_, err := pickle.NewMachine(bytes.NewReader(p)).Load()
	require.Error(t, err)
}
