package pickle

import (
	"testing"
)

func TestAsInt64(t *testing.T) {
	for _, tt := range []struct {
		in   any
		want int64
		err  bool
	}{
		{int64(1), 1, false},
		{bigInt("123"), 123, false},
		{bigInt("-123"), -123, false},
		{bigInt("123456789012345678901234567890"), 0, true},
		{"1", 0, true},
		{1.0, 0, true},
	} {
		got, err := AsInt64(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("AsInt64(%#v) error = %v; want err=%v", tt.in, err, tt.err)
			continue
		}
		if !tt.err && got != tt.want {
			t.Errorf("AsInt64(%#v) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestAsBytes(t *testing.T) {
	for _, tt := range []struct {
		in   any
		want Bytes
		err  bool
	}{
		{Bytes("abc"), "abc", false},
		{ByteString("abc"), "abc", false},
		{NewByteArray([]byte("abc")), "abc", false},
		{"abc", "", true},
		{int64(1), "", true},
	} {
		got, err := AsBytes(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("AsBytes(%#v) error = %v; want err=%v", tt.in, err, tt.err)
			continue
		}
		if !tt.err && got != tt.want {
			t.Errorf("AsBytes(%#v) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestAsString(t *testing.T) {
	for _, tt := range []struct {
		in   any
		want string
		err  bool
	}{
		{"abc", "abc", false},
		{ByteString("abc"), "abc", false},
		{Bytes("abc"), "", true},
		{int64(1), "", true},
	} {
		got, err := AsString(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("AsString(%#v) error = %v; want err=%v", tt.in, err, tt.err)
			continue
		}
		if !tt.err && got != tt.want {
			t.Errorf("AsString(%#v) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
