package pickle

// conversion in between Go types to match Python.

import (
	"fmt"
	"math/big"
)

// AsInt64 tries to represent an unpickled value as int64.
//
// Machine-word integers decode as int64 while longs decode as big.Int. Go
// code should use AsInt64 to accept normal-range integers independently of
// their stream representation.
func AsInt64(x any) (int64, error) {
	switch x := x.(type) {
	case int64:
		return x, nil
	case *big.Int:
		if !x.IsInt64() {
			return 0, fmt.Errorf("long outside of int64 range")
		}
		return x.Int64(), nil
	}
	return 0, fmt.Errorf("expect int64|long; got %T", x)
}

// AsBytes tries to represent an unpickled value as Bytes.
//
// It succeeds only if the value is [Bytes], [ByteString] or [*ByteArray].
// It does not succeed if the value is string or any other type.
//
// [ByteString] is treated related to [Bytes] because [ByteString] represents
// str from py2 which can contain both string and binary data.
func AsBytes(x any) (Bytes, error) {
	switch x := x.(type) {
	case Bytes:
		return x, nil
	case ByteString:
		return Bytes(x), nil
	case *ByteArray:
		return Bytes(x.Data), nil
	}
	return "", fmt.Errorf("expect bytes|bytestr|bytearray; got %T", x)
}

// AsString tries to represent an unpickled value as string.
//
// It succeeds only if the value is either string, or [ByteString].
// It does not succeed if the value is [Bytes] or any other type.
func AsString(x any) (string, error) {
	switch x := x.(type) {
	case string:
		return x, nil
	case ByteString:
		return string(x), nil
	}
	return "", fmt.Errorf("expect unicode|bytestr; got %T", x)
}
