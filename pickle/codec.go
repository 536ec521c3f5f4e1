package pickle

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
)

// decodeLong converts little-endian two's-complement bytes to a big integer.
// Zero length yields 0.
func decodeLong(data []byte) *big.Int {
	n := len(data)
	v := new(big.Int)
	if n == 0 {
		return v
	}

	// big.Int wants big-endian
	be := make([]byte, n)
	for i, b := range data {
		be[n-1-i] = b
	}
	v.SetBytes(be)

	if data[n-1] >= 0x80 {
		// negative: subtract 2^(8n)
		offset := new(big.Int).Lsh(big.NewInt(1), uint(8*n))
		v.Sub(v, offset)
	}
	return v
}

// asInt shrinks a big integer to int64 when it fits, keeping small numbers
// in the machine-word representation.
func asInt(v *big.Int) any {
	if v.IsInt64() {
		return v.Int64()
	}
	return v
}

// pydecodeStringEscape decodes input according to the "string-escape" Python
// codec, yielding raw bytes.
//
// The codec is essentially defined here:
// https://github.com/python/cpython/blob/v2.7.15-198-g69d0bc1430d/Objects/stringobject.c#L600
func pydecodeStringEscape(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))

loop:
	for {
		r, width := utf8.DecodeRuneInString(s)
		if width == 0 {
			break
		}

		// regular character
		if r != '\\' {
			out = append(out, s[:width]...)
			s = s[width:]
			continue
		}

		if len(s) < 2 {
			return nil, strconv.ErrSyntax
		}

		switch c := s[1]; c {
		// \ LF -> just skip
		case '\n':
			s = s[2:]
			continue loop

		// \\ -> \
		case '\\':
			out = append(out, '\\')
			s = s[2:]
			continue loop

		// \' \"  (yes, both quotes are allowed to be escaped).
		//
		// also: both quotes are allowed to be _unescaped_ - e.g. Python
		// unpickles "S'hel'lo'\n." as "hel'lo".
		case '\'', '"':
			out = append(out, c)
			s = s[2:]
			continue loop

		// \c (any character without special meaning) -> \ and proceed with c
		default:
			out = append(out, '\\')
			s = s[1:]
			continue loop

		// escapes we handle (NOTE no \u \U for byte strings)
		case 'b', 'f', 't', 'n', 'r', 'v', 'a': // control characters
		case '0', '1', '2', '3', '4', '5', '6', '7': // octals
		case 'x': // hex
		}

		// s starts with a known escape prefix -> reuse unquoteChar
		r, _, tail, err := strconv.UnquoteChar(s, 0)
		if err != nil {
			return nil, err
		}

		// all escapes above produce a single byte, so append it
		// directly instead of playing rune -> UTF-8 games (which
		// break on e.g. "\x80" -> "" = "\xc2\x80").
		c := byte(r)
		if r != rune(c) {
			return nil, fmt.Errorf("string-escape: non-byte escaped rune %q", r)
		}

		out = append(out, c)
		s = tail
	}

	return out, nil
}

// pydecodeRawUnicodeEscape decodes input according to the
// "raw-unicode-escape" Python codec: \uXXXX and \UXXXXXXXX escapes are
// resolved, everything else maps byte-for-byte like latin-1.
func pydecodeRawUnicodeEscape(data []byte) (string, error) {
	var b strings.Builder
	b.Grow(len(data))

	for i := 0; i < len(data); {
		c := data[i]
		if c != '\\' || i+1 >= len(data) {
			b.WriteRune(rune(c))
			i++
			continue
		}

		var ndigits int
		switch data[i+1] {
		case 'u':
			ndigits = 4
		case 'U':
			ndigits = 8
		default:
			b.WriteRune(rune(c))
			i++
			continue
		}

		start := i + 2
		if start+ndigits > len(data) {
			return "", fmt.Errorf("raw-unicode-escape: truncated \\%c escape", data[i+1])
		}
		v, err := strconv.ParseUint(string(data[start:start+ndigits]), 16, 32)
		if err != nil {
			return "", fmt.Errorf("raw-unicode-escape: bad \\%c escape", data[i+1])
		}
		if v > utf8.MaxRune {
			return "", fmt.Errorf("raw-unicode-escape: rune out of range")
		}
		b.WriteRune(rune(v))
		i = start + ndigits
	}

	return b.String(), nil
}

// pySurrogatePass mirrors Python's 'surrogatepass' UTF-8 decoding: the bytes
// are taken as-is, and CESU-style surrogate pairs are folded back into the
// characters they encode. Go strings tolerate the raw bytes either way.
func pySurrogatePass(data []byte) string {
	// fast path: plain UTF-8 with no encoded surrogates
	if !strings.Contains(string(data), "\xed") {
		return string(data)
	}

	var b strings.Builder
	b.Grow(len(data))
	s := string(data)
	for i := 0; i < len(s); {
		r1, w1 := utf8.DecodeRuneInString(s[i:])
		if r1 == utf8.RuneError && w1 == 1 {
			// encoded surrogate half comes out of DecodeRune as
			// an error; dig it out by hand
			if h, ok := decodeSurrogate(s[i:]); ok {
				if l, ok2 := decodeSurrogate(s[i+3:]); ok2 && utf16.IsSurrogate(l) && l >= 0xDC00 {
					b.WriteRune(utf16.DecodeRune(h, l))
					i += 6
					continue
				}
				b.WriteRune(h)
				i += 3
				continue
			}
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteRune(r1)
		i += w1
	}
	return b.String()
}

// decodeSurrogate decodes a 3-byte UTF-8-style encoding of a UTF-16
// surrogate half at the start of s.
func decodeSurrogate(s string) (rune, bool) {
	if len(s) < 3 {
		return 0, false
	}
	if s[0] != 0xed || s[1]&0xc0 != 0x80 || s[2]&0xc0 != 0x80 {
		return 0, false
	}
	r := rune(s[0]&0x0f)<<12 | rune(s[1]&0x3f)<<6 | rune(s[2]&0x3f)
	if !utf16.IsSurrogate(r) {
		return 0, false
	}
	return r, true
}

// decodeString decodes bytes from the legacy string opcodes per the
// machine's encoding/errors configuration.
//
// encoding "bytes" keeps the payload as Bytes; every other encoding yields a
// ByteString carrying the decoded text.
func decodeString(data []byte, encoding, errmode string) (any, error) {
	switch strings.ToLower(encoding) {
	case "bytes":
		return Bytes(data), nil

	case "ascii", "us-ascii":
		for _, c := range data {
			if c >= 0x80 {
				if errmode == "strict" {
					return nil, fmt.Errorf("'ascii' codec can't decode byte 0x%02x", c)
				}
				return ByteString(replaceNonASCII(data)), nil
			}
		}
		return ByteString(data), nil

	case "utf-8", "utf8":
		if !utf8.Valid(data) {
			if errmode == "strict" {
				return nil, fmt.Errorf("'utf-8' codec can't decode input")
			}
			return ByteString(strings.ToValidUTF8(string(data), "�")), nil
		}
		return ByteString(data), nil
	}

	enc, err := ianaindex.IANA.Encoding(encoding)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown string encoding %q", encoding)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if errmode == "strict" {
			return nil, fmt.Errorf("%q codec can't decode input: %w", encoding, err)
		}
		return ByteString(strings.ToValidUTF8(string(data), "�")), nil
	}
	return ByteString(decoded), nil
}

func replaceNonASCII(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 0x80 {
			b.WriteRune('�')
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}
