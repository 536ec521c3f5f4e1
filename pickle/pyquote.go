package pickle

import (
	"strconv"
	"unicode/utf8"
)

// PyQuote, similarly to strconv.Quote, quotes s with " but does not use
// "\u" and "\U" inside.
//
// Printable runes are kept as they are, backslash and double quote are
// backslash-escaped, and control characters below space use their short
// escape (e.g. \n). Every other byte, including invalid UTF-8 and the
// bytes of non-printable runes, is written as a \xNN escape.
func PyQuote(s string) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, len(s))

	for {
		r, width := utf8.DecodeRuneInString(s)
		if width == 0 {
			break
		}

		emitRaw := false

		switch {
		// invalid & everything else goes in numeric byte escapes
		case r == utf8.RuneError:
			fallthrough
		default:
			emitRaw = true

		case r == '\\' || r == '"':
			out = append(out, '\\', byte(r))

		case strconv.IsPrint(r):
			out = append(out, s[:width]...)

		case r < ' ':
			rq := strconv.QuoteRune(r) // e.g. "'\n'"
			rq = rq[1 : len(rq)-1]     // ->   `\n`
			out = append(out, rq...)
		}

		if emitRaw {
			for i := 0; i < width; i++ {
				out = append(out, '\\', 'x', hexdigits[s[i]>>4], hexdigits[s[i]&0xf])
			}
		}

		s = s[width:]
	}

	return "\"" + string(out) + "\""
}
