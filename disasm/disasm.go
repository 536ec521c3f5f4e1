// Package disasm renders a pickle stream as a human-readable instruction
// listing, in the style of pickletools.dis.
//
// The listing is produced by a linear scan over the same opcode metadata
// table the virtual machine dispatches on, so every opcode the machine can
// execute disassembles, and an opcode the machine would reject stops the
// listing with a positioned error.
package disasm

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/pickledbg/pickledbg/pickle"
)

// Line is one disassembled instruction.
type Line struct {
	Addr int64  // stream offset of the opcode byte
	Code byte   // the opcode
	Name string // its mnemonic
	Arg  string // rendered operand, empty when the opcode has none
}

// Text renders the line in listing form. Every line begins "<address>:".
func (l Line) Text() string {
	text := fmt.Sprintf("%d: %-4s %-16s", l.Addr, opChar(l.Code), l.Name)
	if l.Arg != "" {
		text += " " + l.Arg
	}
	return text
}

func opChar(code byte) string {
	if code >= 0x20 && code < 0x7f {
		return string(rune(code))
	}
	return fmt.Sprintf("\\x%02x", code)
}

// Error reports where and why disassembly stopped.
type Error struct {
	Pos  int64
	Code byte
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("disasm: at position %d: %v", e.Pos, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	errUnknownOpcode = fmt.Errorf("unknown opcode")
	errTruncated     = fmt.Errorf("stream truncated inside operand")
)

// Disassemble scans data and returns one Line per instruction.
//
// Scanning stops after STOP at top level is not required: the whole input
// is listed, which lets the debugger show trailing instructions of streams
// that carry several pickles. An unknown opcode or an operand running past
// the end of data returns the lines scanned so far along with an *Error.
func Disassemble(data []byte) ([]Line, error) {
	var lines []Line
	s := scanner{data: data}

	for !s.done() {
		addr := s.pos
		code := s.data[s.pos]
		s.pos++

		name, kind, ok := pickle.OpcodeInfo(code)
		if !ok {
			return lines, &Error{Pos: addr, Code: code, Err: errUnknownOpcode}
		}
		arg, err := s.scanArg(kind)
		if err != nil {
			return lines, &Error{Pos: addr, Code: code, Err: err}
		}
		lines = append(lines, Line{Addr: addr, Code: code, Name: name, Arg: arg})
	}
	return lines, nil
}

type scanner struct {
	data []byte
	pos  int64
}

func (s *scanner) done() bool {
	return s.pos >= int64(len(s.data))
}

func (s *scanner) take(n int64) ([]byte, error) {
	if int64(len(s.data))-s.pos < n {
		return nil, errTruncated
	}
	b := s.data[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

func (s *scanner) takeLine() ([]byte, error) {
	for i := s.pos; i < int64(len(s.data)); i++ {
		if s.data[i] == '\n' {
			line := s.data[s.pos:i]
			s.pos = i + 1
			return line, nil
		}
	}
	return nil, errTruncated
}

func (s *scanner) scanArg(kind pickle.ArgKind) (string, error) {
	switch kind {
	case pickle.ArgNone:
		return "", nil

	case pickle.ArgUint1:
		b, err := s.take(1)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(int(b[0])), nil

	case pickle.ArgUint2:
		b, err := s.take(2)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(int(binary.LittleEndian.Uint16(b))), nil

	case pickle.ArgInt4:
		b, err := s.take(4)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(int(int32(binary.LittleEndian.Uint32(b)))), nil

	case pickle.ArgUint4:
		b, err := s.take(4)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(b)), 10), nil

	case pickle.ArgUint8:
		b, err := s.take(8)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(binary.LittleEndian.Uint64(b), 10), nil

	case pickle.ArgFloat8:
		b, err := s.take(8)
		if err != nil {
			return "", err
		}
		f := math.Float64frombits(binary.BigEndian.Uint64(b))
		return strconv.FormatFloat(f, 'g', -1, 64), nil

	case pickle.ArgLine:
		line, err := s.takeLine()
		if err != nil {
			return "", err
		}
		return string(line), nil

	case pickle.ArgStringLine, pickle.ArgUnicodeLine:
		line, err := s.takeLine()
		if err != nil {
			return "", err
		}
		return pickle.PyQuote(string(line)), nil

	case pickle.ArgTwoLines:
		module, err := s.takeLine()
		if err != nil {
			return "", err
		}
		name, err := s.takeLine()
		if err != nil {
			return "", err
		}
		return string(module) + " " + string(name), nil

	case pickle.ArgBytes1, pickle.ArgBytesI4, pickle.ArgBytesU4, pickle.ArgBytesU8:
		payload, err := s.counted(kind)
		if err != nil {
			return "", err
		}
		return pickle.PyQuote(string(payload)), nil

	case pickle.ArgLong1, pickle.ArgLong4:
		payload, err := s.counted(kind)
		if err != nil {
			return "", err
		}
		return longString(payload), nil
	}
	return "", fmt.Errorf("unhandled operand kind %d", kind)
}

// counted reads a length-prefixed operand payload.
func (s *scanner) counted(kind pickle.ArgKind) ([]byte, error) {
	var n int64
	switch kind {
	case pickle.ArgBytes1, pickle.ArgLong1:
		b, err := s.take(1)
		if err != nil {
			return nil, err
		}
		n = int64(b[0])
	case pickle.ArgBytesI4, pickle.ArgLong4:
		b, err := s.take(4)
		if err != nil {
			return nil, err
		}
		v := int32(binary.LittleEndian.Uint32(b))
		if v < 0 {
			return nil, fmt.Errorf("negative byte count %d", v)
		}
		n = int64(v)
	case pickle.ArgBytesU4:
		b, err := s.take(4)
		if err != nil {
			return nil, err
		}
		n = int64(binary.LittleEndian.Uint32(b))
	case pickle.ArgBytesU8:
		b, err := s.take(8)
		if err != nil {
			return nil, err
		}
		u := binary.LittleEndian.Uint64(b)
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("byte count %d exceeds maximum object size", u)
		}
		n = int64(u)
	}
	return s.take(n)
}

// longString renders a little-endian two's-complement payload in decimal.
func longString(data []byte) string {
	n := len(data)
	if n == 0 {
		return "0"
	}
	be := make([]byte, n)
	for i, b := range data {
		be[n-1-i] = b
	}
	v := new(big.Int).SetBytes(be)
	if data[n-1] >= 0x80 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(8*n)))
	}
	return v.String()
}
