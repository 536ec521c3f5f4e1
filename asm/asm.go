// Package asm builds pickle streams opcode by opcode.
//
// It exists to hand-author test pickles: each constructor emits the exact
// wire bytes of one instruction, and Build concatenates them into a stream.
// Nothing here serializes Go objects; the caller picks the opcodes.
//
//	p := asm.Build(
//		asm.Proto(4),
//		asm.EmptyList(),
//		asm.Mark(),
//		asm.BinInt1(1), asm.BinInt1(2), asm.BinInt1(3),
//		asm.Appends(),
//		asm.Stop(),
//	)
package asm

import (
	"encoding/binary"
	"math"
	"math/big"
	"strconv"
)

// Wire opcodes.
const (
	opMark           byte = '('
	opStop           byte = '.'
	opPop            byte = '0'
	opPopMark        byte = '1'
	opDup            byte = '2'
	opFloat          byte = 'F'
	opBinfloat       byte = 'G'
	opInt            byte = 'I'
	opBinint         byte = 'J'
	opBinint1        byte = 'K'
	opLong           byte = 'L'
	opBinint2        byte = 'M'
	opNone           byte = 'N'
	opPersid         byte = 'P'
	opBinpersid      byte = 'Q'
	opReduce         byte = 'R'
	opString         byte = 'S'
	opBinstring      byte = 'T'
	opShortBinstring byte = 'U'
	opUnicode        byte = 'V'
	opBinunicode     byte = 'X'
	opAppend         byte = 'a'
	opBuild          byte = 'b'
	opGlobal         byte = 'c'
	opDict           byte = 'd'
	opAppends        byte = 'e'
	opGet            byte = 'g'
	opBinget         byte = 'h'
	opInst           byte = 'i'
	opLongBinget     byte = 'j'
	opList           byte = 'l'
	opObj            byte = 'o'
	opPut            byte = 'p'
	opBinput         byte = 'q'
	opLongBinput     byte = 'r'
	opSetitem        byte = 's'
	opTuple          byte = 't'
	opSetitems       byte = 'u'
	opEmptyList      byte = ']'
	opEmptyTuple     byte = ')'
	opEmptyDict      byte = '}'
	opBinbytes       byte = 'B'
	opShortBinbytes  byte = 'C'

	opProto           byte = 0x80
	opNewobj          byte = 0x81
	opExt1            byte = 0x82
	opExt2            byte = 0x83
	opExt4            byte = 0x84
	opTuple1          byte = 0x85
	opTuple2          byte = 0x86
	opTuple3          byte = 0x87
	opNewtrue         byte = 0x88
	opNewfalse        byte = 0x89
	opLong1           byte = 0x8a
	opLong4           byte = 0x8b
	opShortBinunicode byte = 0x8c
	opBinunicode8     byte = 0x8d
	opBinbytes8       byte = 0x8e
	opEmptySet        byte = 0x8f
	opAdditems        byte = 0x90
	opFrozenset       byte = 0x91
	opNewobjEx        byte = 0x92
	opStackGlobal     byte = 0x93
	opMemoize         byte = 0x94
	opFrame           byte = 0x95
	opBytearray8      byte = 0x96
	opNextBuffer      byte = 0x97
	opReadonlyBuffer  byte = 0x98
)

// Build concatenates instruction chunks into one stream.
func Build(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// Raw passes arbitrary bytes through, for authoring deliberately malformed
// streams.
func Raw(b ...byte) []byte { return b }

func op(code byte, operand ...byte) []byte {
	return append([]byte{code}, operand...)
}

func line(code byte, text string) []byte {
	return append(append([]byte{code}, text...), '\n')
}

func u16le(v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return b[:]
}

func u32le(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func u64le(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// ---- framing and protocol ----

func Proto(v byte) []byte { return op(opProto, v) }
func Stop() []byte        { return op(opStop) }

// Frame emits FRAME sized to payload, followed by payload itself.
func Frame(payload []byte) []byte {
	return append(op(opFrame, u64le(uint64(len(payload)))...), payload...)
}

// FrameHeader emits a bare FRAME with an explicit size, for malformed
// framing tests.
func FrameHeader(size uint64) []byte { return op(opFrame, u64le(size)...) }

// ---- stack manipulation ----

func Mark() []byte    { return op(opMark) }
func Pop() []byte     { return op(opPop) }
func PopMark() []byte { return op(opPopMark) }
func Dup() []byte     { return op(opDup) }

// ---- constants ----

func None() []byte     { return op(opNone) }
func NewTrue() []byte  { return op(opNewtrue) }
func NewFalse() []byte { return op(opNewfalse) }

// Int emits the text form; booleans use the 00/01 special tokens.
func Int(v int64) []byte { return line(opInt, strconv.FormatInt(v, 10)) }

func IntBool(v bool) []byte {
	if v {
		return line(opInt, "01")
	}
	return line(opInt, "00")
}

func BinInt(v int32) []byte   { return op(opBinint, u32le(uint32(v))...) }
func BinInt1(v byte) []byte   { return op(opBinint1, v) }
func BinInt2(v uint16) []byte { return op(opBinint2, u16le(v)...) }

func Long(v int64) []byte { return line(opLong, strconv.FormatInt(v, 10)+"L") }

// Long1 emits the counted little-endian two's-complement encoding.
func Long1(v *big.Int) []byte {
	data := encodeLong(v)
	return append(op(opLong1, byte(len(data))), data...)
}

func Long4(v *big.Int) []byte {
	data := encodeLong(v)
	return append(op(opLong4, u32le(uint32(len(data)))...), data...)
}

func Float(v float64) []byte {
	return line(opFloat, strconv.FormatFloat(v, 'g', -1, 64))
}

func BinFloat(v float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return op(opBinfloat, b[:]...)
}

// ---- strings and bytes ----

// String emits the quoted text form. The caller must not include newlines.
func String(s string) []byte { return line(opString, "'"+s+"'") }

func BinString(s string) []byte {
	return append(op(opBinstring, u32le(uint32(len(s)))...), s...)
}

func ShortBinString(s string) []byte {
	return append(op(opShortBinstring, byte(len(s))), s...)
}

// Unicode emits the raw-unicode-escape text form. The caller must not
// include newlines or backslash-u sequences that are not meant as escapes.
func Unicode(s string) []byte { return line(opUnicode, s) }

func BinUnicode(s string) []byte {
	return append(op(opBinunicode, u32le(uint32(len(s)))...), s...)
}

func BinUnicode8(s string) []byte {
	return append(op(opBinunicode8, u64le(uint64(len(s)))...), s...)
}

func ShortBinUnicode(s string) []byte {
	return append(op(opShortBinunicode, byte(len(s))), s...)
}

func BinBytes(b []byte) []byte {
	return append(op(opBinbytes, u32le(uint32(len(b)))...), b...)
}

func BinBytes8(b []byte) []byte {
	return append(op(opBinbytes8, u64le(uint64(len(b)))...), b...)
}

func ShortBinBytes(b []byte) []byte {
	return append(op(opShortBinbytes, byte(len(b))), b...)
}

func ByteArray8(b []byte) []byte {
	return append(op(opBytearray8, u64le(uint64(len(b)))...), b...)
}

func NextBuffer() []byte     { return op(opNextBuffer) }
func ReadonlyBuffer() []byte { return op(opReadonlyBuffer) }

// ---- aggregates ----

func EmptyList() []byte  { return op(opEmptyList) }
func EmptyTuple() []byte { return op(opEmptyTuple) }
func EmptyDict() []byte  { return op(opEmptyDict) }
func EmptySet() []byte   { return op(opEmptySet) }
func List() []byte       { return op(opList) }
func Tuple() []byte      { return op(opTuple) }
func Tuple1() []byte     { return op(opTuple1) }
func Tuple2() []byte     { return op(opTuple2) }
func Tuple3() []byte     { return op(opTuple3) }
func Dict() []byte       { return op(opDict) }
func FrozenSet() []byte  { return op(opFrozenset) }
func Append() []byte     { return op(opAppend) }
func Appends() []byte    { return op(opAppends) }
func SetItem() []byte    { return op(opSetitem) }
func SetItems() []byte   { return op(opSetitems) }
func AddItems() []byte   { return op(opAdditems) }

// ---- memo ----

func Put(i int) []byte         { return line(opPut, strconv.Itoa(i)) }
func BinPut(i byte) []byte     { return op(opBinput, i) }
func LongBinPut(i uint32) []byte { return op(opLongBinput, u32le(i)...) }
func Get(i int) []byte         { return line(opGet, strconv.Itoa(i)) }
func BinGet(i byte) []byte     { return op(opBinget, i) }
func LongBinGet(i uint32) []byte { return op(opLongBinget, u32le(i)...) }
func Memoize() []byte          { return op(opMemoize) }

// ---- resolution and construction ----

func Global(module, name string) []byte {
	out := line(opGlobal, module)
	return append(out, append([]byte(name), '\n')...)
}

func Inst(module, name string) []byte {
	out := line(opInst, module)
	return append(out, append([]byte(name), '\n')...)
}

func StackGlobal() []byte { return op(opStackGlobal) }
func Reduce() []byte      { return op(opReduce) }
func NewObj() []byte      { return op(opNewobj) }
func NewObjEx() []byte    { return op(opNewobjEx) }
func Obj() []byte         { return op(opObj) }
func BuildOp() []byte     { return op(opBuild) }

func Ext1(code byte) []byte   { return op(opExt1, code) }
func Ext2(code uint16) []byte { return op(opExt2, u16le(code)...) }
func Ext4(code int32) []byte  { return op(opExt4, u32le(uint32(code))...) }

// ---- persistent references ----

func Persid(id string) []byte { return line(opPersid, id) }
func BinPersid() []byte       { return op(opBinpersid) }

// ---- encoding helpers ----

// encodeLong is the inverse of the machine's long decoding: minimal
// little-endian two's-complement bytes, empty for zero.
func encodeLong(v *big.Int) []byte {
	if v.Sign() == 0 {
		return nil
	}

	if v.Sign() > 0 {
		data := reverse(v.Bytes())
		if data[len(data)-1] >= 0x80 {
			data = append(data, 0)
		}
		return data
	}

	// negative: emit v + 2^(8n) for the smallest n that keeps the sign bit
	nbytes := (v.BitLen() + 7) / 8
	if nbytes == 0 {
		nbytes = 1
	}
	for {
		offset := new(big.Int).Lsh(big.NewInt(1), uint(8*nbytes))
		enc := new(big.Int).Add(v, offset)
		data := reverse(enc.Bytes())
		for len(data) < nbytes {
			data = append(data, 0)
		}
		if data[len(data)-1] >= 0x80 {
			return data
		}
		nbytes++
	}
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}
