package pickle

// Opcodes
const (
	// Protocol 0

	opMark           byte = '(' // push special markobject on stack
	opStop           byte = '.' // every pickle ends with STOP
	opPop            byte = '0' // discard topmost stack item
	opPopMark        byte = '1' // discard stack top through topmost markobject
	opDup            byte = '2' // duplicate top stack item
	opFloat          byte = 'F' // push float object; decimal string argument
	opInt            byte = 'I' // push integer or bool; decimal string argument
	opLong           byte = 'L' // push long; decimal string argument
	opNone           byte = 'N' // push None
	opPersid         byte = 'P' // push persistent object; id is taken from string arg
	opReduce         byte = 'R' // apply callable to argtuple, both on stack
	opString         byte = 'S' // push string; NL-terminated string argument
	opUnicode        byte = 'V' // push Unicode string; raw-unicode-escaped argument
	opAppend         byte = 'a' // append stack top to list below it
	opBuild          byte = 'b' // call __setstate__ or __dict__.update()
	opGlobal         byte = 'c' // push self.find_class(modname, name); 2 string args
	opDict           byte = 'd' // build a dict from stack items
	opGet            byte = 'g' // push item from memo on stack; index is string arg
	opInst           byte = 'i' // build & push class instance
	opList           byte = 'l' // build list from topmost stack items
	opPut            byte = 'p' // store stack top in memo; index is string arg
	opSetitem        byte = 's' // add key+value pair to dict
	opTuple          byte = 't' // build tuple from topmost stack items

	opTrue  = "I01\n" // not an opcode; INT special token for True
	opFalse = "I00\n" // not an opcode; INT special token for False

	// Protocol 1

	opBinint         byte = 'J' // push four-byte signed int
	opBinint1        byte = 'K' // push 1-byte unsigned int
	opBinint2        byte = 'M' // push 2-byte unsigned int
	opBinpersid      byte = 'Q' // push persistent object; id is taken from stack
	opBinstring      byte = 'T' // push string; counted binary string argument
	opShortBinstring byte = 'U' //  "     "   ;    "      "       "      " < 256 bytes
	opBinunicode     byte = 'X' // push Unicode string; counted UTF-8 string argument
	opAppends        byte = 'e' // extend list on stack by topmost stack slice
	opBinget         byte = 'h' // push item from memo on stack; index is 1-byte arg
	opLongBinget     byte = 'j' //  "    "    "    "    "   "  ;   "    " 4-byte arg
	opEmptyList      byte = ']' // push empty list
	opEmptyTuple     byte = ')' // push empty tuple
	opEmptyDict      byte = '}' // push empty dict
	opObj            byte = 'o' // build & push class instance
	opBinput         byte = 'q' // store stack top in memo; index is 1-byte arg
	opLongBinput     byte = 'r' //   "     "    "   "   " ;   "    " 4-byte arg
	opSetitems       byte = 'u' // modify dict by adding topmost key+value pairs
	opBinfloat       byte = 'G' // push float; arg is 8-byte float encoding

	// Protocol 2

	opProto    byte = '\x80' // identify pickle protocol
	opNewobj   byte = '\x81' // build object by applying cls.__new__ to argtuple
	opExt1     byte = '\x82' // push object from extension registry; 1-byte index
	opExt2     byte = '\x83' // ditto, but 2-byte index
	opExt4     byte = '\x84' // ditto, but 4-byte index
	opTuple1   byte = '\x85' // build 1-tuple from stack top
	opTuple2   byte = '\x86' // build 2-tuple from two topmost stack items
	opTuple3   byte = '\x87' // build 3-tuple from three topmost stack items
	opNewtrue  byte = '\x88' // push True
	opNewfalse byte = '\x89' // push False
	opLong1    byte = '\x8a' // push long from < 256 bytes
	opLong4    byte = '\x8b' // push really big long

	// Protocol 3

	opBinbytes      byte = 'B' // push bytes; counted binary string argument
	opShortBinbytes byte = 'C' //   "    "  ;    "      "       "  < 256 bytes

	// Protocol 4

	opShortBinunicode byte = '\x8c' // push short string; UTF-8 length < 256 bytes
	opBinunicode8     byte = '\x8d' // push very long string
	opBinbytes8       byte = '\x8e' // push very long bytes string
	opEmptySet        byte = '\x8f' // push empty set on the stack
	opAdditems        byte = '\x90' // modify set by adding topmost stack items
	opFrozenset       byte = '\x91' // build frozenset from topmost stack items
	opNewobjEx        byte = '\x92' // like NEWOBJ but work with keyword only arguments
	opStackGlobal     byte = '\x93' // same as GLOBAL but using names on the stacks
	opMemoize         byte = '\x94' // store top of the stack in memo
	opFrame           byte = '\x95' // indicate the beginning of a new frame

	// Protocol 5

	opBytearray8     byte = '\x96' // push bytearray
	opNextBuffer     byte = '\x97' // push next out-of-band buffer
	opReadonlyBuffer byte = '\x98' // make top of stack readonly
)

// highestProtocol is the highest protocol version the machine understands.
const highestProtocol = 5

// ArgKind describes the wire layout of an opcode's operand, shared between
// the machine and the disassembler.
type ArgKind int

const (
	ArgNone     ArgKind = iota
	ArgUint1            // u8
	ArgUint2            // u16 LE
	ArgInt4             // i32 LE
	ArgUint4            // u32 LE
	ArgUint8            // u64 LE
	ArgFloat8           // 8 bytes big-endian IEEE-754
	ArgLine             // bytes up to and including 0x0A
	ArgStringLine       // line holding a quoted string
	ArgUnicodeLine      // line holding raw-unicode-escape text
	ArgTwoLines         // two consecutive lines (module, name)
	ArgBytes1           // u8 length then bytes
	ArgBytesI4          // i32 LE length then bytes
	ArgBytesU4          // u32 LE length then bytes
	ArgBytesU8          // u64 LE length then bytes
	ArgLong1            // u8 length then little-endian 2's-complement bytes
	ArgLong4            // i32 LE length then little-endian 2's-complement bytes
)

// opInfo is one entry of the dense dispatch table.
type opInfo struct {
	name    string
	arg     ArgKind
	handler func(*Machine) error
}

// opTable maps every opcode byte to its handler and wire metadata. Entries
// left zero are unknown opcodes.
var opTable [256]opInfo

func init() {
	for _, e := range []struct {
		code byte
		info opInfo
	}{
		{opMark, opInfo{"MARK", ArgNone, (*Machine).loadMark}},
		{opStop, opInfo{"STOP", ArgNone, (*Machine).loadStop}},
		{opPop, opInfo{"POP", ArgNone, (*Machine).loadPop}},
		{opPopMark, opInfo{"POP_MARK", ArgNone, (*Machine).loadPopMark}},
		{opDup, opInfo{"DUP", ArgNone, (*Machine).loadDup}},
		{opFloat, opInfo{"FLOAT", ArgLine, (*Machine).loadFloat}},
		{opInt, opInfo{"INT", ArgLine, (*Machine).loadInt}},
		{opBinint, opInfo{"BININT", ArgInt4, (*Machine).loadBinInt}},
		{opBinint1, opInfo{"BININT1", ArgUint1, (*Machine).loadBinInt1}},
		{opLong, opInfo{"LONG", ArgLine, (*Machine).loadLong}},
		{opBinint2, opInfo{"BININT2", ArgUint2, (*Machine).loadBinInt2}},
		{opNone, opInfo{"NONE", ArgNone, (*Machine).loadNone}},
		{opPersid, opInfo{"PERSID", ArgLine, (*Machine).loadPersid}},
		{opBinpersid, opInfo{"BINPERSID", ArgNone, (*Machine).loadBinPersid}},
		{opReduce, opInfo{"REDUCE", ArgNone, (*Machine).reduce}},
		{opString, opInfo{"STRING", ArgStringLine, (*Machine).loadString}},
		{opBinstring, opInfo{"BINSTRING", ArgBytesI4, (*Machine).loadBinString}},
		{opShortBinstring, opInfo{"SHORT_BINSTRING", ArgBytes1, (*Machine).loadShortBinString}},
		{opUnicode, opInfo{"UNICODE", ArgUnicodeLine, (*Machine).loadUnicode}},
		{opBinunicode, opInfo{"BINUNICODE", ArgBytesU4, (*Machine).loadBinUnicode}},
		{opAppend, opInfo{"APPEND", ArgNone, (*Machine).loadAppend}},
		{opBuild, opInfo{"BUILD", ArgNone, (*Machine).build}},
		{opGlobal, opInfo{"GLOBAL", ArgTwoLines, (*Machine).global}},
		{opDict, opInfo{"DICT", ArgNone, (*Machine).loadDict}},
		{opEmptyDict, opInfo{"EMPTY_DICT", ArgNone, (*Machine).loadEmptyDict}},
		{opAppends, opInfo{"APPENDS", ArgNone, (*Machine).loadAppends}},
		{opGet, opInfo{"GET", ArgLine, (*Machine).get}},
		{opBinget, opInfo{"BINGET", ArgUint1, (*Machine).binGet}},
		{opInst, opInfo{"INST", ArgTwoLines, (*Machine).inst}},
		{opLongBinget, opInfo{"LONG_BINGET", ArgUint4, (*Machine).longBinGet}},
		{opList, opInfo{"LIST", ArgNone, (*Machine).loadList}},
		{opEmptyList, opInfo{"EMPTY_LIST", ArgNone, (*Machine).loadEmptyList}},
		{opObj, opInfo{"OBJ", ArgNone, (*Machine).obj}},
		{opPut, opInfo{"PUT", ArgLine, (*Machine).loadPut}},
		{opBinput, opInfo{"BINPUT", ArgUint1, (*Machine).binPut}},
		{opLongBinput, opInfo{"LONG_BINPUT", ArgUint4, (*Machine).longBinPut}},
		{opSetitem, opInfo{"SETITEM", ArgNone, (*Machine).loadSetItem}},
		{opTuple, opInfo{"TUPLE", ArgNone, (*Machine).loadTuple}},
		{opEmptyTuple, opInfo{"EMPTY_TUPLE", ArgNone, (*Machine).loadEmptyTuple}},
		{opSetitems, opInfo{"SETITEMS", ArgNone, (*Machine).loadSetItems}},
		{opBinfloat, opInfo{"BINFLOAT", ArgFloat8, (*Machine).binFloat}},

		{opProto, opInfo{"PROTO", ArgUint1, (*Machine).loadProto}},
		{opNewobj, opInfo{"NEWOBJ", ArgNone, (*Machine).newObj}},
		{opExt1, opInfo{"EXT1", ArgUint1, (*Machine).loadExt1}},
		{opExt2, opInfo{"EXT2", ArgUint2, (*Machine).loadExt2}},
		{opExt4, opInfo{"EXT4", ArgInt4, (*Machine).loadExt4}},
		{opTuple1, opInfo{"TUPLE1", ArgNone, (*Machine).loadTuple1}},
		{opTuple2, opInfo{"TUPLE2", ArgNone, (*Machine).loadTuple2}},
		{opTuple3, opInfo{"TUPLE3", ArgNone, (*Machine).loadTuple3}},
		{opNewtrue, opInfo{"NEWTRUE", ArgNone, (*Machine).loadTrue}},
		{opNewfalse, opInfo{"NEWFALSE", ArgNone, (*Machine).loadFalse}},
		{opLong1, opInfo{"LONG1", ArgLong1, (*Machine).loadLong1}},
		{opLong4, opInfo{"LONG4", ArgLong4, (*Machine).loadLong4}},

		{opBinbytes, opInfo{"BINBYTES", ArgBytesU4, (*Machine).loadBinBytes}},
		{opShortBinbytes, opInfo{"SHORT_BINBYTES", ArgBytes1, (*Machine).loadShortBinBytes}},

		{opShortBinunicode, opInfo{"SHORT_BINUNICODE", ArgBytes1, (*Machine).loadShortBinUnicode}},
		{opBinunicode8, opInfo{"BINUNICODE8", ArgBytesU8, (*Machine).loadBinUnicode8}},
		{opBinbytes8, opInfo{"BINBYTES8", ArgBytesU8, (*Machine).loadBinBytes8}},
		{opEmptySet, opInfo{"EMPTY_SET", ArgNone, (*Machine).loadEmptySet}},
		{opAdditems, opInfo{"ADDITEMS", ArgNone, (*Machine).loadAddItems}},
		{opFrozenset, opInfo{"FROZENSET", ArgNone, (*Machine).loadFrozenSet}},
		{opNewobjEx, opInfo{"NEWOBJ_EX", ArgNone, (*Machine).newObjEx}},
		{opStackGlobal, opInfo{"STACK_GLOBAL", ArgNone, (*Machine).stackGlobal}},
		{opMemoize, opInfo{"MEMOIZE", ArgNone, (*Machine).loadMemoize}},
		{opFrame, opInfo{"FRAME", ArgUint8, (*Machine).loadFrame}},

		{opBytearray8, opInfo{"BYTEARRAY8", ArgBytesU8, (*Machine).loadByteArray8}},
		{opNextBuffer, opInfo{"NEXT_BUFFER", ArgNone, (*Machine).loadNextBuffer}},
		{opReadonlyBuffer, opInfo{"READONLY_BUFFER", ArgNone, (*Machine).loadReadonlyBuffer}},
	} {
		opTable[e.code] = e.info
	}
}

// OpcodeInfo reports the mnemonic and operand layout of an opcode byte.
// ok is false for bytes that have no handler.
func OpcodeInfo(code byte) (name string, arg ArgKind, ok bool) {
	e := opTable[code]
	if e.handler == nil {
		return "", ArgNone, false
	}
	return e.name, e.arg, true
}
