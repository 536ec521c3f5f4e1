package pickle

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
)

func bigInt(s string) *big.Int {
	i := new(big.Int)
	if _, ok := i.SetString(s, 10); !ok {
		panic("bigInt")
	}
	return i
}

func loadData(t *testing.T, data string, config *Config) (any, error) {
	t.Helper()
	if config == nil {
		config = &Config{}
	}
	return NewMachineWithConfig(bytes.NewReader([]byte(data)), config).Load()
}

// decodeTest is one stream that must decode to a particular value.
type decodeTest struct {
	name string
	data string
	want any
}

var decodeTests = []decodeTest{
	{"empty-list", "].", NewList()},
	{"empty-tuple", ").", Tuple{}},
	{"empty-dict", "}.", NewDict()},
	{"empty-set", "\x8f.", NewSet()},
	{"none", "N.", None{}},
	{"newtrue", "\x88.", true},
	{"newfalse", "\x89.", false},

	{"int", "I5\n.", int64(5)},
	{"int-negative", "I-5\n.", int64(-5)},
	{"int-true", "I01\n.", true},
	{"int-false", "I00\n.", false},
	{"int-big", "I123456789012345678901234567890\n.", bigInt("123456789012345678901234567890")},
	{"binint", "J\xfe\xff\xff\xff.", int64(-2)},
	{"binint1", "\x80\x04K\x2a.", int64(42)},
	{"binint2", "M\x39\x05.", int64(1337)},
	{"long", "L123L\n.", int64(123)},
	{"long-no-suffix", "L123\n.", int64(123)},
	{"long1", "\x8a\x01\xff.", int64(-1)},
	{"long1-empty", "\x8a\x00.", int64(0)},
	{"long1-big", "\x8a\x09\x00\x00\x00\x00\x00\x00\x00\x00\x01.", bigInt("18446744073709551616")},
	{"long4", "\x8b\x02\x00\x00\x00\x39\x30.", int64(12345)},

	{"float", "F1.5\n.", 1.5},
	{"binfloat", "G\x3f\xf8\x00\x00\x00\x00\x00\x00.", 1.5},
	{"binfloat-negative", "G\xbf\xf0\x00\x00\x00\x00\x00\x00.", -1.0},

	{"string", "S'abc'\n.", ByteString("abc")},
	{"string-dquote", "S\"abc\"\n.", ByteString("abc")},
	{"string-escape", "S'a\\x41\\n'\n.", ByteString("aA\n")},
	{"string-inner-quote", "S'hel'lo'\n.", ByteString("hel'lo")},
	{"binstring", "T\x03\x00\x00\x00abc.", ByteString("abc")},
	{"short-binstring", "U\x03abc.", ByteString("abc")},
	{"binbytes", "B\x03\x00\x00\x00abc.", Bytes("abc")},
	{"binbytes8", "\x8e\x03\x00\x00\x00\x00\x00\x00\x00abc.", Bytes("abc")},
	{"short-binbytes", "C\x03abc.", Bytes("abc")},
	{"unicode", "Vabc\\u0041\n.", "abcA"},
	{"binunicode", "X\x03\x00\x00\x00abc.", "abc"},
	{"binunicode8", "\x8d\x03\x00\x00\x00\x00\x00\x00\x00abc.", "abc"},
	{"short-binunicode", "\x80\x04\x8c\x03foo.", "foo"},
	{"bytearray8", "\x96\x03\x00\x00\x00\x00\x00\x00\x00abc.", NewByteArray([]byte("abc"))},

	{"tuple1", "K\x01\x85.", Tuple{int64(1)}},
	{"tuple2", "K\x01K\x02\x86.", Tuple{int64(1), int64(2)}},
	{"tuple3", "K\x01K\x02K\x03\x87.", Tuple{int64(1), int64(2), int64(3)}},
	{"tuple-mark", "(K\x01K\x02t.", Tuple{int64(1), int64(2)}},
	{"list-mark", "(K\x01l.", NewList(int64(1))},
	{"dict-mark", "(K\x01K\x02d.", NewDictWithData(int64(1), int64(2))},
	{"frozenset", "(K\x01K\x02\x91.", NewFrozenSet(int64(1), int64(2))},
	{"additems", "\x8f(K\x01K\x02\x90.", NewSet(int64(1), int64(2))},
	{"append", "]K\x07a.", NewList(int64(7))},
	{"appends", "\x80\x04](K\x01K\x02K\x03e.", NewList(int64(1), int64(2), int64(3))},
	{"setitem", "}K\x01K\x02s.", NewDictWithData(int64(1), int64(2))},
	{"setitems", "\x80\x04}q\x00(K\x01K\x02u.", NewDictWithData(int64(1), int64(2))},
	{"dict-proto0", "(dp0\nS'abc'\np1\nI1\ns.", NewDictWithData(ByteString("abc"), int64(1))},
	{"nested", "]](K\x01K\x02e(K\x03t\x86a.",
		NewList(Tuple{NewList(int64(1), int64(2)), Tuple{int64(3)}})},

	{"pop", "K\x01K\x020.", int64(1)},
	{"pop-mark", "K\x01(K\x021.", int64(1)},
	{"pop-empty-pops-mark", "K\x01(0.", int64(1)},
	{"dup", "(K\x012t.", Tuple{int64(1), int64(1)}},

	{"put-get", "K\x05p1\ng1\n\x86.", Tuple{int64(5), int64(5)}},
	{"binput-binget", "K\x05q\x01h\x01\x86.", Tuple{int64(5), int64(5)}},
	{"long-binput-binget", "K\x05r\x01\x00\x00\x00j\x01\x00\x00\x00\x86.", Tuple{int64(5), int64(5)}},
	{"memoize", "\x80\x04\x8c\x03foo\x94h\x00\x85.", Tuple{"foo"}},
	{"memoize-after-gap", "K\x01p5\n\x94g1\n\x86.", Tuple{int64(1), int64(1)}},

	{"global", "cos\nsystem\n.", Class{Module: "os", Name: "system"}},
	{"global-compat-module", "c__builtin__\nset\n.", Class{Module: "builtins", Name: "set"}},
	{"global-compat-name", "c__builtin__\nxrange\n.", Class{Module: "builtins", Name: "range"}},
	{"global-no-compat-proto4", "\x80\x04c__builtin__\nset\n.", Class{Module: "__builtin__", Name: "set"}},
	{"stack-global", "\x80\x04\x8c\x02os\x8c\x06system\x93.", Class{Module: "os", Name: "system"}},
	{"reduce-symbolic", "cos\nsystem\n\x8c\x02ls\x85R.",
		Call{Callable: Class{Module: "os", Name: "system"}, Args: Tuple{"ls"}}},

	{"proto5", "\x80\x05N.", None{}},

	// FRAME around the payload must not change the value
	{"framed-binint1", "\x80\x04\x95\x02\x00\x00\x00\x00\x00\x00\x00K\x2a.", int64(42)},
	{"framed-all", "\x80\x04\x95\x08\x00\x00\x00\x00\x00\x00\x00](K\x01K\x02e.", NewList(int64(1), int64(2))},
	{"frame-then-tail", "\x80\x04\x95\x04\x00\x00\x00\x00\x00\x00\x00](K\x65e.", NewList(int64(101))},
}

func TestDecode(t *testing.T) {
	for _, tt := range decodeTests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := loadData(t, tt.data, nil)
			if err != nil {
				t.Fatalf("Load(%q): %v", tt.data, err)
			}
			if !deepEqual(v, tt.want) {
				t.Errorf("Load(%q) = %#v; want %#v", tt.data, v, tt.want)
			}
		})
	}
}

// TestDecodeDeterminism: two independent runs of the same stream produce
// equal values.
func TestDecodeDeterminism(t *testing.T) {
	for _, tt := range decodeTests {
		v1, err1 := loadData(t, tt.data, nil)
		v2, err2 := loadData(t, tt.data, nil)
		if err1 != nil || err2 != nil {
			t.Fatalf("%s: %v / %v", tt.name, err1, err2)
		}
		if !deepEqual(v1, v2) {
			t.Errorf("%s: runs disagree: %#v != %#v", tt.name, v1, v2)
		}
	}
}

// errTest is one stream that must fail in a particular way.
type errTest struct {
	name string
	data string
	kind ErrorKind
	is   error // optional sentinel the error must wrap
}

var errTests = []errTest{
	{"stop-empty", ".", SemanticError, ErrStackUnderflow},
	{"unknown-opcode", "\xff.", SemanticError, nil},
	{"truncated-operand", "K", FormatError, ErrTruncated},
	{"truncated-line", "I123", FormatError, ErrTruncated},
	{"truncated-counted", "U\x05ab", FormatError, ErrTruncated},
	{"empty-input", "", FormatError, ErrTruncated},
	{"bad-proto", "\x80\x09.", SemanticError, ErrBadProtocol},
	{"long4-negative", "\x8b\xff\xff\xff\xffX.", SemanticError, ErrNegativeLength},
	{"binstring-negative", "T\xff\xff\xff\xffabc.", SemanticError, ErrNegativeLength},
	{"string-unquoted", "Sabc\n.", FormatError, nil},
	{"string-mismatched-quotes", "S'abc\"\n.", FormatError, nil},
	{"int-garbage", "Iabc\n.", FormatError, nil},
	{"get-missing", "g0\n.", SemanticError, ErrMemoKey},
	{"binget-missing", "h\x00.", SemanticError, ErrMemoKey},
	{"put-negative", "K\x01p-1\n.", SemanticError, ErrNegativeIndex},
	{"put-empty-stack", "p0\n.", SemanticError, ErrStackUnderflow},
	{"tuple1-underflow", "\x85.", SemanticError, ErrStackUnderflow},
	{"append-underflow", "a.", SemanticError, ErrStackUnderflow},
	{"append-non-list", "K\x01K\x02a.", TypeError, nil},
	{"setitem-non-dict", "]K\x01K\x02s.", TypeError, nil},
	{"additems-non-set", "](K\x01\x90.", TypeError, nil},
	{"tuple-no-mark", "t.", SemanticError, ErrNoMark},
	{"appends-no-mark", "]e.", SemanticError, ErrNoMark},
	{"pop-mark-missing", "1.", SemanticError, ErrNoMark},
	{"dict-odd-items", "(K\x01d.", SemanticError, nil},
	{"setitems-odd", "}(K\x01u.", SemanticError, nil},
	{"stack-global-non-str", "K\x01K\x02\x93.", TypeError, nil},
	{"reduce-non-tuple", "cos\nsystem\nK\x01R.", TypeError, nil},
	{"newobj-non-tuple", "cos\nsystem\nK\x01\x81.", TypeError, nil},
	{"build-non-instance", "K\x01}b.", TypeError, nil},
	{"obj-empty-mark", "(o.", SemanticError, ErrStackUnderflow},
	{"persid-no-handler", "Pfoo\n.", PolicyError, ErrNoPersistentLoad},
	{"binpersid-no-handler", "K\x01Q.", PolicyError, ErrNoPersistentLoad},
	{"next-buffer-no-source", "\x97.", PolicyError, ErrNoBuffers},
	{"readonly-buffer-non-buffer", "K\x01\x98.", TypeError, nil},
	{"ext-zero", "\x82\x00.", SemanticError, ErrExtensionCode},
	{"ext4-negative", "\x84\xff\xff\xff\xff.", SemanticError, ErrExtensionCode},
	{"ext-unregistered", "\x82\x63.", SemanticError, ErrExtensionUnknown},
	{"frame-short", "\x95\x10\x00\x00\x00\x00\x00\x00\x00K\x01.", FormatError, ErrTruncated},
	{"frame-exhausted-mid-operand", "\x95\x02\x00\x00\x00\x00\x00\x00\x00M\x39\x05.", FormatError, ErrFrameExhausted},
	{"nested-frame", "\x95\x0a\x00\x00\x00\x00\x00\x00\x00\x95\x01\x00\x00\x00\x00\x00\x00\x00N.", FormatError, ErrNestedFrame},
	{"frozenset-unhashable-member", "(]\x91.", TypeError, nil},
	{"dict-unhashable-key", "(]K\x01d.", TypeError, nil},
}

func TestDecodeErrors(t *testing.T) {
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadData(t, tt.data, nil)
			if err == nil {
				t.Fatalf("Load(%q) succeeded; want %v error", tt.data, tt.kind)
			}
			var merr *MachineError
			if !errors.As(err, &merr) {
				t.Fatalf("Load(%q) error %T; want *MachineError", tt.data, err)
			}
			if merr.Kind != tt.kind {
				t.Errorf("Load(%q) error kind %v; want %v (err: %v)", tt.data, merr.Kind, tt.kind, err)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Load(%q) error %v does not wrap %v", tt.data, err, tt.is)
			}
		})
	}
}

// TestMachineErrorContext: the reported error carries the address and
// opcode of the failing instruction, and the machine state stays
// observable.
func TestMachineErrorContext(t *testing.T) {
	m := NewMachine(bytes.NewReader([]byte("K\x01g7\n.")))
	_, err := m.Load()
	var merr *MachineError
	if !errors.As(err, &merr) {
		t.Fatalf("unexpected error type %T", err)
	}
	if merr.Pos != 2 {
		t.Errorf("error position = %d; want 2", merr.Pos)
	}
	if merr.Code != 'g' {
		t.Errorf("error opcode = %q; want 'g'", merr.Code)
	}
	if m.Status() != StatusFailed {
		t.Errorf("status = %v; want failed", m.Status())
	}
	if len(m.Stack()) != 1 {
		t.Errorf("stack not observable after failure: %v", m.Stack())
	}
}

// TestMemoIdentity: a memoized container and its memo entry are the same
// object, so mutations through one path are visible through the other.
func TestMemoIdentity(t *testing.T) {
	m := NewMachine(bytes.NewReader([]byte("]q\x00K\x07ah\x00.")))
	v, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	l, ok := v.(*List)
	if !ok {
		t.Fatalf("result is %T; want *List", v)
	}
	if !deepEqual(v, NewList(int64(7))) {
		t.Fatalf("result = %v; want [7]", v)
	}
	if m.Memo()[0] != any(l) {
		t.Error("memo[0] is not the same object as the result")
	}

	l.Append(int64(8))
	if got := m.Memo()[0].(*List).Len(); got != 2 {
		t.Errorf("mutation not visible through memo: len %d; want 2", got)
	}
}

// TestMemoCycle: a list can contain itself via the memo.
func TestMemoCycle(t *testing.T) {
	v, err := loadData(t, "]q\x00h\x00a.", nil)
	if err != nil {
		t.Fatal(err)
	}
	l := v.(*List)
	if l.Len() != 1 || l.Items[0] != any(l) {
		t.Errorf("list does not contain itself: %#v", l.Items)
	}
}

// TestMarkBalance: a successful load leaves no saved stacks and an empty
// operand stack (STOP consumed the single remaining value).
func TestMarkBalance(t *testing.T) {
	for _, tt := range decodeTests {
		m := NewMachine(bytes.NewReader([]byte(tt.data)))
		if _, err := m.Load(); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(m.MetaStack()) != 0 {
			t.Errorf("%s: metastack not empty at STOP", tt.name)
		}
		if len(m.Stack()) != 0 {
			t.Errorf("%s: stack not fully consumed at STOP", tt.name)
		}
	}
}

// TestOpcodeCoverage: every opcode byte either dispatches or reports the
// unknown-opcode error; nothing silently no-ops.
func TestOpcodeCoverage(t *testing.T) {
	known := 0
	for code := 0; code < 256; code++ {
		_, _, ok := OpcodeInfo(byte(code))
		if ok {
			known++
			continue
		}
		_, err := loadData(t, string([]byte{byte(code)}), nil)
		var operr *OpcodeError
		if !errors.As(err, &operr) {
			t.Errorf("opcode 0x%02x: error %v; want OpcodeError", code, err)
		}
	}
	if known != 68 {
		t.Errorf("dispatch table has %d entries; want 68", known)
	}
}

func TestStep(t *testing.T) {
	m := NewMachine(bytes.NewReader([]byte("\x80\x04K\x2a.")))

	if err := m.Step(); err != nil { // PROTO
		t.Fatal(err)
	}
	if m.Proto() != 4 {
		t.Errorf("proto = %d; want 4", m.Proto())
	}
	if err := m.Step(); err != nil { // BININT1
		t.Fatal(err)
	}
	if len(m.Stack()) != 1 {
		t.Fatalf("stack = %v; want one item", m.Stack())
	}
	if m.Status() != StatusRunning {
		t.Fatalf("status = %v; want running", m.Status())
	}
	if err := m.Step(); err != nil { // STOP
		t.Fatal(err)
	}
	if m.Status() != StatusStopped {
		t.Fatalf("status = %v; want stopped", m.Status())
	}
	v, err := m.Result()
	if err != nil || v != any(int64(42)) {
		t.Fatalf("result = %v, %v; want 42", v, err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Step on a stopped machine did not panic")
		}
	}()
	m.Step()
}

func TestStepAddresses(t *testing.T) {
	m := NewMachine(bytes.NewReader([]byte("\x80\x04K\x2a.")))
	wantPos := []int64{2, 4, 5}
	for i, want := range wantPos {
		if err := m.Step(); err != nil {
			t.Fatal(err)
		}
		if m.Pos() != want {
			t.Errorf("after step %d: pos = %d; want %d", i+1, m.Pos(), want)
		}
	}
}

// ---- strings under encoding configs ----

func TestStringEncodings(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		data   string
		want   any
		fail   bool
	}{
		{"bytes-keeps-raw", Config{Encoding: "bytes"}, "U\x03a\xffc.", Bytes("a\xffc"), false},
		{"ascii-strict-rejects", Config{}, "U\x03a\xffc.", nil, true},
		{"ascii-ok", Config{}, "U\x03abc.", ByteString("abc"), false},
		{"latin1", Config{Encoding: "latin1"}, "U\x02\xc3\xa9.", ByteString("Ã©"), false},
		{"utf8", Config{Encoding: "utf-8"}, "U\x02\xc3\xa9.", ByteString("é"), false},
		{"utf8-strict-rejects", Config{Encoding: "utf-8"}, "U\x01\xff.", nil, true},
		{"utf8-replace", Config{Encoding: "utf-8", Errors: "replace"}, "U\x01\xff.", ByteString("�"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := loadData(t, tt.data, &tt.config)
			if tt.fail {
				if err == nil {
					t.Fatalf("Load(%q) = %#v; want error", tt.data, v)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !deepEqual(v, tt.want) {
				t.Errorf("Load(%q) = %#v; want %#v", tt.data, v, tt.want)
			}
		})
	}
}

// ---- persistent references ----

func TestPersistentLoad(t *testing.T) {
	config := &Config{
		PersistentLoad: func(ref Ref) (any, error) {
			return Tuple{"loaded", ref.Pid}, nil
		},
	}

	v, err := loadData(t, "Pfoo\n.", config)
	if err != nil {
		t.Fatal(err)
	}
	if !deepEqual(v, Tuple{"loaded", "foo"}) {
		t.Errorf("PERSID result = %#v", v)
	}

	v, err = loadData(t, "\x80\x04\x8c\x03oidQ.", config)
	if err != nil {
		t.Fatal(err)
	}
	if !deepEqual(v, Tuple{"loaded", "oid"}) {
		t.Errorf("BINPERSID result = %#v", v)
	}
}

func TestPersistentLoadKeepRef(t *testing.T) {
	config := &Config{
		PersistentLoad: func(ref Ref) (any, error) { return nil, nil },
	}
	v, err := loadData(t, "Pfoo\n.", config)
	if err != nil {
		t.Fatal(err)
	}
	if !deepEqual(v, Ref{Pid: "foo"}) {
		t.Errorf("result = %#v; want Ref", v)
	}
}

// ---- out-of-band buffers ----

func TestNextBuffer(t *testing.T) {
	config := &Config{Buffers: Buffers([]byte("abc"), []byte("def"))}
	v, err := loadData(t, "\x97\x98.", config)
	if err != nil {
		t.Fatal(err)
	}
	buf, ok := v.(*Buffer)
	if !ok {
		t.Fatalf("result is %T; want *Buffer", v)
	}
	if string(buf.Data) != "abc" || !buf.ReadOnly {
		t.Errorf("buffer = %v; want readonly abc", buf)
	}

	// second machine with an exhausted iterator
	config = &Config{Buffers: Buffers()}
	_, err = loadData(t, "\x97.", config)
	if !errors.Is(err, ErrBuffersExhausted) {
		t.Errorf("exhausted iterator error = %v", err)
	}
}
