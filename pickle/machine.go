package pickle

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
)

// Status is the machine's lifecycle state.
type Status int

const (
	// StatusRunning means the machine can execute more instructions.
	StatusRunning Status = iota
	// StatusStopped means STOP was executed and the result is available.
	StatusStopped
	// StatusFailed means an instruction failed; the error is available
	// and the stack, metastack and memo remain observable.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status %d", int(s))
}

// BufferIterator yields out-of-band buffers for the NEXT_BUFFER opcode, in
// the order the producer emitted them.
type BufferIterator interface {
	Next() (any, bool)
}

type bufferList struct {
	bufs []any
	i    int
}

func (b *bufferList) Next() (any, bool) {
	if b.i >= len(b.bufs) {
		return nil, false
	}
	v := b.bufs[b.i]
	b.i++
	return v, true
}

// Buffers returns a BufferIterator over bufs.
func Buffers(bufs ...any) BufferIterator {
	return &bufferList{bufs: bufs}
}

// Config tunes a Machine.
type Config struct {
	// NoFixImports disables the legacy py2->py3 name remap that is
	// otherwise applied on resolution when the protocol is < 3.
	NoFixImports bool

	// Encoding tells the machine how to decode byte strings from the
	// legacy STRING/BINSTRING/SHORT_BINSTRING opcodes. The literal
	// value "bytes" keeps them as Bytes. Default "ASCII".
	Encoding string

	// Errors is the decode error policy paired with Encoding: "strict"
	// (default) or "replace".
	Errors string

	// Buffers supplies out-of-band data for NEXT_BUFFER. A stream that
	// asks for a buffer while Buffers is nil fails with a policy error.
	Buffers BufferIterator

	// PersistentLoad, if not nil, resolves persistent references from
	// PERSID/BINPERSID. Without it, persistent IDs are a policy error.
	PersistentLoad func(ref Ref) (any, error)

	// Importer resolves (module, name) pairs for GLOBAL, STACK_GLOBAL,
	// EXT*, INST and OBJ. nil means SymbolicImporter.
	Importer Importer

	// AuditHook, if not nil, observes every symbol resolution before it
	// happens. A non-nil return aborts the resolution.
	AuditHook func(module, name string) error

	// ExtCache caches resolved extension codes. nil means the shared
	// process-wide cache.
	ExtCache *ExtCache
}

// Machine is the pickle virtual machine: a strictly sequential interpreter
// over one opcode stream.
//
// A Machine is not safe for concurrent use; the only resources shared
// between machines are the extension registry/cache and whatever the host's
// Importer exposes.
type Machine struct {
	r      *reader
	config Config

	stack     []any
	metastack [][]any
	memo      map[uint32]any
	proto     int

	status Status
	result any
	err    error

	opPos  int64 // address of the instruction being executed
	opCode byte
}

// NewMachine returns a machine reading the pickle stream from r, with
// default configuration.
func NewMachine(r io.Reader) *Machine {
	return NewMachineWithConfig(r, &Config{})
}

// NewMachineWithConfig is like NewMachine but with explicit configuration.
func NewMachineWithConfig(r io.Reader, config *Config) *Machine {
	cfg := *config
	if cfg.Encoding == "" {
		cfg.Encoding = "ASCII"
	}
	if cfg.Errors == "" {
		cfg.Errors = "strict"
	}
	if cfg.Importer == nil {
		cfg.Importer = SymbolicImporter()
	}
	if cfg.ExtCache == nil {
		cfg.ExtCache = defaultExtCache
	}
	return &Machine{
		r:      newReader(r),
		config: cfg,
		memo:   make(map[uint32]any),
	}
}

// Status reports whether the machine can still step.
func (m *Machine) Status() Status { return m.status }

// Result returns the value delivered by STOP, or the error the machine
// failed with. Calling Result on a running machine returns nil, nil.
func (m *Machine) Result() (any, error) {
	return m.result, m.err
}

// Stack exposes the operand stack, bottom first. The returned slice must
// not be modified.
func (m *Machine) Stack() []any { return m.stack }

// MetaStack exposes the saved stacks, oldest first.
func (m *Machine) MetaStack() [][]any { return m.metastack }

// Memo exposes the memo table. The returned map must not be modified.
func (m *Machine) Memo() map[uint32]any { return m.memo }

// Proto returns the protocol version declared by PROTO (0 until seen).
func (m *Machine) Proto() int { return m.proto }

// Pos returns the stream offset of the next instruction.
func (m *Machine) Pos() int64 { return m.r.pos }

// Step executes exactly one instruction.
//
// It returns nil when the instruction completed or delivered the final
// value (check Status for StatusStopped); it returns the load error when
// the instruction failed. Calling Step on a stopped or failed machine is a
// caller bug and panics.
func (m *Machine) Step() error {
	if m.status != StatusRunning {
		panic("pickle: Step called on a " + m.status.String() + " machine")
	}

	m.opPos = m.r.pos
	m.opCode = 0
	code, err := m.r.readByte()
	if err != nil {
		return m.fail(err)
	}
	m.opCode = code

	info := opTable[code]
	if info.handler == nil {
		return m.fail(errKind(SemanticError, &OpcodeError{Code: code, Pos: m.opPos}))
	}
	if err := info.handler(m); err != nil {
		return m.fail(err)
	}
	return nil
}

// fail records err against the current instruction and halts the machine.
func (m *Machine) fail(err error) error {
	werr := &MachineError{
		Kind: kindOfErr(err),
		Pos:  m.opPos,
		Code: m.opCode,
		Err:  unwrapKind(err),
	}
	m.status = StatusFailed
	m.err = werr
	return werr
}

func unwrapKind(err error) error {
	if ke, ok := err.(*kindError); ok {
		return ke.err
	}
	return err
}

// Run steps until STOP or failure.
func (m *Machine) Run() error {
	for m.status == StatusRunning {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Load runs the stream to completion and returns the value delivered by
// STOP.
func (m *Machine) Load() (any, error) {
	if err := m.Run(); err != nil {
		return nil, err
	}
	return m.result, nil
}

// ---- stack & memo primitives ----

func (m *Machine) push(v any) {
	m.stack = append(m.stack, v)
}

func (m *Machine) pop() (any, error) {
	ln := len(m.stack) - 1
	if ln < 0 {
		return nil, errKind(SemanticError, ErrStackUnderflow)
	}
	v := m.stack[ln]
	m.stack = m.stack[:ln]
	return v, nil
}

func (m *Machine) top() (any, error) {
	if len(m.stack) == 0 {
		return nil, errKind(SemanticError, ErrStackUnderflow)
	}
	return m.stack[len(m.stack)-1], nil
}

// popMark returns the items pushed since the last MARK and restores the
// stack saved by it.
func (m *Machine) popMark() ([]any, error) {
	ln := len(m.metastack) - 1
	if ln < 0 {
		return nil, errKind(SemanticError, ErrNoMark)
	}
	items := m.stack
	m.stack = m.metastack[ln]
	m.metastack = m.metastack[:ln]
	return items, nil
}

// catchUnhashable converts the hash panic raised for unhashable keys into a
// type error.
func catchUnhashable(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errKindf(TypeError, "%v", r)
		}
	}()
	f()
	return nil
}

// ---- framing and protocol ----

func (m *Machine) loadProto() error {
	v, err := m.r.readByte()
	if err != nil {
		return err
	}
	if v > highestProtocol {
		return errKindf(SemanticError, "%w: %d", ErrBadProtocol, v)
	}
	m.proto = int(v)
	return nil
}

func (m *Machine) loadFrame() error {
	b, err := m.r.read(8)
	if err != nil {
		return err
	}
	return m.r.loadFrame(binary.LittleEndian.Uint64(b))
}

func (m *Machine) loadStop() error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	m.status = StatusStopped
	m.result = v
	return nil
}

// ---- constants ----

func (m *Machine) loadNone() error {
	m.push(None{})
	return nil
}

func (m *Machine) loadTrue() error {
	m.push(true)
	return nil
}

func (m *Machine) loadFalse() error {
	m.push(false)
	return nil
}

func (m *Machine) loadInt() error {
	line, err := m.r.readLine()
	if err != nil {
		return err
	}

	switch string(line) {
	case opFalse[1:3]:
		m.push(false)
	case opTrue[1:3]:
		m.push(true)
	default:
		v, err := parseIntAuto(string(line))
		if err != nil {
			return errKindf(FormatError, "invalid INT argument %q", line)
		}
		m.push(v)
	}
	return nil
}

// parseIntAuto parses a base-autodetected integer of arbitrary size.
func parseIntAuto(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i, nil
	}
	v := new(big.Int)
	if _, ok := v.SetString(s, 0); !ok {
		return nil, strconv.ErrSyntax
	}
	return v, nil
}

func (m *Machine) loadBinInt() error {
	b, err := m.r.read(4)
	if err != nil {
		return err
	}
	m.push(int64(int32(binary.LittleEndian.Uint32(b))))
	return nil
}

func (m *Machine) loadBinInt1() error {
	b, err := m.r.readByte()
	if err != nil {
		return err
	}
	m.push(int64(b))
	return nil
}

func (m *Machine) loadBinInt2() error {
	b, err := m.r.read(2)
	if err != nil {
		return err
	}
	m.push(int64(binary.LittleEndian.Uint16(b)))
	return nil
}

func (m *Machine) loadLong() error {
	line, err := m.r.readLine()
	if err != nil {
		return err
	}
	l := len(line)
	if l > 0 && line[l-1] == 'L' {
		line = line[:l-1]
	}
	if len(line) == 0 {
		return errKindf(FormatError, "empty LONG argument")
	}
	v, err := parseIntAuto(string(line))
	if err != nil {
		return errKindf(FormatError, "invalid LONG argument %q", line)
	}
	m.push(v)
	return nil
}

func (m *Machine) loadLong1() error {
	n, err := m.r.readByte()
	if err != nil {
		return err
	}
	data, err := m.r.read(int(n))
	if err != nil {
		return err
	}
	m.push(asInt(decodeLong(data)))
	return nil
}

func (m *Machine) loadLong4() error {
	b, err := m.r.read(4)
	if err != nil {
		return err
	}
	n := int32(binary.LittleEndian.Uint32(b))
	if n < 0 {
		return errKindf(SemanticError, "LONG pickle has %w", ErrNegativeLength)
	}
	data, err := m.r.read(int(n))
	if err != nil {
		return err
	}
	m.push(asInt(decodeLong(data)))
	return nil
}

func (m *Machine) loadFloat() error {
	line, err := m.r.readLine()
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(string(line), 64)
	if err != nil {
		return errKindf(FormatError, "invalid FLOAT argument %q", line)
	}
	m.push(v)
	return nil
}

func (m *Machine) binFloat() error {
	b, err := m.r.read(8)
	if err != nil {
		return err
	}
	m.push(math.Float64frombits(binary.BigEndian.Uint64(b)))
	return nil
}

// ---- strings and bytes ----

func (m *Machine) loadString() error {
	line, err := m.r.readLine()
	if err != nil {
		return err
	}
	if len(line) < 2 || line[0] != line[len(line)-1] || (line[0] != '\'' && line[0] != '"') {
		return errKindf(FormatError, "the STRING opcode argument must be quoted")
	}
	raw, err := pydecodeStringEscape(string(line[1 : len(line)-1]))
	if err != nil {
		return errKindf(FormatError, "invalid STRING escape: %v", err)
	}
	return m.pushDecodedString(raw)
}

func (m *Machine) loadBinString() error {
	b, err := m.r.read(4)
	if err != nil {
		return err
	}
	n := int32(binary.LittleEndian.Uint32(b))
	if n < 0 {
		return errKindf(SemanticError, "BINSTRING pickle has %w", ErrNegativeLength)
	}
	data, err := m.r.read(int(n))
	if err != nil {
		return err
	}
	return m.pushDecodedString(data)
}

func (m *Machine) loadShortBinString() error {
	n, err := m.r.readByte()
	if err != nil {
		return err
	}
	data, err := m.r.read(int(n))
	if err != nil {
		return err
	}
	return m.pushDecodedString(data)
}

func (m *Machine) pushDecodedString(raw []byte) error {
	v, err := decodeString(raw, m.config.Encoding, m.config.Errors)
	if err != nil {
		return errKindf(FormatError, "%v", err)
	}
	m.push(v)
	return nil
}

func (m *Machine) readCounted(lenBytes int) ([]byte, error) {
	b, err := m.r.read(lenBytes)
	if err != nil {
		return nil, err
	}
	var n uint64
	switch lenBytes {
	case 1:
		n = uint64(b[0])
	case 4:
		n = uint64(binary.LittleEndian.Uint32(b))
	case 8:
		n = binary.LittleEndian.Uint64(b)
	}
	if n > maxSize {
		return nil, errKind(FormatError, ErrLengthTooLarge)
	}
	return m.r.read(int(n))
}

func (m *Machine) loadBinBytes() error {
	data, err := m.readCounted(4)
	if err != nil {
		return err
	}
	m.push(Bytes(data))
	return nil
}

func (m *Machine) loadShortBinBytes() error {
	data, err := m.readCounted(1)
	if err != nil {
		return err
	}
	m.push(Bytes(data))
	return nil
}

func (m *Machine) loadBinBytes8() error {
	data, err := m.readCounted(8)
	if err != nil {
		return err
	}
	m.push(Bytes(data))
	return nil
}

func (m *Machine) loadByteArray8() error {
	data, err := m.readCounted(8)
	if err != nil {
		return err
	}
	m.push(NewByteArray(data))
	return nil
}

func (m *Machine) loadUnicode() error {
	line, err := m.r.readLine()
	if err != nil {
		return err
	}
	s, err := pydecodeRawUnicodeEscape(line)
	if err != nil {
		return errKindf(FormatError, "%v", err)
	}
	m.push(s)
	return nil
}

func (m *Machine) loadBinUnicode() error {
	data, err := m.readCounted(4)
	if err != nil {
		return err
	}
	m.push(pySurrogatePass(data))
	return nil
}

func (m *Machine) loadBinUnicode8() error {
	data, err := m.readCounted(8)
	if err != nil {
		return err
	}
	m.push(pySurrogatePass(data))
	return nil
}

func (m *Machine) loadShortBinUnicode() error {
	data, err := m.readCounted(1)
	if err != nil {
		return err
	}
	m.push(pySurrogatePass(data))
	return nil
}

func (m *Machine) loadNextBuffer() error {
	if m.config.Buffers == nil {
		return errKind(PolicyError, ErrNoBuffers)
	}
	buf, ok := m.config.Buffers.Next()
	if !ok {
		return errKind(PolicyError, ErrBuffersExhausted)
	}
	if raw, isRaw := buf.([]byte); isRaw {
		buf = &Buffer{Data: raw}
	}
	m.push(buf)
	return nil
}

func (m *Machine) loadReadonlyBuffer() error {
	v, err := m.top()
	if err != nil {
		return err
	}
	switch b := v.(type) {
	case *Buffer:
		if !b.ReadOnly {
			m.stack[len(m.stack)-1] = &Buffer{Data: b.Data, ReadOnly: true}
		}
	case *ByteArray:
		m.stack[len(m.stack)-1] = &Buffer{Data: b.Data, ReadOnly: true}
	case Bytes:
		// already immutable
	default:
		return errKindf(TypeError, "READONLY_BUFFER requires a buffer, got %T", v)
	}
	return nil
}

// ---- aggregates ----

func (m *Machine) loadMark() error {
	m.metastack = append(m.metastack, m.stack)
	m.stack = nil
	return nil
}

func (m *Machine) loadPop() error {
	if len(m.stack) > 0 {
		m.stack = m.stack[:len(m.stack)-1]
		return nil
	}
	// an empty stack means the top item is the mark itself
	_, err := m.popMark()
	return err
}

func (m *Machine) loadPopMark() error {
	_, err := m.popMark()
	return err
}

func (m *Machine) loadDup() error {
	v, err := m.top()
	if err != nil {
		return err
	}
	m.push(v)
	return nil
}

func (m *Machine) loadEmptyTuple() error {
	m.push(Tuple{})
	return nil
}

func (m *Machine) loadEmptyList() error {
	m.push(NewList())
	return nil
}

func (m *Machine) loadEmptyDict() error {
	m.push(NewDict())
	return nil
}

func (m *Machine) loadEmptySet() error {
	m.push(NewSet())
	return nil
}

func (m *Machine) loadTuple() error {
	items, err := m.popMark()
	if err != nil {
		return err
	}
	m.push(Tuple(items))
	return nil
}

func (m *Machine) loadTupleN(n int) error {
	if len(m.stack) < n {
		return errKind(SemanticError, ErrStackUnderflow)
	}
	k := len(m.stack) - n
	t := append(Tuple{}, m.stack[k:]...)
	m.stack = append(m.stack[:k], t)
	return nil
}

func (m *Machine) loadTuple1() error { return m.loadTupleN(1) }
func (m *Machine) loadTuple2() error { return m.loadTupleN(2) }
func (m *Machine) loadTuple3() error { return m.loadTupleN(3) }

func (m *Machine) loadList() error {
	items, err := m.popMark()
	if err != nil {
		return err
	}
	m.push(NewList(items...))
	return nil
}

func (m *Machine) loadDict() error {
	items, err := m.popMark()
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return errKindf(SemanticError, "DICT requires an even number of items, got %d", len(items))
	}
	d := NewDictWithSizeHint(len(items) / 2)
	if err := catchUnhashable(func() {
		for i := 0; i < len(items); i += 2 {
			d.Set(items[i], items[i+1])
		}
	}); err != nil {
		return err
	}
	m.push(d)
	return nil
}

func (m *Machine) loadFrozenSet() error {
	items, err := m.popMark()
	if err != nil {
		return err
	}
	var f FrozenSet
	if err := catchUnhashable(func() { f = NewFrozenSet(items...) }); err != nil {
		return err
	}
	m.push(f)
	return nil
}

func (m *Machine) loadAppend() error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	target, err := m.top()
	if err != nil {
		return err
	}
	switch l := target.(type) {
	case *List:
		l.Append(v)
	case Appender:
		l.Append(v)
	default:
		return errKindf(TypeError, "APPEND expected a list, got %T", target)
	}
	return nil
}

func (m *Machine) loadAppends() error {
	items, err := m.popMark()
	if err != nil {
		return err
	}
	target, err := m.top()
	if err != nil {
		return err
	}
	switch l := target.(type) {
	case *List:
		l.Items = append(l.Items, items...)
	case Appender:
		for _, v := range items {
			l.Append(v)
		}
	default:
		return errKindf(TypeError, "APPENDS expected a list, got %T", target)
	}
	return nil
}

func (m *Machine) loadSetItem() error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	k, err := m.pop()
	if err != nil {
		return err
	}
	target, err := m.top()
	if err != nil {
		return err
	}
	switch d := target.(type) {
	case Dict:
		return catchUnhashable(func() { d.Set(k, v) })
	case ItemSetter:
		d.Set(k, v)
	default:
		return errKindf(TypeError, "SETITEM expected a dict, got %T", target)
	}
	return nil
}

func (m *Machine) loadSetItems() error {
	items, err := m.popMark()
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return errKindf(SemanticError, "SETITEMS requires an even number of items, got %d", len(items))
	}
	target, err := m.top()
	if err != nil {
		return err
	}
	switch d := target.(type) {
	case Dict:
		return catchUnhashable(func() {
			for i := 0; i < len(items); i += 2 {
				d.Set(items[i], items[i+1])
			}
		})
	case ItemSetter:
		for i := 0; i < len(items); i += 2 {
			d.Set(items[i], items[i+1])
		}
	default:
		return errKindf(TypeError, "SETITEMS expected a dict, got %T", target)
	}
	return nil
}

func (m *Machine) loadAddItems() error {
	items, err := m.popMark()
	if err != nil {
		return err
	}
	target, err := m.top()
	if err != nil {
		return err
	}
	switch s := target.(type) {
	case Set:
		return catchUnhashable(func() {
			for _, v := range items {
				s.Add(v)
			}
		})
	case ItemAdder:
		for _, v := range items {
			s.Add(v)
		}
	default:
		return errKindf(TypeError, "ADDITEMS expected a set, got %T", target)
	}
	return nil
}

// ---- memo ----

func (m *Machine) memoGet(i int64) error {
	if i >= 0 && i <= math.MaxUint32 {
		if v, ok := m.memo[uint32(i)]; ok {
			m.push(v)
			return nil
		}
	}
	return errKindf(SemanticError, "%w at index %d", ErrMemoKey, i)
}

func (m *Machine) memoPut(i int64) error {
	if i < 0 {
		return errKindf(SemanticError, "%w: %d", ErrNegativeIndex, i)
	}
	v, err := m.top()
	if err != nil {
		return err
	}
	m.memo[uint32(i)] = v
	return nil
}

func (m *Machine) get() error {
	line, err := m.r.readLine()
	if err != nil {
		return err
	}
	i, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return errKindf(FormatError, "invalid GET argument %q", line)
	}
	return m.memoGet(i)
}

func (m *Machine) binGet() error {
	b, err := m.r.readByte()
	if err != nil {
		return err
	}
	return m.memoGet(int64(b))
}

func (m *Machine) longBinGet() error {
	b, err := m.r.read(4)
	if err != nil {
		return err
	}
	return m.memoGet(int64(binary.LittleEndian.Uint32(b)))
}

func (m *Machine) loadPut() error {
	line, err := m.r.readLine()
	if err != nil {
		return err
	}
	i, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return errKindf(FormatError, "invalid PUT argument %q", line)
	}
	return m.memoPut(i)
}

func (m *Machine) binPut() error {
	b, err := m.r.readByte()
	if err != nil {
		return err
	}
	return m.memoPut(int64(b))
}

func (m *Machine) longBinPut() error {
	b, err := m.r.read(4)
	if err != nil {
		return err
	}
	i := int64(binary.LittleEndian.Uint32(b))
	// a u32 cannot exceed the maximum object size on 64-bit platforms;
	// the check stays for parity with the reference machine
	if uint64(i) > maxSize {
		return errKindf(SemanticError, "%w: %d", ErrNegativeIndex, i)
	}
	return m.memoPut(i)
}

func (m *Machine) loadMemoize() error {
	// the next sequential index is the current size, even if earlier
	// PUTs left gaps
	return m.memoPut(int64(len(m.memo)))
}

// ---- persistent references ----

func (m *Machine) loadPersid() error {
	line, err := m.r.readLine()
	if err != nil {
		return err
	}
	for _, c := range line {
		if c >= 0x80 {
			return errKindf(FormatError, "persistent IDs in protocol 0 must be ASCII strings")
		}
	}
	return m.handleRef(Ref{Pid: string(line)})
}

func (m *Machine) loadBinPersid() error {
	pid, err := m.pop()
	if err != nil {
		return err
	}
	return m.handleRef(Ref{Pid: pid})
}

func (m *Machine) handleRef(ref Ref) error {
	load := m.config.PersistentLoad
	if load == nil {
		return errKind(PolicyError, ErrNoPersistentLoad)
	}
	obj, err := load(ref)
	if err != nil {
		return errKindf(ResolutionError, "persistent load: %v", err)
	}
	if obj == nil {
		// the callback asked to keep the reference as is
		obj = ref
	}
	m.push(obj)
	return nil
}

// ---- resolution and construction ----

// findClass resolves (module, name) through the configured importer,
// applying the audit hook and the legacy remap first.
func (m *Machine) findClass(module, name string) (any, error) {
	if hook := m.config.AuditHook; hook != nil {
		if err := hook(module, name); err != nil {
			return nil, errKindf(ResolutionError, "audit: %v", err)
		}
	}
	if m.proto < 3 && !m.config.NoFixImports {
		module, name = fixImports(module, name)
	}
	mod, err := m.config.Importer.ImportModule(module)
	if err != nil {
		return nil, errKindf(ResolutionError, "import %s: %v", module, err)
	}
	v, err := m.config.Importer.Lookup(mod, name, m.proto)
	if err != nil {
		return nil, errKindf(ResolutionError, "%v", err)
	}
	return v, nil
}

func (m *Machine) global() error {
	module, err := m.r.readLine()
	if err != nil {
		return err
	}
	smodule := string(module)
	name, err := m.r.readLine()
	if err != nil {
		return err
	}
	v, err := m.findClass(smodule, string(name))
	if err != nil {
		return err
	}
	m.push(v)
	return nil
}

func (m *Machine) stackGlobal() error {
	xname, err := m.pop()
	if err != nil {
		return err
	}
	xmodule, err := m.pop()
	if err != nil {
		return err
	}
	name, ok := xname.(string)
	if !ok {
		return errKindf(TypeError, "STACK_GLOBAL requires str, got %T", xname)
	}
	module, ok := xmodule.(string)
	if !ok {
		return errKindf(TypeError, "STACK_GLOBAL requires str, got %T", xmodule)
	}
	v, err := m.findClass(module, name)
	if err != nil {
		return err
	}
	m.push(v)
	return nil
}

func (m *Machine) loadExt1() error {
	b, err := m.r.readByte()
	if err != nil {
		return err
	}
	return m.getExtension(int(b))
}

func (m *Machine) loadExt2() error {
	b, err := m.r.read(2)
	if err != nil {
		return err
	}
	return m.getExtension(int(binary.LittleEndian.Uint16(b)))
}

func (m *Machine) loadExt4() error {
	b, err := m.r.read(4)
	if err != nil {
		return err
	}
	return m.getExtension(int(int32(binary.LittleEndian.Uint32(b))))
}

func (m *Machine) getExtension(code int) error {
	if code <= 0 {
		return errKind(SemanticError, ErrExtensionCode)
	}
	if v, ok := m.config.ExtCache.get(code); ok {
		m.push(v)
		return nil
	}
	key, ok := lookupExtension(code)
	if !ok {
		return errKindf(SemanticError, "%w %d", ErrExtensionUnknown, code)
	}
	v, err := m.findClass(key.Module, key.Name)
	if err != nil {
		return err
	}
	m.config.ExtCache.put(code, v)
	m.push(v)
	return nil
}

func (m *Machine) reduce() error {
	xargs, err := m.pop()
	if err != nil {
		return err
	}
	callable, err := m.top()
	if err != nil {
		return err
	}
	args, ok := xargs.(Tuple)
	if !ok {
		return errKindf(TypeError, "REDUCE requires an argument tuple, got %T", xargs)
	}

	if c, ok := callable.(Callable); ok {
		v, err := c.Call(args)
		if err != nil {
			return errKindf(ConstructionError, "in %v: %v", callable, err)
		}
		m.stack[len(m.stack)-1] = v
		return nil
	}
	m.stack[len(m.stack)-1] = Call{Callable: callable, Args: args}
	return nil
}

func (m *Machine) newObj() error {
	xargs, err := m.pop()
	if err != nil {
		return err
	}
	cls, err := m.pop()
	if err != nil {
		return err
	}
	args, ok := xargs.(Tuple)
	if !ok {
		return errKindf(TypeError, "NEWOBJ requires an argument tuple, got %T", xargs)
	}
	if n, ok := cls.(Newable); ok {
		v, err := n.New(args)
		if err != nil {
			return errKindf(ConstructionError, "in %v.__new__: %v", cls, err)
		}
		m.push(v)
		return nil
	}
	m.push(NewObject(cls, args))
	return nil
}

func (m *Machine) newObjEx() error {
	xkw, err := m.pop()
	if err != nil {
		return err
	}
	xargs, err := m.pop()
	if err != nil {
		return err
	}
	cls, err := m.pop()
	if err != nil {
		return err
	}
	kw, ok := xkw.(Dict)
	if !ok {
		return errKindf(TypeError, "NEWOBJ_EX requires a keyword dict, got %T", xkw)
	}
	args, ok := xargs.(Tuple)
	if !ok {
		return errKindf(TypeError, "NEWOBJ_EX requires an argument tuple, got %T", xargs)
	}

	switch c := cls.(type) {
	case NewableEx:
		v, err := c.NewEx(args, kw)
		if err != nil {
			return errKindf(ConstructionError, "in %v.__new__: %v", cls, err)
		}
		m.push(v)
	case Newable:
		if kw.Len() != 0 {
			return errKindf(ConstructionError, "%v does not accept keyword arguments", cls)
		}
		v, err := c.New(args)
		if err != nil {
			return errKindf(ConstructionError, "in %v.__new__: %v", cls, err)
		}
		m.push(v)
	default:
		obj := NewObject(cls, args)
		obj.Kw = kw
		m.push(obj)
	}
	return nil
}

func (m *Machine) inst() error {
	module, err := m.r.readLine()
	if err != nil {
		return err
	}
	smodule := string(module)
	name, err := m.r.readLine()
	if err != nil {
		return err
	}
	klass, err := m.findClass(smodule, string(name))
	if err != nil {
		return err
	}
	items, err := m.popMark()
	if err != nil {
		return err
	}
	return m.instantiate(klass, Tuple(items))
}

func (m *Machine) obj() error {
	// stack is: ... mark classobject arg1 arg2 ...
	items, err := m.popMark()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return errKind(SemanticError, ErrStackUnderflow)
	}
	return m.instantiate(items[0], Tuple(items[1:]))
}

// instantiate builds an instance of klass with args: through the
// constructor when there are arguments or the class demands it, through the
// allocator otherwise.
func (m *Machine) instantiate(klass any, args Tuple) error {
	_, wantsInit := klass.(InitArgser)
	if c, ok := klass.(Callable); ok && (len(args) > 0 || wantsInit) {
		v, err := c.Call(args)
		if err != nil {
			return errKindf(ConstructionError, "in constructor for %v: %v", klass, err)
		}
		m.push(v)
		return nil
	}
	if n, ok := klass.(Newable); ok && len(args) == 0 && !wantsInit {
		v, err := n.New(nil)
		if err != nil {
			return errKindf(ConstructionError, "in %v.__new__: %v", klass, err)
		}
		m.push(v)
		return nil
	}
	m.push(NewObject(klass, args))
	return nil
}

func (m *Machine) build() error {
	state, err := m.pop()
	if err != nil {
		return err
	}
	inst, err := m.top()
	if err != nil {
		return err
	}

	if ss, ok := inst.(StateSetter); ok {
		if err := ss.SetState(state); err != nil {
			return errKindf(ConstructionError, "in __setstate__: %v", err)
		}
		return nil
	}

	obj, ok := inst.(*Object)
	if !ok {
		return errKindf(TypeError, "BUILD expected an instance, got %T", inst)
	}

	var slotstate any
	if pair, ok := state.(Tuple); ok && len(pair) == 2 {
		state, slotstate = pair[0], pair[1]
	}
	if err := applyState(obj.Dict, state); err != nil {
		return err
	}
	return applyState(obj.Slots, slotstate)
}

// applyState merges a BUILD state mapping into dst. None and nil mean no
// state.
func applyState(dst Dict, state any) error {
	switch s := state.(type) {
	case nil, None:
		return nil
	case Dict:
		return catchUnhashable(func() {
			s.Iter()(func(k, v any) bool {
				dst.Set(k, v)
				return true
			})
		})
	default:
		return errKindf(TypeError, "BUILD state must be a mapping, got %T", state)
	}
}
