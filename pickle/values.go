package pickle

import (
	"fmt"
	"strings"
)

// None is a representation of Python's None.
type None struct{}

// Tuple is a representation of Python's tuple.
//
// Tuples are immutable after construction; nothing in the machine mutates a
// Tuple once it has been pushed.
type Tuple []any

// Bytes represents Python's bytes: an immutable byte sequence.
//
// The payload is kept in a Go string so that Bytes can be used as a Dict or
// Set key, same as bytes can be used as a dict key in Python.
type Bytes string

// ByteString represents str from Python2 — a string of bytes whose text
// interpretation depends on the encoding the stream was produced with.
//
// It is the result of the legacy STRING/BINSTRING/SHORT_BINSTRING opcodes
// (unless the machine is configured with Encoding "bytes"). ByteString
// compares equal to both string and Bytes with the same payload.
type ByteString string

// List represents Python's list. It is always handled through a pointer so
// that a list stored in the memo and inside another container stays the
// same object: an APPEND through one reference is visible through all of
// them.
type List struct {
	Items []any
}

// NewList returns a new list holding items.
func NewList(items ...any) *List {
	return &List{Items: items}
}

// Append adds v at the end of the list.
func (l *List) Append(v any) {
	l.Items = append(l.Items, v)
}

// Len returns the number of items in the list.
func (l *List) Len() int { return len(l.Items) }

func (l *List) String() string {
	elems := make([]string, len(l.Items))
	for i, v := range l.Items {
		elems[i] = fmt.Sprintf("%v", v)
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

// ByteArray represents Python's bytearray: a mutable byte buffer, handled
// through a pointer for the same sharing reasons as List.
type ByteArray struct {
	Data []byte
}

// NewByteArray returns a bytearray holding data.
func NewByteArray(data []byte) *ByteArray {
	return &ByteArray{Data: data}
}

// Len returns the length of the buffer.
func (b *ByteArray) Len() int { return len(b.Data) }

func (b *ByteArray) String() string {
	return fmt.Sprintf("bytearray(%q)", b.Data)
}

// Buffer is a view over out-of-band data, produced by NEXT_BUFFER and
// flipped to read-only by READONLY_BUFFER. The underlying bytes are shared
// with whatever the buffer source handed out.
type Buffer struct {
	Data     []byte
	ReadOnly bool
}

func (b *Buffer) String() string {
	mode := "rw"
	if b.ReadOnly {
		mode = "ro"
	}
	return fmt.Sprintf("buffer(%s, %d bytes)", mode, len(b.Data))
}

// Class represents a reference to a Python class or callable that was not
// resolved to a concrete in-process value: just its module and qualified
// name.
type Class struct {
	Module, Name string
}

func (c Class) String() string { return c.Module + "." + c.Name }

// Call represents the result of applying an unresolved callable to an
// argument tuple, as done by the REDUCE opcode.
type Call struct {
	Callable any
	Args     Tuple
}

// Object is an instance of a class, as produced by NEWOBJ/NEWOBJ_EX/INST/OBJ
// when the class did not construct a concrete value itself. Its state is
// filled in later by BUILD. Objects are handled through a pointer and
// compare by identity.
type Object struct {
	Class any   // Class, or whatever the importer resolved
	Args  Tuple // positional construction arguments
	Kw    Dict  // keyword construction arguments; zero unless built by NEWOBJ_EX
	Dict  Dict  // attribute dictionary, populated by BUILD
	Slots Dict  // slot attributes, populated by BUILD's pair form
}

// NewObject returns a fresh instance shell of class with args.
func NewObject(class any, args Tuple) *Object {
	return &Object{Class: class, Args: args, Dict: NewDict(), Slots: NewDict()}
}

// Attr returns the named attribute, consulting the attribute dictionary
// first and slots second.
func (o *Object) Attr(name string) (any, bool) {
	if v, ok := o.Dict.Get_(name); ok {
		return v, true
	}
	return o.Slots.Get_(name)
}

func (o *Object) String() string {
	return fmt.Sprintf("<%v object>", o.Class)
}

// Ref is the representation of a Python persistent reference: an opaque
// token referring to a value outside the stream.
//
// The machine never interprets the token; resolution is delegated to the
// PersistentLoad callback configured on the machine.
type Ref struct {
	// persistent ID of the referenced object.
	//
	// a string for protocol 0 (PERSID), an arbitrary value for later
	// protocols (BINPERSID).
	Pid any
}
