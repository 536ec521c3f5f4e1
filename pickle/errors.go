package pickle

import (
	"errors"
	"fmt"
)

// ErrorKind classifies machine errors by what went wrong, independently of
// which opcode triggered them.
type ErrorKind int

const (
	// FormatError: truncation, bad length, bad encoding, missing quote,
	// nested frame, frame overflow.
	FormatError ErrorKind = iota
	// SemanticError: unknown opcode, unsupported protocol, negative
	// index, missing memo entry, stack underflow, unmatched MARK, bad
	// extension code.
	SemanticError
	// ResolutionError: import or attribute lookup failure.
	ResolutionError
	// ConstructionError: a callable or class failed during
	// REDUCE/NEWOBJ/INST/OBJ/BUILD.
	ConstructionError
	// PolicyError: persistent ID without a handler, out-of-band buffer
	// without a source.
	PolicyError
	// TypeError: an operand had the wrong type, e.g. STACK_GLOBAL names
	// that are not text.
	TypeError
)

func (k ErrorKind) String() string {
	switch k {
	case FormatError:
		return "format error"
	case SemanticError:
		return "semantic error"
	case ResolutionError:
		return "resolution error"
	case ConstructionError:
		return "construction error"
	case PolicyError:
		return "policy error"
	case TypeError:
		return "type error"
	}
	return fmt.Sprintf("error kind %d", int(k))
}

var (
	ErrStackUnderflow    = errors.New("pickle: stack underflow")
	ErrNoMark            = errors.New("pickle: no mark on stack")
	ErrTruncated         = errors.New("pickle: stream truncated")
	ErrNestedFrame       = errors.New("pickle: beginning of a new frame before end of current frame")
	ErrFrameExhausted    = errors.New("pickle: pickle exhausted before end of frame")
	ErrFrameTooLarge     = errors.New("pickle: frame size exceeds maximum object size")
	ErrMemoKey           = errors.New("pickle: memo value not found")
	ErrBadProtocol       = errors.New("pickle: unsupported pickle protocol")
	ErrNoPersistentLoad  = errors.New("pickle: unsupported persistent id encountered")
	ErrNoBuffers         = errors.New("pickle: stream refers to out-of-band data but no buffers were given")
	ErrBuffersExhausted  = errors.New("pickle: not enough out-of-band buffers")
	ErrExtensionCode     = errors.New("pickle: EXT specifies code <= 0")
	ErrExtensionUnknown  = errors.New("pickle: unregistered extension code")
	ErrNegativeIndex     = errors.New("pickle: negative memo index")
	ErrNegativeLength    = errors.New("pickle: negative byte count")
	ErrLengthTooLarge    = errors.New("pickle: byte count exceeds maximum object size")
)

// OpcodeError is reported when the machine sees an opcode byte with no
// handler.
type OpcodeError struct {
	Code byte
	Pos  int64
}

func (e *OpcodeError) Error() string {
	return fmt.Sprintf("unknown opcode 0x%02x (%q) at position %d", e.Code, e.Code, e.Pos)
}

// MachineError is the error the machine reports when a load fails: the
// failing instruction's address and opcode, the error kind, and the cause.
//
// The machine's stack, metastack and memo remain observable after the
// failure for debugging.
type MachineError struct {
	Kind ErrorKind
	Pos  int64 // address of the failing instruction
	Code byte  // its opcode
	Err  error
}

func (e *MachineError) Error() string {
	name := opTable[e.Code].name
	if name == "" {
		name = fmt.Sprintf("0x%02x", e.Code)
	}
	return fmt.Sprintf("pickle: %s at %d (%s): %v", e.Kind, e.Pos, name, e.Err)
}

func (e *MachineError) Unwrap() error { return e.Err }

// kindError tags err with an error kind while it bubbles up to the machine
// loop, where the instruction address and opcode are attached.
type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

func errKind(kind ErrorKind, err error) error {
	return &kindError{kind: kind, err: err}
}

func errKindf(kind ErrorKind, format string, argv ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, argv...)}
}

// kindOfErr extracts the tagged kind, defaulting to FormatError for plain
// I/O style failures.
func kindOfErr(err error) ErrorKind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return FormatError
}
