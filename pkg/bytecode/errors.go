package bytecode

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated indicates the buffer ended in the middle of an operand.
	ErrTruncated = errors.New("unexpected end of bytecode")

	// ErrUnknownKind indicates a Kind value outside the defined variants.
	ErrUnknownKind = errors.New("unknown immediate kind")

	// ErrKindMismatch indicates a binary operator was given operands of
	// different kinds. No coercion between kinds is ever attempted.
	ErrKindMismatch = errors.New("operand kinds differ")

	// ErrUnsupportedKind indicates the operator is not defined for the kind,
	// e.g. bitwise operators on floats or any operator on None.
	ErrUnsupportedKind = errors.New("operator not defined for kind")

	// ErrDivideByZero indicates integer division by zero.
	ErrDivideByZero = errors.New("integer divide by zero")

	// ErrNegativeShift indicates a shift by a negative signed count.
	ErrNegativeShift = errors.New("negative shift count")

	// ErrShiftOverflow indicates a shift count at or above the operand's bit
	// width.
	ErrShiftOverflow = errors.New("shift count exceeds operand width")

	// ErrUndefinedOpcode indicates an opcode byte outside the instruction set.
	ErrUndefinedOpcode = errors.New("undefined opcode")

	// ErrNotArith indicates Arith was called with a non-arithmetic opcode.
	ErrNotArith = errors.New("opcode is not an arithmetic operator")
)

// DecodeError reports a failure to decode the instruction starting at Offset.
type DecodeError struct {
	Offset int    // Byte offset of the opcode
	Op     Opcode // Opcode being decoded
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
