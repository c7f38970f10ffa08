package vm

import (
	"errors"
	"fmt"

	"github.com/mimihuang/VM-practice/pkg/bytecode"
)

// Execution faults. Every fault aborts the run; none is recoverable.
var (
	ErrRegisterRange = errors.New("register index out of range")
	ErrHeapRange     = errors.New("heap address out of range")
	ErrStackEmpty    = errors.New("pop from empty stack")
	ErrBadJumpTarget = errors.New("jump target must be U8 or U16")
	ErrStepLimit     = errors.New("step limit exceeded")
	ErrHeapCapacity  = errors.New("invalid heap capacity")
)

// Faults shared with the bytecode package so errors.Is matches either name.
var (
	ErrTypeMismatch    = bytecode.ErrKindMismatch
	ErrUnsupportedKind = bytecode.ErrUnsupportedKind
	ErrDivideByZero    = bytecode.ErrDivideByZero
	ErrNegativeShift   = bytecode.ErrNegativeShift
	ErrUndefinedOpcode = bytecode.ErrUndefinedOpcode
	ErrShiftOverflow   = bytecode.ErrShiftOverflow
)

// Fault reports the instruction that aborted a run.
type Fault struct {
	Index       int                  // Position of the instruction in the decoded sequence
	Instruction bytecode.Instruction // The failing instruction
	Err         error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("failed to execute instruction #%d (%s): %v", f.Index, f.Instruction, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// IsFault checks if err carries a Fault and returns it.
func IsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
