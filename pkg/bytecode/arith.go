package bytecode

import "fmt"

type integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

type float interface {
	~float32 | ~float64
}

// Arith applies an arithmetic or bitwise opcode (ADD, SUB, MUL, DIV, AND, OR,
// XOR, SHR, SHL) to a and b, computing a op b.
//
// Both operands must hold the same kind. ADD, SUB, MUL and DIV accept all ten
// numeric kinds; the bitwise and shift operators accept the eight integer
// kinds. Integer arithmetic wraps on overflow, float arithmetic follows
// IEEE-754. Integer division by zero and a shift count that is negative or not
// below the operand's bit width are errors rather than runtime panics.
func Arith(op Opcode, a, b Immediate) (Immediate, error) {
	if !op.IsArith() {
		return None(), fmt.Errorf("%w: %s", ErrNotArith, op)
	}
	if a.kind != b.kind {
		return None(), fmt.Errorf("%w: %s %s %s", ErrKindMismatch, a.kind, op, b.kind)
	}

	bits := uint64(a.kind.Width()) * 8
	switch a.kind {
	case KindU8:
		return lift(U8)(intOp(op, a.U8(), b.U8(), bits))
	case KindI8:
		return lift(I8)(intOp(op, a.I8(), b.I8(), bits))
	case KindU16:
		return lift(U16)(intOp(op, a.U16(), b.U16(), bits))
	case KindI16:
		return lift(I16)(intOp(op, a.I16(), b.I16(), bits))
	case KindU32:
		return lift(U32)(intOp(op, a.U32(), b.U32(), bits))
	case KindI32:
		return lift(I32)(intOp(op, a.I32(), b.I32(), bits))
	case KindU64:
		return lift(U64)(intOp(op, a.U64(), b.U64(), bits))
	case KindI64:
		return lift(I64)(intOp(op, a.I64(), b.I64(), bits))
	case KindF32:
		return lift(F32)(floatOp(op, a.F32(), b.F32()))
	case KindF64:
		return lift(F64)(floatOp(op, a.F64(), b.F64()))
	}
	return None(), fmt.Errorf("%w: %s on %s", ErrUnsupportedKind, op, a.kind)
}

// lift wraps a typed result back into an Immediate, dropping it on error.
func lift[T any](mk func(T) Immediate) func(T, error) (Immediate, error) {
	return func(v T, err error) (Immediate, error) {
		if err != nil {
			return None(), err
		}
		return mk(v), nil
	}
}

func intOp[T integer](op Opcode, x, y T, bits uint64) (T, error) {
	switch op {
	case OpAdd:
		return x + y, nil
	case OpSub:
		return x - y, nil
	case OpMul:
		return x * y, nil
	case OpDiv:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return x / y, nil
	case OpAnd:
		return x & y, nil
	case OpOr:
		return x | y, nil
	case OpXor:
		return x ^ y, nil
	case OpShr:
		if err := shiftCount(y, bits); err != nil {
			return 0, err
		}
		return x >> uint64(y), nil
	case OpShl:
		if err := shiftCount(y, bits); err != nil {
			return 0, err
		}
		return x << uint64(y), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrNotArith, op)
}

func shiftCount[T integer](y T, bits uint64) error {
	if y < 0 {
		return ErrNegativeShift
	}
	if uint64(y) >= bits {
		return fmt.Errorf("%w: %d for %d-bit operand", ErrShiftOverflow, uint64(y), bits)
	}
	return nil
}

func floatOp[T float](op Opcode, x, y T) (T, error) {
	switch op {
	case OpAdd:
		return x + y, nil
	case OpSub:
		return x - y, nil
	case OpMul:
		return x * y, nil
	case OpDiv:
		return x / y, nil
	}
	return 0, fmt.Errorf("%w: %s on float", ErrUnsupportedKind, op)
}
