package bytecode

import (
	"fmt"
	"math"
)

// Kind identifies the variant held by an Immediate.
//
// The declaration order is also the rank used when two immediates of
// different kinds are compared: None < U8 < I8 < U16 < I16 < U32 < I32 <
// U64 < I64 < F32 < F64. Cross-kind ordering is well defined but carries no
// numeric meaning.
type Kind uint8

const (
	KindNone Kind = iota
	KindU8
	KindI8
	KindU16
	KindI16
	KindU32
	KindI32
	KindU64
	KindI64
	KindF32
	KindF64
)

// kindInfo describes one Immediate kind.
type kindInfo struct {
	Name    string
	Width   int  // Payload width in bytes on the wire
	Integer bool // Integer kind (bitwise and shift operators apply)
	Signed  bool
}

var kindInfoTable = [...]kindInfo{
	KindNone: {"None", 0, false, false},
	KindU8:   {"U8", 1, true, false},
	KindI8:   {"I8", 1, true, true},
	KindU16:  {"U16", 2, true, false},
	KindI16:  {"I16", 2, true, true},
	KindU32:  {"U32", 4, true, false},
	KindI32:  {"I32", 4, true, true},
	KindU64:  {"U64", 8, true, false},
	KindI64:  {"I64", 8, true, true},
	KindF32:  {"F32", 4, false, false},
	KindF64:  {"F64", 8, false, false},
}

// String returns the variant name.
func (k Kind) String() string {
	if int(k) < len(kindInfoTable) {
		return kindInfoTable[k].Name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Width returns the payload width in bytes (0 for None).
func (k Kind) Width() int {
	if int(k) < len(kindInfoTable) {
		return kindInfoTable[k].Width
	}
	return 0
}

// IsInteger reports whether k is one of the eight integer kinds.
func (k Kind) IsInteger() bool {
	return int(k) < len(kindInfoTable) && kindInfoTable[k].Integer
}

// IsFloat reports whether k is F32 or F64.
func (k Kind) IsFloat() bool {
	return k == KindF32 || k == KindF64
}

// Rank returns the position of k in the cross-kind ordering.
func (k Kind) Rank() int {
	return int(k)
}

// Immediate is a tagged scalar: either absent (None) or one of ten numeric
// kinds. The payload is kept as raw bits: integers sign- or zero-extended to
// 64 bits, floats as their IEEE-754 bit pattern.
type Immediate struct {
	kind Kind
	bits uint64
}

// Constructors, one per kind.
func None() Immediate { return Immediate{} }
func U8(v uint8) Immediate { return Immediate{KindU8, uint64(v)} }
func I8(v int8) Immediate { return Immediate{KindI8, uint64(int64(v))} }
func U16(v uint16) Immediate { return Immediate{KindU16, uint64(v)} }
func I16(v int16) Immediate { return Immediate{KindI16, uint64(int64(v))} }
func U32(v uint32) Immediate { return Immediate{KindU32, uint64(v)} }
func I32(v int32) Immediate { return Immediate{KindI32, uint64(int64(v))} }
func U64(v uint64) Immediate { return Immediate{KindU64, v} }
func I64(v int64) Immediate { return Immediate{KindI64, uint64(v)} }
func F32(v float32) Immediate { return Immediate{KindF32, uint64(math.Float32bits(v))} }
func F64(v float64) Immediate { return Immediate{KindF64, math.Float64bits(v)} }

// FromBits rebuilds an Immediate from a kind and the value returned by Bits.
// Bits outside the kind's width are discarded.
func FromBits(kind Kind, bits uint64) (Immediate, error) {
	switch kind {
	case KindNone:
		return None(), nil
	case KindU8:
		return U8(uint8(bits)), nil
	case KindI8:
		return I8(int8(bits)), nil
	case KindU16:
		return U16(uint16(bits)), nil
	case KindI16:
		return I16(int16(bits)), nil
	case KindU32:
		return U32(uint32(bits)), nil
	case KindI32:
		return I32(int32(bits)), nil
	case KindU64:
		return U64(bits), nil
	case KindI64:
		return I64(int64(bits)), nil
	case KindF32:
		return Immediate{KindF32, uint64(uint32(bits))}, nil
	case KindF64:
		return Immediate{KindF64, bits}, nil
	}
	return None(), fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
}

// Kind returns the variant held by v.
func (v Immediate) Kind() Kind { return v.kind }

// IsNone reports whether v holds no value.
func (v Immediate) IsNone() bool { return v.kind == KindNone }

// Bits returns the raw payload.
func (v Immediate) Bits() uint64 { return v.bits }

// Typed accessors. They reinterpret the payload without checking the kind.
func (v Immediate) U8() uint8 { return uint8(v.bits) }
func (v Immediate) I8() int8 { return int8(v.bits) }
func (v Immediate) U16() uint16 { return uint16(v.bits) }
func (v Immediate) I16() int16 { return int16(v.bits) }
func (v Immediate) U32() uint32 { return uint32(v.bits) }
func (v Immediate) I32() int32 { return int32(v.bits) }
func (v Immediate) U64() uint64 { return v.bits }
func (v Immediate) I64() int64 { return int64(v.bits) }
func (v Immediate) F32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Immediate) F64() float64 { return math.Float64frombits(v.bits) }

// Equal reports whether v and w hold the same kind and the same value.
// NaN is not equal to itself and +0 equals -0.
func (v Immediate) Equal(w Immediate) bool {
	c, ok := v.Compare(w)
	return ok && c == 0
}

// Compare orders v against w. Immediates of different kinds are ordered by
// Kind rank. Within a kind the numeric values are compared. The boolean is
// false when the pair is unordered, which only happens when a float operand
// is NaN.
func (v Immediate) Compare(w Immediate) (int, bool) {
	if v.kind != w.kind {
		return cmpOrdered(v.kind.Rank(), w.kind.Rank()), true
	}
	switch v.kind {
	case KindNone:
		return 0, true
	case KindU8, KindU16, KindU32, KindU64:
		return cmpOrdered(v.bits, w.bits), true
	case KindI8, KindI16, KindI32, KindI64:
		return cmpOrdered(int64(v.bits), int64(w.bits)), true
	case KindF32:
		return cmpFloat(float64(v.F32()), float64(w.F32()))
	case KindF64:
		return cmpFloat(v.F64(), w.F64())
	}
	return 0, false
}

// Greater reports whether v orders strictly after w.
func (v Immediate) Greater(w Immediate) bool {
	c, ok := v.Compare(w)
	return ok && c > 0
}

// Add returns v + w. Both operands must be of the same numeric kind.
func (v Immediate) Add(w Immediate) (Immediate, error) {
	return Arith(OpAdd, v, w)
}

// Sub returns v - w. Both operands must be of the same numeric kind.
func (v Immediate) Sub(w Immediate) (Immediate, error) {
	return Arith(OpSub, v, w)
}

// JumpTarget returns the value as an instruction index when v is U8 or U16,
// the only kinds control transfer accepts.
func (v Immediate) JumpTarget() (int, bool) {
	switch v.kind {
	case KindU8:
		return int(v.U8()), true
	case KindU16:
		return int(v.U16()), true
	}
	return 0, false
}

// String formats the immediate as Kind(value), e.g. I16(-2).
func (v Immediate) String() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindU8, KindU16, KindU32, KindU64:
		return fmt.Sprintf("%s(%d)", v.kind, v.bits)
	case KindI8, KindI16, KindI32, KindI64:
		return fmt.Sprintf("%s(%d)", v.kind, int64(v.bits))
	case KindF32:
		return fmt.Sprintf("F32(%v)", v.F32())
	case KindF64:
		return fmt.Sprintf("F64(%v)", v.F64())
	}
	return fmt.Sprintf("%s(%#x)", v.kind, v.bits)
}

func cmpOrdered[T int | int64 | uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) (int, bool) {
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	case a == b:
		return 0, true
	}
	return 0, false
}
