package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Builder assembles a byte buffer in the wire format one instruction at a
// time. It performs no label resolution: jump targets are instruction
// indices held in registers, and Emit returns the index of each instruction
// so callers can compute them.
type Builder struct {
	code  []byte
	count int
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{code: make([]byte, 0, 64)}
}

// Emit appends an instruction and returns its instruction index. An
// undefined opcode is rejected and leaves the buffer unchanged; write raw
// bytes with EmitRaw instead.
func (b *Builder) Emit(in Instruction) (int, error) {
	if !in.Op.IsDefined() {
		return -1, fmt.Errorf("%w: 0x%02X", ErrUndefinedOpcode, byte(in.Op))
	}
	idx := b.count
	b.code = AppendInstruction(b.code, in)
	b.count++
	return idx, nil
}

// EmitRaw appends bytes verbatim, e.g. padding or undefined opcodes. Each
// byte is counted as one instruction, matching how the decoder treats
// undefined opcodes; raw operand bytes therefore skew the count.
func (b *Builder) EmitRaw(raw ...byte) int {
	idx := b.count
	b.code = append(b.code, raw...)
	b.count += len(raw)
	return idx
}

// Next returns the index the next emitted instruction will receive.
func (b *Builder) Next() int {
	return b.count
}

// Len returns the length of the buffer in bytes.
func (b *Builder) Len() int {
	return len(b.code)
}

// Bytes returns a copy of the assembled buffer.
func (b *Builder) Bytes() []byte {
	out := make([]byte, len(b.code))
	copy(out, b.code)
	return out
}

// Encode returns the wire encoding of a whole instruction sequence.
func Encode(code []Instruction) []byte {
	var buf []byte
	for _, in := range code {
		buf = AppendInstruction(buf, in)
	}
	return buf
}

// AppendInstruction appends the wire encoding of in to buf.
func AppendInstruction(buf []byte, in Instruction) []byte {
	buf = append(buf, byte(in.Op))
	byteOperands := 0
	for _, kind := range in.Op.Operands() {
		switch kind {
		case OperandReg, OperandAddr:
			if byteOperands == 0 {
				buf = append(buf, in.A)
			} else {
				buf = append(buf, in.B)
			}
			byteOperands++
		case OperandImm:
			buf = AppendImmediate(buf, in.Imm)
		}
	}
	return buf
}

// AppendImmediate appends the tag and little-endian payload of v to buf.
func AppendImmediate(buf []byte, v Immediate) []byte {
	buf = append(buf, v.kind.Tag())
	switch v.kind.Width() {
	case 1:
		buf = append(buf, byte(v.bits))
	case 2:
		buf = binary.LittleEndian.AppendUint16(buf, uint16(v.bits))
	case 4:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v.bits))
	case 8:
		buf = binary.LittleEndian.AppendUint64(buf, v.bits)
	}
	return buf
}
