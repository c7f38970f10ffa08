package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/tliron/commonlog"
)

func log() commonlog.Logger {
	return commonlog.GetLogger("smallvm.bytecode")
}

// TagNone is the tag written for a None immediate. Any tag above 9 decodes
// as None; this is the one the Builder emits.
const TagNone byte = 0xFF

// Tag returns the wire tag of a kind: 0=U8, 1=I8, 2=U16, 3=I16, 4=U32,
// 5=I32, 6=U64, 7=I64, 8=F32, 9=F64. None has no payload and uses TagNone.
func (k Kind) Tag() byte {
	if k == KindNone || int(k) >= len(kindInfoTable) {
		return TagNone
	}
	return byte(k) - 1
}

// KindForTag maps a wire tag to its kind. Unknown tags map to KindNone.
func KindForTag(tag byte) Kind {
	if tag <= KindF64.Tag() {
		return Kind(tag + 1)
	}
	return KindNone
}

// Decode converts a byte buffer into the instruction sequence it encodes.
//
// The buffer is consumed strictly left to right. An opcode byte without a
// definition decodes as NOP. A buffer that ends inside an operand is an error
// and no instructions are returned. Jump targets are not validated.
func Decode(buf []byte) ([]Instruction, error) {
	code, _, err := decodeAll(buf)
	return code, err
}

// decodeAll decodes buf and also returns the byte offset of each instruction.
func decodeAll(buf []byte) ([]Instruction, []int, error) {
	d := decoder{buf: buf}
	code := make([]Instruction, 0, len(buf)/2)
	offsets := make([]int, 0, len(buf)/2)
	for d.pos < len(d.buf) {
		start := d.pos
		in, err := d.next()
		if err != nil {
			return nil, nil, err
		}
		code = append(code, in)
		offsets = append(offsets, start)
	}
	return code, offsets, nil
}

// DecodeImmediate decodes one tagged immediate from the front of buf and
// returns it with the number of bytes consumed, tag included.
func DecodeImmediate(buf []byte) (Immediate, int, error) {
	d := decoder{buf: buf}
	v, err := d.readImmediate()
	if err != nil {
		return None(), 0, err
	}
	return v, d.pos, nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) next() (Instruction, error) {
	start := d.pos
	op := Opcode(d.buf[d.pos])
	d.pos++

	if !op.IsDefined() {
		if log().AllowLevel(commonlog.Debug) {
			log().Debugf("offset %d: opcode 0x%02X undefined, decoded as NOP", start, byte(op))
		}
		return Instruction{Op: OpNop}, nil
	}

	in := Instruction{Op: op}
	byteOperands := 0
	for _, kind := range op.Operands() {
		switch kind {
		case OperandReg, OperandAddr:
			b, err := d.readByte()
			if err != nil {
				return Instruction{}, &DecodeError{Offset: start, Op: op, Err: err}
			}
			if byteOperands == 0 {
				in.A = b
			} else {
				in.B = b
			}
			byteOperands++
		case OperandImm:
			v, err := d.readImmediate()
			if err != nil {
				return Instruction{}, &DecodeError{Offset: start, Op: op, Err: err}
			}
			in.Imm = v
		}
	}
	return in, nil
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, fmt.Errorf("%w: need 1 byte at offset %d", ErrTruncated, d.pos)
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// readImmediate reads a kind tag followed by a little-endian payload of
// exactly the kind's width. Unknown tags consume only the tag byte.
func (d *decoder) readImmediate() (Immediate, error) {
	tag, err := d.readByte()
	if err != nil {
		return None(), err
	}
	kind := KindForTag(tag)
	width := kind.Width()
	if width == 0 {
		return None(), nil
	}
	if d.pos+width > len(d.buf) {
		return None(), fmt.Errorf("%w: need %d byte(s) for %s payload at offset %d, have %d",
			ErrTruncated, width, kind, d.pos, len(d.buf)-d.pos)
	}

	payload := d.buf[d.pos : d.pos+width]
	d.pos += width

	var bits uint64
	switch width {
	case 1:
		bits = uint64(payload[0])
	case 2:
		bits = uint64(binary.LittleEndian.Uint16(payload))
	case 4:
		bits = uint64(binary.LittleEndian.Uint32(payload))
	case 8:
		bits = binary.LittleEndian.Uint64(payload)
	}
	return FromBits(kind, bits)
}
