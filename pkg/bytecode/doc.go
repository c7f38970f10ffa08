// Package bytecode defines the value model, instruction set and wire format
// of the smallvm register/stack machine, and decodes byte buffers into
// instruction sequences.
//
// # Values
//
// An Immediate is a tagged scalar: None or one of U8, I8, U16, I16, U32, I32,
// U64, I64, F32 and F64. Comparison between different kinds falls back to the
// rank of the kind (its declaration order), never to numeric coercion.
// Arithmetic requires both operands to be of the same kind.
//
// # Wire format
//
// A program is a flat byte sequence of instructions:
//
//	[opcode:1] [operand...]
//
// Operands are fixed per opcode (see OpcodeInfo):
//
//   - register index: 1 byte, valid 0-7 at execution time
//   - heap address: 1 byte, so at most 256 heap cells are addressable
//   - immediate: [tag:1] [payload:width] with the payload little-endian;
//     tags 0-9 select U8..F64, any other tag is None with no payload
//
// Opcode bytes without a definition decode as NOP. A buffer that ends inside
// an operand fails with ErrTruncated.
//
// For example
//
//	01 01 03 64 00    MOV r1, I16(100)
//	06 00 01          CMP r0, r1
//	16                HALT
package bytecode
