package bytecode

import (
	"fmt"
	"strings"
)

// Instruction is one decoded instruction. Which fields are meaningful depends
// on the opcode's operand signature: byte operands (registers and heap
// addresses) fill A then B in wire order, the immediate operand fills Imm.
//
//	MOV r, imm      A=r          Imm=imm
//	VSTORER a, r    A=a   B=r
//	VLOADR r, a     A=r   B=a
type Instruction struct {
	Op  Opcode
	A   uint8
	B   uint8
	Imm Immediate
}

// String formats the instruction as assembly, e.g. "MOV r1, I16(100)".
// Registers print as rN and heap addresses as @N.
func (in Instruction) String() string {
	operands := in.Op.Operands()
	if len(operands) == 0 {
		return in.Op.String()
	}

	var sb strings.Builder
	sb.WriteString(in.Op.String())
	byteOperands := 0
	for i, kind := range operands {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		switch kind {
		case OperandReg, OperandAddr:
			v := in.A
			if byteOperands > 0 {
				v = in.B
			}
			byteOperands++
			if kind == OperandReg {
				fmt.Fprintf(&sb, "r%d", v)
			} else {
				fmt.Fprintf(&sb, "@%d", v)
			}
		case OperandImm:
			sb.WriteString(in.Imm.String())
		}
	}
	return sb.String()
}
