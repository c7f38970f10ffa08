package bytecode

import (
	"fmt"
	"sort"
)

// Opcode represents a bytecode instruction. The numeric values are the wire
// encoding and must not change.
type Opcode byte

const (
	// ========================================================================
	// Data movement
	// ========================================================================

	OpNop  Opcode = 0 // No operation
	OpMov  Opcode = 1 // MOV <reg> <imm>: reg = imm
	OpMovR Opcode = 2 // MOVR <dst> <src>: dst = src

	// ========================================================================
	// Control flow
	// ========================================================================

	OpJmp Opcode = 3  // JMP <reg>: ip = reg (U8/U16 only)
	OpJe  Opcode = 4  // JE <reg>: jump if flag_eq
	OpJne Opcode = 5  // JNE <reg>: jump unless flag_eq
	OpCmp Opcode = 6  // CMP <reg> <reg>: set flag_eq and flag_gt
	OpJg  Opcode = 23 // JG <reg>: jump if flag_gt
	OpJl  Opcode = 24 // JL <reg>: jump unless flag_gt

	// ========================================================================
	// Observation
	// ========================================================================

	OpPrintR Opcode = 7 // PRINTR <reg>
	OpPrintV Opcode = 8 // PRINTV <addr>

	// ========================================================================
	// Heap
	// ========================================================================

	OpVStore  Opcode = 9  // VSTORE <addr> <imm>: heap[addr] = imm
	OpVLoad   Opcode = 10 // VLOAD <addr>: push heap[addr]
	OpVStoreR Opcode = 15 // VSTORER <addr> <reg>: heap[addr] = reg
	OpVLoadR  Opcode = 16 // VLOADR <reg> <addr>: reg = heap[addr]

	// ========================================================================
	// Arithmetic and bitwise (result pushed on the stack)
	// ========================================================================

	OpAdd Opcode = 11 // ADD <reg> <reg>
	OpSub Opcode = 12 // SUB <reg> <reg>
	OpMul Opcode = 13 // MUL <reg> <reg>
	OpDiv Opcode = 14 // DIV <reg> <reg> (second / first)
	OpAnd Opcode = 25 // AND <reg> <reg>
	OpOr  Opcode = 26 // OR <reg> <reg>
	OpXor Opcode = 27 // XOR <reg> <reg>
	OpShr Opcode = 28 // SHR <reg> <imm> (imm >> reg)
	OpShl Opcode = 29 // SHL <reg> <imm> (imm << reg)

	// ========================================================================
	// Stack
	// ========================================================================

	OpVPush  Opcode = 17 // VPUSH <imm>
	OpVPushR Opcode = 18 // VPUSHR <reg>
	OpVPop   Opcode = 19 // VPOP <reg>

	// ========================================================================
	// Subroutines
	// ========================================================================

	OpCall Opcode = 20 // CALL <reg>: push return address, jump
	OpRet  Opcode = 21 // RET: pop return address, jump
	OpHalt Opcode = 22 // HALT: clear the running flag
)

// OperandKind is the type of a single inline operand.
type OperandKind uint8

const (
	// OperandReg is a register index, one byte.
	OperandReg OperandKind = iota
	// OperandAddr is a heap address, one byte.
	OperandAddr
	// OperandImm is a tagged immediate: tag byte plus a little-endian payload.
	OperandImm
)

// String returns a short operand kind name.
func (k OperandKind) String() string {
	switch k {
	case OperandReg:
		return "reg"
	case OperandAddr:
		return "addr"
	case OperandImm:
		return "imm"
	default:
		return fmt.Sprintf("OperandKind(%d)", k)
	}
}

// OpcodeInfo provides metadata about each opcode for decoding and listing.
type OpcodeInfo struct {
	Name     string        // Human-readable name
	Operands []OperandKind // Inline operands, in wire order
}

var (
	sigNone    = []OperandKind{}
	sigReg     = []OperandKind{OperandReg}
	sigAddr    = []OperandKind{OperandAddr}
	sigImm     = []OperandKind{OperandImm}
	sigRegReg  = []OperandKind{OperandReg, OperandReg}
	sigRegImm  = []OperandKind{OperandReg, OperandImm}
	sigRegAddr = []OperandKind{OperandReg, OperandAddr}
	sigAddrReg = []OperandKind{OperandAddr, OperandReg}
	sigAddrImm = []OperandKind{OperandAddr, OperandImm}
)

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop:  {"NOP", sigNone},
	OpMov:  {"MOV", sigRegImm},
	OpMovR: {"MOVR", sigRegReg},

	OpJmp: {"JMP", sigReg},
	OpJe:  {"JE", sigReg},
	OpJne: {"JNE", sigReg},
	OpJg:  {"JG", sigReg},
	OpJl:  {"JL", sigReg},
	OpCmp: {"CMP", sigRegReg},

	OpPrintR: {"PRINTR", sigReg},
	OpPrintV: {"PRINTV", sigAddr},

	OpVStore:  {"VSTORE", sigAddrImm},
	OpVLoad:   {"VLOAD", sigAddr},
	OpVStoreR: {"VSTORER", sigAddrReg},
	OpVLoadR:  {"VLOADR", sigRegAddr},

	OpAdd: {"ADD", sigRegReg},
	OpSub: {"SUB", sigRegReg},
	OpMul: {"MUL", sigRegReg},
	OpDiv: {"DIV", sigRegReg},
	OpAnd: {"AND", sigRegReg},
	OpOr:  {"OR", sigRegReg},
	OpXor: {"XOR", sigRegReg},
	OpShr: {"SHR", sigRegImm},
	OpShl: {"SHL", sigRegImm},

	OpVPush:  {"VPUSH", sigImm},
	OpVPushR: {"VPUSHR", sigReg},
	OpVPop:   {"VPOP", sigReg},

	OpCall: {"CALL", sigReg},
	OpRet:  {"RET", sigNone},
	OpHalt: {"HALT", sigNone},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN(0x..)" with no operands if the opcode
// is not recognized; such bytes decode as NOP.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), Operands: sigNone}
}

// IsDefined reports whether op has a definition in the instruction set.
func (op Opcode) IsDefined() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Operands returns the inline operand signature of the opcode.
func (op Opcode) Operands() []OperandKind {
	return GetOpcodeInfo(op).Operands
}

// IsJump returns true for the register-indirect jumps (JMP, JE, JNE, JG, JL).
func (op Opcode) IsJump() bool {
	switch op {
	case OpJmp, OpJe, OpJne, OpJg, OpJl:
		return true
	}
	return false
}

// IsControlTransfer returns true if the opcode may write the instruction pointer.
func (op Opcode) IsControlTransfer() bool {
	return op.IsJump() || op == OpCall || op == OpRet
}

// IsArith returns true for the opcodes whose result is pushed on the stack.
func (op Opcode) IsArith() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpAnd, OpOr, OpXor, OpShr, OpShl:
		return true
	}
	return false
}

// AllOpcodes returns all defined opcodes in ascending numeric order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	sort.Slice(opcodes, func(i, j int) bool { return opcodes[i] < opcodes[j] })
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
