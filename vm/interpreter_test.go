package vm

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/mimihuang/VM-practice/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Data movement
// ---------------------------------------------------------------------------

func TestMovAndMovR(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{
		mov(3, bytecode.F32(2.5)),
		op2(bytecode.OpMovR, 7, 3),
		mov(3, bytecode.None()),
	}, 0)
	mustRun(t, m)

	if got := mustReg(t, m, 7); got != bytecode.F32(2.5) {
		t.Errorf("r7 = %s, want F32(2.5)", got)
	}
	if got := mustReg(t, m, 3); !got.IsNone() {
		t.Errorf("r3 = %s, want None", got)
	}
}

func TestRegisterRange(t *testing.T) {
	tests := []struct {
		name string
		in   bytecode.Instruction
	}{
		{"MOV", mov(8, bytecode.U8(1))},
		{"MOVR dst", op2(bytecode.OpMovR, 8, 0)},
		{"MOVR src", op2(bytecode.OpMovR, 0, 200)},
		{"CMP", op2(bytecode.OpCmp, 0, 9)},
		{"ADD", op2(bytecode.OpAdd, 255, 0)},
		{"SHL", opImm(bytecode.OpShl, 8, bytecode.U8(1))},
		{"JMP", op1(bytecode.OpJmp, 8)},
		{"PRINTR", op1(bytecode.OpPrintR, 8)},
		{"VPUSHR", op1(bytecode.OpVPushR, 8)},
		{"VPOP", op1(bytecode.OpVPop, 9)},
		{"VSTORER", op2(bytecode.OpVStoreR, 0, 8)},
		{"VLOADR", op2(bytecode.OpVLoadR, 8, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustMachine(t, []bytecode.Instruction{tt.in}, 4)
			expectFault(t, m.Run(), 0, ErrRegisterRange)
		})
	}
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

func TestHeapStoreLoad(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{
		opImm(bytecode.OpVStore, 0, bytecode.I64(-7)),
		opImm(bytecode.OpVStore, 3, bytecode.U16(300)),
		op1(bytecode.OpVLoad, 3),
		mov(1, bytecode.F64(0.25)),
		op2(bytecode.OpVStoreR, 2, 1),
		op2(bytecode.OpVLoadR, 4, 0),
	}, 4)
	mustRun(t, m)

	heap := m.Heap()
	want := []bytecode.Immediate{bytecode.I64(-7), bytecode.U8(0), bytecode.F64(0.25), bytecode.U16(300)}
	for i := range want {
		if heap[i] != want[i] {
			t.Errorf("heap[%d] = %s, want %s", i, heap[i], want[i])
		}
	}
	stack := m.Stack()
	if len(stack) != 1 || stack[0] != bytecode.U16(300) {
		t.Errorf("stack = %v, want [U16(300)]", stack)
	}
	if got := mustReg(t, m, 4); got != bytecode.I64(-7) {
		t.Errorf("r4 = %s, want I64(-7)", got)
	}
}

func TestHeapBounds(t *testing.T) {
	const capacity = 4
	tests := []struct {
		name string
		in   bytecode.Instruction
	}{
		{"VSTORE", opImm(bytecode.OpVStore, capacity, bytecode.U8(1))},
		{"VLOAD", op1(bytecode.OpVLoad, capacity)},
		{"VSTORER", op2(bytecode.OpVStoreR, capacity, 0)},
		{"VLOADR", op2(bytecode.OpVLoadR, 0, capacity)},
		{"PRINTV", op1(bytecode.OpPrintV, capacity)},
		{"VSTORE 255", opImm(bytecode.OpVStore, 255, bytecode.U8(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustMachine(t, []bytecode.Instruction{tt.in}, capacity)
			expectFault(t, m.Run(), 0, ErrHeapRange)
		})
	}

	t.Run("edges", func(t *testing.T) {
		m := mustMachine(t, []bytecode.Instruction{
			opImm(bytecode.OpVStore, 0, bytecode.U8(1)),
			opImm(bytecode.OpVStore, capacity-1, bytecode.U8(2)),
			op1(bytecode.OpVLoad, 0),
			op1(bytecode.OpVLoad, capacity-1),
		}, capacity)
		mustRun(t, m)
		if n := len(m.Stack()); n != 2 {
			t.Errorf("stack depth = %d, want 2", n)
		}
	})

	t.Run("zero capacity", func(t *testing.T) {
		m := mustMachine(t, []bytecode.Instruction{op1(bytecode.OpVLoad, 0)}, 0)
		expectFault(t, m.Run(), 0, ErrHeapRange)
	})
}

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

func TestPushPop(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{
		opImm(bytecode.OpVPush, 0, bytecode.I8(-1)),
		mov(2, bytecode.U32(9)),
		op1(bytecode.OpVPushR, 2),
		op1(bytecode.OpVPop, 5),
		op1(bytecode.OpVPop, 6),
	}, 0)
	mustRun(t, m)

	if got := mustReg(t, m, 5); got != bytecode.U32(9) {
		t.Errorf("r5 = %s, want U32(9)", got)
	}
	if got := mustReg(t, m, 6); got != bytecode.I8(-1) {
		t.Errorf("r6 = %s, want I8(-1)", got)
	}
	if n := len(m.Stack()); n != 0 {
		t.Errorf("stack depth = %d, want 0", n)
	}
}

func TestPushThenPopKeepsDepth(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{
		opImm(bytecode.OpVPush, 0, bytecode.U8(1)),
		opImm(bytecode.OpVPush, 0, bytecode.U8(2)),
		opImm(bytecode.OpVPush, 0, bytecode.U8(3)),
		op1(bytecode.OpVPop, 0),
	}, 0)
	mustRun(t, m)

	stack := m.Stack()
	if len(stack) != 2 {
		t.Fatalf("stack depth = %d, want 2", len(stack))
	}
	if stack[1] != bytecode.U8(2) {
		t.Errorf("top = %s, want U8(2)", stack[1])
	}
	if got := mustReg(t, m, 0); got != bytecode.U8(3) {
		t.Errorf("r0 = %s, want U8(3)", got)
	}
}

func TestPopEmptyStack(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{
		opImm(bytecode.OpVPush, 0, bytecode.U8(1)),
		op1(bytecode.OpVPop, 0),
		op1(bytecode.OpVPop, 0),
	}, 0)
	expectFault(t, m.Run(), 2, ErrStackEmpty)
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// arithProgram loads a and b into r0 and r1, then applies op. Shifts take b
// as their immediate, so they push b op r0; DIV pushes r1 / r0.
func arithProgram(op bytecode.Opcode, a, b bytecode.Immediate) []bytecode.Instruction {
	code := []bytecode.Instruction{mov(0, a), mov(1, b)}
	if op == bytecode.OpShr || op == bytecode.OpShl {
		return append(code, opImm(op, 0, b))
	}
	return append(code, op2(op, 0, 1))
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		op   bytecode.Opcode
		a, b bytecode.Immediate
		want bytecode.Immediate
	}{
		{bytecode.OpAdd, bytecode.I16(100), bytecode.I16(-2), bytecode.I16(98)},
		{bytecode.OpSub, bytecode.U8(3), bytecode.U8(5), bytecode.U8(254)},
		{bytecode.OpMul, bytecode.I32(6), bytecode.I32(7), bytecode.I32(42)},
		{bytecode.OpMul, bytecode.U8(16), bytecode.U8(16), bytecode.U8(0)},
		{bytecode.OpDiv, bytecode.I32(2), bytecode.I32(7), bytecode.I32(3)},
		{bytecode.OpDiv, bytecode.I64(2), bytecode.I64(-9), bytecode.I64(-4)},
		{bytecode.OpDiv, bytecode.F64(4), bytecode.F64(1), bytecode.F64(0.25)},
		{bytecode.OpMul, bytecode.F32(1.5), bytecode.F32(2), bytecode.F32(3)},
		{bytecode.OpAnd, bytecode.U16(0xFF0F), bytecode.U16(0x0FF0), bytecode.U16(0x0F00)},
		{bytecode.OpOr, bytecode.U32(0xF0), bytecode.U32(0x0F), bytecode.U32(0xFF)},
		{bytecode.OpXor, bytecode.I8(-1), bytecode.I8(0x0F), bytecode.I8(-16)},
		{bytecode.OpShr, bytecode.U32(2), bytecode.U32(16), bytecode.U32(4)},
		{bytecode.OpShr, bytecode.I16(1), bytecode.I16(-8), bytecode.I16(-4)},
		{bytecode.OpShl, bytecode.I8(3), bytecode.I8(1), bytecode.I8(8)},
		{bytecode.OpShl, bytecode.U64(63), bytecode.U64(1), bytecode.U64(1 << 63)},
	}

	for _, tt := range tests {
		t.Run(tt.op.String()+" "+tt.a.String(), func(t *testing.T) {
			m := mustMachine(t, arithProgram(tt.op, tt.a, tt.b), 0)
			mustRun(t, m)

			stack := m.Stack()
			if len(stack) != 1 {
				t.Fatalf("stack = %v, want one result", stack)
			}
			if stack[0] != tt.want {
				t.Errorf("%s r0=%s r1=%s: pushed %s, want %s", tt.op, tt.a, tt.b, stack[0], tt.want)
			}
			// Operands are left in place.
			if got := mustReg(t, m, 0); got != tt.a {
				t.Errorf("r0 = %s, want %s", got, tt.a)
			}
		})
	}
}

func TestArithmeticKindMismatch(t *testing.T) {
	ops := []bytecode.Opcode{
		bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor, bytecode.OpShr, bytecode.OpShl,
	}
	kinds := []bytecode.Immediate{
		bytecode.None(),
		bytecode.U8(1), bytecode.I8(1), bytecode.U16(1), bytecode.I16(1),
		bytecode.U32(1), bytecode.I32(1), bytecode.U64(1), bytecode.I64(1),
		bytecode.F32(1), bytecode.F64(1),
	}

	for _, op := range ops {
		for _, a := range kinds {
			for _, b := range kinds {
				if a.Kind() == b.Kind() {
					continue
				}
				m := mustMachine(t, arithProgram(op, a, b), 0)
				err := m.Run()
				if !errors.Is(err, ErrTypeMismatch) {
					t.Errorf("%s %s %s: err = %v, want ErrTypeMismatch", a, op, b, err)
				}
				if n := len(m.Stack()); n != 0 {
					t.Errorf("%s %s %s: stack depth = %d, want 0", a, op, b, n)
				}
			}
		}
	}
}

func TestArithmeticUnsupportedKind(t *testing.T) {
	tests := []struct {
		op   bytecode.Opcode
		a, b bytecode.Immediate
	}{
		{bytecode.OpAdd, bytecode.None(), bytecode.None()},
		{bytecode.OpAnd, bytecode.F32(1), bytecode.F32(1)},
		{bytecode.OpXor, bytecode.F64(1), bytecode.F64(1)},
		{bytecode.OpShl, bytecode.F64(1), bytecode.F64(1)},
	}

	for _, tt := range tests {
		m := mustMachine(t, arithProgram(tt.op, tt.a, tt.b), 0)
		expectFault(t, m.Run(), 2, ErrUnsupportedKind)
	}
}

func TestDivideByZero(t *testing.T) {
	m := mustMachine(t, arithProgram(bytecode.OpDiv, bytecode.U8(0), bytecode.U8(1)), 0)
	expectFault(t, m.Run(), 2, ErrDivideByZero)

	m = mustMachine(t, arithProgram(bytecode.OpDiv, bytecode.F64(0), bytecode.F64(1)), 0)
	mustRun(t, m)
	if got := m.Stack()[0].F64(); !math.IsInf(got, 1) {
		t.Errorf("1.0/0.0 = %v, want +Inf", got)
	}
}

func TestNegativeShift(t *testing.T) {
	m := mustMachine(t, arithProgram(bytecode.OpShl, bytecode.I32(-1), bytecode.I32(1)), 0)
	expectFault(t, m.Run(), 2, ErrNegativeShift)
}

func TestShiftOverflow(t *testing.T) {
	tests := []struct {
		op           bytecode.Opcode
		count, value bytecode.Immediate
	}{
		{bytecode.OpShl, bytecode.U8(8), bytecode.U8(1)},
		{bytecode.OpShr, bytecode.I16(16), bytecode.I16(-1)},
		{bytecode.OpShl, bytecode.U64(64), bytecode.U64(1)},
		{bytecode.OpShr, bytecode.I64(200), bytecode.I64(1)},
	}

	for _, tt := range tests {
		m := mustMachine(t, arithProgram(tt.op, tt.count, tt.value), 0)
		expectFault(t, m.Run(), 2, ErrShiftOverflow)
		if n := len(m.Stack()); n != 0 {
			t.Errorf("%s by %s: stack depth = %d, want 0", tt.op, tt.count, n)
		}
	}
}

// Non-commutative operators must see their operands in machine order.
func TestOperandOrder(t *testing.T) {
	tests := []struct {
		name string
		code []bytecode.Instruction
		want bytecode.Immediate
	}{
		{"SUB r0-r1", []bytecode.Instruction{
			mov(0, bytecode.U8(5)), mov(1, bytecode.U8(3)), op2(bytecode.OpSub, 0, 1),
		}, bytecode.U8(2)},
		{"DIV r1/r0", []bytecode.Instruction{
			mov(0, bytecode.U8(10)), mov(1, bytecode.U8(2)), op2(bytecode.OpDiv, 0, 1),
		}, bytecode.U8(0)},
		{"DIV r0/r1 swapped", []bytecode.Instruction{
			mov(0, bytecode.U8(10)), mov(1, bytecode.U8(2)), op2(bytecode.OpDiv, 1, 0),
		}, bytecode.U8(5)},
		{"SHR imm>>r0", []bytecode.Instruction{
			mov(0, bytecode.U8(1)), opImm(bytecode.OpShr, 0, bytecode.U8(8)),
		}, bytecode.U8(4)},
		{"SHL imm<<r0", []bytecode.Instruction{
			mov(0, bytecode.U8(1)), opImm(bytecode.OpShl, 0, bytecode.U8(3)),
		}, bytecode.U8(6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustMachine(t, tt.code, 0)
			mustRun(t, m)
			stack := m.Stack()
			if len(stack) != 1 || stack[0] != tt.want {
				t.Errorf("stack = %v, want [%s]", stack, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Comparison and jumps
// ---------------------------------------------------------------------------

func TestCmp(t *testing.T) {
	nan := bytecode.F64(math.NaN())
	tests := []struct {
		name   string
		a, b   bytecode.Immediate
		eq, gt bool
	}{
		{"equal", bytecode.I32(5), bytecode.I32(5), true, false},
		{"greater", bytecode.I32(6), bytecode.I32(5), false, true},
		{"less", bytecode.I32(-6), bytecode.I32(5), false, false},
		{"unsigned", bytecode.U8(200), bytecode.U8(100), false, true},
		{"cross kind rank", bytecode.I16(1), bytecode.U8(200), false, true},
		{"cross kind lower rank", bytecode.U8(200), bytecode.I16(1), false, false},
		{"none", bytecode.None(), bytecode.None(), true, false},
		{"nan", nan, nan, false, false},
		{"nan vs number", nan, bytecode.F64(1), false, false},
		{"signed zero", bytecode.F32(float32(math.Copysign(0, -1))), bytecode.F32(0), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustMachine(t, []bytecode.Instruction{
				mov(0, tt.a),
				mov(1, tt.b),
				op2(bytecode.OpCmp, 0, 1),
			}, 0)
			mustRun(t, m)

			eq, gt := m.Flags()
			if eq != tt.eq || gt != tt.gt {
				t.Errorf("CMP %s, %s: eq=%v gt=%v, want eq=%v gt=%v", tt.a, tt.b, eq, gt, tt.eq, tt.gt)
			}
		})
	}
}

func TestConditionalJumps(t *testing.T) {
	tests := []struct {
		op    bytecode.Opcode
		a, b  bytecode.Immediate
		taken bool
	}{
		{bytecode.OpJe, bytecode.U8(1), bytecode.U8(1), true},
		{bytecode.OpJe, bytecode.U8(1), bytecode.U8(2), false},
		{bytecode.OpJne, bytecode.U8(1), bytecode.U8(2), true},
		{bytecode.OpJne, bytecode.U8(1), bytecode.U8(1), false},
		{bytecode.OpJg, bytecode.U8(2), bytecode.U8(1), true},
		{bytecode.OpJg, bytecode.U8(1), bytecode.U8(1), false},
		{bytecode.OpJl, bytecode.U8(1), bytecode.U8(1), true},
		{bytecode.OpJl, bytecode.U8(2), bytecode.U8(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			m := mustMachine(t, []bytecode.Instruction{
				mov(0, tt.a),
				mov(1, tt.b),
				mov(2, bytecode.U16(42)),
				op2(bytecode.OpCmp, 0, 1),
				op1(tt.op, 2),
			}, 0)
			mustRun(t, m)

			want := 0
			if tt.taken {
				want = 42
			}
			if m.IP() != want {
				t.Errorf("%s after CMP %s, %s: ip = %d, want %d", tt.op, tt.a, tt.b, m.IP(), want)
			}
		})
	}
}

func TestJumpTargetKinds(t *testing.T) {
	for _, target := range []bytecode.Immediate{bytecode.U8(3), bytecode.U16(65535)} {
		m := mustMachine(t, []bytecode.Instruction{mov(0, target), op1(bytecode.OpJmp, 0)}, 0)
		mustRun(t, m)
		if want, _ := target.JumpTarget(); m.IP() != want {
			t.Errorf("JMP %s: ip = %d, want %d", target, m.IP(), want)
		}
	}

	for _, target := range []bytecode.Immediate{
		bytecode.I8(3), bytecode.I16(3), bytecode.U32(3), bytecode.U64(3), bytecode.F32(3), bytecode.None(),
	} {
		m := mustMachine(t, []bytecode.Instruction{mov(0, target), op1(bytecode.OpJmp, 0)}, 0)
		expectFault(t, m.Run(), 1, ErrBadJumpTarget)
	}
}

func TestUntakenJumpIgnoresTarget(t *testing.T) {
	// JE is not taken, so the non-address register is never inspected.
	m := mustMachine(t, []bytecode.Instruction{
		mov(0, bytecode.F64(1)),
		op1(bytecode.OpJe, 0),
	}, 0)
	mustRun(t, m)
}

// ---------------------------------------------------------------------------
// Subroutines
// ---------------------------------------------------------------------------

func TestCallRetSequential(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{
		mov(0, bytecode.U8(5)),
		op1(bytecode.OpCall, 0),
	}, 0)
	mustRun(t, m)

	// ip was 0 when CALL ran: fetch in sequential mode does not move it.
	stack := m.Stack()
	if len(stack) != 1 || stack[0] != bytecode.U16(1) {
		t.Errorf("stack = %v, want [U16(1)]", stack)
	}
	if m.IP() != 5 {
		t.Errorf("ip = %d, want 5", m.IP())
	}

	m = mustMachine(t, []bytecode.Instruction{
		mov(0, bytecode.U8(5)),
		op1(bytecode.OpCall, 0),
		{Op: bytecode.OpRet},
	}, 0)
	mustRun(t, m)
	if m.IP() != 1 {
		t.Errorf("ip after RET = %d, want 1", m.IP())
	}
	if n := len(m.Stack()); n != 0 {
		t.Errorf("stack depth = %d, want 0", n)
	}
}

func TestCallRetJumpFetch(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{
		mov(0, bytecode.U8(4)),  // 0
		op1(bytecode.OpCall, 0), // 1
		mov(1, bytecode.U8(7)),  // 2
		{Op: bytecode.OpHalt},   // 3
		mov(2, bytecode.I8(-1)), // 4
		{Op: bytecode.OpRet},    // 5
	}, 0, WithFetchMode(FetchJump))
	mustRun(t, m)

	if got := mustReg(t, m, 1); got != bytecode.U8(7) {
		t.Errorf("r1 = %s, want U8(7)", got)
	}
	if got := mustReg(t, m, 2); got != bytecode.I8(-1) {
		t.Errorf("r2 = %s, want I8(-1)", got)
	}
	if n := len(m.Stack()); n != 0 {
		t.Errorf("stack depth = %d, want 0", n)
	}
	if m.Running() {
		t.Error("running = true after HALT")
	}
}

func TestCallBadTargetKeepsReturnAddress(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{
		mov(0, bytecode.I32(5)),
		op1(bytecode.OpCall, 0),
	}, 0)
	expectFault(t, m.Run(), 1, ErrBadJumpTarget)

	stack := m.Stack()
	if len(stack) != 1 || stack[0] != bytecode.U16(1) {
		t.Errorf("stack = %v, want [U16(1)]", stack)
	}
}

func TestRetFaults(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{{Op: bytecode.OpRet}}, 0)
	expectFault(t, m.Run(), 0, ErrStackEmpty)

	m = mustMachine(t, []bytecode.Instruction{
		opImm(bytecode.OpVPush, 0, bytecode.I32(1)),
		{Op: bytecode.OpRet},
	}, 0)
	expectFault(t, m.Run(), 1, ErrBadJumpTarget)
}

// ---------------------------------------------------------------------------
// Misc
// ---------------------------------------------------------------------------

func TestHaltClearsRunning(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{{Op: bytecode.OpHalt}}, 0)
	mustRun(t, m)
	if m.Running() {
		t.Error("running = true after HALT")
	}
}

func TestNopOnly(t *testing.T) {
	m, err := New([]byte{0, 0xEE, 0x40}, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustRun(t, m)
	if n := len(m.Code()); n != 3 {
		t.Errorf("code length = %d, want 3", n)
	}
	if m.IP() != 0 || len(m.Stack()) != 0 {
		t.Errorf("state changed: ip=%d stack=%v", m.IP(), m.Stack())
	}
}

func TestUndefinedOpcodeFromCode(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{{Op: bytecode.Opcode(0xEE)}}, 0)
	expectFault(t, m.Run(), 0, ErrUndefinedOpcode)
}

func TestPrintOutput(t *testing.T) {
	var out bytes.Buffer
	m := mustMachine(t, []bytecode.Instruction{
		mov(0, bytecode.I16(-2)),
		op1(bytecode.OpPrintR, 0),
		opImm(bytecode.OpVStore, 1, bytecode.F64(1.5)),
		op1(bytecode.OpPrintV, 1),
	}, 2, WithOutput(&out))
	mustRun(t, m)

	want := "I16(-2)\nF64(1.5)\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestPrintDefaultDiscards(t *testing.T) {
	m := mustMachine(t, []bytecode.Instruction{op1(bytecode.OpPrintR, 0)}, 0, WithOutput(nil))
	mustRun(t, m)
}
