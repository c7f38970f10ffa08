package vm

import (
	"fmt"

	"github.com/mimihuang/VM-practice/pkg/bytecode"
)

// execute applies one instruction to the machine state. It either completes
// the whole state transition or returns an error; in the latter case the run
// is aborted and the partial state is not rolled back.
func (m *Machine) execute(in bytecode.Instruction) error {
	switch in.Op {
	// ============ Data Movement ============
	case bytecode.OpNop:
		return nil

	case bytecode.OpMov:
		return m.setReg(in.A, in.Imm)

	case bytecode.OpMovR:
		v, err := m.reg(in.B)
		if err != nil {
			return err
		}
		return m.setReg(in.A, v)

	// ============ Control Flow ============
	case bytecode.OpJmp:
		return m.jump(in.A)

	case bytecode.OpJe:
		if !m.flagEq {
			return nil
		}
		return m.jump(in.A)

	case bytecode.OpJne:
		if m.flagEq {
			return nil
		}
		return m.jump(in.A)

	case bytecode.OpJg:
		if !m.flagGT {
			return nil
		}
		return m.jump(in.A)

	case bytecode.OpJl:
		if m.flagGT {
			return nil
		}
		return m.jump(in.A)

	case bytecode.OpCmp:
		a, err := m.reg(in.A)
		if err != nil {
			return err
		}
		b, err := m.reg(in.B)
		if err != nil {
			return err
		}
		m.flagEq = a.Equal(b)
		m.flagGT = a.Greater(b)
		return nil

	// ============ Observation ============
	case bytecode.OpPrintR:
		v, err := m.reg(in.A)
		if err != nil {
			return err
		}
		m.print(v)
		return nil

	case bytecode.OpPrintV:
		v, err := m.load(in.A)
		if err != nil {
			return err
		}
		m.print(v)
		return nil

	// ============ Heap ============
	case bytecode.OpVStore:
		return m.store(in.A, in.Imm)

	case bytecode.OpVLoad:
		v, err := m.load(in.A)
		if err != nil {
			return err
		}
		m.push(v)
		return nil

	case bytecode.OpVStoreR:
		v, err := m.reg(in.B)
		if err != nil {
			return err
		}
		return m.store(in.A, v)

	case bytecode.OpVLoadR:
		v, err := m.load(in.B)
		if err != nil {
			return err
		}
		return m.setReg(in.A, v)

	// ============ Arithmetic ============
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor:
		a, err := m.reg(in.A)
		if err != nil {
			return err
		}
		b, err := m.reg(in.B)
		if err != nil {
			return err
		}
		if in.Op == bytecode.OpDiv {
			// DIV divides the second register by the first.
			return m.arith(in.Op, b, a)
		}
		return m.arith(in.Op, a, b)

	case bytecode.OpShr, bytecode.OpShl:
		// The immediate is shifted; the register holds the count.
		a, err := m.reg(in.A)
		if err != nil {
			return err
		}
		return m.arith(in.Op, in.Imm, a)

	// ============ Stack ============
	case bytecode.OpVPush:
		m.push(in.Imm)
		return nil

	case bytecode.OpVPushR:
		v, err := m.reg(in.A)
		if err != nil {
			return err
		}
		m.push(v)
		return nil

	case bytecode.OpVPop:
		if int(in.A) >= NumRegisters {
			return fmt.Errorf("%w: r%d", ErrRegisterRange, in.A)
		}
		v, err := m.pop()
		if err != nil {
			return err
		}
		return m.setReg(in.A, v)

	// ============ Subroutines ============
	case bytecode.OpCall:
		// The return address is truncated to 16 bits.
		m.push(bytecode.U16(uint16(m.ip) + 1))
		return m.jump(in.A)

	case bytecode.OpRet:
		v, err := m.pop()
		if err != nil {
			return err
		}
		target, ok := v.JumpTarget()
		if !ok {
			return fmt.Errorf("%w: return address %s", ErrBadJumpTarget, v)
		}
		m.setIP(target)
		return nil

	case bytecode.OpHalt:
		m.running = false
		return nil
	}

	return fmt.Errorf("%w: 0x%02X", ErrUndefinedOpcode, byte(in.Op))
}

// jump sets ip to the value of register r, which must hold a U8 or U16.
func (m *Machine) jump(r uint8) error {
	v, err := m.reg(r)
	if err != nil {
		return err
	}
	target, ok := v.JumpTarget()
	if !ok {
		return fmt.Errorf("%w: r%d holds %s", ErrBadJumpTarget, r, v)
	}
	m.setIP(target)
	return nil
}

// arith computes a op b and pushes the result.
func (m *Machine) arith(op bytecode.Opcode, a, b bytecode.Immediate) error {
	r, err := bytecode.Arith(op, a, b)
	if err != nil {
		return err
	}
	m.push(r)
	return nil
}

// print writes a value to the output side channel. Write errors are ignored:
// the output carries no machine state.
func (m *Machine) print(v bytecode.Immediate) {
	fmt.Fprintf(m.output, "%s\n", v)
}
