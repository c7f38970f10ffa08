package vm

import (
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/mimihuang/VM-practice/pkg/bytecode"
)

// log returns the package logger. It is looked up on each use so that a
// backend configured after package initialization takes effect.
func log() commonlog.Logger {
	return commonlog.GetLogger("smallvm.vm")
}

// NumRegisters is the size of the general register file.
const NumRegisters = 8

// Machine is the register/stack hybrid VM. It owns all machine state:
// instruction pointer, comparison flags, registers, operand stack and heap.
// A Machine is created for one program and is not safe for concurrent use.
type Machine struct {
	ip        int
	flagEq    bool
	flagGT    bool
	registers [NumRegisters]bytecode.Immediate
	code      []bytecode.Instruction // never modified after construction
	stack     []bytecode.Immediate
	heap      []bytecode.Immediate // fixed capacity
	running   bool

	// jumped is set when the current instruction wrote ip.
	jumped bool

	fetch    FetchMode
	maxSteps int
	tracer   Tracer
	output   io.Writer
	profiler *Profiler
}

// New decodes program and creates a machine with heapCapacity heap cells.
// Registers and heap cells start as U8(0); the stack starts empty.
func New(program []byte, heapCapacity int, opts ...Option) (*Machine, error) {
	code, err := bytecode.Decode(program)
	if err != nil {
		return nil, err
	}
	return NewFromCode(code, heapCapacity, opts...)
}

// NewFromCode creates a machine for an already decoded instruction sequence.
// The sequence is copied.
func NewFromCode(code []bytecode.Instruction, heapCapacity int, opts ...Option) (*Machine, error) {
	if heapCapacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrHeapCapacity, heapCapacity)
	}

	m := &Machine{
		code:   append([]bytecode.Instruction(nil), code...),
		stack:  make([]bytecode.Immediate, 0, 16),
		heap:   make([]bytecode.Immediate, heapCapacity),
		output: io.Discard,
	}
	for i := range m.registers {
		m.registers[i] = bytecode.U8(0)
	}
	for i := range m.heap {
		m.heap[i] = bytecode.U8(0)
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.output == nil {
		m.output = io.Discard
	}
	return m, nil
}

// Run executes the program according to the machine's fetch mode. It returns
// nil when execution finishes and a *Fault for the first instruction that
// fails; nothing after a fault is executed.
func (m *Machine) Run() error {
	m.running = true
	log().Debugf("run: %d instruction(s), heap %d, fetch %s", len(m.code), len(m.heap), m.fetch)

	var err error
	switch m.fetch {
	case FetchJump:
		err = m.runJump()
	default:
		err = m.runSequential()
	}

	if err != nil {
		log().Debugf("run aborted: %v", err)
		return err
	}
	log().Debugf("run finished: ip=%d stack=%d", m.ip, len(m.stack))
	return nil
}

// runSequential executes code[0..len) in order. The instruction pointer is
// written by control transfers but never consulted for fetching.
func (m *Machine) runSequential() error {
	for i, in := range m.code {
		if m.maxSteps > 0 && i >= m.maxSteps {
			return &Fault{Index: i, Instruction: in, Err: ErrStepLimit}
		}
		if err := m.step(i, in); err != nil {
			return err
		}
	}
	return nil
}

// runJump fetches from ip until HALT, the end of the code, or a fault.
func (m *Machine) runJump() error {
	limit := m.maxSteps
	if limit <= 0 {
		limit = DefaultMaxSteps
	}

	for steps := 0; m.running && m.ip >= 0 && m.ip < len(m.code); steps++ {
		i := m.ip
		in := m.code[i]
		if steps >= limit {
			return &Fault{Index: i, Instruction: in, Err: ErrStepLimit}
		}
		m.jumped = false
		if err := m.step(i, in); err != nil {
			return err
		}
		if !m.jumped {
			m.ip = i + 1
		}
	}
	return nil
}

func (m *Machine) step(index int, in bytecode.Instruction) error {
	if m.tracer != nil {
		m.tracer.TraceStep(Step{
			Index:       index,
			IP:          m.ip,
			Instruction: in,
			StackDepth:  len(m.stack),
		})
	}
	if m.profiler != nil {
		m.profiler.record(in.Op)
	}
	if err := m.execute(in); err != nil {
		return &Fault{Index: index, Instruction: in, Err: err}
	}
	return nil
}

// ---------------------------------------------------------------------------
// State access
// ---------------------------------------------------------------------------

func (m *Machine) reg(r uint8) (bytecode.Immediate, error) {
	if int(r) >= NumRegisters {
		return bytecode.None(), fmt.Errorf("%w: r%d", ErrRegisterRange, r)
	}
	return m.registers[r], nil
}

func (m *Machine) setReg(r uint8, v bytecode.Immediate) error {
	if int(r) >= NumRegisters {
		return fmt.Errorf("%w: r%d", ErrRegisterRange, r)
	}
	m.registers[r] = v
	return nil
}

func (m *Machine) load(addr uint8) (bytecode.Immediate, error) {
	if int(addr) >= len(m.heap) {
		return bytecode.None(), fmt.Errorf("%w: @%d (capacity %d)", ErrHeapRange, addr, len(m.heap))
	}
	return m.heap[addr], nil
}

func (m *Machine) store(addr uint8, v bytecode.Immediate) error {
	if int(addr) >= len(m.heap) {
		return fmt.Errorf("%w: @%d (capacity %d)", ErrHeapRange, addr, len(m.heap))
	}
	m.heap[addr] = v
	return nil
}

func (m *Machine) push(v bytecode.Immediate) {
	m.stack = append(m.stack, v)
}

func (m *Machine) pop() (bytecode.Immediate, error) {
	if len(m.stack) == 0 {
		return bytecode.None(), ErrStackEmpty
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) setIP(target int) {
	m.ip = target
	m.jumped = true
	if m.profiler != nil {
		m.profiler.jumps++
	}
}

// IP returns the instruction pointer.
func (m *Machine) IP() int { return m.ip }

// Flags returns the equal and greater-than flags set by CMP.
func (m *Machine) Flags() (eq, gt bool) { return m.flagEq, m.flagGT }

// Running reports whether the machine is running: true from the start of Run
// until HALT executes.
func (m *Machine) Running() bool { return m.running }

// Register returns the value of register r.
func (m *Machine) Register(r int) (bytecode.Immediate, error) {
	if r < 0 || r >= NumRegisters {
		return bytecode.None(), fmt.Errorf("%w: r%d", ErrRegisterRange, r)
	}
	return m.registers[r], nil
}

// Registers returns a copy of the register file.
func (m *Machine) Registers() [NumRegisters]bytecode.Immediate { return m.registers }

// Stack returns a copy of the operand stack, bottom first.
func (m *Machine) Stack() []bytecode.Immediate {
	return append([]bytecode.Immediate(nil), m.stack...)
}

// Heap returns a copy of the heap.
func (m *Machine) Heap() []bytecode.Immediate {
	return append([]bytecode.Immediate(nil), m.heap...)
}

// HeapCapacity returns the fixed number of heap cells.
func (m *Machine) HeapCapacity() int { return len(m.heap) }

// Code returns a copy of the decoded instruction sequence.
func (m *Machine) Code() []bytecode.Instruction {
	return append([]bytecode.Instruction(nil), m.code...)
}

// FetchMode returns the run loop in use.
func (m *Machine) FetchMode() FetchMode { return m.fetch }
