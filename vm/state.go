package vm

import (
	"fmt"
	"strings"

	"github.com/mimihuang/VM-practice/pkg/bytecode"
)

// State is a detached copy of the machine state, for hosts that want to
// inspect, print or serialise it after a run.
type State struct {
	IP        int
	FlagEq    bool
	FlagGT    bool
	Running   bool
	Registers [NumRegisters]bytecode.Immediate
	Stack     []bytecode.Immediate
	Heap      []bytecode.Immediate
}

// State returns a copy of the current machine state.
func (m *Machine) State() *State {
	return &State{
		IP:        m.ip,
		FlagEq:    m.flagEq,
		FlagGT:    m.flagGT,
		Running:   m.running,
		Registers: m.registers,
		Stack:     m.Stack(),
		Heap:      m.Heap(),
	}
}

// Equal reports whether two states hold the same values. Immediates are
// compared by kind and bits, so a NaN register equals itself.
func (s *State) Equal(o *State) bool {
	if s.IP != o.IP || s.FlagEq != o.FlagEq || s.FlagGT != o.FlagGT || s.Running != o.Running {
		return false
	}
	if s.Registers != o.Registers {
		return false
	}
	return sameImmediates(s.Stack, o.Stack) && sameImmediates(s.Heap, o.Heap)
}

func sameImmediates(a, b []bytecode.Immediate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders the state for humans. Heap cells still holding the initial
// U8(0) are elided.
func (s *State) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ip=%d eq=%t gt=%t running=%t\n", s.IP, s.FlagEq, s.FlagGT, s.Running)
	for i, r := range s.Registers {
		fmt.Fprintf(&sb, "  r%d = %s\n", i, r)
	}
	fmt.Fprintf(&sb, "  stack (%d):", len(s.Stack))
	for _, v := range s.Stack {
		sb.WriteByte(' ')
		sb.WriteString(v.String())
	}
	sb.WriteByte('\n')

	zero := bytecode.U8(0)
	shown := 0
	for i, v := range s.Heap {
		if v == zero {
			continue
		}
		fmt.Fprintf(&sb, "  @%d = %s\n", i, v)
		shown++
	}
	fmt.Fprintf(&sb, "  heap: %d cell(s), %d non-zero\n", len(s.Heap), shown)
	return sb.String()
}
