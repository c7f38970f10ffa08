package vm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mimihuang/VM-practice/pkg/bytecode"
)

// Profiler counts executed instructions per opcode and the number of taken
// control transfers. It is attached with WithProfiler and may be shared by
// several sequential runs; it is not safe for concurrent use.
type Profiler struct {
	counts [256]uint64
	steps  uint64
	jumps  uint64
}

// NewProfiler creates an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

func (p *Profiler) record(op bytecode.Opcode) {
	p.counts[op]++
	p.steps++
}

// Steps returns the total number of executed instructions.
func (p *Profiler) Steps() uint64 { return p.steps }

// Count returns how many times op was executed.
func (p *Profiler) Count(op bytecode.Opcode) uint64 { return p.counts[op] }

// Jumps returns the number of instructions that wrote the instruction pointer.
func (p *Profiler) Jumps() uint64 { return p.jumps }

// Reset clears all counters.
func (p *Profiler) Reset() {
	*p = Profiler{}
}

// OpcodeCount pairs an opcode with its execution count.
type OpcodeCount struct {
	Op    bytecode.Opcode
	Count uint64
}

// Hot returns the executed opcodes, most frequent first. Ties are ordered by
// opcode number.
func (p *Profiler) Hot() []OpcodeCount {
	var out []OpcodeCount
	for op, n := range p.counts {
		if n > 0 {
			out = append(out, OpcodeCount{Op: bytecode.Opcode(op), Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Op < out[j].Op
	})
	return out
}

// Report renders the counters as a small table.
func (p *Profiler) Report() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "steps: %d  jumps: %d\n", p.steps, p.jumps)
	for _, c := range p.Hot() {
		fmt.Fprintf(&sb, "  %-8s %d\n", c.Op, c.Count)
	}
	return sb.String()
}
