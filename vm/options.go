package vm

import (
	"fmt"
	"io"
	"strings"
)

// FetchMode selects how the run loop picks the next instruction.
type FetchMode uint8

const (
	// FetchSequential executes every decoded instruction once, in order.
	// Jumps, CALL and RET update the instruction pointer but do not change
	// which instruction runs next, and HALT does not stop the loop.
	FetchSequential FetchMode = iota

	// FetchJump fetches the instruction the instruction pointer names.
	// Control transfers redirect execution, HALT stops it, and running past
	// the last instruction ends the run. A step limit guards against loops.
	FetchJump
)

// DefaultMaxSteps bounds a FetchJump run when no limit is configured.
const DefaultMaxSteps = 1 << 20

// String returns the mode name used in configuration.
func (f FetchMode) String() string {
	switch f {
	case FetchSequential:
		return "sequential"
	case FetchJump:
		return "jump"
	default:
		return fmt.Sprintf("FetchMode(%d)", f)
	}
}

// ParseFetchMode parses "sequential" or "jump".
func ParseFetchMode(s string) (FetchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential":
		return FetchSequential, nil
	case "jump":
		return FetchJump, nil
	}
	return FetchSequential, fmt.Errorf("unknown fetch mode %q (want sequential or jump)", s)
}

// Option configures a Machine.
type Option func(*Machine)

// WithFetchMode selects the run loop. The default is FetchSequential.
func WithFetchMode(mode FetchMode) Option {
	return func(m *Machine) {
		m.fetch = mode
	}
}

// WithMaxSteps bounds the number of instructions a run may execute. Zero
// means no limit for FetchSequential (the sequence length already bounds it)
// and DefaultMaxSteps for FetchJump.
func WithMaxSteps(n int) Option {
	return func(m *Machine) {
		m.maxSteps = n
	}
}

// WithTracer installs a tracer that sees every instruction before it runs.
func WithTracer(t Tracer) Option {
	return func(m *Machine) {
		m.tracer = t
	}
}

// WithOutput sets where PRINTR and PRINTV write. By default their output is
// discarded.
func WithOutput(w io.Writer) Option {
	return func(m *Machine) {
		m.output = w
	}
}

// WithProfiler counts executed instructions into p.
func WithProfiler(p *Profiler) Option {
	return func(m *Machine) {
		m.profiler = p
	}
}
