package vm

import (
	"github.com/tliron/commonlog"

	"github.com/mimihuang/VM-practice/pkg/bytecode"
)

// Step describes one instruction about to execute.
type Step struct {
	Index       int                  // Position in the decoded sequence
	IP          int                  // Instruction pointer before the instruction runs
	Instruction bytecode.Instruction // Instruction about to run
	StackDepth  int                  // Operand stack depth before the instruction runs
}

// Tracer observes execution. TraceStep is called once per executed
// instruction, before its effect is applied. Tracing carries no machine
// state and its output format is not part of any contract.
type Tracer interface {
	TraceStep(Step)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(Step)

func (f TracerFunc) TraceStep(s Step) { f(s) }

// MultiTracer fans each step out to several tracers, skipping nil entries.
func MultiTracer(tracers ...Tracer) Tracer {
	var ts []Tracer
	for _, t := range tracers {
		if t != nil {
			ts = append(ts, t)
		}
	}
	if len(ts) == 1 {
		return ts[0]
	}
	return TracerFunc(func(s Step) {
		for _, t := range ts {
			t.TraceStep(s)
		}
	})
}

// LogTracer writes one debug line per step to a commonlog logger.
type LogTracer struct {
	log commonlog.Logger
}

// NewLogTracer creates a tracer logging to the "smallvm.trace" logger.
func NewLogTracer() *LogTracer {
	return &LogTracer{log: commonlog.GetLogger("smallvm.trace")}
}

func (t *LogTracer) TraceStep(s Step) {
	if !t.log.AllowLevel(commonlog.Debug) {
		return
	}
	t.log.Debugf("#%04d ip=%d sp=%d  %s", s.Index, s.IP, s.StackDepth, s.Instruction)
}
