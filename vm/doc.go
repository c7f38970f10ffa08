// Package vm implements the smallvm execution engine.
//
// A Machine holds eight general registers, a growable operand stack, a
// fixed-capacity heap, two comparison flags and an instruction pointer. It
// executes a decoded instruction sequence (see package bytecode) one
// instruction at a time.
//
// Two fetch modes exist. FetchSequential, the default, runs every decoded
// instruction once in order; jumps only update the instruction pointer and
// HALT only clears the running flag. FetchJump follows the instruction
// pointer, stops at HALT, and is bounded by a step limit.
//
// The first failing instruction aborts the run with a *Fault. Faults wrap the
// sentinel errors in this package, so callers can use errors.Is:
//
//	m, err := vm.New(program, 1024)
//	if err != nil {
//		return err
//	}
//	if err := m.Run(); errors.Is(err, vm.ErrStackEmpty) {
//		...
//	}
package vm
