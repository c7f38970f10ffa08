// Package snapshot encodes machine state as canonical CBOR so a finished run
// can be written to disk, compared byte for byte, and inspected later.
package snapshot

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/mimihuang/VM-practice/pkg/bytecode"
	"github.com/mimihuang/VM-practice/vm"
)

// Version is the snapshot format version written by Marshal.
const Version = 1

var (
	ErrVersion   = errors.New("snapshot: unsupported version")
	ErrRegisters = errors.New("snapshot: wrong register count")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Value is the wire form of one Immediate.
type Value struct {
	Kind uint8  `cbor:"1,keyasint"`
	Bits uint64 `cbor:"2,keyasint,omitempty"`
}

// Snapshot is the wire form of a vm.State.
type Snapshot struct {
	Version     uint8    `cbor:"1,keyasint"`
	ProgramHash [32]byte `cbor:"2,keyasint"` // sha256 of the program bytes, zero if unknown
	IP          int      `cbor:"3,keyasint"`
	FlagEq      bool     `cbor:"4,keyasint"`
	FlagGT      bool     `cbor:"5,keyasint"`
	Running     bool     `cbor:"6,keyasint"`
	Registers   []Value  `cbor:"7,keyasint"`
	Stack       []Value  `cbor:"8,keyasint"`
	Heap        []Value  `cbor:"9,keyasint"`
}

// New builds a snapshot of s. program may be nil.
func New(s *vm.State, program []byte) *Snapshot {
	snap := &Snapshot{
		Version:   Version,
		IP:        s.IP,
		FlagEq:    s.FlagEq,
		FlagGT:    s.FlagGT,
		Running:   s.Running,
		Registers: values(s.Registers[:]),
		Stack:     values(s.Stack),
		Heap:      values(s.Heap),
	}
	if program != nil {
		snap.ProgramHash = sha256.Sum256(program)
	}
	return snap
}

// State converts the snapshot back into a vm.State.
func (snap *Snapshot) State() (*vm.State, error) {
	if snap.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, snap.Version)
	}
	if len(snap.Registers) != vm.NumRegisters {
		return nil, fmt.Errorf("%w: %d", ErrRegisters, len(snap.Registers))
	}

	s := &vm.State{
		IP:      snap.IP,
		FlagEq:  snap.FlagEq,
		FlagGT:  snap.FlagGT,
		Running: snap.Running,
	}
	for i, v := range snap.Registers {
		imm, err := v.immediate()
		if err != nil {
			return nil, fmt.Errorf("register r%d: %w", i, err)
		}
		s.Registers[i] = imm
	}

	var err error
	if s.Stack, err = immediates(snap.Stack); err != nil {
		return nil, fmt.Errorf("stack: %w", err)
	}
	if s.Heap, err = immediates(snap.Heap); err != nil {
		return nil, fmt.Errorf("heap: %w", err)
	}
	return s, nil
}

// Matches reports whether the snapshot was taken from program.
func (snap *Snapshot) Matches(program []byte) bool {
	return snap.ProgramHash == sha256.Sum256(program)
}

// Marshal serializes a machine state to canonical CBOR bytes.
func Marshal(s *vm.State, program []byte) ([]byte, error) {
	return cborEncMode.Marshal(New(s, program))
}

// Unmarshal deserializes a snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	return &snap, nil
}

// UnmarshalState deserializes CBOR bytes straight into a machine state.
func UnmarshalState(data []byte) (*vm.State, error) {
	snap, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return snap.State()
}

func values(imms []bytecode.Immediate) []Value {
	out := make([]Value, len(imms))
	for i, imm := range imms {
		out[i] = Value{Kind: uint8(imm.Kind()), Bits: imm.Bits()}
	}
	return out
}

func immediates(vals []Value) ([]bytecode.Immediate, error) {
	out := make([]bytecode.Immediate, len(vals))
	for i, v := range vals {
		imm, err := v.immediate()
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		out[i] = imm
	}
	return out, nil
}

func (v Value) immediate() (bytecode.Immediate, error) {
	return bytecode.FromBits(bytecode.Kind(v.Kind), v.Bits)
}
