package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/mimihuang/VM-practice/journal"
	"github.com/mimihuang/VM-practice/manifest"
	"github.com/mimihuang/VM-practice/pkg/bytecode"
	"github.com/mimihuang/VM-practice/vm"
	"github.com/mimihuang/VM-practice/vm/snapshot"
)

func log() commonlog.Logger {
	return commonlog.GetLogger("smallvm")
}

// sampleProgram is MOV r1,I16(100); MOV r2,I16(-2); CMP r0,r1; MOVR r2,r7;
// NOP; HALT.
var sampleProgram = []byte{
	0x01, 0x01, 0x03, 0x64, 0x00,
	0x01, 0x02, 0x03, 0xFE, 0xFF,
	0x06, 0x00, 0x01,
	0x02, 0x02, 0x07,
	0x00,
	0x16,
}

// options holds the command line. set records which flags were given so
// they override the configuration file only when present.
type options struct {
	verbose    bool
	configPath string
	heap       int
	fetch      string
	maxSteps   int
	trace      bool
	journal    string
	dump       string
	inspect    string
	disasm     bool
	hexProgram string
	sample     bool
	stats      bool

	set map[string]bool
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(opts options) (*manifest.Manifest, error) {
	var cfg *manifest.Manifest
	var err error
	if opts.configPath != "" {
		cfg, err = manifest.LoadFile(opts.configPath)
	} else {
		cfg, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = manifest.Default()
	}

	if opts.set["heap"] {
		if opts.heap < 0 {
			return nil, fmt.Errorf("invalid heap capacity %d", opts.heap)
		}
		cfg.Machine.HeapCapacity = opts.heap
	}
	if opts.set["fetch"] {
		cfg.Machine.Fetch = opts.fetch
	}
	if opts.set["max-steps"] {
		cfg.Machine.MaxSteps = opts.maxSteps
	}
	if opts.set["trace"] {
		cfg.Trace.Enabled = opts.trace
	}
	if opts.set["journal"] {
		cfg.Trace.Journal = opts.journal
	}
	return cfg, nil
}

// loadProgram returns the program bytes named by the command line.
func loadProgram(opts options, args []string) ([]byte, error) {
	sources := 0
	for _, given := range []bool{opts.sample, opts.hexProgram != "", len(args) > 0} {
		if given {
			sources++
		}
	}
	switch {
	case sources == 0:
		return nil, errors.New("no program given (use a file, -x or -sample)")
	case sources > 1 || len(args) > 1:
		return nil, errors.New("give exactly one program")
	case opts.sample:
		return sampleProgram, nil
	case opts.hexProgram != "":
		clean := strings.NewReplacer(" ", "", "\n", "", "\t", "", "0x", "", ",", "").Replace(opts.hexProgram)
		program, err := hex.DecodeString(clean)
		if err != nil {
			return nil, fmt.Errorf("invalid hex program: %w", err)
		}
		return program, nil
	}

	program, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("cannot read program: %w", err)
	}
	return program, nil
}

// execute carries out one CLI invocation. PRINTR and PRINTV output goes to out
// along with any listings the flags ask for.
func execute(cfg *manifest.Manifest, opts options, args []string, out io.Writer) error {
	if opts.inspect != "" {
		return inspect(opts.inspect, out)
	}

	program, err := loadProgram(opts, args)
	if err != nil {
		return err
	}

	if opts.disasm {
		listing, err := bytecode.DisassembleBytes(program)
		if err != nil {
			return err
		}
		fmt.Fprint(out, listing)
		return nil
	}

	vmOpts, err := cfg.Options()
	if err != nil {
		return err
	}
	vmOpts = append(vmOpts, vm.WithOutput(out))

	var tracers []vm.Tracer
	if cfg.Trace.Enabled {
		tracers = append(tracers, vm.NewLogTracer())
	}

	var run *journal.Run
	if path := cfg.JournalPath(); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer j.Close()

		mode, _ := cfg.FetchMode()
		run, err = j.BeginRun(program, cfg.Machine.HeapCapacity, mode)
		if err != nil {
			return err
		}
		tracers = append(tracers, run)
	}
	if len(tracers) > 0 {
		vmOpts = append(vmOpts, vm.WithTracer(vm.MultiTracer(tracers...)))
	}

	var profiler *vm.Profiler
	if opts.stats {
		profiler = vm.NewProfiler()
		vmOpts = append(vmOpts, vm.WithProfiler(profiler))
	}

	m, err := vm.New(program, cfg.Machine.HeapCapacity, vmOpts...)
	if err != nil {
		// A program that fails to decode is still journaled, as a fault
		// with no steps.
		finishRun(run, err)
		return err
	}

	runErr := m.Run()
	finishRun(run, runErr)

	if opts.verbose || opts.sample {
		fmt.Fprint(out, m.State())
	}
	if profiler != nil {
		fmt.Fprint(out, profiler.Report())
	}
	if opts.dump != "" {
		if err := dump(opts.dump, m.State(), program); err != nil {
			return err
		}
	}
	return runErr
}

// finishRun closes the journal transaction for run, if any. Journal failures
// are logged and never mask runErr.
func finishRun(run *journal.Run, runErr error) {
	if run == nil {
		return
	}
	if err := run.Finish(runErr); err != nil {
		log().Errorf("journal: %v", err)
		return
	}
	log().Infof("journal: recorded run %d (%s)", run.ID, run.UUID)
}

// dump writes a CBOR snapshot of s. The state is written even after a fault.
func dump(path string, s *vm.State, program []byte) error {
	data, err := snapshot.Marshal(s, program)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	log().Infof("state written to %s (%d bytes)", path, len(data))
	return nil
}

func inspect(path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read state: %w", err)
	}
	snap, err := snapshot.Unmarshal(data)
	if err != nil {
		return err
	}
	s, err := snap.State()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "snapshot v%d, program %x\n", snap.Version, snap.ProgramHash[:8])
	fmt.Fprint(out, s)
	return nil
}
