// smallvm CLI - decode and run a bytecode program
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	var opts options
	flag.BoolVar(&opts.verbose, "v", false, "Verbose output (info logging, print final state)")
	flag.StringVar(&opts.configPath, "config", "", "Configuration file (default: smallvm.toml found from the current directory)")
	flag.IntVar(&opts.heap, "heap", 0, "Heap capacity in cells")
	flag.StringVar(&opts.fetch, "fetch", "", "Fetch mode: sequential or jump")
	flag.IntVar(&opts.maxSteps, "max-steps", 0, "Step limit (0 = default for the fetch mode)")
	flag.BoolVar(&opts.trace, "trace", false, "Log every executed instruction (debug logging)")
	flag.StringVar(&opts.journal, "journal", "", "Record the run in a SQLite journal at this path")
	flag.StringVar(&opts.dump, "dump", "", "Write the final machine state as CBOR to this path")
	flag.StringVar(&opts.inspect, "inspect", "", "Print a CBOR state dump and exit")
	flag.BoolVar(&opts.disasm, "d", false, "Disassemble the program instead of running it")
	flag.StringVar(&opts.hexProgram, "x", "", "Program as hex bytes instead of a file")
	flag.BoolVar(&opts.sample, "sample", false, "Run the built-in sample program")
	flag.BoolVar(&opts.stats, "stats", false, "Print per-opcode execution counts")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: smallvm [options] [program.bin]\n\n")
		fmt.Fprintf(os.Stderr, "Decodes a bytecode program and runs it on a fresh machine.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  smallvm -sample -v                 # Run the sample, print the state\n")
		fmt.Fprintf(os.Stderr, "  smallvm -d prog.bin                # Disassemble\n")
		fmt.Fprintf(os.Stderr, "  smallvm -x 0101030064 -v           # Run hex bytes\n")
		fmt.Fprintf(os.Stderr, "  smallvm -fetch jump -stats prog.bin\n")
		fmt.Fprintf(os.Stderr, "  smallvm -dump out.cbor prog.bin && smallvm -inspect out.cbor\n")
	}
	flag.Parse()

	opts.set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	verbosity := cfg.Log.Verbosity
	if opts.verbose && verbosity < 1 {
		verbosity = 1
	}
	if cfg.Trace.Enabled && verbosity < 2 {
		verbosity = 2
	}
	commonlog.Configure(verbosity, cfg.LogPath())

	if err := execute(cfg, opts, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
