// Package main provides the a32sim command: it loads an ARM ELF or raw
// image and runs it on the functional emulator.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/afero"

	"github.com/sarchlab/a32sim/config"
	"github.com/sarchlab/a32sim/emu"
	"github.com/sarchlab/a32sim/loader"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, afero.NewOsFs()))
}

type options struct {
	configPath  string
	verbosity   int
	maxInsts    uint64
	loadAddr    string
	highVectors bool
	bigEndian   bool
	noSemihost  bool
	haltUnpred  bool
	dump        bool
	stats       bool
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	fs := flag.NewFlagSet("a32sim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Path to a JSON or YAML configuration file")
	fs.IntVar(&o.verbosity, "v", 0, "Log verbosity (1 traces every instruction)")
	fs.Uint64Var(&o.maxInsts, "max", 0, "Stop after this many instructions (0 = no limit)")
	fs.StringVar(&o.loadAddr, "load", "", "Load address of raw images (e.g. 0x8000)")
	fs.BoolVar(&o.highVectors, "high-vectors", false, "Place exception vectors at 0xFFFF0000")
	fs.BoolVar(&o.bigEndian, "big-endian", false, "Use big-endian memory")
	fs.BoolVar(&o.noSemihost, "no-semihosting", false, "Deliver SWI 0x123456 to the guest")
	fs.BoolVar(&o.haltUnpred, "halt-unpredictable", false, "Stop at the first unpredictable instruction")
	fs.BoolVar(&o.dump, "dump", false, "Print the register state on exit")
	fs.BoolVar(&o.stats, "stats", false, "Print execution statistics on exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: a32sim [options] <program>\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	return o, fs, nil
}

// buildConfig starts from the configuration file, or the defaults, and
// applies the flags that were set explicitly.
func buildConfig(o *options, set *flag.FlagSet, files afero.Fs) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		cfg, err = config.Load(files, o.configPath)
		if err != nil {
			return nil, err
		}
	}

	var err error
	set.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max":
			cfg.MaxInstructions = o.maxInsts
		case "load":
			addr, perr := strconv.ParseUint(o.loadAddr, 0, 32)
			if perr != nil {
				err = fmt.Errorf("invalid load address %q: %w", o.loadAddr, perr)
				return
			}
			cfg.LoadAddress = uint32(addr)
		case "high-vectors":
			cfg.HighVectors = o.highVectors
		case "big-endian":
			cfg.BigEndian = o.bigEndian
		case "no-semihosting":
			cfg.Semihosting = !o.noSemihost
		case "halt-unpredictable":
			cfg.HaltOnUnpredictable = o.haltUnpred
		}
	})
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func newLogger(w io.Writer, verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(w, args)
	}, funcr.Options{Verbosity: verbosity})
}

func run(args []string, stdout, stderr io.Writer, files afero.Fs) int {
	o, set, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	if set.NArg() < 1 {
		set.Usage()
		return 2
	}

	cfg, err := buildConfig(o, set, files)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	programPath := set.Arg(0)

	prog, err := loader.LoadFile(files, programPath, cfg.LoadAddress)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading program: %v\n", err)
		return 1
	}
	if prog.BigEndian {
		cfg.BigEndian = true
	}

	log := newLogger(stderr, o.verbosity)
	log.V(1).Info("loaded program",
		"path", programPath,
		"entry", fmt.Sprintf("0x%08X", prog.Entry),
		"segments", len(prog.Segments),
		"bytes", prog.Size())

	e := emu.NewEmulator(
		emu.WithConfig(cfg),
		emu.WithLogger(log),
		emu.WithStdout(stdout),
		emu.WithStderr(stderr),
	)

	prog.Install(e.Memory())
	e.RegFile().SetPC(prog.Entry)
	if cfg.StackPointer != 0 {
		e.RegFile().Write(13, cfg.StackPointer)
	}

	exitCode, runErr := e.Run()

	if runErr != nil {
		fmt.Fprintf(stderr, "Simulation stopped: %v\n", runErr)
		e.DumpState(stderr)
	} else if o.dump {
		e.DumpState(stdout)
	}

	if o.stats {
		printStats(stdout, e.Stats())
	}

	if runErr != nil {
		return 1
	}
	return int(exitCode)
}

func printStats(w io.Writer, s emu.Stats) {
	fmt.Fprintf(w, "Instructions:  %d\n", s.Instructions)
	fmt.Fprintf(w, "Skipped:       %d\n", s.Skipped)
	fmt.Fprintf(w, "Unpredictable: %d\n", s.Unpredictable)

	for exc := emu.ExceptionReset; exc < emu.NumExceptions; exc++ {
		if s.Exceptions[exc] > 0 {
			fmt.Fprintf(w, "Exception %-14s %d\n", exc.String()+":", s.Exceptions[exc])
		}
	}
}
