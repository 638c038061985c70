// Package main provides the entry point for the callgrind profile generator.
// It runs a program under the functional ARM64 emulator and records a
// callgrind-compatible cost report of its execution.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sarchlab/m2sim/emu"
	"github.com/sarchlab/m2sim/loader"
	"github.com/sarchlab/m2sim/profile"
)

var (
	outPath    = flag.String("o", "callgrind.out", "Output report path")
	configPath = flag.String("config", "", "Optional JSON config file (see profile.Config), overridden by other flags when set")
	dumpInstr  = flag.Bool("dump-instr", false, "Include instruction addresses in position lines")
	branchSim  = flag.Bool("branch-sim", false, "Populate branch and indirect-jump misprediction counters")
	noJumps    = flag.Bool("no-jumps", false, "Do not record jump and branch edges")
	eventsFlag = flag.String("events", "Ir,Cycle", "Comma-separated event names to emit, in order")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: callgrind [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	table := profile.NewPCTable()
	if err := loader.Disassemble(programPath, table); err != nil {
		fmt.Fprintf(os.Stderr, "Error disassembling program: %v\n", err)
		os.Exit(1)
	}

	cfg := profile.DefaultConfig()
	if *configPath != "" {
		loaded, err := profile.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	cfg.DumpInstr = *dumpInstr
	cfg.BranchSim = *branchSim
	cfg.CollectJumps = !*noJumps
	cfg.EventNames = strings.Split(*eventsFlag, ",")
	cfg.NumEvents = len(cfg.EventNames)

	tracker := profile.NewFlowTracker(table, cfg)

	memory := emu.NewMemory()
	for _, seg := range prog.Segments {
		for i, b := range seg.Data {
			memory.Write8(seg.VirtAddr+uint64(i), b)
		}
		for i := uint64(len(seg.Data)); i < seg.MemSize; i++ {
			memory.Write8(seg.VirtAddr+i, 0)
		}
	}

	emulator := emu.NewEmulator(
		emu.WithStackPointer(prog.InitialSP),
		emu.WithTraceHook(func(pc uint64, destRegHint int, isBranchInstruction bool) {
			tracker.Record(pc, profile.EventIr, 1, destRegHint, isBranchInstruction)
			tracker.AddEvent(pc, profile.EventCycle, 1)
		}),
	)
	emulator.LoadProgram(prog.EntryPoint, memory)

	exitCode := emulator.Run()

	if *verbose {
		fmt.Printf("Program: %s\n", programPath)
		fmt.Printf("Exit code: %d\n", exitCode)
		fmt.Printf("Instructions executed: %d\n", emulator.InstructionCount())
		fmt.Printf("Report: %s\n", *outPath)
	}

	command := strings.Join(append([]string{programPath}, flag.Args()[1:]...), " ")
	if err := profile.WriteOutput(*outPath, tracker.Table(), tracker.Edges(), cfg, os.Getpid(), command); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}

	os.Exit(int(exitCode))
}
