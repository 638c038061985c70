package profile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// creatorID identifies this tool in the callgrind comment header.
const creatorID = "m2sim-callgrind"

// formatVersion is the callgrind format version this emitter targets.
const formatVersion = 1

// WriteOutput serialises tracker's accumulated state to path, using a
// temp-file-and-rename discipline so the call is atomic from the caller's
// perspective: either the final path holds a complete file, or the call
// returns an error and the path is left untouched.
func WriteOutput(path string, table *PCTable, edges *EdgeMaps, cfg Config, pid int, command string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".callgrind-*.tmp")
	if err != nil {
		return fmt.Errorf("opening report output: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	w := bufio.NewWriter(tmp)
	if err := Emit(w, table, edges, cfg, pid, command); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing report output: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flushing report output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing report output: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("finalising report output: %w", err)
	}
	return nil
}

// Emit writes the callgrind text stream to w. Two calls with the same
// table/edges/cfg produce byte-identical output.
func Emit(w io.Writer, table *PCTable, edges *EdgeMaps, cfg Config, pid int, command string) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush() //nolint:errcheck

	numEvents := cfg.NumEvents
	if numEvents <= 0 || numEvents > len(cfg.EventNames) {
		numEvents = len(cfg.EventNames)
	}

	writeHeader(bw, pid, command)
	writePositionsAndEvents(bw, cfg, numEvents)

	pcs := sortedPCs(table)

	var lastFunc, lastFile string
	totals := make([]uint64, numEvents)

	for _, pc := range pcs {
		rec, _ := table.Peek(pc)
		if rec == nil {
			continue
		}
		if !hasNonZeroEvent(rec, numEvents) {
			continue
		}

		if rec.Func != lastFunc {
			fmt.Fprintf(bw, "fn=%s\n", rec.Func)
			lastFunc = rec.Func
		}
		if rec.File != lastFile {
			fmt.Fprintf(bw, "fl=%s\n", rec.File)
			lastFile = rec.File
		}

		writePositionLine(bw, rec, cfg, numEvents)

		for i := 0; i < numEvents; i++ {
			totals[i] += rec.Events[i]
		}

		if isHelperKind(rec.Kind) {
			continue
		}

		writeCallEdges(bw, table, edges, rec, cfg, numEvents)
		writeBranchEdges(bw, table, edges, rec)
		writeJumps(bw, table, edges, rec)
	}

	fmt.Fprintf(bw, "summary:")
	for i := 0; i < numEvents; i++ {
		fmt.Fprintf(bw, " %d", totals[i])
	}
	fmt.Fprintln(bw)

	fmt.Fprintf(bw, "totals:")
	for i := 0; i < numEvents; i++ {
		fmt.Fprintf(bw, " %d", totals[i])
	}
	fmt.Fprintln(bw)

	return nil
}

func writeHeader(bw *bufio.Writer, pid int, command string) {
	fmt.Fprintf(bw, "# callgrind format\n")
	fmt.Fprintf(bw, "version: %d\n", formatVersion)
	fmt.Fprintf(bw, "creator: %s\n", creatorID)
	fmt.Fprintf(bw, "pid: %d\n", pid)
	fmt.Fprintf(bw, "cmd: %s\n", command)
	fmt.Fprintf(bw, "part: 1\n")
}

func writePositionsAndEvents(bw *bufio.Writer, cfg Config, numEvents int) {
	if cfg.DumpInstr {
		fmt.Fprintf(bw, "positions: instr line\n")
	} else {
		fmt.Fprintf(bw, "positions: line\n")
	}
	fmt.Fprintf(bw, "events:")
	for i := 0; i < numEvents; i++ {
		fmt.Fprintf(bw, " %s", cfg.EventNames[i])
	}
	fmt.Fprintln(bw)
}

func writePositionLine(bw *bufio.Writer, rec *PCRecord, cfg Config, numEvents int) {
	if cfg.DumpInstr {
		fmt.Fprintf(bw, "0x%x %d", rec.PC, rec.Line)
	} else {
		fmt.Fprintf(bw, "%d", rec.Line)
	}
	for i := 0; i < numEvents; i++ {
		fmt.Fprintf(bw, " %d", rec.Events[i])
	}
	if rec.Asm != "" {
		fmt.Fprintf(bw, " # %s", rec.Asm)
	}
	fmt.Fprintln(bw)
}

func writeCallEdges(bw *bufio.Writer, table *PCTable, edges *EdgeMaps, rec *PCRecord, cfg Config, numEvents int) {
	for _, ce := range edges.CallEdges(rec.PC) {
		target, _ := table.Peek(ce.To)
		targetFunc, targetFile, targetLine := ce.Edge.TargetFunc, ce.Edge.TargetFile, ce.Edge.TargetLine
		if target != nil {
			targetFunc, targetFile, targetLine = target.Func, target.File, target.Line
		}
		fmt.Fprintf(bw, "cfn=%s\n", targetFunc)
		fmt.Fprintf(bw, "cfl=%s\n", targetFile)
		fmt.Fprintf(bw, "calls=%d 0x%x %d\n", ce.Edge.Count, ce.To, targetLine)

		fmt.Fprintf(bw, "%d", rec.Line)
		for i := 0; i < numEvents; i++ {
			fmt.Fprintf(bw, " %d", ce.Edge.Incl[i])
		}
		fmt.Fprintln(bw)
	}
}

func writeBranchEdges(bw *bufio.Writer, table *PCTable, edges *EdgeMaps, rec *PCRecord) {
	branch, ok := edges.Branch(rec.PC)
	if !ok {
		return
	}
	if branch.HasTakenTarget {
		fmt.Fprintf(bw, "jcnd=%d/%d 0x%x %d\n",
			branch.TakenCount, branch.TotalExecuted, branch.TakenTarget, lineOf(table, branch.TakenTarget))
	}
	if branch.HasFallthrough {
		fmt.Fprintf(bw, "jcnd=%d/%d 0x%x %d\n",
			branch.FallthroughCount, branch.TotalExecuted, branch.FallthroughTarget, lineOf(table, branch.FallthroughTarget))
	}
}

func lineOf(table *PCTable, pc uint64) uint32 {
	if rec, ok := table.Peek(pc); ok {
		return rec.Line
	}
	return 0
}

func writeJumps(bw *bufio.Writer, table *PCTable, edges *EdgeMaps, rec *PCRecord) {
	for _, j := range edges.Jumps(rec.PC) {
		target, _ := table.Peek(j.To)
		funcName := "unknown"
		if target != nil {
			funcName = target.Func
		}
		fmt.Fprintf(bw, "jump=0x%x/%s %d\n", j.To, funcName, j.Count)
	}
}

func hasNonZeroEvent(rec *PCRecord, numEvents int) bool {
	for i := 0; i < numEvents; i++ {
		if rec.Events[i] != 0 {
			return true
		}
	}
	return false
}

func sortedPCs(table *PCTable) []uint64 {
	pcs := make([]uint64, 0, table.Len())
	table.Range(func(rec *PCRecord) {
		pcs = append(pcs, rec.PC)
	})
	sort.Slice(pcs, func(i, j int) bool { return pcs[i] < pcs[j] })
	return pcs
}
