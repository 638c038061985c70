// Package profile reconstructs control flow from a raw executed-PC stream
// and emits a callgrind-compatible cost report.
//
// The package consumes a static disassembly (PCTable) plus an ordered
// per-instruction event stream (fed to FlowTracker.Record) and produces a
// call graph with self and inclusive costs, which ReportEmitter linearises
// into the callgrind text format.
package profile

import "strings"

// MaxEvents bounds the width of every per-PC and per-edge event vector.
const MaxEvents = 10

// Canonical event slot indices. Only NumEvents of these (configured,
// default 2) are written to the report; the rest still accumulate.
const (
	EventIr = iota
	EventCycle
	EventBc
	EventBcm
	EventBi
	EventBim
	EventCacheMiss
	EventTlbMiss
	eventReserved0
	eventReserved1
)

// EventNames is the canonical ordering of event identifiers.
var EventNames = [MaxEvents]string{
	"Ir", "Cycle", "Bc", "Bcm", "Bi", "Bim", "CacheMiss", "TlbMiss", "", "",
}

// FunctionKind classifies a function by its role in call-stack bookkeeping.
type FunctionKind uint8

const (
	// KindNormal is an ordinary, non-helper function.
	KindNormal FunctionKind = iota
	// KindFrameSaveHelper is a compiler-emitted register-save thunk.
	KindFrameSaveHelper
	// KindFrameRestoreHelper is a compiler-emitted register-restore thunk.
	KindFrameRestoreHelper
)

const (
	frameSavePrefix    = "__riscv_save"
	frameRestorePrefix = "__riscv_restore"
)

// ClassifyFunction derives a FunctionKind from a function name using an
// exact-prefix match against the two known compiler-helper families.
func ClassifyFunction(funcName string) FunctionKind {
	switch {
	case strings.HasPrefix(funcName, frameSavePrefix):
		return KindFrameSaveHelper
	case strings.HasPrefix(funcName, frameRestorePrefix):
		return KindFrameRestoreHelper
	default:
		return KindNormal
	}
}

// ClassifyWidth derives the instruction width in bytes from its mnemonic
// text. A compressed-instruction token ("c." as a full token or leading the
// mnemonic) is 2 bytes wide; everything else is 4.
func ClassifyWidth(asm string) uint8 {
	trimmed := strings.TrimSpace(asm)
	if strings.HasPrefix(trimmed, "c.") {
		return 2
	}
	for _, tok := range strings.Fields(trimmed) {
		if tok == "c." || strings.HasPrefix(tok, "c.") {
			return 2
		}
	}
	return 4
}

// PCRecord is the immutable-after-load static metadata for one program
// counter, plus its mutable per-PC event counters.
type PCRecord struct {
	PC    uint64
	Func  string
	File  string
	Line  uint32
	Asm   string
	Kind  FunctionKind
	Width uint8

	// Events holds self-cost counters in canonical order (EventIr,
	// EventCycle, EventBc, EventBcm, EventBi, EventBim, ...).
	Events EventCounters
}

// PCTable is the immutable-after-load mapping from program counter to
// static metadata. Missing PCs are tolerated by synthesising a minimal
// unknown record on first access rather than failing the whole run.
type PCTable struct {
	records map[uint64]*PCRecord
}

// NewPCTable creates an empty table.
func NewPCTable() *PCTable {
	return &PCTable{records: make(map[uint64]*PCRecord)}
}

// Load inserts or overwrites the static record for pc.
func (t *PCTable) Load(pc uint64, funcName, file string, line uint32, asm string) {
	t.records[pc] = &PCRecord{
		PC:    pc,
		Func:  funcName,
		File:  file,
		Line:  line,
		Asm:   asm,
		Kind:  ClassifyFunction(funcName),
		Width: ClassifyWidth(asm),
	}
}

// Lookup returns the record for pc, auto-inserting a synthetic "unknown"
// record if pc was never loaded. Never fails.
func (t *PCTable) Lookup(pc uint64) *PCRecord {
	if rec, ok := t.records[pc]; ok {
		return rec
	}
	rec := &PCRecord{
		PC:    pc,
		Func:  "unknown",
		File:  "unknown",
		Line:  0,
		Kind:  KindNormal,
		Width: 4,
	}
	t.records[pc] = rec
	return rec
}

// Peek returns the record for pc without synthesising one, and whether it
// was present.
func (t *PCTable) Peek(pc uint64) (*PCRecord, bool) {
	rec, ok := t.records[pc]
	return rec, ok
}

// Len reports how many PC records (loaded or synthesised) exist.
func (t *PCTable) Len() int {
	return len(t.records)
}

// Range calls fn for every record currently in the table, in unspecified
// order. Callers that need determinism (ReportEmitter) sort separately.
func (t *PCTable) Range(fn func(*PCRecord)) {
	for _, rec := range t.records {
		fn(rec)
	}
}
