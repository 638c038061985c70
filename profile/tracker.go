package profile

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config selects which optional accounting the FlowTracker and
// ReportEmitter perform.
type Config struct {
	// DumpInstr includes the 0x<pc> token in position lines.
	DumpInstr bool `json:"dump_instr"`
	// BranchSim populates branch-misprediction counters.
	BranchSim bool `json:"branch_sim"`
	// CollectJumps records jump and branch edges at all. When false, the
	// tracker still updates counters and the call stack but skips edge
	// bookkeeping for Branch/DirectJump/IndirectJump transitions.
	CollectJumps bool `json:"collect_jumps"`
	// EventNames names the configured events in emission order.
	EventNames []string `json:"event_names"`
	// NumEvents is how many leading event slots are written to the report.
	NumEvents int `json:"num_events"`
}

// DefaultConfig returns the default configuration: two events (Ir, Cycle),
// jumps collected, branch simulation and instruction dump off.
func DefaultConfig() Config {
	return Config{
		DumpInstr:    false,
		BranchSim:    false,
		CollectJumps: true,
		EventNames:   []string{"Ir", "Cycle"},
		NumEvents:    2,
	}
}

// LoadConfig loads a Config from a JSON file, starting from DefaultConfig
// so an input file may override only the fields it sets.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse profile config: %w", err)
	}

	return &config, nil
}

// FlowTracker is the single-threaded, single-pass state machine that turns
// a raw per-instruction event stream into a call graph plus per-PC costs.
// FlowTracker.Record is the only mutator of all its state and must be
// called strictly in program order, once per retired instruction.
type FlowTracker struct {
	cfg Config

	table    *PCTable
	edges    *EdgeMaps
	stack    *CallStack
	shadow   ShadowCaller
	global   EventCounters

	havePrev       bool
	prevPC         uint64
	prevFunc       string
	prevWidth      uint8
	prevDestHint   int
	prevIsBranch   bool
}

// NewFlowTracker creates a tracker over an existing PCTable (already
// populated by the disassembly loader, or empty — missing PCs are
// synthesised on demand).
func NewFlowTracker(table *PCTable, cfg Config) *FlowTracker {
	return &FlowTracker{
		cfg:   cfg,
		table: table,
		edges: NewEdgeMaps(),
		stack: NewCallStack(),
	}
}

// Table returns the underlying PCTable.
func (t *FlowTracker) Table() *PCTable { return t.table }

// Edges returns the accumulated edge maps.
func (t *FlowTracker) Edges() *EdgeMaps { return t.edges }

// Stack returns the live call stack (mostly useful for tests asserting
// that it balances back to empty at the end of a well-formed trace).
func (t *FlowTracker) Stack() *CallStack { return t.stack }

// Global returns the running global accumulator.
func (t *FlowTracker) Global() EventCounters { return t.global }

// AddEvent credits an additional event slot (e.g. Cycle) to the
// instruction at pc without re-running call-graph transition detection.
// Record already performs that detection once per retired instruction;
// a second full Record call at the same pc for a second event would see
// its own first call as "the previous instruction" and misfire a bogus
// self-transition. Callers crediting more than one event per retired
// instruction should call Record once (to drive the transition) and
// AddEvent for every additional event at that same pc.
func (t *FlowTracker) AddEvent(pc uint64, eventIndex int, count uint64) {
	if eventIndex < 0 {
		eventIndex = 0
	} else if eventIndex >= MaxEvents {
		eventIndex = MaxEvents - 1
	}
	t.bumpEvent(pc, eventIndex, count)
}

// Record processes one executed-instruction event, in program order.
// eventIndex must be in [0, MaxEvents); out-of-range indices are clamped
// to the last slot rather than panicking, since a malformed event stream
// should degrade the report, not crash the run.
func (t *FlowTracker) Record(pc uint64, eventIndex int, count uint64, destRegHint int, isBranchInstruction bool) {
	if eventIndex < 0 {
		eventIndex = 0
	} else if eventIndex >= MaxEvents {
		eventIndex = MaxEvents - 1
	}

	rec := t.table.Lookup(pc)
	rec.Events.Add(eventIndex, count)
	t.global.Add(eventIndex, count)

	if t.havePrev {
		prev := t.table.Lookup(t.prevPC)
		if t.prevIsBranch || prev.Func != rec.Func {
			sequential := pc == t.prevPC+uint64(t.prevWidth)
			top, present := t.stackTopIdentity()
			kind := Classify(prev, rec, t.prevDestHint, sequential, StackTopIdentity{CallerFunc: top, Present: present})
			t.dispatch(kind, prev, rec, sequential)
		}
	}

	t.havePrev = true
	t.prevPC = pc
	t.prevFunc = rec.Func
	t.prevWidth = rec.Width
	t.prevDestHint = destRegHint
	t.prevIsBranch = isBranchInstruction
}

func (t *FlowTracker) stackTopIdentity() (string, bool) {
	top, ok := t.stack.Top()
	if !ok {
		return "", false
	}
	return top.CallerFunc, true
}

// dispatch applies the edge/stack mutation for a classified transition.
func (t *FlowTracker) dispatch(kind BranchKind, prev, curr *PCRecord, sequential bool) {
	switch kind {
	case KindNone:
		return
	case KindCall:
		t.dispatchCall(prev, curr)
	case KindTailCall:
		t.dispatchTailCall(prev, curr)
	case KindFallThrough:
		t.dispatchFallThrough(prev, curr)
	case KindReturn:
		t.dispatchReturn(prev, curr)
	case KindBranch:
		t.dispatchBranch(prev, curr, sequential)
	case KindDirectJump:
		t.dispatchJump(prev, curr, false)
	case KindIndirectJump:
		t.dispatchJump(prev, curr, true)
	}
}

func (t *FlowTracker) dispatchCall(prev, curr *PCRecord) {
	fromPC, fromFunc := prev.PC, prev.Func

	if isHelperKind(prev.Kind) {
		if shadowPC, shadowFunc, ok := t.shadow.Take(); ok {
			fromPC, fromFunc = shadowPC, shadowFunc
		}
	}

	// Calls are always recorded regardless of CollectJumps — only
	// Branch/Jump edges are gated by that flag.
	edge := t.edges.CallEdgeFor(fromPC, curr.PC, curr)
	edge.Count++

	if curr.Kind == KindFrameSaveHelper {
		t.shadow.Set(fromPC, fromFunc)
	}

	t.stack.Push(CallFrame{
		CallerPC:    fromPC,
		CalleePC:    curr.PC,
		CallerFunc:  fromFunc,
		CalleeFunc:  curr.Func,
		EntryEvents: t.global,
	})
}

func (t *FlowTracker) dispatchTailCall(prev, curr *PCRecord) {
	edge := t.edges.CallEdgeFor(prev.PC, curr.PC, curr)
	edge.Count++

	// The pushed frame's identity must match the edge Count was just
	// incremented on, or creditReturn will credit Incl to a different
	// (and never-incremented) edge on the way back. The frame below this
	// one on the stack already carries the original caller's identity and
	// is reached via the double-pop in dispatchReturn for IsTailCall.
	t.stack.Push(CallFrame{
		CallerPC:    prev.PC,
		CalleePC:    curr.PC,
		CallerFunc:  prev.Func,
		CalleeFunc:  curr.Func,
		EntryEvents: t.global,
		IsTailCall:  true,
	})
}

func (t *FlowTracker) dispatchFallThrough(prev, curr *PCRecord) {
	edge := t.edges.CallEdgeFor(prev.PC, curr.PC, curr)
	edge.Count++
	edge.IsFallThrough = true

	t.stack.Push(CallFrame{
		CallerPC:      prev.PC,
		CalleePC:      curr.PC,
		CallerFunc:    prev.Func,
		CalleeFunc:    curr.Func,
		EntryEvents:   t.global,
		IsFallThrough: true,
	})
}

func (t *FlowTracker) dispatchReturn(prev, curr *PCRecord) {
	frame, ok := t.stack.Pop()
	if !ok {
		// Return with no matching call on the stack — a trace that starts
		// mid-function. Nothing to credit; ignored.
		return
	}
	t.creditReturn(frame)

	if frame.IsTailCall {
		if next, ok := t.stack.Pop(); ok {
			t.creditReturn(next)
		}
	}
}

// creditReturn adds the inclusive delta since frame's entry snapshot to
// the edge that produced frame.
func (t *FlowTracker) creditReturn(frame CallFrame) {
	edge := t.edges.CallEdgeFor(frame.CallerPC, frame.CalleePC, t.table.Lookup(frame.CalleePC))
	for i := 0; i < MaxEvents; i++ {
		edge.Incl[i] += t.global[i] - frame.EntryEvents[i]
	}
}

func (t *FlowTracker) dispatchBranch(prev, curr *PCRecord, sequential bool) {
	if !t.cfg.CollectJumps {
		return
	}
	edge := t.edges.BranchEdgeFor(prev.PC)
	edge.TotalExecuted++

	if sequential {
		edge.FallthroughTarget = curr.PC
		edge.FallthroughCount++
		edge.HasFallthrough = true
	} else {
		edge.TakenTarget = curr.PC
		edge.TakenCount++
		edge.HasTakenTarget = true
	}

	t.bumpEvent(prev.PC, EventBc, 1)

	if t.cfg.BranchSim && edge.HasTakenTarget && edge.HasFallthrough {
		minority := edge.TakenCount
		if edge.FallthroughCount < minority {
			minority = edge.FallthroughCount
		}
		if minority > 0 {
			t.bumpEvent(prev.PC, EventBcm, 1)
		}
	}
}

func (t *FlowTracker) dispatchJump(prev, curr *PCRecord, indirect bool) {
	if !t.cfg.CollectJumps {
		return
	}
	t.edges.RecordJump(prev.PC, curr.PC)

	if !indirect {
		return
	}
	t.bumpEvent(prev.PC, EventBi, 1)
	if t.cfg.BranchSim && t.edges.IndirectTargetCount(prev.PC) > 1 {
		t.bumpEvent(prev.PC, EventBim, 1)
	}
}

// bumpEvent adds count to pc's counter at event index i and mirrors the
// increment into the global accumulator, keeping the global accumulator
// equal to the sum of all per-PC counters even for the derived branch/jump
// event slots, exactly as Record does for caller-supplied ones.
func (t *FlowTracker) bumpEvent(pc uint64, i int, count uint64) {
	rec := t.table.Lookup(pc)
	rec.Events.Add(i, count)
	t.global.Add(i, count)
}

func isHelperKind(k FunctionKind) bool {
	return k == KindFrameSaveHelper || k == KindFrameRestoreHelper
}
