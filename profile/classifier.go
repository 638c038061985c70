package profile

import "strings"

// BranchKind is the outcome of classifying a transition between two
// executed program counters.
type BranchKind uint8

const (
	// KindNone is an internal-to-a-helper transition that should not be
	// recorded as an edge.
	KindNone BranchKind = iota
	// KindBranch is a conditional branch instance (taken or not taken).
	KindBranch
	// KindDirectJump is an unconditional jump whose target shape doesn't
	// resemble a call, return, or short branch.
	KindDirectJump
	// KindIndirectJump is a jump through a register.
	KindIndirectJump
	// KindCall is an ordinary function call.
	KindCall
	// KindReturn unwinds the top of the call stack.
	KindReturn
	// KindTailCall pushes a frame without preserving the current one.
	KindTailCall
	// KindFallThrough is sequential execution crossing a function boundary.
	KindFallThrough
)

// forwardJumpThreshold is the heuristic cutoff (bytes) separating a short
// forward conditional branch from a direct jump. An arbitrary but stable
// cutoff; no encoding distinguishes the two once a transition is known to
// be non-sequential and within the same function.
const forwardJumpThreshold = 32

// StackTopIdentity is the minimal information the classifier needs about
// the current top of the call stack — just the caller's function name.
type StackTopIdentity struct {
	CallerFunc string
	Present    bool
}

// Classify infers the BranchKind of a transition from prev to curr, given
// the dest-register hint observed at prev and whether the transition was
// sequential (curr.PC == prev.PC + prev.Width). It is a pure function: the
// same inputs always yield the same output, with no hidden state.
//
// Rule order matters. First match wins.
func Classify(prev, curr *PCRecord, prevDestRegHint int, sequential bool, stackTop StackTopIdentity) BranchKind {
	switch {
	case prev.Kind == KindFrameRestoreHelper && curr.Kind == KindNormal && !sequential:
		return KindReturn
	case prev.Kind == KindFrameRestoreHelper && curr.Kind == KindFrameRestoreHelper && sequential:
		return KindNone
	case sequential && prev.Func != curr.Func && prev.Kind == KindNormal:
		return KindFallThrough
	case !sequential && curr.Kind == KindFrameSaveHelper:
		return KindCall
	case !sequential && curr.Kind == KindFrameRestoreHelper:
		return KindTailCall
	case !sequential && stackTop.Present && stackTop.CallerFunc == curr.Func:
		return KindReturn
	case !sequential && prev.Func != curr.Func:
		if prevDestRegHint == 0 {
			return KindTailCall
		}
		return KindCall
	case sequential:
		return KindBranch
	case curr.PC < prev.PC:
		return KindBranch
	case curr.PC-prev.PC <= forwardJumpThreshold:
		return KindBranch
	case isIndirectMnemonic(prev.Asm):
		return KindIndirectJump
	default:
		return KindDirectJump
	}
}

// isIndirectMnemonic reports whether an instruction's mnemonic text
// indicates a register-indirect jump (as opposed to a PC-relative one).
// Classify only reaches this distinction at the final "otherwise" step,
// once every call/return/branch shape has already been ruled out, so it
// falls back to the one piece of the static record that encodes it: the
// mnemonic itself.
func isIndirectMnemonic(asm string) bool {
	fields := strings.FieldsFunc(asm, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "jalr", "jr", "br", "blr":
		return true
	default:
		return false
	}
}
