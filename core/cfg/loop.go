package cfg

import (
	"github.com/holiman/uint256"

	"github.com/evmtools/evmanalyzer/core/analysis"
	"github.com/evmtools/evmanalyzer/core/bytecode"
)

// DefaultLoopScanWindow bounds how far past the conditional exit the
// detector looks for the closing backward jump. Loop bodies larger than the
// window are not detected; that is an accepted limitation of the heuristic,
// not something callers should paper over by raising the bound blindly.
const DefaultLoopScanWindow = 100

// LoopScanConfig tunes DetectLoops. The zero value selects the defaults.
type LoopScanConfig struct {
	// Window is the inner scan bound in bytes.
	Window int
}

// LoopCandidate is one occurrence of the canonical compiled-loop shape
//
//	PUSH <exit>; JUMPI; <body>; PUSH <target>; JUMP
//
// where target is a JUMPDEST at or before the scan position (a backward
// edge). Candidates may overlap; deduplication is the consumer's concern.
type LoopCandidate struct {
	StartPC       uint64 // pc of the exit PUSH
	ExitTarget    uint64 // where the loop exits to
	LoopTarget    uint64 // the backward edge, a member of the jumpdest index
	PatternLength uint64 // bytes from StartPC through the closing JUMP
	BodyStart     uint64 // first pc after the JUMPI
	BodyEnd       uint64 // pc of the closing PUSH, exclusive end of the body
}

// DetectLoops scans for backward-loop shapes with the default window.
func DetectLoops(a *analysis.CodeAnalysis) []LoopCandidate {
	return DetectLoopsConfig(a, LoopScanConfig{})
}

// DetectLoopsConfig runs a single forward scan over the raw bytes. Like the
// fusion pattern matchers this is deliberately byte-oriented rather than
// instruction-oriented: the jumpdest membership check on the pushed target is
// what rejects shapes that only look like loops inside push data.
func DetectLoopsConfig(a *analysis.CodeAnalysis, cfg LoopScanConfig) []LoopCandidate {
	window := cfg.Window
	if window <= 0 {
		window = DefaultLoopScanWindow
	}
	code := a.Code()
	codeLen := uint64(len(code))

	var candidates []LoopCandidate
	for pc := uint64(0); pc < codeLen; {
		exitTarget, jumpiPC, ok := matchPushThen(code, pc, bytecode.JUMPI)
		if !ok {
			pc++
			continue
		}
		bodyStart := jumpiPC + 1

		limit := bodyStart + uint64(window)
		if limit > codeLen {
			limit = codeLen
		}
		matched := false
		for inner := bodyStart; inner < limit; inner++ {
			loopTarget, jumpPC, ok := matchPushThen(code, inner, bytecode.JUMP)
			if !ok {
				continue
			}
			if !a.IsValidJumpDest(loopTarget) {
				continue
			}
			// Backward edges only.
			if loopTarget > pc && loopTarget > inner {
				continue
			}
			candidates = append(candidates, LoopCandidate{
				StartPC:       pc,
				ExitTarget:    exitTarget,
				LoopTarget:    loopTarget,
				PatternLength: jumpPC + 1 - pc,
				BodyStart:     bodyStart,
				BodyEnd:       inner,
			})
			pc = jumpPC + 1
			matched = true
			break
		}
		if !matched {
			pc++
		}
	}
	return candidates
}

// matchPushThen matches a PUSH at pc immediately followed by the given
// opcode, returning the pushed value and the follower's pc. Pushed values
// wider than uint64 cannot be jump targets and do not match.
func matchPushThen(code []byte, pc uint64, follow bytecode.OpCode) (value uint64, followPC uint64, ok bool) {
	op := bytecode.OpCode(code[pc])
	if !op.IsPush() {
		return 0, 0, false
	}
	followPC = pc + 1 + op.PushSize()
	if followPC >= uint64(len(code)) || bytecode.OpCode(code[followPC]) != follow {
		return 0, 0, false
	}
	val := new(uint256.Int).SetBytes(code[pc+1 : followPC])
	if !val.IsUint64() {
		return 0, 0, false
	}
	return val.Uint64(), followPC, true
}
