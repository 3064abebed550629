// Package cfg partitions analyzed EVM bytecode into basic blocks and scans
// them for backward-loop shapes that are candidates for loop fusion.
package cfg

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/evmtools/evmanalyzer/core/analysis"
	"github.com/evmtools/evmanalyzer/core/bytecode"
)

// EntryKind classifies how control reaches the first instruction of a block.
type EntryKind uint8

const (
	// EntryProgramStart marks the block at pc 0.
	EntryProgramStart EntryKind = iota
	// EntryJumpDest marks a block opened by a JUMPDEST.
	EntryJumpDest
	// EntryFallthrough marks a block reachable only by falling past the
	// previous block's terminator, without a JUMPDEST of its own.
	EntryFallthrough
)

func (k EntryKind) String() string {
	switch k {
	case EntryProgramStart:
		return "start"
	case EntryJumpDest:
		return "jumpdest"
	default:
		return "fallthrough"
	}
}

// ExitKind classifies how control leaves a block.
type ExitKind uint8

const (
	// ExitJump ends a block with an unconditional JUMP.
	ExitJump ExitKind = iota
	// ExitConditionalJump ends a block with JUMPI.
	ExitConditionalJump
	// ExitTerminal ends a block with STOP, RETURN, REVERT or SELFDESTRUCT.
	ExitTerminal
	// ExitFallthrough ends a block at the next block start (or at the end
	// of code) without a terminating instruction.
	ExitFallthrough
)

func (k ExitKind) String() string {
	switch k {
	case ExitJump:
		return "jump"
	case ExitConditionalJump:
		return "jumpi"
	case ExitTerminal:
		return "terminal"
	default:
		return "fallthrough"
	}
}

// Block is one basic block: the half-open pc range [StartPC, EndPC) and its
// decoded instructions. Partition emits blocks in ascending order, mutually
// disjoint, covering the whole program.
type Block struct {
	StartPC      uint64
	EndPC        uint64 // exclusive
	Instructions []bytecode.Instruction
	Entry        EntryKind
	Exit         ExitKind
	JumpTarget   *uint64 // decoded target when the block ends in PUSHn;JUMP(I)
}

// Terminator returns the block's last instruction.
func (b *Block) Terminator() bytecode.Instruction {
	return b.Instructions[len(b.Instructions)-1]
}

// isTerminator reports whether op unconditionally ends a basic block.
func isTerminator(op bytecode.OpCode) bool {
	switch op {
	case bytecode.JUMP, bytecode.JUMPI,
		bytecode.STOP, bytecode.RETURN, bytecode.REVERT, bytecode.SELFDESTRUCT:
		return true
	default:
		return false
	}
}

func exitKind(op bytecode.OpCode) ExitKind {
	switch op {
	case bytecode.JUMP:
		return ExitJump
	case bytecode.JUMPI:
		return ExitConditionalJump
	default:
		return ExitTerminal
	}
}

func entryKind(a *analysis.CodeAnalysis, pc uint64) EntryKind {
	switch {
	case pc == 0:
		return EntryProgramStart
	case a.IsValidJumpDest(pc):
		return EntryJumpDest
	default:
		return EntryFallthrough
	}
}

// Partition splits the analyzed program into basic blocks. Block starts are
// pc 0 and every valid JUMPDEST; a block ends immediately after a terminator
// or right before the next block start, whichever comes first. A terminator
// directly followed by a JUMPDEST therefore yields two separate
// single-instruction blocks; the two never merge.
func Partition(a *analysis.CodeAnalysis) []Block {
	code := a.Code()
	if len(code) == 0 {
		return nil
	}

	starts := mapset.NewThreadUnsafeSet[uint64]()
	starts.Add(uint64(0))
	for _, pc := range a.JumpDestinations() {
		starts.Add(pc)
	}

	var (
		blocks []Block
		cur    *Block
	)
	for pc := uint64(0); pc < uint64(len(code)); {
		if cur != nil && starts.Contains(pc) {
			// A jump destination delimits even mid-block: close the open
			// block as a fallthrough into it.
			cur.EndPC = pc
			cur.Exit = ExitFallthrough
			blocks = append(blocks, *cur)
			cur = nil
		}
		if cur == nil {
			cur = &Block{StartPC: pc, Entry: entryKind(a, pc)}
		}

		inst := bytecode.DecodeAt(code, pc)
		cur.Instructions = append(cur.Instructions, inst)
		pc += 1 + uint64(len(inst.Imm))

		if isTerminator(inst.Op) {
			cur.EndPC = pc
			cur.Exit = exitKind(inst.Op)
			if inst.Op == bytecode.JUMP || inst.Op == bytecode.JUMPI {
				cur.JumpTarget = constantJumpTarget(cur)
			}
			blocks = append(blocks, *cur)
			cur = nil
		}
	}
	if cur != nil {
		// Trailing block running off the end of code.
		cur.EndPC = uint64(len(code))
		cur.Exit = ExitFallthrough
		blocks = append(blocks, *cur)
	}
	return blocks
}

// constantJumpTarget decodes the jump target of a block ending in a
// PUSHn;JUMP or PUSHn;JUMPI pair. Dynamic jumps (target computed on the
// stack) have no constant target and yield nil.
func constantJumpTarget(b *Block) *uint64 {
	n := len(b.Instructions)
	if n < 2 {
		return nil
	}
	push := b.Instructions[n-2]
	val, ok := push.ImmValue()
	if !ok || !val.IsUint64() {
		return nil
	}
	target := val.Uint64()
	return &target
}
