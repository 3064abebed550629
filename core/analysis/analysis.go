// Package analysis derives the structural indices of an EVM program from a
// single decoder walk: which offsets begin instructions, which of those are
// valid jump destinations, whether the code ends in a truncated PUSH, and how
// to step from one instruction to the next.
//
// All indices are built eagerly at construction and are immutable afterwards,
// so a CodeAnalysis may be queried from any number of goroutines.
package analysis

import (
	"golang.org/x/exp/slices"

	"github.com/evmtools/evmanalyzer/core/bytecode"
)

// EndOfCode is the sentinel NextPC returns once stepping runs off the end of
// the program, or when asked about a pc that is not an instruction boundary.
const EndOfCode = int64(-1)

// CodeAnalysis holds the derived indices of one bytecode buffer. The zero
// value is not usable; construct with AnalyzeCode.
type CodeAnalysis struct {
	code      []byte
	data      bitvec   // set bits mark push immediate bytes
	jumpdests []uint64 // ascending
	truncated int64    // pc of a truncated trailing PUSH, or -1
}

// AnalyzeCode walks code once and builds every index. The input is not
// copied; callers hand over ownership and must not mutate it afterwards.
// This is the only walk: jump destinations, validity and boundaries all
// derive from it, which is what guarantees a 0x5B byte inside push data is
// never mistaken for a JUMPDEST.
func AnalyzeCode(code []byte) *CodeAnalysis {
	a := &CodeAnalysis{
		code:      code,
		data:      newBitvec(len(code)),
		truncated: -1,
	}
	codeLen := uint64(len(code))
	for pc := uint64(0); pc < codeLen; {
		op := bytecode.OpCode(code[pc])
		pc++
		if int8(op) < int8(bytecode.PUSH1) { // If not PUSH (the int8(op) > int(PUSH32) is always false).
			if op == bytecode.JUMPDEST {
				a.jumpdests = append(a.jumpdests, pc-1)
			}
			continue
		}
		numbits := uint64(op - bytecode.PUSH1 + 1)
		if pc+numbits > codeLen && a.truncated < 0 {
			a.truncated = int64(pc - 1)
		}
		pc = a.data.markImmediate(numbits, pc)
	}
	return a
}

// Analyze is the Bytecode-typed front of AnalyzeCode.
func Analyze(b *bytecode.Bytecode) *CodeAnalysis {
	return AnalyzeCode(b.Bytes())
}

// Code returns the analyzed buffer. Read-only.
func (a *CodeAnalysis) Code() []byte {
	return a.code
}

// IsBoundary reports whether pc is the start of an instruction rather than a
// byte of push immediate data. Out-of-range pcs are simply not boundaries.
func (a *CodeAnalysis) IsBoundary(pc uint64) bool {
	return pc < uint64(len(a.code)) && a.data.codeSegment(pc)
}

// IsValidJumpDest reports whether pc is a legal JUMP/JUMPI target: an
// instruction boundary whose opcode is JUMPDEST. A 0x5B byte inside another
// instruction's immediate window does not qualify.
func (a *CodeAnalysis) IsValidJumpDest(pc uint64) bool {
	return a.IsBoundary(pc) && bytecode.OpCode(a.code[pc]) == bytecode.JUMPDEST
}

// JumpDestinations returns every valid jump destination in ascending order.
func (a *CodeAnalysis) JumpDestinations() []uint64 {
	return slices.Clone(a.jumpdests)
}

// NextPC returns the boundary following pc, or EndOfCode when pc is not a
// boundary, is out of range, or is the last instruction of the program.
func (a *CodeAnalysis) NextPC(pc uint64) int64 {
	if !a.IsBoundary(pc) {
		return EndOfCode
	}
	_, _, next := bytecode.Step(a.code, pc)
	if next >= uint64(len(a.code)) {
		return EndOfCode
	}
	return int64(next)
}

// Validate reports structural well-formedness: false only when the final
// PUSH declares more immediate bytes than the buffer holds. Empty code is
// valid.
func (a *CodeAnalysis) Validate() bool {
	return a.truncated < 0
}

// TruncatedAt returns the pc of the truncated trailing PUSH when Validate
// is false.
func (a *CodeAnalysis) TruncatedAt() (uint64, bool) {
	if a.truncated < 0 {
		return 0, false
	}
	return uint64(a.truncated), true
}
