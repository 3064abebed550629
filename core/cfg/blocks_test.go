package cfg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmtools/evmanalyzer/core/analysis"
	"github.com/evmtools/evmanalyzer/core/bytecode"
)

// countingLoop is PUSH0; JUMPDEST; PUSH1 10; DUP2; LT; ISZERO; PUSH1 16;
// JUMPI; PUSH1 1; ADD; PUSH1 1; JUMP; JUMPDEST; POP; STOP.
var countingLoop = []byte{
	0x5F, 0x5B, 0x60, 0x0A, 0x81, 0x10, 0x15, 0x60, 0x10, 0x57,
	0x60, 0x01, 0x01, 0x60, 0x01, 0x56, 0x5B, 0x50, 0x00,
}

func partition(t *testing.T, code []byte) []Block {
	t.Helper()
	return Partition(analysis.AnalyzeCode(code))
}

func TestPartitionCountingLoop(t *testing.T) {
	blocks := partition(t, countingLoop)
	require.Len(t, blocks, 4)

	// PUSH0 falls into the loop head.
	require.Equal(t, uint64(0), blocks[0].StartPC)
	require.Equal(t, uint64(1), blocks[0].EndPC)
	require.Equal(t, EntryProgramStart, blocks[0].Entry)
	require.Equal(t, ExitFallthrough, blocks[0].Exit)

	// Loop head: JUMPDEST .. JUMPI with a constant exit target.
	require.Equal(t, uint64(1), blocks[1].StartPC)
	require.Equal(t, uint64(10), blocks[1].EndPC)
	require.Equal(t, EntryJumpDest, blocks[1].Entry)
	require.Equal(t, ExitConditionalJump, blocks[1].Exit)
	require.NotNil(t, blocks[1].JumpTarget)
	require.Equal(t, uint64(16), *blocks[1].JumpTarget)

	// Loop body ending in the backward jump.
	require.Equal(t, uint64(10), blocks[2].StartPC)
	require.Equal(t, uint64(16), blocks[2].EndPC)
	require.Equal(t, EntryFallthrough, blocks[2].Entry)
	require.Equal(t, ExitJump, blocks[2].Exit)
	require.NotNil(t, blocks[2].JumpTarget)
	require.Equal(t, uint64(1), *blocks[2].JumpTarget)

	// Exit block.
	require.Equal(t, uint64(16), blocks[3].StartPC)
	require.Equal(t, uint64(19), blocks[3].EndPC)
	require.Equal(t, EntryJumpDest, blocks[3].Entry)
	require.Equal(t, ExitTerminal, blocks[3].Exit)
	require.Nil(t, blocks[3].JumpTarget)
	require.Equal(t, bytecode.STOP, blocks[3].Terminator().Op)
}

func TestPartitionCoverage(t *testing.T) {
	codes := [][]byte{
		countingLoop,
		{0x00},
		{0x5B},
		{0x60, 0x01},       // lone PUSH, no terminator
		{0x61, 0x01},       // truncated PUSH2
		{0x56, 0x5B, 0x00}, // JUMP; JUMPDEST; STOP
		{0x5B, 0x5B, 0x5B},
	}
	for _, code := range codes {
		a := analysis.AnalyzeCode(code)
		blocks := Partition(a)

		// Gap-free, disjoint, ascending cover of [0, len).
		var pos uint64
		for _, blk := range blocks {
			require.Equal(t, pos, blk.StartPC, "code %x", code)
			require.Greater(t, blk.EndPC, blk.StartPC, "code %x", code)
			require.NotEmpty(t, blk.Instructions, "code %x", code)
			pos = blk.EndPC
		}
		require.Equal(t, uint64(len(code)), pos, "code %x", code)

		// Every jumpdest opens a block.
		for _, pc := range a.JumpDestinations() {
			found := false
			for _, blk := range blocks {
				if blk.StartPC == pc {
					found = true
					break
				}
			}
			require.True(t, found, "code %x: jumpdest %d does not start a block", code, pc)
		}
	}
}

func TestPartitionEmpty(t *testing.T) {
	require.Nil(t, partition(t, nil))
}

func TestTerminatorThenJumpDest(t *testing.T) {
	// JUMP; JUMPDEST: two single-instruction blocks, never merged.
	blocks := partition(t, []byte{0x56, 0x5B})
	require.Len(t, blocks, 2)
	require.Equal(t, uint64(1), blocks[0].EndPC)
	require.Equal(t, ExitJump, blocks[0].Exit)
	require.Equal(t, uint64(1), blocks[1].StartPC)
	require.Equal(t, EntryJumpDest, blocks[1].Entry)
	require.Len(t, blocks[1].Instructions, 1)
}

func TestJumpDestDelimitsOpenBlock(t *testing.T) {
	// PUSH1 1; JUMPDEST; STOP: the push block falls through into the
	// jumpdest block.
	blocks := partition(t, []byte{0x60, 0x01, 0x5B, 0x00})
	require.Len(t, blocks, 2)
	require.Equal(t, uint64(2), blocks[0].EndPC)
	require.Equal(t, ExitFallthrough, blocks[0].Exit)
	require.Equal(t, uint64(2), blocks[1].StartPC)
	require.Equal(t, uint64(4), blocks[1].EndPC)
}

func TestConstantJumpTarget(t *testing.T) {
	// Dynamic jump: no PUSH feeding the JUMP.
	blocks := partition(t, []byte{0x01, 0x56})
	require.Len(t, blocks, 1)
	require.Nil(t, blocks[0].JumpTarget)

	// PUSH32 wider than uint64 cannot be a pc.
	wide := append([]byte{0x7F}, make([]byte, 32)...)
	for i := 1; i <= 32; i++ {
		wide[i] = 0xFF
	}
	wide = append(wide, 0x56)
	blocks = partition(t, wide)
	require.Len(t, blocks, 1)
	require.Nil(t, blocks[0].JumpTarget)

	// PUSH0; JUMP targets pc 0.
	blocks = partition(t, []byte{0x5F, 0x56})
	require.Len(t, blocks, 1)
	require.NotNil(t, blocks[0].JumpTarget)
	require.Equal(t, uint64(0), *blocks[0].JumpTarget)
}

func TestTrailingBlockRunsOffEnd(t *testing.T) {
	blocks := partition(t, []byte{0x5B, 0x60, 0x01})
	require.Len(t, blocks, 1)
	require.Equal(t, uint64(3), blocks[0].EndPC)
	require.Equal(t, ExitFallthrough, blocks[0].Exit)
}
