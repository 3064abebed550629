package analysis

import (
	"bytes"
	"testing"

	"github.com/evmtools/evmanalyzer/core/bytecode"
)

// countingLoop is PUSH0; JUMPDEST; PUSH1 10; DUP2; LT; ISZERO; PUSH1 16;
// JUMPI; PUSH1 1; ADD; PUSH1 1; JUMP; JUMPDEST; POP; STOP.
var countingLoop = []byte{
	0x5F, 0x5B, 0x60, 0x0A, 0x81, 0x10, 0x15, 0x60, 0x10, 0x57,
	0x60, 0x01, 0x01, 0x60, 0x01, 0x56, 0x5B, 0x50, 0x00,
}

func TestJumpDestInsidePushData(t *testing.T) {
	// PUSH1 0x5B; JUMPDEST. The 0x5B immediate must never validate.
	a := AnalyzeCode([]byte{0x60, 0x5B, 0x5B})

	if a.IsValidJumpDest(1) {
		t.Error("jumpdest byte inside push data validated")
	}
	if !a.IsValidJumpDest(2) {
		t.Error("real JUMPDEST did not validate")
	}
	if !a.IsBoundary(0) || a.IsBoundary(1) || !a.IsBoundary(2) {
		t.Error("boundary classification wrong for PUSH1 0x5B; JUMPDEST")
	}
}

func TestAllPushWidths(t *testing.T) {
	for n := 1; n <= 32; n++ {
		code := make([]byte, n+1)
		code[0] = 0x5F + byte(n) // PUSHn
		a := AnalyzeCode(code)
		if !a.IsBoundary(0) {
			t.Errorf("PUSH%d: pc 0 not a boundary", n)
		}
		for k := 1; k <= n; k++ {
			if a.IsBoundary(uint64(k)) {
				t.Errorf("PUSH%d: immediate byte %d reported as boundary", n, k)
			}
		}
	}
}

func TestBoundaryJumpdestConsistency(t *testing.T) {
	codes := [][]byte{
		countingLoop,
		{0x60, 0x5B, 0x5B},
		{0x5B, 0x5B, 0x5B},
		{0x7F, 0x5B, 0x5B}, // truncated PUSH32 full of jumpdest bytes
		{},
	}
	for _, code := range codes {
		a := AnalyzeCode(code)
		for pc := uint64(0); pc < uint64(len(code))+2; pc++ {
			want := a.IsBoundary(pc) && pc < uint64(len(code)) && code[pc] == 0x5B
			if got := a.IsValidJumpDest(pc); got != want {
				t.Errorf("code %x pc %d: IsValidJumpDest = %v, want %v", code, pc, got, want)
			}
		}
	}
}

func TestSteppingCoversBoundaries(t *testing.T) {
	a := AnalyzeCode(countingLoop)

	var visited []uint64
	pc := int64(0)
	for pc != EndOfCode {
		visited = append(visited, uint64(pc))
		pc = a.NextPC(uint64(pc))
	}

	want := []uint64{0, 1, 2, 4, 5, 6, 7, 9, 10, 12, 13, 15, 16, 17, 18}
	if len(visited) != len(want) {
		t.Fatalf("visited %d pcs, want %d: %v", len(visited), len(want), visited)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("step %d visited pc %d, want %d", i, visited[i], want[i])
		}
	}

	// The visited set is exactly the boundary set.
	next := 0
	for pc := uint64(0); pc < uint64(len(countingLoop)); pc++ {
		isVisited := next < len(want) && want[next] == pc
		if isVisited {
			next++
		}
		if a.IsBoundary(pc) != isVisited {
			t.Errorf("pc %d: IsBoundary = %v, stepping visited = %v", pc, a.IsBoundary(pc), isVisited)
		}
	}
}

func TestNextPCInvalidInputs(t *testing.T) {
	a := AnalyzeCode(countingLoop)
	if got := a.NextPC(3); got != EndOfCode { // immediate data byte
		t.Errorf("NextPC on push data = %d, want EndOfCode", got)
	}
	if got := a.NextPC(1 << 20); got != EndOfCode {
		t.Errorf("NextPC out of range = %d, want EndOfCode", got)
	}
	if got := a.NextPC(18); got != EndOfCode { // last instruction
		t.Errorf("NextPC on last instruction = %d, want EndOfCode", got)
	}
	if got := AnalyzeCode(nil).NextPC(0); got != EndOfCode {
		t.Errorf("NextPC on empty code = %d, want EndOfCode", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		code      []byte
		valid     bool
		truncated uint64
	}{
		{[]byte{}, true, 0},
		{[]byte{0x00}, true, 0},
		{[]byte{0x60}, false, 0},
		{[]byte{0x60, 0xFF}, true, 0},
		{[]byte{0x00, 0x61, 0x01}, false, 1},
		{append([]byte{0x7F}, make([]byte, 31)...), false, 0},
		{append([]byte{0x7F}, make([]byte, 32)...), true, 0},
		{countingLoop, true, 0},
	}
	for _, tt := range tests {
		a := AnalyzeCode(tt.code)
		if got := a.Validate(); got != tt.valid {
			t.Errorf("Validate(%x) = %v, want %v", tt.code, got, tt.valid)
			continue
		}
		if pc, bad := a.TruncatedAt(); bad == tt.valid {
			t.Errorf("TruncatedAt(%x) reported %v, inconsistent with Validate", tt.code, bad)
		} else if bad && pc != tt.truncated {
			t.Errorf("TruncatedAt(%x) = %d, want %d", tt.code, pc, tt.truncated)
		}
	}
}

func TestJumpDestinationsOrdered(t *testing.T) {
	a := AnalyzeCode(countingLoop)
	dests := a.JumpDestinations()
	want := []uint64{1, 16}
	if len(dests) != len(want) {
		t.Fatalf("JumpDestinations = %v, want %v", dests, want)
	}
	for i := range want {
		if dests[i] != want[i] {
			t.Fatalf("JumpDestinations = %v, want %v", dests, want)
		}
	}
	for _, pc := range dests {
		if !a.IsValidJumpDest(pc) {
			t.Errorf("listed destination %d does not validate", pc)
		}
	}
}

func TestAnalyzeBytecode(t *testing.T) {
	b := bytecode.New(countingLoop)
	a := Analyze(b)
	if !a.IsValidJumpDest(16) {
		t.Error("Analyze over Bytecode lost the jumpdest index")
	}
	if !bytes.Equal(a.Code(), countingLoop) {
		t.Error("Code() does not match the analyzed input")
	}
}

func BenchmarkAnalyzeCode(b *testing.B) {
	// Max-size contract of alternating PUSH2 and arithmetic.
	code := bytes.Repeat([]byte{0x61, 0x01, 0x02, 0x01, 0x5B, 0x01}, 4096)
	b.SetBytes(int64(len(code)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AnalyzeCode(code)
	}
}

func BenchmarkIsValidJumpDest(b *testing.B) {
	a := AnalyzeCode(bytes.Repeat(countingLoop, 1024))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.IsValidJumpDest(uint64(i) % uint64(len(a.Code())))
	}
}
