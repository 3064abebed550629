package bytecode

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Step decodes the single instruction starting at pc. It returns the opcode,
// the length of its immediate data (zero for everything outside PUSH1..PUSH32)
// and the pc of the following instruction. A trailing PUSH whose declared
// immediate extends past the end of code is clamped: nextPC never exceeds
// len(code). Step never fails; pc must be inside [0, len(code)).
func Step(code []byte, pc uint64) (op OpCode, immLen uint64, nextPC uint64) {
	op = OpCode(code[pc])
	immLen = op.PushSize()
	nextPC = pc + 1 + immLen
	if codeLen := uint64(len(code)); nextPC > codeLen {
		nextPC = codeLen
	}
	return op, immLen, nextPC
}

// Instruction is one decoded unit of a program: the opcode, the pc it starts
// at and its immediate data bytes. Imm aliases the underlying code buffer and
// may be shorter than the declared push size when the code is truncated.
type Instruction struct {
	PC  uint64
	Op  OpCode
	Imm []byte
}

// DecodeAt materializes the instruction starting at pc.
func DecodeAt(code []byte, pc uint64) Instruction {
	op, _, next := Step(code, pc)
	return Instruction{PC: pc, Op: op, Imm: code[pc+1 : next]}
}

// ImmValue decodes the immediate data as an integer. The second return is
// false for opcodes that carry no push semantics. Truncated immediates are
// right-padded with zeroes to the declared width, matching what the EVM
// pushes for code that runs off the end.
func (in Instruction) ImmValue() (*uint256.Int, bool) {
	if !in.Op.IsPush() {
		return nil, false
	}
	if size := int(in.Op.PushSize()); len(in.Imm) < size {
		return new(uint256.Int).SetBytes(common.RightPadBytes(in.Imm, size)), true
	}
	return new(uint256.Int).SetBytes(in.Imm), true
}

func (in Instruction) String() string {
	if len(in.Imm) > 0 {
		return fmt.Sprintf("%v 0x%x", in.Op, in.Imm)
	}
	return in.Op.String()
}

// Disassemble decodes the whole buffer into its instruction sequence,
// skipping over immediate data the same way the boundary walk does.
func Disassemble(code []byte) []Instruction {
	var insts []Instruction
	for pc := uint64(0); pc < uint64(len(code)); {
		in := DecodeAt(code, pc)
		insts = append(insts, in)
		pc = in.PC + 1 + uint64(len(in.Imm))
	}
	return insts
}
