// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package analysis

const (
	set2BitsMask = uint16(0b11)
	set3BitsMask = uint16(0b111)
	set4BitsMask = uint16(0b1111)
	set5BitsMask = uint16(0b1_1111)
	set6BitsMask = uint16(0b11_1111)
	set7BitsMask = uint16(0b111_1111)
)

// bitvec is a bit vector which maps bytes in a program.
// An unset bit means the byte is an opcode, a set bit means
// it's data (i.e. argument of PUSHxx).
type bitvec []byte

func (bits bitvec) set1(pos uint64) {
	bits[pos/8] |= 1 << (pos % 8)
}

func (bits bitvec) setN(flag uint16, pos uint64) {
	a := flag << (pos % 8)
	bits[pos/8] |= byte(a)
	if b := byte(a >> 8); b != 0 {
		bits[pos/8+1] = b
	}
}

func (bits bitvec) set8(pos uint64) {
	a := byte(0xFF << (pos % 8))
	bits[pos/8] |= a
	bits[pos/8+1] = ^a
}

func (bits bitvec) set16(pos uint64) {
	a := byte(0xFF << (pos % 8))
	bits[pos/8] |= a
	bits[pos/8+1] = 0xFF
	bits[pos/8+2] = ^a
}

// codeSegment checks if the position is in a code segment.
func (bits *bitvec) codeSegment(pos uint64) bool {
	return (((*bits)[pos/8] >> (pos % 8)) & 1) == 0
}

// newBitvec allocates a bit vector for a program of the given length.
// The bitmap is 4 bytes longer than necessary, in case the code
// ends with a PUSH32, the walk will set bits on the bitvector
// outside the bounds of the actual code.
func newBitvec(codeLen int) bitvec {
	return make(bitvec, codeLen/8+1+4)
}

// markImmediate marks numbits bytes starting at pos as push data and
// returns the pc following the immediate window.
func (bits bitvec) markImmediate(numbits, pos uint64) uint64 {
	if numbits >= 8 {
		for ; numbits >= 16; numbits -= 16 {
			bits.set16(pos)
			pos += 16
		}
		for ; numbits >= 8; numbits -= 8 {
			bits.set8(pos)
			pos += 8
		}
	}
	switch numbits {
	case 1:
		bits.set1(pos)
		pos += 1
	case 2:
		bits.setN(set2BitsMask, pos)
		pos += 2
	case 3:
		bits.setN(set3BitsMask, pos)
		pos += 3
	case 4:
		bits.setN(set4BitsMask, pos)
		pos += 4
	case 5:
		bits.setN(set5BitsMask, pos)
		pos += 5
	case 6:
		bits.setN(set6BitsMask, pos)
		pos += 6
	case 7:
		bits.setN(set7BitsMask, pos)
		pos += 7
	}
	return pos
}
