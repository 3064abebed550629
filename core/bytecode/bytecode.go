package bytecode

import (
	"encoding/hex"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrOddLength is returned for hex input whose digit count is odd.
	ErrOddLength = errors.New("hex string of odd length")
	// ErrSyntax is returned for hex input containing non-hex characters.
	ErrSyntax = errors.New("invalid hex string")
)

// Bytecode is an immutable EVM program. The raw bytes are copied on
// construction and never mutated afterwards, so a Bytecode may be shared
// across goroutines without coordination.
type Bytecode struct {
	code []byte
	hash common.Hash
}

// New wraps raw as a Bytecode. The input is copied.
func New(raw []byte) *Bytecode {
	code := make([]byte, len(raw))
	copy(code, raw)
	return &Bytecode{code: code, hash: crypto.Keccak256Hash(code)}
}

// FromHex parses a hex string with an optional 0x/0X prefix. The digits must
// be even in count and valid hex; anything else fails outright rather than
// truncating silently. An empty string yields an empty program.
func FromHex(input string) (*Bytecode, error) {
	s := input
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 != 0 {
		return nil, ErrOddLength
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrSyntax
	}
	return New(raw), nil
}

// Bytes returns the underlying code. Callers must treat it as read-only.
func (b *Bytecode) Bytes() []byte {
	return b.code
}

func (b *Bytecode) Len() int {
	return len(b.code)
}

// Hash returns the keccak256 hash of the code, used as the cache key for
// derived analyses.
func (b *Bytecode) Hash() common.Hash {
	return b.hash
}

// Hex returns the canonical 0x-prefixed lowercase encoding of the code.
func (b *Bytecode) Hex() string {
	return hexutil.Encode(b.code)
}

// OpAt returns the opcode byte at pc, or INVALID for out-of-range pcs. Note
// that a byte inside push data is still returned verbatim; whether pc is an
// instruction at all is the analysis layer's question.
func (b *Bytecode) OpAt(pc uint64) OpCode {
	if pc >= uint64(len(b.code)) {
		return INVALID
	}
	return OpCode(b.code[pc])
}
