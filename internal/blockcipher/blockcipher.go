// Package blockcipher adapts a single-block primitive to the fixed 16-byte
// contract used by the mode layer.
package blockcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"
	"fmt"
)

const (
	// BlockSize is the only block size the mode layer supports.
	BlockSize = 16
	// KeySize is the AES-128 key length.
	KeySize = 16
)

// ErrInvalidKeyLength is returned when a key is not KeySize bytes long.
var ErrInvalidKeyLength = errors.New("invalid key length")

// Adapter enforces the 16-byte block contract around a cipher.Block.
// It is safe for concurrent use when the wrapped primitive is.
type Adapter struct {
	block cipher.Block
}

// NewAES builds an adapter over AES-128 keyed with key.
func NewAES(key []byte) (*Adapter, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	return &Adapter{block: block}, nil
}

// New wraps an existing primitive. The primitive must use 16-byte blocks.
func New(block cipher.Block) (*Adapter, error) {
	if block == nil {
		return nil, errors.New("nil block primitive")
	}
	if block.BlockSize() != BlockSize {
		return nil, fmt.Errorf("unsupported block size %d", block.BlockSize())
	}
	return &Adapter{block: block}, nil
}

// BlockSize returns the block size in bytes.
func (a *Adapter) BlockSize() int { return BlockSize }

// EncryptBlock encrypts exactly one block from src into dst. Any other length
// is a programming error and panics.
func (a *Adapter) EncryptBlock(dst, src []byte) {
	checkBlock(dst, src)
	a.block.Encrypt(dst[:BlockSize], src[:BlockSize])
}

// DecryptBlock decrypts exactly one block from src into dst.
func (a *Adapter) DecryptBlock(dst, src []byte) {
	checkBlock(dst, src)
	a.block.Decrypt(dst[:BlockSize], src[:BlockSize])
}

// XOR writes a^b into dst. All three slices must be one block long.
func XOR(dst, a, b []byte) {
	if len(a) != BlockSize || len(b) != BlockSize || len(dst) < BlockSize {
		panic(fmt.Sprintf("blockcipher: xor of %d and %d bytes into %d", len(a), len(b), len(dst)))
	}
	subtle.XORBytes(dst, a, b)
}

func checkBlock(dst, src []byte) {
	if len(src) != BlockSize {
		panic(fmt.Sprintf("blockcipher: input block is %d bytes, want %d", len(src), BlockSize))
	}
	if len(dst) < BlockSize {
		panic(fmt.Sprintf("blockcipher: output buffer is %d bytes, want %d", len(dst), BlockSize))
	}
}
