// Package modes implements the ECB and CBC modes of operation with PKCS#7
// padding on top of a 16-byte block primitive.
package modes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RowanDark/cipherlab/internal/blockcipher"
	"github.com/RowanDark/cipherlab/internal/padding"
)

// Mode identifies a mode of operation.
type Mode int

const (
	ECB Mode = iota + 1
	CBC
)

func (m Mode) String() string {
	switch m {
	case ECB:
		return "ECB"
	case CBC:
		return "CBC"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "ecb" or "cbc", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ecb":
		return ECB, nil
	case "cbc":
		return CBC, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

var (
	// ErrInvalidLength is returned when ciphertext is empty or not block aligned.
	ErrInvalidLength = errors.New("ciphertext length is not a positive multiple of the block size")
	// ErrInvalidKeyLength is returned for keys that are not 16 bytes.
	ErrInvalidKeyLength = blockcipher.ErrInvalidKeyLength
	// ErrInvalidIVLength is returned for IVs that are not 16 bytes.
	ErrInvalidIVLength = errors.New("invalid IV length")
)

const blockSize = blockcipher.BlockSize

// ECBEncrypt pads msg and encrypts every block independently under key.
func ECBEncrypt(key, msg []byte) ([]byte, error) {
	c, err := newAdapter(key)
	if err != nil {
		return nil, err
	}
	return ECBEncryptBlocks(c, msg)
}

// ECBDecrypt decrypts ct block by block and removes the padding.
func ECBDecrypt(key, ct []byte) ([]byte, error) {
	c, err := newAdapter(key)
	if err != nil {
		return nil, err
	}
	return ECBDecryptBlocks(c, ct)
}

// CBCEncrypt pads msg and encrypts it in CBC mode. The IV is a per-call
// argument and must be fresh for every message under the same key.
func CBCEncrypt(key, iv, msg []byte) ([]byte, error) {
	c, err := newAdapter(key)
	if err != nil {
		return nil, err
	}
	return CBCEncryptBlocks(c, iv, msg)
}

// CBCDecrypt decrypts ct in CBC mode and removes the padding.
func CBCDecrypt(key, iv, ct []byte) ([]byte, error) {
	c, err := newAdapter(key)
	if err != nil {
		return nil, err
	}
	return CBCDecryptBlocks(c, iv, ct)
}

// ECBEncryptBlocks is ECBEncrypt over an already keyed primitive.
func ECBEncryptBlocks(c *blockcipher.Adapter, msg []byte) ([]byte, error) {
	buf, err := padding.Pad(blockSize, msg)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(buf); i += blockSize {
		c.EncryptBlock(buf[i:i+blockSize], buf[i:i+blockSize])
	}
	return buf, nil
}

// ECBDecryptBlocks is ECBDecrypt over an already keyed primitive.
func ECBDecryptBlocks(c *blockcipher.Adapter, ct []byte) ([]byte, error) {
	if err := checkCiphertext(ct); err != nil {
		return nil, err
	}
	buf := make([]byte, len(ct))
	for i := 0; i < len(ct); i += blockSize {
		c.DecryptBlock(buf[i:i+blockSize], ct[i:i+blockSize])
	}
	return unpad(buf)
}

// CBCEncryptBlocks is CBCEncrypt over an already keyed primitive.
func CBCEncryptBlocks(c *blockcipher.Adapter, iv, msg []byte) ([]byte, error) {
	if len(iv) != blockSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidIVLength, len(iv), blockSize)
	}
	buf, err := padding.Pad(blockSize, msg)
	if err != nil {
		return nil, err
	}
	chain := iv
	intermediate := make([]byte, blockSize)
	for i := 0; i < len(buf); i += blockSize {
		block := buf[i : i+blockSize]
		blockcipher.XOR(intermediate, block, chain)
		c.EncryptBlock(block, intermediate)
		chain = block
	}
	return buf, nil
}

// CBCDecryptBlocks is CBCDecrypt over an already keyed primitive.
func CBCDecryptBlocks(c *blockcipher.Adapter, iv, ct []byte) ([]byte, error) {
	if len(iv) != blockSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidIVLength, len(iv), blockSize)
	}
	if err := checkCiphertext(ct); err != nil {
		return nil, err
	}
	buf := make([]byte, len(ct))
	intermediate := make([]byte, blockSize)
	chain := iv
	for i := 0; i < len(ct); i += blockSize {
		block := ct[i : i+blockSize]
		c.DecryptBlock(intermediate, block)
		blockcipher.XOR(buf[i:i+blockSize], intermediate, chain)
		// chain on the consumed ciphertext block, not the recovered plaintext
		chain = block
	}
	return unpad(buf)
}

func newAdapter(key []byte) (*blockcipher.Adapter, error) {
	c, err := blockcipher.NewAES(key)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func checkCiphertext(ct []byte) error {
	if len(ct) == 0 || len(ct)%blockSize != 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(ct))
	}
	return nil
}

func unpad(buf []byte) ([]byte, error) {
	out, err := padding.Unpad(blockSize, buf)
	if err != nil {
		return nil, fmt.Errorf("unpad: %w", err)
	}
	return out, nil
}
