package attack

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/RowanDark/cipherlab/internal/blockcipher"
	"github.com/RowanDark/cipherlab/internal/modes"
)

// DefaultMaxBlockSize bounds DetectBlockSize when no limit is given.
const DefaultMaxBlockSize = 256

var (
	// ErrBlockSizeNotFound is returned when the ciphertext length never grows
	// within the probe limit.
	ErrBlockSizeNotFound = errors.New("block size not found")
	// ErrNotECB is returned when an attack that needs ECB sees no repeated blocks.
	ErrNotECB = errors.New("oracle is not using ECB mode")
)

// DetectMode reports ECB when any two consecutive 16-byte blocks of ct are
// identical and CBC otherwise. The plaintext must contain at least two equal
// aligned blocks for the answer to mean anything.
func DetectMode(ct []byte) modes.Mode {
	const n = blockcipher.BlockSize
	for i := n; i+n <= len(ct); i += n {
		if bytes.Equal(ct[i-n:i], ct[i:i+n]) {
			return modes.ECB
		}
	}
	return modes.CBC
}

// CountRepeatedBlocks returns how many blocks of ct duplicate an earlier block.
func CountRepeatedBlocks(ct []byte, blockSize int) int {
	if blockSize <= 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(ct)/blockSize)
	repeats := 0
	for i := 0; i+blockSize <= len(ct); i += blockSize {
		block := string(ct[i : i+blockSize])
		if _, ok := seen[block]; ok {
			repeats++
			continue
		}
		seen[block] = struct{}{}
	}
	return repeats
}

// MostLikelyECB returns the index of the ciphertext with the most repeated
// blocks, together with that count.
func MostLikelyECB(cts [][]byte) (int, int, error) {
	best, bestRepeats := -1, -1
	for i, ct := range cts {
		if r := CountRepeatedBlocks(ct, blockcipher.BlockSize); r > bestRepeats {
			best, bestRepeats = i, r
		}
	}
	if best < 0 {
		return 0, 0, errors.New("no ciphertexts supplied")
	}
	return best, bestRepeats, nil
}

// DetectBlockSize grows a one-byte input until the ciphertext length jumps.
// The size of the jump is the block size.
func DetectBlockSize(ctx context.Context, o Oracle, maxSize int) (int, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxBlockSize
	}
	input := []byte{'A'}
	ct, err := o.Encrypt(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("query oracle: %w", err)
	}
	base := len(ct)
	for len(input) <= maxSize {
		input = append(input, 'A')
		ct, err := o.Encrypt(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("query oracle: %w", err)
		}
		if len(ct) > base {
			return len(ct) - base, nil
		}
	}
	return 0, fmt.Errorf("%w: no growth after %d bytes", ErrBlockSizeNotFound, maxSize)
}

// DetectOracleMode submits three blocks of repeated bytes, enough to fill two
// aligned blocks behind a prefix shorter than one block, and classifies the
// result.
func DetectOracleMode(ctx context.Context, o Oracle, blockSize int) (modes.Mode, error) {
	if blockSize <= 0 {
		blockSize = blockcipher.BlockSize
	}
	ct, err := o.Encrypt(ctx, bytes.Repeat([]byte{'A'}, 3*blockSize))
	if err != nil {
		return 0, fmt.Errorf("query oracle: %w", err)
	}
	return DetectMode(ct), nil
}
