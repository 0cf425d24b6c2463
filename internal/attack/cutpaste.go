package attack

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/RowanDark/cipherlab/internal/padding"
)

// ErrAlignmentFailed is returned when a block boundary cannot be located or a
// crafted block does not land where expected.
var ErrAlignmentFailed = errors.New("block alignment failed")

// ForgeOptions tunes ForgeRecord.
type ForgeOptions struct {
	// Replace is the trailing field value the oracle writes, e.g. "user".
	Replace string
	// Inject is the value to splice in its place, e.g. "admin".
	Inject string
	// Filler is the byte used to shift attacker input. Defaults to 'A'.
	Filler byte
}

// Forgery is a ciphertext whose trailing field decrypts to the injected value.
type Forgery struct {
	Ciphertext []byte
	BlockSize  int
	// FieldOffset is where the attacker-controlled field starts in the record.
	FieldOffset int
	Queries     int
}

// ForgeRecord builds a ciphertext that decrypts to the oracle's record with
// the trailing value opts.Replace swapped for opts.Inject. The oracle must
// encrypt the whole record under ECB with a key reused across queries.
func ForgeRecord(ctx context.Context, o Oracle, opts ForgeOptions) (*Forgery, error) {
	if opts.Replace == "" || opts.Inject == "" {
		return nil, errors.New("replace and inject values are required")
	}
	if opts.Filler == 0 {
		opts.Filler = 'A'
	}
	co := &countingOracle{Oracle: o}
	encWith := func(filler byte, n int, tail ...[]byte) ([]byte, error) {
		input := bytes.Repeat([]byte{filler}, n)
		for _, t := range tail {
			input = append(input, t...)
		}
		ct, err := co.Encrypt(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query oracle: %w", err)
		}
		return ct, nil
	}
	enc := func(n int, tail ...[]byte) ([]byte, error) {
		return encWith(opts.Filler, n, tail...)
	}

	blockSize, err := DetectBlockSize(ctx, co, DefaultMaxBlockSize)
	if err != nil {
		return nil, err
	}
	if len(opts.Inject) >= blockSize || len(opts.Replace) >= blockSize {
		return nil, fmt.Errorf("%w: values must fit in one %d-byte block", ErrAlignmentFailed, blockSize)
	}

	// A filler equal to the byte that follows the field makes the search
	// settle one step early. Two distinct fillers cannot both match it.
	offset, err := fieldOffset(blockSize, func(n int) ([]byte, error) { return encWith(opts.Filler, n) })
	alt, altErr := fieldOffset(blockSize, func(n int) ([]byte, error) { return encWith(opts.Filler^0x01, n) })
	switch {
	case err != nil && altErr != nil:
		return nil, err
	case err != nil:
		offset = alt
	case altErr == nil && alt < offset:
		offset = alt
	}

	// Payload: shift to the next boundary, then Pad(inject) and Pad(replace)
	// as two whole blocks. The second one is the reference for the tail check.
	fill := (blockSize - offset%blockSize) % blockSize
	payloadIdx := (offset + fill) / blockSize
	injectBlock, err := padding.Pad(blockSize, []byte(opts.Inject))
	if err != nil {
		return nil, err
	}
	replaceBlock, err := padding.Pad(blockSize, []byte(opts.Replace))
	if err != nil {
		return nil, err
	}
	crafted, err := enc(fill, injectBlock, replaceBlock)
	if err != nil {
		return nil, err
	}
	if len(crafted) < (payloadIdx+2)*blockSize {
		return nil, fmt.Errorf("%w: crafted ciphertext too short", ErrAlignmentFailed)
	}
	payload := block(crafted, payloadIdx, blockSize)
	reference := block(crafted, payloadIdx+1, blockSize)

	// Tail: the length jump shows how many filler bytes align the record end
	// on a boundary; add len(replace) so the value alone spills into a block.
	jump, err := lengthJump(blockSize, enc)
	if err != nil {
		return nil, err
	}
	n := (jump + len(opts.Replace)) % blockSize
	tail, err := enc(n)
	if err != nil {
		return nil, err
	}
	if len(tail) < 2*blockSize || !bytes.Equal(tail[len(tail)-blockSize:], reference) {
		return nil, fmt.Errorf("%w: trailing value %q does not start a block with %d filler bytes", ErrAlignmentFailed, opts.Replace, n)
	}

	forged := make([]byte, 0, len(tail))
	forged = append(forged, tail[:len(tail)-blockSize]...)
	forged = append(forged, payload...)
	return &Forgery{
		Ciphertext:  forged,
		BlockSize:   blockSize,
		FieldOffset: offset,
		Queries:     co.count(),
	}, nil
}

// fieldOffset finds where attacker input starts. The first block that changes
// when one filler byte is added holds the start of the field; growing the
// input until that block stops changing shows how much of it the fixed
// prefix occupies.
func fieldOffset(blockSize int, enc func(int) ([]byte, error)) (int, error) {
	empty, err := enc(0)
	if err != nil {
		return 0, err
	}
	prev, err := enc(1)
	if err != nil {
		return 0, err
	}
	idx := -1
	for i := 0; (i+1)*blockSize <= len(empty) && (i+1)*blockSize <= len(prev); i++ {
		if !bytes.Equal(block(empty, i, blockSize), block(prev, i, blockSize)) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("%w: input does not influence the ciphertext", ErrAlignmentFailed)
	}

	for n := 1; n <= blockSize; n++ {
		next, err := enc(n + 1)
		if err != nil {
			return 0, err
		}
		if len(prev) >= (idx+1)*blockSize && len(next) >= (idx+1)*blockSize &&
			bytes.Equal(block(prev, idx, blockSize), block(next, idx, blockSize)) {
			return (idx+1)*blockSize - n, nil
		}
		prev = next
	}
	return 0, fmt.Errorf("%w: block %d never stabilised", ErrAlignmentFailed, idx)
}

// lengthJump returns the smallest n >= 1 for which n filler bytes grow the
// ciphertext by a block.
func lengthJump(blockSize int, enc func(int, ...[]byte) ([]byte, error)) (int, error) {
	base, err := enc(0)
	if err != nil {
		return 0, err
	}
	for n := 1; n <= blockSize; n++ {
		ct, err := enc(n)
		if err != nil {
			return 0, err
		}
		if len(ct) > len(base) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: ciphertext length never grew", ErrAlignmentFailed)
}

func block(ct []byte, i, blockSize int) []byte {
	return ct[i*blockSize : (i+1)*blockSize]
}
