// Package padding implements PKCS#7 padding over byte buffers.
package padding

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrInvalidBlockSize is returned when the block size cannot be expressed
	// in a single padding byte.
	ErrInvalidBlockSize = errors.New("invalid block size")
	// ErrInvalidLength is returned when padded input is empty or not a
	// multiple of the block size.
	ErrInvalidLength = errors.New("invalid padded length")
	// ErrInvalidPadding is returned when the trailing padding byte is zero or
	// larger than the block size.
	ErrInvalidPadding = errors.New("invalid padding")
)

// Pad returns a copy of data with PKCS#7 padding appended. Block-aligned input
// always gains one full block of padding.
func Pad(blockSize int, data []byte) ([]byte, error) {
	if blockSize < 1 || blockSize > 0xff {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...), nil
}

// Unpad strips PKCS#7 padding. Only the final byte is inspected: the
// preceding padding bytes are not compared against it. Use UnpadStrict when
// every padding byte must be validated.
func Unpad(blockSize int, data []byte) ([]byte, error) {
	n, err := padLen(blockSize, data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data)-n)
	copy(out, data)
	return out, nil
}

// UnpadStrict strips PKCS#7 padding after checking that all padding bytes
// carry the padding length.
func UnpadStrict(blockSize int, data []byte) ([]byte, error) {
	n, err := padLen(blockSize, data)
	if err != nil {
		return nil, err
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: padding byte %#x does not match length %d", ErrInvalidPadding, b, n)
		}
	}
	out := make([]byte, len(data)-n)
	copy(out, data)
	return out, nil
}

func padLen(blockSize int, data []byte) (int, error) {
	if blockSize < 1 || blockSize > 0xff {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}
	if len(data) == 0 || len(data)%blockSize != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a positive multiple of %d", ErrInvalidLength, len(data), blockSize)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return 0, fmt.Errorf("%w: trailing byte %#x", ErrInvalidPadding, n)
	}
	return n, nil
}
