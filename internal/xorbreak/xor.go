// Package xorbreak recovers keys from single-byte and repeating-key XOR
// ciphertexts using English letter frequency.
package xorbreak

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrLengthMismatch is returned when two buffers that must be the same
// length are not.
var ErrLengthMismatch = errors.New("length mismatch")

// Fixed XORs two equal-length buffers.
func Fixed(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d and %d bytes", ErrLengthMismatch, len(a), len(b))
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}

// Repeating XORs data with key repeated to its length. Encryption and
// decryption are the same operation. An empty key returns a copy of data.
func Repeating(key, data []byte) []byte {
	out := make([]byte, len(data))
	if len(key) == 0 {
		copy(out, data)
		return out
	}
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// HammingDistance counts the differing bits between two equal-length buffers.
func HammingDistance(a, b []byte) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d and %d bytes", ErrLengthMismatch, len(a), len(b))
	}
	d := 0
	for i := range a {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d, nil
}
