package attack

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/RowanDark/cipherlab/internal/modes"
)

// ErrRecoveryFailed is returned when no candidate in the brute-force table
// matches the target ciphertext. It means a precondition is broken: the
// oracle changes its key between queries, or adds a random prefix.
var ErrRecoveryFailed = errors.New("suffix recovery failed")

// RecoveryOptions tunes RecoverSuffix.
type RecoveryOptions struct {
	// MaxLength bounds how many bytes are recovered. It is rounded up to a
	// multiple of the block size. Zero derives it from the ciphertext length
	// of an empty query, which always covers the suffix plus padding.
	MaxLength int
	// Filler is the byte used to shift the suffix. Defaults to 'A'.
	Filler byte
	// Workers is the number of concurrent candidate queries per byte.
	Workers int
	// OnByte, when set, is called after each byte is recovered.
	OnByte func(index int, b byte)
}

// Recovery is the outcome of RecoverSuffix.
type Recovery struct {
	BlockSize int
	// Raw holds every recovered byte, including the 0x01 padding byte that
	// marks the end of the suffix.
	Raw []byte
	// Suffix is Raw with the padding artifact trimmed.
	Suffix  []byte
	Queries int
}

// bruteForceTable maps the first L ciphertext bytes of a probe to the
// candidate byte that produced it.
type bruteForceTable map[string]byte

// RecoverSuffix recovers the secret an ECB oracle appends to attacker input,
// one byte at a time.
func RecoverSuffix(ctx context.Context, o Oracle, opts RecoveryOptions) (*Recovery, error) {
	co := &countingOracle{Oracle: o}
	if opts.Filler == 0 {
		opts.Filler = 'A'
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	blockSize, err := DetectBlockSize(ctx, co, DefaultMaxBlockSize)
	if err != nil {
		return nil, err
	}

	probe, err := co.Encrypt(ctx, bytes.Repeat([]byte{opts.Filler}, 2*blockSize))
	if err != nil {
		return nil, fmt.Errorf("query oracle: %w", err)
	}
	if DetectMode(probe) != modes.ECB {
		return nil, fmt.Errorf("%w: %w", ErrRecoveryFailed, ErrNotECB)
	}

	limit := opts.MaxLength
	if limit <= 0 {
		empty, err := co.Encrypt(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("query oracle: %w", err)
		}
		limit = len(empty)
	}
	if rem := limit % blockSize; rem != 0 {
		limit += blockSize - rem
	}

	recovered := make([]byte, 0, limit)
	for x := 1; x <= limit; x++ {
		shifted := bytes.Repeat([]byte{opts.Filler}, limit-x)

		table, err := buildTable(ctx, co, shifted, recovered, limit, opts.Workers)
		if err != nil {
			return nil, err
		}

		target, err := co.Encrypt(ctx, shifted)
		if err != nil {
			return nil, fmt.Errorf("query oracle: %w", err)
		}
		var (
			b  byte
			ok bool
		)
		if len(target) >= limit {
			b, ok = table[string(target[:limit])]
		}
		if !ok {
			if n := len(recovered); n > 0 && recovered[n-1] == 0x01 {
				// past the 0x01 padding byte the padding changes under us
				break
			}
			return nil, fmt.Errorf("%w: no candidate matched at byte %d", ErrRecoveryFailed, x)
		}
		recovered = append(recovered, b)
		if opts.OnByte != nil {
			opts.OnByte(x-1, b)
		}
	}

	return &Recovery{
		BlockSize: blockSize,
		Raw:       recovered,
		Suffix:    TrimPadding(recovered),
		Queries:   co.count(),
	}, nil
}

// TrimPadding drops a single trailing 0x01 left behind by RecoverSuffix.
func TrimPadding(raw []byte) []byte {
	if n := len(raw); n > 0 && raw[n-1] == 0x01 {
		return raw[:n-1]
	}
	return raw
}

// buildTable queries shifted || known || c for every candidate c. Each
// worker builds its own input buffer, so the oracle only has to be reentrant.
func buildTable(ctx context.Context, o Oracle, shifted, known []byte, limit, workers int) (bruteForceTable, error) {
	var prefixes [256][]byte

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := 0; c < 256; c++ {
		g.Go(func() error {
			input := make([]byte, 0, len(shifted)+len(known)+1)
			input = append(input, shifted...)
			input = append(input, known...)
			input = append(input, byte(c))
			ct, err := o.Encrypt(gctx, input)
			if err != nil {
				return fmt.Errorf("query oracle: %w", err)
			}
			if len(ct) < limit {
				return fmt.Errorf("%w: ciphertext of %d bytes is shorter than %d", ErrRecoveryFailed, len(ct), limit)
			}
			prefixes[c] = ct[:limit]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table := make(bruteForceTable, len(prefixes))
	for c, prefix := range prefixes {
		table[string(prefix)] = byte(c)
	}
	return table, nil
}
