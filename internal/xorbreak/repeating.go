package xorbreak

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ErrInputTooShort is returned when the ciphertext cannot fill a single pair
// of chunks for any candidate key size.
var ErrInputTooShort = errors.New("ciphertext too short")

// KeySizeOptions bounds the key-size scan.
type KeySizeOptions struct {
	Min    int // default 2
	Max    int // default 40
	Chunks int // adjacent chunk pairs averaged per size, default 10
}

func (o KeySizeOptions) withDefaults() KeySizeOptions {
	if o.Min <= 0 {
		o.Min = 2
	}
	if o.Max <= 0 {
		o.Max = 40
	}
	if o.Chunks <= 0 {
		o.Chunks = 10
	}
	return o
}

// KeySize is a ranked key length guess. Lower Distance is more likely.
type KeySize struct {
	Size     int
	Distance float64
}

// RankKeySizes scores every key size in range by the average normalized edit
// distance between adjacent chunks of that size. Sizes too long to form one
// chunk pair are skipped. The result is sorted from most to least likely.
func RankKeySizes(ct []byte, opts KeySizeOptions) ([]KeySize, error) {
	opts = opts.withDefaults()
	if opts.Max < opts.Min {
		return nil, fmt.Errorf("invalid key size range [%d, %d]", opts.Min, opts.Max)
	}
	var ranked []KeySize
	for k := opts.Min; k <= opts.Max; k++ {
		pairs := len(ct)/k - 1
		if pairs > opts.Chunks {
			pairs = opts.Chunks
		}
		if pairs < 1 {
			break
		}
		total := 0
		for i := 0; i < pairs; i++ {
			d, err := HammingDistance(ct[i*k:(i+1)*k], ct[(i+1)*k:(i+2)*k])
			if err != nil {
				return nil, err
			}
			total += d
		}
		ranked = append(ranked, KeySize{
			Size:     k,
			Distance: float64(total) / float64(pairs) / float64(k),
		})
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("%w: %d bytes for minimum key size %d", ErrInputTooShort, len(ct), opts.Min)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})
	return ranked, nil
}

// Transpose splits ct into k streams; stream i holds the bytes at positions
// congruent to i mod k.
func Transpose(ct []byte, k int) [][]byte {
	if k <= 0 {
		return nil
	}
	streams := make([][]byte, k)
	for i := range streams {
		streams[i] = make([]byte, 0, len(ct)/k+1)
	}
	for i, b := range ct {
		streams[i%k] = append(streams[i%k], b)
	}
	return streams
}

// BreakOptions tunes BreakRepeatingKey.
type BreakOptions struct {
	KeySizes KeySizeOptions
	// Candidates is how many of the top-ranked key sizes to try. Divisors of
	// those sizes are tried as well. Default 3.
	Candidates int
	// Workers bounds how many key sizes are broken concurrently. Default 1.
	Workers int
}

// Candidate is the key and plaintext recovered for one key size guess.
type Candidate struct {
	KeySize   int
	Distance  float64
	Key       []byte
	Plaintext []byte
	Score     int
}

// BreakRepeatingKey ranks key sizes, breaks the top candidates column by
// column and returns them ordered by plaintext score, best first. Equal
// scores favour the shorter key.
func BreakRepeatingKey(ctx context.Context, ct []byte, opts BreakOptions) ([]Candidate, error) {
	if opts.Candidates <= 0 {
		opts.Candidates = 3
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	ranked, err := RankKeySizes(ct, opts.KeySizes)
	if err != nil {
		return nil, err
	}
	ranked = withDivisors(ranked, opts.Candidates, opts.KeySizes.withDefaults().Min)

	candidates := make([]Candidate, len(ranked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, ks := range ranked {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key := make([]byte, ks.Size)
			for col, stream := range Transpose(ct, ks.Size) {
				key[col] = BreakSingleByte(stream)[0].Key
			}
			pt := Repeating(key, ct)
			candidates[i] = Candidate{
				KeySize:   ks.Size,
				Distance:  ks.Distance,
				Key:       key,
				Plaintext: pt,
				Score:     defaultScorer.Score(pt),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].KeySize < candidates[j].KeySize
	})
	return candidates, nil
}

// withDivisors keeps the top n ranked sizes and appends every divisor of
// them that is at least minSize. Multiples of the key length tend to
// outrank the length itself.
func withDivisors(ranked []KeySize, n, minSize int) []KeySize {
	distance := make(map[int]float64, len(ranked))
	for _, ks := range ranked {
		distance[ks.Size] = ks.Distance
	}
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	seen := make(map[int]bool, len(ranked))
	out := make([]KeySize, 0, len(ranked))
	for _, ks := range ranked {
		seen[ks.Size] = true
		out = append(out, ks)
	}
	for _, ks := range ranked {
		for d := minSize; d < ks.Size; d++ {
			if ks.Size%d != 0 || seen[d] {
				continue
			}
			dist, ok := distance[d]
			if !ok {
				continue
			}
			seen[d] = true
			out = append(out, KeySize{Size: d, Distance: dist})
		}
	}
	return out
}
