package xorbreak

import (
	"errors"
	"sort"
)

// DefaultRanking lists English characters from most to least frequent.
const DefaultRanking = " etaoinsrhldcumfpgwybvkxjqz"

// Scorer grades text by how much it looks like English.
type Scorer struct {
	weights [256]int
}

// NewScorer builds a scorer from a ranking string. The character at index i
// is worth len(ranking)-i points, matched case-insensitively. Anything not in
// the ranking costs one point. An empty ranking uses DefaultRanking.
func NewScorer(ranking string) *Scorer {
	if ranking == "" {
		ranking = DefaultRanking
	}
	s := &Scorer{}
	for i := range s.weights {
		s.weights[i] = -1
	}
	for i := len(ranking) - 1; i >= 0; i-- {
		w := len(ranking) - i
		c := ranking[i]
		s.weights[c] = w
		if c >= 'a' && c <= 'z' {
			s.weights[c-'a'+'A'] = w
		}
	}
	return s
}

// ScoreByte returns the weight of a single byte.
func (s *Scorer) ScoreByte(b byte) int { return s.weights[b] }

// Score sums the weights of every byte in text.
func (s *Scorer) Score(text []byte) int {
	total := 0
	for _, b := range text {
		total += s.weights[b]
	}
	return total
}

var defaultScorer = NewScorer(DefaultRanking)

// Attempt is one single-byte key guess.
type Attempt struct {
	Key       byte
	Plaintext []byte
	Score     int
}

// BreakSingleByte tries all 256 keys against ct and returns the attempts
// ordered from best to worst score. Ties keep ascending key order.
func BreakSingleByte(ct []byte) []Attempt {
	return breakSingleByte(defaultScorer, ct)
}

func breakSingleByte(s *Scorer, ct []byte) []Attempt {
	attempts := make([]Attempt, 256)
	for k := range attempts {
		pt := make([]byte, len(ct))
		for i, b := range ct {
			pt[i] = b ^ byte(k)
		}
		attempts[k] = Attempt{Key: byte(k), Plaintext: pt, Score: s.Score(pt)}
	}
	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].Score > attempts[j].Score
	})
	return attempts
}

// DetectSingleByte finds the line most likely to be single-byte XOR
// encrypted English and returns its index with the best attempt for it.
func DetectSingleByte(lines [][]byte) (int, Attempt, error) {
	if len(lines) == 0 {
		return 0, Attempt{}, errors.New("no lines supplied")
	}
	bestLine := -1
	var best Attempt
	for i, line := range lines {
		top := BreakSingleByte(line)[0]
		if bestLine < 0 || top.Score > best.Score {
			bestLine, best = i, top
		}
	}
	return bestLine, best, nil
}
