package xorbreak

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"reflect"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return b
}

func TestFixed(t *testing.T) {
	a := mustHex(t, "1c0111001f010100061a024b53535009181c")
	b := mustHex(t, "686974207468652062756c6c277320657965")
	got, err := Fixed(a, b)
	if err != nil {
		t.Fatalf("Fixed: %v", err)
	}
	if want := "746865206b696420646f6e277420706c6179"; hex.EncodeToString(got) != want {
		t.Fatalf("expected %s, got %x", want, got)
	}
	if _, err := Fixed([]byte{1}, []byte{1, 2}); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestRepeating(t *testing.T) {
	pt := []byte("Burning 'em, if you ain't quick and nimble\nI go crazy when I hear a cymbal")
	want := "0b3637272a2b2e63622c2e69692a23693a2a3c6324202d623d63343c2a26226324272765272a282b2f20430a652e2c652a3124333a653e2b2027630c692b20283165286326302e27282f"
	ct := Repeating([]byte("ICE"), pt)
	if got := hex.EncodeToString(ct); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if back := Repeating([]byte("ICE"), ct); !bytes.Equal(back, pt) {
		t.Fatalf("expected round trip, got %q", back)
	}
	if got := Repeating(nil, pt); !bytes.Equal(got, pt) {
		t.Fatal("empty key should leave data unchanged")
	}
}

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		a, b []byte
		want int
	}{
		{[]byte("this is a test"), []byte("wokka wokka!!!"), 37},
		{[]byte{0b11010011}, []byte{0b01110010}, 3},
		{nil, nil, 0},
	}
	for _, tt := range tests {
		got, err := HammingDistance(tt.a, tt.b)
		if err != nil {
			t.Fatalf("HammingDistance: %v", err)
		}
		if got != tt.want {
			t.Errorf("HammingDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
	if _, err := HammingDistance([]byte{1}, nil); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestScorer(t *testing.T) {
	s := NewScorer("")
	tests := []struct {
		b    byte
		want int
	}{
		{' ', 27},
		{'e', 26},
		{'E', 26},
		{'z', 1},
		{'Z', 1},
		{')', -1},
		{0x00, -1},
	}
	for _, tt := range tests {
		if got := s.ScoreByte(tt.b); got != tt.want {
			t.Errorf("ScoreByte(%q) = %d, want %d", tt.b, got, tt.want)
		}
	}
	if got := s.Score([]byte("ez)")); got != 26 {
		t.Fatalf("expected 26, got %d", got)
	}
}

func TestBreakSingleByte(t *testing.T) {
	ct := mustHex(t, "1b37373331363f78151b7f2b783431333d78397828372d363c78373e783a393b3736")
	attempts := BreakSingleByte(ct)
	if len(attempts) != 256 {
		t.Fatalf("expected 256 attempts, got %d", len(attempts))
	}
	if got := string(attempts[0].Plaintext); got != "Cooking MC's like a pound of bacon" {
		t.Fatalf("unexpected best guess %q", got)
	}
	if attempts[0].Key != 'X' {
		t.Fatalf("expected key 'X', got %q", attempts[0].Key)
	}
	for i := 1; i < len(attempts); i++ {
		if attempts[i].Score > attempts[i-1].Score {
			t.Fatalf("attempts not sorted at %d", i)
		}
	}
}

func TestDetectSingleByte(t *testing.T) {
	lines := make([][]byte, 20)
	for i := range lines {
		lines[i] = make([]byte, 30)
		if _, err := rand.Read(lines[i]); err != nil {
			t.Fatalf("rand: %v", err)
		}
	}
	pt := []byte("Now that the party is jumping\n")
	for i := range pt {
		pt[i] ^= 0x35
	}
	lines[13] = pt

	idx, best, err := DetectSingleByte(lines)
	if err != nil {
		t.Fatalf("DetectSingleByte: %v", err)
	}
	if idx != 13 {
		t.Fatalf("expected line 13, got %d", idx)
	}
	if string(best.Plaintext) != "Now that the party is jumping\n" || best.Key != 0x35 {
		t.Fatalf("unexpected attempt %q with key %#x", best.Plaintext, best.Key)
	}
	if _, _, err := DetectSingleByte(nil); err == nil {
		t.Fatal("expected error for no lines")
	}
}

func TestTranspose(t *testing.T) {
	tests := []struct {
		in   []byte
		k    int
		want [][]byte
	}{
		{[]byte{1, 2, 3}, 1, [][]byte{{1, 2, 3}}},
		{[]byte{1, 2, 3, 4, 5}, 2, [][]byte{{1, 3, 5}, {2, 4}}},
		{[]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, 3, [][]byte{{1, 4, 7}, {2, 5, 8}, {3, 6, 9}}},
	}
	for _, tt := range tests {
		if got := Transpose(tt.in, tt.k); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Transpose(%v, %d) = %v, want %v", tt.in, tt.k, got, tt.want)
		}
	}
	if got := Transpose([]byte{1}, 0); got != nil {
		t.Fatalf("expected nil for k=0, got %v", got)
	}
}

const prose = `The harbour town woke slowly in the grey light of the autumn morning. ` +
	`Fishermen carried their nets down to the water while the baker opened his shutters and set out the first loaves of the day. ` +
	`Children ran along the sea wall, shouting at the gulls that circled above the boats, and an old woman sat on her doorstep ` +
	`mending a coat with careful hands. Nobody in the town could remember a time when the morning had been any different. ` +
	`The church bell rang the hour and the sound rolled out across the bay to the small island where the lighthouse keeper lived alone. ` +
	`He had kept the lamp burning for thirty years and knew every rock and current between the island and the mainland. ` +
	`When the weather turned bad he would write long letters to his sister in the city, describing the storms and the ships ` +
	`that passed in the night, though he rarely sent them. In the afternoon the wind picked up and the boats came home early. ` +
	`The men talked about the price of fish and the new road that was being built over the hills, which some said would bring ` +
	`visitors and money and others said would only bring trouble. By evening the lamps were lit in every window and the smell ` +
	`of wood smoke hung over the narrow streets. The keeper climbed the stairs of his tower, trimmed the wick and watched the ` +
	`beam sweep across the dark water, as he had done on every night of his working life.`

func TestBreakRepeatingKey(t *testing.T) {
	key := []byte("lanternfly")
	ct := Repeating(key, []byte(prose))

	candidates, err := BreakRepeatingKey(context.Background(), ct, BreakOptions{Candidates: 5, Workers: 3})
	if err != nil {
		t.Fatalf("BreakRepeatingKey: %v", err)
	}
	if len(candidates) < 5 {
		t.Fatalf("expected at least 5 candidates, got %d", len(candidates))
	}
	found := false
	for _, c := range candidates {
		if string(c.Plaintext) == prose {
			found = true
			if c.KeySize%len(key) != 0 {
				t.Fatalf("correct plaintext from key size %d", c.KeySize)
			}
		}
	}
	if !found {
		t.Fatalf("no candidate recovered the plaintext; best key %q", candidates[0].Key)
	}
	if string(candidates[0].Plaintext) != prose {
		t.Fatalf("expected the best-scored candidate to be correct, got key %q", candidates[0].Key)
	}
}

const lighthouse = `Every lighthouse keeper learns the rhythm of the lamp before anything else.
The lens turns, the beam sweeps the water, and ships far out at sea count the
seconds between flashes to know which coast they are passing. On calm nights
the work is quiet: trimming wicks, winding the clockwork, writing the weather
into a book that nobody reads. On stormy nights the keeper climbs the stairs
again and again, checking that the glass is clean and the light still burns.`

func TestBreakRepeatingKeyOutsideTopRanks(t *testing.T) {
	ct := Repeating([]byte("tern"), []byte(lighthouse))

	ranked, err := RankKeySizes(ct, KeySizeOptions{})
	if err != nil {
		t.Fatalf("RankKeySizes: %v", err)
	}
	for _, ks := range ranked[:3] {
		if ks.Size == 4 {
			t.Fatalf("key size 4 ranks in the top three %v; the text no longer covers divisor candidates", ranked[:3])
		}
	}

	candidates, err := BreakRepeatingKey(context.Background(), ct, BreakOptions{Workers: 4})
	if err != nil {
		t.Fatalf("BreakRepeatingKey: %v", err)
	}
	best := candidates[0]
	if best.KeySize != 4 || string(best.Key) != "tern" {
		t.Fatalf("expected key %q of size 4, got %q of size %d", "tern", best.Key, best.KeySize)
	}
	if string(best.Plaintext) != lighthouse {
		t.Fatalf("plaintext mismatch: %q", best.Plaintext)
	}
	for i := 1; i < len(candidates); i++ {
		prev, cur := candidates[i-1], candidates[i]
		if cur.Score > prev.Score || (cur.Score == prev.Score && cur.KeySize < prev.KeySize) {
			t.Fatalf("candidates out of order at %d: %d/%d before %d/%d", i, prev.KeySize, prev.Score, cur.KeySize, cur.Score)
		}
	}
}

func TestWithDivisors(t *testing.T) {
	ranked := []KeySize{{18, 2.57}, {32, 2.575}, {28, 2.59}, {12, 2.59}, {4, 2.6}, {2, 3}, {3, 3.1}, {6, 3.2}, {7, 3.3}, {8, 3.4}, {9, 3.5}, {14, 3.6}, {16, 3.7}}
	tests := []struct {
		name       string
		n, minSize int
		want       []int
	}{
		{"top three", 3, 2, []int{18, 32, 28, 2, 3, 6, 9, 4, 8, 16, 7, 14}},
		{"min excludes small divisors", 1, 5, []int{18, 6, 9}},
		{"n beyond ranking", 20, 16, []int{18, 32, 28, 12, 4, 2, 3, 6, 7, 8, 9, 14, 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for _, ks := range withDivisors(ranked, tt.n, tt.minSize) {
				got = append(got, ks.Size)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected sizes %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRankKeySizes(t *testing.T) {
	ranked, err := RankKeySizes(make([]byte, 9), KeySizeOptions{})
	if err != nil {
		t.Fatalf("RankKeySizes: %v", err)
	}
	// sizes 2..4 fit at least one chunk pair in 9 bytes
	if len(ranked) != 3 {
		t.Fatalf("expected 3 sizes, got %d", len(ranked))
	}
	if _, err := RankKeySizes([]byte{1, 2, 3}, KeySizeOptions{}); !errors.Is(err, ErrInputTooShort) {
		t.Fatalf("expected ErrInputTooShort, got %v", err)
	}
	if _, err := RankKeySizes(make([]byte, 100), KeySizeOptions{Min: 10, Max: 5}); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestBreakRepeatingKeyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ct := Repeating([]byte("key"), []byte(prose))
	if _, err := BreakRepeatingKey(ctx, ct, BreakOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
