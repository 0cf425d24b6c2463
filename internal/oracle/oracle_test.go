package oracle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/RowanDark/cipherlab/internal/modes"
)

func TestHiddenSuffixOracleReusesKey(t *testing.T) {
	o, err := NewHiddenSuffix([]byte("secret"), nil)
	if err != nil {
		t.Fatalf("NewHiddenSuffix: %v", err)
	}
	ctx := context.Background()

	first, err := o.Query(ctx, []byte("AAAA"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	second, err := o.Query(ctx, []byte("AAAA"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if first.Mode != modes.ECB || second.Mode != modes.ECB {
		t.Fatalf("expected ECB, got %v and %v", first.Mode, second.Mode)
	}
	if !bytes.Equal(first.Ciphertext, second.Ciphertext) {
		t.Fatal("per-oracle key should make identical queries encrypt identically")
	}
	if len(first.Ciphertext) != 16 {
		t.Fatalf("expected one block for 10 bytes of plaintext, got %d", len(first.Ciphertext))
	}
}

func TestHiddenSuffixLengths(t *testing.T) {
	secret := bytes.Repeat([]byte{'s'}, 20)
	o, err := NewHiddenSuffix(secret, nil)
	if err != nil {
		t.Fatalf("NewHiddenSuffix: %v", err)
	}
	tests := []struct {
		input int
		want  int
	}{
		{0, 32},
		{11, 32},
		{12, 48},
		{28, 64},
	}
	for _, tt := range tests {
		ct, err := o.Encrypt(context.Background(), make([]byte, tt.input))
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if len(ct) != tt.want {
			t.Errorf("input %d: expected %d ciphertext bytes, got %d", tt.input, tt.want, len(ct))
		}
	}
}

func TestPerCallKeyChangesCiphertext(t *testing.T) {
	o, err := New(Config{Mode: ModeECB, KeyPolicy: KeyPerCall})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	first, _ := o.Encrypt(ctx, []byte("same input"))
	second, _ := o.Encrypt(ctx, []byte("same input"))
	if bytes.Equal(first, second) {
		t.Fatal("per-call keys should produce different ciphertexts")
	}
}

func TestCoinTossOracle(t *testing.T) {
	o, err := NewCoinToss(nil)
	if err != nil {
		t.Fatalf("NewCoinToss: %v", err)
	}
	seen := map[modes.Mode]int{}
	for i := 0; i < 200; i++ {
		res, err := o.Query(context.Background(), nil)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		// 10..20 bytes of filler pads to one or two blocks
		if n := len(res.Ciphertext); n != 16 && n != 32 {
			t.Fatalf("unexpected ciphertext length %d", n)
		}
		seen[res.Mode]++
	}
	if seen[modes.ECB] == 0 || seen[modes.CBC] == 0 {
		t.Fatalf("expected both modes over 200 queries, got %v", seen)
	}
}

func TestCBCOracleUsesFreshIV(t *testing.T) {
	o, err := New(Config{Mode: ModeCBC})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first, _ := o.Encrypt(context.Background(), bytes.Repeat([]byte("A"), 32))
	second, _ := o.Encrypt(context.Background(), bytes.Repeat([]byte("A"), 32))
	if bytes.Equal(first, second) {
		t.Fatal("same key and plaintext should differ under fresh IVs")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad mode", Config{Mode: "ctr"}},
		{"bad key policy", Config{KeyPolicy: "sometimes"}},
		{"inverted prefix", Config{Prefix: Range{Min: 10, Max: 5}}},
		{"negative suffix", Config{Suffix: Range{Min: -1, Max: 5}}},
		{"huge suffix", Config{Suffix: Range{Min: 0, Max: maxRandomLength + 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestEntropyFailureSurfaces(t *testing.T) {
	if _, err := New(Config{Rand: failingReader{}}); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected entropy error, got %v", err)
	}
	o, err := New(Config{KeyPolicy: KeyPerCall, Rand: failingReader{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := o.Encrypt(context.Background(), []byte("x")); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected entropy error, got %v", err)
	}
}

func TestQueryHonoursCancelledContext(t *testing.T) {
	o, err := NewHiddenSuffix(nil, nil)
	if err != nil {
		t.Fatalf("NewHiddenSuffix: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.Encrypt(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
