// Package oracle simulates black-box encryption services that accept
// attacker-chosen plaintext and return ciphertext.
package oracle

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/RowanDark/cipherlab/internal/blockcipher"
	"github.com/RowanDark/cipherlab/internal/modes"
	"github.com/RowanDark/cipherlab/internal/observability/metrics"
)

// ModePolicy selects the mode of operation used by an oracle.
type ModePolicy string

const (
	ModeECB    ModePolicy = "ecb"
	ModeCBC    ModePolicy = "cbc"
	ModeRandom ModePolicy = "random"
)

// KeyPolicy controls how often the oracle draws a fresh key.
type KeyPolicy string

const (
	// KeyPerOracle draws one key at construction and reuses it for every
	// query. Chosen-plaintext recovery attacks depend on this.
	KeyPerOracle KeyPolicy = "per_oracle"
	// KeyPerCall draws a new key for every query.
	KeyPerCall KeyPolicy = "per_call"
)

// maxRandomLength bounds the random prefix and suffix lengths.
const maxRandomLength = 4096

// Range is an inclusive length range for random filler.
type Range struct {
	Min int
	Max int
}

func (r Range) validate(name string) error {
	if r.Min < 0 || r.Max < r.Min || r.Max > maxRandomLength {
		return fmt.Errorf("invalid %s range [%d, %d]", name, r.Min, r.Max)
	}
	return nil
}

// Config describes an oracle. It is immutable once passed to New.
type Config struct {
	Name         string
	Mode         ModePolicy
	KeyPolicy    KeyPolicy
	Prefix       Range
	Suffix       Range
	HiddenSuffix []byte
	// Rand is the entropy source for keys, IVs, filler and mode selection.
	// Defaults to crypto/rand.Reader.
	Rand io.Reader
}

// Result is the test-side view of a query. Attack code only ever sees the
// ciphertext through Encrypt.
type Result struct {
	Ciphertext []byte
	Mode       modes.Mode
}

// Oracle encrypts attacker plaintext wrapped according to its Config. It is
// safe for concurrent use: the per-oracle key is immutable and entropy reads
// are serialized.
type Oracle struct {
	name         string
	mode         ModePolicy
	keyPolicy    KeyPolicy
	prefix       Range
	suffix       Range
	hiddenSuffix []byte

	cipher *blockcipher.Adapter

	randMu sync.Mutex
	rand   io.Reader
}

// New validates cfg and builds an oracle. A per-oracle key is drawn here.
func New(cfg Config) (*Oracle, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "oracle"
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeECB
	}
	switch mode {
	case ModeECB, ModeCBC, ModeRandom:
	default:
		return nil, fmt.Errorf("unknown mode policy %q", cfg.Mode)
	}
	keyPolicy := cfg.KeyPolicy
	if keyPolicy == "" {
		keyPolicy = KeyPerOracle
	}
	if keyPolicy != KeyPerOracle && keyPolicy != KeyPerCall {
		return nil, fmt.Errorf("unknown key policy %q", cfg.KeyPolicy)
	}
	if err := cfg.Prefix.validate("prefix"); err != nil {
		return nil, err
	}
	if err := cfg.Suffix.validate("suffix"); err != nil {
		return nil, err
	}
	r := cfg.Rand
	if r == nil {
		r = rand.Reader
	}

	o := &Oracle{
		name:         name,
		mode:         mode,
		keyPolicy:    keyPolicy,
		prefix:       cfg.Prefix,
		suffix:       cfg.Suffix,
		hiddenSuffix: append([]byte(nil), cfg.HiddenSuffix...),
		rand:         r,
	}
	if keyPolicy == KeyPerOracle {
		c, err := o.newCipher()
		if err != nil {
			return nil, err
		}
		o.cipher = c
	}
	return o, nil
}

// NewCoinToss returns an oracle that picks ECB or CBC at random for every
// query, uses a fresh key per query, and surrounds the input with 5-10 random
// bytes on each side.
func NewCoinToss(r io.Reader) (*Oracle, error) {
	return New(Config{
		Name:      "coin-toss",
		Mode:      ModeRandom,
		KeyPolicy: KeyPerCall,
		Prefix:    Range{Min: 5, Max: 10},
		Suffix:    Range{Min: 5, Max: 10},
		Rand:      r,
	})
}

// NewHiddenSuffix returns an ECB oracle that appends secret to every input
// under a key fixed for the oracle's lifetime, with no prefix. This is the
// precondition for byte-at-a-time suffix recovery.
func NewHiddenSuffix(secret []byte, r io.Reader) (*Oracle, error) {
	return New(Config{
		Name:         "hidden-suffix",
		Mode:         ModeECB,
		KeyPolicy:    KeyPerOracle,
		HiddenSuffix: secret,
		Rand:         r,
	})
}

// Name identifies the oracle in metrics and logs.
func (o *Oracle) Name() string { return o.name }

// Encrypt returns only the ciphertext for msg.
func (o *Oracle) Encrypt(ctx context.Context, msg []byte) ([]byte, error) {
	res, err := o.Query(ctx, msg)
	if err != nil {
		return nil, err
	}
	return res.Ciphertext, nil
}

// Query encrypts randomPrefix || msg || randomSuffix || hiddenSuffix and
// reports which mode was used.
func (o *Oracle) Query(ctx context.Context, msg []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	metrics.RecordOracleQuery(o.name)

	prefix, err := o.filler(o.prefix)
	if err != nil {
		return Result{}, err
	}
	suffix, err := o.filler(o.suffix)
	if err != nil {
		return Result{}, err
	}
	full := make([]byte, 0, len(prefix)+len(msg)+len(suffix)+len(o.hiddenSuffix))
	full = append(full, prefix...)
	full = append(full, msg...)
	full = append(full, suffix...)
	full = append(full, o.hiddenSuffix...)

	c := o.cipher
	if c == nil {
		if c, err = o.newCipher(); err != nil {
			return Result{}, err
		}
	}

	mode, err := o.pickMode()
	if err != nil {
		return Result{}, err
	}
	var ct []byte
	switch mode {
	case modes.ECB:
		ct, err = modes.ECBEncryptBlocks(c, full)
	case modes.CBC:
		iv, ivErr := o.randomBytes(blockcipher.BlockSize)
		if ivErr != nil {
			return Result{}, ivErr
		}
		ct, err = modes.CBCEncryptBlocks(c, iv, full)
	}
	if err != nil {
		return Result{}, fmt.Errorf("encrypt: %w", err)
	}
	return Result{Ciphertext: ct, Mode: mode}, nil
}

func (o *Oracle) pickMode() (modes.Mode, error) {
	switch o.mode {
	case ModeECB:
		return modes.ECB, nil
	case ModeCBC:
		return modes.CBC, nil
	}
	coin, err := o.randomBytes(1)
	if err != nil {
		return 0, err
	}
	if coin[0]&1 == 0 {
		return modes.ECB, nil
	}
	return modes.CBC, nil
}

func (o *Oracle) newCipher() (*blockcipher.Adapter, error) {
	key, err := o.randomBytes(blockcipher.KeySize)
	if err != nil {
		return nil, err
	}
	return blockcipher.NewAES(key)
}

func (o *Oracle) filler(r Range) ([]byte, error) {
	if r.Max == 0 {
		return nil, nil
	}
	n := r.Min
	if span := r.Max - r.Min + 1; span > 1 {
		raw, err := o.randomBytes(2)
		if err != nil {
			return nil, err
		}
		n += int(binary.BigEndian.Uint16(raw)) % span
	}
	return o.randomBytes(n)
}

func (o *Oracle) randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	o.randMu.Lock()
	_, err := io.ReadFull(o.rand, buf)
	o.randMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("entropy source: %w", err)
	}
	return buf, nil
}
