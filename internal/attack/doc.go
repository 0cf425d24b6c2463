// Package attack implements chosen-plaintext attacks against block cipher
// oracles that leak structure through ECB mode.
//
// All attacks talk to the target through the Oracle interface, which only
// returns ciphertext. Which mode the oracle really used is never visible here
// and has to be inferred from the ciphertext.
//
// # Mode detection
//
//	mode := attack.DetectMode(ciphertext)
//
// DetectMode needs at least two identical, block-aligned plaintext blocks in
// the input that produced ciphertext. DetectOracleMode builds such an input.
//
// # Byte-at-a-time suffix recovery
//
//	rec, err := attack.RecoverSuffix(ctx, oracle, attack.RecoveryOptions{Workers: 4})
//	fmt.Printf("%s", rec.Suffix)
//
// The oracle must append a fixed secret to the input, encrypt under ECB and
// reuse its key across queries, with no random prefix. When those
// preconditions do not hold the attack fails with ErrRecoveryFailed instead
// of returning wrong bytes.
//
// # Cut-and-paste forgery
//
//	forged, err := attack.ForgeRecord(ctx, profiles, attack.ForgeOptions{Replace: "user", Inject: "admin"})
//
// ForgeRecord splices whole ciphertext blocks from two queries so that the
// trailing field of the record decrypts to the injected value.
package attack

import (
	"context"
	"sync/atomic"
)

// Oracle encrypts attacker-chosen plaintext and returns only the ciphertext.
type Oracle interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
}

// countingOracle tallies queries made by a single attack run.
type countingOracle struct {
	Oracle
	queries atomic.Int64
}

func (c *countingOracle) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	c.queries.Add(1)
	return c.Oracle.Encrypt(ctx, plaintext)
}

func (c *countingOracle) count() int { return int(c.queries.Load()) }
