// Package engine runs attacks end to end: it builds oracles from
// configuration, drives the attack, and records the outcome in the audit
// log, metrics and run store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/RowanDark/cipherlab/internal/attack"
	"github.com/RowanDark/cipherlab/internal/blockcipher"
	"github.com/RowanDark/cipherlab/internal/config"
	"github.com/RowanDark/cipherlab/internal/logging"
	"github.com/RowanDark/cipherlab/internal/modes"
	"github.com/RowanDark/cipherlab/internal/observability/metrics"
	"github.com/RowanDark/cipherlab/internal/oracle"
	"github.com/RowanDark/cipherlab/internal/runstore"
	"github.com/RowanDark/cipherlab/internal/xorbreak"
)

// Target is an oracle under attack.
type Target struct {
	// ID distinguishes oracle instances across runs.
	ID     string
	Name   string
	Oracle attack.Oracle
}

// Engine coordinates attack runs. The zero value is not usable; call New.
type Engine struct {
	cfg    config.Config
	logger *logging.AuditLogger
	store  *runstore.Store
	rand   io.Reader
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuditLogger emits run events to l.
func WithAuditLogger(l *logging.AuditLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStore records every run in s.
func WithStore(s *runstore.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithRand sets the entropy source for oracles built by the engine.
func WithRand(r io.Reader) Option {
	return func(e *Engine) { e.rand = r }
}

// New returns an engine for cfg.
func New(cfg config.Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewOracle builds the configured oracle and gives it a fresh instance ID.
func (e *Engine) NewOracle() (Target, *oracle.Oracle, error) {
	secret, err := e.cfg.Oracle.HiddenSuffix()
	if err != nil {
		return Target{}, nil, err
	}
	o, err := oracle.New(oracle.Config{
		Name:         "configured",
		Mode:         oracle.ModePolicy(e.cfg.Oracle.Mode),
		KeyPolicy:    oracle.KeyPolicy(e.cfg.Oracle.KeyPolicy),
		Prefix:       oracle.Range{Min: e.cfg.Oracle.Prefix.Min, Max: e.cfg.Oracle.Prefix.Max},
		Suffix:       oracle.Range{Min: e.cfg.Oracle.Suffix.Min, Max: e.cfg.Oracle.Suffix.Max},
		HiddenSuffix: secret,
		Rand:         e.rand,
	})
	if err != nil {
		return Target{}, nil, fmt.Errorf("build oracle: %w", err)
	}
	return Target{ID: uuid.NewString(), Name: o.Name(), Oracle: o}, o, nil
}

// NewCoinTossOracle builds the random-mode oracle used for detection drills.
func (e *Engine) NewCoinTossOracle() (Target, *oracle.Oracle, error) {
	o, err := oracle.NewCoinToss(e.rand)
	if err != nil {
		return Target{}, nil, err
	}
	return Target{ID: uuid.NewString(), Name: o.Name(), Oracle: o}, o, nil
}

// NewProfileOracle builds the profile service targeted by ForgeRecord.
func (e *Engine) NewProfileOracle() (Target, *oracle.ProfileOracle, error) {
	p, err := oracle.NewProfileOracle(e.rand)
	if err != nil {
		return Target{}, nil, err
	}
	return Target{ID: uuid.NewString(), Name: p.Name(), Oracle: p}, p, nil
}

// DetectReport summarises repeated mode detection.
type DetectReport struct {
	Trials int `json:"trials"`
	ECB    int `json:"ecb"`
	CBC    int `json:"cbc"`
	// Checked and Correct are only set when the oracle can report the mode
	// it really used.
	Checked int `json:"checked"`
	Correct int `json:"correct"`
}

type modeReporter interface {
	Query(ctx context.Context, msg []byte) (oracle.Result, error)
}

// Detect classifies trials ciphertexts from target as ECB or CBC. When the
// target is a local oracle the guesses are scored against the truth.
func (e *Engine) Detect(ctx context.Context, target Target, trials int) (*DetectReport, error) {
	if trials <= 0 {
		trials = 1
	}
	report := &DetectReport{Trials: trials}
	err := e.run(ctx, "detect", target, func(ctx context.Context, rec *runstore.Run, log *logging.RunLog) error {
		probe := make([]byte, 3*blockcipher.BlockSize)
		for i := range probe {
			probe[i] = 'A'
		}
		reporter, canCheck := target.Oracle.(modeReporter)
		for i := 0; i < trials; i++ {
			var (
				guess  modes.Mode
				actual modes.Mode
			)
			if canCheck {
				res, err := reporter.Query(ctx, probe)
				if err != nil {
					return err
				}
				guess, actual = attack.DetectMode(res.Ciphertext), res.Mode
			} else {
				var err error
				if guess, err = attack.DetectOracleMode(ctx, target.Oracle, blockcipher.BlockSize); err != nil {
					return err
				}
			}
			if guess == modes.ECB {
				report.ECB++
			} else {
				report.CBC++
			}
			if canCheck {
				report.Checked++
				if guess == actual {
					report.Correct++
				}
			}
		}
		rec.Queries = trials
		rec.Details = map[string]any{"ecb": report.ECB, "cbc": report.CBC, "checked": report.Checked, "correct": report.Correct}
		log.Info(logging.EventModeDetected, rec.Details)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Recover runs byte-at-a-time suffix recovery against target.
func (e *Engine) Recover(ctx context.Context, target Target) (*attack.Recovery, error) {
	var result *attack.Recovery
	err := e.run(ctx, "recover", target, func(ctx context.Context, rec *runstore.Run, log *logging.RunLog) error {
		res, err := attack.RecoverSuffix(ctx, target.Oracle, attack.RecoveryOptions{
			MaxLength: e.cfg.Recovery.MaxLength,
			Workers:   e.cfg.Recovery.Workers,
			OnByte: func(index int, _ byte) {
				log.Info(logging.EventByteRecovered, map[string]any{"index": index})
			},
		})
		if err != nil {
			return err
		}
		result = res
		rec.Queries = res.Queries
		rec.BlockSize = res.BlockSize
		rec.Details = map[string]any{"suffix_length": len(res.Suffix)}
		log.Info(logging.EventBlockSizeDetected, map[string]any{"block_size": res.BlockSize})
		log.Info(logging.EventModeDetected, map[string]any{"mode": modes.ECB.String()})
		return nil
	})
	return result, err
}

// Forge runs the cut-and-paste forgery against target.
func (e *Engine) Forge(ctx context.Context, target Target, opts attack.ForgeOptions) (*attack.Forgery, error) {
	var result *attack.Forgery
	err := e.run(ctx, "forge", target, func(ctx context.Context, rec *runstore.Run, log *logging.RunLog) error {
		res, err := attack.ForgeRecord(ctx, target.Oracle, opts)
		if err != nil {
			return err
		}
		result = res
		rec.Queries = res.Queries
		rec.BlockSize = res.BlockSize
		log.Info(logging.EventBlockSizeDetected, map[string]any{"block_size": res.BlockSize})
		rec.Details = map[string]any{
			"field_offset": res.FieldOffset,
			"replace":      opts.Replace,
			"inject":       opts.Inject,
			"ciphertext":   len(res.Ciphertext),
		}
		return nil
	})
	return result, err
}

// BreakXOR recovers repeating-key XOR candidates for ct.
func (e *Engine) BreakXOR(ctx context.Context, ct []byte) ([]xorbreak.Candidate, error) {
	var result []xorbreak.Candidate
	err := e.run(ctx, "break-xor", Target{Name: "offline"}, func(ctx context.Context, rec *runstore.Run, _ *logging.RunLog) error {
		res, err := xorbreak.BreakRepeatingKey(ctx, ct, xorbreak.BreakOptions{
			KeySizes: xorbreak.KeySizeOptions{
				Min: e.cfg.XOR.MinKeySize,
				Max: e.cfg.XOR.MaxKeySize,
			},
			Candidates: e.cfg.XOR.Candidates,
			Workers:    e.cfg.Recovery.Workers,
		})
		if err != nil {
			return err
		}
		result = res
		sizes := make([]int, len(res))
		for i, c := range res {
			sizes[i] = c.KeySize
		}
		rec.Details = map[string]any{"key_sizes": sizes, "ciphertext_length": len(ct)}
		return nil
	})
	return result, err
}

// run wraps fn with the audit, metrics and storage bookkeeping shared by
// every attack.
func (e *Engine) run(ctx context.Context, name string, target Target, fn func(context.Context, *runstore.Run, *logging.RunLog) error) error {
	if target.Oracle == nil && name != "break-xor" {
		return errors.New("target oracle is required")
	}
	rec := &runstore.Run{
		ID:        ulid.Make().String(),
		Attack:    name,
		OracleID:  target.ID,
		Oracle:    target.Name,
		StartedAt: e.now(),
	}
	log := e.logger.ForRun(rec.ID, name)
	log.Info(logging.EventAttackStarted, map[string]any{"oracle": target.Name, "oracle_id": target.ID})
	metrics.AttackStarted()

	err := fn(ctx, rec, log)
	rec.FinishedAt = e.now()
	outcome := "success"
	if err != nil {
		outcome = "failure"
		rec.Status = runstore.StatusFailed
		rec.Error = err.Error()
		log.Failed(err, map[string]any{"queries": rec.Queries})
	} else {
		rec.Status = runstore.StatusSucceeded
		log.Completed(map[string]any{"queries": rec.Queries, "duration_ms": rec.Duration().Milliseconds()})
	}
	metrics.AttackFinished(name, outcome, rec.Duration())

	if e.store != nil {
		if saveErr := e.store.Save(context.WithoutCancel(ctx), rec); saveErr != nil {
			return errors.Join(err, fmt.Errorf("record run: %w", saveErr))
		}
	}
	return err
}

// RemoteTarget wraps an oracle reached over the network, such as an
// oraclesvc client.
func RemoteTarget(addr string, o attack.Oracle) Target {
	return Target{ID: uuid.NewString(), Name: addr, Oracle: o}
}
