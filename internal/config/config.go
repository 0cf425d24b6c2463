// Package config resolves cipherlab settings from defaults, YAML files and
// CIPHERLAB_* environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultHiddenSuffix is the base64 secret the default oracle appends.
const DefaultHiddenSuffix = "Um9sbGluJyBpbiBteSA1LjAKV2l0aCBteSByYWctdG9wIGRvd24gc28gbXkgaGFpciBjYW4gYmxvdwpUaGUgZ2lybGllcyBvbiBzdGFuZGJ5IHdhdmluZyBqdXN0IHRvIHNheSBoaQpEaWQgeW91IHN0b3A/IE5vLCBJIGp1c3QgZHJvdmUgYnkK"

// Config captures the cipherlab configuration resolved from defaults, optional
// files, and environment overrides.
type Config struct {
	Oracle    OracleConfig   `yaml:"oracle"`
	Recovery  RecoveryConfig `yaml:"recovery"`
	XOR       XORConfig      `yaml:"xor"`
	Server    ServerConfig   `yaml:"server"`
	AuditLog  string         `yaml:"audit_log"`
	StorePath string         `yaml:"store_path"`
}

// Range is an inclusive byte-count range.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// OracleConfig describes the oracle served or attacked locally.
type OracleConfig struct {
	Mode            string `yaml:"mode"`
	KeyPolicy       string `yaml:"key_policy"`
	Prefix          Range  `yaml:"prefix"`
	Suffix          Range  `yaml:"suffix"`
	HiddenSuffixB64 string `yaml:"hidden_suffix_b64"`
}

// HiddenSuffix decodes the configured secret.
func (o OracleConfig) HiddenSuffix() ([]byte, error) {
	s := strings.Join(strings.Fields(o.HiddenSuffixB64), "")
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hidden suffix: %w", err)
	}
	return b, nil
}

// RecoveryConfig tunes byte-at-a-time recovery.
type RecoveryConfig struct {
	MaxLength int `yaml:"max_length"`
	Workers   int `yaml:"workers"`
}

// XORConfig tunes the repeating-key XOR breaker.
type XORConfig struct {
	MinKeySize int `yaml:"min_key_size"`
	MaxKeySize int `yaml:"max_key_size"`
	Candidates int `yaml:"candidates"`
}

// ServerConfig controls the oracle gRPC service.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	MaxConns    int    `yaml:"max_conns"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Oracle: OracleConfig{
			Mode:            "ecb",
			KeyPolicy:       "per_oracle",
			HiddenSuffixB64: DefaultHiddenSuffix,
		},
		Recovery: RecoveryConfig{
			MaxLength: 0,
			Workers:   4,
		},
		XOR: XORConfig{
			MinKeySize: 2,
			MaxKeySize: 40,
			Candidates: 3,
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:50061",
			MetricsAddr: "127.0.0.1:9464",
			MaxConns:    64,
		},
	}
}

// Load resolves the configuration using defaults, configuration files, and
// environment overrides. Files are applied in order, later ones winning:
//  1. ~/.cipherlab/config.yml
//  2. ./cipherlab.yml
//
// Environment variables prefixed with CIPHERLAB_ have the highest precedence.
func Load() (Config, error) {
	cfg := Default()

	if err := loadHomeConfig(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadLocalConfig(&cfg); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.StorePath == "" {
		cfg.StorePath = DefaultStorePath()
	}
	return cfg, cfg.Validate()
}

// LoadFile applies a single YAML file over the defaults, then the
// environment.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := applyFileConfig(&cfg, data); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.StorePath == "" {
		cfg.StorePath = DefaultStorePath()
	}
	return cfg, cfg.Validate()
}

// DefaultStorePath is ~/.cipherlab/runs.db, or runs.db in the working
// directory when the home directory is unknown.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "runs.db"
	}
	return filepath.Join(home, ".cipherlab", "runs.db")
}

// Validate checks values that cannot be caught by YAML decoding.
func (c Config) Validate() error {
	switch c.Oracle.Mode {
	case "ecb", "cbc", "random":
	default:
		return fmt.Errorf("oracle.mode must be ecb, cbc or random, got %q", c.Oracle.Mode)
	}
	switch c.Oracle.KeyPolicy {
	case "per_oracle", "per_call":
	default:
		return fmt.Errorf("oracle.key_policy must be per_oracle or per_call, got %q", c.Oracle.KeyPolicy)
	}
	for name, r := range map[string]Range{"oracle.prefix": c.Oracle.Prefix, "oracle.suffix": c.Oracle.Suffix} {
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("%s range [%d, %d] is invalid", name, r.Min, r.Max)
		}
	}
	if _, err := c.Oracle.HiddenSuffix(); err != nil {
		return err
	}
	if c.Recovery.Workers < 1 {
		return errors.New("recovery.workers must be at least 1")
	}
	if c.Recovery.MaxLength < 0 {
		return errors.New("recovery.max_length cannot be negative")
	}
	if c.XOR.MinKeySize < 1 || c.XOR.MaxKeySize < c.XOR.MinKeySize {
		return fmt.Errorf("xor key size range [%d, %d] is invalid", c.XOR.MinKeySize, c.XOR.MaxKeySize)
	}
	if c.XOR.Candidates < 1 {
		return errors.New("xor.candidates must be at least 1")
	}
	if c.Server.MaxConns < 1 {
		return errors.New("server.max_conns must be at least 1")
	}
	return nil
}

func loadHomeConfig(cfg *Config) error {
	home, err := os.UserHomeDir()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("determine home directory: %w", err)
	}
	return loadOptional(cfg, filepath.Join(home, ".cipherlab", "config.yml"))
}

func loadLocalConfig(cfg *Config) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	return loadOptional(cfg, filepath.Join(wd, "cipherlab.yml"))
}

func loadOptional(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := applyFileConfig(cfg, data); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// fileConfig mirrors Config with pointer fields so a file only overrides
// what it sets.
type fileConfig struct {
	Oracle *struct {
		Mode            *string    `yaml:"mode"`
		KeyPolicy       *string    `yaml:"key_policy"`
		Prefix          *fileRange `yaml:"prefix"`
		Suffix          *fileRange `yaml:"suffix"`
		HiddenSuffixB64 *string    `yaml:"hidden_suffix_b64"`
	} `yaml:"oracle"`
	Recovery *struct {
		MaxLength *int `yaml:"max_length"`
		Workers   *int `yaml:"workers"`
	} `yaml:"recovery"`
	XOR *struct {
		MinKeySize *int `yaml:"min_key_size"`
		MaxKeySize *int `yaml:"max_key_size"`
		Candidates *int `yaml:"candidates"`
	} `yaml:"xor"`
	Server *struct {
		Addr        *string `yaml:"addr"`
		MetricsAddr *string `yaml:"metrics_addr"`
		MaxConns    *int    `yaml:"max_conns"`
	} `yaml:"server"`
	AuditLog  *string `yaml:"audit_log"`
	StorePath *string `yaml:"store_path"`
}

type fileRange struct {
	Min *int `yaml:"min"`
	Max *int `yaml:"max"`
}

func (r *fileRange) apply(dst *Range) {
	if r == nil {
		return
	}
	setInt(&dst.Min, r.Min)
	setInt(&dst.Max, r.Max)
}

func applyFileConfig(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if o := fc.Oracle; o != nil {
		setString(&cfg.Oracle.Mode, o.Mode)
		setString(&cfg.Oracle.KeyPolicy, o.KeyPolicy)
		o.Prefix.apply(&cfg.Oracle.Prefix)
		o.Suffix.apply(&cfg.Oracle.Suffix)
		setString(&cfg.Oracle.HiddenSuffixB64, o.HiddenSuffixB64)
	}
	if r := fc.Recovery; r != nil {
		setInt(&cfg.Recovery.MaxLength, r.MaxLength)
		setInt(&cfg.Recovery.Workers, r.Workers)
	}
	if x := fc.XOR; x != nil {
		setInt(&cfg.XOR.MinKeySize, x.MinKeySize)
		setInt(&cfg.XOR.MaxKeySize, x.MaxKeySize)
		setInt(&cfg.XOR.Candidates, x.Candidates)
	}
	if s := fc.Server; s != nil {
		setString(&cfg.Server.Addr, s.Addr)
		setString(&cfg.Server.MetricsAddr, s.MetricsAddr)
		setInt(&cfg.Server.MaxConns, s.MaxConns)
	}
	setString(&cfg.AuditLog, fc.AuditLog)
	setString(&cfg.StorePath, fc.StorePath)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"CIPHERLAB_ORACLE_MODE":       &cfg.Oracle.Mode,
		"CIPHERLAB_KEY_POLICY":        &cfg.Oracle.KeyPolicy,
		"CIPHERLAB_HIDDEN_SUFFIX_B64": &cfg.Oracle.HiddenSuffixB64,
		"CIPHERLAB_SERVER_ADDR":       &cfg.Server.Addr,
		"CIPHERLAB_METRICS_ADDR":      &cfg.Server.MetricsAddr,
		"CIPHERLAB_AUDIT_LOG":         &cfg.AuditLog,
		"CIPHERLAB_STORE":             &cfg.StorePath,
	}
	for name, dst := range strs {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			*dst = val
		}
	}

	ints := map[string]*int{
		"CIPHERLAB_MAX_LENGTH":     &cfg.Recovery.MaxLength,
		"CIPHERLAB_WORKERS":        &cfg.Recovery.Workers,
		"CIPHERLAB_XOR_CANDIDATES": &cfg.XOR.Candidates,
		"CIPHERLAB_MAX_CONNS":      &cfg.Server.MaxConns,
	}
	for name, dst := range ints {
		val := strings.TrimSpace(os.Getenv(name))
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}
	return nil
}
