package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/RowanDark/cipherlab/internal/config"
	"github.com/RowanDark/cipherlab/internal/engine"
	"github.com/RowanDark/cipherlab/internal/logging"
	"github.com/RowanDark/cipherlab/internal/oraclesvc"
	"github.com/RowanDark/cipherlab/internal/runstore"
)

// session holds what an attack command needs and how to release it.
type session struct {
	cfg     config.Config
	engine  *engine.Engine
	logger  *logging.AuditLogger
	store   *runstore.Store
	remote  *oraclesvc.Client
	closers []func() error
}

type sessionOptions struct {
	configPath string
	noStore    bool
	remote     string
}

func loadConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func openSession(opts sessionOptions) (*session, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	s := &session{cfg: cfg}

	var engineOpts []engine.Option
	if cfg.AuditLog != "" {
		logger, err := logging.NewAuditLogger("cipherlab", logging.WithFile(cfg.AuditLog), logging.WithoutStdout())
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		s.logger = logger
		s.closers = append(s.closers, logger.Close)
		engineOpts = append(engineOpts, engine.WithAuditLogger(logger))
	}
	if !opts.noStore {
		store, err := runstore.Open(cfg.StorePath)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open run store: %w", err)
		}
		s.store = store
		s.closers = append(s.closers, store.Close)
		engineOpts = append(engineOpts, engine.WithStore(store))
	}
	if opts.remote != "" {
		client, err := oraclesvc.Dial(opts.remote)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.remote = client
		s.closers = append(s.closers, client.Close)
	}
	s.engine = engine.New(cfg, engineOpts...)
	return s, nil
}

// remoteTarget waits for the remote oracle to report healthy.
func (s *session) remoteTarget(ctx context.Context, addr string) (engine.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ready, err := s.remote.Ready(ctx, grpc.WaitForReady(true))
	if err != nil {
		return engine.Target{}, fmt.Errorf("check %s: %w", addr, err)
	}
	if !ready {
		return engine.Target{}, fmt.Errorf("oracle at %s is not serving", addr)
	}
	return engine.RemoteTarget(addr, s.remote), nil
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
