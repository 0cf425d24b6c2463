package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/RowanDark/cipherlab/internal/config"
	"github.com/RowanDark/cipherlab/internal/engine"
	"github.com/RowanDark/cipherlab/internal/logging"
	obsmetrics "github.com/RowanDark/cipherlab/internal/observability/metrics"
	"github.com/RowanDark/cipherlab/internal/oraclesvc"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "path to a config file (default: standard search path)")
	addr := fs.String("addr", "", "gRPC listen address (overrides server.addr)")
	metricsAddr := fs.String("metrics-addr", "", "metrics listen address (overrides server.metrics_addr, \"off\" disables)")
	oracleKind := fs.String("oracle", "configured", "oracle to serve: configured, profile or coin-toss")
	maxInput := fs.Int("max-input", oraclesvc.DefaultMaxInput, "largest plaintext accepted per request")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	switch strings.TrimSpace(*metricsAddr) {
	case "":
	case "off":
		cfg.Server.MetricsAddr = ""
	default:
		cfg.Server.MetricsAddr = strings.TrimSpace(*metricsAddr)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signalContext()
	defer stop()

	if err := serve(ctx, cfg, *oracleKind, *maxInput, logger); err != nil {
		logger.Error("oracle server stopped", "error", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg config.Config, oracleKind string, maxInput int, logger *slog.Logger) error {
	auditOpts := []logging.Option{}
	if cfg.AuditLog != "" {
		auditOpts = append(auditOpts, logging.WithFile(cfg.AuditLog))
	}
	audit, err := logging.NewAuditLogger("oracle_server", auditOpts...)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer audit.Close()

	eng := engine.New(cfg)
	var target engine.Target
	switch oracleKind {
	case "configured":
		target, _, err = eng.NewOracle()
	case "profile":
		target, _, err = eng.NewProfileOracle()
	case "coin-toss":
		target, _, err = eng.NewCoinTossOracle()
	default:
		return fmt.Errorf("unknown oracle %q", oracleKind)
	}
	if err != nil {
		return fmt.Errorf("build oracle: %w", err)
	}

	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	var metricsErrCh chan error
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obsmetrics.Handler())
		metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		metricsErrCh = make(chan error, 1)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErrCh <- err
			}
		}()
		logger.Info("metrics endpoint ready", "address", cfg.Server.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics shutdown", "error", err)
			}
		}()
	}

	srv := oraclesvc.NewServer(target.Oracle,
		oraclesvc.WithAuditLogger(audit),
		oraclesvc.WithName(target.Name),
		oraclesvc.WithMaxInput(maxInput),
	)
	serviceCtx, cancelService := context.WithCancel(ctx)
	defer cancelService()
	grpcErrCh := make(chan error, 1)
	go func() {
		grpcErrCh <- oraclesvc.Serve(serviceCtx, lis, srv, cfg.Server.MaxConns)
	}()
	logger.Info("oracle serving", "address", lis.Addr().String(), "oracle", target.Name, "oracle_id", target.ID)

	select {
	case err := <-grpcErrCh:
		return err
	case err := <-metricsErrCh:
		cancelService()
		if gErr := <-grpcErrCh; gErr != nil {
			logger.Warn("grpc shutdown", "error", gErr)
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
