package oraclesvc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/netutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/RowanDark/cipherlab/internal/logging"
	"github.com/RowanDark/cipherlab/internal/observability/metrics"
)

// DefaultMaxInput bounds the plaintext accepted per request.
const DefaultMaxInput = 1 << 16

// Encrypter is the local oracle being served.
type Encrypter interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
}

// Server adapts an Encrypter to the gRPC oracle service.
type Server struct {
	oracle   Encrypter
	name     string
	maxInput int
	logger   *logging.AuditLogger
}

// Option configures a Server.
type Option func(*Server)

// WithAuditLogger records rejected requests and lifecycle events.
func WithAuditLogger(l *logging.AuditLogger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxInput overrides DefaultMaxInput.
func WithMaxInput(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxInput = n
		}
	}
}

// WithName labels the served oracle in audit events.
func WithName(name string) Option {
	return func(s *Server) { s.name = name }
}

// NewServer wraps o.
func NewServer(o Encrypter, opts ...Option) *Server {
	s := &Server{oracle: o, name: "oracle", maxInput: DefaultMaxInput}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Encrypt implements OracleServer.
func (s *Server) Encrypt(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	pt := req.GetValue()
	if len(pt) > s.maxInput {
		s.emit(logging.AuditEvent{
			EventType: logging.EventOracleRejected,
			Outcome:   logging.OutcomeFailure,
			Reason:    "input too large",
			Metadata:  map[string]any{"oracle": s.name, "bytes": len(pt), "limit": s.maxInput},
		})
		return nil, status.Errorf(codes.InvalidArgument, "plaintext of %d bytes exceeds limit of %d", len(pt), s.maxInput)
	}
	ct, err := s.oracle.Encrypt(ctx, pt)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(ct), nil
}

func (s *Server) emit(event logging.AuditEvent) {
	if s.logger == nil {
		return
	}
	_ = s.logger.Emit(event)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	metrics.RecordRPC(info.FullMethod, status.Code(err).String())
	return resp, err
}

// Serve runs the oracle service on lis until ctx is cancelled. When maxConns
// is positive, concurrent connections beyond it wait for a free slot.
func Serve(ctx context.Context, lis net.Listener, s *Server, maxConns int) error {
	if s == nil {
		return errors.New("oracle server is required")
	}
	if maxConns > 0 {
		lis = netutil.LimitListener(lis, maxConns)
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(metricsInterceptor))
	RegisterOracleServer(srv, s)
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)

	s.emit(logging.AuditEvent{
		EventType: logging.EventOracleServed,
		Metadata: map[string]any{
			"oracle":    s.name,
			"address":   lis.Addr().String(),
			"max_conns": maxConns,
		},
	})

	go func() {
		<-ctx.Done()
		healthSrv.Shutdown()

		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			srv.Stop()
		}
	}()

	if err := srv.Serve(lis); err != nil {
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve oracle: %w", err)
	}
	return nil
}
