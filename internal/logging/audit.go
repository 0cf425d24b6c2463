// Package logging writes structured JSON audit events for attack runs.
//
// Every event is a single JSON object on its own line. Metadata and Reason
// pass through the redact package first, so keys and IVs never reach disk.
package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/RowanDark/cipherlab/internal/redact"
)

// EventType names what happened during an attack run.
type EventType string

const (
	EventAttackStarted     EventType = "attack_started"
	EventBlockSizeDetected EventType = "block_size_detected"
	EventModeDetected      EventType = "mode_detected"
	EventByteRecovered     EventType = "byte_recovered"
	EventAttackCompleted   EventType = "attack_completed"
	EventAttackFailed      EventType = "attack_failed"
	EventOracleServed      EventType = "oracle_served"
	EventOracleRejected    EventType = "oracle_rejected"
)

// Outcome classifies an event.
type Outcome string

const (
	OutcomeInfo    Outcome = "info"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// AuditEvent is one line in the audit log.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	RunID     string         `json:"run_id,omitempty"`
	Attack    string         `json:"attack,omitempty"`
	EventType EventType      `json:"event_type"`
	Outcome   Outcome        `json:"outcome,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Option configures an AuditLogger.
type Option func(*options) error

type options struct {
	stdout  bool
	writers []io.Writer
	files   []*os.File
	now     func() time.Time
}

// WithWriter adds w as a destination.
func WithWriter(w io.Writer) Option {
	return func(o *options) error {
		if w == nil {
			return errors.New("writer cannot be nil")
		}
		o.writers = append(o.writers, w)
		return nil
	}
}

// WithFile appends events to path, creating it with mode 0600. The file is
// closed by Close on the logger that opened it.
func WithFile(path string) Option {
	return func(o *options) error {
		if strings.TrimSpace(path) == "" {
			return errors.New("file path cannot be empty")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open audit file: %w", err)
		}
		o.files = append(o.files, f)
		return nil
	}
}

// WithoutStdout drops the default stdout destination.
func WithoutStdout() Option {
	return func(o *options) error {
		o.stdout = false
		return nil
	}
}

// WithClock overrides the timestamp source for events that carry none.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		o.now = now
		return nil
	}
}

// sink is the encoder shared by a logger and its component children.
type sink struct {
	mu    sync.Mutex
	enc   *json.Encoder
	files []*os.File
	now   func() time.Time
}

func (s *sink) write(ev AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

// AuditLogger emits audit events for one component. It is safe for
// concurrent use.
type AuditLogger struct {
	component string
	sink      *sink
	owner     bool
}

// NewAuditLogger writes to stdout unless WithoutStdout is given.
func NewAuditLogger(component string, opts ...Option) (*AuditLogger, error) {
	o := &options{stdout: true, now: time.Now}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			closeFiles(o.files)
			return nil, err
		}
	}
	dests := append([]io.Writer(nil), o.writers...)
	for _, f := range o.files {
		dests = append(dests, f)
	}
	if o.stdout {
		dests = append(dests, os.Stdout)
	}
	if len(dests) == 0 {
		return nil, errors.New("no writers configured for audit logger")
	}
	enc := json.NewEncoder(io.MultiWriter(dests...))
	enc.SetEscapeHTML(false)
	return &AuditLogger{
		component: component,
		sink:      &sink{enc: enc, files: o.files, now: o.now},
		owner:     true,
	}, nil
}

// MustNewAuditLogger is NewAuditLogger that panics on error.
func MustNewAuditLogger(component string, opts ...Option) *AuditLogger {
	logger, err := NewAuditLogger(component, opts...)
	if err != nil {
		panic(err)
	}
	return logger
}

// Close releases files opened by WithFile. Loggers from WithComponent do not
// own them and closing one is a no-op.
func (l *AuditLogger) Close() error {
	if l == nil || !l.owner || l.sink == nil {
		return nil
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	err := closeFiles(l.sink.files)
	l.sink.files = nil
	return err
}

// Emit fills in the timestamp, component and outcome, redacts the event and
// writes it.
func (l *AuditLogger) Emit(ev AuditEvent) error {
	if l == nil || l.sink == nil {
		return errors.New("nil audit logger")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.sink.now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	if ev.Component == "" {
		ev.Component = l.component
	}
	if ev.Outcome == "" {
		ev.Outcome = OutcomeInfo
	}
	ev.Reason = redact.String(ev.Reason)
	if len(ev.Metadata) > 0 {
		ev.Metadata = redact.Map(ev.Metadata)
	}
	return l.sink.write(ev)
}

// WithComponent returns a logger sharing l's destinations under another
// component name.
func (l *AuditLogger) WithComponent(component string) *AuditLogger {
	if l == nil || l.sink == nil {
		return nil
	}
	return &AuditLogger{component: component, sink: l.sink}
}

// ForRun returns a logger that stamps every event with runID and attack.
// A nil AuditLogger yields a RunLog that discards events.
func (l *AuditLogger) ForRun(runID, attack string) *RunLog {
	return &RunLog{logger: l, runID: runID, attack: attack}
}

// RunLog emits the events of a single attack run.
type RunLog struct {
	logger *AuditLogger
	runID  string
	attack string
}

// Info records a progress event.
func (r *RunLog) Info(typ EventType, meta map[string]any) {
	r.emit(AuditEvent{EventType: typ, Outcome: OutcomeInfo, Metadata: meta})
}

// Completed records a successful end of the run.
func (r *RunLog) Completed(meta map[string]any) {
	r.emit(AuditEvent{EventType: EventAttackCompleted, Outcome: OutcomeSuccess, Metadata: meta})
}

// Failed records the error that ended the run.
func (r *RunLog) Failed(err error, meta map[string]any) {
	ev := AuditEvent{EventType: EventAttackFailed, Outcome: OutcomeFailure, Metadata: meta}
	if err != nil {
		ev.Reason = err.Error()
	}
	r.emit(ev)
}

// Write errors are ignored.
func (r *RunLog) emit(ev AuditEvent) {
	if r == nil || r.logger == nil {
		return
	}
	ev.RunID = r.runID
	ev.Attack = r.attack
	_ = r.logger.Emit(ev)
}

func closeFiles(files []*os.File) error {
	var errs []error
	for _, f := range files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
