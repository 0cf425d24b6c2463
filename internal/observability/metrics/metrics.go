// Package metrics keeps process-wide counters for oracles and attacks and
// exposes them in the Prometheus text format.
package metrics

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// Attack durations range from milliseconds (mode detection) to minutes
// (suffix recovery against a remote oracle).
var durationBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}

// series is one label combination of a family.
type series struct {
	labels []string
	value  float64
	// histogram only
	buckets []uint64
	count   uint64
}

// family is a named metric and all of its series.
type family struct {
	name   string
	help   string
	kind   kind
	labels []string

	mu     sync.Mutex
	series map[string]*series
}

func (f *family) get(values []string) *series {
	if len(values) != len(f.labels) {
		panic(fmt.Sprintf("metrics: %s wants %d labels, got %d", f.name, len(f.labels), len(values)))
	}
	key := strings.Join(values, "\xff")
	s, ok := f.series[key]
	if !ok {
		s = &series{labels: append([]string(nil), values...)}
		if f.kind == kindHistogram {
			s.buckets = make([]uint64, len(durationBuckets))
		}
		f.series[key] = s
	}
	return s
}

func (f *family) add(delta float64, values ...string) {
	f.mu.Lock()
	f.get(values).value += delta
	f.mu.Unlock()
}

func (f *family) set(v float64, values ...string) {
	f.mu.Lock()
	f.get(values).value = v
	f.mu.Unlock()
}

func (f *family) observe(v float64, values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.get(values)
	s.value += v
	s.count++
	for i, upper := range durationBuckets {
		if v <= upper {
			s.buckets[i]++
		}
	}
}

func (f *family) writeTo(w *bufio.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)
	if len(f.series) == 0 && len(f.labels) == 0 && f.kind != kindHistogram {
		fmt.Fprintf(w, "%s 0\n", f.name)
		return
	}
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := f.series[k]
		if f.kind != kindHistogram {
			fmt.Fprintf(w, "%s%s %s\n", f.name, f.labelSet(s, ""), formatFloat(s.value))
			continue
		}
		for i, upper := range durationBuckets {
			fmt.Fprintf(w, "%s_bucket%s %d\n", f.name, f.labelSet(s, formatFloat(upper)), s.buckets[i])
		}
		fmt.Fprintf(w, "%s_bucket%s %d\n", f.name, f.labelSet(s, "+Inf"), s.count)
		fmt.Fprintf(w, "%s_sum%s %s\n", f.name, f.labelSet(s, ""), formatFloat(s.value))
		fmt.Fprintf(w, "%s_count%s %d\n", f.name, f.labelSet(s, ""), s.count)
	}
}

// labelSet renders {a="x",b="y"}, appending le when it is set.
func (f *family) labelSet(s *series, le string) string {
	if len(f.labels) == 0 && le == "" {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range f.labels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteString(`="`)
		b.WriteString(escapeLabel(s.labels[i]))
		b.WriteByte('"')
	}
	if le != "" {
		if len(f.labels) > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`le="`)
		b.WriteString(le)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)

func escapeLabel(v string) string { return labelEscaper.Replace(v) }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func newFamily(name, help string, k kind, labels ...string) *family {
	return &family{name: name, help: help, kind: k, labels: labels, series: make(map[string]*series)}
}

var (
	oracleQueries  = newFamily("cipherlab_oracle_queries_total", "Plaintexts submitted to encryption oracles.", kindCounter, "oracle")
	attackRuns     = newFamily("cipherlab_attack_runs_total", "Attack runs by attack and outcome.", kindCounter, "attack", "outcome")
	attackDuration = newFamily("cipherlab_attack_duration_seconds", "Wall-clock duration of attack runs.", kindHistogram, "attack", "outcome")
	activeAttacks  = newFamily("cipherlab_active_attacks", "Attacks currently running.", kindGauge)
	rpcRequests    = newFamily("cipherlab_rpc_requests_total", "Oracle RPCs served by method and status code.", kindCounter, "method", "code")

	families = []*family{oracleQueries, attackRuns, attackDuration, activeAttacks, rpcRequests}

	totalQueries atomic.Uint64
	running      atomic.Int64
)

// WriteText writes every metric in the Prometheus text exposition format.
func WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, f := range families {
		f.writeTo(bw)
	}
	return bw.Flush()
}

// Handler serves WriteText over HTTP.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = WriteText(w)
	})
}

// RecordOracleQuery counts one plaintext submitted to the named oracle.
func RecordOracleQuery(oracle string) {
	if oracle = strings.TrimSpace(oracle); oracle == "" {
		oracle = "unnamed"
	}
	oracleQueries.add(1, oracle)
	totalQueries.Add(1)
}

// AttackStarted bumps the running-attacks gauge. Pair with AttackFinished.
func AttackStarted() {
	activeAttacks.set(float64(running.Add(1)))
}

// AttackFinished records the outcome and duration of an attack run.
func AttackFinished(attack, outcome string, dur time.Duration) {
	activeAttacks.set(float64(running.Add(-1)))
	attackRuns.add(1, attack, outcome)
	attackDuration.observe(dur.Seconds(), attack, outcome)
}

// RecordRPC counts one oracle RPC by method and gRPC status code.
func RecordRPC(method, code string) {
	rpcRequests.add(1, method, code)
}

// TotalQueries returns the number of oracle queries since process start.
func TotalQueries() uint64 {
	return totalQueries.Load()
}
