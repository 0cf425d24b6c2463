package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExportsMetrics(t *testing.T) {
	RecordOracleQuery("hidden-suffix")
	AttackStarted()
	AttackFinished("byte_at_a_time", "success", 1200*time.Millisecond)
	RecordRPC("Encrypt", "OK")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()

	Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	required := []string{
		"# HELP cipherlab_oracle_queries_total",
		`cipherlab_oracle_queries_total{oracle="hidden-suffix"}`,
		`cipherlab_attack_runs_total{attack="byte_at_a_time",outcome="success"} 1`,
		`cipherlab_attack_duration_seconds_bucket{attack="byte_at_a_time",outcome="success",le="2.5"} 1`,
		`cipherlab_attack_duration_seconds_bucket{attack="byte_at_a_time",outcome="success",le="1"} 0`,
		`cipherlab_attack_duration_seconds_count{attack="byte_at_a_time",outcome="success"} 1`,
		"cipherlab_active_attacks 0",
		`cipherlab_rpc_requests_total{method="Encrypt",code="OK"} 1`,
	}
	for _, metric := range required {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected metric %q to be exported, got %q", metric, body)
		}
	}
}

func TestTotalQueries(t *testing.T) {
	before := TotalQueries()
	RecordOracleQuery("")
	RecordOracleQuery("coin-toss")
	if got := TotalQueries() - before; got != 2 {
		t.Fatalf("expected 2 new queries, got %d", got)
	}
}

func TestWriteTextEscapesLabels(t *testing.T) {
	RecordOracleQuery("quote\"and\\slash")
	var sb strings.Builder
	if err := WriteText(&sb); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if !strings.Contains(sb.String(), `cipherlab_oracle_queries_total{oracle="quote\"and\\slash"}`) {
		t.Fatalf("label not escaped:\n%s", sb.String())
	}
	if !strings.Contains(sb.String(), "# TYPE cipherlab_attack_duration_seconds histogram") {
		t.Fatalf("missing histogram header:\n%s", sb.String())
	}
}

func TestHistogramBucketsAreCumulative(t *testing.T) {
	AttackStarted()
	AttackFinished("cumulative", "failure", 30*time.Millisecond)
	var sb strings.Builder
	if err := WriteText(&sb); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	body := sb.String()
	for _, want := range []string{
		`cipherlab_attack_duration_seconds_bucket{attack="cumulative",outcome="failure",le="0.01"} 0`,
		`cipherlab_attack_duration_seconds_bucket{attack="cumulative",outcome="failure",le="0.05"} 1`,
		`cipherlab_attack_duration_seconds_bucket{attack="cumulative",outcome="failure",le="300"} 1`,
		`cipherlab_attack_duration_seconds_bucket{attack="cumulative",outcome="failure",le="+Inf"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}
