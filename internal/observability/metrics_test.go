package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveGenerateCountsOutcomes(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	m.ObserveGenerate("text", 120*time.Millisecond, 130*time.Millisecond)
	m.ObserveGenerate("transport_error", time.Second, time.Second)

	if got := testutil.ToFloat64(m.GenerateTotal.WithLabelValues("text")); got != 1 {
		t.Fatalf("generate_total{text} = %v, want 1", got)
	}
	snap := m.SnapshotLatency()
	if snap.Outcomes["text"] != 1 || snap.Outcomes["transport_error"] != 1 {
		t.Fatalf("Outcomes = %+v, want one text and one transport_error", snap.Outcomes)
	}
	if len(snap.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(snap.Stages))
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveGenerate("text", time.Millisecond, time.Millisecond)
	m.ObserveInbound("telegram", "text")
	m.ObserveReset("http")
	m.SetConversations(3)
	m.ObserveTranscriptError()
	m.DispatchStarted()
	m.DispatchFinished()
	m.SetBackendBudget(time.Second)
	m.ResetLatency()
	if snap := m.SnapshotLatency(); len(snap.Stages) != 0 {
		t.Fatalf("Stages = %+v, want empty", snap.Stages)
	}
}

func TestHandlerServesPrivateRegistry(t *testing.T) {
	m := NewMetrics("relaytest", prometheus.NewRegistry())
	m.ObserveReset("telegram")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `relaytest_reset_total{source="telegram"} 1`) {
		t.Fatalf("metrics body missing reset counter:\n%s", body)
	}
}
