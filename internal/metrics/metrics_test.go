package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_HandlerExposesCounters(t *testing.T) {
	m := New("companion", nil)
	m.TurnFinished("completed")
	m.ObserveModel("chat", 120*time.Millisecond)
	m.Recall("hit")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`companion_turns_total{state="completed"} 1`,
		`companion_memory_recall_total{result="hit"} 1`,
		"companion_model_latency_ms_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.TurnFinished("failed")
	m.SessionOpened()
	m.ProfileUpdate("changed")
}
