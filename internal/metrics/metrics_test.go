package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/samcharles93/fixlen/internal/mcmc"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestObserveCountsMoves(t *testing.T) {
	t.Parallel()
	m := New()
	_ = m.Observe(mcmc.Record{Step: 0})
	_ = m.Observe(mcmc.Record{Step: 1, Kernel: mcmc.KernelWord, Accepted: true})
	_ = m.Observe(mcmc.Record{Step: 2, Kernel: mcmc.KernelWord, Accepted: false})
	_ = m.Observe(mcmc.Record{Step: 3, Kernel: mcmc.KernelWord, Accepted: true})

	got := counterValue(t, m, "fixlen_moves_total", map[string]string{"kernel": "word", "outcome": "accepted"})
	if got != 2 {
		t.Fatalf("accepted word moves = %g, want 2", got)
	}
	got = counterValue(t, m, "fixlen_moves_total", map[string]string{"kernel": "word", "outcome": "rejected"})
	if got != 1 {
		t.Fatalf("rejected word moves = %g, want 1", got)
	}
}

func TestHandlerExposesChains(t *testing.T) {
	t.Parallel()
	m := New()
	m.ChainDone(20*time.Millisecond, nil)
	m.ChainDone(time.Second, errors.New("boom"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`fixlen_chains_total{result="ok"} 1`,
		`fixlen_chains_total{result="error"} 1`,
		`fixlen_chain_duration_seconds_count 2`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}
