package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("docent_test_total", "test counter")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Fatalf("counter value: %d", c.Value())
	}

	g := r.Gauge("docent_active", "active")
	g.Set(5)
	g.Inc()
	g.Dec()
	if g.Value() != 5 {
		t.Fatalf("gauge value: %d", g.Value())
	}

	// Same name returns same instance.
	if r.Counter("docent_test_total", "") != c {
		t.Fatal("counter should be memoised by name")
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("docent_dur_seconds", "durations", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(100)

	out := r.Render()
	if !strings.Contains(out, `docent_dur_seconds_bucket{le="0.1"} 1`) {
		t.Fatalf("bucket 0.1:\n%s", out)
	}
	if !strings.Contains(out, `docent_dur_seconds_bucket{le="1"} 2`) {
		t.Fatalf("bucket 1:\n%s", out)
	}
	if !strings.Contains(out, `docent_dur_seconds_bucket{le="+Inf"} 3`) {
		t.Fatalf("inf bucket:\n%s", out)
	}
	if !strings.Contains(out, "docent_dur_seconds_count 3") {
		t.Fatalf("count:\n%s", out)
	}
}

func TestWithLabelsRendering(t *testing.T) {
	r := New()
	r.Counter(WithLabels("docent_stage_total", "stage", "embed"), "per stage").Inc()
	out := r.Render()
	if !strings.Contains(out, `docent_stage_total{stage="embed"} 1`) {
		t.Fatalf("labelled series missing:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE docent_stage_total counter") {
		t.Fatalf("TYPE header should use base name:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("docent_x_total", "x").Inc()
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
