package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NodePath81/pingbar/internal/history"
	"github.com/NodePath81/pingbar/internal/threshold"
)

func TestObserveSample(t *testing.T) {
	m := NewMetrics("192.0.2.1")
	for _, s := range []history.Sample{10, 20, history.Failed, 30, history.NoData} {
		m.ObserveSample(s)
	}
	snap := m.Snapshot()
	if snap.ProbesTotal != 5 {
		t.Fatalf("ProbesTotal = %d, want 5", snap.ProbesTotal)
	}
	if snap.ProbeFailures != 2 {
		t.Fatalf("ProbeFailures = %d, want 2", snap.ProbeFailures)
	}
	if snap.LastRTTMs != 30 {
		t.Fatalf("LastRTTMs = %d, want 30", snap.LastRTTMs)
	}
	if snap.P50Ms != 20 || snap.MaxMs != 30 {
		t.Fatalf("unexpected quantiles %+v", snap)
	}
}

func TestObserveSampleClampsHugeValues(t *testing.T) {
	m := NewMetrics("192.0.2.1")
	m.ObserveSample(500_000)
	if got := m.Snapshot().MaxMs; got < histMaxMs-histMaxMs/100 {
		t.Fatalf("MaxMs = %d, want about %d", got, histMaxMs)
	}
}

func TestRender(t *testing.T) {
	m := NewMetrics("192.0.2.1")
	m.ObserveSample(12)
	m.SetMode(threshold.ModePlane, threshold.Plane)

	rec := httptest.NewRecorder()
	m.Handler(rec, httptest.NewRequest("GET", "/metrics", nil))
	out := rec.Body.String()
	for _, want := range []string{
		"pingbar_probes_total{target=\"192.0.2.1\"} 1",
		"pingbar_rtt_last_ms{target=\"192.0.2.1\"} 12",
		"pingbar_rtt_ms{target=\"192.0.2.1\",quantile=\"0.5\"} 12",
		"pingbar_plane_mode 1",
		"pingbar_threshold_ms{level=\"yellow\"} 600",
		"pingbar_threshold_ms{level=\"red\"} 1000",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, out)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type = %q", ct)
	}
}
