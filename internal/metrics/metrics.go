package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/NodePath81/pingbar/internal/history"
	"github.com/NodePath81/pingbar/internal/threshold"
)

const (
	histMinMs   = 1
	histMaxMs   = 60_000
	histSigFigs = 3
)

type Snapshot struct {
	ProbesTotal   uint64  `json:"probes_total"`
	ProbeFailures uint64  `json:"probe_failures"`
	LastRTTMs     uint64  `json:"last_rtt_ms"`
	P50Ms         int64   `json:"p50_ms"`
	P90Ms         int64   `json:"p90_ms"`
	P99Ms         int64   `json:"p99_ms"`
	MaxMs         int64   `json:"max_ms"`
	MeanMs        float64 `json:"mean_ms"`
}

// Metrics tracks lifetime probe counters and an RTT histogram. Counters are
// atomics so the sampler never waits on a scrape; the histogram takes a short
// lock.
type Metrics struct {
	target        string
	probesTotal   atomic.Uint64
	probeFailures atomic.Uint64
	lastRTTMs     atomic.Uint64
	planeMode     atomic.Bool
	yellowMs      atomic.Uint64
	redMs         atomic.Uint64
	mu            sync.Mutex
	rtt           *hdrhistogram.Histogram
	startTime     time.Time
}

func NewMetrics(target string) *Metrics {
	return &Metrics{
		target:    target,
		rtt:       hdrhistogram.New(histMinMs, histMaxMs, histSigFigs),
		startTime: time.Now(),
	}
}

func (m *Metrics) ObserveSample(s history.Sample) {
	m.probesTotal.Add(1)
	if !s.Valid() {
		m.probeFailures.Add(1)
		return
	}
	m.lastRTTMs.Store(uint64(s))
	v := int64(s)
	if v > histMaxMs {
		v = histMaxMs
	}
	m.mu.Lock()
	_ = m.rtt.RecordValue(v)
	m.mu.Unlock()
}

func (m *Metrics) SetMode(mode threshold.Mode, t threshold.Thresholds) {
	m.planeMode.Store(mode == threshold.ModePlane)
	m.yellowMs.Store(t.Yellow)
	m.redMs.Store(t.Red)
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		ProbesTotal:   m.probesTotal.Load(),
		ProbeFailures: m.probeFailures.Load(),
		LastRTTMs:     m.lastRTTMs.Load(),
	}
	m.mu.Lock()
	if m.rtt.TotalCount() > 0 {
		snap.P50Ms = m.rtt.ValueAtQuantile(50)
		snap.P90Ms = m.rtt.ValueAtQuantile(90)
		snap.P99Ms = m.rtt.ValueAtQuantile(99)
		snap.MaxMs = m.rtt.Max()
		snap.MeanMs = m.rtt.Mean()
	}
	m.mu.Unlock()
	return snap
}

func (m *Metrics) Handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(m.Render()))
}

func (m *Metrics) Render() string {
	snap := m.Snapshot()
	label := "{target=\"" + m.target + "\"}"

	var b strings.Builder
	b.WriteString("# TYPE pingbar_probes_total counter\n")
	b.WriteString("pingbar_probes_total" + label + " ")
	b.WriteString(strconv.FormatUint(snap.ProbesTotal, 10))
	b.WriteString("\n")
	b.WriteString("# TYPE pingbar_probe_failures_total counter\n")
	b.WriteString("pingbar_probe_failures_total" + label + " ")
	b.WriteString(strconv.FormatUint(snap.ProbeFailures, 10))
	b.WriteString("\n")
	b.WriteString("# TYPE pingbar_rtt_last_ms gauge\n")
	b.WriteString("pingbar_rtt_last_ms" + label + " ")
	b.WriteString(strconv.FormatUint(snap.LastRTTMs, 10))
	b.WriteString("\n")
	b.WriteString("# TYPE pingbar_rtt_ms summary\n")
	for _, q := range []struct {
		name string
		val  int64
	}{
		{"0.5", snap.P50Ms},
		{"0.9", snap.P90Ms},
		{"0.99", snap.P99Ms},
	} {
		b.WriteString("pingbar_rtt_ms{target=\"" + m.target + "\",quantile=\"" + q.name + "\"} ")
		b.WriteString(strconv.FormatInt(q.val, 10))
		b.WriteString("\n")
	}
	b.WriteString("# TYPE pingbar_rtt_max_ms gauge\n")
	b.WriteString("pingbar_rtt_max_ms" + label + " ")
	b.WriteString(strconv.FormatInt(snap.MaxMs, 10))
	b.WriteString("\n")
	b.WriteString("# TYPE pingbar_rtt_mean_ms gauge\n")
	b.WriteString("pingbar_rtt_mean_ms" + label + " ")
	b.WriteString(formatFloat(snap.MeanMs))
	b.WriteString("\n")
	b.WriteString("# TYPE pingbar_plane_mode gauge\n")
	b.WriteString("pingbar_plane_mode ")
	if m.planeMode.Load() {
		b.WriteString("1\n")
	} else {
		b.WriteString("0\n")
	}
	b.WriteString("# TYPE pingbar_threshold_ms gauge\n")
	b.WriteString("pingbar_threshold_ms{level=\"yellow\"} ")
	b.WriteString(strconv.FormatUint(m.yellowMs.Load(), 10))
	b.WriteString("\n")
	b.WriteString("pingbar_threshold_ms{level=\"red\"} ")
	b.WriteString(strconv.FormatUint(m.redMs.Load(), 10))
	b.WriteString("\n")
	b.WriteString("# TYPE pingbar_uptime_seconds gauge\n")
	b.WriteString("pingbar_uptime_seconds ")
	b.WriteString(formatFloat(time.Since(m.startTime).Seconds()))
	b.WriteString("\n")
	return b.String()
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', 6, 64)
}
