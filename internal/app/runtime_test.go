package app

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NodePath81/pingbar/internal/config"
	"github.com/NodePath81/pingbar/internal/util"
)

type fakePinger struct {
	mu     sync.Mutex
	calls  int
	closed bool
}

func (p *fakePinger) Ping(_ context.Context, seq int) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if seq%2 == 1 {
		return 0, errors.New("timeout")
	}
	return 12 * time.Millisecond, nil
}

func (p *fakePinger) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func testRuntime(t *testing.T, cfg config.Config) (*Runtime, *fakePinger) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	pinger := &fakePinger{}
	rt := newRuntime(ctx, cancel, cfg, net.ParseIP("192.0.2.1"), pinger, util.DiscardLogger())
	return rt, pinger
}

func TestRuntimeSamplesUntilStopped(t *testing.T) {
	cfg := config.Default()
	cfg.Probe.Interval = config.Duration(5 * time.Millisecond)
	rt, pinger := testRuntime(t, cfg)
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		status := rt.Monitor().Status()
		var ok, failed bool
		for _, v := range status.Values {
			ok = ok || v == 12
			failed = failed || v.IsFailed()
		}
		if ok && failed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sampler did not record both outcomes: %v", status.Values)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rt.Stop()
	pinger.mu.Lock()
	defer pinger.mu.Unlock()
	if !pinger.closed {
		t.Fatalf("pinger not closed on stop")
	}
}

func TestRuntimeModeChangeReachesMetrics(t *testing.T) {
	cfg := config.Default()
	rt, _ := testRuntime(t, cfg)
	defer rt.cancel()
	if !strings.Contains(rt.metrics.Render(), "pingbar_plane_mode 0") {
		t.Fatalf("initial mode not exported")
	}
	rt.Monitor().TogglePlaneMode()
	out := rt.metrics.Render()
	if !strings.Contains(out, "pingbar_plane_mode 1") || !strings.Contains(out, `pingbar_threshold_ms{level="red"} 1000`) {
		t.Fatalf("metrics after toggle:\n%s", out)
	}
}

func TestRuntimeControlServerDisabledByDefault(t *testing.T) {
	rt, _ := testRuntime(t, config.Default())
	defer rt.cancel()
	if rt.control != nil || rt.hub != nil {
		t.Fatalf("control server should be off unless enabled")
	}
}

func TestRuntimeStartsControlServer(t *testing.T) {
	cfg := config.Default()
	cfg.Control.Enabled = true
	cfg.Control.AuthToken = "token"
	cfg.Control.BindPort = 0
	rt, _ := testRuntime(t, cfg)
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if rt.control == nil || rt.hub == nil {
		t.Fatalf("control server not built")
	}
	rt.Stop()
}
