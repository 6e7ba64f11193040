package monitor

import (
	"sync"
	"testing"

	"github.com/NodePath81/pingbar/internal/history"
	"github.com/NodePath81/pingbar/internal/threshold"
	"github.com/NodePath81/pingbar/internal/util"
)

func TestStatusReflectsHistory(t *testing.T) {
	m := New(history.DefaultCapacity, threshold.DefaultPresets(), util.DiscardLogger())
	if got := m.Status().Current; got != history.NoData {
		t.Fatalf("Current = %d, want NoData", got)
	}
	for _, s := range []history.Sample{10, 20, history.Failed, 15} {
		m.History().Append(s)
	}
	status := m.Status()
	if status.Current != 15 {
		t.Fatalf("Current = %d, want 15", status.Current)
	}
	if len(status.Values) != history.DefaultCapacity {
		t.Fatalf("len(Values) = %d", len(status.Values))
	}
}

func TestTogglePlaneMode(t *testing.T) {
	m := New(history.DefaultCapacity, threshold.DefaultPresets(), util.DiscardLogger())
	var seen []threshold.Mode
	m.OnModeChange(func(mode threshold.Mode, _ threshold.Thresholds) {
		seen = append(seen, mode)
	})

	if !m.TogglePlaneMode() {
		t.Fatalf("first toggle should enable plane mode")
	}
	if m.Thresholds() != threshold.Plane || !m.PlaneMode() {
		t.Fatalf("unexpected state after toggle: %+v", m.Thresholds())
	}
	if m.TogglePlaneMode() {
		t.Fatalf("second toggle should disable plane mode")
	}
	if m.Thresholds() != threshold.Normal || m.Mode() != threshold.ModeNormal {
		t.Fatalf("state not restored: %+v", m.Thresholds())
	}
	if len(seen) != 2 || seen[0] != threshold.ModePlane || seen[1] != threshold.ModeNormal {
		t.Fatalf("listener saw %v", seen)
	}
}

func TestViewFollowsMode(t *testing.T) {
	m := New(history.DefaultCapacity, threshold.DefaultPresets(), util.DiscardLogger())
	m.History().Append(450)
	if got := m.View().Level; got != "critical" {
		t.Fatalf("normal mode level = %q, want critical", got)
	}
	m.TogglePlaneMode()
	view := m.View()
	if view.Level != "nominal" || !view.PlaneMode {
		t.Fatalf("plane mode view = %+v", view)
	}
	if view.Tooltip != "Latency: 450ms (Plane Mode, Y: 600ms, R: 1000ms)" {
		t.Fatalf("Tooltip = %q", view.Tooltip)
	}
}

func TestConcurrentTogglesNotifyInOrder(t *testing.T) {
	const n = 33
	m := New(history.DefaultCapacity, threshold.DefaultPresets(), util.DiscardLogger())
	var last threshold.Mode
	var lastThresholds threshold.Thresholds
	calls := 0
	m.OnModeChange(func(mode threshold.Mode, th threshold.Thresholds) {
		calls++
		last, lastThresholds = mode, th
	})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.TogglePlaneMode()
		}()
	}
	wg.Wait()

	if calls != n {
		t.Fatalf("listener called %d times, want %d", calls, n)
	}
	if !m.PlaneMode() || m.Thresholds() != threshold.Plane {
		t.Fatalf("after %d toggles: plane=%v thresholds=%+v", n, m.PlaneMode(), m.Thresholds())
	}
	if last != m.Mode() || lastThresholds != m.Thresholds() {
		t.Fatalf("last notification %v %+v disagrees with state", last, lastThresholds)
	}
}
