// Package monitor is the read/command surface a UI polls: it exposes the
// latest latency status, the derived view and the plane-mode toggle.
package monitor

import (
	"sync"

	"github.com/NodePath81/pingbar/internal/history"
	"github.com/NodePath81/pingbar/internal/present"
	"github.com/NodePath81/pingbar/internal/threshold"
	"github.com/NodePath81/pingbar/internal/util"
)

// ModeListener is notified after every toggle.
type ModeListener func(mode threshold.Mode, t threshold.Thresholds)

type Monitor struct {
	toggleMu  sync.Mutex
	history   *history.History
	state     *threshold.State
	listeners []ModeListener
	logger    util.Logger
}

func New(capacity int, presets threshold.Presets, logger util.Logger) *Monitor {
	return &Monitor{
		history: history.New(capacity),
		state:   threshold.NewState(presets),
		logger:  logger,
	}
}

// OnModeChange registers fn. It must be called before the monitor is shared.
func (m *Monitor) OnModeChange(fn ModeListener) {
	m.listeners = append(m.listeners, fn)
}

// History is the write handle for the sampler. Nothing else should append.
func (m *Monitor) History() *history.History {
	return m.history
}

func (m *Monitor) Status() history.LatencyStatus {
	return m.history.Status()
}

func (m *Monitor) Thresholds() threshold.Thresholds {
	return m.state.Thresholds()
}

func (m *Monitor) Mode() threshold.Mode {
	return m.state.Mode()
}

func (m *Monitor) PlaneMode() bool {
	return m.state.Plane()
}

// TogglePlaneMode switches between the normal and plane presets and returns
// the new plane flag. Toggles from the UI, RPC and websocket are serialized
// so listeners see them in the order they were applied.
func (m *Monitor) TogglePlaneMode() bool {
	m.toggleMu.Lock()
	defer m.toggleMu.Unlock()
	mode, t := m.state.Toggle()
	if m.logger != nil {
		m.logger.Info("mode changed", "mode", mode.String(), "yellow_ms", t.Yellow, "red_ms", t.Red)
	}
	for _, fn := range m.listeners {
		fn(mode, t)
	}
	return mode == threshold.ModePlane
}

func (m *Monitor) View() present.View {
	return present.Render(m.Status(), m.Thresholds(), m.Mode())
}
