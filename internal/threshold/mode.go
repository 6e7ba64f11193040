package threshold

import (
	"sync"
	"sync/atomic"
)

type Mode int

const (
	ModeNormal Mode = iota
	ModePlane
)

func (m Mode) String() string {
	switch m {
	case ModePlane:
		return "Plane Mode"
	default:
		return "Normal Mode"
	}
}

// State couples the plane-mode flag with the active thresholds. Readers never
// lock; writers are serialized by mu so the flag and the installed preset
// always agree once Toggle returns.
type State struct {
	mu      sync.Mutex
	plane   atomic.Bool
	cfg     *Config
	presets Presets
}

func NewState(presets Presets) *State {
	return &State{
		cfg:     NewConfig(presets.Normal),
		presets: presets,
	}
}

// Toggle flips plane mode, installs the matching preset and returns the mode
// and thresholds it installed.
func (s *State) Toggle() (Mode, Thresholds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode := modeFor(!s.plane.Load())
	t := s.presets.For(mode)
	s.cfg.Set(t.Yellow, t.Red)
	s.plane.Store(mode == ModePlane)
	return mode, t
}

func (s *State) Plane() bool {
	return s.plane.Load()
}

func (s *State) Mode() Mode {
	return modeFor(s.plane.Load())
}

func (s *State) Config() *Config {
	return s.cfg
}

func (s *State) Thresholds() Thresholds {
	return s.cfg.Snapshot()
}

func modeFor(plane bool) Mode {
	if plane {
		return ModePlane
	}
	return ModeNormal
}
