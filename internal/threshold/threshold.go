package threshold

import "sync/atomic"

// Thresholds are the latency cutoffs in milliseconds. Samples below Yellow
// are nominal, below Red are caution, anything else is critical.
type Thresholds struct {
	Yellow uint64 `json:"yellow" yaml:"yellow"`
	Red    uint64 `json:"red" yaml:"red"`
}

var (
	Normal = Thresholds{Yellow: 30, Red: 100}
	Plane  = Thresholds{Yellow: 600, Red: 1000}
)

type Presets struct {
	Normal Thresholds
	Plane  Thresholds
}

func DefaultPresets() Presets {
	return Presets{Normal: Normal, Plane: Plane}
}

func (p Presets) For(mode Mode) Thresholds {
	if mode == ModePlane {
		return p.Plane
	}
	return p.Normal
}

// Config holds the active cutoffs as two independent atomics. A reader racing
// with Set may pair one new value with one old value; classification is
// cosmetic so that is tolerated.
type Config struct {
	yellow atomic.Uint64
	red    atomic.Uint64
}

func NewConfig(t Thresholds) *Config {
	c := &Config{}
	c.Set(t.Yellow, t.Red)
	return c
}

func (c *Config) Set(yellow, red uint64) {
	c.yellow.Store(yellow)
	c.red.Store(red)
}

func (c *Config) Get() (yellow, red uint64) {
	return c.yellow.Load(), c.red.Load()
}

func (c *Config) Snapshot() Thresholds {
	yellow, red := c.Get()
	return Thresholds{Yellow: yellow, Red: red}
}
