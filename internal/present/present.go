package present

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/NodePath81/pingbar/internal/history"
	"github.com/NodePath81/pingbar/internal/threshold"
)

const (
	recentCount = 5

	noDataToken = "--"
	failedToken = "✖"

	failedStatusText     = "Latency: Failed!"
	sparklinePlaceholder = "▁▁▁▁▁"
	sparklineFailed      = '✖'
	sparklineMid         = 4
)

var sparkLevels = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

type Level int

const (
	Nominal Level = iota
	Caution
	Critical
)

func (l Level) String() string {
	switch l {
	case Nominal:
		return "nominal"
	case Caution:
		return "caution"
	default:
		return "critical"
	}
}

type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func (l Level) RGB() RGB {
	switch l {
	case Nominal:
		return RGB{0, 255, 0}
	case Caution:
		return RGB{255, 255, 0}
	default:
		return RGB{255, 0, 0}
	}
}

// Classify maps a sample to a level. Failed is always critical whatever the
// cutoffs are.
func Classify(v history.Sample, t threshold.Thresholds) Level {
	if v.IsFailed() {
		return Critical
	}
	switch {
	case uint64(v) < t.Yellow:
		return Nominal
	case uint64(v) < t.Red:
		return Caution
	default:
		return Critical
	}
}

func Color(v history.Sample, t threshold.Thresholds) RGB {
	return Classify(v, t).RGB()
}

// StatusText lists the five most recent samples, oldest first.
func StatusText(status history.LatencyStatus) string {
	if status.Current.IsFailed() {
		return failedStatusText
	}
	n := recentCount
	if len(status.Values) < n {
		n = len(status.Values)
	}
	parts := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		parts = append(parts, sampleToken(status.Values[i]))
	}
	return "Recent latencies: " + strings.Join(parts, ", ") + " ms"
}

// Sparkline renders values (most recent first) as glyphs, oldest on the left.
// Scaling uses only measured samples; sentinels never widen the range.
func Sparkline(values []history.Sample) string {
	if len(values) == 0 {
		return ""
	}
	var (
		min, max uint64
		found    bool
	)
	for _, v := range values {
		if !v.Valid() {
			continue
		}
		if !found {
			min, max = uint64(v), uint64(v)
			found = true
			continue
		}
		if uint64(v) < min {
			min = uint64(v)
		}
		if uint64(v) > max {
			max = uint64(v)
		}
	}
	if !found {
		return sparklinePlaceholder
	}

	span := float64(max - min)
	out := make([]rune, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		v := values[i]
		switch {
		case v.IsNoData():
			out = append(out, sparkLevels[0])
		case v.IsFailed():
			out = append(out, sparklineFailed)
		case span == 0:
			out = append(out, sparkLevels[sparklineMid])
		default:
			idx := int(math.Round(float64(uint64(v)-min) / span * float64(len(sparkLevels)-1)))
			out = append(out, sparkLevels[clampIndex(idx)])
		}
	}
	return string(out)
}

func Tooltip(current history.Sample, mode threshold.Mode, t threshold.Thresholds) string {
	if current.IsFailed() {
		return fmt.Sprintf("Ping failed! (%s)", mode)
	}
	return fmt.Sprintf("Latency: %sms (%s, Y: %dms, R: %dms)", sampleToken(current), mode, t.Yellow, t.Red)
}

func sampleToken(v history.Sample) string {
	switch {
	case v.IsNoData():
		return noDataToken
	case v.IsFailed():
		return failedToken
	default:
		return strconv.FormatUint(uint64(v), 10)
	}
}

func clampIndex(idx int) int {
	if idx < 0 {
		return 0
	}
	if idx > len(sparkLevels)-1 {
		return len(sparkLevels) - 1
	}
	return idx
}
