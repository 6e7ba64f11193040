package present

import (
	"encoding/json"

	"github.com/NodePath81/pingbar/internal/history"
	"github.com/NodePath81/pingbar/internal/threshold"
)

type Icon string

const (
	IconCircle Icon = "circle"
	IconCross  Icon = "cross"
)

// View is everything a UI needs for one refresh tick. In JSON, current is
// null unless it holds a measured latency; failed tells the two sentinels
// apart.
type View struct {
	Current    history.Sample       `json:"current"`
	Failed     bool                 `json:"failed"`
	Text       string               `json:"text"`
	Sparkline  string               `json:"sparkline"`
	Level      string               `json:"level"`
	Color      RGB                  `json:"color"`
	Icon       Icon                 `json:"icon"`
	Tooltip    string               `json:"tooltip"`
	PlaneMode  bool                 `json:"plane_mode"`
	Mode       string               `json:"mode"`
	Thresholds threshold.Thresholds `json:"thresholds"`
}

func Render(status history.LatencyStatus, t threshold.Thresholds, mode threshold.Mode) View {
	level := Classify(status.Current, t)
	icon := IconCircle
	if status.Current.IsFailed() {
		icon = IconCross
	}
	return View{
		Current:    status.Current,
		Failed:     status.Current.IsFailed(),
		Text:       StatusText(status),
		Sparkline:  Sparkline(status.Values),
		Level:      level.String(),
		Color:      level.RGB(),
		Icon:       icon,
		Tooltip:    Tooltip(status.Current, mode, t),
		PlaneMode:  mode == threshold.ModePlane,
		Mode:       mode.String(),
		Thresholds: t,
	}
}

type viewJSON View

type viewWire struct {
	Current *uint64 `json:"current"`
	viewJSON
}

func (v View) MarshalJSON() ([]byte, error) {
	w := viewWire{viewJSON: viewJSON(v)}
	if v.Current.Valid() {
		ms := uint64(v.Current)
		w.Current = &ms
	}
	return json.Marshal(w)
}

func (v *View) UnmarshalJSON(data []byte) error {
	var w viewWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*v = View(w.viewJSON)
	switch {
	case w.Current != nil:
		v.Current = history.Sample(*w.Current)
	case v.Failed:
		v.Current = history.Failed
	default:
		v.Current = history.NoData
	}
	return nil
}
