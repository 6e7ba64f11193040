package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NodePath81/pingbar/internal/threshold"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Target != DefaultTarget {
		t.Fatalf("Target = %q", cfg.Target)
	}
	if cfg.Probe.Interval.Duration() != time.Second {
		t.Fatalf("Probe.Interval = %s", cfg.Probe.Interval.Duration())
	}
	if cfg.Probe.PayloadSize != 64 {
		t.Fatalf("Probe.PayloadSize = %d", cfg.Probe.PayloadSize)
	}
	if cfg.History.Capacity != 10 {
		t.Fatalf("History.Capacity = %d", cfg.History.Capacity)
	}
	if cfg.Thresholds.Normal != threshold.Normal || cfg.Thresholds.Plane != threshold.Plane {
		t.Fatalf("unexpected thresholds %+v", cfg.Thresholds)
	}
	if !cfg.Control.Metrics.IsEnabled() {
		t.Fatalf("metrics should default to enabled")
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Target != DefaultTarget {
		t.Fatalf("Target = %q", cfg.Target)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pingbar.yaml")
	raw := `
target: 1.1.1.1
probe:
  interval: 500ms
  timeout: 3
  payload_size: 32
  privileged: true
history:
  capacity: 20
thresholds:
  normal: {yellow: 40, red: 120}
dns:
  servers: ["9.9.9.9", "1.0.0.1:53"]
  strategy: IPv4_Only
control:
  enabled: true
  auth_token: secret
  metrics:
    enabled: false
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Target != "1.1.1.1" {
		t.Fatalf("Target = %q", cfg.Target)
	}
	if cfg.Probe.Interval.Duration() != 500*time.Millisecond {
		t.Fatalf("Probe.Interval = %s", cfg.Probe.Interval.Duration())
	}
	if cfg.Probe.Timeout.Duration() != 3*time.Second {
		t.Fatalf("Probe.Timeout = %s", cfg.Probe.Timeout.Duration())
	}
	if cfg.Probe.PayloadSize != 32 || !cfg.Probe.Privileged {
		t.Fatalf("unexpected probe config %+v", cfg.Probe)
	}
	if cfg.History.Capacity != 20 {
		t.Fatalf("History.Capacity = %d", cfg.History.Capacity)
	}
	if cfg.Thresholds.Normal != (threshold.Thresholds{Yellow: 40, Red: 120}) {
		t.Fatalf("Thresholds.Normal = %+v", cfg.Thresholds.Normal)
	}
	if cfg.Thresholds.Plane != threshold.Plane {
		t.Fatalf("Thresholds.Plane = %+v", cfg.Thresholds.Plane)
	}
	if cfg.DNS.Strategy != DNSStrategyIPv4Only {
		t.Fatalf("DNS.Strategy = %q", cfg.DNS.Strategy)
	}
	if cfg.Control.Metrics.IsEnabled() {
		t.Fatalf("metrics should be disabled")
	}
	if cfg.Control.BindPort != defaultControlPort {
		t.Fatalf("Control.BindPort = %d", cfg.Control.BindPort)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"negative interval", "probe: {interval: -1s}", "probe.interval"},
		{"bad payload", "probe: {payload_size: 70000}", "probe.payload_size"},
		{"bad identifier", "probe: {identifier: 70000}", "probe.identifier"},
		{"bad capacity", "history: {capacity: -3}", "history.capacity"},
		{"half thresholds", "thresholds: {plane: {yellow: 500}}", "thresholds.plane.red"},
		{"bad strategy", "dns: {strategy: random}", "dns.strategy"},
		{"bad dns server", "dns: {servers: [dns.example]}", "dns.servers"},
		{"control without token", "control: {enabled: true}", "control.auth_token"},
		{"bad level", "log: {level: loud}", "log.level"},
		{"bad target", "target: 'http://x/'", "target"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDurationRejectsMapping(t *testing.T) {
	if _, err := Parse([]byte("probe: {interval: {seconds: 1}}")); err == nil {
		t.Fatalf("expected error for non-scalar duration")
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "pingbar.example.yaml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	def := Default()
	if cfg.Target != def.Target || cfg.Probe != def.Probe || cfg.History != def.History {
		t.Fatalf("example drifted from defaults: %+v", cfg)
	}
	if cfg.Thresholds != def.Thresholds {
		t.Fatalf("thresholds = %+v", cfg.Thresholds)
	}
}
