package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/NodePath81/pingbar/internal/history"
	"github.com/NodePath81/pingbar/internal/threshold"
	"github.com/NodePath81/pingbar/internal/util"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTarget = "34.91.238.70"

	defaultProbeInterval    = 1 * time.Second
	defaultProbeTimeout     = 2 * time.Second
	defaultProbePayloadSize = 64
	defaultProbeIdentifier  = 111
	maxProbePayloadSize     = 65507

	defaultControlAddr           = "127.0.0.1"
	defaultControlPort           = 8087
	defaultControlMetricsEnabled = true

	defaultUIRefreshInterval = 1 * time.Second
	defaultLogLevel          = "info"

	DNSStrategyIPv4Only = "ipv4_only"
	DNSStrategyPreferV6 = "prefer_ipv6"
)

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Target     string           `yaml:"target"`
	Probe      ProbeConfig      `yaml:"probe"`
	History    HistoryConfig    `yaml:"history"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	DNS        DNSConfig        `yaml:"dns"`
	Control    ControlConfig    `yaml:"control"`
	UI         UIConfig         `yaml:"ui"`
	Log        LogConfig        `yaml:"log"`
}

type ProbeConfig struct {
	Interval    Duration `yaml:"interval"`
	Timeout     Duration `yaml:"timeout"`
	PayloadSize int      `yaml:"payload_size"`
	Identifier  int      `yaml:"identifier"`
	Privileged  bool     `yaml:"privileged"`
}

type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

type ThresholdsConfig struct {
	Normal threshold.Thresholds `yaml:"normal"`
	Plane  threshold.Thresholds `yaml:"plane"`
}

func (t ThresholdsConfig) Presets() threshold.Presets {
	return threshold.Presets{Normal: t.Normal, Plane: t.Plane}
}

type DNSConfig struct {
	Servers  []string `yaml:"servers"`
	Strategy string   `yaml:"strategy"`
}

type ControlConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	BindAddr  string               `yaml:"bind_addr"`
	BindPort  int                  `yaml:"bind_port"`
	AuthToken string               `yaml:"auth_token"`
	Metrics   ControlMetricsConfig `yaml:"metrics"`
}

type ControlMetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

func (m ControlMetricsConfig) IsEnabled() bool {
	return util.BoolValue(m.Enabled, defaultControlMetricsEnabled)
}

type UIConfig struct {
	RefreshInterval Duration `yaml:"refresh_interval"`
	Headless        bool     `yaml:"headless"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.setDefaults()
	return cfg
}

func LoadConfig(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	c.Target = strings.TrimSpace(c.Target)
	if c.Target == "" {
		c.Target = DefaultTarget
	}

	if c.Probe.Interval == 0 {
		c.Probe.Interval = Duration(defaultProbeInterval)
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = Duration(defaultProbeTimeout)
	}
	if c.Probe.PayloadSize == 0 {
		c.Probe.PayloadSize = defaultProbePayloadSize
	}
	if c.Probe.Identifier == 0 {
		c.Probe.Identifier = defaultProbeIdentifier
	}

	if c.History.Capacity == 0 {
		c.History.Capacity = history.DefaultCapacity
	}

	if c.Thresholds.Normal == (threshold.Thresholds{}) {
		c.Thresholds.Normal = threshold.Normal
	}
	if c.Thresholds.Plane == (threshold.Thresholds{}) {
		c.Thresholds.Plane = threshold.Plane
	}

	if c.Control.BindAddr == "" {
		c.Control.BindAddr = defaultControlAddr
	}
	if c.Control.BindPort == 0 {
		c.Control.BindPort = defaultControlPort
	}
	if c.Control.Metrics.Enabled == nil {
		enabled := defaultControlMetricsEnabled
		c.Control.Metrics.Enabled = &enabled
	}

	if c.UI.RefreshInterval == 0 {
		c.UI.RefreshInterval = Duration(defaultUIRefreshInterval)
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

func (c *Config) validate() error {
	if strings.ContainsAny(c.Target, " \t/") {
		return fmt.Errorf("target %q is not a host or IP address", c.Target)
	}
	if c.Probe.Interval.Duration() <= 0 {
		return errors.New("probe.interval must be > 0")
	}
	if c.Probe.Timeout.Duration() <= 0 {
		return errors.New("probe.timeout must be > 0")
	}
	if c.Probe.PayloadSize < 0 || c.Probe.PayloadSize > maxProbePayloadSize {
		return fmt.Errorf("probe.payload_size must be in 0..%d", maxProbePayloadSize)
	}
	if c.Probe.Identifier < 0 || c.Probe.Identifier > 0xffff {
		return errors.New("probe.identifier must be in 0..65535")
	}
	if c.History.Capacity < 1 {
		return errors.New("history.capacity must be > 0")
	}
	if err := validateThresholds("thresholds.normal", c.Thresholds.Normal); err != nil {
		return err
	}
	if err := validateThresholds("thresholds.plane", c.Thresholds.Plane); err != nil {
		return err
	}

	c.DNS.Strategy = strings.ToLower(strings.TrimSpace(c.DNS.Strategy))
	if c.DNS.Strategy != "" {
		switch c.DNS.Strategy {
		case DNSStrategyIPv4Only, DNSStrategyPreferV6:
		default:
			return errors.New("dns.strategy must be ipv4_only or prefer_ipv6")
		}
	}
	for _, server := range c.DNS.Servers {
		host := strings.TrimSpace(server)
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if net.ParseIP(host) == nil {
			return fmt.Errorf("dns.servers entry %q must be an IP address", server)
		}
	}

	if c.Control.Enabled {
		if c.Control.AuthToken == "" {
			return errors.New("control.auth_token must not be empty")
		}
		if c.Control.BindPort <= 0 || c.Control.BindPort > 65535 {
			return errors.New("control.bind_port must be in 1..65535")
		}
	}

	if c.UI.RefreshInterval.Duration() <= 0 {
		return errors.New("ui.refresh_interval must be > 0")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	return nil
}

// Red at or below Yellow is accepted but would make caution unreachable.
func validateThresholds(path string, t threshold.Thresholds) error {
	if t.Yellow == 0 {
		return fmt.Errorf("%s.yellow must be > 0", path)
	}
	if t.Red == 0 {
		return fmt.Errorf("%s.red must be > 0", path)
	}
	return nil
}
