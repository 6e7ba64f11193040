package app

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/NodePath81/pingbar/internal/config"
	"github.com/NodePath81/pingbar/internal/control"
	"github.com/NodePath81/pingbar/internal/metrics"
	"github.com/NodePath81/pingbar/internal/monitor"
	"github.com/NodePath81/pingbar/internal/probe"
	"github.com/NodePath81/pingbar/internal/resolver"
	"github.com/NodePath81/pingbar/internal/threshold"
	"github.com/NodePath81/pingbar/internal/util"
)

const resolveTimeout = 5 * time.Second

// Runtime owns one sampler, its monitor and the optional control server.
type Runtime struct {
	cfg     config.Config
	ctx     context.Context
	cancel  context.CancelFunc
	logger  util.Logger
	target  net.IP
	pinger  probe.Pinger
	monitor *monitor.Monitor
	metrics *metrics.Metrics
	hub     *control.StatusHub
	control *control.ControlServer
	wg      sync.WaitGroup
}

func NewRuntime(cfg config.Config, logger util.Logger) (*Runtime, error) {
	ctx, cancel := context.WithCancel(context.Background())
	res := resolver.NewResolver(cfg.DNS)
	resolveCtx, resolveCancel := context.WithTimeout(ctx, resolveTimeout)
	ip, err := res.ResolveTarget(resolveCtx, cfg.Target)
	resolveCancel()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("resolve target %q: %w", cfg.Target, err)
	}
	pinger, err := probe.NewICMPPinger(ip, cfg.Probe)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open icmp socket: %w", err)
	}
	return newRuntime(ctx, cancel, cfg, ip, pinger, logger), nil
}

func newRuntime(ctx context.Context, cancel context.CancelFunc, cfg config.Config, ip net.IP, pinger probe.Pinger, logger util.Logger) *Runtime {
	mon := monitor.New(cfg.History.Capacity, cfg.Thresholds.Presets(), logger)
	m := metrics.NewMetrics(ip.String())
	m.SetMode(mon.Mode(), mon.Thresholds())
	mon.OnModeChange(m.SetMode)

	rt := &Runtime{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		target:  ip,
		pinger:  pinger,
		monitor: mon,
		metrics: m,
	}
	if cfg.Control.Enabled {
		rt.hub = control.NewStatusHub(ctx.Done())
		mon.OnModeChange(rt.hub.BroadcastModeChange)
		rt.control = control.NewControlServer(cfg, ip.String(), mon, m, rt.hub, logger)
	}
	mon.OnModeChange(func(mode threshold.Mode, t threshold.Thresholds) {
		logger.Debug("thresholds applied", "mode", mode.String(), "yellow_ms", t.Yellow, "red_ms", t.Red)
	})
	return rt
}

func (r *Runtime) Start() error {
	if r.control != nil {
		if err := r.control.Start(r.ctx); err != nil {
			r.Stop()
			return fmt.Errorf("start control server: %w", err)
		}
	}
	r.startSampler()
	r.logger.Info("monitoring started", "target", r.cfg.Target, "ip", r.target.String(), "interval", r.cfg.Probe.Interval.Duration().String())
	return nil
}

func (r *Runtime) Stop() {
	r.cancel()
	if r.control != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = r.control.Shutdown(ctx)
		cancel()
	}
	r.wait()
	if r.pinger != nil {
		if err := r.pinger.Close(); err != nil {
			r.logger.Debug("pinger close failed", "error", err)
		}
	}
}

func (r *Runtime) Monitor() *monitor.Monitor {
	return r.monitor
}

func (r *Runtime) startSampler() {
	sampler := probe.NewSampler(r.pinger, r.monitor.History(), r.metrics, r.cfg.Probe.Interval.Duration(), r.logger)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		sampler.Run(r.ctx)
	}()
}

func (r *Runtime) wait() {
	r.wg.Wait()
}
