package probe

import (
	"context"
	"time"

	"github.com/NodePath81/pingbar/internal/history"
	"github.com/NodePath81/pingbar/internal/util"
)

// Recorder receives every sample the sampler produces.
type Recorder interface {
	Append(s history.Sample)
}

type Observer interface {
	ObserveSample(s history.Sample)
}

// Sampler is the only writer of a History. It runs one probe per tick and
// records a sample for every outcome, so a probe failure never ends the loop.
type Sampler struct {
	pinger   Pinger
	history  Recorder
	observer Observer
	interval time.Duration
	logger   util.Logger
}

func NewSampler(pinger Pinger, history Recorder, observer Observer, interval time.Duration, logger util.Logger) *Sampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sampler{
		pinger:   pinger,
		history:  history,
		observer: observer,
		interval: interval,
		logger:   logger,
	}
}

// Run loops until ctx is cancelled. A probe cut short by cancellation is not
// recorded. The interval is measured from the end of one probe to the start
// of the next; slow probes are not compensated.
func (s *Sampler) Run(ctx context.Context) {
	seq := 0
	for {
		sample := s.sampleOnce(ctx, seq)
		if ctx.Err() != nil {
			return
		}
		s.history.Append(sample)
		if s.observer != nil {
			s.observer.ObserveSample(sample)
		}
		seq = (seq + 1) & 0xffff

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context, seq int) history.Sample {
	rtt, err := s.pinger.Ping(ctx, seq)
	if err != nil {
		if s.logger != nil {
			s.logger.Debug("probe failed", "seq", seq, "error", err)
		}
		return history.Failed
	}
	return history.FromDuration(rtt)
}
