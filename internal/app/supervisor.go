package app

import (
	"errors"
	"sync"

	"github.com/NodePath81/pingbar/internal/config"
	"github.com/NodePath81/pingbar/internal/monitor"
	"github.com/NodePath81/pingbar/internal/util"
)

var errNotStarted = errors.New("runtime not started")

// Supervisor owns the single Runtime built from the startup configuration.
// Configuration is read once by the caller; there is no reload.
type Supervisor struct {
	logger  util.Logger
	mu      sync.Mutex
	runtime *Runtime
}

func NewSupervisor(logger util.Logger) *Supervisor {
	return &Supervisor{logger: logger}
}

func (s *Supervisor) Start(cfg config.Config) error {
	runtime, err := NewRuntime(cfg, s.logger)
	if err != nil {
		return err
	}
	if err := runtime.Start(); err != nil {
		return err
	}
	s.mu.Lock()
	s.runtime = runtime
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) Monitor() (*monitor.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runtime == nil {
		return nil, errNotStarted
	}
	return s.runtime.Monitor(), nil
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	current := s.runtime
	s.runtime = nil
	s.mu.Unlock()
	if current != nil {
		current.Stop()
	}
}
