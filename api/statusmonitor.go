package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aouyang1/photojournal/syncstore"
)

const defaultProbeInterval = time.Minute

type Prober interface {
	Probe(ctx context.Context) syncstore.ProbeResult
}

// StatusMonitor periodically probes the remote store and keeps the latest result for the
// admin banner.
type StatusMonitor struct {
	prober   Prober
	interval time.Duration

	mu     sync.RWMutex
	latest *syncstore.ProbeResult

	Updated chan bool
}

func NewStatusMonitor(prober Prober, interval time.Duration) (*StatusMonitor, error) {
	if prober == nil {
		return nil, errors.New("no prober provided for status monitor")
	}
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	return &StatusMonitor{
		prober:   prober,
		interval: interval,
		Updated:  make(chan bool, 1),
	}, nil
}

// Check probes now, stores the result and logs when the status changed.
func (s *StatusMonitor) Check(ctx context.Context) syncstore.ProbeResult {
	result := s.prober.Probe(ctx)

	s.mu.Lock()
	prev := s.latest
	s.latest = &result
	s.mu.Unlock()

	if prev != nil && prev.Status == result.Status && prev.Reason == result.Reason {
		return result
	}

	switch result.Status {
	case syncstore.StatusReachable:
		slog.Info("remote store reachable", "driver", result.Driver)
	case syncstore.StatusNotConfigured:
		slog.Warn("remote store not configured, saving locally only")
	default:
		slog.Warn("remote store unavailable, saving locally only", "driver", result.Driver, "reason", result.Reason, "detail", result.Detail)
	}

	select {
	case s.Updated <- true:
	default:
		// Channel is full, skip
	}
	return result
}

// Latest returns the most recent result, probing first if nothing has been checked yet.
func (s *StatusMonitor) Latest(ctx context.Context) syncstore.ProbeResult {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		return s.Check(ctx)
	}
	return *latest
}

func (s *StatusMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}
