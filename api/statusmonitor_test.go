package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aouyang1/photojournal/remote"
	"github.com/aouyang1/photojournal/syncstore"
)

type scriptedProber struct {
	mu      sync.Mutex
	results []syncstore.ProbeResult
	calls   int
}

func (p *scriptedProber) Probe(ctx context.Context) syncstore.ProbeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := p.results[min(p.calls, len(p.results)-1)]
	p.calls++
	return res
}

func (p *scriptedProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestNewStatusMonitor(t *testing.T) {
	_, err := NewStatusMonitor(nil, time.Second)
	assert.Error(t, err)

	m, err := NewStatusMonitor(&scriptedProber{}, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultProbeInterval, m.interval)
}

func TestStatusMonitor_SignalsTransitions(t *testing.T) {
	down := syncstore.ProbeResult{Status: syncstore.StatusUnreachable, Reason: remote.ReasonUnreachable}
	up := syncstore.ProbeResult{Status: syncstore.StatusReachable}
	prober := &scriptedProber{results: []syncstore.ProbeResult{down, down, up}}
	m, err := NewStatusMonitor(prober, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, down, m.Check(ctx))
	assert.Len(t, m.Updated, 1)
	<-m.Updated

	m.Check(ctx)
	assert.Len(t, m.Updated, 0)

	assert.Equal(t, up, m.Check(ctx))
	assert.Len(t, m.Updated, 1)
	assert.Equal(t, up, m.Latest(ctx))
	assert.Equal(t, 3, prober.count())
}

func TestStatusMonitor_LatestProbesOnce(t *testing.T) {
	prober := &scriptedProber{results: []syncstore.ProbeResult{{Status: syncstore.StatusNotConfigured}}}
	m, err := NewStatusMonitor(prober, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, syncstore.StatusNotConfigured, m.Latest(context.Background()).Status)
	m.Latest(context.Background())
	assert.Equal(t, 1, prober.count())
}

func TestStatusMonitor_RunStopsOnCancel(t *testing.T) {
	prober := &scriptedProber{results: []syncstore.ProbeResult{{Status: syncstore.StatusReachable}}}
	m, err := NewStatusMonitor(prober, 5*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return prober.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
