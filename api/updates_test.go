package api

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aouyang1/photojournal/syncstore"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchUpdates(t *testing.T) {
	prober := &scriptedProber{results: []syncstore.ProbeResult{{Status: syncstore.StatusReachable, Driver: "fake"}}}
	monitor, err := NewStatusMonitor(prober, time.Minute)
	require.NoError(t, err)
	inbox, err := NewInboxManager(t.TempDir(), time.Minute, &fakeImporter{})
	require.NoError(t, err)

	var out lockedBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		WatchUpdates(ctx, logger, monitor, inbox, func() int { return 3 })
		close(done)
	}()

	monitor.Check(ctx)
	inbox.Updated <- true

	require.Eventually(t, func() bool {
		logs := out.String()
		return strings.Contains(logs, "remote status changed") && strings.Contains(logs, "inbox imported photos")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "status=reachable")
	assert.Contains(t, out.String(), "photos=3")
	assert.Empty(t, monitor.Updated)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchUpdates did not return after cancel")
	}
}

func TestWatchUpdates_NoInbox(t *testing.T) {
	prober := &scriptedProber{results: []syncstore.ProbeResult{{Status: syncstore.StatusNotConfigured}}}
	monitor, err := NewStatusMonitor(prober, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	WatchUpdates(ctx, slog.New(slog.NewTextHandler(&lockedBuffer{}, nil)), monitor, nil, func() int { return 0 })
}
