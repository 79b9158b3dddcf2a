// Package syncstore unifies the local cache and the optional remote store behind one
// load/save contract.
//
// Load prefers the remote tier and falls back to the local cache. Save always writes the
// local cache first and then queues a best-effort remote write. Remote failures never reach
// the caller; they are logged and surface only through Probe.
package syncstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/aouyang1/photojournal/remote"
	"github.com/aouyang1/photojournal/store"
)

const defaultRemoteTimeout = 5 * time.Second

var ErrNotFound = errors.New("no value stored for key")

// LocalStore is the always-available tier.
type LocalStore interface {
	Get(ctx context.Context, key store.Key) ([]byte, error)
	Put(ctx context.Context, key store.Key, value []byte) error
}

type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// SaveResult tells the caller what happened to a save. LocalPersisted false means the
// value lives in memory only for this cycle.
type SaveResult struct {
	LocalPersisted bool
	RemoteQueued   bool
}

type OrchestratorConfig struct {
	Local         LocalStore
	Remote        remote.Client
	RemoteTimeout time.Duration
	Logger        *slog.Logger
}

type Orchestrator struct {
	local         LocalStore
	remote        remote.Client
	remoteTimeout time.Duration
	log           *slog.Logger

	// a single worker keeps remote writes in submission order
	remotePool pond.Pool
}

func New(config OrchestratorConfig) *Orchestrator {
	timeout := config.RemoteTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}

	o := &Orchestrator{
		local:         config.Local,
		remote:        config.Remote,
		remoteTimeout: timeout,
		log:           log.With("component", "syncstore"),
	}
	if o.remote != nil {
		o.remotePool = pond.NewPool(1)
	}
	return o
}

// RemoteConfigured reports whether a remote client is present. Presence does not imply
// reachability.
func (o *Orchestrator) RemoteConfigured() bool {
	return o.remote != nil
}

// Save writes value to the local cache and queues a remote write when configured.
func (o *Orchestrator) Save(ctx context.Context, key store.Key, value []byte) SaveResult {
	var result SaveResult

	if err := o.local.Put(ctx, key, value); err != nil {
		o.log.Warn("local save failed, value is held in memory only", "key", key, "error", err)
	} else {
		result.LocalPersisted = true
	}

	if o.remote == nil {
		return result
	}

	// the caller may reuse its buffer once Save returns
	snapshot := bytes.Clone(value)

	o.remotePool.Submit(func() {
		rctx, cancel := context.WithTimeout(context.Background(), o.remoteTimeout)
		defer cancel()

		if err := o.remote.Put(rctx, string(key), snapshot); err != nil {
			o.log.Warn("remote save failed, local copy kept", "key", key, "driver", o.remote.Driver(), "reason", remote.ReasonOf(err), "error", err)
			return
		}
		o.log.Debug("remote save complete", "key", key, "driver", o.remote.Driver())
	})
	result.RemoteQueued = true

	return result
}

// RemoteWrite is a remote write waiting in the orchestrator queue.
type RemoteWrite struct {
	task pond.Task
	err  error
}

// Wait blocks until the write finished or ctx ends, returning the write's error.
func (w *RemoteWrite) Wait(ctx context.Context) error {
	if w.err != nil {
		return w.err
	}
	select {
	case <-w.task.Done():
		return w.task.Wait()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueRemote submits a remote-only write behind every write queued before it. Callers that
// hold their own lock while queueing get remote writes in the same order as their saves.
func (o *Orchestrator) QueueRemote(key store.Key, value []byte) *RemoteWrite {
	if o.remote == nil {
		return &RemoteWrite{err: &remote.ProbeError{Reason: remote.ReasonNotConfigured, Err: errors.New("remote store not configured")}}
	}

	snapshot := bytes.Clone(value)
	task := o.remotePool.SubmitErr(func() error {
		rctx, cancel := context.WithTimeout(context.Background(), o.remoteTimeout)
		defer cancel()

		if err := o.remote.Put(rctx, string(key), snapshot); err != nil {
			return fmt.Errorf("remote save %s: %w", key, err)
		}
		return nil
	})
	return &RemoteWrite{task: task}
}

// Load returns the value for key, preferring the remote tier. A remote error, a remote
// miss or a remote value that is not a JSON object falls back to the local cache.
func (o *Orchestrator) Load(ctx context.Context, key store.Key) ([]byte, Source, error) {
	if o.remote != nil {
		value, err := o.loadRemote(ctx, key)
		switch {
		case err == nil:
			return value, SourceRemote, nil
		case errors.Is(err, remote.ErrNotFound):
			o.log.Debug("key not found in remote store, falling back to local", "key", key)
		default:
			o.log.Warn("remote load failed, falling back to local", "key", key, "driver", o.remote.Driver(), "reason", remote.ReasonOf(err), "error", err)
		}
	}

	value, err := o.local.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		o.log.Warn("local load failed", "key", key, "error", err)
		return nil, "", ErrNotFound
	}
	return value, SourceLocal, nil
}

func (o *Orchestrator) loadRemote(ctx context.Context, key store.Key) ([]byte, error) {
	rctx, cancel := context.WithTimeout(ctx, o.remoteTimeout)
	defer cancel()

	value, err := o.remote.Get(rctx, string(key))
	if err != nil {
		return nil, err
	}
	if !isJSONObject(value) {
		return nil, &remote.ProbeError{Reason: remote.ReasonQueryFailed, Err: fmt.Errorf("malformed remote value for %s", key)}
	}
	return value, nil
}

// Flush waits for queued remote writes to finish or for ctx to end.
func (o *Orchestrator) Flush(ctx context.Context) error {
	if o.remote == nil {
		return nil
	}

	// the pool runs one task at a time, so the marker completes after every earlier write
	marker := o.remotePool.Submit(func() {})
	select {
	case <-marker.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains queued remote writes and releases the remote client.
func (o *Orchestrator) Close() error {
	if o.remote == nil {
		return nil
	}
	o.remotePool.Stop().Wait()
	return o.remote.Close()
}
