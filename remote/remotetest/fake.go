// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"bytes"
	"context"
	"sync"

	"github.com/aouyang1/photojournal/remote"
)

// Fake is an in-memory remote.Client. GetErr, PutErr and ProbeErr, when set, are returned
// by the matching call. A non-nil Gate blocks Get until it is closed.
type Fake struct {
	mu   sync.Mutex
	data map[string][]byte
	puts []string

	GetErr   error
	PutErr   error
	ProbeErr error
	Gate     chan struct{}
}

func NewFake() *Fake {
	return &Fake{data: map[string][]byte{}}
}

func (f *Fake) Driver() string {
	return "fake"
}

func (f *Fake) Seed(key string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = bytes.Clone(value)
}

func (f *Fake) Value(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return bytes.Clone(v), ok
}

// Puts returns the keys written so far in order.
func (f *Fake) Puts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}

func (f *Fake) Get(ctx context.Context, key string) ([]byte, error) {
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (f *Fake) Put(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PutErr != nil {
		return f.PutErr
	}
	f.data[key] = bytes.Clone(value)
	f.puts = append(f.puts, key)
	return nil
}

func (f *Fake) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ProbeErr
}

func (f *Fake) Close() error {
	return nil
}
