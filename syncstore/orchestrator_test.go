package syncstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aouyang1/photojournal/remote"
	"github.com/aouyang1/photojournal/remote/remotetest"
	"github.com/aouyang1/photojournal/store"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type brokenLocal struct{}

func (brokenLocal) Get(ctx context.Context, key store.Key) ([]byte, error) {
	return nil, errors.New("disk unavailable")
}

func (brokenLocal) Put(ctx context.Context, key store.Key, value []byte) error {
	return errors.New("disk unavailable")
}

func newLocal(t *testing.T) *store.LocalStore {
	t.Helper()
	local := store.NewLocalStore(filepath.Join(t.TempDir(), "journal.db"))
	t.Cleanup(func() { local.Close() })
	return local
}

func newOrchestrator(t *testing.T, local LocalStore, rc remote.Client) *Orchestrator {
	t.Helper()
	o := New(OrchestratorConfig{
		Local:         local,
		Remote:        rc,
		RemoteTimeout: time.Second,
		Logger:        quietLog,
	})
	t.Cleanup(func() { o.Close() })
	return o
}

func TestOrchestrator_LocalOnlyRoundTrip(t *testing.T) {
	ctx := context.Background()
	o := newOrchestrator(t, newLocal(t), nil)
	assert.False(t, o.RemoteConfigured())

	res := o.Save(ctx, store.KeyPhotos, []byte(`{"schema_version":1,"data":[]}`))
	assert.True(t, res.LocalPersisted)
	assert.False(t, res.RemoteQueued)

	value, source, err := o.Load(ctx, store.KeyPhotos)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, source)
	assert.JSONEq(t, `{"schema_version":1,"data":[]}`, string(value))

	require.NoError(t, o.Flush(ctx))
}

func TestOrchestrator_EmptyEverywhere(t *testing.T) {
	o := newOrchestrator(t, newLocal(t), remotetest.NewFake())

	_, _, err := o.Load(context.Background(), store.KeyContact)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrchestrator_RemotePreferred(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	require.NoError(t, local.Put(ctx, store.KeyContact, []byte(`{"source":"local"}`)))

	rc := remotetest.NewFake()
	rc.Seed("contact", []byte(`{"source":"remote"}`))
	o := newOrchestrator(t, local, rc)

	value, source, err := o.Load(ctx, store.KeyContact)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, source)
	assert.JSONEq(t, `{"source":"remote"}`, string(value))
}

func TestOrchestrator_FallsBackToLocal(t *testing.T) {
	ctx := context.Background()

	for name, setup := range map[string]func(rc *remotetest.Fake){
		"remote miss":      func(rc *remotetest.Fake) {},
		"remote error":     func(rc *remotetest.Fake) { rc.GetErr = errors.New("connection reset") },
		"malformed remote": func(rc *remotetest.Fake) { rc.Seed("contact", []byte(`[1,2,3`)) },
		"non object":       func(rc *remotetest.Fake) { rc.Seed("contact", []byte(`"just a string"`)) },
	} {
		t.Run(name, func(t *testing.T) {
			local := newLocal(t)
			require.NoError(t, local.Put(ctx, store.KeyContact, []byte(`{"source":"local"}`)))

			rc := remotetest.NewFake()
			setup(rc)
			o := newOrchestrator(t, local, rc)

			value, source, err := o.Load(ctx, store.KeyContact)
			require.NoError(t, err)
			assert.Equal(t, SourceLocal, source)
			assert.JSONEq(t, `{"source":"local"}`, string(value))
		})
	}
}

func TestOrchestrator_LocalFailureIsNotFound(t *testing.T) {
	o := newOrchestrator(t, brokenLocal{}, nil)

	_, _, err := o.Load(context.Background(), store.KeyAuth)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrchestrator_SaveWritesBothTiers(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	rc := remotetest.NewFake()
	o := newOrchestrator(t, local, rc)

	buf := []byte(`{"n":1}`)
	res := o.Save(ctx, store.KeyAuth, buf)
	assert.True(t, res.LocalPersisted)
	assert.True(t, res.RemoteQueued)

	// reusing the buffer after Save must not change what reaches the remote
	copy(buf, []byte(`{"n":2}`))

	require.NoError(t, o.Flush(ctx))

	got, ok := rc.Value("auth")
	require.True(t, ok)
	assert.JSONEq(t, `{"n":1}`, string(got))

	stored, err := local.Get(ctx, store.KeyAuth)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(stored))
}

func TestOrchestrator_RemoteWritesKeepOrder(t *testing.T) {
	ctx := context.Background()
	rc := remotetest.NewFake()
	o := newOrchestrator(t, newLocal(t), rc)

	o.Save(ctx, store.KeyPhotos, []byte(`{"v":1}`))
	o.Save(ctx, store.KeyContact, []byte(`{"v":1}`))
	o.Save(ctx, store.KeyPhotos, []byte(`{"v":2}`))
	require.NoError(t, o.Flush(ctx))

	assert.Equal(t, []string{"photos", "contact", "photos"}, rc.Puts())
	got, _ := rc.Value("photos")
	assert.JSONEq(t, `{"v":2}`, string(got))
}

func TestOrchestrator_RemoteFailureIsSilent(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	rc := remotetest.NewFake()
	rc.PutErr = &remote.ProbeError{Reason: remote.ReasonRejected, Err: errors.New("bad key")}
	o := newOrchestrator(t, local, rc)

	res := o.Save(ctx, store.KeyContact, []byte(`{"html":"hi"}`))
	assert.True(t, res.LocalPersisted)
	require.NoError(t, o.Flush(ctx))

	stored, err := local.Get(ctx, store.KeyContact)
	require.NoError(t, err)
	assert.JSONEq(t, `{"html":"hi"}`, string(stored))
}

func TestOrchestrator_LocalFailureReported(t *testing.T) {
	ctx := context.Background()
	rc := remotetest.NewFake()
	o := newOrchestrator(t, brokenLocal{}, rc)

	res := o.Save(ctx, store.KeyContact, []byte(`{"html":"hi"}`))
	assert.False(t, res.LocalPersisted)
	assert.True(t, res.RemoteQueued)

	require.NoError(t, o.Flush(ctx))
	_, ok := rc.Value("contact")
	assert.True(t, ok)
}

func TestOrchestrator_QueueRemote(t *testing.T) {
	ctx := context.Background()

	o := newOrchestrator(t, newLocal(t), nil)
	err := o.QueueRemote(store.KeyPhotos, []byte(`{}`)).Wait(ctx)
	require.Error(t, err)
	assert.Equal(t, remote.ReasonNotConfigured, remote.ReasonOf(err))

	rc := remotetest.NewFake()
	o = newOrchestrator(t, newLocal(t), rc)
	require.NoError(t, o.QueueRemote(store.KeyPhotos, []byte(`{}`)).Wait(ctx))
	_, ok := rc.Value("photos")
	assert.True(t, ok)

	rc.PutErr = errors.New("timeout")
	assert.Error(t, o.QueueRemote(store.KeyPhotos, []byte(`{}`)).Wait(ctx))
}

func TestOrchestrator_QueueRemoteKeepsSaveOrder(t *testing.T) {
	ctx := context.Background()
	rc := remotetest.NewFake()
	o := newOrchestrator(t, newLocal(t), rc)

	queued := o.QueueRemote(store.KeyPhotos, []byte(`{"v":"queued"}`))
	o.Save(ctx, store.KeyPhotos, []byte(`{"v":"saved"}`))
	require.NoError(t, queued.Wait(ctx))
	require.NoError(t, o.Flush(ctx))

	got, ok := rc.Value("photos")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":"saved"}`, string(got))
}

func TestOrchestrator_Probe(t *testing.T) {
	ctx := context.Background()

	unconfigured := newOrchestrator(t, newLocal(t), nil).Probe(ctx)
	assert.Equal(t, StatusNotConfigured, unconfigured.Status)
	assert.Equal(t, remote.ReasonNotConfigured, unconfigured.Reason)
	assert.True(t, unconfigured.LocalOnly())
	assert.NotEmpty(t, unconfigured.Remediation)

	rc := remotetest.NewFake()
	o := newOrchestrator(t, newLocal(t), rc)
	ok := o.Probe(ctx)
	assert.Equal(t, StatusReachable, ok.Status)
	assert.Equal(t, "fake", ok.Driver)
	assert.False(t, ok.LocalOnly())
	assert.Empty(t, ok.Remediation)

	rc.ProbeErr = &remote.ProbeError{Reason: remote.ReasonRejected, Err: errors.New("password authentication failed")}
	rejected := o.Probe(ctx)
	assert.Equal(t, StatusUnreachable, rejected.Status)
	assert.Equal(t, remote.ReasonRejected, rejected.Reason)
	assert.NotEqual(t, unconfigured.Remediation, rejected.Remediation)
	assert.Contains(t, rejected.Detail, "password authentication failed")

	rc.ProbeErr = errors.New("dial tcp: i/o timeout")
	down := o.Probe(ctx)
	assert.Equal(t, remote.ReasonUnreachable, down.Reason)
}

func TestIsJSONObject(t *testing.T) {
	assert.True(t, isJSONObject([]byte(` {"a":1} `)))
	assert.False(t, isJSONObject([]byte(`[]`)))
	assert.False(t, isJSONObject([]byte(`{"a":`)))
	assert.False(t, isJSONObject(nil))
}
