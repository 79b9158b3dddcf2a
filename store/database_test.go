package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(filepath.Join(t.TempDir(), "nested", "journal.db"))
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Put(ctx, KeyPhotos, []byte(`{"a":1}`)))
	got, err := s.Get(ctx, KeyPhotos)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	// overwrite replaces the whole value
	require.NoError(t, s.Put(ctx, KeyPhotos, []byte(`{"b":2}`)))
	got, err = s.Get(ctx, KeyPhotos)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(got))

	ts, err := s.UpdatedAt(ctx, KeyPhotos)
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}

func TestLocalStore_MissingKey(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "journal.db"))
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Get(context.Background(), KeyAuth)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_LazyProvisioning(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "lazy")
	s := NewLocalStore(filepath.Join(dir, "journal.db"))
	t.Cleanup(func() { _ = s.Close() })

	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err), "directory must not exist before first use")

	_, err = s.Get(context.Background(), KeyContact)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestLocalStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	s := NewLocalStore(path)
	require.NoError(t, s.Put(ctx, KeyContact, []byte(`{"html":"hi"}`)))
	require.NoError(t, s.Close())

	reopened := NewLocalStore(path)
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.Get(ctx, KeyContact)
	require.NoError(t, err)
	assert.JSONEq(t, `{"html":"hi"}`, string(got))
}

func TestLocalStore_UnavailableReportsError(t *testing.T) {
	// a regular file where the directory should be makes provisioning fail
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := NewLocalStore(filepath.Join(blocker, "journal.db"))
	err := s.Put(context.Background(), KeyPhotos, []byte(`[]`))
	assert.Error(t, err)
}

func TestKeyValid(t *testing.T) {
	for _, k := range AllKeys {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Key("settings").Valid())
}
