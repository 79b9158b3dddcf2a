package api

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aouyang1/photojournal/store"
)

type fakeImporter struct {
	mu    sync.Mutex
	names []string
	fail  map[string]bool
}

func (f *fakeImporter) Intake(ctx context.Context, filename string, r io.Reader) (store.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := io.ReadAll(r); err != nil {
		return store.Photo{}, err
	}
	f.names = append(f.names, filename)
	if f.fail[filename] {
		return store.Photo{}, errors.New("cannot import")
	}
	return store.Photo{ID: filename}, nil
}

func writeInboxFile(t *testing.T, dir, name string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestNewInboxManager(t *testing.T) {
	_, err := NewInboxManager("", time.Second, &fakeImporter{})
	assert.Error(t, err)
	_, err = NewInboxManager(t.TempDir(), time.Second, nil)
	assert.Error(t, err)

	dir := t.TempDir()
	m, err := NewInboxManager(dir, 0, &fakeImporter{})
	require.NoError(t, err)
	assert.Equal(t, defaultInboxInterval, m.interval)
	assert.DirExists(t, filepath.Join(dir, importedDir))
}

func TestInboxManager_ScanImportsOldestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writeInboxFile(t, dir, "new.jpg", base.Add(2*time.Minute))
	writeInboxFile(t, dir, "old.png", base)
	writeInboxFile(t, dir, "notes.txt", base)

	importer := &fakeImporter{}
	m, err := NewInboxManager(dir, time.Minute, importer)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Scan(context.Background()))
	assert.Equal(t, []string{"old.png", "new.jpg"}, importer.names)
	assert.FileExists(t, filepath.Join(dir, importedDir, "old.png"))
	assert.FileExists(t, filepath.Join(dir, importedDir, "new.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "old.png"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.Len(t, m.Updated, 1)

	assert.Equal(t, 0, m.Scan(context.Background()))
	assert.Len(t, importer.names, 2)
}

func TestInboxManager_FailedFilesSkipped(t *testing.T) {
	dir := t.TempDir()
	writeInboxFile(t, dir, "broken.png", time.Now())

	importer := &fakeImporter{fail: map[string]bool{"broken.png": true}}
	m, err := NewInboxManager(dir, time.Minute, importer)
	require.NoError(t, err)

	assert.Equal(t, 0, m.Scan(context.Background()))
	assert.Equal(t, 0, m.Scan(context.Background()))
	assert.Equal(t, []string{"broken.png"}, importer.names)
	assert.FileExists(t, filepath.Join(dir, "broken.png"))
	assert.Len(t, m.Updated, 0)

	// a removed failure is forgotten, so a new file with the same name is tried again
	require.NoError(t, os.Remove(filepath.Join(dir, "broken.png")))
	m.Scan(context.Background())
	assert.False(t, m.failed.Contains("broken.png"))
}
