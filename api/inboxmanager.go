package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/aouyang1/photojournal/store"
	"github.com/aouyang1/photojournal/util"
)

const (
	defaultInboxInterval = time.Minute
	importedDir          = "imported"
)

type Importer interface {
	Intake(ctx context.Context, filename string, r io.Reader) (store.Photo, error)
}

// InboxManager imports image files dropped into a directory. Imported files are moved to
// the imported/ subdirectory. Files that fail to import are remembered and skipped until
// they change name.
type InboxManager struct {
	path     string
	interval time.Duration

	importer Importer
	failed   mapset.Set[string]

	Updated chan bool
}

func NewInboxManager(path string, interval time.Duration, importer Importer) (*InboxManager, error) {
	if path == "" {
		return nil, errors.New("no inbox directory provided")
	}
	if importer == nil {
		return nil, errors.New("no importer provided for inbox")
	}
	if interval <= 0 {
		interval = defaultInboxInterval
	}
	if err := os.MkdirAll(filepath.Join(path, importedDir), 0o755); err != nil {
		return nil, err
	}

	return &InboxManager{
		path:     path,
		interval: interval,
		importer: importer,
		failed:   mapset.NewSet[string](),
		Updated:  make(chan bool, 1),
	}, nil
}

type fileInfo struct {
	name    string
	modTime time.Time
	path    string
}

func (m *InboxManager) getCurrentFiles() (mapset.Set[string], []fileInfo, error) {
	dirs, err := os.ReadDir(m.path)
	if err != nil {
		return nil, nil, err
	}

	currentFiles := mapset.NewSet[string]()
	var fileInfos []fileInfo

	for _, dir := range dirs {
		if dir.IsDir() {
			continue
		}
		name := dir.Name()
		if !util.IsSupportedFile(name) {
			continue
		}

		info, err := dir.Info()
		if err != nil {
			continue
		}

		currentFiles.Add(name)
		fileInfos = append(fileInfos, fileInfo{
			name:    name,
			modTime: info.ModTime(),
			path:    filepath.Join(m.path, name),
		})
	}

	return currentFiles, fileInfos, nil
}

func (m *InboxManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan imports every new file, oldest first so the newest ends up at the front of the
// collection. It returns the number of photos imported.
func (m *InboxManager) Scan(ctx context.Context) int {
	currentFiles, fileInfos, err := m.getCurrentFiles()
	if err != nil {
		slog.Warn("error reading inbox directory", "path", m.path, "error", err)
		return 0
	}

	// forget failures whose files are gone
	m.failed = m.failed.Intersect(currentFiles)
	pending := currentFiles.Difference(m.failed)
	if pending.Cardinality() == 0 {
		return 0
	}

	sort.Slice(fileInfos, func(i, j int) bool {
		return fileInfos[i].modTime.Before(fileInfos[j].modTime)
	})

	imported := 0
	for _, fi := range fileInfos {
		if !pending.Contains(fi.name) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if err := m.importFile(ctx, fi); err != nil {
			slog.Warn("unable to import inbox photo", "name", fi.name, "error", err)
			m.failed.Add(fi.name)
			continue
		}
		imported++
	}

	if imported > 0 {
		slog.Info("imported inbox photos", "count", imported)
		select {
		case m.Updated <- true:
		default:
			// Channel is full, skip
		}
	}
	return imported
}

func (m *InboxManager) importFile(ctx context.Context, fi fileInfo) error {
	f, err := os.Open(fi.path)
	if err != nil {
		return err
	}
	photo, err := m.importer.Intake(ctx, fi.name, f)
	f.Close()
	if err != nil {
		return err
	}

	dst := filepath.Join(m.path, importedDir, fi.name)
	if err := os.Rename(fi.path, dst); err != nil {
		// a stored photo must not be imported again
		slog.Warn("unable to move imported photo, removing it", "name", fi.name, "error", err)
		if err := os.Remove(fi.path); err != nil {
			return err
		}
	}
	slog.Debug("imported inbox photo", "name", fi.name, "id", photo.ID)
	return nil
}
