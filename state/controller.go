// Package state owns the in-memory photo collection, contact content and admin credentials.
//
// The Controller loads all three aggregates once through the sync orchestrator and writes the
// whole aggregate back on every change. Changes requested before the load has finished are
// queued and applied on top of the loaded values, so defaults never overwrite a remote value
// that has not arrived yet.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/aouyang1/photojournal/store"
	"github.com/aouyang1/photojournal/syncstore"
)

const MinPasswordLength = 4

var (
	ErrPhotoNotFound     = errors.New("photo not found")
	ErrImageNotFound     = errors.New("contact image not found")
	ErrPasswordTooShort  = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrRemoteUnavailable = errors.New("remote store is not reachable")
	ErrInvalidDirection  = errors.New("direction must be up or down")
	ErrNotLoaded         = errors.New("app state is not loaded yet")
)

// Persister is the load/save contract the controller writes through.
type Persister interface {
	Load(ctx context.Context, key store.Key) ([]byte, syncstore.Source, error)
	Save(ctx context.Context, key store.Key, value []byte) syncstore.SaveResult
	QueueRemote(key store.Key, value []byte) *syncstore.RemoteWrite
	Probe(ctx context.Context) syncstore.ProbeResult
}

type Sanitizer interface {
	Sanitize(fragment string) (string, error)
}

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Up, Down:
		return Direction(s), nil
	}
	return "", ErrInvalidDirection
}

// PhotoPatch holds the editable photo fields. Nil fields are left unchanged.
type PhotoPatch struct {
	DateText    *string
	Description *string
}

type ControllerConfig struct {
	Store     Persister
	Sanitizer Sanitizer
	Logger    *slog.Logger
	Clock     func() time.Time
}

// change computes the next value of one aggregate. It reports the key to save, or an empty
// key when nothing changed.
type change func(c *Controller) (store.Key, error)

type Controller struct {
	store     Persister
	sanitizer Sanitizer
	log       *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	loaded   bool
	loadedCh chan struct{}
	pending  []pendingChange
	// IDs handed to queued adds, kept out of nextIDLocked until replay
	reserved mapset.Set[string]

	photos  []store.Photo
	contact store.Contact
	auth    store.AdminConfig

	sources   map[store.Key]syncstore.Source
	lastSaves map[store.Key]syncstore.SaveResult
}

type pendingChange struct {
	name  string
	apply change
}

func NewController(config ControllerConfig) *Controller {
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}

	return &Controller{
		store:     config.Store,
		sanitizer: config.Sanitizer,
		log:       log.With("component", "state"),
		now:       now,
		loadedCh:  make(chan struct{}),
		reserved:  mapset.NewThreadUnsafeSet[string](),
		photos:    []store.Photo{},
		contact:   store.DefaultContact(),
		auth:      store.DefaultAdminConfig(),
		sources:   map[store.Key]syncstore.Source{},
		lastSaves: map[store.Key]syncstore.SaveResult{},
	}
}

type loadResult struct {
	blob   []byte
	source syncstore.Source
	err    error
}

// Load reads every aggregate, applies defaults for anything missing or malformed, opens the
// loaded gate and then applies queued changes in the order they were requested. Calling Load
// again after it succeeded is a no-op.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	results := make([]loadResult, len(store.AllKeys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range store.AllKeys {
		g.Go(func() error {
			blob, source, err := c.store.Load(gctx, key)
			results[i] = loadResult{blob: blob, source: source, err: err}
			return nil
		})
	}
	_ = g.Wait()

	// a cancelled load must not open the gate with defaults
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("load app state: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	for i, key := range store.AllKeys {
		c.applyLoaded(key, results[i])
	}

	c.loaded = true
	close(c.loadedCh)

	pending := c.pending
	c.pending = nil
	for _, p := range pending {
		if err := c.run(ctx, p.apply); err != nil {
			c.log.Warn("dropping queued change", "change", p.name, "error", err)
		}
	}

	c.log.Info("app state loaded", "photos", len(c.photos), "contact_images", len(c.contact.Images), "replayed", len(pending))
	return nil
}

func (c *Controller) applyLoaded(key store.Key, res loadResult) {
	if res.err != nil {
		if !errors.Is(res.err, syncstore.ErrNotFound) {
			c.log.Warn("load failed, using defaults", "key", key, "error", res.err)
		}
		return
	}

	var err error
	switch key {
	case store.KeyPhotos:
		var photos []store.Photo
		if photos, err = decodePhotos(res.blob); err == nil {
			c.photos = photos
		}
	case store.KeyContact:
		var contact store.Contact
		if contact, err = decodeContact(res.blob); err == nil {
			c.contact = contact
		}
	case store.KeyAuth:
		var auth store.AdminConfig
		if auth, err = decodeAuth(res.blob); err == nil {
			c.auth = auth
		}
	}
	if err != nil {
		c.log.Warn("ignoring malformed value, using defaults", "key", key, "source", res.source, "error", err)
		return
	}
	c.sources[key] = res.source
}

func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// WaitLoaded blocks until Load has completed or ctx ends.
func (c *Controller) WaitLoaded(ctx context.Context) error {
	select {
	case <-c.loadedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mutate applies ch now when loaded, otherwise queues it for Load. Queued changes report no
// error to the caller.
func (c *Controller) mutate(ctx context.Context, name string, ch change) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mutateLocked(ctx, name, ch)
}

func (c *Controller) mutateLocked(ctx context.Context, name string, ch change) error {
	if !c.loaded {
		c.pending = append(c.pending, pendingChange{name: name, apply: ch})
		c.log.Debug("state not loaded yet, queued change", "change", name)
		return nil
	}
	return c.run(ctx, ch)
}

// run must be called with c.mu held.
func (c *Controller) run(ctx context.Context, ch change) error {
	key, err := ch(c)
	if err != nil || key == "" {
		return err
	}
	return c.save(ctx, key)
}

func (c *Controller) save(ctx context.Context, key store.Key) error {
	blob, err := c.encodeLocked(key)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	res := c.store.Save(ctx, key, blob)
	c.lastSaves[key] = res
	if !res.LocalPersisted {
		c.log.Warn("change kept in memory only", "key", key)
	}
	return nil
}

func (c *Controller) encodeLocked(key store.Key) ([]byte, error) {
	switch key {
	case store.KeyPhotos:
		return encode(c.photos)
	case store.KeyContact:
		return encode(c.contact)
	case store.KeyAuth:
		return encode(c.auth)
	}
	return nil, fmt.Errorf("unknown key %q", key)
}

func (c *Controller) Photos() []store.Photo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.photos)
}

func (c *Controller) Photo(id string) (store.Photo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(id)
	if i < 0 {
		return store.Photo{}, false
	}
	return c.photos[i], true
}

func (c *Controller) Contact() store.Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	contact := c.contact
	contact.Images = slices.Clone(c.contact.Images)
	return contact
}

// Sources reports which tier each loaded aggregate came from. Keys that fell back to defaults
// are absent.
func (c *Controller) Sources() map[store.Key]syncstore.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[store.Key]syncstore.Source, len(c.sources))
	for k, v := range c.sources {
		out[k] = v
	}
	return out
}

// UnpersistedKeys lists keys whose most recent save did not reach the local cache.
func (c *Controller) UnpersistedKeys() []store.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []store.Key
	for _, k := range store.AllKeys {
		if res, ok := c.lastSaves[k]; ok && !res.LocalPersisted {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *Controller) indexOf(id string) int {
	return slices.IndexFunc(c.photos, func(p store.Photo) bool { return p.ID == id })
}

// NextPhotoID returns a millisecond timestamp ID that no current photo uses.
func (c *Controller) NextPhotoID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextIDLocked(c.now().UnixMilli())
}

func (c *Controller) nextIDLocked(base int64) string {
	used := c.reserved.Clone()
	for _, p := range c.photos {
		used.Add(p.ID)
	}
	for used.Contains(strconv.FormatInt(base, 10)) {
		base++
	}
	return strconv.FormatInt(base, 10)
}

// AddPhoto puts photo at the front of the collection. An empty or taken ID is replaced.
//
// Before Load the add is queued and its ID reserved, so the returned ID is final unless the
// loaded collection already holds it. That collision is resolved at replay with a new ID and
// logged as a warning.
func (c *Controller) AddPhoto(ctx context.Context, photo store.Photo) (store.Photo, error) {
	if photo.Timestamp == 0 {
		photo.Timestamp = c.now().UnixMilli()
	}
	photo.Description = truncateRunes(photo.Description, store.MaxDescriptionLength)

	c.mu.Lock()
	defer c.mu.Unlock()
	if photo.ID == "" || c.indexOf(photo.ID) >= 0 || c.reserved.Contains(photo.ID) {
		photo.ID = c.nextIDLocked(photo.Timestamp)
	}
	if !c.loaded {
		c.reserved.Add(photo.ID)
	}

	err := c.mutateLocked(ctx, "add photo", func(c *Controller) (store.Key, error) {
		c.reserved.Remove(photo.ID)
		if c.indexOf(photo.ID) >= 0 {
			queued := photo.ID
			photo.ID = c.nextIDLocked(photo.Timestamp)
			c.log.Warn("queued photo id already loaded, assigned a new one", "id", queued, "new_id", photo.ID)
		}
		next := make([]store.Photo, 0, len(c.photos)+1)
		next = append(next, photo)
		c.photos = append(next, c.photos...)
		return store.KeyPhotos, nil
	})
	return photo, err
}

func (c *Controller) UpdatePhoto(ctx context.Context, id string, patch PhotoPatch) error {
	return c.mutate(ctx, "update photo", func(c *Controller) (store.Key, error) {
		i := c.indexOf(id)
		if i < 0 {
			return "", fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
		}
		next := slices.Clone(c.photos)
		if patch.DateText != nil {
			next[i].DateText = *patch.DateText
		}
		if patch.Description != nil {
			next[i].Description = truncateRunes(*patch.Description, store.MaxDescriptionLength)
		}
		c.photos = next
		return store.KeyPhotos, nil
	})
}

func (c *Controller) DeletePhoto(ctx context.Context, id string) error {
	return c.mutate(ctx, "delete photo", func(c *Controller) (store.Key, error) {
		i := c.indexOf(id)
		if i < 0 {
			return "", fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
		}
		c.photos = slices.Delete(slices.Clone(c.photos), i, i+1)
		return store.KeyPhotos, nil
	})
}

// MovePhoto swaps the photo with its neighbour. Moving the first photo up or the last one
// down changes nothing and saves nothing.
func (c *Controller) MovePhoto(ctx context.Context, id string, dir Direction) error {
	if _, err := ParseDirection(string(dir)); err != nil {
		return err
	}
	return c.mutate(ctx, "move photo", func(c *Controller) (store.Key, error) {
		i := c.indexOf(id)
		if i < 0 {
			return "", fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
		}
		j := i - 1
		if dir == Down {
			j = i + 1
		}
		if j < 0 || j >= len(c.photos) {
			return "", nil
		}
		next := slices.Clone(c.photos)
		next[i], next[j] = next[j], next[i]
		c.photos = next
		return store.KeyPhotos, nil
	})
}

func (c *Controller) SetContactHTML(ctx context.Context, fragment string) error {
	clean := fragment
	if c.sanitizer != nil {
		var err error
		if clean, err = c.sanitizer.Sanitize(fragment); err != nil {
			return fmt.Errorf("sanitize contact html: %w", err)
		}
	}
	return c.mutate(ctx, "set contact html", func(c *Controller) (store.Key, error) {
		c.contact = store.Contact{HTML: clean, Images: slices.Clone(c.contact.Images)}
		return store.KeyContact, nil
	})
}

func (c *Controller) AddContactImage(ctx context.Context, dataURL string) error {
	return c.mutate(ctx, "add contact image", func(c *Controller) (store.Key, error) {
		c.contact = store.Contact{HTML: c.contact.HTML, Images: append(slices.Clone(c.contact.Images), dataURL)}
		return store.KeyContact, nil
	})
}

func (c *Controller) RemoveContactImage(ctx context.Context, index int) error {
	return c.mutate(ctx, "remove contact image", func(c *Controller) (store.Key, error) {
		if index < 0 || index >= len(c.contact.Images) {
			return "", fmt.Errorf("%w: index %d", ErrImageNotFound, index)
		}
		c.contact = store.Contact{HTML: c.contact.HTML, Images: slices.Delete(slices.Clone(c.contact.Images), index, index+1)}
		return store.KeyContact, nil
	})
}

// Authenticate compares against the stored credentials by exact match.
func (c *Controller) Authenticate(user, pass string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return user != "" && user == c.auth.User && pass == c.auth.Pass
}

func (c *Controller) UpdatePassword(ctx context.Context, pass string) error {
	if utf8.RuneCountInString(pass) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return c.mutate(ctx, "update password", func(c *Controller) (store.Key, error) {
		c.auth = store.AdminConfig{User: c.auth.User, Pass: pass}
		return store.KeyAuth, nil
	})
}

// PushToRemote overwrites the remote copy of every aggregate with the in-memory value. It
// refuses to run unless the remote probe reports reachable. The writes share the remote queue
// with ordinary saves, so an edit made during the push is never overwritten by it.
func (c *Controller) PushToRemote(ctx context.Context) error {
	if !c.Loaded() {
		return ErrNotLoaded
	}

	probe := c.store.Probe(ctx)
	if probe.Status != syncstore.StatusReachable {
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, probe.Status)
	}

	// queue under the lock so every later save reaches the remote after the push
	c.mu.Lock()
	blobs := make(map[store.Key][]byte, len(store.AllKeys))
	for _, key := range store.AllKeys {
		blob, err := c.encodeLocked(key)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("encode %s: %w", key, err)
		}
		blobs[key] = blob
	}
	writes := make([]*syncstore.RemoteWrite, 0, len(store.AllKeys))
	for _, key := range store.AllKeys {
		writes = append(writes, c.store.QueueRemote(key, blobs[key]))
	}
	c.mu.Unlock()

	var errs []error
	for _, w := range writes {
		if err := w.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("push to remote: %w", err)
	}

	c.log.Info("pushed local state to remote", "driver", probe.Driver, "keys", len(store.AllKeys))
	return nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
