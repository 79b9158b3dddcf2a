package state

import (
	"encoding/json"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/aouyang1/photojournal/store"
)

// SchemaVersion is written into every persisted envelope. Values carrying any other version
// are treated as absent.
const SchemaVersion = 1

var ErrMalformed = errors.New("malformed persisted value")

type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

func encode(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{SchemaVersion: SchemaVersion, Data: raw})
}

func unwrap(blob []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: schema version %d", ErrMalformed, env.SchemaVersion)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func decodePhotos(blob []byte) ([]store.Photo, error) {
	var photos []store.Photo
	if err := unwrap(blob, &photos); err != nil {
		return nil, err
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	for i, p := range photos {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: photo %d has no id", ErrMalformed, i)
		}
		if !seen.Add(p.ID) {
			return nil, fmt.Errorf("%w: duplicate photo id %s", ErrMalformed, p.ID)
		}
		if p.AspectRatio <= 0 || p.Width <= 0 || p.Height <= 0 {
			return nil, fmt.Errorf("%w: photo %s has no dimensions", ErrMalformed, p.ID)
		}
	}
	if photos == nil {
		photos = []store.Photo{}
	}
	return photos, nil
}

func decodeContact(blob []byte) (store.Contact, error) {
	var contact store.Contact
	if err := unwrap(blob, &contact); err != nil {
		return store.Contact{}, err
	}
	if contact.Images == nil {
		contact.Images = []string{}
	}
	return contact, nil
}

func decodeAuth(blob []byte) (store.AdminConfig, error) {
	var auth store.AdminConfig
	if err := unwrap(blob, &auth); err != nil {
		return store.AdminConfig{}, err
	}
	if auth.User == "" {
		return store.AdminConfig{}, fmt.Errorf("%w: admin user is empty", ErrMalformed)
	}
	return auth, nil
}
