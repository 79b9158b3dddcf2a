package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aouyang1/photojournal/store"
)

func TestEncodeWritesEnvelope(t *testing.T) {
	blob, err := encode(store.AdminConfig{User: "admin", Pass: "pw"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"schema_version":1,"data":{"user":"admin","pass":"pw"}}`, string(blob))
}

func TestDecodePhotos(t *testing.T) {
	good := `{"schema_version":1,"data":[{"id":"2","url":"data:image/png;base64,AA","timestamp":2,"dominantColor":"#000000","isHeaderDark":true,"aspectRatio":2,"width":4,"height":2}]}`
	photos, err := decodePhotos([]byte(good))
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.True(t, photos[0].IsHeaderDark)

	empty, err := decodePhotos([]byte(`{"schema_version":1,"data":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, empty)

	for name, blob := range map[string]string{
		"not json":       `[`,
		"bare array":     `[]`,
		"wrong version":  `{"schema_version":0,"data":[]}`,
		"missing data":   `{"schema_version":1}`,
		"null data":      `{"schema_version":1,"data":null}`,
		"object data":    `{"schema_version":1,"data":{}}`,
		"missing id":     `{"schema_version":1,"data":[{"aspectRatio":1,"width":1,"height":1}]}`,
		"duplicate id":   `{"schema_version":1,"data":[{"id":"1","aspectRatio":1,"width":1,"height":1},{"id":"1","aspectRatio":1,"width":1,"height":1}]}`,
		"no aspectRatio": `{"schema_version":1,"data":[{"id":"1","width":1,"height":1}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodePhotos([]byte(blob))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeContact(t *testing.T) {
	contact, err := decodeContact([]byte(`{"schema_version":1,"data":{"html":"<p>x</p>"}}`))
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", contact.HTML)
	assert.Equal(t, []string{}, contact.Images)

	_, err = decodeContact([]byte(`{"schema_version":1,"data":"<p>x</p>"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeAuth(t *testing.T) {
	auth, err := decodeAuth([]byte(`{"schema_version":1,"data":{"user":"me","pass":"pw"}}`))
	require.NoError(t, err)
	assert.Equal(t, store.AdminConfig{User: "me", Pass: "pw"}, auth)

	_, err = decodeAuth([]byte(`{"schema_version":1,"data":{"pass":"pw"}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}
