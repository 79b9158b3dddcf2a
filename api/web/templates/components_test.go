package templates

import (
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aouyang1/photojournal/remote"
	"github.com/aouyang1/photojournal/store"
	"github.com/aouyang1/photojournal/syncstore"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, c.Render(context.Background(), &b))
	return b.String()
}

func TestGallery(t *testing.T) {
	html := render(t, Gallery([]store.Photo{
		{ID: "1", DominantColor: "#102030", Width: 4, Height: 2, DateText: "<b>June</b>"},
		{ID: "2", DominantColor: "#ffffff", Width: 1, Height: 1},
	}))

	assert.Contains(t, html, `src="/photos/1/image"`)
	assert.Contains(t, html, "background-color: #102030")
	assert.Contains(t, html, "&lt;b&gt;June&lt;/b&gt;")
	assert.Less(t, strings.Index(html, "/photos/1/image"), strings.Index(html, "/photos/2/image"))
}

func TestAdminGallery_MoveButtonsAtEnds(t *testing.T) {
	html := render(t, AdminGallery([]store.Photo{{ID: "a"}, {ID: "b"}}))

	assert.NotContains(t, html, "/admin/photos/a/move/up")
	assert.Contains(t, html, "/admin/photos/a/move/down")
	assert.Contains(t, html, "/admin/photos/b/move/up")
	assert.NotContains(t, html, "/admin/photos/b/move/down")
	assert.Contains(t, html, `hx-delete="/admin/photos/b"`)
}

func TestContact(t *testing.T) {
	contact := store.Contact{HTML: "<p>Hello.</p>", Images: []string{"data:image/png;base64,AA"}}

	public := render(t, Contact(contact, false))
	assert.Contains(t, public, "<p>Hello.</p>")
	assert.Contains(t, public, `src="data:image/png;base64,AA"`)
	assert.NotContains(t, public, "/admin/contact/images/0")

	admin := render(t, Contact(contact, true))
	assert.Contains(t, admin, "/admin/contact/images/0")
}

func TestBanner(t *testing.T) {
	assert.Empty(t, render(t, Banner(syncstore.ProbeResult{Status: syncstore.StatusReachable})))

	html := render(t, Banner(syncstore.ProbeResult{
		Status:      syncstore.StatusNotConfigured,
		Reason:      remote.ReasonNotConfigured,
		Remediation: "Set the remote url",
	}))
	assert.Contains(t, html, `data-status="not_configured"`)
	assert.Contains(t, html, "Set the remote url")
	assert.NotContains(t, html, "<details>")

	html = render(t, Banner(syncstore.ProbeResult{
		Status: syncstore.StatusUnreachable,
		Reason: remote.ReasonRejected,
		Detail: "password authentication failed",
	}))
	assert.Contains(t, html, `data-reason="credentials_rejected"`)
	assert.Contains(t, html, "password authentication failed")
}
