// Package templates renders the HTML fragments the journal pages swap in with htmx.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/aouyang1/photojournal/store"
	"github.com/aouyang1/photojournal/syncstore"
)

func esc(s string) string {
	return templ.EscapeString(s)
}

// Gallery is the public grid in curation order.
func Gallery(photos []store.Photo) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<div class=\"gallery\">\n")
		for _, photo := range photos {
			fmt.Fprintf(&b, "  <figure class=\"gallery-item\" style=\"background-color: %s\" data-dark=\"%t\">\n",
				esc(photo.DominantColor), photo.IsHeaderDark)
			fmt.Fprintf(&b, "    <img src=\"%s\" alt=\"%s\" width=\"%d\" height=\"%d\" loading=\"lazy\" />\n",
				esc(photoImageURL(photo)), esc(photoAlt(photo)), photo.Width, photo.Height)
			if photo.DateText != "" || photo.Description != "" {
				b.WriteString("    <figcaption>")
				if photo.DateText != "" {
					fmt.Fprintf(&b, "<span class=\"date\">%s</span>", esc(photo.DateText))
				}
				if photo.Description != "" {
					fmt.Fprintf(&b, "<p>%s</p>", esc(photo.Description))
				}
				b.WriteString("</figcaption>\n")
			}
			b.WriteString("  </figure>\n")
		}
		b.WriteString("</div>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// AdminGallery adds move and delete controls to each photo.
func AdminGallery(photos []store.Photo) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<div id=\"admin-photos\" class=\"photo-row\">\n")
		for i, photo := range photos {
			b.WriteString("  <div class=\"photo-item\">\n")
			fmt.Fprintf(&b, "    <img src=\"%s\" alt=\"%s\" class=\"photo-thumbnail\" />\n",
				esc(photoImageURL(photo)), esc(photoAlt(photo)))
			fmt.Fprintf(&b, "    <span class=\"photo-color\" style=\"background-color: %s\"></span>\n", esc(photo.DominantColor))
			if i > 0 {
				fmt.Fprintf(&b, "    <button class=\"photo-move-btn\" title=\"Move up\" hx-post=\"%s\" hx-target=\"#admin-photos\" hx-swap=\"outerHTML\">"+
					"<i class=\"fa-solid fa-arrow-up\"></i></button>\n", esc(moveURL(photo, "up")))
			}
			if i < len(photos)-1 {
				fmt.Fprintf(&b, "    <button class=\"photo-move-btn\" title=\"Move down\" hx-post=\"%s\" hx-target=\"#admin-photos\" hx-swap=\"outerHTML\">"+
					"<i class=\"fa-solid fa-arrow-down\"></i></button>\n", esc(moveURL(photo, "down")))
			}
			fmt.Fprintf(&b, "    <button class=\"photo-delete-btn\" title=\"Delete photo\" hx-delete=\"%s\" hx-target=\"#admin-photos\" "+
				"hx-swap=\"outerHTML\" hx-confirm=\"Delete this photo?\"><i class=\"fa-solid fa-trash-can\"></i></button>\n",
				esc(deleteURL(photo)))
			b.WriteString("  </div>\n")
		}
		b.WriteString("</div>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// Contact renders the biography. html must already be sanitized.
func Contact(contact store.Contact, admin bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<section class=\"contact\">\n  <div class=\"bio\">")
		if err := templ.Raw(contact.HTML).Render(ctx, &b); err != nil {
			return err
		}
		b.WriteString("</div>\n")
		if len(contact.Images) > 0 {
			b.WriteString("  <div class=\"contact-images\">\n")
			for i, img := range contact.Images {
				fmt.Fprintf(&b, "    <img src=\"%s\" alt=\"profile %d\" />\n", esc(img), i+1)
				if admin {
					fmt.Fprintf(&b, "    <button class=\"photo-delete-btn\" hx-delete=\"%s\" hx-confirm=\"Remove this image?\">"+
						"<i class=\"fa-solid fa-trash-can\"></i></button>\n", esc(contactImageDeleteURL(i)))
				}
			}
			b.WriteString("  </div>\n")
		}
		b.WriteString("</section>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// Banner warns the admin when saves only reach this machine. It renders nothing while the
// remote store is reachable.
func Banner(probe syncstore.ProbeResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if !probe.LocalOnly() {
			return nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "<div class=\"banner banner-warning\" role=\"alert\" data-status=\"%s\" data-reason=\"%s\">\n",
			esc(string(probe.Status)), esc(string(probe.Reason)))
		b.WriteString("  <strong>Saving locally only.</strong>\n")
		fmt.Fprintf(&b, "  <p>%s</p>\n", esc(probe.Remediation))
		if probe.Status == syncstore.StatusUnreachable && probe.Detail != "" {
			fmt.Fprintf(&b, "  <details><summary>Details</summary><code>%s</code></details>\n", esc(probe.Detail))
		}
		b.WriteString("</div>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}
