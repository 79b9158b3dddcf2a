// Package sanitize cleans biography HTML before it is stored.
package sanitize

import (
	"bytes"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// elements removed together with everything inside them
var droppedElements = mapset.NewSet(
	atom.Script, atom.Style, atom.Iframe, atom.Object, atom.Embed,
	atom.Frame, atom.Frameset, atom.Form, atom.Base, atom.Meta, atom.Noscript,
)

// SVG animation elements can rewrite href at runtime. Foreign content keeps mixed-case names,
// so these are matched on the lowercased tag.
var droppedSVG = mapset.NewSet("animate", "animatemotion", "animatetransform", "set")

var urlAttrs = mapset.NewSet("href", "src", "action", "formaction", "xlink:href")

// Sanitizer strips active content from an HTML fragment. The zero value is ready to use.
type Sanitizer struct{}

func New() *Sanitizer {
	return &Sanitizer{}
}

// Sanitize parses fragment as the body of a document and renders it back without scripts,
// embedded frames, stylesheets, event handler attributes or javascript: URLs.
func (s *Sanitizer) Sanitize(fragment string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", fmt.Errorf("parse html fragment: %w", err)
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		clean(n)
		if dropped(n) {
			continue
		}
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render html fragment: %w", err)
		}
	}
	return buf.String(), nil
}

func dropped(n *html.Node) bool {
	if n.Type == html.CommentNode {
		return true
	}
	if n.Type != html.ElementNode {
		return false
	}
	if droppedElements.Contains(n.DataAtom) || droppedSVG.Contains(strings.ToLower(n.Data)) {
		return true
	}
	return n.DataAtom == atom.Link && strings.EqualFold(attr(n, "rel"), "stylesheet")
}

func clean(n *html.Node) {
	if n.Type == html.ElementNode {
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			key := strings.ToLower(a.Key)
			if strings.HasPrefix(key, "on") || key == "style" || key == "srcdoc" {
				continue
			}
			if urlAttrs.Contains(key) && unsafeURL(a.Val) {
				continue
			}
			kept = append(kept, a)
		}
		n.Attr = kept
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if dropped(c) {
			n.RemoveChild(c)
		} else {
			clean(c)
		}
		c = next
	}
}

func unsafeURL(v string) bool {
	v = strings.ToLower(strings.Join(strings.Fields(v), ""))
	return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:") ||
		(strings.HasPrefix(v, "data:") && !strings.HasPrefix(v, "data:image/"))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
