// Package util is a set of utility variables or methods
package util

import (
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
)

var SupportedExt = mapset.NewSet(
	".jpeg", ".jpg", ".JPEG", ".JPG",
	".png", ".PNG",
	".gif", ".GIF",
	".webp", ".WEBP",
)

var SupportedMIME = mapset.NewSet(
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
)

// IsSupportedFile reports whether the file name carries an image extension the journal accepts.
func IsSupportedFile(name string) bool {
	return SupportedExt.Contains(filepath.Ext(name))
}
