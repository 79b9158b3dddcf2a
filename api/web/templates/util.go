package templates

import (
	"fmt"
	"net/url"

	"github.com/aouyang1/photojournal/store"
)

func photoImageURL(photo store.Photo) string {
	return fmt.Sprintf("/photos/%s/image", url.PathEscape(photo.ID))
}

func moveURL(photo store.Photo, direction string) string {
	return fmt.Sprintf("/admin/photos/%s/move/%s", url.PathEscape(photo.ID), direction)
}

func deleteURL(photo store.Photo) string {
	return fmt.Sprintf("/admin/photos/%s", url.PathEscape(photo.ID))
}

func contactImageDeleteURL(index int) string {
	return fmt.Sprintf("/admin/contact/images/%d", index)
}

func photoAlt(photo store.Photo) string {
	if photo.DateText != "" {
		return photo.DateText
	}
	return "photo " + photo.ID
}
