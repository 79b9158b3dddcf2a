package store

import mapset "github.com/deckarep/golang-set/v2"

// Key names one persisted aggregate.
type Key string

const (
	KeyPhotos  Key = "photos"
	KeyContact Key = "contact"
	KeyAuth    Key = "auth"
)

// AllKeys is the fixed set of logical keys in load/push order.
var AllKeys = []Key{KeyPhotos, KeyContact, KeyAuth}

var knownKeys = mapset.NewSet(AllKeys...)

// Valid reports whether k is one of the fixed logical keys.
func (k Key) Valid() bool {
	return knownKeys.Contains(k)
}

func (k Key) String() string {
	return string(k)
}

const MaxDescriptionLength = 350

type Photo struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	Timestamp     int64   `json:"timestamp"`
	DominantColor string  `json:"dominantColor"`
	IsHeaderDark  bool    `json:"isHeaderDark"`
	AspectRatio   float64 `json:"aspectRatio"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	DateText      string  `json:"dateText,omitempty"`
	Description   string  `json:"description,omitempty"`
}

type Contact struct {
	HTML   string   `json:"html"`
	Images []string `json:"images"`
}

type AdminConfig struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

const DefaultContactHTML = `
  <h2 style="font-size: 2rem; font-weight: 300;">Hello.</h2>
  <p>I am Ariel, a casual photographer exploring the nuances of everyday life through my lens.</p>
  <p>This journal serves as a chronological archive of moments captured.</p>
`

func DefaultContact() Contact {
	return Contact{
		HTML:   DefaultContactHTML,
		Images: []string{},
	}
}

func DefaultAdminConfig() AdminConfig {
	return AdminConfig{
		User: "admin",
		Pass: "admin123",
	}
}
