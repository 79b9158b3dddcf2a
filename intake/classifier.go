package intake

import (
	"context"
	"regexp"
)

// Classification is the accent colour suggested for a photo and whether text drawn over it
// should be light.
type Classification struct {
	AccentColor string
	IsDark      bool
}

// DefaultClassification is used whenever the classifier is missing, fails or answers with an
// unusable colour: white background, dark text.
var DefaultClassification = Classification{AccentColor: "#ffffff", IsDark: false}

type Classifier interface {
	Classify(ctx context.Context, img []byte, mimeType string) (Classification, error)
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func validColor(s string) bool {
	return hexColor.MatchString(s)
}
