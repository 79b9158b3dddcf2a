package intake

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// VisionClassifier picks the accent colour from Google Cloud Vision image properties.
type VisionClassifier struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionClassifier builds a client from an API key or, failing that, from service account
// credentials given either as inline JSON or as a file path.
func NewVisionClassifier(ctx context.Context, apiKey, credentials string) (*VisionClassifier, error) {
	var opts []option.ClientOption
	apiKey = strings.TrimSpace(apiKey)
	credentials = strings.TrimSpace(credentials)
	switch {
	case apiKey != "":
		opts = append(opts, option.WithAPIKey(apiKey))
	case strings.HasPrefix(credentials, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(credentials)))
	case credentials != "":
		opts = append(opts, option.WithCredentialsFile(credentials))
	default:
		return nil, errors.New("no classifier credential provided")
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionClassifier{client: client}, nil
}

func (v *VisionClassifier) Classify(ctx context.Context, img []byte, mimeType string) (Classification, error) {
	if len(img) == 0 {
		return Classification{}, errors.New("empty image")
	}

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_IMAGE_PROPERTIES, MaxResults: 10},
		},
	}
	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return Classification{}, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return Classification{}, errors.New("vision returned no response")
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return Classification{}, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	return classifyColors(r0.GetImagePropertiesAnnotation().GetDominantColors().GetColors())
}

func (v *VisionClassifier) Close() error {
	return v.client.Close()
}

// classifyColors picks the colour covering the most of the image weighted by its score.
func classifyColors(colors []*visionpb.ColorInfo) (Classification, error) {
	var (
		best   *visionpb.ColorInfo
		weight = -1.0
	)
	for _, c := range colors {
		if c.GetColor() == nil {
			continue
		}
		w := float64(c.GetScore()) * float64(c.GetPixelFraction())
		if w > weight {
			best, weight = c, w
		}
	}
	if best == nil {
		return Classification{}, errors.New("vision found no dominant colours")
	}

	r := channel(best.GetColor().GetRed())
	g := channel(best.GetColor().GetGreen())
	b := channel(best.GetColor().GetBlue())
	return Classification{
		AccentColor: fmt.Sprintf("#%02x%02x%02x", r, g, b),
		IsDark:      brightness(r, g, b) < 0.5,
	}, nil
}

func channel(v float32) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, float64(v)))))
}

// brightness is the perceived brightness of a colour in [0, 1].
func brightness(r, g, b uint8) float64 {
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 255
}
