// Package intake turns an uploaded image file into a stored photo record.
package intake

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/aouyang1/photojournal/store"
	"github.com/aouyang1/photojournal/util"
)

const (
	DefaultMaxUploadBytes  = 20 << 20
	DefaultClassifyTimeout = 20 * time.Second
	jpegQuality            = 85
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrUndecodable     = errors.New("image could not be decoded")
	ErrTooLarge        = errors.New("image exceeds the upload limit")
)

// PhotoAdder stores a finished record.
type PhotoAdder interface {
	AddPhoto(ctx context.Context, photo store.Photo) (store.Photo, error)
}

type Config struct {
	MaxUploadBytes  int64
	MaxDimension    int
	ClassifyTimeout time.Duration
}

type Pipeline struct {
	photos     PhotoAdder
	classifier Classifier
	config     Config
	log        *slog.Logger
	now        func() time.Time
}

// NewPipeline wires the intake steps. classifier may be nil, in which case every photo gets
// DefaultClassification.
func NewPipeline(photos PhotoAdder, classifier Classifier, config Config, logger *slog.Logger) *Pipeline {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if config.ClassifyTimeout <= 0 {
		config.ClassifyTimeout = DefaultClassifyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		photos:     photos,
		classifier: classifier,
		config:     config,
		log:        logger.With("component", "intake"),
		now:        time.Now,
	}
}

// Image is a decoded upload ready to be embedded.
type Image struct {
	MIME   string
	Data   []byte
	Width  int
	Height int
}

func (img Image) DataURL() string {
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func (img Image) AspectRatio() float64 {
	return float64(img.Width) / float64(img.Height)
}

// Intake reads the file, probes its dimensions and classifies it concurrently, then prepends
// the new record to the collection. A failed classification falls back to
// DefaultClassification and never stops the photo from being added.
func (p *Pipeline) Intake(ctx context.Context, filename string, r io.Reader) (store.Photo, error) {
	data, mime, err := p.read(filename, r)
	if err != nil {
		return store.Photo{}, err
	}

	var (
		img   Image
		class Classification
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		img, err = p.decode(data, mime)
		return err
	})
	g.Go(func() error {
		class = p.classify(gctx, filename, data, mime)
		return nil
	})
	if err := g.Wait(); err != nil {
		return store.Photo{}, err
	}

	photo, err := p.photos.AddPhoto(ctx, store.Photo{
		URL:           img.DataURL(),
		Timestamp:     p.now().UnixMilli(),
		DominantColor: class.AccentColor,
		IsHeaderDark:  class.IsDark,
		AspectRatio:   img.AspectRatio(),
		Width:         img.Width,
		Height:        img.Height,
	})
	if err != nil {
		return store.Photo{}, fmt.Errorf("add photo: %w", err)
	}

	p.log.Info("photo added", "id", photo.ID, "file", filename, "width", photo.Width, "height", photo.Height, "color", photo.DominantColor)
	return photo, nil
}

// Encode reads and downsizes an image without classifying or storing it. Contact images use
// it.
func (p *Pipeline) Encode(filename string, r io.Reader) (Image, error) {
	data, mime, err := p.read(filename, r)
	if err != nil {
		return Image{}, err
	}
	return p.decode(data, mime)
}

func (p *Pipeline) read(filename string, r io.Reader) ([]byte, string, error) {
	if filename != "" && !util.IsSupportedFile(filename) {
		return nil, "", fmt.Errorf("%w: extension %q", ErrUnsupportedType, filepath.Ext(filename))
	}

	data, err := io.ReadAll(io.LimitReader(r, p.config.MaxUploadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > p.config.MaxUploadBytes {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, p.config.MaxUploadBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty file", ErrUndecodable)
	}

	mime := mimetype.Detect(data)
	if !util.SupportedMIME.Contains(mime.String()) {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, mime.String())
	}
	return data, mime.String(), nil
}

// decode probes the dimensions and downsizes images whose longest edge exceeds MaxDimension.
func (p *Pipeline) decode(data []byte, mime string) (Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Image{}, fmt.Errorf("%w: zero dimension", ErrUndecodable)
	}

	img := Image{MIME: mime, Data: data, Width: cfg.Width, Height: cfg.Height}
	maxDim := p.config.MaxDimension
	if maxDim <= 0 || max(cfg.Width, cfg.Height) <= maxDim {
		return img, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	resized := downscale(src, uint(maxDim))

	var buf bytes.Buffer
	switch mime {
	case "image/png", "image/gif":
		err = png.Encode(&buf, resized)
		img.MIME = "image/png"
	default:
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality})
		img.MIME = "image/jpeg"
	}
	if err != nil {
		return Image{}, fmt.Errorf("encode resized image: %w", err)
	}

	bounds := resized.Bounds()
	img.Data = buf.Bytes()
	img.Width = bounds.Dx()
	img.Height = bounds.Dy()
	p.log.Debug("downscaled image", "from_width", cfg.Width, "from_height", cfg.Height, "width", img.Width, "height", img.Height)
	return img, nil
}

func downscale(img image.Image, maxSize uint) image.Image {
	bounds := img.Bounds()
	width := uint(bounds.Dx())
	height := uint(bounds.Dy())

	var newWidth, newHeight uint
	if width > height {
		newWidth = maxSize
		newHeight = max(1, uint(float64(height)*(float64(maxSize)/float64(width))))
	} else {
		newHeight = maxSize
		newWidth = max(1, uint(float64(width)*(float64(maxSize)/float64(height))))
	}
	return resize.Resize(newWidth, newHeight, img, resize.Lanczos3)
}

func (p *Pipeline) classify(ctx context.Context, filename string, data []byte, mime string) Classification {
	if p.classifier == nil {
		return DefaultClassification
	}

	cctx, cancel := context.WithTimeout(ctx, p.config.ClassifyTimeout)
	defer cancel()

	class, err := p.classifier.Classify(cctx, data, mime)
	if err != nil {
		p.log.Warn("classifier failed, using default colours", "file", filename, "error", err)
		return DefaultClassification
	}
	if !validColor(class.AccentColor) {
		p.log.Warn("classifier returned an invalid colour, using default colours", "file", filename, "color", class.AccentColor)
		return DefaultClassification
	}
	return class
}
