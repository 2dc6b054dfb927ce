// Package capture validates classroom photos before they are sent to the encoder.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"slices"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
)

var (
	// ErrEmpty is returned for an upload without content.
	ErrEmpty = errors.New("image is empty")
	// ErrTooLarge is returned when the upload exceeds the size limit.
	ErrTooLarge = errors.New("image exceeds the upload size limit")
	// ErrUnsupportedFormat is returned when the content is not an allowed image type.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Image is a validated capture ready for the encoder.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
	// Resized is true when the image was downscaled and re-encoded as JPEG.
	Resized bool
}

// Intake validates and downscales capture images.
type Intake struct {
	maxBytes  int64
	maxDim    int
	maxPixels int64
	allowed   []string
}

// NewIntake creates an intake from the capture configuration.
func NewIntake(cfg *config.CaptureConfig) *Intake {
	in := &Intake{
		maxBytes:  cfg.MaxUploadBytes,
		maxDim:    cfg.MaxDimension,
		maxPixels: constants.MaxCapturePixels,
		allowed:   cfg.AllowedFormats,
	}
	if in.maxBytes <= 0 {
		in.maxBytes = constants.MaxUploadSize
	}
	if in.maxDim <= 0 {
		in.maxDim = constants.MaxImageSize
	}
	if len(in.allowed) == 0 {
		in.allowed = []string{"jpeg", "png", "webp"}
	}
	return in
}

// MaxBytes returns the upload size limit.
func (in *Intake) MaxBytes() int64 {
	return in.maxBytes
}

// Prepare checks the size and format of data, which is detected from the
// content rather than from any file name. Images larger than the maximum
// dimension are downscaled to fit, keeping the aspect ratio.
func (in *Intake) Prepare(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > in.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), in.maxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	if !slices.Contains(in.allowed, format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	// A small compressed file may declare huge dimensions; decoding it would
	// allocate the full bitmap.
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > in.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d pixels, limit %d", ErrTooLarge, cfg.Width, cfg.Height, in.maxPixels)
	}

	if cfg.Width <= in.maxDim && cfg.Height <= in.maxDim {
		return &Image{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
	}

	return in.downscale(data)
}

func (in *Intake) downscale(data []byte) (*Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var newWidth, newHeight int
	if width > height {
		newWidth = in.maxDim
		newHeight = max(1, int(float64(height)*float64(in.maxDim)/float64(width)))
	} else {
		newHeight = in.maxDim
		newWidth = max(1, int(float64(width)*float64(in.maxDim)/float64(height)))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return &Image{
		Data:    buf.Bytes(),
		Format:  "jpeg",
		Width:   newWidth,
		Height:  newHeight,
		Resized: true,
	}, nil
}
