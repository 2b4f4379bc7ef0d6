package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"scan2sheet/pkg/models"
)

const (
	// DefaultJPEGQuality is the quality used when re-encoding uploads.
	DefaultJPEGQuality = 90

	// DefaultMaxDimension bounds the longer image side, matching the
	// recognition services' 10,000 px limit.
	DefaultMaxDimension = 10000
)

// Normalizer turns any supported upload into an opaque RGB JPEG, the only
// form the recognition client sends.
type Normalizer struct {
	// Quality is the JPEG quality (1-100).
	Quality int

	// MaxDimension downsizes images whose width or height exceeds it.
	// Zero disables resizing.
	MaxDimension int

	// MaxBytes rejects larger inputs. Zero disables the check.
	MaxBytes int64
}

// DefaultNormalizer returns a Normalizer with the default limits.
func DefaultNormalizer() Normalizer {
	return Normalizer{Quality: DefaultJPEGQuality, MaxDimension: DefaultMaxDimension}
}

// Normalize decodes data, sniffing the format from its content, and returns
// it as page number 1.
func (n Normalizer) Normalize(data []byte) (*models.RasterPage, error) {
	const op = "Normalize"

	if n.MaxBytes > 0 && int64(len(data)) > n.MaxBytes {
		return nil, WrapRasterError(op, ErrTooLarge, fmt.Sprintf("image size: %d bytes", len(data)))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, WrapRasterError(op, ErrUnsupportedImage, err.Error())
	}

	page, err := n.FromImage(img, 1)
	if err != nil {
		return nil, WrapRasterError(op, err, "format "+format)
	}
	return page, nil
}

// FromImage flattens img onto white, bounds its size and encodes it as JPEG.
func (n Normalizer) FromImage(img image.Image, number int) (*models.RasterPage, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}

	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	var out image.Image = flat
	if n.MaxDimension > 0 && (b.Dx() > n.MaxDimension || b.Dy() > n.MaxDimension) {
		out = imaging.Fit(flat, n.MaxDimension, n.MaxDimension, imaging.Lanczos)
	}

	data, err := EncodeJPEG(out, n.Quality)
	if err != nil {
		return nil, err
	}

	ob := out.Bounds()
	return &models.RasterPage{
		Number: number,
		Width:  ob.Dx(),
		Height: ob.Dy(),
		Image:  out,
		JPEG:   data,
	}, nil
}

// EncodeJPEG encodes img as JPEG. A quality outside 1..100 uses the default.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "%PDF"
}
