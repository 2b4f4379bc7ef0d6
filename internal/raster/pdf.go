// Package raster converts uploads into page images ready for recognition.
//
// Scanned PDFs carry one raster image per page; the rasterizer extracts it
// with pdfcpu instead of rendering page content, so vector-only pages are
// skipped. Standalone images are decoded by content (JPEG, PNG, TIFF, BMP,
// GIF, WebP), flattened onto white and re-encoded as JPEG.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"scan2sheet/internal/logger"
	"scan2sheet/pkg/models"
)

// DefaultMaxPDFBytes is the default PDF size limit (50MB).
const DefaultMaxPDFBytes = 50 * 1024 * 1024

// pageImage is one embedded image found on a page.
type pageImage struct {
	Page int
	Data []byte
}

// imageExtractor returns the embedded images of the selected pages
// (all pages when selected is empty).
type imageExtractor func(rs io.ReadSeeker, selected []string) ([]pageImage, error)

// pageEncoder turns the chosen image of a page into a RasterPage.
type pageEncoder func(img image.Image, number int) (*models.RasterPage, error)

// Rasterizer converts PDF documents into ordered page images.
type Rasterizer struct {
	maxBytes int64
	extract  imageExtractor
	encode   pageEncoder
	log      zerolog.Logger
}

// NewRasterizer creates a Rasterizer that encodes pages with normalizer.
// maxBytes <= 0 uses DefaultMaxPDFBytes.
func NewRasterizer(normalizer Normalizer, maxBytes int64) *Rasterizer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPDFBytes
	}
	return &Rasterizer{
		maxBytes: maxBytes,
		extract:  extractWithPDFCPU,
		encode:   normalizer.FromImage,
		log:      logger.WithComponent("raster"),
	}
}

// Pages returns one RasterPage per selected page that carries an image, in
// page order. pageRange uses the "1-3,5" syntax; empty selects all pages.
// Pages whose image cannot be encoded are skipped.
func (r *Rasterizer) Pages(ctx context.Context, pdfData []byte, pageRange string) ([]models.RasterPage, error) {
	const op = "Pages"

	if int64(len(pdfData)) > r.maxBytes {
		return nil, WrapRasterError(op, ErrTooLarge, fmt.Sprintf("file size: %d bytes", len(pdfData)))
	}
	if !IsPDF(pdfData) {
		return nil, WrapRasterError(op, ErrInvalidPDF, "missing PDF header")
	}

	selected, err := parsePageRange(pageRange)
	if err != nil {
		return nil, WrapRasterError(op, err, pageRange)
	}

	images, err := r.extract(bytes.NewReader(pdfData), selected)
	if err != nil {
		return nil, WrapRasterError(op, ErrInvalidPDF, err.Error())
	}

	largest := r.largestPerPage(images)
	pageNums := make([]int, 0, len(largest))
	for n := range largest {
		pageNums = append(pageNums, n)
	}
	sort.Ints(pageNums)

	pages := make([]models.RasterPage, 0, len(pageNums))
	for _, n := range pageNums {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.encode(largest[n], n)
		if err != nil {
			r.log.Warn().Err(err).Int("page", n).Msg("Skipping page that could not be encoded")
			continue
		}
		pages = append(pages, *page)
	}

	if len(pages) == 0 {
		return nil, WrapRasterError(op, ErrNoPageImages, "")
	}

	r.log.Debug().
		Int("pages", len(pages)).
		Int("embedded_images", len(images)).
		Msg("PDF rasterized")

	return pages, nil
}

// largestPerPage decodes every extracted image and keeps the one with the
// largest area on each page. Undecodable images are skipped.
func (r *Rasterizer) largestPerPage(images []pageImage) map[int]image.Image {
	best := make(map[int]image.Image)
	for _, pi := range images {
		img, _, err := image.Decode(bytes.NewReader(pi.Data))
		if err != nil {
			r.log.Warn().Err(err).Int("page", pi.Page).Msg("Skipping undecodable page image")
			continue
		}
		if cur, ok := best[pi.Page]; ok && area(cur) >= area(img) {
			continue
		}
		best[pi.Page] = img
	}
	return best
}

func area(img image.Image) int {
	b := img.Bounds()
	return b.Dx() * b.Dy()
}

// PageCount returns the number of pages in the document.
func (r *Rasterizer) PageCount(pdfData []byte) (int, error) {
	if int64(len(pdfData)) > r.maxBytes {
		return 0, WrapRasterError("PageCount", ErrTooLarge, fmt.Sprintf("file size: %d bytes", len(pdfData)))
	}
	return PageCount(pdfData)
}

// PageCount returns the number of pages in the document.
func PageCount(pdfData []byte) (int, error) {
	if !IsPDF(pdfData) {
		return 0, WrapRasterError("PageCount", ErrInvalidPDF, "missing PDF header")
	}
	n, err := api.PageCount(bytes.NewReader(pdfData), relaxedConfig())
	if err != nil {
		return 0, WrapRasterError("PageCount", ErrInvalidPDF, err.Error())
	}
	return n, nil
}

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func extractWithPDFCPU(rs io.ReadSeeker, selected []string) ([]pageImage, error) {
	var images []pageImage
	digest := func(img model.Image, _ bool, _ int) error {
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("read image %s on page %d: %w", img.Name, img.PageNr, err)
		}
		images = append(images, pageImage{Page: img.PageNr, Data: data})
		return nil
	}

	if err := api.ExtractImages(rs, selected, digest, relaxedConfig()); err != nil {
		return nil, err
	}
	return images, nil
}

// parsePageRange validates a page selection like "1-5" or "1,3,5" and returns
// its tokens in the form pdfcpu expects.
func parsePageRange(pageRange string) ([]string, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil // Empty means all pages
	}

	var tokens []string
	for _, part := range strings.Split(pageRange, ",") {
		part = strings.TrimSpace(part)
		token, err := parseRangeToken(part)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func parseRangeToken(part string) (string, error) {
	if !strings.Contains(part, "-") {
		page, err := strconv.Atoi(part)
		if err != nil || page < 1 {
			return "", fmt.Errorf("%w: invalid page number %q", ErrInvalidPageRange, part)
		}
		return strconv.Itoa(page), nil
	}

	bounds := strings.Split(part, "-")
	if len(bounds) != 2 {
		return "", fmt.Errorf("%w: invalid range format %q", ErrInvalidPageRange, part)
	}
	start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
	if err != nil || start < 1 {
		return "", fmt.Errorf("%w: invalid start page %q", ErrInvalidPageRange, bounds[0])
	}
	end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
	if err != nil {
		return "", fmt.Errorf("%w: invalid end page %q", ErrInvalidPageRange, bounds[1])
	}
	if start > end {
		return "", fmt.Errorf("%w: start page %d greater than end page %d", ErrInvalidPageRange, start, end)
	}
	return fmt.Sprintf("%d-%d", start, end), nil
}
