package raster

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scan2sheet/pkg/models"
)

var fakePDF = []byte("%PDF-1.4\n% test document\n")

func rasterizerWith(images []pageImage, err error) (*Rasterizer, *[]string) {
	r := NewRasterizer(DefaultNormalizer(), 0)
	var gotSelected []string
	r.extract = func(_ io.ReadSeeker, selected []string) ([]pageImage, error) {
		gotSelected = selected
		return images, err
	}
	return r, &gotSelected
}

func TestRasterizer_Pages(t *testing.T) {
	small := encodePNG(t, solidImage(4, 4, color.Black))
	large := encodePNG(t, solidImage(30, 40, color.White))
	other := encodePNG(t, solidImage(10, 12, color.Gray{Y: 128}))

	r, selected := rasterizerWith([]pageImage{
		{Page: 3, Data: other},
		{Page: 1, Data: small},
		{Page: 1, Data: large},
		{Page: 2, Data: []byte("broken")},
	}, nil)

	pages, err := r.Pages(context.Background(), fakePDF, "1-3")
	require.NoError(t, err)
	assert.Equal(t, []string{"1-3"}, *selected)

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 30, pages[0].Width)
	assert.Equal(t, 40, pages[0].Height)
	assert.NotEmpty(t, pages[0].JPEG)

	assert.Equal(t, 3, pages[1].Number)
	assert.Equal(t, 10, pages[1].Width)
}

func TestRasterizer_Pages_SkipsUnencodablePage(t *testing.T) {
	r, _ := rasterizerWith([]pageImage{
		{Page: 1, Data: encodePNG(t, solidImage(4, 4, color.Black))},
		{Page: 2, Data: encodePNG(t, solidImage(5, 5, color.Black))},
		{Page: 3, Data: encodePNG(t, solidImage(6, 6, color.Black))},
	}, nil)
	encode := r.encode
	r.encode = func(img image.Image, n int) (*models.RasterPage, error) {
		if n == 2 {
			return nil, errors.New("encode jpeg: short write")
		}
		return encode(img, n)
	}

	pages, err := r.Pages(context.Background(), fakePDF, "")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 3, pages[1].Number)
}

func TestRasterizer_AllPagesUnencodable(t *testing.T) {
	r, _ := rasterizerWith([]pageImage{{Page: 1, Data: encodePNG(t, solidImage(4, 4, color.Black))}}, nil)
	r.encode = func(image.Image, int) (*models.RasterPage, error) {
		return nil, errors.New("encode jpeg: short write")
	}

	_, err := r.Pages(context.Background(), fakePDF, "")
	assert.ErrorIs(t, err, ErrNoPageImages)
}

func TestRasterizer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		images  []pageImage
		extErr  error
		pages   string
		wantErr error
	}{
		{name: "missing header", data: []byte("hello"), wantErr: ErrInvalidPDF},
		{name: "extractor failure", data: fakePDF, extErr: errors.New("xref broken"), wantErr: ErrInvalidPDF},
		{name: "no images", data: fakePDF, wantErr: ErrNoPageImages},
		{name: "bad range", data: fakePDF, pages: "3-1", wantErr: ErrInvalidPageRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := rasterizerWith(tt.images, tt.extErr)
			_, err := r.Pages(context.Background(), tt.data, tt.pages)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRasterizer_TooLarge(t *testing.T) {
	r := NewRasterizer(DefaultNormalizer(), 8)
	_, err := r.Pages(context.Background(), fakePDF, "")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = r.PageCount(fakePDF)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRasterizer_Canceled(t *testing.T) {
	r, _ := rasterizerWith([]pageImage{{Page: 1, Data: encodePNG(t, solidImage(2, 2, color.Black))}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Pages(ctx, fakePDF, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		name        string
		pageRange   string
		want        []string
		expectError bool
	}{
		{name: "empty range returns nil", pageRange: "", want: nil},
		{name: "single page", pageRange: "1", want: []string{"1"}},
		{name: "multiple single pages", pageRange: "1,3,5", want: []string{"1", "3", "5"}},
		{name: "simple range", pageRange: "1-5", want: []string{"1-5"}},
		{name: "range with spaces", pageRange: " 1 - 3 , 5 ", want: []string{"1-3", "5"}},
		{name: "invalid page number", pageRange: "abc", expectError: true},
		{name: "zero page", pageRange: "0", expectError: true},
		{name: "invalid range format", pageRange: "1-2-3", expectError: true},
		{name: "start greater than end", pageRange: "5-1", expectError: true},
		{name: "invalid end page", pageRange: "1-xyz", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePageRange(tt.pageRange)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidPageRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageCount_InvalidHeader(t *testing.T) {
	_, err := PageCount([]byte("nope"))
	assert.ErrorIs(t, err, ErrInvalidPDF)
}
