package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"scan2sheet/internal/raster"
	"scan2sheet/internal/workflow"
	"scan2sheet/pkg/models"
)

type fakeExtractor struct {
	result  *workflow.Result
	err     error
	uploads []workflow.Upload
}

func (f *fakeExtractor) Extract(_ context.Context, uploads []workflow.Upload) (*workflow.Result, error) {
	f.uploads = uploads
	return f.result, f.err
}

// fakePageSource serves registered pages keyed by PDF payload.
type fakePageSource struct {
	pages     map[string][]models.RasterPage
	count     int
	countErr  error
	lastRange string
}

func (f *fakePageSource) Pages(_ context.Context, data []byte, pageRange string) ([]models.RasterPage, error) {
	f.lastRange = pageRange
	pages, ok := f.pages[string(data)]
	if !ok {
		return nil, raster.WrapRasterError("Pages", raster.ErrNoPageImages, "")
	}
	return pages, nil
}

func (f *fakePageSource) PageCount([]byte) (int, error) {
	return f.count, f.countErr
}

type formFile struct {
	name string
	data []byte
}

// multipartRequest builds a POST with files in field and extra plain values.
func multipartRequest(t *testing.T, target, field string, files []formFile, values map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile(field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestServer(extractor tableExtractor, pages pageSource) *Server {
	return NewServer(extractor, pages, Config{Backend: "azure", MaxUploadMB: 1})
}

func page(n int, jpeg string) models.RasterPage {
	return models.RasterPage{Number: n, Width: 10, Height: 20, JPEG: []byte(jpeg)}
}
