package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scan2sheet/internal/recognition"
)

func TestHealthHandler(t *testing.T) {
	s := newTestServer(&fakeExtractor{}, &fakePageSource{})

	tests := []struct {
		name       string
		method     string
		wantStatus int
	}{
		{name: "GET request", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "POST request", method: http.MethodPost, wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			s.healthHandler(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var response HealthResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
				assert.Equal(t, "healthy", response.Status)
				assert.Equal(t, "azure", response.Backend)
				assert.NotEmpty(t, response.Time)
			}
		})
	}
}

func TestIndexHandler(t *testing.T) {
	s := newTestServer(&fakeExtractor{}, &fakePageSource{})

	w := httptest.NewRecorder()
	s.indexHandler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, `action="/pages"`)
	assert.Contains(t, body, `action="/tables"`)
	assert.NotContains(t, body, "Download XLSX")
	assert.Contains(t, body, `name="files"`)
	assert.Contains(t, body, "1 MB")

	w = httptest.NewRecorder()
	s.indexHandler(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	s.indexHandler(w, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCORSMiddleware(t *testing.T) {
	s := NewServer(&fakeExtractor{}, &fakePageSource{}, Config{CORSOrigin: "https://app.example"})
	called := false
	handler := s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodOptions, "/api/tables", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, called)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestSetupRoutes(t *testing.T) {
	s := newTestServer(&fakeExtractor{}, &fakePageSource{})
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	for _, path := range []string{"/", "/health", "/metrics"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	for _, path := range []string{"/api/tables/csv", "/pages", "/tables"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
	}
}

func TestReadUploads_Errors(t *testing.T) {
	s := newTestServer(&fakeExtractor{}, &fakePageSource{})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/tables", strings.NewReader("x=1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		_, ok := s.readUploads(w, req, "files")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing field", func(t *testing.T) {
		req := multipartRequest(t, "/api/tables", "other", []formFile{{name: "a.png", data: []byte("x")}}, nil)
		w := httptest.NewRecorder()
		_, ok := s.readUploads(w, req, "files")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `\"files\"`)
	})

	t.Run("body too large", func(t *testing.T) {
		big := bytes.Repeat([]byte("a"), 2*1024*1024)
		req := multipartRequest(t, "/api/tables", "files", []formFile{{name: "big.png", data: big}}, nil)
		w := httptest.NewRecorder()
		_, ok := s.readUploads(w, req, "files")
		assert.False(t, ok)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("files in form order", func(t *testing.T) {
		req := multipartRequest(t, "/api/tables", "files", []formFile{
			{name: "b.png", data: []byte("2")},
			{name: "a.png", data: []byte("1")},
		}, nil)
		w := httptest.NewRecorder()
		uploads, ok := s.readUploads(w, req, "files")
		require.True(t, ok)
		require.Len(t, uploads, 2)
		assert.Equal(t, "b.png", uploads[0].Name)
		assert.Equal(t, []byte("1"), uploads[1].Data)
	})
}

func TestRecognitionStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: "success"},
		{err: recognition.WrapRecognitionError("azure", "Submit", recognition.ErrUnauthorized, ""), want: "unauthorized"},
		{err: recognition.ErrQuotaExceeded, want: "quota"},
		{err: recognition.ErrTimeout, want: "timeout"},
		{err: errors.New("boom"), want: "failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, recognitionStatus(tt.err))
	}
}
