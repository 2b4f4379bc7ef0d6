package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scan2sheet/internal/export"
	"scan2sheet/internal/recognition"
	"scan2sheet/internal/workflow"
	"scan2sheet/pkg/models"
)

func twoTables() *workflow.Result {
	return &workflow.Result{
		Pages: 2,
		Tables: []models.ExtractedTable{
			{PageNumber: 1, TableIndex: 1, Source: "a.jpg", Grid: models.Grid{{"Item", "Qty"}, {"Apples", "3"}}},
			{PageNumber: 2, TableIndex: 1, Source: "b.jpg", Grid: models.Grid{{"x"}}},
		},
		Failures: []workflow.FileError{{Source: "c.jpg", Page: 3, Err: recognition.ErrAnalysisFailed}},
	}
}

func imageUploads(t *testing.T, target string) *http.Request {
	return multipartRequest(t, target, "files", []formFile{
		{name: "a.jpg", data: []byte("a")},
		{name: "b.jpg", data: []byte("b")},
		{name: "c.jpg", data: []byte("c")},
	}, nil)
}

func TestTablesXLSXHandler(t *testing.T) {
	ex := &fakeExtractor{result: twoTables()}
	s := newTestServer(ex, &fakePageSource{})

	w := httptest.NewRecorder()
	s.tablesXLSXHandler(w, imageUploads(t, "/api/tables/xlsx"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.WorkbookContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="extracted_tables.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "1", w.Header().Get("X-Failed-Files"))
	require.Len(t, ex.uploads, 3)

	sheets, err := export.ReadWorkbook(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Equal(t, "Page_1_Table_1", sheets[0].Name)
	assert.Equal(t, models.Grid{{"Item", "Qty"}, {"Apples", "3"}}, sheets[0].Grid)
	assert.Equal(t, "Page_2_Table_1", sheets[1].Name)
}

func TestTablesCSVHandler(t *testing.T) {
	s := newTestServer(&fakeExtractor{result: twoTables()}, &fakePageSource{})

	w := httptest.NewRecorder()
	s.tablesCSVHandler(w, imageUploads(t, "/api/tables/csv"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.CSVContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="data.csv"`, w.Header().Get("Content-Disposition"))

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Item", "Qty"}, {"Apples", "3"}, {"x", ""}}, records)
}

func TestTablesJSONHandler(t *testing.T) {
	result := twoTables()
	result.Tables = append(result.Tables, models.ExtractedTable{PageNumber: 2, TableIndex: 2, Source: "b.jpg", Grid: models.Grid{}})
	s := newTestServer(&fakeExtractor{result: result}, &fakePageSource{})

	w := httptest.NewRecorder()
	s.tablesJSONHandler(w, imageUploads(t, "/api/tables"))

	require.Equal(t, http.StatusOK, w.Code)
	var response TablesResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	assert.True(t, response.DownloadAvailable)
	require.Len(t, response.Tables, 3)
	assert.Equal(t, "Page_1_Table_1", response.Tables[0].Sheet)
	assert.Equal(t, "a.jpg", response.Tables[0].Source)
	assert.Equal(t, [][]string{{"Item", "Qty"}, {"Apples", "3"}}, response.Tables[0].Rows)
	assert.Equal(t, "Page_2_Table_2", response.Tables[2].Sheet)
	assert.Empty(t, response.Tables[2].Rows)

	require.Len(t, response.Failures, 1)
	assert.Equal(t, FailureResponse{Source: "c.jpg", Page: 3, Error: recognition.ErrAnalysisFailed.Error()}, response.Failures[0])
}

func TestTablesHandlers_NoTables(t *testing.T) {
	result := &workflow.Result{
		Pages:    1,
		Failures: []workflow.FileError{{Source: "a.jpg", Page: 1, Err: errors.New("unsupported or corrupted image")}},
	}

	handlers := map[string]func(*Server) http.HandlerFunc{
		"xlsx": func(s *Server) http.HandlerFunc { return s.tablesXLSXHandler },
		"csv":  func(s *Server) http.HandlerFunc { return s.tablesCSVHandler },
		"json": func(s *Server) http.HandlerFunc { return s.tablesJSONHandler },
	}

	for name, handler := range handlers {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(&fakeExtractor{result: result}, &fakePageSource{})
			w := httptest.NewRecorder()
			handler(s)(w, imageUploads(t, "/api/tables"))

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, "1", w.Header().Get("X-Failed-Files"))

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, "no tables found", response.Error)
			require.Len(t, response.Failures, 1)
			assert.Equal(t, "a.jpg", response.Failures[0].Source)
		})
	}
}

func TestTablesHandlers_ExtractErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "deadline", err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout},
		{name: "canceled", err: context.Canceled, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeExtractor{err: tt.err}, &fakePageSource{})
			w := httptest.NewRecorder()
			s.tablesXLSXHandler(w, imageUploads(t, "/api/tables/xlsx"))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestTablesHandlers_Validation(t *testing.T) {
	s := newTestServer(&fakeExtractor{result: twoTables()}, &fakePageSource{})

	w := httptest.NewRecorder()
	s.tablesCSVHandler(w, httptest.NewRequest(http.MethodGet, "/api/tables/csv", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	s.tablesCSVHandler(w, multipartRequest(t, "/api/tables/csv", "pdf", []formFile{{name: "a.jpg", data: []byte("a")}}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
