package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"scan2sheet/internal/export"
	"scan2sheet/pkg/models"
)

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "edit url", url: "https://docs.google.com/spreadsheets/d/1AbC-xyz_123/edit#gid=0", want: "1AbC-xyz_123"},
		{name: "bare url", url: "https://docs.google.com/spreadsheets/d/abc", want: "abc"},
		{name: "not a sheet", url: "https://docs.google.com/document/d/abc/edit", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractSpreadsheetID(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSheetURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGridToValues(t *testing.T) {
	values := gridToValues(models.Grid{{"A", ""}, {"", "D"}})
	assert.Equal(t, [][]interface{}{{"A", ""}, {"", "D"}}, values)
}

func TestQuoteSheetName(t *testing.T) {
	assert.Equal(t, "'Page_1_Table_1'", quoteSheetName("Page_1_Table_1"))
	assert.Equal(t, "'O''Brien'", quoteSheetName("O'Brien"))
}

// fakeSheetsAPI records the requests of one publish.
type fakeSheetsAPI struct {
	t           *testing.T
	addedTitles []string
	valueRanges []struct {
		Range  string          `json:"range"`
		Values [][]interface{} `json:"values"`
	}
	valueInput string
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v4/spreadsheets/sheet123":
		_, _ = io.WriteString(w, `{"sheets":[{"properties":{"title":"Sheet1"}},{"properties":{"title":"Page_1_Table_1"}}]}`)

	case r.Method == http.MethodPost && r.URL.Path == "/v4/spreadsheets/sheet123:batchUpdate":
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		for _, rq := range req.Requests {
			f.addedTitles = append(f.addedTitles, rq.AddSheet.Properties.Title)
		}
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet123","replies":[]}`)

	case r.Method == http.MethodPost && r.URL.Path == "/v4/spreadsheets/sheet123/values:batchUpdate":
		var req struct {
			ValueInputOption string `json:"valueInputOption"`
			Data             []struct {
				Range  string          `json:"range"`
				Values [][]interface{} `json:"values"`
			} `json:"data"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.valueInput = req.ValueInputOption
		f.valueRanges = req.Data
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet123"}`)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

func newTestPublisher(t *testing.T, api http.Handler) *Publisher {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	p, err := NewPublisherWithOptions(context.Background(),
		"https://docs.google.com/spreadsheets/d/sheet123/edit",
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return p
}

func TestPublishTables(t *testing.T) {
	api := &fakeSheetsAPI{t: t}
	p := newTestPublisher(t, api)

	result, err := p.PublishTables(context.Background(), []models.ExtractedTable{
		{PageNumber: 1, TableIndex: 1, Grid: models.Grid{{"A", "B"}, {"C", "D"}}},
		{PageNumber: 2, TableIndex: 1, Grid: models.Grid{}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Page_1_Table_1~2", "Page_2_Table_1"}, result.Sheets)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/sheet123", result.URL())

	assert.Equal(t, result.Sheets, api.addedTitles)
	assert.Equal(t, "RAW", api.valueInput)
	require.Len(t, api.valueRanges, 1)
	assert.Equal(t, "'Page_1_Table_1~2'!A1", api.valueRanges[0].Range)
	assert.Equal(t, [][]interface{}{{"A", "B"}, {"C", "D"}}, api.valueRanges[0].Values)
}

func TestPublishTables_Empty(t *testing.T) {
	p := newTestPublisher(t, &fakeSheetsAPI{t: t})
	_, err := p.PublishTables(context.Background(), nil)
	assert.ErrorIs(t, err, export.ErrNoTables)
}

func TestPublishTables_APIError(t *testing.T) {
	p := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"The caller does not have permission"}}`)
	}))

	_, err := p.PublishTables(context.Background(), []models.ExtractedTable{{PageNumber: 1, TableIndex: 1, Grid: models.Grid{{"x"}}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get spreadsheet")
}

func TestNewPublisher_Errors(t *testing.T) {
	_, err := NewPublisher(context.Background(), "https://docs.google.com/spreadsheets/d/abc", Credentials{})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewPublisher(context.Background(), "https://docs.google.com/spreadsheets/d/abc", Credentials{JSON: "{not json"})
	assert.Error(t, err)

	_, err = NewPublisherWithOptions(context.Background(), "https://example.com", option.WithoutAuthentication())
	assert.ErrorIs(t, err, ErrInvalidSheetURL)
}
