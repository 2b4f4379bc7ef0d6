// Package sheets publishes extracted tables to a Google Sheets spreadsheet,
// one worksheet per table, named like the XLSX export.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"scan2sheet/internal/export"
	"scan2sheet/internal/logger"
	"scan2sheet/pkg/models"
)

var (
	// ErrInvalidSheetURL is returned when no spreadsheet ID can be found in the URL.
	ErrInvalidSheetURL = errors.New("invalid Google Sheets URL format")

	// ErrMissingCredentials is returned when no service account is configured.
	ErrMissingCredentials = errors.New("neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set")
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// Credentials names a service account key, inline or on disk.
type Credentials struct {
	JSON string
	File string
}

// Publisher writes tables into one spreadsheet.
type Publisher struct {
	sheetsService *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// PublishResult describes the worksheets that were added.
type PublishResult struct {
	SpreadsheetID string
	Sheets        []string
	Rows          int
}

// URL returns the spreadsheet's browser URL.
func (r *PublishResult) URL() string {
	return "https://docs.google.com/spreadsheets/d/" + r.SpreadsheetID
}

// NewPublisher creates a Publisher for sheetURL authenticated as the service
// account in creds. The spreadsheet must be shared with that account.
func NewPublisher(ctx context.Context, sheetURL string, creds Credentials) (*Publisher, error) {
	const op = "NewPublisher"

	var key []byte
	switch {
	case creds.JSON != "":
		key = []byte(creds.JSON)
	case creds.File != "":
		var err error
		key, err = os.ReadFile(creds.File)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	default:
		return nil, fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	config, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	return NewPublisherWithOptions(ctx, sheetURL, option.WithHTTPClient(config.Client(ctx)))
}

// NewPublisherWithOptions creates a Publisher with explicit client options.
func NewPublisherWithOptions(ctx context.Context, sheetURL string, opts ...option.ClientOption) (*Publisher, error) {
	const op = "NewPublisher"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	sheetsService, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &Publisher{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

// extractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", ErrInvalidSheetURL
	}
	return matches[1], nil
}

// PublishTables adds one worksheet per table and writes its grid from A1.
// Names that already exist in the spreadsheet get a ~n suffix. It returns
// export.ErrNoTables when tables is empty.
func (p *Publisher) PublishTables(ctx context.Context, tables []models.ExtractedTable) (*PublishResult, error) {
	const op = "PublishTables"

	if len(tables) == 0 {
		return nil, export.ErrNoTables
	}

	existing, err := p.sheetTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	namer := export.NewSheetNamer(existing...)
	result := &PublishResult{SpreadsheetID: p.spreadsheetID}

	var addRequests []*sheets.Request
	var data []*sheets.ValueRange
	for _, t := range tables {
		name := namer.Next(export.SheetName(t.PageNumber, t.TableIndex))
		result.Sheets = append(result.Sheets, name)
		result.Rows += t.Grid.Rows()

		addRequests = append(addRequests, &sheets.Request{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: name,
					GridProperties: &sheets.GridProperties{
						RowCount:    int64(max(t.Grid.Rows(), 1)),
						ColumnCount: int64(max(t.Grid.Columns(), 1)),
					},
				},
			},
		})

		if t.Grid.Rows() > 0 {
			data = append(data, &sheets.ValueRange{
				Range:  quoteSheetName(name) + "!A1",
				Values: gridToValues(t.Grid),
			})
		}
	}

	p.log.Info().
		Int("sheets", len(addRequests)).
		Int("rows", result.Rows).
		Msg("Publishing tables to Google Sheet")

	_, err = p.sheetsService.Spreadsheets.BatchUpdate(p.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: addRequests,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets: %w", op, err)
	}

	if len(data) > 0 {
		// RAW keeps recognized text such as "=1+1" or "007" as written.
		_, err = p.sheetsService.Spreadsheets.Values.BatchUpdate(p.spreadsheetID, &sheets.BatchUpdateValuesRequest{
			ValueInputOption: "RAW",
			Data:             data,
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to write values: %w", op, err)
		}
	}

	p.log.Info().
		Strs("sheets", result.Sheets).
		Msg("Successfully published tables to Google Sheet")

	return result, nil
}

func (p *Publisher) sheetTitles(ctx context.Context) ([]string, error) {
	spreadsheet, err := p.sheetsService.Spreadsheets.Get(p.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	titles := make([]string, 0, len(spreadsheet.Sheets))
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil {
			titles = append(titles, sheet.Properties.Title)
		}
	}
	return titles, nil
}

// gridToValues converts a grid to the API's row-major value matrix.
func gridToValues(grid models.Grid) [][]interface{} {
	values := make([][]interface{}, len(grid))
	for r, row := range grid {
		values[r] = make([]interface{}, len(row))
		for c, v := range row {
			values[r][c] = v
		}
	}
	return values
}

// quoteSheetName quotes a sheet title for A1 notation.
func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
