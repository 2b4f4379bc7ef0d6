package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"scan2sheet/internal/export"
	"scan2sheet/internal/workflow"
)

// extractTables runs the uploaded batch through the workflow. It writes the
// error response itself and returns nil when there is nothing to export.
func (s *Server) extractTables(w http.ResponseWriter, r *http.Request) *workflow.Result {
	result := s.runExtraction(w, r)
	if result == nil {
		return nil
	}
	if result.Empty() {
		s.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:    "no tables found",
			Failures: failureResponses(result.Failures),
		})
		return nil
	}
	return result
}

// runExtraction reads the "files" field and extracts tables from it. The
// result may be empty; nil means an error response was already written.
func (s *Server) runExtraction(w http.ResponseWriter, r *http.Request) *workflow.Result {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil
	}

	uploads, ok := s.readUploads(w, r, "files")
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	result, err := s.extractor.Extract(ctx, uploads)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.writeErrorResponse(w, "Request timed out", http.StatusGatewayTimeout)
			return nil
		}
		s.log.Error().Err(err).Int("files", len(uploads)).Msg("Table extraction failed")
		s.writeErrorResponse(w, "Table extraction failed", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("X-Failed-Files", strconv.Itoa(len(result.Failures)))
	return result
}

// tablesJSONHandler returns the extracted grids for preview.
func (s *Server) tablesJSONHandler(w http.ResponseWriter, r *http.Request) {
	result := s.extractTables(w, r)
	if result == nil {
		return
	}

	namer := export.NewSheetNamer()
	response := TablesResponse{
		Tables:            make([]TableResponse, 0, len(result.Tables)),
		Failures:          failureResponses(result.Failures),
		DownloadAvailable: true,
	}
	for _, t := range result.Tables {
		response.Tables = append(response.Tables, TableResponse{
			Sheet:  namer.Next(export.SheetName(t.PageNumber, t.TableIndex)),
			Page:   t.PageNumber,
			Table:  t.TableIndex,
			Source: t.Source,
			Rows:   t.Grid,
		})
	}
	s.writeJSON(w, http.StatusOK, response)
}

// tablesXLSXHandler returns one worksheet per extracted table.
func (s *Server) tablesXLSXHandler(w http.ResponseWriter, r *http.Request) {
	result := s.extractTables(w, r)
	if result == nil {
		return
	}

	data, err := export.Workbook(result.Tables)
	if err != nil {
		s.writeExportError(w, err)
		return
	}
	s.writeAttachment(w, export.WorkbookContentType, export.WorkbookFilename, data)
}

// tablesCSVHandler returns all extracted tables stacked into one CSV.
func (s *Server) tablesCSVHandler(w http.ResponseWriter, r *http.Request) {
	result := s.extractTables(w, r)
	if result == nil {
		return
	}

	data, err := export.CSV(export.Grids(result.Tables))
	if err != nil {
		s.writeExportError(w, err)
		return
	}
	s.writeAttachment(w, export.CSVContentType, export.CSVFilename, data)
}

func (s *Server) writeExportError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("Export failed")
	if errors.Is(err, export.ErrGridTooLarge) {
		s.writeErrorResponse(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.writeErrorResponse(w, "Export failed", http.StatusInternalServerError)
}
