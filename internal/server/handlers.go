package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"scan2sheet/internal/workflow"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Backend: s.backend,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// indexHandler serves the upload page.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := indexData{MaxUploadMB: s.maxUploadMB, Backend: s.backend}
	if err := s.index.Execute(w, data); err != nil {
		s.log.Error().Err(err).Msg("Error rendering index page")
	}
}

// readUploads parses the multipart form and returns every file sent in
// field, in form order. It writes the error response itself and returns
// false on failure.
func (s *Server) readUploads(w http.ResponseWriter, r *http.Request, field string) ([]workflow.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())

	if err := r.ParseMultipartForm(s.maxUploadBytes()); err != nil {
		s.handleFormParseError(w, err)
		return nil, false
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		s.writeErrorResponse(w, fmt.Sprintf("No file provided in field %q", field), http.StatusBadRequest)
		return nil, false
	}

	uploads := make([]workflow.Upload, 0, len(headers))
	for _, header := range headers {
		if header.Size > s.maxUploadBytes() {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}

		file, err := header.Open()
		if err != nil {
			s.writeErrorResponse(w, "Failed to read upload", http.StatusBadRequest)
			return nil, false
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			s.writeErrorResponse(w, "Failed to read upload", http.StatusBadRequest)
			return nil, false
		}

		uploadSizeBytes.Observe(float64(len(data)))
		uploads = append(uploads, workflow.Upload{Name: header.Filename, Data: data})
	}
	return uploads, true
}

// handleFormParseError distinguishes an oversized body from a malformed form.
func (s *Server) handleFormParseError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
}

func failureResponses(failures []workflow.FileError) []FailureResponse {
	out := make([]FailureResponse, 0, len(failures))
	for _, f := range failures {
		out = append(out, FailureResponse{Source: f.Source, Page: f.Page, Error: f.Err.Error()})
	}
	return out
}

// writeAttachment sends data as a file download.
func (s *Server) writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log.Warn().Err(err).Str("filename", filename).Msg("Error writing download")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("Error encoding JSON response")
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
