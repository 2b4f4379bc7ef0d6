package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"scan2sheet/internal/raster"
	"scan2sheet/internal/workflow"
)

// pageFilename is the download name of page n.
func pageFilename(n int) string {
	return fmt.Sprintf("page_%d.jpg", n)
}

// pdfPagesHandler converts every uploaded PDF into page images and returns
// them inline as base64 JPEG. Pages are numbered per file.
func (s *Server) pdfPagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uploads, ok := s.readUploads(w, r, "pdf")
	if !ok {
		return
	}
	pageRange := r.FormValue("pages")

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	response, err := s.convertPDFs(ctx, uploads, pageRange)
	if err != nil {
		s.writeErrorResponse(w, "Request timed out", http.StatusGatewayTimeout)
		return
	}
	w.Header().Set("X-Failed-Files", strconv.Itoa(len(response.Failures)))
	if response.Count == 0 {
		s.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:    "no page images found",
			Failures: response.Failures,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, response)
}

// convertPDFs rasterizes every upload. Files that fail are reported in
// Failures; the error is non-nil only when ctx ends first.
func (s *Server) convertPDFs(ctx context.Context, uploads []workflow.Upload, pageRange string) (PagesResponse, error) {
	response := PagesResponse{Pages: []PageResponse{}}
	for _, u := range uploads {
		pages, err := s.pages.Pages(ctx, u.Data, pageRange)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return response, cerr
			}
			s.log.Warn().Err(err).Str("file", u.Name).Msg("PDF conversion failed")
			response.Failures = append(response.Failures, FailureResponse{Source: u.Name, Error: err.Error()})
			continue
		}

		pagesRasterizedTotal.Add(float64(len(pages)))
		for _, p := range pages {
			response.Pages = append(response.Pages, PageResponse{
				Page:       p.Number,
				Source:     u.Name,
				Width:      p.Width,
				Height:     p.Height,
				Filename:   pageFilename(p.Number),
				JPEGBase64: base64.StdEncoding.EncodeToString(p.JPEG),
			})
		}
	}
	response.Count = len(response.Pages)
	return response, nil
}

// pdfPageHandler returns page n of the uploaded PDF as a JPEG download.
func (s *Server) pdfPageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil || n < 1 {
		s.writeErrorResponse(w, "Query parameter n must be a page number >= 1", http.StatusBadRequest)
		return
	}

	uploads, ok := s.readUploads(w, r, "pdf")
	if !ok {
		return
	}
	data := uploads[0].Data

	count, err := s.pages.PageCount(data)
	if err != nil {
		s.writeRasterError(w, err)
		return
	}
	if n > count {
		s.writeErrorResponse(w, fmt.Sprintf("Page %d out of range (document has %d pages)", n, count), http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	pages, err := s.pages.Pages(ctx, data, strconv.Itoa(n))
	if err != nil {
		s.writeRasterError(w, err)
		return
	}

	pagesRasterizedTotal.Inc()
	s.writeAttachment(w, "image/jpeg", pageFilename(n), pages[0].JPEG)
}

// writeRasterError maps conversion errors onto HTTP statuses.
func (s *Server) writeRasterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, raster.ErrTooLarge):
		s.writeErrorResponse(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, raster.ErrNoPageImages):
		s.writeErrorResponse(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, raster.ErrInvalidPDF), errors.Is(err, raster.ErrInvalidPageRange):
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, "Request timed out", http.StatusGatewayTimeout)
	default:
		s.writeErrorResponse(w, fmt.Sprintf("PDF conversion failed: %v", err), http.StatusInternalServerError)
	}
}
