// Package workflow runs an upload batch through conversion, recognition and
// assembly.
//
// Every image in the batch (each standalone image and each page of each PDF)
// gets a 1-based page number in upload order. Recognition runs sequentially
// by default, or on a bounded number of workers; the result order never
// depends on completion order. A failure in one file is recorded and the
// rest of the batch continues.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"scan2sheet/internal/logger"
	"scan2sheet/internal/raster"
	"scan2sheet/internal/recognition"
	"scan2sheet/internal/table"
	"scan2sheet/pkg/models"
)

// Upload is one file of a batch.
type Upload struct {
	Name string
	Data []byte
}

// FileError records why a file, or one page of it, produced no tables.
type FileError struct {
	Source string
	// Page is the batch page number, or 0 when the file failed before
	// pages were known.
	Page int
	Err  error
}

// Error implements the error interface.
func (e FileError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("%s (page %d): %v", e.Source, e.Page, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e FileError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a batch.
type Result struct {
	// Tables in page order, then detection order.
	Tables []models.ExtractedTable

	// Failures in upload order.
	Failures []FileError

	// Pages is the number of images sent for recognition.
	Pages int
}

// Empty reports whether the batch produced no table at all.
func (r *Result) Empty() bool {
	return len(r.Tables) == 0
}

// PageSource converts a PDF into page images.
type PageSource interface {
	Pages(ctx context.Context, pdfData []byte, pageRange string) ([]models.RasterPage, error)
}

// ImageNormalizer converts an uploaded image into a JPEG page.
type ImageNormalizer interface {
	Normalize(data []byte) (*models.RasterPage, error)
}

// Observer is notified as the batch progresses. Implementations must be
// safe for concurrent use.
type Observer interface {
	RecognitionDone(err error, d time.Duration)
	TablesExtracted(n int)
}

type nopObserver struct{}

func (nopObserver) RecognitionDone(error, time.Duration) {}
func (nopObserver) TablesExtracted(int)                  {}

// Option configures an Extractor.
type Option func(*Extractor)

// WithWorkers sets the number of concurrent recognition calls (minimum 1).
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(e *Extractor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithPageRange restricts PDFs to the given pages ("1-3,5").
func WithPageRange(pageRange string) Option {
	return func(e *Extractor) {
		e.pageRange = pageRange
	}
}

// Extractor turns uploads into extracted tables.
type Extractor struct {
	recognizer recognition.TableRecognizer
	pages      PageSource
	images     ImageNormalizer
	workers    int
	pageRange  string
	observer   Observer
	log        zerolog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(recognizer recognition.TableRecognizer, pages PageSource, images ImageNormalizer, opts ...Option) *Extractor {
	e := &Extractor{
		recognizer: recognizer,
		pages:      pages,
		images:     images,
		workers:    1,
		observer:   nopObserver{},
		log:        logger.WithComponent("workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// job is one image of the batch.
type job struct {
	upload int
	source string
	page   models.RasterPage
}

type outcome struct {
	tables []models.RecognizedTable
	err    error
}

// Extract processes the batch. It returns an error only when ctx ends;
// per-file problems are reported in Result.Failures.
func (e *Extractor) Extract(ctx context.Context, uploads []Upload) (*Result, error) {
	start := time.Now()
	result := &Result{}

	jobs, failures, err := e.convert(ctx, uploads)
	if err != nil {
		return nil, err
	}
	result.Pages = len(jobs)

	outcomes, err := e.recognize(ctx, jobs)
	if err != nil {
		return nil, err
	}

	for i, j := range jobs {
		o := outcomes[i]
		if o.err != nil {
			failures = append(failures, indexedFailure{upload: j.upload, FileError: FileError{Source: j.source, Page: j.page.Number, Err: o.err}})
			continue
		}
		result.Tables = append(result.Tables, e.assemble(j, o.tables)...)
	}

	sort.SliceStable(failures, func(a, b int) bool {
		if failures[a].upload != failures[b].upload {
			return failures[a].upload < failures[b].upload
		}
		return failures[a].Page < failures[b].Page
	})
	for _, f := range failures {
		result.Failures = append(result.Failures, f.FileError)
	}

	e.observer.TablesExtracted(len(result.Tables))

	e.log.Info().
		Int("files", len(uploads)).
		Int("pages", result.Pages).
		Int("tables", len(result.Tables)).
		Int("failures", len(result.Failures)).
		Dur("duration", time.Since(start)).
		Msg("Batch extraction completed")

	return result, nil
}

type indexedFailure struct {
	upload int
	FileError
}

// convert expands uploads into numbered page images, in upload order.
// An image upload always takes one page number, even when it cannot be
// decoded, so numbering matches the position in the batch.
func (e *Extractor) convert(ctx context.Context, uploads []Upload) ([]job, []indexedFailure, error) {
	var (
		jobs     []job
		failures []indexedFailure
		next     = 1
	)

	for i, u := range uploads {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if raster.IsPDF(u.Data) {
			pages, err := e.pages.Pages(ctx, u.Data, e.pageRange)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, nil, ctxErr
				}
				e.log.Warn().Err(err).Str("file", u.Name).Msg("PDF conversion failed")
				failures = append(failures, indexedFailure{upload: i, FileError: FileError{Source: u.Name, Err: err}})
				continue
			}
			for _, p := range pages {
				p.Number = next
				next++
				jobs = append(jobs, job{upload: i, source: u.Name, page: p})
			}
			continue
		}

		number := next
		next++
		page, err := e.images.Normalize(u.Data)
		if err != nil {
			e.log.Warn().Err(err).Str("file", u.Name).Msg("Image conversion failed")
			failures = append(failures, indexedFailure{upload: i, FileError: FileError{Source: u.Name, Page: number, Err: err}})
			continue
		}
		page.Number = number
		jobs = append(jobs, job{upload: i, source: u.Name, page: *page})
	}
	return jobs, failures, nil
}

// recognize sends every job to the recognizer on up to e.workers goroutines.
// outcomes[i] belongs to jobs[i].
func (e *Extractor) recognize(ctx context.Context, jobs []job) ([]outcome, error) {
	outcomes := make([]outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			j := jobs[i]
			callStart := time.Now()
			tables, err := e.recognizer.RecognizeTables(gctx, j.page.JPEG)
			e.observer.RecognitionDone(err, time.Since(callStart))

			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.log.Warn().
					Err(err).
					Str("file", j.source).
					Int("page", j.page.Number).
					Msg("Table recognition failed")
				outcomes[i] = outcome{err: err}
				return nil
			}

			e.log.Debug().
				Str("file", j.source).
				Int("page", j.page.Number).
				Int("tables", len(tables)).
				Dur("duration", time.Since(callStart)).
				Msg("Page recognized")
			outcomes[i] = outcome{tables: tables}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// assemble converts the recognized tables of one page into dense grids.
func (e *Extractor) assemble(j job, tables []models.RecognizedTable) []models.ExtractedTable {
	out := make([]models.ExtractedTable, 0, len(tables))
	for t, rt := range tables {
		grid, report := table.AssembleTable(rt)
		if !report.Clean() {
			e.log.Warn().
				Str("file", j.source).
				Int("page", j.page.Number).
				Int("table", t+1).
				Int("dropped_cells", report.Dropped).
				Int("overwritten_cells", report.Overwritten).
				Msg("Table cells did not fit the reported grid")
		}
		out = append(out, models.ExtractedTable{
			PageNumber: j.page.Number,
			TableIndex: t + 1,
			Source:     j.source,
			Grid:       grid,
		})
	}
	return out
}
