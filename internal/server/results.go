package server

import (
	"context"
	"encoding/base64"
	"html/template"
	"net/http"
	"strings"

	"scan2sheet/internal/export"
	"scan2sheet/internal/workflow"
)

// pageView is one converted page on the pages result screen.
type pageView struct {
	Source   string
	Number   int
	Width    int
	Height   int
	Filename string
	JPEG     template.URL
}

type pagesView struct {
	Pages    []pageView
	Failures []FailureResponse
}

type tableView struct {
	Sheet  string
	Source string
	Rows   [][]string
}

// download is one embedded artifact offered on the tables result screen.
type download struct {
	Label    string
	Filename string
	Href     template.URL
}

type tablesView struct {
	Tables    []tableView
	Failures  []FailureResponse
	Downloads []download
}

// dataURI embeds data in a link target. Media type parameters must not
// contain spaces.
func dataURI(contentType string, data []byte) template.URL {
	mediaType := strings.ReplaceAll(contentType, " ", "")
	return template.URL("data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// pagesViewHandler converts the uploaded PDFs and renders a preview and a
// JPEG download link per page.
func (s *Server) pagesViewHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uploads, ok := s.readUploads(w, r, "pdf")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	response, err := s.convertPDFs(ctx, uploads, r.FormValue("pages"))
	if err != nil {
		s.writeErrorResponse(w, "Request timed out", http.StatusGatewayTimeout)
		return
	}

	view := pagesView{Pages: make([]pageView, 0, len(response.Pages)), Failures: response.Failures}
	for _, p := range response.Pages {
		view.Pages = append(view.Pages, pageView{
			Source:   p.Source,
			Number:   p.Page,
			Width:    p.Width,
			Height:   p.Height,
			Filename: p.Filename,
			JPEG:     template.URL("data:image/jpeg;base64," + p.JPEGBase64),
		})
	}

	status := http.StatusOK
	if len(view.Pages) == 0 {
		status = http.StatusUnprocessableEntity
	}
	s.renderView(w, status, "pages", view)
}

// tablesViewHandler extracts tables from the uploaded images and renders
// their previews. XLSX and CSV downloads are embedded only when at least
// one table was found.
func (s *Server) tablesViewHandler(w http.ResponseWriter, r *http.Request) {
	result := s.runExtraction(w, r)
	if result == nil {
		return
	}

	view, err := buildTablesView(result)
	if err != nil {
		s.writeExportError(w, err)
		return
	}

	status := http.StatusOK
	if result.Empty() {
		status = http.StatusUnprocessableEntity
	}
	s.renderView(w, status, "tables", view)
}

func buildTablesView(result *workflow.Result) (tablesView, error) {
	view := tablesView{
		Tables:   make([]tableView, 0, len(result.Tables)),
		Failures: failureResponses(result.Failures),
	}

	namer := export.NewSheetNamer()
	for _, t := range result.Tables {
		view.Tables = append(view.Tables, tableView{
			Sheet:  namer.Next(export.SheetName(t.PageNumber, t.TableIndex)),
			Source: t.Source,
			Rows:   t.Grid,
		})
	}
	if result.Empty() {
		return view, nil
	}

	xlsx, err := export.Workbook(result.Tables)
	if err != nil {
		return tablesView{}, err
	}
	csvData, err := export.CSV(export.Grids(result.Tables))
	if err != nil {
		return tablesView{}, err
	}
	view.Downloads = []download{
		{Label: "Download XLSX", Filename: export.WorkbookFilename, Href: dataURI(export.WorkbookContentType, xlsx)},
		{Label: "Download CSV", Filename: export.CSVFilename, Href: dataURI(export.CSVContentType, csvData)},
	}
	return view, nil
}

func (s *Server) renderView(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.views.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error().Err(err).Str("view", name).Msg("Error rendering result page")
	}
}

const viewsTemplate = `{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>scan2sheet</title>
<style>
body { font-family: sans-serif; max-width: 64rem; margin: 2rem auto; padding: 0 1rem; }
figure { display: inline-block; margin: 0 1rem 1rem 0; }
figure img { max-width: 18rem; border: 1px solid #ccc; }
table { border-collapse: collapse; margin-bottom: 1.5rem; }
td { border: 1px solid #ccc; padding: 0.2rem 0.5rem; }
small { color: #666; }
</style>
</head>
<body>
<h1>scan2sheet</h1>
{{end}}

{{define "failures"}}{{if .}}
<h2>Failed</h2>
<ul>
{{range .}}<li>{{.Source}}{{if .Page}} (page {{.Page}}){{end}}: {{.Error}}</li>
{{end}}</ul>
{{end}}{{end}}

{{define "foot"}}<p><a href="/">Back</a></p>
</body>
</html>
{{end}}

{{define "pages"}}{{template "head"}}
{{if .Pages}}<h2>Pages</h2>
{{range .Pages}}<figure>
<img src="{{.JPEG}}" alt="{{.Source}} page {{.Number}}" width="{{.Width}}" height="{{.Height}}">
<figcaption>{{.Source}} page {{.Number}} <a href="{{.JPEG}}" download="{{.Filename}}">Download Page {{.Number}} as JPEG</a></figcaption>
</figure>
{{end}}{{else}}<p>No page images found.</p>
{{end}}{{template "failures" .Failures}}{{template "foot"}}{{end}}

{{define "tables"}}{{template "head"}}
{{if .Downloads}}<p>{{range .Downloads}}<a href="{{.Href}}" download="{{.Filename}}">{{.Label}}</a> {{end}}</p>
{{range .Tables}}<h2>{{.Sheet}}</h2>
<small>{{.Source}}</small>
<table>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{end}}{{else}}<p>No tables found.</p>
{{end}}{{template "failures" .Failures}}{{template "foot"}}{{end}}
`
