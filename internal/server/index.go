package server

// indexData is rendered into the upload page.
type indexData struct {
	MaxUploadMB int64
	Backend     string
}

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>scan2sheet</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
fieldset { margin-bottom: 1.5rem; }
small { color: #666; }
</style>
</head>
<body>
<h1>scan2sheet</h1>
<p>Photograph or scan handwritten tables and download them as a spreadsheet.</p>

<fieldset>
<legend>1. Scanned PDF to page images</legend>
<form action="/pages" method="post" enctype="multipart/form-data">
<input type="file" name="pdf" accept="application/pdf" multiple required>
<label>Pages <input type="text" name="pages" placeholder="all, or 1-3,5"></label>
<button type="submit">Convert</button>
</form>
<small>Each page must carry a scanned image. Every page is previewed with a download as page_&lt;n&gt;.jpg.</small>
</fieldset>

<fieldset>
<legend>2. Images to tables</legend>
<form action="/tables" method="post" enctype="multipart/form-data">
<input type="file" name="files" accept="image/*,application/pdf" multiple required>
<button type="submit">Extract tables</button>
</form>
<small>Found tables are previewed with XLSX and CSV downloads. XLSX has one sheet per table (Page_&lt;n&gt;_Table_&lt;m&gt;). CSV stacks all tables without headers.</small>
</fieldset>

<p><small>Uploads up to {{.MaxUploadMB}} MB per request.{{if .Backend}} Recognition backend: {{.Backend}}.{{end}}</small></p>
</body>
</html>
`
