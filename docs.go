package gateway

import (
	"html/template"
	"net/http"
	"strings"
)

type docsConfig struct {
	path     string
	specPath string
	title    string
	document map[string]any
}

var docsTemplate = template.Must(template.New("docs").Parse(docsHTML))

// handle answers documentation requests directly, ending the pipeline.
// Everything else passes through.
func (d *docsConfig) handle(w *ResponseWriter, r *http.Request) error {
	if d == nil || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		return nil
	}

	switch r.URL.Path {
	case d.path:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		return docsTemplate.Execute(w, docsPage{Title: d.title, SpecURL: d.specPath})

	case d.specPath:
		var enc Encoder = jsonCodec{}
		if strings.HasSuffix(d.specPath, ".yaml") || strings.HasSuffix(d.specPath, ".yml") {
			enc = yamlCodec{}
		}
		w.Header().Set("Content-Type", enc.ContentType())
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		return enc.Encode(w, d.document)
	}
	return nil
}

type docsPage struct {
	Title   string
	SpecURL string
}

const docsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/@stoplight/elements/styles.min.css">
  <script src="https://unpkg.com/@stoplight/elements/web-components.min.js"></script>
</head>
<body>
  <elements-api
    apiDescriptionUrl="{{.SpecURL}}"
    router="hash"
    layout="sidebar"
  />
</body>
</html>`
