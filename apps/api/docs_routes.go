package main

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var docsPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}} {{.Version}}</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body style="margin:0">
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({url: 'openapi.json', dom_id: '#swagger-ui'});
    </script>
  </body>
</html>`))

// registerDocsRoutes serves the callback contract as JSON and a Swagger UI page over it.
// The document is encoded once at startup.
func registerDocsRoutes(router chi.Router, spec *openapi3.T, logger *zap.Logger) {
	doc, err := spec.MarshalJSON()
	if err != nil {
		logger.Error("encode openapi document; docs disabled", zap.Error(err))
		return
	}

	title, version := "hubmetrix", ""
	if spec.Info != nil {
		title, version = spec.Info.Title, spec.Info.Version
	}

	router.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", fmt.Sprint(len(doc)))
		_, _ = w.Write(doc)
	})
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := docsPage.Execute(w, map[string]string{"Title": title, "Version": version}); err != nil {
			logger.Warn("render docs page", zap.Error(err))
		}
	})
}
