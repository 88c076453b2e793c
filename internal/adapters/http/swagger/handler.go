// Package swagger serves the receiver's OpenAPI document and a ReDoc page for it.
package swagger

import (
	"bytes"
	"context"
	_ "embed"
	"net/http"
)

// OpenAPI is the embedded OpenAPI document with the push endpoint at /events.
//
//go:embed openapi.yaml
var OpenAPI []byte

const documentedEventsPath = "/events"

// Option applies a configuration option to Register.
type Option func(*options)

type options struct {
	eventsPath string
}

// WithEventsPath documents the push endpoint under path instead of /events.
func WithEventsPath(path string) Option {
	return func(o *options) {
		if path != "" {
			o.eventsPath = path
		}
	}
}

// Register attaches the API docs routes to mux.
// Routes:
//
//	GET /api-docs      -> ReDoc HTML
//	GET /openapi.yaml  -> Embedded OpenAPI spec
func Register(_ context.Context, mux *http.ServeMux, opts ...Option) {
	if mux == nil {
		panic("mux is nil")
	}
	o := options{eventsPath: documentedEventsPath}
	for _, opt := range opts {
		opt(&o)
	}
	doc := document(o.eventsPath)

	mux.HandleFunc("GET /api-docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})

	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(doc)
	})
}

// document returns OpenAPI with the push endpoint's path key moved to eventsPath.
func document(eventsPath string) []byte {
	if eventsPath == documentedEventsPath {
		return OpenAPI
	}
	return bytes.Replace(OpenAPI,
		[]byte("\n  "+documentedEventsPath+":\n"),
		[]byte("\n  "+eventsPath+":\n"), 1)
}

const indexHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>uruk API Docs</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc spec-url="/openapi.yaml"></redoc>
    <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
  </body>
</html>`
