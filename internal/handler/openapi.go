package handler

import (
	"net/http"

	"github.com/sofragment/fragment/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI 3 document of the HTTP API.
type OpenAPIHandler struct {
	Responder
	version string
}

// NewOpenAPIHandler creates a new OpenAPIHandler. version is reported in the
// document's info block.
func NewOpenAPIHandler(rs Responder, version string) *OpenAPIHandler {
	return &OpenAPIHandler{Responder: rs, version: version}
}

// Serve generates the document with the server URL the client used.
// GET /api/openapi.json
func (h *OpenAPIHandler) Serve(w http.ResponseWriter, r *http.Request) {
	doc, err := openapi.Generate(baseURL(r), h.version)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// baseURL reconstructs scheme://host for r, honoring X-Forwarded-Proto set
// by a TLS-terminating proxy.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
