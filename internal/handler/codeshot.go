package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sofragment/fragment/internal/codeshot"
)

// Renderer produces codeshot images.
type Renderer interface {
	Render(ctx context.Context, req *codeshot.Request) (*codeshot.Image, error)
}

// CodeshotHandler renders code to an image.
type CodeshotHandler struct {
	Responder
	renderer Renderer
}

// NewCodeshotHandler creates a new CodeshotHandler.
func NewCodeshotHandler(rs Responder, renderer Renderer) *CodeshotHandler {
	return &CodeshotHandler{Responder: rs, renderer: renderer}
}

// Render decodes the options, renders the image and writes the raw bytes
// with the content type of the requested format.
// POST /api/tools/codeshot
func (h *CodeshotHandler) Render(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := codeshot.DecodeRequest(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	img, err := h.renderer.Render(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}
