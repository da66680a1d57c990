package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sofragment/fragment/internal/model"
	"github.com/sofragment/fragment/internal/validate"
)

// Keys is the subset of the API key service the HTTP layer needs.
type Keys interface {
	GenerateAPIKey(ctx context.Context, ownerID, name string, isAdmin bool) (*model.APIKey, error)
	ListAPIKeys(ctx context.Context, ownerID string) ([]model.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID, ownerID string) error
}

// KeyHandler issues, lists and revokes the caller's API keys.
type KeyHandler struct {
	Responder
	keys Keys
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(rs Responder, keys Keys) *KeyHandler {
	return &KeyHandler{Responder: rs, keys: keys}
}

type createKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

var keyMessages = validate.Messages{
	"name": "API key name must be between 1 and 100 characters",
}

// Create issues a standard API key. The plaintext is returned once.
// POST /api/keys
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, false)
}

// CreateAdmin issues an admin API key. The route must be guarded by both a
// session token and an admin key.
// POST /api/admin/keys
func (h *KeyHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, true)
}

func (h *KeyHandler) create(w http.ResponseWriter, r *http.Request, admin bool) {
	id, err := identity(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req createKeyRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req, keyMessages); err != nil {
		h.writeError(w, r, err)
		return
	}

	key, err := h.keys.GenerateAPIKey(r.Context(), id.UserID, req.Name, admin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

// List returns the caller's usable keys, newest first.
// GET /api/keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	keys, err := h.keys.ListAPIKeys(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// Revoke disables one of the caller's keys.
// DELETE /api/keys/{keyId}
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.keys.RevokeAPIKey(r.Context(), chi.URLParam(r, "keyId"), id.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
