package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/model"
	"github.com/sofragment/fragment/internal/validate"
)

// UserHandler serves the caller's own profile and the admin user routes.
type UserHandler struct {
	Responder
	users Accounts
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(rs Responder, users Accounts) *UserHandler {
	return &UserHandler{Responder: rs, users: users}
}

type updateProfileRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=30,username"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,password"`
}

var passwordMessages = validate.Messages{
	"currentPassword":      "Current password is required",
	"newPassword":          "Password must be at least 8 characters long",
	"newPassword:password": "Password must contain at least one letter and one number",
}

// Me returns the caller's profile.
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.users.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateMe changes the caller's username and/or email.
// PATCH /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req updateProfileRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req, credentialMessages); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.users.UpdateUser(r.Context(), id.UserID, model.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ChangePassword replaces the caller's password after checking the current
// one.
// PUT /api/users/me/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req changePasswordRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req, passwordMessages); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.users.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMe removes the caller's account together with its API keys.
// DELETE /api/users/me
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.users.DeleteUser(r.Context(), id.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser removes any account. Mounted behind RequireRole(ADMIN).
// DELETE /api/admin/users/{userId}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		h.writeError(w, r, apperr.Validation("User id is required"))
		return
	}

	if err := h.users.DeleteUser(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
