package handler

import (
	"context"
	"net/http"

	"github.com/sofragment/fragment/internal/model"
	"github.com/sofragment/fragment/internal/validate"
)

// Accounts is the subset of the user service the HTTP layer needs.
type Accounts interface {
	CreateUser(ctx context.Context, username, email, password string) (*model.AuthResponse, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.AuthResponse, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUser(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error)
	ChangePassword(ctx context.Context, id, current, next string) error
	DeleteUser(ctx context.Context, id string) error
}

// AuthHandler serves registration and login.
type AuthHandler struct {
	Responder
	users Accounts
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(rs Responder, users Accounts) *AuthHandler {
	return &AuthHandler{Responder: rs, users: users}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var credentialMessages = validate.Messages{
	"username":          "Username must be between 3 and 30 characters",
	"username:username": "Username can only contain letters, numbers, underscores, and hyphens",
	"email":             "Must be a valid email address",
	"password":          "Password must be at least 8 characters long",
	"password:password": "Password must contain at least one letter and one number",
}

var loginMessages = validate.Messages{
	"email":    "Must be a valid email address",
	"password": "Password is required",
}

// Register creates an account and returns it with a session token.
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req, credentialMessages); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.users.CreateUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Login exchanges an email and password for a session token.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req, loginMessages); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
