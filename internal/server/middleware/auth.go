package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/model"
	"github.com/sofragment/fragment/internal/secrets"
	"github.com/sofragment/fragment/internal/service"
)

type contextKeyAuth string

const (
	identityKey contextKeyAuth = "auth_identity"
	keyInfoKey  contextKeyAuth = "auth_key"
)

var (
	errAPIKeyRequired   = apperr.Authentication("API key is required")
	errAdminKeyRequired = apperr.Authorization("Admin API key required")
	errUserNotFound     = apperr.Authentication("User not found")
)

// Identity is the user a request acts as.
type Identity struct {
	UserID   string
	Username string
	Email    string
	Role     model.Role
}

// KeyInfo describes the API key that authenticated a request.
type KeyInfo struct {
	ID      string
	Name    string
	IsAdmin bool
	OwnerID string
}

// TokenValidator verifies session tokens.
type TokenValidator interface {
	ValidateToken(token string) (*service.Claims, error)
}

// UserLookup resolves the subject of a credential.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// KeyValidator authenticates API keys.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, raw string) (*model.APIKey, error)
}

// FailureRecorder counts rejected credentials.
type FailureRecorder interface {
	AuthFailure(method, reason string)
}

// Auth builds the authentication middlewares.
type Auth struct {
	tokens   TokenValidator
	users    UserLookup
	keys     KeyValidator
	failures FailureRecorder
}

// NewAuth wires the credential checks. failures may be nil.
func NewAuth(tokens TokenValidator, users UserLookup, keys KeyValidator, failures FailureRecorder) *Auth {
	return &Auth{tokens: tokens, users: users, keys: keys, failures: failures}
}

// RequireToken authenticates the Bearer token in the Authorization header
// and attaches the token's user as the request Identity.
func (a *Auth) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		claims, err := a.tokens.ValidateToken(token)
		if err != nil {
			a.reject(w, "token", err)
			return
		}

		user, err := a.resolve(r.Context(), claims.UserID())
		if err != nil {
			a.reject(w, "token", err)
			return
		}

		ctx := withIdentity(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAPIKey authenticates the X-API-Key header. The key's owner becomes
// the Identity unless a token already set one.
func (a *Auth) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-API-Key")
		if raw == "" {
			a.reject(w, "api_key", errAPIKeyRequired)
			return
		}
		ctx, err := a.authenticateKey(r.Context(), raw, false)
		if err != nil {
			a.reject(w, "api_key", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdminKey is RequireAPIKey restricted to admin keys. A missing or
// non-admin key is an authorization failure.
func (a *Auth) RequireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-API-Key")
		if raw == "" || !secrets.IsAdminKey(raw) {
			a.reject(w, "api_key", errAdminKeyRequired)
			return
		}
		ctx, err := a.authenticateKey(r.Context(), raw, true)
		if err != nil {
			a.reject(w, "api_key", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) authenticateKey(ctx context.Context, raw string, requireAdmin bool) (context.Context, error) {
	key, err := a.keys.ValidateAPIKey(ctx, raw)
	if err != nil {
		return nil, err
	}
	if requireAdmin && !key.IsAdmin {
		return nil, errAdminKeyRequired
	}

	ctx = context.WithValue(ctx, keyInfoKey, &KeyInfo{
		ID:      key.ID,
		Name:    key.Name,
		IsAdmin: key.IsAdmin,
		OwnerID: key.UserID,
	})
	if GetIdentity(ctx) != nil {
		return ctx, nil
	}

	owner, err := a.resolve(ctx, key.UserID)
	if err != nil {
		return nil, err
	}
	return withIdentity(ctx, owner), nil
}

func (a *Auth) resolve(ctx context.Context, userID string) (*model.User, error) {
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		if apperr.Is(err, apperr.TypeNotFound) {
			return nil, errUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (a *Auth) reject(w http.ResponseWriter, method string, err error) {
	if a.failures != nil {
		a.failures.AuthFailure(method, failureReason(err))
	}
	apperr.Write(w, err, false)
}

func failureReason(err error) string {
	switch err {
	case service.ErrTokenMissing, errAPIKeyRequired:
		return "missing"
	case service.ErrTokenExpired, service.ErrKeyExpired:
		return "expired"
	case service.ErrKeyRevoked:
		return "revoked"
	case service.ErrKeyFormat:
		return "format"
	case errAdminKeyRequired:
		return "forbidden"
	case errUserNotFound:
		return "unknown_user"
	}
	if apperr.Is(err, apperr.TypeAuthentication) {
		return "invalid"
	}
	return "error"
}

// RequireRole rejects requests whose Identity does not carry role. It must
// run after RequireToken.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := GetIdentity(r.Context())
			if id == nil || id.Role != role {
				apperr.Write(w, apperr.Authorization("Admin privileges required"), false)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func withIdentity(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, identityKey, &Identity{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	})
}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the authenticated user, or nil.
func GetIdentity(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}

// GetKeyInfo returns the API key that authenticated the request, or nil.
func GetKeyInfo(ctx context.Context) *KeyInfo {
	if k, ok := ctx.Value(keyInfoKey).(*KeyInfo); ok {
		return k
	}
	return nil
}
