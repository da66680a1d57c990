package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/model"
	"github.com/sofragment/fragment/internal/secrets"
	"github.com/sofragment/fragment/internal/service"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestRequestIDRejectsUnsafeClientID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"dotted trace id", "svc.checkout_01-abc", true},
		{"max length", strings.Repeat("a", MaxRequestIDLength), true},
		{"too long", strings.Repeat("a", MaxRequestIDLength+1), false},
		{"space", "trace id", false},
		{"newline", "abc\nforged log line", false},
		{"quote", `abc"def`, false},
		{"non-ascii", "trace-\u00e9", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header[HeaderRequestID] = []string{tt.header}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			respID := rr.Header().Get(HeaderRequestID)
			if respID != ctxID {
				t.Errorf("response ID %q differs from context ID %q", respID, ctxID)
			}
			if tt.keep {
				if respID != tt.header {
					t.Errorf("expected client ID to be kept, got %q", respID)
				}
				return
			}
			if respID == tt.header {
				t.Errorf("expected client ID %q to be replaced", tt.header)
			}
			if len(respID) != 36 {
				t.Errorf("expected generated UUID, got %q", respID)
			}
		})
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Auth middleware tests
// ---------------------------------------------------------------------------

type fakeTokens struct{}

func (fakeTokens) ValidateToken(token string) (*service.Claims, error) {
	switch token {
	case "":
		return nil, service.ErrTokenMissing
	case "expired":
		return nil, service.ErrTokenExpired
	case "alice", "admin", "ghost":
		c := &service.Claims{}
		c.Subject = token
		return c, nil
	default:
		return nil, service.ErrTokenInvalid
	}
}

type fakeUsers map[string]*model.User

func (f fakeUsers) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("User")
}

type fakeKeys map[string]*model.APIKey

func (f fakeKeys) ValidateAPIKey(_ context.Context, raw string) (*model.APIKey, error) {
	if !secrets.ValidKeyFormat(raw) {
		return nil, service.ErrKeyFormat
	}
	if k, ok := f[raw]; ok {
		if k.IsRevoked {
			return nil, service.ErrKeyRevoked
		}
		return k, nil
	}
	return nil, service.ErrKeyInvalid
}

type failureLog []string

func (f *failureLog) AuthFailure(method, reason string) {
	*f = append(*f, method+":"+reason)
}

func newTestAuth() (*Auth, *failureLog) {
	users := fakeUsers{
		"alice": {ID: "alice", Username: "alice", Email: "alice@example.com", Role: model.RoleUser},
		"admin": {ID: "admin", Username: "root", Email: "root@example.com", Role: model.RoleAdmin},
	}
	keys := fakeKeys{
		"frgmt-alice":       {ID: "k1", UserID: "alice", Name: "ci"},
		"frgmt-admin-root":  {ID: "k2", UserID: "admin", Name: "ops", IsAdmin: true},
		"frgmt-admin-fake":  {ID: "k3", UserID: "alice", Name: "mislabelled"},
		"frgmt-revoked":     {ID: "k4", UserID: "alice", IsRevoked: true},
		"frgmt-orphan":      {ID: "k5", UserID: "ghost"},
	}
	log := &failureLog{}
	return NewAuth(fakeTokens{}, users, keys, log), log
}

type captured struct {
	identity *Identity
	key      *KeyInfo
}

func capture(c *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.identity = GetIdentity(r.Context())
		c.key = GetKeyInfo(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorDetail {
	t.Helper()
	var body model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestRequireToken(t *testing.T) {
	auth, _ := newTestAuth()

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing", "", 401, "Authentication token is required"},
		{"not bearer", "Basic abc", 401, "Authentication token is required"},
		{"invalid", "Bearer garbage", 401, "Invalid token"},
		{"expired", "Bearer expired", 401, "Token expired"},
		{"deleted user", "Bearer ghost", 401, "User not found"},
		{"ok", "Bearer alice", 200, ""},
		{"case insensitive scheme", "bearer alice", 200, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c captured
			req := httptest.NewRequest("GET", "/api/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			auth.RequireToken(capture(&c)).ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.status)
			}
			if tt.status != 200 {
				e := decodeError(t, rr)
				if e.Type != "AuthenticationError" || e.Message != tt.message {
					t.Errorf("got %+v", e)
				}
				return
			}
			if c.identity == nil || c.identity.UserID != "alice" || c.identity.Email != "alice@example.com" {
				t.Errorf("identity: %+v", c.identity)
			}
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	auth, log := newTestAuth()

	tests := []struct {
		name    string
		key     string
		status  int
		typ     string
		message string
	}{
		{"missing", "", 401, "AuthenticationError", "API key is required"},
		{"bad format", "nope", 400, "ValidationError", "Invalid API key format"},
		{"unknown", "frgmt-unknown", 401, "AuthenticationError", "Invalid API key"},
		{"revoked", "frgmt-revoked", 401, "AuthenticationError", "API key has been revoked"},
		{"orphan", "frgmt-orphan", 401, "AuthenticationError", "User not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/tools/codeshot", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rr := httptest.NewRecorder()
			auth.RequireAPIKey(capture(&captured{})).ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.status)
			}
			e := decodeError(t, rr)
			if e.Type != tt.typ || e.Message != tt.message {
				t.Errorf("got %+v", e)
			}
		})
	}
	if len(*log) != len(tests) {
		t.Errorf("recorded %d failures, want %d: %v", len(*log), len(tests), *log)
	}
	if (*log)[3] != "api_key:revoked" {
		t.Errorf("failure reason: got %q", (*log)[3])
	}

	var c captured
	req := httptest.NewRequest("POST", "/api/tools/codeshot", nil)
	req.Header.Set("X-API-Key", "frgmt-alice")
	rr := httptest.NewRecorder()
	auth.RequireAPIKey(capture(&c)).ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("status: got %d", rr.Code)
	}
	if c.identity == nil || c.identity.UserID != "alice" {
		t.Errorf("identity: %+v", c.identity)
	}
	if c.key == nil || c.key.ID != "k1" || c.key.IsAdmin {
		t.Errorf("key info: %+v", c.key)
	}
}

func TestRequireAdminKey(t *testing.T) {
	auth, _ := newTestAuth()

	tests := []struct {
		name    string
		key     string
		status  int
		message string
	}{
		{"missing", "", 403, "Admin API key required"},
		{"standard key", "frgmt-alice", 403, "Admin API key required"},
		{"admin prefix without admin flag", "frgmt-admin-fake", 403, "Admin API key required"},
		{"unknown admin key", "frgmt-admin-nope", 401, "Invalid API key"},
		{"ok", "frgmt-admin-root", 200, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/admin/keys", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rr := httptest.NewRecorder()
			auth.RequireAdminKey(capture(&captured{})).ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.status)
			}
			if tt.message != "" {
				if e := decodeError(t, rr); e.Message != tt.message {
					t.Errorf("message: got %q", e.Message)
				}
			}
		})
	}
}

func TestTokenThenAdminKeyKeepsTokenSubject(t *testing.T) {
	auth, _ := newTestAuth()

	var c captured
	h := auth.RequireToken(auth.RequireAdminKey(capture(&c)))

	req := httptest.NewRequest("POST", "/api/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer alice")
	req.Header.Set("X-API-Key", "frgmt-admin-root")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status: got %d", rr.Code)
	}
	if c.identity.UserID != "alice" {
		t.Errorf("subject replaced by key owner: %+v", c.identity)
	}
	if c.key == nil || !c.key.IsAdmin || c.key.OwnerID != "admin" {
		t.Errorf("key info: %+v", c.key)
	}

	// An ADMIN-role token alone does not open an admin-key route.
	req = httptest.NewRequest("POST", "/api/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer admin")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	auth, _ := newTestAuth()
	h := auth.RequireToken(RequireRole(model.RoleAdmin)(capture(&captured{})))

	for _, tt := range []struct {
		token  string
		status int
	}{
		{"alice", 403},
		{"admin", 200},
	} {
		req := httptest.NewRequest("DELETE", "/api/admin/users/x", nil)
		req.Header.Set("Authorization", "Bearer "+tt.token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tt.status {
			t.Errorf("%s: got %d, want %d", tt.token, rr.Code, tt.status)
		}
		if tt.status == 403 {
			if e := decodeError(t, rr); e.Type != "AuthorizationError" || e.Message != "Admin privileges required" {
				t.Errorf("got %+v", e)
			}
		}
	}

	rr := httptest.NewRecorder()
	RequireRole(model.RoleAdmin)(capture(&captured{})).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusForbidden {
		t.Errorf("no identity: got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// RateLimit middleware tests
// ---------------------------------------------------------------------------

func TestRateLimitEnvelope(t *testing.T) {
	h := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/health", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status: got %d, want 429", last.Code)
	}
	if e := decodeError(t, last); e.Type != "RateLimitError" {
		t.Errorf("got %+v", e)
	}

	// A different client is unaffected.
	req := httptest.NewRequest("GET", "/api/health", nil)
	req.RemoteAddr = "203.0.113.8:5000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("other client: got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Logger middleware tests
// ---------------------------------------------------------------------------

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("nope"))
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["level"] != "WARN" {
		t.Errorf("level: got %v", entry["level"])
	}
	if entry["status"] != float64(404) || entry["bytes"] != float64(4) {
		t.Errorf("entry: %v", entry)
	}
	if entry["request_id"] == "" {
		t.Error("missing request id")
	}
}
