package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Authentication(""), http.StatusUnauthorized},
		{Authorization(""), http.StatusForbidden},
		{NotFound("User"), http.StatusNotFound},
		{RateLimit(""), http.StatusTooManyRequests},
		{Database("", nil), http.StatusInternalServerError},
		{Internal("", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.Status(); got != tt.want {
			t.Errorf("%s: got status %d, want %d", tt.err.Type, got, tt.want)
		}
	}
}

func TestNotFoundMessage(t *testing.T) {
	if got := NotFound("API key").Message; got != "API key not found" {
		t.Errorf("got %q", got)
	}
	if got := NotFound("").Message; got != "Resource not found" {
		t.Errorf("got %q", got)
	}
}

func TestAsThroughWrapping(t *testing.T) {
	base := Authentication("Invalid token")
	wrapped := fmt.Errorf("middleware: %w", base)

	got, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find *Error in chain")
	}
	if got != base {
		t.Error("expected the original *Error")
	}
	if !Is(wrapped, TypeAuthentication) {
		t.Error("expected Is to match TypeAuthentication")
	}
	if Is(wrapped, TypeValidation) {
		t.Error("did not expect Is to match TypeValidation")
	}
	if Is(errors.New("plain"), TypeInternal) {
		t.Error("plain errors carry no type")
	}
}

func TestInternalUnwrap(t *testing.T) {
	cause := errors.New("chrome crashed")
	err := Internal("Screenshot generation failed", cause)
	if !errors.Is(err, cause) {
		t.Error("expected Internal to wrap its cause")
	}
	if err.Error() != "Screenshot generation failed: chrome crashed" {
		t.Errorf("unexpected Error(): %q", err.Error())
	}
}

func TestWithDetailsCopies(t *testing.T) {
	base := Validation("Username already taken")
	withField := base.WithDetails(map[string]string{"field": "username"})
	if base.Details != nil {
		t.Error("WithDetails must not mutate the receiver")
	}
	if withField.Details == nil {
		t.Error("expected details on the copy")
	}
}

func TestEnvelope(t *testing.T) {
	status, body := Envelope(Validation("Email already registered").WithDetails(map[string]string{"field": "email"}), false)
	if status != http.StatusBadRequest {
		t.Errorf("status: got %d", status)
	}
	if body.Error.Type != "ValidationError" || body.Error.Message != "Email already registered" {
		t.Errorf("body: %+v", body)
	}

	status, body = Envelope(errors.New("pq: relation missing"), false)
	if status != http.StatusInternalServerError || body.Error.Message != "Internal server error" {
		t.Errorf("production envelope leaked: %d %+v", status, body)
	}
	_, body = Envelope(errors.New("pq: relation missing"), true)
	if body.Error.Message != "pq: relation missing" {
		t.Errorf("development envelope: %+v", body)
	}

}

func TestEnvelopeCause(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed")
	tests := []struct {
		name   string
		err    error
		expose bool
		want   string
	}{
		{"database in production", Database("Failed to create user", cause), false, "Failed to create user"},
		{"database in development", Database("Failed to create user", cause), true, "Failed to create user: UNIQUE constraint failed"},
		{"internal in development", Internal("Screenshot generation failed", cause), true, "Screenshot generation failed: UNIQUE constraint failed"},
		{"internal without cause", Internal("Screenshot generation failed", nil), true, "Screenshot generation failed"},
		{"client error keeps message", Validation("Invalid options"), true, "Invalid options"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body := Envelope(tt.err, tt.expose)
			if body.Error.Message != tt.want {
				t.Errorf("message = %q, want %q", body.Error.Message, tt.want)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, RateLimit(""), false)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: %q", ct)
	}
	want := `{"error":{"type":"RateLimitError","message":"Too many requests"}}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body: got %s, want %s", got, want)
	}
}
