package codeshot

import (
	"strings"
	"testing"

	"github.com/sofragment/fragment/internal/apperr"
)

func TestDecodeRequestMergesDefaults(t *testing.T) {
	body := `{"code":"x := 1","theme":"monokai","output":{"format":"jpeg"},"developer":{"showPath":true}}`
	req, err := DecodeRequest(strings.NewReader(body))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if req.Theme != "monokai" {
		t.Errorf("theme: got %q", req.Theme)
	}
	if req.Output.Format != FormatJPEG {
		t.Errorf("format: got %q", req.Output.Format)
	}
	// Fields absent from a partial object keep their defaults.
	if req.Output.Width != 800 || req.Output.Height != 600 || req.Output.Quality != 100 {
		t.Errorf("output defaults lost: %+v", req.Output)
	}
	if req.Developer.TabSize != 4 || req.Developer.Path != "example.code" || !req.Developer.ShowPath {
		t.Errorf("developer merge: %+v", req.Developer)
	}
	if !req.LineNumbers || req.Window != "editor" || req.Padding != 20 {
		t.Errorf("top-level defaults lost: %+v", req.Options)
	}
}

func TestDecodeRequestExplicitFalse(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"code":"a","lineNumbers":false,"padding":0}`))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.LineNumbers {
		t.Error("explicit false overridden by default")
	}
	if req.Padding != 0 {
		t.Errorf("padding: got %d", req.Padding)
	}
}

func TestDecodeRequestBadJSON(t *testing.T) {
	_, err := DecodeRequest(strings.NewReader(`{"code":"a","lineNumbers":"yes"}`))
	if !apperr.Is(err, apperr.TypeValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing code", `{}`, "Code content is required"},
		{"too long", `{"code":"` + strings.Repeat("a", MaxCodeLength+1) + `"}`, "Code content must not exceed 50000 characters"},
		{"theme", `{"code":"a","theme":"neon"}`, "Invalid theme selection"},
		{"background style", `{"code":"a","background":{"style":"plaid"}}`, "Invalid background style"},
		{"color", `{"code":"a","background":{"color":"red"}}`, "Invalid color format"},
		{"window", `{"code":"a","window":"tiled"}`, "Invalid window style"},
		{"font size", `{"code":"a","font":{"size":40}}`, "Font size must be between 8 and 32"},
		{"highlight", `{"code":"a","highlight":[1,0]}`, "Invalid line number in highlight array"},
		{"highlight too long", `{"code":"a","highlight":[` + strings.Repeat("9,", MaxHighlightLines) + `9]}`, "At most 1000 lines can be highlighted"},
		{"range start", `{"code":"a","range":{"start":0,"end":2}}`, "Invalid range start"},
		{"range order", `{"code":"a","range":{"start":3,"end":2}}`, "Invalid range end"},
		{"format", `{"code":"a","output":{"format":"gif"}}`, "Invalid output format"},
		{"quality", `{"code":"a","output":{"quality":0}}`, "Quality must be between 1 and 100"},
		{"width", `{"code":"a","output":{"width":99}}`, "Width must be between 100 and 4000"},
		{"height", `{"code":"a","output":{"height":4001}}`, "Height must be between 100 and 4000"},
		{"tab size", `{"code":"a","developer":{"tabSize":9}}`, "Tab size must be between 2 and 8"},
		{"padding", `{"code":"a","padding":200}`, "Padding must be between 0 and 128"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest(strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("DecodeRequest: %v", err)
			}
			err = req.Validate()
			e, ok := apperr.As(err)
			if !ok || e.Type != apperr.TypeValidation {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if e.Message != tt.msg {
				t.Errorf("got %q, want %q", e.Message, tt.msg)
			}
		})
	}
}

func TestRangeAcceptedAndShortColor(t *testing.T) {
	req, _ := DecodeRequest(strings.NewReader(`{"code":"a","range":{"start":1,"end":1},"background":{"color":"#abc"}}`))
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFormatContentType(t *testing.T) {
	tests := map[Format]string{
		FormatPNG:  "image/png",
		FormatJPEG: "image/jpeg",
		FormatSVG:  "image/svg+xml",
	}
	for f, want := range tests {
		if got := f.ContentType(); got != want {
			t.Errorf("%s: got %q, want %q", f, got, want)
		}
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(nil)
	if err != nil || opts.Theme != "dark" {
		t.Fatalf("empty options: %+v, %v", opts, err)
	}
	opts, err = ParseOptions([]byte(`{"theme":"light","font":{"size":20}}`))
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	if opts.Theme != "light" || opts.Font.Size != 20 || opts.Font.Family != "JetBrains Mono" {
		t.Errorf("got %+v", opts)
	}
}
