// Package codeshot renders source code into images. A request is turned
// into a standalone HTML document (syntax coloured with chroma) which a
// headless Chrome tab captures as PNG, then re-encodes as requested.
package codeshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/validate"
)

// MaxCodeLength is the largest accepted code payload, in characters.
const MaxCodeLength = 50000

// MaxHighlightLines bounds the highlight list; it matches the validate tag.
const MaxHighlightLines = 1000

// Format is an output image format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatSVG  Format = "svg"
)

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatSVG:
		return "image/svg+xml"
	default:
		return "image/png"
	}
}

type Background struct {
	Style string `json:"style" validate:"oneof=solid gradient pattern"`
	Color string `json:"color" validate:"color"`
}

type Font struct {
	Family string `json:"family" validate:"max=100"`
	Size   int    `json:"size" validate:"min=8,max=32"`
}

// Range selects a span of lines. It is validated and accepted but does not
// affect rendering.
type Range struct {
	Start int `json:"start" validate:"min=1"`
	End   int `json:"end" validate:"min=1,gtefield=Start"`
}

type Output struct {
	Format  Format `json:"format" validate:"oneof=png jpeg svg"`
	Quality int    `json:"quality" validate:"min=1,max=100"`
	Width   int    `json:"width" validate:"min=100,max=4000"`
	Height  int    `json:"height" validate:"min=100,max=4000"`
}

type Developer struct {
	Language string `json:"language" validate:"max=64"`
	ShowPath bool   `json:"showPath"`
	Path     string `json:"path" validate:"max=255"`
	TabSize  int    `json:"tabSize" validate:"min=2,max=8"`
	WordWrap bool   `json:"wordWrap"`
}

// Options control how code is laid out and captured.
type Options struct {
	Theme       string     `json:"theme" validate:"oneof=light dark dracula monokai solarized"`
	Background  Background `json:"background"`
	Window      string     `json:"window" validate:"oneof=clean browser editor"`
	Font        Font       `json:"font"`
	LineNumbers bool       `json:"lineNumbers"`
	Highlight   []int      `json:"highlight,omitempty" validate:"omitempty,max=1000,dive,min=1"`
	Range       *Range     `json:"range,omitempty"`
	Output      Output     `json:"output"`
	Developer   Developer  `json:"developer"`
	Padding     int        `json:"padding" validate:"min=0,max=128"`
}

// Request is the body of a codeshot call: the code plus its options at the
// top level.
type Request struct {
	Code string `json:"code" validate:"required,max=50000"`
	Options
}

// DefaultOptions returns the options used for every field a caller omits.
func DefaultOptions() Options {
	return Options{
		Theme:       "dark",
		Background:  Background{Style: "solid", Color: "#1a1a1a"},
		Window:      "editor",
		Font:        Font{Family: "JetBrains Mono", Size: 14},
		LineNumbers: true,
		Output:      Output{Format: FormatPNG, Quality: 100, Width: 800, Height: 600},
		Developer:   Developer{Language: "auto", Path: "example.code", TabSize: 4},
		Padding:     20,
	}
}

// NewRequest returns a request pre-filled with defaults. Decoding JSON into
// it overrides only the fields present in the payload, so a partial
// "output" object keeps the default width and height.
func NewRequest() *Request {
	return &Request{Options: DefaultOptions()}
}

// DecodeRequest reads a JSON request body and applies defaults. It does not
// validate.
func DecodeRequest(r io.Reader) (*Request, error) {
	req := NewRequest()
	dec := json.NewDecoder(r)
	if err := dec.Decode(req); err != nil {
		return nil, apperr.Validation(fmt.Sprintf("Invalid request body: %v", err))
	}
	return req, nil
}

// ParseOptions merges a JSON options object over the defaults.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if len(bytes.TrimSpace(data)) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		return opts, apperr.Validation(fmt.Sprintf("Invalid options: %v", err))
	}
	return opts, nil
}

var messages = validate.Messages{
	"code":               "Code content is required",
	"code:max":           "Code content must not exceed 50000 characters",
	"theme":              "Invalid theme selection",
	"background.style":   "Invalid background style",
	"background.color":   "Invalid color format",
	"window":             "Invalid window style",
	"font.family":        "Font family must be a string of at most 100 characters",
	"font.size":          "Font size must be between 8 and 32",
	"highlight":          "Invalid line number in highlight array",
	"highlight:max":      "At most 1000 lines can be highlighted",
	"range.start":        "Invalid range start",
	"range.end":          "Invalid range end",
	"output.format":      "Invalid output format",
	"output.quality":     "Quality must be between 1 and 100",
	"output.width":       "Width must be between 100 and 4000",
	"output.height":      "Height must be between 100 and 4000",
	"developer.language": "Language must be a string",
	"developer.path":     "Path must be at most 255 characters",
	"developer.tabSize":  "Tab size must be between 2 and 8",
	"padding":            "Padding must be between 0 and 128",
}

// Validate checks every field and returns a ValidationError naming the
// offending ones.
func (r *Request) Validate() error {
	return validate.Struct(r, messages)
}

// Validate checks the options alone.
func (o *Options) Validate() error {
	return validate.Struct(o, messages)
}

// HighlightSet returns the highlighted 1-based line numbers as a set.
func (o *Options) HighlightSet() map[int]struct{} {
	set := make(map[int]struct{}, len(o.Highlight))
	for _, h := range o.Highlight {
		set[h] = struct{}{}
	}
	return set
}
