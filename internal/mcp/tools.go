package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/codeshot"
)

// registerTools registers the codeshot tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {
	srv.AddTool(
		mcp.NewTool("codeshot_render",
			mcp.WithDescription(
				"Render source code as an image. Returns the image content in the requested "+
					"format. Flat parameters cover the common cases; pass 'options' for the full "+
					"option set (same shape as the HTTP API body without 'code').",
			),
			mcp.WithToolAnnotation(renderAnnotation()),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Source code to render (at most 50000 characters)"),
			),
			mcp.WithString("language",
				mcp.Description("Language name, e.g. go, python, typescript. Defaults to auto-detection"),
			),
			mcp.WithString("theme",
				mcp.Description("Colour theme"),
				mcp.Enum(codeshot.Themes()...),
			),
			mcp.WithString("format",
				mcp.Description("Output format"),
				mcp.Enum(string(codeshot.FormatPNG), string(codeshot.FormatJPEG), string(codeshot.FormatSVG)),
			),
			mcp.WithBoolean("line_numbers",
				mcp.Description("Show a line number gutter (default true)"),
			),
			mcp.WithArray("highlight",
				mcp.Description("1-based line numbers to highlight"),
				mcp.Items(map[string]any{"type": "integer", "minimum": 1}),
			),
			mcp.WithNumber("width",
				mcp.Description("Viewport width in pixels (100-4000)"),
			),
			mcp.WithObject("options",
				mcp.Description("Full codeshot options object; flat parameters override it"),
			),
		),
		s.handleRender,
	)

	srv.AddTool(
		mcp.NewTool("codeshot_themes",
			mcp.WithDescription("List the available codeshot themes with their colours."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleThemes,
	)

	srv.AddTool(
		mcp.NewTool("codeshot_languages",
			mcp.WithDescription(
				"List the language names accepted by the 'language' parameter. "+
					"Use a filter to search, the full list is long.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("filter",
				mcp.Description("Case-insensitive substring to match"),
			),
		),
		s.handleLanguages,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

// handleRender builds a codeshot request from the tool arguments and
// returns the rendered image.
func (s *MCPServer) handleRender(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	req, err := renderRequest(request)
	if err != nil {
		return toolError("%v", err)
	}

	img, err := s.renderer.Render(ctx, req)
	if err != nil {
		return renderError(err)
	}

	summary := fmt.Sprintf("Rendered %d lines as %s (%d bytes)",
		strings.Count(req.Code, "\n")+1, img.Format, len(img.Data))
	return mcp.NewToolResultImage(summary, base64.StdEncoding.EncodeToString(img.Data), img.ContentType()), nil
}

// renderRequest merges the 'options' object over the defaults and then
// applies the flat parameters.
func renderRequest(request mcp.CallToolRequest) (*codeshot.Request, error) {
	code, err := requireString(request, "code")
	if err != nil {
		return nil, err
	}

	req := codeshot.NewRequest()
	req.Code = code

	if raw := getObjectArg(request, "options"); raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid options: %w", err)
		}
		opts, err := codeshot.ParseOptions(data)
		if err != nil {
			return nil, err
		}
		req.Options = opts
	}

	if v := optionalString(request, "language"); v != "" {
		req.Developer.Language = v
	}
	if v := optionalString(request, "theme"); v != "" {
		req.Theme = v
	}
	if v := optionalString(request, "format"); v != "" {
		req.Output.Format = codeshot.Format(v)
	}
	if hasArg(request, "line_numbers") {
		req.LineNumbers = request.GetBool("line_numbers", req.LineNumbers)
	}
	if lines := optionalIntSlice(request, "highlight"); lines != nil {
		req.Highlight = lines
	}
	if hasArg(request, "width") {
		req.Output.Width = optionalInt(request, "width", req.Output.Width)
	}
	return req, nil
}

// renderError reports validation problems with their field details so the
// caller can correct the arguments.
func renderError(err error) (*mcp.CallToolResult, error) {
	e, ok := apperr.As(err)
	if !ok {
		return toolError("Render failed: %v", err)
	}
	if e.Details != nil {
		details, _ := json.Marshal(e.Details)
		return toolError("%s: %s %s", e.Type, e.Message, details)
	}
	return toolError("%s: %s", e.Type, e.Message)
}

// handleThemes returns the theme palettes.
func (s *MCPServer) handleThemes(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	type themeInfo struct {
		Name       string `json:"name"`
		Background string `json:"background"`
		Foreground string `json:"foreground"`
		Accent     string `json:"accent"`
	}

	names := codeshot.Themes()
	items := make([]themeInfo, len(names))
	for i, name := range names {
		t := codeshot.LookupTheme(name)
		items[i] = themeInfo{
			Name:       t.Name,
			Background: t.Background,
			Foreground: t.Foreground,
			Accent:     t.Accent,
		}
	}
	return successJSON(items)
}

// handleLanguages returns the lexer names, optionally filtered.
func (s *MCPServer) handleLanguages(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	filter := strings.ToLower(optionalString(request, "filter"))
	var names []string
	for _, name := range codeshot.Languages() {
		if filter == "" || strings.Contains(strings.ToLower(name), filter) {
			names = append(names, name)
		}
	}
	return successJSON(map[string]interface{}{
		"count":     len(names),
		"languages": names,
	})
}
