package codeshot

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
)

// escaper replaces only the characters that would break the markup.
var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape HTML-escapes <, > and &.
func Escape(s string) string {
	return escaper.Replace(s)
}

// fontFamilyCleaner drops characters that could close the CSS declaration.
var fontFamilyCleaner = strings.NewReplacer(`'`, "", `"`, "", ";", "", "{", "", "}", "", "<", "", ">", "", `\`, "")

type documentData struct {
	Opts       *Options
	Theme      Theme
	Background string
	FontFamily string
	ChromaCSS  string
	ShowHeader bool
	Browser    bool
	Path       string
	Lines      string
	Highlight  bool
}

var documentTmpl = template.Must(template.New("codeshot").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
body {
  margin: 0;
  padding: {{.Opts.Padding}}px;
  background: {{.Background}};
  display: flex;
  justify-content: center;
  align-items: center;
  min-height: 100vh;
  box-sizing: border-box;
}
.container {
  background: {{.Theme.Background}};
  border-radius: {{if .ShowHeader}}8px{{else}}0{{end}};
  box-shadow: {{if .ShowHeader}}0 4px 24px rgba(0,0,0,0.2){{else}}none{{end}};
  overflow: hidden;
  width: fit-content;
  max-width: 90vw;
}
.window-header {
  display: flex;
  align-items: center;
  padding: 8px 16px;
  background: {{.Theme.Background}};
  border-bottom: 1px solid {{.Theme.Accent}}30;
}
.window-controls { display: flex; gap: 6px; }
.window-control { width: 12px; height: 12px; border-radius: 50%; background: {{.Theme.Accent}}50; }
{{- if .Browser}}
.window-control:nth-child(1) { background: #ff5f56; }
.window-control:nth-child(2) { background: #ffbd2e; }
.window-control:nth-child(3) { background: #27c93f; }
.address-bar {
  margin-left: 20px;
  flex: 1;
  padding: 2px 12px;
  border-radius: 12px;
  background: {{.Theme.Foreground}}10;
  color: {{.Theme.Foreground}}80;
  font-family: sans-serif;
  font-size: 12px;
}
{{- end}}
.file-path { margin-left: 20px; color: {{.Theme.Foreground}}50; font-family: sans-serif; font-size: 12px; }
.code-container { padding: 20px; overflow-x: auto; position: relative; }
pre {
  margin: 0;
  font-family: '{{.FontFamily}}', 'JetBrains Mono', monospace;
  font-size: {{.Opts.Font.Size}}px;
  line-height: 1.5;
  tab-size: {{.Opts.Developer.TabSize}};
  white-space: {{if .Opts.Developer.WordWrap}}pre-wrap{{else}}pre{{end}};
  counter-reset: line;
}
code { color: {{.Theme.Foreground}}; }
{{.ChromaCSS}}
.chroma { background: transparent; color: {{.Theme.Foreground}}; }
{{- if .Opts.LineNumbers}}
pre.chroma .line {
  display: inline-block;
  width: 100%;
  padding-left: 3.5em;
  counter-increment: line;
  position: relative;
  box-sizing: border-box;
}
pre.chroma .line::before {
  content: counter(line);
  position: absolute;
  left: 0;
  color: {{.Theme.Accent}}50;
  text-align: right;
  width: 3em;
  padding-right: 0.5em;
}
{{- else}}
pre.chroma .line { display: inline; }
{{- end}}
{{- if .Highlight}}
pre.chroma .highlight {
  background: {{.Theme.Accent}}20;
  width: 100%;
  display: inline-block;
}
{{- end}}
</style>
</head>
<body>
<div class="container">
{{- if .ShowHeader}}
<div class="window-header">
<div class="window-controls"><div class="window-control"></div><div class="window-control"></div><div class="window-control"></div></div>
{{- if .Browser}}
<div class="address-bar">{{.Path}}</div>
{{- else if .Opts.Developer.ShowPath}}
<div class="file-path">{{.Path}}</div>
{{- end}}
</div>
{{- end}}
<div class="code-container">
<pre class="chroma"><code>{{.Lines}}</code></pre>
</div>
</div>
</body>
</html>
`))

// BuildDocument renders code and opts into a standalone HTML page whose
// .container element is what gets captured.
func BuildDocument(code string, opts *Options) (string, error) {
	theme := LookupTheme(opts.Theme)

	lines, err := highlightLines(code, opts)
	if err != nil {
		return "", err
	}

	var css strings.Builder
	formatter := html.New(html.WithClasses(true))
	if err := formatter.WriteCSS(&css, styles.Get(theme.Style)); err != nil {
		return "", fmt.Errorf("write stylesheet: %w", err)
	}

	data := documentData{
		Opts:       opts,
		Theme:      theme,
		Background: backgroundCSS(opts.Background, theme),
		FontFamily: fontFamilyCleaner.Replace(opts.Font.Family),
		ChromaCSS:  css.String(),
		ShowHeader: opts.Window != "clean",
		Browser:    opts.Window == "browser",
		Path:       Escape(opts.Developer.Path),
		Lines:      lines,
		Highlight:  len(opts.Highlight) > 0,
	}

	var out strings.Builder
	if err := documentTmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return out.String(), nil
}

func backgroundCSS(bg Background, theme Theme) string {
	switch bg.Style {
	case "gradient":
		return fmt.Sprintf("linear-gradient(%s, %s)", bg.Color, theme.Background)
	case "pattern":
		return fmt.Sprintf("radial-gradient(%s40 1px, transparent 1px) 0 0 / 16px 16px, %s", theme.Accent, bg.Color)
	default:
		return bg.Color
	}
}

// highlightLines tokenises code and returns one <span class="line"> per
// source line, joined by newlines, with token spans classed for the chroma
// stylesheet.
func highlightLines(code string, opts *Options) (string, error) {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	want := strings.Count(code, "\n") + 1

	lexer := chroma.Coalesce(selectLexer(code, &opts.Developer))
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", fmt.Errorf("tokenise: %w", err)
	}

	lines := make([]string, 0, want)
	var cur strings.Builder
	for _, tok := range it.Tokens() {
		cls := tokenClass(tok.Type)
		for i, part := range strings.Split(tok.Value, "\n") {
			if i > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			if part == "" {
				continue
			}
			if cls == "" {
				cur.WriteString(Escape(part))
				continue
			}
			fmt.Fprintf(&cur, `<span class="%s">%s</span>`, cls, Escape(part))
		}
	}
	lines = append(lines, cur.String())

	// Lexers may append a trailing newline; keep exactly one entry per
	// source line.
	for len(lines) < want {
		lines = append(lines, "")
	}
	lines = lines[:want]

	highlighted := opts.HighlightSet()
	var out strings.Builder
	for i := range lines {
		if i > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(`<span class="line`)
		if _, ok := highlighted[i+1]; ok {
			out.WriteString(" highlight")
		}
		out.WriteString(`">`)
		out.WriteString(lines[i])
		out.WriteString(`</span>`)
	}
	return out.String(), nil
}

// Languages lists the language names accepted by developer.language, in
// addition to "auto".
func Languages() []string {
	return lexers.Names(false)
}

// selectLexer picks a lexer by language name, then by file path, then by
// content analysis, falling back to plain text.
func selectLexer(code string, dev *Developer) chroma.Lexer {
	lang := strings.ToLower(strings.TrimSpace(dev.Language))
	if lang != "" && lang != "auto" {
		if l := lexers.Get(lang); l != nil {
			return l
		}
	}
	if dev.Path != "" && dev.Path != "example.code" {
		if l := lexers.Match(dev.Path); l != nil {
			return l
		}
	}
	if l := lexers.Analyse(code); l != nil {
		return l
	}
	return lexers.Fallback
}

// tokenClass returns the short CSS class chroma's stylesheet uses for t,
// walking up to the sub-category and category when t has none.
func tokenClass(t chroma.TokenType) string {
	for _, tt := range []chroma.TokenType{t, t.SubCategory(), t.Category()} {
		if cls, ok := chroma.StandardTypes[tt]; ok {
			return cls
		}
	}
	return ""
}
