package codeshot

// Theme is the palette of a rendering theme plus the chroma stylesheet used
// for token colours.
type Theme struct {
	Name       string
	Background string
	Foreground string
	Accent     string
	Style      string
}

var themes = map[string]Theme{
	"light":     {Name: "light", Background: "#ffffff", Foreground: "#000000", Accent: "#007acc", Style: "github"},
	"dark":      {Name: "dark", Background: "#1a1a1a", Foreground: "#ffffff", Accent: "#007acc", Style: "native"},
	"dracula":   {Name: "dracula", Background: "#282a36", Foreground: "#f8f8f2", Accent: "#bd93f9", Style: "dracula"},
	"monokai":   {Name: "monokai", Background: "#272822", Foreground: "#f8f8f2", Accent: "#a6e22e", Style: "monokai"},
	"solarized": {Name: "solarized", Background: "#002b36", Foreground: "#839496", Accent: "#b58900", Style: "solarized-dark"},
}

// LookupTheme returns the named theme, falling back to dark.
func LookupTheme(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return themes["dark"]
}

// Themes lists the theme names in a stable order.
func Themes() []string {
	return []string{"light", "dark", "dracula", "monokai", "solarized"}
}
