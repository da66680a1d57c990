package ui

import "embed"

// Dist embeds the compiled portfolio frontend. The checked-in dist/ holds a
// placeholder index.html until the frontend build replaces it.
//
//go:embed all:dist
var Dist embed.FS
