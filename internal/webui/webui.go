// Package webui embeds the single-page correction form served at the
// API root.
package webui

import _ "embed"

//go:embed static/index.html
var index []byte

// Index returns the correction page.
func Index() []byte { return index }
