//go:build !debug

package ui

import (
	"embed"
	"io/fs"
)

//go:embed templates
var templatesFS embed.FS

// Templates returns the embedded admin page templates (production: baked into binary).
func Templates() fs.FS {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		// templates is a literal embedded directory
		panic(err)
	}
	return sub
}
