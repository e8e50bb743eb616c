//go:build debug

package ui

import (
	"io/fs"
	"os"
)

// Templates reads ui/templates from disk, relative to the working directory.
// Template edits need a restart but no rebuild.
func Templates() fs.FS {
	return os.DirFS("ui/templates")
}
