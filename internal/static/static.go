package static

import (
	"embed"
	"io/fs"
)

//go:embed static/*
var StaticFS embed.FS

// Files returns the embedded assets rooted at the static directory.
func Files() fs.FS {
	sub, err := fs.Sub(StaticFS, "static")
	if err != nil {
		// the directory is embedded, so this cannot happen
		panic(err)
	}
	return sub
}
