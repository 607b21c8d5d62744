// Package web holds the HTML assets served next to the record API.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static views
var assets embed.FS

// Static returns the public file tree served at "/"
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// AdminPage returns the protected admin page
func AdminPage() []byte {
	page, err := assets.ReadFile("views/admin.html")
	if err != nil {
		panic(err)
	}
	return page
}
