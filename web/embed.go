// Package web embeds the dashboard's HTML templates and static assets so the
// binary serves the UI without files on disk.
//
// Usage in the API server:
//
//	import "github.com/seenimoa/stockdash/web"
//	tmpl, err := template.ParseFS(web.TemplatesFS(), "*.html")
//	static := web.StaticFS() // served under /static/
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html
var templates embed.FS

//go:embed static
var static embed.FS

// TemplatesFS returns a filesystem rooted at templates/.
func TemplatesFS() fs.FS {
	return mustSub(templates, "templates")
}

// StaticFS returns a filesystem rooted at static/.
// This is ready to use with http.FileServerFS.
func StaticFS() fs.FS {
	return mustSub(static, "static")
}

func mustSub(fsys embed.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic("web: " + err.Error())
	}
	return sub
}
