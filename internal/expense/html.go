package expense

import (
	"embed"
	"path"
)

//go:embed static/index.html
var indexHTML []byte

//go:embed static/*.css static/*.js
var staticFS embed.FS

// staticFile returns an embedded asset and its content type
func staticFile(name string) ([]byte, string, bool) {
	if name == "" || name != path.Base(name) {
		return nil, "", false
	}
	data, err := staticFS.ReadFile("static/" + name)
	if err != nil {
		return nil, "", false
	}

	switch path.Ext(name) {
	case ".css":
		return data, "text/css; charset=utf-8", true
	case ".js":
		return data, "application/javascript; charset=utf-8", true
	}
	return nil, "", false
}
