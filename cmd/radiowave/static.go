package main

import (
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// contentTypes pins the types the shell relies on regardless of the host's mime table.
var contentTypes = map[string]string{
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".css":  "text/css",
}

// staticHandler serves the shell from dir. Unknown page routes get index.html so
// the UI can route on the client; missing assets are 404 so a broken install fails.
func staticHandler(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, "pong")
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		name := path.Clean("/" + r.URL.Path)
		full := filepath.Join(dir, filepath.FromSlash(name))

		info, err := os.Stat(full)
		if err == nil && info.IsDir() {
			name = path.Join(name, "index.html")
			full = filepath.Join(full, "index.html")
			info, err = os.Stat(full)
		}
		if err != nil || info.IsDir() {
			if !wantsShell(r, name) {
				http.NotFound(w, r)
				return
			}
			name = "/index.html"
			full = filepath.Join(dir, "index.html")
		}

		serveAsset(w, r, name, full)
	})
}

// wantsShell reports whether a missing path is a client-side route: no file
// extension, or an explicit HTML request.
func wantsShell(r *http.Request, name string) bool {
	if path.Ext(name) == "" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func serveAsset(w http.ResponseWriter, r *http.Request, name, full string) {
	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	setAssetHeaders(w.Header(), name)
	http.ServeContent(w, r, path.Base(name), info.ModTime(), f)
}

func setAssetHeaders(h http.Header, name string) {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		h.Set("Content-Type", ct)
	}

	switch {
	case strings.Contains(name, "sw.js"):
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	case strings.HasSuffix(name, ".html"):
		h.Set("Cache-Control", "public, max-age=0")
	default:
		h.Set("Cache-Control", "public, max-age=31536000")
	}
}
