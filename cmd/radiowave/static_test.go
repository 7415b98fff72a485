package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeShell(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":      "<html>shell</html>",
		"offline.html":    "<html>offline</html>",
		"sw.js":           "self.addEventListener('fetch', () => {})",
		"script.js":       "console.log('app')",
		"manifest.json":   `{"name":"RadioWave"}`,
		"styles/main.css": "body{}",
		"icons/logo.svg":  "<svg/>",
		"docs/index.html": "<html>docs</html>",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestStaticHandler(t *testing.T) {
	h := staticHandler(writeShell(t))

	tests := []struct {
		path        string
		wantBody    string
		wantType    string
		wantCaching string
	}{
		{"/", "<html>shell</html>", "text/html; charset=utf-8", "public, max-age=0"},
		{"/index.html", "<html>shell</html>", "text/html; charset=utf-8", "public, max-age=0"},
		{"/sw.js", "self.addEventListener('fetch', () => {})", "application/javascript", "no-cache, no-store, must-revalidate"},
		{"/script.js", "console.log('app')", "application/javascript", "public, max-age=31536000"},
		{"/manifest.json", `{"name":"RadioWave"}`, "application/json", "public, max-age=31536000"},
		{"/styles/main.css", "body{}", "text/css", "public, max-age=31536000"},
		{"/icons/logo.svg", "<svg/>", "image/svg+xml", "public, max-age=31536000"},
		{"/docs/", "<html>docs</html>", "text/html; charset=utf-8", "public, max-age=0"},
		{"/stations/jazz", "<html>shell</html>", "text/html; charset=utf-8", "public, max-age=0"},
		{"/styles/", "<html>shell</html>", "text/html; charset=utf-8", "public, max-age=0"},
		{"/../../etc/passwd", "<html>shell</html>", "text/html; charset=utf-8", "public, max-age=0"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := rec.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			if got := rec.Header().Get("Cache-Control"); got != tt.wantCaching {
				t.Errorf("Cache-Control = %q, want %q", got, tt.wantCaching)
			}
		})
	}
}

func TestStaticHandlerPing(t *testing.T) {
	h := staticHandler(t.TempDir())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Errorf("ping = %d %q", rec.Code, rec.Body.String())
	}
}

func TestStaticHandlerRejectsWrites(t *testing.T) {
	h := staticHandler(writeShell(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index.html", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestStaticHandlerMissingAssets(t *testing.T) {
	h := staticHandler(writeShell(t))

	tests := []struct {
		path     string
		accept   string
		wantCode int
	}{
		{"/styles/missing.css", "", http.StatusNotFound},
		{"/icons/icon-512x512.png", "image/*", http.StatusNotFound},
		{"/script.min.js", "*/*", http.StatusNotFound},
		{"/stations/jazz", "", http.StatusOK},
		{"/shared/playlist.m3u", "text/html,application/xhtml+xml", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && rec.Body.String() != "<html>shell</html>" {
				t.Errorf("body = %q, want the shell", rec.Body.String())
			}
		})
	}
}

func TestStaticHandlerMissingShell(t *testing.T) {
	h := staticHandler(t.TempDir())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
