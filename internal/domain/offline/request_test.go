package offline

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://app.test/script.js", "http://app.test/script.js"},
		{"http://app.test/script.js?v=2", "http://app.test/script.js"},
		{"http://app.test/index.html#player", "http://app.test/index.html"},
		{"http://app.test/a.css?x=1#y", "http://app.test/a.css"},
		{"http://app.test/empty?", "http://app.test/empty"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := url.Parse(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got := NormalizeURL(u); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRequestKind(t *testing.T) {
	tests := []struct {
		name string
		url  string
		dest string
		want Kind
	}{
		{"css extension", "http://a/styles/main.css?v=1", "", KindStyle},
		{"style destination", "http://a/theme", "style", KindStyle},
		{"png", "http://a/icon.PNG", "", KindImage},
		{"image destination", "http://cdn/favicon", "image", KindImage},
		{"script extension", "http://a/script.js", "", KindScript},
		{"script destination", "http://a/bundle", "script", KindScript},
		{"json", "http://a/data.json", "", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(http.MethodGet, tt.url)
			if err != nil {
				t.Fatal(err)
			}
			req.Destination = tt.dest
			if got := req.Kind(); got != tt.want {
				t.Errorf("Kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewRequestRejectsRelative(t *testing.T) {
	if _, err := NewRequest(http.MethodGet, "/index.html"); err == nil {
		t.Error("expected error for relative url")
	}
}

func TestRequestFromHTTP(t *testing.T) {
	origin, _ := url.Parse("http://127.0.0.1:25566")

	r := httptest.NewRequest(http.MethodPost, "http://localhost:25565/api/thing?q=1", strings.NewReader("payload"))
	r.Header.Set("Sec-Fetch-Mode", "cors")
	r.Header.Set("Sec-Fetch-Dest", "empty")

	req, err := RequestFromHTTP(r, origin, 1024)
	if err != nil {
		t.Fatalf("RequestFromHTTP: %v", err)
	}
	if req.Key() != "http://127.0.0.1:25566/api/thing?q=1" {
		t.Errorf("Key = %q", req.Key())
	}
	if string(req.Body) != "payload" {
		t.Errorf("Body = %q", req.Body)
	}
	if req.IsNavigation() {
		t.Error("cors request is not a navigation")
	}

	if _, err := RequestFromHTTP(httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("too long")), origin, 3); err == nil {
		t.Error("expected error for oversized body")
	}
}

func TestRequestFromHTTPMountsOriginPath(t *testing.T) {
	tests := []struct {
		origin string
		path   string
		want   string
	}{
		{"https://host/app/", "/index.html", "https://host/app/index.html"},
		{"https://host/app/", "/", "https://host/app/"},
		{"https://host/app", "/styles/main.css?v=2", "https://host/app/styles/main.css?v=2"},
		{"https://host/", "/script.js", "https://host/script.js"},
		{"https://host", "/a%2Fb.png", "https://host/a%2Fb.png"},
	}
	for _, tt := range tests {
		origin, _ := url.Parse(tt.origin)
		req, err := RequestFromHTTP(httptest.NewRequest(http.MethodGet, tt.path, nil), origin, 0)
		if err != nil {
			t.Fatalf("RequestFromHTTP(%s, %s): %v", tt.origin, tt.path, err)
		}
		if req.Key() != tt.want {
			t.Errorf("RequestFromHTTP(%s, %s) = %q, want %q", tt.origin, tt.path, req.Key(), tt.want)
		}
	}

	origin, _ := url.Parse("https://host/app/")
	cfg := DefaultConfig(origin, []string{"index.html"})
	c := &Controller{cfg: cfg}
	req, _ := RequestFromHTTP(httptest.NewRequest(http.MethodGet, "/index.html", nil), origin, 0)
	if got := c.Resolve("index.html"); got != req.Key() {
		t.Errorf("Resolve = %q, request key = %q", got, req.Key())
	}
}
