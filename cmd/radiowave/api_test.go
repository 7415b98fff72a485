package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edumarques81/radiowave-backend/internal/domain/library"
	"github.com/edumarques81/radiowave-backend/internal/domain/player"
	"github.com/edumarques81/radiowave-backend/internal/domain/preload"
	"github.com/edumarques81/radiowave-backend/internal/domain/station"
	"github.com/edumarques81/radiowave-backend/internal/infra/directory"
	"github.com/edumarques81/radiowave-backend/internal/infra/librarydb"
	"github.com/edumarques81/radiowave-backend/internal/transport/socketio"
)

type stubDirectory struct {
	stations []station.Station
	err      error
}

func (d *stubDirectory) LoadByFilter(ctx context.Context, filter directory.Filter, country string) ([]station.Station, error) {
	return d.stations, d.err
}

func (d *stubDirectory) Search(ctx context.Context, query string, limit int) ([]station.Station, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []station.Station
	for _, st := range d.stations {
		if strings.Contains(strings.ToLower(st.Name), strings.ToLower(query)) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (d *stubDirectory) SearchStations(ctx context.Context, params directory.SearchParams) ([]station.Station, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []station.Station
	for _, st := range d.stations {
		if params.Tag == "" || strings.Contains(st.Tags, params.Tag) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (d *stubDirectory) ListTags(ctx context.Context, limit int) ([]directory.Facet, error) {
	return []directory.Facet{{Name: "jazz", StationCount: 10}, {Name: "rock", StationCount: 5}}[:min(limit, 2)], d.err
}

func (d *stubDirectory) ListLanguages(ctx context.Context, limit int) ([]directory.Facet, error) {
	return []directory.Facet{{Name: "english", StationCount: 7}}, d.err
}

func (d *stubDirectory) ListCountries(ctx context.Context, limit int) ([]directory.Facet, error) {
	return []directory.Facet{{Name: "Germany", ISOCode: "DE", StationCount: 3}}, d.err
}

type nopSink struct{}

func (nopSink) Start(ctx context.Context, url string) (<-chan error, error) {
	ch := make(chan error, 1)
	ch <- nil
	return ch, nil
}
func (nopSink) Pause(bool) error    { return nil }
func (nopSink) Stop() error         { return nil }
func (nopSink) SetVolume(int) error { return nil }

type nopProber struct{}

func (nopProber) Probe(ctx context.Context, url string) error { return nil }

func newTestAPI(t *testing.T, maxUpload int64) (*httptest.Server, *stubDirectory, *library.Service) {
	t.Helper()

	db := librarydb.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err := db.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	lib := library.NewService(db, filepath.Join(t.TempDir(), "music"), maxUpload)
	dir := &stubDirectory{stations: []station.Station{
		{ID: "a", Name: "Jazz One", URL: "https://a.example/live", Tags: "jazz,smooth"},
		{ID: "b", Name: "Rock Two", URL: "https://b.example/live", Tags: "rock"},
	}}
	pre := preload.New(nopProber{}, preload.WithLimit(5))
	session := player.NewSession(nopSink{}, player.WithHints(pre), player.WithVolumeStore(lib))

	hub, err := socketio.NewServer(socketio.Deps{
		Directory: dir,
		Preloader: pre,
		Session:   session,
		Library:   lib,
	})
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	(&api{
		hub:       hub,
		facets:    dir,
		session:   session,
		library:   lib,
		preloader: pre,
		maxUpload: lib.MaxUpload(),
	}).register(mux)

	srv := httptest.NewServer(corsMiddleware(mux))
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		pre.Wait()
	})
	return srv, dir, lib
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestAPIVersionAndHealth(t *testing.T) {
	srv, _, _ := newTestAPI(t, 0)

	var info map[string]string
	if code := getJSON(t, srv.URL+"/api/v1/version", &info); code != http.StatusOK {
		t.Fatalf("version status = %d", code)
	}
	if info["name"] != "RadioWave" {
		t.Errorf("version = %v", info)
	}

	if code := getJSON(t, srv.URL+"/health", nil); code != http.StatusOK {
		t.Errorf("health status = %d", code)
	}
}

func TestAPIStationsAndPreload(t *testing.T) {
	srv, dir, _ := newTestAPI(t, 0)

	var stations []station.Station
	if code := getJSON(t, srv.URL+"/api/v1/stations?filter=popular", &stations); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(stations) != 2 || stations[0].ID != "a" {
		t.Errorf("stations = %+v", stations)
	}

	var entry preload.Entry
	if code := getJSON(t, srv.URL+"/api/v1/preload/a", &entry); code != http.StatusOK {
		t.Fatalf("preload status = %d", code)
	}
	if entry.StationID != "a" {
		t.Errorf("entry = %+v", entry)
	}
	if code := getJSON(t, srv.URL+"/api/v1/preload/zzz", nil); code != http.StatusNotFound {
		t.Errorf("unknown preload status = %d, want 404", code)
	}

	stations = nil
	if code := getJSON(t, srv.URL+"/api/v1/stations?q=rock", &stations); code != http.StatusOK {
		t.Fatalf("search status = %d", code)
	}
	if len(stations) != 1 || stations[0].ID != "b" {
		t.Errorf("search = %+v", stations)
	}

	dir.err = directory.ErrAllMirrorsFailed
	if code := getJSON(t, srv.URL+"/api/v1/stations", nil); code != http.StatusBadGateway {
		t.Errorf("failed load status = %d, want 502", code)
	}
}

func TestAPIFilteredSearch(t *testing.T) {
	srv, _, _ := newTestAPI(t, 0)

	var stations []station.Station
	if code := getJSON(t, srv.URL+"/api/v1/stations?tag=rock", &stations); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(stations) != 1 || stations[0].ID != "b" {
		t.Errorf("stations = %+v", stations)
	}
}

func TestAPIFacets(t *testing.T) {
	srv, dir, _ := newTestAPI(t, 0)

	tests := []struct {
		path  string
		first string
		count int
	}{
		{"/api/v1/facets/tags?limit=1", "jazz", 1},
		{"/api/v1/facets/tags", "jazz", 2},
		{"/api/v1/facets/languages", "english", 1},
		{"/api/v1/facets/countries", "Germany", 1},
	}
	for _, tt := range tests {
		var facets []directory.Facet
		if code := getJSON(t, srv.URL+tt.path, &facets); code != http.StatusOK {
			t.Errorf("%s status = %d", tt.path, code)
			continue
		}
		if len(facets) != tt.count || facets[0].Name != tt.first {
			t.Errorf("%s = %+v", tt.path, facets)
		}
	}

	if code := getJSON(t, srv.URL+"/api/v1/facets/moods", nil); code != http.StatusNotFound {
		t.Errorf("unknown facet status = %d, want 404", code)
	}

	dir.err = directory.ErrAllMirrorsFailed
	if code := getJSON(t, srv.URL+"/api/v1/facets/tags", nil); code != http.StatusBadGateway {
		t.Errorf("failed facet status = %d, want 502", code)
	}
}

func TestAPIFavorites(t *testing.T) {
	srv, _, _ := newTestAPI(t, 0)

	post := func(body string) (int, map[string]bool) {
		resp, err := http.Post(srv.URL+"/api/v1/favorites", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out map[string]bool
		json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	code, out := post(`{"stationuuid":"x","name":"X FM","url":"https://x.example"}`)
	if code != http.StatusOK || !out["favorite"] {
		t.Fatalf("add = %d %v", code, out)
	}

	var favs []station.Station
	getJSON(t, srv.URL+"/api/v1/favorites", &favs)
	if len(favs) != 1 || favs[0].Name != "X FM" {
		t.Errorf("favorites = %+v", favs)
	}

	code, out = post(`{"id":"x"}`)
	if code != http.StatusOK || out["favorite"] {
		t.Errorf("remove = %d %v", code, out)
	}

	if code, _ := post(`{"name":"no id"}`); code != http.StatusBadRequest {
		t.Errorf("missing id status = %d, want 400", code)
	}
	if code, _ := post(`not json`); code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", code)
	}
}

func multipartBody(t *testing.T, files map[string]string, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, content := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(part, content)
	}
	w.Close()
	return body, w.FormDataContentType()
}

func TestAPIUploadStreamDelete(t *testing.T) {
	srv, _, _ := newTestAPI(t, 0)

	body, ct := multipartBody(t, map[string]string{"Night Drive.mp3": "ID3fakeaudio"}, "audio/mpeg")
	resp, err := http.Post(srv.URL+"/api/v1/music", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	var added []library.Track
	json.NewDecoder(resp.Body).Decode(&added)
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated || len(added) != 1 {
		t.Fatalf("upload = %d %+v", resp.StatusCode, added)
	}
	if added[0].Name != "Night Drive" {
		t.Errorf("name = %q", added[0].Name)
	}

	stream, err := http.Get(srv.URL + "/stream/local/" + added[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(stream.Body)
	stream.Body.Close()
	if string(data) != "ID3fakeaudio" {
		t.Errorf("stream body = %q", data)
	}
	if got := stream.Header.Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("stream Content-Type = %q", got)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/music/"+added[0].ID, nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", del.StatusCode)
	}

	del, _ = http.DefaultClient.Do(req)
	del.Body.Close()
	if del.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", del.StatusCode)
	}

	if code := getJSON(t, srv.URL+"/stream/local/"+added[0].ID, nil); code != http.StatusNotFound {
		t.Errorf("stream after delete = %d, want 404", code)
	}
}

func TestAPIUploadRejects(t *testing.T) {
	srv, _, lib := newTestAPI(t, 8)

	body, ct := multipartBody(t, map[string]string{"notes.txt": "hello"}, "text/plain")
	resp, err := http.Post(srv.URL+"/api/v1/music", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("text upload status = %d, want 415", resp.StatusCode)
	}

	body, ct = multipartBody(t, map[string]string{"big.flac": "more than eight bytes"}, "audio/flac")
	resp, err = http.Post(srv.URL+"/api/v1/music", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("large upload status = %d, want 413", resp.StatusCode)
	}

	tracks, _ := lib.Tracks()
	if len(tracks) != 0 {
		t.Errorf("rejected uploads stored %d tracks", len(tracks))
	}
}

func TestAPIOfflineDisabled(t *testing.T) {
	srv, _, _ := newTestAPI(t, 0)

	if code := getJSON(t, srv.URL+"/api/v1/sw", nil); code != http.StatusNotFound {
		t.Errorf("sw status = %d, want 404", code)
	}
	resp, err := http.Post(srv.URL+"/api/v1/sw/message", "application/json", strings.NewReader(`{"type":"SKIP_WAITING"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("message status = %d, want 404", resp.StatusCode)
	}
}
