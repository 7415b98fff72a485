package main

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/radiowave-backend/internal/domain/library"
	"github.com/edumarques81/radiowave-backend/internal/domain/offline"
	"github.com/edumarques81/radiowave-backend/internal/domain/player"
	"github.com/edumarques81/radiowave-backend/internal/domain/preload"
	"github.com/edumarques81/radiowave-backend/internal/domain/station"
	"github.com/edumarques81/radiowave-backend/internal/infra/directory"
	"github.com/edumarques81/radiowave-backend/internal/transport/socketio"
	"github.com/edumarques81/radiowave-backend/internal/version"
)

const (
	// multipartOverhead allows for form boundaries on top of the file size limit.
	multipartOverhead = 1 << 20

	defaultFacetLimit = 100
)

// facetLister lists the tags, languages and countries known to the directory.
type facetLister interface {
	ListTags(ctx context.Context, limit int) ([]directory.Facet, error)
	ListLanguages(ctx context.Context, limit int) ([]directory.Facet, error)
	ListCountries(ctx context.Context, limit int) ([]directory.Facet, error)
}

// api serves the REST surface next to the Socket.io channel.
type api struct {
	hub       *socketio.Server
	facets    facetLister
	session   *player.Session
	library   *library.Service
	preloader *preload.Preloader
	offline   *offline.Controller
	maxUpload int64
	health    func() error
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /api/v1/version", a.handleVersion)
	mux.HandleFunc("GET /api/v1/state", a.handleState)
	mux.HandleFunc("GET /api/v1/stations", a.handleStations)
	mux.HandleFunc("GET /api/v1/facets/{kind}", a.handleFacets)
	mux.HandleFunc("GET /api/v1/preload/{id}", a.handlePreload)
	mux.HandleFunc("GET /api/v1/favorites", a.handleFavorites)
	mux.HandleFunc("POST /api/v1/favorites", a.handleToggleFavorite)
	mux.HandleFunc("GET /api/v1/music", a.handleTracks)
	mux.HandleFunc("POST /api/v1/music", a.handleUpload)
	mux.HandleFunc("DELETE /api/v1/music/{id}", a.handleDeleteTrack)
	mux.HandleFunc("GET /stream/local/{id}", a.handleLocalStream)
	mux.HandleFunc("GET /api/v1/sw", a.handleOfflineStatus)
	mux.HandleFunc("POST /api/v1/sw/message", a.handleOfflineMessage)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "mpd": "disconnected"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mpd": "connected"})
}

func (a *api) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.GetInfo())
}

func (a *api) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.session.State())
}

func (a *api) handleStations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		stations []station.Station
		err      error
	)
	switch {
	case q.Get("tag") != "" || q.Get("language") != "" || q.Get("countrycode") != "":
		reverse, _ := strconv.ParseBool(q.Get("reverse"))
		stations, err = a.hub.SearchFiltered(r.Context(), directory.SearchParams{
			Name:        q.Get("q"),
			Tag:         q.Get("tag"),
			Language:    q.Get("language"),
			CountryCode: q.Get("countrycode"),
			Order:       q.Get("order"),
			Reverse:     reverse,
		})
	case q.Get("q") != "":
		stations, err = a.hub.Search(r.Context(), q.Get("q"))
	default:
		filter := directory.Filter(q.Get("filter"))
		stations, err = a.hub.LoadStations(r.Context(), filter, q.Get("country"))
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

func (a *api) handleFacets(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultFacetLimit
	}

	var list func(context.Context, int) ([]directory.Facet, error)
	switch r.PathValue("kind") {
	case "tags":
		list = a.facets.ListTags
	case "languages":
		list = a.facets.ListLanguages
	case "countries":
		list = a.facets.ListCountries
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown facet"))
		return
	}

	facets, err := list(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, facets)
}

func (a *api) handlePreload(w http.ResponseWriter, r *http.Request) {
	entry, ok := a.preloader.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("station is not in the preload window"))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *api) handleFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := a.library.Favorites()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, favs)
}

func (a *api) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var st station.Station
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&st); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	fav, err := a.hub.ToggleFavorite(st)
	if errors.Is(err, library.ErrNoStationID) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": fav})
}

func (a *api) handleTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := a.library.Tracks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (a *api) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no file in upload"))
		return
	}

	added := make([]library.Track, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		track, err := a.library.AddTrack(fh.Filename, fh.Header.Get("Content-Type"), f)
		f.Close()

		switch {
		case errors.Is(err, library.ErrNotAudio):
			writeError(w, http.StatusUnsupportedMediaType, err)
			return
		case errors.Is(err, library.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		added = append(added, *track)
	}

	a.hub.BroadcastMyMusic()
	writeJSON(w, http.StatusCreated, added)
}

func (a *api) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	err := a.hub.DeleteTrack(r.PathValue("id"))
	if errors.Is(err, library.ErrTrackNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleLocalStream(w http.ResponseWriter, r *http.Request) {
	p, track, err := a.library.TrackPath(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "failed to read track", http.StatusInternalServerError)
		return
	}

	ct := track.ContentType
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(p)); byExt != "" {
			ct = byExt
		}
	}
	if ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, filepath.Base(p), info.ModTime(), f)
}

func (a *api) handleOfflineStatus(w http.ResponseWriter, r *http.Request) {
	if a.offline == nil {
		writeError(w, http.StatusNotFound, socketio.ErrOfflineDisabled)
		return
	}
	writeJSON(w, http.StatusOK, a.offline.Status())
}

func (a *api) handleOfflineMessage(w http.ResponseWriter, r *http.Request) {
	if a.offline == nil {
		writeError(w, http.StatusNotFound, socketio.ErrOfflineDisabled)
		return
	}

	var msg offline.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := a.offline.HandleMessage(r.Context(), msg)
	if errors.Is(err, offline.ErrUnknownMessage) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, a.offline.Status())
}
