// Package socketio provides the Socket.io channel the UI uses to browse, play and
// manage stations.
package socketio

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/radiowave-backend/internal/domain/library"
	"github.com/edumarques81/radiowave-backend/internal/domain/offline"
	"github.com/edumarques81/radiowave-backend/internal/domain/player"
	"github.com/edumarques81/radiowave-backend/internal/domain/preload"
	"github.com/edumarques81/radiowave-backend/internal/domain/station"
	"github.com/edumarques81/radiowave-backend/internal/infra/directory"
)

// Directory is the part of the directory client the UI channel needs.
type Directory interface {
	LoadByFilter(ctx context.Context, filter directory.Filter, countryCode string) ([]station.Station, error)
	Search(ctx context.Context, query string, limit int) ([]station.Station, error)
	SearchStations(ctx context.Context, params directory.SearchParams) ([]station.Station, error)
}

// Deps are the services behind the channel. Offline may be nil.
type Deps struct {
	Directory Directory
	Preloader *preload.Preloader
	Session   *player.Session
	Library   *library.Service
	Offline   *offline.Controller

	// LocalStreamBase prefixes an uploaded track id to form the URL the sink plays.
	LocalStreamBase string

	// Country is used by the country filter when a request names none.
	Country string

	// RequestTimeout bounds one directory request made on behalf of a client.
	RequestTimeout time.Duration

	// SearchDebounce delays searches while a client is typing.
	SearchDebounce time.Duration
}

// Server handles Socket.io connections and events.
type Server struct {
	io   *socket.Server
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	clients   map[string]*socket.Socket
	searchers map[string]*Debouncer
}

// NewServer creates a new Socket.io server.
func NewServer(deps Deps) (*Server, error) {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	if deps.SearchDebounce <= 0 {
		deps.SearchDebounce = DefaultSearchDebounce
	}
	if deps.Country == "" {
		deps.Country = "US"
	}

	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		io:        socket.NewServer(nil, opts),
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		clients:   make(map[string]*socket.Socket),
		searchers: make(map[string]*Debouncer),
	}

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		log.Info().Str("id", clientID).Msg("Client connected")

		debouncer := NewDebouncer(s.deps.SearchDebounce)
		s.mu.Lock()
		s.clients[clientID] = client
		s.searchers[clientID] = debouncer
		s.mu.Unlock()

		go func() {
			time.Sleep(100 * time.Millisecond)
			client.Emit("pushState", s.deps.Session.State())
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			debouncer.Stop()
			s.mu.Lock()
			delete(s.clients, clientID)
			delete(s.searchers, clientID)
			s.mu.Unlock()
		})

		client.On("getState", func(args ...any) {
			client.Emit("pushState", s.deps.Session.State())
		})

		// Station lists
		client.On("getStations", func(args ...any) {
			var req struct {
				Filter  string `json:"filter"`
				Country string `json:"country"`
			}
			decodeArg(args, &req)
			log.Debug().Str("id", clientID).Str("filter", req.Filter).Msg("getStations")

			go func() {
				stations, err := s.LoadStations(s.ctx, directory.Filter(req.Filter), req.Country)
				if err != nil {
					s.toast(client, err)
					return
				}
				client.Emit("pushStations", StationList{Filter: req.Filter, Stations: stations})
			}()
		})

		client.On("search", func(args ...any) {
			var req struct {
				Query string `json:"query"`
			}
			decodeArg(args, &req)

			debouncer.Trigger(func() {
				log.Debug().Str("id", clientID).Str("query", req.Query).Msg("search")
				stations, err := s.Search(s.ctx, req.Query)
				if err != nil {
					s.toast(client, err)
					return
				}
				client.Emit("pushStations", StationList{Query: req.Query, Stations: stations})
			})
		})

		client.On("filterStations", func(args ...any) {
			var req struct {
				Name        string `json:"name"`
				Tag         string `json:"tag"`
				Language    string `json:"language"`
				CountryCode string `json:"countrycode"`
				Order       string `json:"order"`
				Reverse     bool   `json:"reverse"`
			}
			decodeArg(args, &req)
			log.Debug().Str("id", clientID).Str("tag", req.Tag).Str("language", req.Language).Msg("filterStations")

			go func() {
				stations, err := s.SearchFiltered(s.ctx, directory.SearchParams{
					Name:        req.Name,
					Tag:         req.Tag,
					Language:    req.Language,
					CountryCode: req.CountryCode,
					Order:       req.Order,
					Reverse:     req.Reverse,
				})
				if err != nil {
					s.toast(client, err)
					return
				}
				client.Emit("pushStations", StationList{Query: req.Name, Stations: stations})
			}()
		})

		// Playback
		client.On("play", func(args ...any) {
			var req playRequest
			decodeArg(args, &req)
			log.Debug().Str("id", clientID).Str("station", req.ID).Msg("play")

			go func() {
				if err := s.PlayStation(s.ctx, req); err != nil {
					s.toast(client, err)
				}
			}()
		})

		client.On("playLocal", func(args ...any) {
			var req struct {
				ID string `json:"id"`
			}
			decodeArg(args, &req)
			log.Debug().Str("id", clientID).Str("track", req.ID).Msg("playLocal")

			go func() {
				if err := s.PlayLocal(s.ctx, req.ID); err != nil {
					s.toast(client, err)
				}
			}()
		})

		client.On("toggle", func(args ...any) {
			if err := s.deps.Session.TogglePause(); err != nil {
				s.toast(client, err)
			}
		})

		client.On("stop", func(args ...any) {
			if err := s.deps.Session.Stop(); err != nil {
				s.toast(client, err)
			}
		})

		client.On("next", func(args ...any) {
			go func() {
				if err := s.Step(s.ctx, 1); err != nil {
					s.toast(client, err)
				}
			}()
		})

		client.On("prev", func(args ...any) {
			go func() {
				if err := s.Step(s.ctx, -1); err != nil {
					s.toast(client, err)
				}
			}()
		})

		client.On("volume", func(args ...any) {
			if len(args) == 0 {
				return
			}
			vol, ok := args[0].(float64)
			if !ok {
				return
			}
			if err := s.deps.Session.SetVolume(int(vol)); err != nil {
				s.toast(client, err)
			}
		})

		// Library
		client.On("toggleFavorite", func(args ...any) {
			var st station.Station
			decodeArg(args, &st)
			if _, err := s.ToggleFavorite(st); err != nil {
				s.toast(client, err)
			}
		})

		client.On("getFavorites", func(args ...any) {
			favs, err := s.deps.Library.Favorites()
			if err != nil {
				s.toast(client, err)
				return
			}
			client.Emit("pushFavorites", favs)
		})

		client.On("getMyMusic", func(args ...any) {
			tracks, err := s.deps.Library.Tracks()
			if err != nil {
				s.toast(client, err)
				return
			}
			client.Emit("pushMyMusic", tracks)
		})

		client.On("deleteMusic", func(args ...any) {
			var req struct {
				ID string `json:"id"`
			}
			decodeArg(args, &req)
			if err := s.DeleteTrack(req.ID); err != nil {
				s.toast(client, err)
			}
		})

		// Offline cache
		client.On("skipWaiting", func(args ...any) {
			if err := s.SkipWaiting(s.ctx); err != nil {
				s.toast(client, err)
			}
		})
	})
}

// StationList is pushed after a list load or search.
type StationList struct {
	Filter   string            `json:"filter,omitempty"`
	Query    string            `json:"query,omitempty"`
	Stations []station.Station `json:"stations"`
}

// Toast is an error shown to the user.
type Toast struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (s *Server) toast(client *socket.Socket, err error) {
	log.Warn().Err(err).Str("id", string(client.Id())).Msg("Request failed")
	client.Emit("pushToast", Toast{Type: "error", Message: err.Error()})
}

// BroadcastState sends a player snapshot to all connected clients.
func (s *Server) BroadcastState(snap player.Snapshot) {
	s.io.Emit("pushState", snap)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(snap)
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().RawJSON("state", data).Int("clients", clientCount).Msg("Broadcast state")
	}
}

// BroadcastFavorites sends the favorites to all connected clients.
func (s *Server) BroadcastFavorites() {
	favs, err := s.deps.Library.Favorites()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list favorites for broadcast")
		return
	}
	s.io.Emit("pushFavorites", favs)
}

// BroadcastMyMusic sends the uploaded tracks to all connected clients.
func (s *Server) BroadcastMyMusic() {
	tracks, err := s.deps.Library.Tracks()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tracks for broadcast")
		return
	}
	s.io.Emit("pushMyMusic", tracks)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close cancels in-flight requests and closes the Socket.io server.
func (s *Server) Close() error {
	s.cancel()

	s.mu.Lock()
	for id, d := range s.searchers {
		d.Stop()
		delete(s.searchers, id)
	}
	s.mu.Unlock()

	s.io.Close(nil)
	return nil
}

// decodeArg decodes the first event argument into v. Missing or malformed payloads
// leave v unchanged.
func decodeArg(args []any, v any) {
	if len(args) == 0 || args[0] == nil {
		return
	}
	data, err := json.Marshal(args[0])
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug().Err(err).Msg("Ignoring malformed event payload")
	}
}
