package socketio

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/radiowave-backend/internal/domain/offline"
	"github.com/edumarques81/radiowave-backend/internal/domain/player"
	"github.com/edumarques81/radiowave-backend/internal/domain/station"
	"github.com/edumarques81/radiowave-backend/internal/infra/directory"
)

// Errors returned to clients.
var (
	ErrStationNotFound = errors.New("station not found")
	ErrOfflineDisabled = errors.New("offline cache is not enabled")
)

// ListFavorites names the favorites list in a play request.
const ListFavorites = "favorites"

type playRequest struct {
	station.Station
	// List selects which list Next and Previous walk; empty keeps the loaded list.
	List string `json:"list,omitempty"`
}

// LoadStations loads a predefined list, makes it the active list and preloads
// the first stations. A failed load leaves the active list unchanged.
func (s *Server) LoadStations(ctx context.Context, filter directory.Filter, country string) ([]station.Station, error) {
	if country == "" {
		country = s.deps.Country
	}

	ctx, cancel := context.WithTimeout(ctx, s.deps.RequestTimeout)
	defer cancel()

	stations, err := s.deps.Directory.LoadByFilter(ctx, filter, country)
	if err != nil {
		return nil, err
	}
	s.activate(stations)
	return stations, nil
}

// Search searches the directory by name and makes the result the active list.
func (s *Server) Search(ctx context.Context, query string) ([]station.Station, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deps.RequestTimeout)
	defer cancel()

	stations, err := s.deps.Directory.Search(ctx, strings.TrimSpace(query), directory.DefaultSearchLimit)
	if err != nil {
		return nil, err
	}
	s.activate(stations)
	return stations, nil
}

// SearchFiltered runs a full directory search and makes the result the active list.
// Broken stations are always hidden. Without an order the most voted come first.
func (s *Server) SearchFiltered(ctx context.Context, params directory.SearchParams) ([]station.Station, error) {
	params.Name = strings.TrimSpace(params.Name)
	params.HideBroken = true
	if params.Order == "" {
		params.Order = directory.DefaultOrder
		params.Reverse = true
	}
	if params.Limit <= 0 {
		params.Limit = directory.DefaultFilterLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.deps.RequestTimeout)
	defer cancel()

	stations, err := s.deps.Directory.SearchStations(ctx, params)
	if err != nil {
		return nil, err
	}
	s.activate(stations)
	return stations, nil
}

func (s *Server) activate(stations []station.Station) {
	s.deps.Session.SetQueue(stations)
	if s.deps.Preloader != nil {
		s.deps.Preloader.Window(s.ctx, s.deps.Session.Queue(), s.deps.Preloader.Limit())
	}
}

// PlayStation plays a station from the active list, or from the favorites when the
// request names that list. A station outside both is played from the request payload.
func (s *Server) PlayStation(ctx context.Context, req playRequest) error {
	target := station.Normalize(req.Station)
	if target.ID == "" && target.URL == "" {
		return ErrStationNotFound
	}

	if req.List == ListFavorites {
		favs, err := s.deps.Library.Favorites()
		if err != nil {
			return err
		}
		s.deps.Session.SetQueue(favs)
	}

	queue := s.deps.Session.Queue()
	if st, ok := station.Find(queue, target.ID); ok {
		target = st
	} else if target.URL == "" {
		return ErrStationNotFound
	}

	err := s.deps.Session.Play(ctx, target)
	if errors.Is(err, player.ErrSuperseded) {
		return nil
	}
	if err != nil {
		return err
	}

	s.advancePreload(queue, target.ID)
	return nil
}

// Step plays the next station of the active list, or the previous one when delta is
// negative, and keeps the preload window ahead of it.
func (s *Server) Step(ctx context.Context, delta int) error {
	var err error
	if delta < 0 {
		err = s.deps.Session.Previous(ctx)
	} else {
		err = s.deps.Session.Next(ctx)
	}
	if errors.Is(err, player.ErrSuperseded) {
		return nil
	}
	if err != nil {
		return err
	}

	if st := s.deps.Session.State().Station; st != nil {
		s.advancePreload(s.deps.Session.Queue(), st.ID)
	}
	return nil
}

// advancePreload moves the preload window past the playing station once it reaches
// stations the window does not cover.
func (s *Server) advancePreload(queue []station.Station, id string) {
	if s.deps.Preloader == nil {
		return
	}
	i := station.IndexOf(queue, id)
	if i < 0 || i+1 >= len(queue) {
		return
	}
	if _, ok := s.deps.Preloader.Lookup(queue[i+1].ID); ok {
		return
	}
	s.deps.Preloader.Advance(s.ctx, queue, i+1)
}

// PlayLocal plays an uploaded track.
func (s *Server) PlayLocal(ctx context.Context, id string) error {
	t, err := s.deps.Library.Track(id)
	if err != nil {
		return err
	}

	err = s.deps.Session.PlayLocal(ctx, player.LocalTrack{
		ID:   t.ID,
		Name: t.Name,
		URL:  s.deps.LocalStreamBase + t.ID,
	})
	if errors.Is(err, player.ErrSuperseded) {
		return nil
	}
	return err
}

// ToggleFavorite flips a station's favorite flag. Stations in the active list are
// stored with their full directory record.
func (s *Server) ToggleFavorite(st station.Station) (bool, error) {
	st = station.Normalize(st)
	if full, ok := station.Find(s.deps.Session.Queue(), st.ID); ok {
		st = full
	}

	fav, err := s.deps.Library.ToggleFavorite(st)
	if err != nil {
		return false, err
	}
	s.BroadcastFavorites()
	return fav, nil
}

// DeleteTrack removes an uploaded track, stopping playback first when it is playing.
func (s *Server) DeleteTrack(id string) error {
	if s.deps.Session.IsPlayingTrack(id) {
		if err := s.deps.Session.Stop(); err != nil {
			log.Warn().Err(err).Str("track", id).Msg("Failed to stop deleted track")
		}
	}
	if err := s.deps.Library.DeleteTrack(id); err != nil {
		return err
	}
	s.BroadcastMyMusic()
	return nil
}

// SkipWaiting activates a waiting shell cache version.
func (s *Server) SkipWaiting(ctx context.Context) error {
	if s.deps.Offline == nil {
		return ErrOfflineDisabled
	}
	return s.deps.Offline.HandleMessage(ctx, offline.Message{Type: offline.MessageSkipWaiting})
}
