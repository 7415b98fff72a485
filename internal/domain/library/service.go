package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/radiowave-backend/internal/domain/station"
	"github.com/edumarques81/radiowave-backend/internal/infra/librarydb"
)

// Service handles favorites, uploads and settings.
type Service struct {
	store     Store
	musicDir  string
	maxUpload int64
}

// NewService creates a new library service.
func NewService(store Store, musicDir string, maxUpload int64) *Service {
	if musicDir == "" {
		musicDir = DefaultMusicDir
	}
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &Service{
		store:     store,
		musicDir:  musicDir,
		maxUpload: maxUpload,
	}
}

// ToggleFavorite adds the station to favorites, or removes it if already there.
// It returns whether the station is a favorite afterwards.
func (s *Service) ToggleFavorite(st station.Station) (bool, error) {
	st = station.Normalize(st)
	if st.ID == "" {
		return false, ErrNoStationID
	}

	removed, err := s.store.RemoveFavorite(st.ID)
	if err != nil {
		return false, err
	}
	if removed {
		log.Info().Str("station", st.Name).Msg("Removed favorite")
		return false, nil
	}

	data, err := json.Marshal(st)
	if err != nil {
		return false, fmt.Errorf("encode station: %w", err)
	}
	if err := s.store.AddFavorite(st.ID, string(data)); err != nil {
		return false, err
	}
	log.Info().Str("station", st.Name).Msg("Added favorite")
	return true, nil
}

// IsFavorite reports whether the station is a favorite.
func (s *Service) IsFavorite(id string) (bool, error) {
	return s.store.IsFavorite(id)
}

// Favorites returns the favorite stations in the order they were added.
func (s *Service) Favorites() ([]station.Station, error) {
	rows, err := s.store.ListFavorites()
	if err != nil {
		return nil, err
	}

	stations := make([]station.Station, 0, len(rows))
	for _, r := range rows {
		var st station.Station
		if err := json.Unmarshal([]byte(r.StationJSON), &st); err != nil {
			log.Warn().Err(err).Str("station", r.StationID).Msg("Skipping unreadable favorite")
			continue
		}
		stations = append(stations, station.Normalize(st))
	}
	return stations, nil
}

// AddTrack stores an uploaded audio file under a generated name and records it.
func (s *Service) AddTrack(fileName, contentType string, r io.Reader) (*Track, error) {
	if !IsAudio(contentType, fileName) {
		return nil, ErrNotAudio
	}

	if err := os.MkdirAll(s.musicDir, 0755); err != nil {
		return nil, fmt.Errorf("create music dir: %w", err)
	}

	id := uuid.New().String()
	stored := id + strings.ToLower(path.Ext(fileName))
	dst := filepath.Join(s.musicDir, stored)

	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(r, s.maxUpload+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.maxUpload {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(dst)
		return nil, err
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	row := librarydb.TrackRow{
		ID:          id,
		Name:        DisplayName(fileName),
		FileName:    stored,
		ContentType: contentType,
		Size:        written,
	}
	if err := s.store.InsertTrack(row); err != nil {
		os.Remove(dst)
		return nil, err
	}

	log.Info().Str("id", id).Str("name", row.Name).Int64("size", written).Msg("Added local track")

	saved, err := s.store.GetTrack(id)
	if err != nil {
		return nil, err
	}
	t := trackFromRow(*saved)
	return &t, nil
}

// Tracks returns the uploaded tracks in upload order.
func (s *Service) Tracks() ([]Track, error) {
	rows, err := s.store.ListTracks()
	if err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, len(rows))
	for _, r := range rows {
		tracks = append(tracks, trackFromRow(r))
	}
	return tracks, nil
}

// Track returns a single uploaded track.
func (s *Service) Track(id string) (*Track, error) {
	row, err := s.store.GetTrack(id)
	if errors.Is(err, librarydb.ErrNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, err
	}
	t := trackFromRow(*row)
	return &t, nil
}

// TrackPath returns the file backing an uploaded track.
func (s *Service) TrackPath(id string) (string, *Track, error) {
	t, err := s.Track(id)
	if err != nil {
		return "", nil, err
	}
	return filepath.Join(s.musicDir, t.FileName), t, nil
}

// DeleteTrack removes an uploaded track and its file.
func (s *Service) DeleteTrack(id string) error {
	p, t, err := s.TrackPath(id)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	if _, err := s.store.DeleteTrack(id); err != nil {
		return err
	}

	log.Info().Str("id", id).Str("name", t.Name).Msg("Deleted local track")
	return nil
}

// Volume returns the stored volume, 50 until one has been set.
func (s *Service) Volume() (int, error) {
	v, err := s.store.GetIntSetting(settingVolume, defaultVolume)
	if err != nil {
		return defaultVolume, err
	}
	if v < 0 || v > 100 {
		return defaultVolume, nil
	}
	return v, nil
}

// SetVolume stores the volume.
func (s *Service) SetVolume(v int) error {
	return s.store.SetSetting(settingVolume, strconv.Itoa(v))
}

// MaxUpload is the largest accepted upload in bytes.
func (s *Service) MaxUpload() int64 {
	return s.maxUpload
}
