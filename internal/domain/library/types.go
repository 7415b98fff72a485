// Package library manages the listener's favorites, uploaded tracks and settings.
package library

import (
	"errors"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/edumarques81/radiowave-backend/internal/infra/librarydb"
)

// Common errors
var (
	ErrNoStationID   = errors.New("station has no id")
	ErrNotAudio      = errors.New("only audio files can be added")
	ErrTooLarge      = errors.New("file exceeds the upload limit")
	ErrTrackNotFound = errors.New("track not found")
)

const (
	// DefaultMusicDir holds uploaded files.
	DefaultMusicDir = "data/music"

	// DefaultMaxUpload bounds a single uploaded file.
	DefaultMaxUpload = 200 << 20

	settingVolume = "volume"
	defaultVolume = 50
)

// Track is an uploaded audio file.
type Track struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FileName    string `json:"-"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"bytes"`
	SizeLabel   string `json:"size"`
	AddedAt     string `json:"addedAt"`
	Type        string `json:"type"`
}

// Store is the persistence the library needs.
type Store interface {
	AddFavorite(stationID, stationJSON string) error
	RemoveFavorite(stationID string) (bool, error)
	IsFavorite(stationID string) (bool, error)
	ListFavorites() ([]librarydb.FavoriteRow, error)

	InsertTrack(t librarydb.TrackRow) error
	GetTrack(id string) (*librarydb.TrackRow, error)
	ListTracks() ([]librarydb.TrackRow, error)
	DeleteTrack(id string) (bool, error)

	SetSetting(key, value string) error
	GetIntSetting(key string, def int) (int, error)
}

// audioExtensions are accepted when the browser sends no usable content type.
var audioExtensions = map[string]bool{
	".flac": true, ".mp3": true, ".wav": true, ".aiff": true,
	".aif": true, ".ogg": true, ".oga": true, ".m4a": true,
	".aac": true, ".wma": true, ".ape": true, ".wv": true,
	".opus": true, ".webm": true,
}

// IsAudio reports whether an upload is audio, by content type or file extension.
func IsAudio(contentType, fileName string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "audio/") {
		return true
	}
	return audioExtensions[strings.ToLower(path.Ext(fileName))]
}

// DisplayName strips the extension from an uploaded file name.
func DisplayName(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	if ext := path.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

// FormatFileSize renders a byte count with up to two decimals: "0 Bytes", "1.5 KB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}

func trackFromRow(r librarydb.TrackRow) Track {
	return Track{
		ID:          r.ID,
		Name:        r.Name,
		FileName:    r.FileName,
		ContentType: r.ContentType,
		Size:        r.Size,
		SizeLabel:   FormatFileSize(r.Size),
		AddedAt:     r.AddedAt,
		Type:        "local",
	}
}
