// Package player provides the playback session: stream URL attempts with a watchdog,
// queue navigation and volume.
package player

import (
	"sync"

	"github.com/edumarques81/radiowave-backend/internal/domain/station"
)

// Status constants for player state
const (
	StatusPlay    = "play"
	StatusPause   = "pause"
	StatusStop    = "stop"
	StatusLoading = "loading"
)

// DefaultVolume is used until a volume has been stored.
const DefaultVolume = 50

// LocalTrack is an uploaded file that can be played through the sink.
type LocalTrack struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// State represents the current player state.
// It is safe for concurrent access.
type State struct {
	mu sync.RWMutex

	Status   string
	Station  *station.Station
	Track    *LocalTrack
	Source   string // URL handed to the sink
	Attempts int    // attempts used by the last play request
	Volume   int
	Error    string
}

// NewState creates a new player state with default values.
func NewState() *State {
	return &State{
		Status: StatusStop,
		Volume: DefaultVolume,
	}
}

// Loading marks a play request for st as in progress.
func (s *State) Loading(st *station.Station, track *LocalTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusLoading
	s.Station = st
	s.Track = track
	s.Source = ""
	s.Attempts = 0
	s.Error = ""
}

// Playing records a confirmed source.
func (s *State) Playing(source string, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusPlay
	s.Source = source
	s.Attempts = attempts
	s.Error = ""
}

// Failed records a play request that exhausted its attempts.
func (s *State) Failed(attempts int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusStop
	s.Source = ""
	s.Attempts = attempts
	s.Error = msg
}

// Pause sets the player status to paused.
func (s *State) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusPause
}

// Resume sets the player status back to playing.
func (s *State) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusPlay
}

// Stop sets the player status to stopped and clears the source.
func (s *State) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusStop
	s.Source = ""
}

// SetVolume sets the volume level (0-100).
func (s *State) SetVolume(volume int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Volume = ClampVolume(volume)
}

// CurrentStatus returns the playback status.
func (s *State) CurrentStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Snapshot is an immutable view of the state for the UI.
type Snapshot struct {
	Status   string           `json:"status"`
	Station  *station.Station `json:"station,omitempty"`
	Track    *LocalTrack      `json:"track,omitempty"`
	Source   string           `json:"source,omitempty"`
	Attempts int              `json:"attempts"`
	Volume   int              `json:"volume"`
	Error    string           `json:"error,omitempty"`
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Status:   s.Status,
		Source:   s.Source,
		Attempts: s.Attempts,
		Volume:   s.Volume,
		Error:    s.Error,
	}
	if s.Station != nil {
		st := *s.Station
		snap.Station = &st
	}
	if s.Track != nil {
		t := *s.Track
		snap.Track = &t
	}
	return snap
}

// ClampVolume limits v to 0-100.
func ClampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
