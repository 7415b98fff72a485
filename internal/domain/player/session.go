package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/radiowave-backend/internal/domain/station"
)

// Common errors
var (
	ErrNoStreamURL    = errors.New("station has no stream url")
	ErrSuperseded     = errors.New("play request superseded")
	ErrWatchdog       = errors.New("playback not confirmed in time")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrEmptyQueue     = errors.New("station list is empty")
	ErrSinkClosed     = errors.New("sink closed without confirming playback")
)

// Defaults
const (
	DefaultWatchdog    = 8 * time.Second
	DefaultMaxAttempts = 2
)

// PlaybackError is returned when every attempt for a station failed.
type PlaybackError struct {
	Station          string
	Attempts         int
	MixedContentHint bool
	Err              error
}

func (e *PlaybackError) Error() string {
	msg := fmt.Sprintf("could not play %q after %d attempt(s)", e.Station, e.Attempts)
	if e.MixedContentHint {
		msg += " (the stream uses plain http, which may be blocked as mixed content or by CORS)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// Sink plays a stream URL. Start returns a channel that receives exactly one value:
// nil once playback is confirmed, or the error that prevented it.
type Sink interface {
	Start(ctx context.Context, url string) (<-chan error, error)
	Pause(paused bool) error
	Stop() error
	SetVolume(vol int) error
}

// Reporter records a listen. It must not block for long and never fails visibly.
type Reporter interface {
	ReportPlay(ctx context.Context, stationID string)
}

// Hinter tells whether a station should start with its resolved URL.
type Hinter interface {
	PreferResolved(stationID string) bool
}

// VolumeStore persists the volume between runs.
type VolumeStore interface {
	Volume() (int, error)
	SetVolume(vol int) error
}

// Session owns the current station list, the current station and the sink.
type Session struct {
	sink        Sink
	reporter    Reporter
	hints       Hinter
	volumes     VolumeStore
	watchdog    time.Duration
	maxAttempts int
	onChange    func(Snapshot)

	state *State

	mu         sync.Mutex
	queue      []station.Station
	current    int
	generation uint64
}

// Option configures a Session.
type Option func(*Session)

// WithReporter sets the play reporter.
func WithReporter(r Reporter) Option {
	return func(s *Session) { s.reporter = r }
}

// WithHints sets the source of URL ordering hints.
func WithHints(h Hinter) Option {
	return func(s *Session) { s.hints = h }
}

// WithVolumeStore sets where the volume is persisted.
func WithVolumeStore(v VolumeStore) Option {
	return func(s *Session) { s.volumes = v }
}

// WithWatchdog sets how long an attempt may take to confirm playback.
func WithWatchdog(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.watchdog = d
		}
	}
}

// WithMaxAttempts caps the number of URLs tried per play request.
func WithMaxAttempts(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithStateListener registers a callback invoked after every state change.
func WithStateListener(fn func(Snapshot)) Option {
	return func(s *Session) { s.onChange = fn }
}

// NewSession creates a session playing through sink.
func NewSession(sink Sink, opts ...Option) *Session {
	s := &Session{
		sink:        sink,
		watchdog:    DefaultWatchdog,
		maxAttempts: DefaultMaxAttempts,
		state:       NewState(),
		current:     -1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.volumes != nil {
		if vol, err := s.volumes.Volume(); err != nil {
			log.Warn().Err(err).Msg("Failed to load stored volume")
		} else {
			s.state.SetVolume(vol)
		}
	}
	return s
}

// State returns a snapshot of the player state.
func (s *Session) State() Snapshot {
	return s.state.Snapshot()
}

// SetQueue replaces the station list used by Next and Previous.
func (s *Session) SetQueue(stations []station.Station) {
	queue := make([]station.Station, len(stations))
	for i, st := range stations {
		queue[i] = station.Normalize(st)
	}

	snap := s.state.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = queue
	s.current = -1
	if snap.Station != nil {
		s.current = station.IndexOf(queue, snap.Station.ID)
	}
}

// Queue returns a copy of the station list.
func (s *Session) Queue() []station.Station {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]station.Station(nil), s.queue...)
}

// Play starts a station. Its stream URLs are tried in the order suggested by the
// preload hint, up to the attempt cap. Each attempt must be confirmed by the sink before
// the watchdog fires. A later Play or Stop supersedes this one.
func (s *Session) Play(ctx context.Context, st station.Station) error {
	st = station.Normalize(st)

	preferResolved := s.hints != nil && s.hints.PreferResolved(st.ID)
	urls := st.StreamURLs(preferResolved)
	if len(urls) == 0 {
		return &PlaybackError{Station: st.Name, Err: ErrNoStreamURL}
	}
	if len(urls) > s.maxAttempts {
		urls = urls[:s.maxAttempts]
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	if idx := station.IndexOf(s.queue, st.ID); idx >= 0 {
		s.current = idx
	}
	s.mu.Unlock()

	s.state.Loading(&st, nil)
	s.notify()

	log.Info().Str("station", st.Name).Str("id", st.ID).Bool("preferResolved", preferResolved).Msg("Play station")

	var lastErr error
	attempts := 0
	for _, u := range urls {
		if !s.isCurrent(gen) {
			return ErrSuperseded
		}

		attempts++
		err := s.attempt(ctx, u)
		if !s.isCurrent(gen) {
			return ErrSuperseded
		}
		if err == nil {
			s.state.Playing(u, attempts)
			s.notify()
			log.Info().Str("station", st.Name).Str("url", u).Int("attempts", attempts).Msg("Playback confirmed")

			if s.reporter != nil && st.ID != "" {
				go s.reporter.ReportPlay(context.Background(), st.ID)
			}
			return nil
		}

		lastErr = err
		log.Warn().Err(err).Str("station", st.Name).Str("url", u).Int("attempt", attempts).Msg("Playback attempt failed")

		if ctx.Err() != nil {
			break
		}
	}

	if err := s.sink.Stop(); err != nil {
		log.Debug().Err(err).Msg("Failed to stop sink after failed play")
	}

	perr := &PlaybackError{
		Station:          st.Name,
		Attempts:         attempts,
		MixedContentHint: hasPlainHTTP(urls),
		Err:              lastErr,
	}
	s.state.Failed(attempts, perr.Error())
	s.notify()
	return perr
}

// PlayLocal plays an uploaded track. Local files get a single attempt and are not
// reported to the directory.
func (s *Session) PlayLocal(ctx context.Context, track LocalTrack) error {
	if track.URL == "" {
		return &PlaybackError{Station: track.Name, Err: ErrNoStreamURL}
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.current = -1
	s.mu.Unlock()

	s.state.Loading(nil, &track)
	s.notify()

	log.Info().Str("track", track.Name).Msg("Play local track")

	err := s.attempt(ctx, track.URL)
	if !s.isCurrent(gen) {
		return ErrSuperseded
	}
	if err != nil {
		perr := &PlaybackError{Station: track.Name, Attempts: 1, Err: err}
		s.state.Failed(1, perr.Error())
		s.notify()
		return perr
	}

	s.state.Playing(track.URL, 1)
	s.notify()
	return nil
}

// attempt hands url to the sink and waits for confirmation, the watchdog or ctx.
func (s *Session) attempt(ctx context.Context, url string) error {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	confirm, err := s.sink.Start(actx, url)
	if err != nil {
		return err
	}

	watchdog := time.NewTimer(s.watchdog)
	defer watchdog.Stop()

	select {
	case err, ok := <-confirm:
		if !ok {
			return ErrSinkClosed
		}
		return err
	case <-watchdog.C:
		return fmt.Errorf("%w after %s", ErrWatchdog, s.watchdog)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next plays the station after the current one, wrapping at the end of the list.
func (s *Session) Next(ctx context.Context) error {
	return s.step(ctx, 1)
}

// Previous plays the station before the current one, wrapping at the start.
func (s *Session) Previous(ctx context.Context) error {
	return s.step(ctx, -1)
}

func (s *Session) step(ctx context.Context, delta int) error {
	s.mu.Lock()
	n := len(s.queue)
	if n == 0 {
		s.mu.Unlock()
		return ErrEmptyQueue
	}

	var idx int
	switch {
	case s.current < 0 && delta > 0:
		idx = 0
	case s.current < 0:
		idx = n - 1
	default:
		idx = ((s.current+delta)%n + n) % n
	}
	next := s.queue[idx]
	s.mu.Unlock()

	return s.Play(ctx, next)
}

// TogglePause pauses a playing stream or resumes a paused one.
func (s *Session) TogglePause() error {
	switch s.state.CurrentStatus() {
	case StatusPlay:
		if err := s.sink.Pause(true); err != nil {
			return fmt.Errorf("pause: %w", err)
		}
		s.state.Pause()
	case StatusPause:
		if err := s.sink.Pause(false); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		s.state.Resume()
	default:
		return ErrNothingPlaying
	}
	s.notify()
	return nil
}

// Stop stops playback and supersedes any play request in progress.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()

	log.Info().Msg("Stop")
	if err := s.sink.Stop(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	s.state.Stop()
	s.notify()
	return nil
}

// SetVolume sets and persists the volume (0-100).
func (s *Session) SetVolume(vol int) error {
	vol = ClampVolume(vol)
	log.Info().Int("volume", vol).Msg("SetVolume")

	if err := s.sink.SetVolume(vol); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	s.state.SetVolume(vol)
	if s.volumes != nil {
		if err := s.volumes.SetVolume(vol); err != nil {
			log.Warn().Err(err).Msg("Failed to persist volume")
		}
	}
	s.notify()
	return nil
}

// IsPlayingTrack reports whether the local track with id is the current source.
func (s *Session) IsPlayingTrack(id string) bool {
	snap := s.state.Snapshot()
	return snap.Track != nil && snap.Track.ID == id && snap.Status != StatusStop
}

func (s *Session) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange(s.state.Snapshot())
	}
}

func hasPlainHTTP(urls []string) bool {
	for _, u := range urls {
		if strings.HasPrefix(strings.ToLower(u), "http://") {
			return true
		}
	}
	return false
}
