package mpd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// ErrStopped is reported when MPD stops before a stream produced audio.
var ErrStopped = errors.New("mpd stopped before playback started")

const defaultPollInterval = 250 * time.Millisecond

// Sink plays a single URL at a time through MPD. Playback counts as confirmed once MPD
// reports a decoded audio format or elapsed time for it.
type Sink struct {
	client       *Client
	pollInterval time.Duration
}

// NewSink creates a sink on top of client.
func NewSink(client *Client) *Sink {
	return &Sink{client: client, pollInterval: defaultPollInterval}
}

// Start replaces the queue with url and starts it. The returned channel receives nil
// once playback is confirmed, or the error that ended the attempt.
func (s *Sink) Start(ctx context.Context, url string) (<-chan error, error) {
	if err := s.client.Clear(); err != nil {
		return nil, fmt.Errorf("clear queue: %w", err)
	}
	if err := s.client.Add(url); err != nil {
		return nil, fmt.Errorf("add %s: %w", url, err)
	}
	if err := s.client.Play(0); err != nil {
		return nil, fmt.Errorf("play: %w", err)
	}

	confirm := make(chan error, 1)
	go s.watch(ctx, url, confirm)
	return confirm, nil
}

func (s *Sink) watch(ctx context.Context, url string, confirm chan<- error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			confirm <- ctx.Err()
			return
		case <-ticker.C:
			attrs, err := s.client.Status()
			if err != nil {
				confirm <- fmt.Errorf("status: %w", err)
				return
			}
			done, err := playbackConfirmed(attrs)
			if !done {
				continue
			}
			if err != nil {
				log.Debug().Err(err).Str("url", url).Msg("MPD rejected stream")
			}
			confirm <- err
			return
		}
	}
}

// playbackConfirmed inspects an MPD status. done is false while MPD is still buffering.
func playbackConfirmed(attrs mpd.Attrs) (done bool, err error) {
	if msg := attrs["error"]; msg != "" {
		return true, fmt.Errorf("mpd: %s", msg)
	}

	switch attrs["state"] {
	case "play":
		if attrs["audio"] != "" {
			return true, nil
		}
		if elapsed, err := strconv.ParseFloat(attrs["elapsed"], 64); err == nil && elapsed > 0 {
			return true, nil
		}
		return false, nil
	case "pause":
		return false, nil
	default:
		return true, ErrStopped
	}
}

// Pause sets the pause state.
func (s *Sink) Pause(paused bool) error {
	return s.client.Pause(paused)
}

// Stop stops playback.
func (s *Sink) Stop() error {
	return s.client.Stop()
}

// SetVolume sets the MPD mixer volume.
func (s *Sink) SetVolume(vol int) error {
	return s.client.SetVolume(vol)
}
