// Package mpd plays radio streams and uploaded tracks through MPD.
package mpd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by Ping before Connect succeeded.
var ErrNotConnected = errors.New("not connected")

// Client wraps the MPD client with reconnection logic.
type Client struct {
	mu       sync.RWMutex
	client   *mpd.Client
	host     string
	port     int
	password string
}

// NewClient creates a new MPD client wrapper.
func NewClient(host string, port int, password string) *Client {
	return &Client{
		host:     host,
		port:     port,
		password: password,
	}
}

// Addr returns the host:port MPD is reached at.
func (c *Client) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// Connect establishes connection to MPD.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

// connectLocked establishes connection (must hold lock).
func (c *Client) connectLocked() error {
	addr := c.Addr()
	log.Info().Str("addr", addr).Msg("Connecting to MPD")

	client, err := mpd.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if c.password != "" {
		if err := client.Command("password %s", c.password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	c.client = client
	log.Info().Msg("Connected to MPD")
	return nil
}

// ensureConnected checks connection and reconnects if needed.
func (c *Client) ensureConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return c.connectLocked()
	}

	if err := c.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		c.client.Close()
		c.client = nil
		return c.connectLocked()
	}

	return nil
}

// do runs fn against a live connection.
func (c *Client) do(fn func(*mpd.Client) error) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return fn(c.client)
}

// Close closes the MPD connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Ping checks if the connection is alive.
func (c *Client) Ping() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return ErrNotConnected
	}
	return c.client.Ping()
}

// Status returns the current MPD status.
func (c *Client) Status() (mpd.Attrs, error) {
	var attrs mpd.Attrs
	err := c.do(func(m *mpd.Client) error {
		var err error
		attrs, err = m.Status()
		return err
	})
	return attrs, err
}

// Play starts playback. If pos is -1, resumes current track.
func (c *Client) Play(pos int) error {
	if pos < 0 {
		pos = -1
	}
	return c.do(func(m *mpd.Client) error { return m.Play(pos) })
}

// Pause sets the pause state.
func (c *Client) Pause(pause bool) error {
	return c.do(func(m *mpd.Client) error { return m.Pause(pause) })
}

// Stop stops playback.
func (c *Client) Stop() error {
	return c.do(func(m *mpd.Client) error { return m.Stop() })
}

// SetVolume sets the volume (0-100).
func (c *Client) SetVolume(vol int) error {
	if vol < 0 {
		vol = 0
	} else if vol > 100 {
		vol = 100
	}
	return c.do(func(m *mpd.Client) error { return m.SetVolume(vol) })
}

// Clear clears the current queue.
func (c *Client) Clear() error {
	return c.do(func(m *mpd.Client) error { return m.Clear() })
}

// Add adds a URI to the queue.
func (c *Client) Add(uri string) error {
	return c.do(func(m *mpd.Client) error { return m.Add(uri) })
}
