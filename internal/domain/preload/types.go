// Package preload probes the reachability of upcoming stations ahead of playback.
package preload

import (
	"context"
	"time"
)

// Status is the probe state of a preload entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Defaults
const (
	DefaultLimit        = 5
	DefaultConcurrency  = 3
	DefaultProbeTimeout = 5 * time.Second
)

// Entry records what is known about one station in the preload window.
type Entry struct {
	StationID      string    `json:"stationId"`
	URL            string    `json:"url"`
	ResolvedURL    string    `json:"resolvedUrl,omitempty"`
	Status         Status    `json:"status"`
	PreferResolved bool      `json:"preferResolved"`
	CheckedAt      time.Time `json:"checkedAt,omitempty"`
}

// Prober checks whether a stream URL answers without downloading it.
type Prober interface {
	Probe(ctx context.Context, url string) error
}
