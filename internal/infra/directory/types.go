// Package directory provides a Radio Browser directory client that fails over across
// mirror servers.
package directory

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Common errors
var (
	// ErrAllMirrorsFailed is returned once every mirror has been tried for a request.
	// It deliberately carries no mirror detail so it can be shown to the user as is.
	ErrAllMirrorsFailed = errors.New("could not reach the station directory, please try again")

	// ErrNoServers indicates the discovery endpoint returned no usable servers
	ErrNoServers = errors.New("no directory servers discovered")
)

const (
	// DefaultDiscoveryURL lists the currently available directory mirrors
	DefaultDiscoveryURL = "https://all.api.radio-browser.info"

	// DefaultUserAgent identifies us to the directory, as its usage policy asks
	DefaultUserAgent = "RadioWave/1.0 (https://github.com/edumarques81/radiowave-backend)"

	// DefaultTimeout for a single mirror request
	DefaultTimeout = 10 * time.Second

	// DefaultTopLimit is the number of stations loaded for the popular list
	DefaultTopLimit = 100

	// DefaultSearchLimit is the number of stations returned by a name search
	DefaultSearchLimit = 50

	// DefaultFilterLimit is the number of stations returned by a filtered search
	DefaultFilterLimit = 100

	// DefaultOrder sorts filtered searches by votes, highest first
	DefaultOrder = "votes"

	// maxResponseBytes bounds a single directory response body
	maxResponseBytes = 16 << 20
)

// DefaultMirrors is used until discovery replaces it.
var DefaultMirrors = []string{
	"https://de1.api.radio-browser.info",
	"https://fr1.api.radio-browser.info",
	"https://at1.api.radio-browser.info",
}

// StatusError reports a non-2xx answer from one mirror.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Filter selects one of the predefined station lists.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterPopular Filter = "popular"
	FilterCountry Filter = "country"
	FilterGenre   Filter = "genre"
)

// genreTags is the tag set used by the genre filter.
const genreTags = "pop,rock,jazz"

// SearchParams describes a station search. Zero values are omitted from the query.
type SearchParams struct {
	Name          string
	Tag           string
	TagExact      bool
	Language      string
	LanguageExact bool
	CountryCode   string
	Order         string // votes, clickcount, name, bitrate ...
	Reverse       bool
	HideBroken    bool
	Limit         int
	Offset        int
}

// Values encodes the parameters as a directory query string.
func (p SearchParams) Values() url.Values {
	q := url.Values{}
	if p.Name != "" {
		q.Set("name", p.Name)
	}
	if p.Tag != "" {
		q.Set("tag", p.Tag)
		if p.TagExact {
			q.Set("tagExact", "true")
		}
	}
	if p.Language != "" {
		q.Set("language", p.Language)
		if p.LanguageExact {
			q.Set("languageExact", "true")
		}
	}
	if p.CountryCode != "" {
		q.Set("countrycode", p.CountryCode)
	}
	if p.Order != "" {
		q.Set("order", p.Order)
	}
	if p.Reverse {
		q.Set("reverse", "true")
	}
	if p.HideBroken {
		q.Set("hidebroken", "true")
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	return q
}

// Facet is one entry of a tag, language or country listing.
type Facet struct {
	Name         string `json:"name"`
	ISOCode      string `json:"iso_3166_1,omitempty"`
	StationCount int    `json:"stationcount"`
}

// server is one entry of the discovery listing.
type server struct {
	Name string `json:"name"`
}
