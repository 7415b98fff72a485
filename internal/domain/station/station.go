// Package station defines the radio station record shared by the directory client,
// the preload window and the playback session.
package station

import "strings"

// Station is a radio station as returned by the Radio Browser directory.
// The directory identifies stations by either "stationuuid" or "uuid"; ID holds the
// canonical value once Normalize has been applied.
type Station struct {
	ID          string `json:"id"`
	StationUUID string `json:"stationuuid,omitempty"`
	UUID        string `json:"uuid,omitempty"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	URLResolved string `json:"url_resolved,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
	Favicon     string `json:"favicon,omitempty"`
	Tags        string `json:"tags,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"countrycode,omitempty"`
	Language    string `json:"language,omitempty"`
	Codec       string `json:"codec,omitempty"`
	Bitrate     int    `json:"bitrate,omitempty"`
	Votes       int    `json:"votes,omitempty"`
	ClickCount  int    `json:"clickcount,omitempty"`
}

// Normalize populates the canonical ID from whichever alias is known and keeps both
// alias fields in sync. Applying it more than once yields the same record.
func Normalize(s Station) Station {
	id := firstNonEmpty(s.ID, s.StationUUID, s.UUID)
	s.ID = id
	s.StationUUID = id
	s.UUID = id
	s.URL = strings.TrimSpace(s.URL)
	s.URLResolved = strings.TrimSpace(s.URLResolved)
	return s
}

// NormalizeAll normalizes every station in place and returns the slice.
func NormalizeAll(stations []Station) []Station {
	for i := range stations {
		stations[i] = Normalize(stations[i])
	}
	return stations
}

// AlternateURL returns the resolved stream URL when it is set and differs from the
// primary URL.
func (s Station) AlternateURL() string {
	if s.URLResolved == "" || s.URLResolved == s.URL {
		return ""
	}
	return s.URLResolved
}

// StreamURLs returns the distinct, non-empty stream URLs in try order.
// The primary URL comes first unless preferResolved is set.
func (s Station) StreamURLs(preferResolved bool) []string {
	ordered := []string{s.URL, s.URLResolved}
	if preferResolved {
		ordered = []string{s.URLResolved, s.URL}
	}

	urls := make([]string, 0, 2)
	for _, u := range ordered {
		if u == "" {
			continue
		}
		if len(urls) > 0 && urls[0] == u {
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

// IndexOf returns the position of the station with the given id, or -1.
func IndexOf(stations []Station, id string) int {
	if id == "" {
		return -1
	}
	for i, s := range stations {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Find returns the station with the given id.
func Find(stations []Station, id string) (Station, bool) {
	if i := IndexOf(stations, id); i >= 0 {
		return stations[i], true
	}
	return Station{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
