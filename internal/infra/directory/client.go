package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/radiowave-backend/internal/domain/station"
)

// Client talks to the Radio Browser directory. Requests go to the current mirror and
// move on to the next one when it fails; the mirror index returns to the first mirror
// after any successful request.
type Client struct {
	mu           sync.Mutex
	mirrors      []string
	retryCount   int
	lastMirror   int
	discoveryURL string
	userAgent    string
	httpClient   *http.Client
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithMirrors sets the mirror base URLs. An empty list keeps the defaults.
func WithMirrors(urls ...string) Option {
	return func(c *Client) {
		if cleaned := cleanMirrors(urls); len(cleaned) > 0 {
			c.mirrors = cleaned
		}
	}
}

// WithDiscoveryURL sets the server discovery endpoint base (useful for testing).
func WithDiscoveryURL(u string) Option {
	return func(c *Client) {
		c.discoveryURL = strings.TrimRight(u, "/")
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new directory client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		mirrors:      append([]string(nil), DefaultMirrors...),
		lastMirror:   -1,
		discoveryURL: DefaultDiscoveryURL,
		userAgent:    DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Mirrors returns a copy of the mirror list.
func (c *Client) Mirrors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.mirrors...)
}

// SetMirrors replaces the mirror list and resets the mirror index.
// An empty list is ignored so the client always has somewhere to go.
func (c *Client) SetMirrors(urls []string) {
	cleaned := cleanMirrors(urls)
	if len(cleaned) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirrors = cleaned
	c.retryCount = 0
}

// MirrorIndex returns the index of the mirror the next request starts with.
func (c *Client) MirrorIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// LastMirror returns the index of the mirror that served the last successful request,
// or -1 if none has succeeded yet.
func (c *Client) LastMirror() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMirror
}

// LoadTop returns the n most voted stations.
func (c *Client) LoadTop(ctx context.Context, n int) ([]station.Station, error) {
	if n <= 0 {
		n = DefaultTopLimit
	}
	return c.fetchStations(ctx, "/json/stations/topvote/"+strconv.Itoa(n), nil)
}

// Search returns stations whose name matches query. A blank query loads the top list.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]station.Station, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.LoadTop(ctx, DefaultTopLimit)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return c.SearchStations(ctx, SearchParams{Name: query, Limit: limit})
}

// SearchStations runs an advanced search.
func (c *Client) SearchStations(ctx context.Context, params SearchParams) ([]station.Station, error) {
	return c.fetchStations(ctx, "/json/stations/search", params.Values())
}

// LoadByFilter loads one of the predefined lists. Failures of the filtered lists fall
// back to the popular list.
func (c *Client) LoadByFilter(ctx context.Context, filter Filter, countryCode string) ([]station.Station, error) {
	var (
		stations []station.Station
		err      error
	)

	switch filter {
	case FilterCountry:
		if countryCode == "" {
			countryCode = "US"
		}
		stations, err = c.SearchStations(ctx, SearchParams{CountryCode: countryCode, Limit: DefaultTopLimit})
	case FilterGenre:
		stations, err = c.SearchStations(ctx, SearchParams{Tag: genreTags, Limit: DefaultTopLimit})
	default:
		return c.LoadTop(ctx, DefaultTopLimit)
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.Warn().Err(err).Str("filter", string(filter)).Msg("Filtered station list failed, loading popular stations")
		return c.LoadTop(ctx, DefaultTopLimit)
	}
	return stations, nil
}

// ListTags returns the most used tags.
func (c *Client) ListTags(ctx context.Context, limit int) ([]Facet, error) {
	return c.listFacets(ctx, "tags", limit)
}

// ListLanguages returns the languages with the most stations.
func (c *Client) ListLanguages(ctx context.Context, limit int) ([]Facet, error) {
	return c.listFacets(ctx, "languages", limit)
}

// ListCountries returns the countries with the most stations.
func (c *Client) ListCountries(ctx context.Context, limit int) ([]Facet, error) {
	return c.listFacets(ctx, "countries", limit)
}

func (c *Client) listFacets(ctx context.Context, kind string, limit int) ([]Facet, error) {
	if limit <= 0 {
		limit = 30
	}
	q := url.Values{}
	q.Set("order", "stationcount")
	q.Set("reverse", "true")
	q.Set("limit", strconv.Itoa(limit))

	var facets []Facet
	if err := c.getJSON(ctx, "/json/"+kind, q, &facets); err != nil {
		return nil, err
	}
	return facets, nil
}

// ReportPlay records a listen for the station. It is best effort: failures are logged
// and never returned. An empty id is a no-op.
func (c *Client) ReportPlay(ctx context.Context, stationID string) {
	if stationID == "" {
		return
	}

	c.mu.Lock()
	base := c.mirrors[c.retryCount]
	c.mu.Unlock()

	voteURL := base + "/json/vote/" + url.PathEscape(stationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, voteURL, nil)
	if err != nil {
		log.Debug().Err(err).Str("station", stationID).Msg("Failed to build vote request")
		return
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("station", stationID).Msg("Failed to report play")
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode/100 != 2 {
		log.Debug().Int("status", resp.StatusCode).Str("station", stationID).Msg("Directory rejected play report")
		return
	}
	log.Debug().Str("station", stationID).Msg("Reported play")
}

// DiscoverMirrors asks the discovery endpoint for the current list of mirrors and
// returns their base URLs, de-duplicated, in the order given.
func (c *Client) DiscoverMirrors(ctx context.Context) ([]string, error) {
	endpoint := c.discoveryURL + "/json/servers"

	var servers []server
	if err := c.doJSON(ctx, endpoint, &servers); err != nil {
		return nil, fmt.Errorf("discover servers: %w", err)
	}

	urls := make([]string, 0, len(servers))
	for _, s := range servers {
		if s.Name == "" {
			continue
		}
		urls = append(urls, "https://"+s.Name)
	}
	urls = cleanMirrors(urls)
	if len(urls) == 0 {
		return nil, ErrNoServers
	}

	log.Info().Int("count", len(urls)).Msg("Discovered directory mirrors")
	return urls, nil
}

func (c *Client) fetchStations(ctx context.Context, path string, query url.Values) ([]station.Station, error) {
	var stations []station.Station
	if err := c.getJSON(ctx, path, query, &stations); err != nil {
		return nil, err
	}
	return station.NormalizeAll(stations), nil
}

// getJSON issues the request against the current mirror and fails over to the next
// mirror until one succeeds or the list is exhausted. Mirrors are tried one at a time.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	c.mu.Lock()
	mirrors := c.mirrors
	start := c.retryCount
	c.mu.Unlock()

	for idx := start; idx < len(mirrors); idx++ {
		endpoint := mirrors[idx] + path
		if len(query) > 0 {
			endpoint += "?" + query.Encode()
		}

		err := c.doJSON(ctx, endpoint, out)
		if err == nil {
			c.mu.Lock()
			c.retryCount = 0
			c.lastMirror = idx
			c.mu.Unlock()
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.mu.Lock()
		if idx+1 < len(mirrors) {
			c.retryCount = idx + 1
		} else {
			c.retryCount = 0
		}
		c.mu.Unlock()

		log.Warn().
			Err(err).
			Str("mirror", mirrors[idx]).
			Int("attempt", idx-start+1).
			Msg("Directory mirror failed")
	}

	log.Error().Str("path", path).Int("mirrors", len(mirrors)-start).Msg("All directory mirrors failed")
	return ErrAllMirrorsFailed
}

func (c *Client) doJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func cleanMirrors(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		cleaned = append(cleaned, u)
	}
	return cleaned
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
