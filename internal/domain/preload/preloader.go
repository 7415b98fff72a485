package preload

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/edumarques81/radiowave-backend/internal/domain/station"
)

// Preloader keeps a bounded window of probed stations. Entries exist as pending the
// moment the window is set and are resolved by background probes; callers never wait
// on a probe.
type Preloader struct {
	prober      Prober
	limit       int
	concurrency int
	timeout     time.Duration

	mu         sync.RWMutex
	entries    map[string]*Entry
	order      []string
	generation uint64

	wg sync.WaitGroup
}

// Option configures a Preloader.
type Option func(*Preloader)

// WithLimit sets the default window size.
func WithLimit(n int) Option {
	return func(p *Preloader) {
		if n > 0 {
			p.limit = n
		}
	}
}

// WithConcurrency bounds the number of probes in flight.
func WithConcurrency(n int) Option {
	return func(p *Preloader) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithProbeTimeout bounds a single probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(p *Preloader) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// New creates a Preloader using the given prober.
func New(prober Prober, opts ...Option) *Preloader {
	p := &Preloader{
		prober:      prober,
		limit:       DefaultLimit,
		concurrency: DefaultConcurrency,
		timeout:     DefaultProbeTimeout,
		entries:     make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limit returns the default window size.
func (p *Preloader) Limit() int {
	return p.limit
}

// Window replaces the preload window with the first limit stations of a freshly loaded
// list. A limit of zero or less uses the configured default. It returns immediately;
// probes run in the background and survive cancellation of ctx.
func (p *Preloader) Window(ctx context.Context, stations []station.Station, limit int) {
	p.window(ctx, stations, 0, limit)
}

// Advance moves the window so that it starts at index from of the list.
func (p *Preloader) Advance(ctx context.Context, stations []station.Station, from int) {
	if from < 0 {
		from = 0
	}
	p.window(ctx, stations, from, p.limit)
}

func (p *Preloader) window(ctx context.Context, stations []station.Station, from, limit int) {
	if limit <= 0 {
		limit = p.limit
	}
	if from > len(stations) {
		from = len(stations)
	}
	end := from + limit
	if end > len(stations) {
		end = len(stations)
	}

	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.entries = make(map[string]*Entry, end-from)
	p.order = p.order[:0]

	pending := make([]Entry, 0, end-from)
	for _, s := range stations[from:end] {
		s = station.Normalize(s)
		if s.ID == "" {
			continue
		}
		if _, dup := p.entries[s.ID]; dup {
			continue
		}
		e := &Entry{
			StationID:   s.ID,
			URL:         s.URL,
			ResolvedURL: s.URLResolved,
			Status:      StatusPending,
		}
		p.entries[s.ID] = e
		p.order = append(p.order, s.ID)
		pending = append(pending, *e)
	}
	p.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	log.Debug().Int("stations", len(pending)).Int("from", from).Msg("Preloading stations")

	bg := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		var g errgroup.Group
		g.SetLimit(p.concurrency)
		for _, e := range pending {
			g.Go(func() error {
				p.probe(bg, gen, e)
				return nil
			})
		}
		g.Wait()
	}()
}

// probe checks the stream URLs of one entry in play order and records the outcome.
func (p *Preloader) probe(ctx context.Context, gen uint64, e Entry) {
	s := station.Station{URL: e.URL, URLResolved: e.ResolvedURL}

	status := StatusError
	preferResolved := false
	for _, u := range s.StreamURLs(false) {
		pctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.prober.Probe(pctx, u)
		cancel()
		if err != nil {
			log.Debug().Err(err).Str("station", e.StationID).Str("url", u).Msg("Probe failed")
			continue
		}
		status = StatusReady
		preferResolved = u != e.URL
		break
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return
	}
	if cur, ok := p.entries[e.StationID]; ok {
		cur.Status = status
		cur.PreferResolved = preferResolved
		cur.CheckedAt = time.Now()
	}
}

// Lookup returns the entry for a station in the current window.
func (p *Preloader) Lookup(id string) (Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// PreferResolved reports whether playback of the station should start with its
// resolved URL. Pending, failed and unknown stations use the default order.
func (p *Preloader) PreferResolved(id string) bool {
	e, ok := p.Lookup(id)
	return ok && e.Status == StatusReady && e.PreferResolved
}

// Entries returns a snapshot of the window in list order.
func (p *Preloader) Entries() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.entries[id])
	}
	return out
}

// Len returns the number of entries in the window.
func (p *Preloader) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Wait blocks until every probe started so far has finished.
func (p *Preloader) Wait() {
	p.wg.Wait()
}
