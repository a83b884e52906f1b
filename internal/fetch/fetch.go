// Package fetch retrieves catalog pages. Every page goes through the same
// path: cache lookup, paced network attempt through a rotating egress
// identity, content decode, write-through to the cache. Parsing is the
// scrape package's job; this package only moves bytes.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lepinkainen/stacks/internal/egress"
	"github.com/lepinkainen/stacks/internal/errors"
	"github.com/lepinkainen/stacks/internal/pagecache"
	"github.com/lepinkainen/stacks/internal/ratelimit"
	"github.com/lepinkainen/stacks/internal/scrape"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 10 << 20
)

// Config holds the fetcher's retry, size and cache parameters.
type Config struct {
	BaseURL         string
	MaxAttempts     int
	BackoffBase     time.Duration
	MaxBodyBytes    int64
	CacheTTL        time.Duration
	EditionsPerPage int
	RenderFallback  bool
}

// DefaultConfig returns the retry and cadence settings the external
// catalog tolerates.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		MaxAttempts:     3,
		BackoffBase:     time.Second,
		MaxBodyBytes:    defaultMaxBodyBytes,
		CacheTTL:        pagecache.DefaultTTL,
		EditionsPerPage: 100,
	}
}

// Fetcher retrieves pages with caching, pacing, egress rotation and
// bounded retries. A nil pool means direct connections; a nil cache means
// every call hits the network.
type Fetcher struct {
	cfg   Config
	cache *pagecache.Cache
	pool  *egress.Pool
	pacer *ratelimit.Pacer

	direct *http.Client

	clientMu sync.Mutex
	clients  map[string]*http.Client

	// sleep and render are swapped out in tests.
	sleep  func(time.Duration)
	render func(ctx context.Context, url string) ([]byte, error)
}

// New wires a fetcher from its collaborators.
func New(cfg Config, cache *pagecache.Cache, pool *egress.Pool, pacer *ratelimit.Pacer) *Fetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Fetcher{
		cfg:     cfg,
		cache:   cache,
		pool:    pool,
		pacer:   pacer,
		direct:  &http.Client{Timeout: defaultTimeout},
		clients: make(map[string]*http.Client),
		sleep:   time.Sleep,
		render:  renderPage,
	}
}

// BookPage returns the main page markup for one record id. When render
// fallback is enabled and the plain markup lacks the embedded data
// payload, the page is re-fetched through a headless browser and the
// rendered markup replaces the cached copy.
func (f *Fetcher) BookPage(ctx context.Context, id string) ([]byte, error) {
	key := pagecache.Key(scrape.KindBook, id, 0)
	url := scrape.BookURL(f.cfg.BaseURL, id)

	content, err := f.page(ctx, scrape.KindBook, key, url)
	if err != nil || !f.cfg.RenderFallback || scrape.HasDynamicPayload(content) {
		return content, err
	}

	slog.Info("Page missing data payload, rendering", "id", id)
	rendered, err := f.render(ctx, url)
	if err != nil {
		slog.Warn("Render fallback failed, keeping plain markup", "id", id, "error", err)
		return content, nil
	}
	f.cachePut(key, scrape.KindBook, rendered)
	return rendered, nil
}

// EditionsPage returns one page of a work's editions listing.
func (f *Fetcher) EditionsPage(ctx context.Context, workID string, page int) ([]byte, error) {
	key := pagecache.Key(scrape.KindEditions, workID, page)
	url := scrape.EditionsURL(f.cfg.BaseURL, workID, page, f.cfg.EditionsPerPage)
	return f.page(ctx, scrape.KindEditions, key, url)
}

// AuthorBooksPage returns one page of an author's book listing.
func (f *Fetcher) AuthorBooksPage(ctx context.Context, authorID string, page int) ([]byte, error) {
	key := pagecache.Key(scrape.KindAuthor, authorID, page)
	url := scrape.AuthorBooksURL(f.cfg.BaseURL, authorID, page, f.cfg.EditionsPerPage)
	return f.page(ctx, scrape.KindAuthor, key, url)
}

func (f *Fetcher) page(ctx context.Context, kind, key, url string) ([]byte, error) {
	if f.cache != nil {
		content, hit, err := f.cache.Get(key, f.cfg.CacheTTL)
		if err != nil {
			slog.Warn("Cache lookup failed", "key", key, "error", err)
		} else if hit {
			slog.Debug("Cache hit", "key", key)
			return content, nil
		}
	}

	content, err := f.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	f.cachePut(key, kind, content)
	return content, nil
}

func (f *Fetcher) cachePut(key, kind string, content []byte) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Put(key, kind, content); err != nil {
		slog.Warn("Failed to cache page", "key", key, "error", err)
	}
}

// fetch runs the paced attempt loop. Each attempt draws an egress
// identity; the backoff between attempts doubles from BackoffBase.
func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if err := f.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		content, err := f.attempt(ctx, url)
		if err == nil {
			return content, nil
		}
		lastErr = err
		slog.Debug("Fetch attempt failed", "url", url, "attempt", attempt, "error", err)

		if attempt < f.cfg.MaxAttempts {
			f.sleep(f.cfg.BackoffBase << (attempt - 1))
		}
	}
	return nil, errors.NewFetchError(url, f.cfg.MaxAttempts, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	identity, viaPool := f.acquire()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	applyProfile(req, identity.Profile)

	client := f.direct
	if viaPool {
		client = f.clientFor(identity)
	}

	resp, err := client.Do(req)
	if err != nil {
		f.report(identity, viaPool, false)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		f.report(identity, viaPool, false)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := decodeBody(resp, f.cfg.MaxBodyBytes)
	if err != nil {
		f.report(identity, viaPool, false)
		return nil, err
	}

	f.report(identity, viaPool, true)
	return body, nil
}

// acquire draws an identity from the pool. Without a pool, or with an
// empty one, the fetch goes out directly but still wears a full browser
// header profile.
func (f *Fetcher) acquire() (egress.Identity, bool) {
	if f.pool == nil {
		return egress.Identity{Profile: egress.RandomProfile()}, false
	}
	identity, ok := f.pool.Acquire()
	if !ok {
		return egress.Identity{Profile: egress.RandomProfile()}, false
	}
	return identity, true
}

func (f *Fetcher) report(identity egress.Identity, viaPool, success bool) {
	if !viaPool {
		return
	}
	if success {
		f.pool.MarkSuccess(identity)
	} else {
		f.pool.MarkFailure(identity)
	}
}

// clientFor returns the HTTP client routed through the identity's proxy.
// Clients are kept per address so connections get reused across attempts.
func (f *Fetcher) clientFor(identity egress.Identity) *http.Client {
	f.clientMu.Lock()
	defer f.clientMu.Unlock()

	if client, ok := f.clients[identity.Addr]; ok {
		return client
	}
	proxyURL, err := identity.URL()
	if err != nil {
		return f.direct
	}
	client := &http.Client{
		Timeout:   defaultTimeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
	f.clients[identity.Addr] = client
	return client
}

func applyProfile(req *http.Request, p egress.HeaderProfile) {
	req.Header.Set("User-Agent", p.UserAgent)
	req.Header.Set("Accept", p.Accept)
	req.Header.Set("Accept-Language", p.AcceptLanguage)
	req.Header.Set("Accept-Encoding", p.AcceptEncoding)
	req.Header.Set("Sec-Fetch-Site", p.SecFetchSite)
	req.Header.Set("Sec-Fetch-Mode", p.SecFetchMode)
	req.Header.Set("Sec-Fetch-User", p.SecFetchUser)
	req.Header.Set("Sec-Fetch-Dest", p.SecFetchDest)
}
