// Package egress manages the rotating set of network identities scraped
// pages are fetched through. An identity is a proxy address plus a browser
// header profile; the pool hands them out with per-identity cooldowns,
// evicts repeat offenders, and refreshes its membership from upstream
// source lists at most once per multi-day interval.
package egress

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	snapshotFile = "working_proxies.txt"
	metadataFile = "metadata.yaml"
	sourcesFile  = "sources.yaml"
	lockFile     = "egress.lock"

	probeTimeout = 5 * time.Second
)

// Identity is one egress route handed to the fetcher for a single attempt.
type Identity struct {
	Addr    string
	Profile HeaderProfile
}

// URL returns the proxy URL for transport configuration.
func (id Identity) URL() (*url.URL, error) {
	return url.Parse("http://" + id.Addr)
}

// Config holds the pool's tunables.
type Config struct {
	Dir             string
	MaxFailures     int
	Cooldown        time.Duration
	RefreshInterval time.Duration
	ValidateWorkers int
	ProbeURL        string
}

// DefaultConfig returns the pool settings the external catalog tolerates.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:             dir,
		MaxFailures:     3,
		Cooldown:        5 * time.Minute,
		RefreshInterval: 48 * time.Hour,
		ValidateWorkers: 20,
		ProbeURL:        "https://httpbin.org/ip",
	}
}

type entry struct {
	addr     string
	profile  HeaderProfile
	failures int
	lastUsed time.Time
}

type metadata struct {
	LastRefresh time.Time `yaml:"last_refresh"`
	Count       int       `yaml:"count"`
}

// Pool owns the identity list and the "last good" route. It is safe for
// concurrent use; membership refresh is single-writer under a file lock so
// multiple workers sharing one state directory do not clobber each other.
type Pool struct {
	cfg Config

	mu       sync.Mutex
	entries  []*entry
	next     int
	lastGood string

	// sourceClient fetches source lists and probes candidates; swapped in tests.
	sourceClient *http.Client
	// probeVia builds the per-proxy probe client; swapped in tests.
	probeVia func(addr string) *http.Client
	now      func() time.Time
}

// Open loads the pool state from cfg.Dir. A fresh-enough snapshot is used
// as-is; a stale or missing one triggers a refresh when a source list is
// present. An empty pool is valid: the fetcher then connects directly.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	p := &Pool{
		cfg:          cfg,
		sourceClient: &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
	p.probeVia = p.proxyClient

	if cfg.Dir == "" {
		return p, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create egress dir: %w", err)
	}

	meta, _ := p.loadMetadata()
	stale := meta == nil || p.now().Sub(meta.LastRefresh) > cfg.RefreshInterval

	if !stale {
		if err := p.loadSnapshot(); err != nil {
			return nil, err
		}
		slog.Debug("Loaded cached egress identities", "count", p.Size())
		return p, nil
	}

	if err := p.Refresh(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Acquire hands out the next identity: the last good one when known,
// otherwise the next entry outside its cooldown window, otherwise the
// longest-idle entry. ok is false when the pool is empty.
func (p *Pool) Acquire() (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return Identity{}, false
	}

	if p.lastGood != "" {
		if e := p.find(p.lastGood); e != nil {
			e.lastUsed = p.now()
			return Identity{Addr: e.addr, Profile: e.profile}, true
		}
		p.lastGood = ""
	}

	// Round-robin scan for an entry outside its cooldown.
	start := p.next % len(p.entries)
	var coldest *entry
	for i := 0; i < len(p.entries); i++ {
		e := p.entries[(start+i)%len(p.entries)]
		if coldest == nil || e.lastUsed.Before(coldest.lastUsed) {
			coldest = e
		}
		if e.lastUsed.IsZero() || p.now().Sub(e.lastUsed) > p.cfg.Cooldown {
			p.next = (start + i + 1) % len(p.entries)
			e.lastUsed = p.now()
			return Identity{Addr: e.addr, Profile: e.profile}, true
		}
	}

	// Everything is cooling down; reuse the longest-idle entry rather
	// than blocking the caller.
	coldest.lastUsed = p.now()
	return Identity{Addr: coldest.addr, Profile: coldest.profile}, true
}

// MarkSuccess records addr as the last good identity and clears its
// failure count.
func (p *Pool) MarkSuccess(id Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e := p.find(id.Addr); e != nil {
		e.failures = 0
		p.lastGood = id.Addr
	}
}

// MarkFailure bumps the identity's failure count and evicts it once it
// exceeds the configured maximum.
func (p *Pool) MarkFailure(id Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(id.Addr)
	if e == nil {
		return
	}
	e.failures++
	if p.lastGood == id.Addr {
		p.lastGood = ""
	}
	if e.failures >= p.cfg.MaxFailures {
		p.evict(id.Addr)
		slog.Debug("Egress identity evicted", "addr", id.Addr, "failures", e.failures)
	}
}

// Size returns the number of identities currently in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// IdentityStatus is one row of Status output.
type IdentityStatus struct {
	Addr     string
	Failures int
	LastUsed time.Time
	LastGood bool
}

// Status reports the pool contents for inspection commands.
func (p *Pool) Status() []IdentityStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]IdentityStatus, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, IdentityStatus{
			Addr:     e.addr,
			Failures: e.failures,
			LastUsed: e.lastUsed,
			LastGood: e.addr == p.lastGood,
		})
	}
	return out
}

// Refresh harvests candidates from the source list, validates them in
// parallel against the probe URL, and replaces the pool membership. The
// snapshot write is guarded by a file lock shared with other processes.
func (p *Pool) Refresh(ctx context.Context) error {
	sources, err := LoadSources(filepath.Join(p.cfg.Dir, sourcesFile))
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		slog.Debug("No egress sources configured, keeping existing identities")
		return p.loadSnapshot()
	}

	slog.Info("Refreshing egress identities", "sources", len(sources))
	candidates := harvest(ctx, p.sourceClient, sources)
	valid := p.validate(ctx, candidates)
	slog.Info("Egress identities validated", "candidates", len(candidates), "valid", len(valid))

	p.mu.Lock()
	p.entries = make([]*entry, 0, len(valid))
	for _, addr := range valid {
		p.entries = append(p.entries, &entry{addr: addr, profile: RandomProfile()})
	}
	p.lastGood = ""
	p.next = 0
	p.mu.Unlock()

	return p.saveSnapshot()
}

// validate probes candidates through themselves and keeps the ones that
// answer. Order of the survivors follows the candidate order.
func (p *Pool) validate(ctx context.Context, candidates []string) []string {
	workers := p.cfg.ValidateWorkers
	if workers < 1 {
		workers = 1
	}

	results := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, addr := range candidates {
		g.Go(func() error {
			results[i] = p.probe(gctx, addr)
			return nil
		})
	}
	_ = g.Wait()

	var valid []string
	for i, ok := range results {
		if ok {
			valid = append(valid, candidates[i])
		}
	}
	return valid
}

func (p *Pool) probe(ctx context.Context, addr string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ProbeURL, nil)
	if err != nil {
		return false
	}

	resp, err := p.probeVia(addr).Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

func (p *Pool) proxyClient(addr string) *http.Client {
	proxyURL, err := url.Parse("http://" + addr)
	if err != nil {
		return &http.Client{Timeout: probeTimeout}
	}
	return &http.Client{
		Timeout:   probeTimeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
}

func (p *Pool) find(addr string) *entry {
	for _, e := range p.entries {
		if e.addr == addr {
			return e
		}
	}
	return nil
}

func (p *Pool) evict(addr string) {
	for i, e := range p.entries {
		if e.addr == addr {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			if p.next > i {
				p.next--
			}
			return
		}
	}
}

func (p *Pool) loadMetadata() (*metadata, error) {
	data, err := os.ReadFile(filepath.Join(p.cfg.Dir, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (p *Pool) loadSnapshot() error {
	data, err := os.ReadFile(filepath.Join(p.cfg.Dir, snapshotFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read egress snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = nil
	for _, line := range strings.Split(string(data), "\n") {
		addr := strings.TrimSpace(line)
		if addr == "" {
			continue
		}
		p.entries = append(p.entries, &entry{addr: addr, profile: RandomProfile()})
	}
	return nil
}

func (p *Pool) saveSnapshot() error {
	lock := flock.New(filepath.Join(p.cfg.Dir, lockFile))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock egress state: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	p.mu.Lock()
	lines := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		lines = append(lines, e.addr)
	}
	count := len(lines)
	p.mu.Unlock()

	snapshot := strings.Join(lines, "\n")
	if err := os.WriteFile(filepath.Join(p.cfg.Dir, snapshotFile), []byte(snapshot), 0o644); err != nil {
		return fmt.Errorf("failed to write egress snapshot: %w", err)
	}

	meta, err := yaml.Marshal(metadata{LastRefresh: p.now(), Count: count})
	if err != nil {
		return fmt.Errorf("failed to marshal egress metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.cfg.Dir, metadataFile), meta, 0o644); err != nil {
		return fmt.Errorf("failed to write egress metadata: %w", err)
	}

	slog.Debug("Egress snapshot saved", "count", count)
	return nil
}
