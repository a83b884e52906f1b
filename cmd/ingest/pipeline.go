package ingest

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/lepinkainen/stacks/internal/catalog"
	"github.com/lepinkainen/stacks/internal/config"
	"github.com/lepinkainen/stacks/internal/covers"
	"github.com/lepinkainen/stacks/internal/egress"
	"github.com/lepinkainen/stacks/internal/fetch"
	ingestion "github.com/lepinkainen/stacks/internal/ingest"
	"github.com/lepinkainen/stacks/internal/pagecache"
	"github.com/lepinkainen/stacks/internal/ratelimit"
	"github.com/lepinkainen/stacks/internal/resolve"
	"github.com/lepinkainen/stacks/internal/rules"
	"github.com/lepinkainen/stacks/internal/scrape"
)

// pipeline bundles everything one ingest run needs.
type pipeline struct {
	store   *catalog.Store
	client  *scrape.Client
	service *ingestion.Service
}

func (p *pipeline) Close() error {
	return p.store.Close()
}

// buildPipeline assembles the fetch, resolve, rules and ingest stack from
// the active configuration.
func buildPipeline(ctx context.Context) (*pipeline, error) {
	store, err := catalog.Open(config.CatalogDBFile())
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	cache, err := pagecache.GetGlobal()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open page cache: %w", err)
	}

	var pool *egress.Pool
	if config.EgressEnabled {
		pool, err = egress.Open(ctx, egress.ConfigFromViper())
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to open egress pool: %w", err)
		}
	}

	fetcher := fetch.New(fetchConfig(), cache, pool, ratelimit.NewPacer(pacerConfig()))
	client := scrape.NewClient(fetcher, viper.GetInt("scrape.editions_max_pages"))
	resolver := resolve.New(client, config.TargetLanguage())
	engine := rules.NewEngine(rulesConfig())

	downloader := covers.NewDownloader(config.CoversDir(),
		covers.WithUpdate(config.UpdateCovers),
		covers.WithRateLimiter(ratelimit.New("covers", viper.GetFloat64("covers.rps"))),
	)

	service := ingestion.New(store, resolver, engine, ingestion.WithCovers(downloader))

	return &pipeline{store: store, client: client, service: service}, nil
}

func fetchConfig() fetch.Config {
	cfg := fetch.DefaultConfig(config.BaseURL())
	if v := viper.GetInt("scrape.max_attempts"); v > 0 {
		cfg.MaxAttempts = v
	}
	if v := viper.GetDuration("scrape.backoff_base"); v > 0 {
		cfg.BackoffBase = v
	}
	if v := viper.GetInt64("scrape.max_body_bytes"); v > 0 {
		cfg.MaxBodyBytes = v
	}
	if v := config.CacheTTL(); v > 0 {
		cfg.CacheTTL = v
	}
	if v := viper.GetInt("scrape.editions_per_page"); v > 0 {
		cfg.EditionsPerPage = v
	}
	cfg.RenderFallback = viper.GetBool("scrape.render_fallback")
	return cfg
}

func pacerConfig() ratelimit.PacerConfig {
	cfg := ratelimit.DefaultPacerConfig()
	if v := viper.GetDuration("scrape.delay_min"); v > 0 {
		cfg.MinDelay = v
	}
	if v := viper.GetDuration("scrape.delay_max"); v > 0 {
		cfg.MaxDelay = v
	}
	if v := viper.GetInt("scrape.burst_size"); v > 0 {
		cfg.BurstSize = v
	}
	if v := viper.GetDuration("scrape.burst_pause_min"); v > 0 {
		cfg.BurstPauseMin = v
	}
	if v := viper.GetDuration("scrape.burst_pause_max"); v > 0 {
		cfg.BurstPauseMax = v
	}
	return cfg
}

// rulesConfig reads the thresholds as-is: zero disables a check, so the
// values are not guarded the way the durations above are.
func rulesConfig() rules.Config {
	return rules.Config{
		MaxPages:           viper.GetInt("rules.max_pages"),
		MinVotes:           viper.GetInt("rules.min_votes"),
		RequireDescription: viper.GetBool("rules.require_description"),
	}
}
