package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// PacerConfig holds the spacing parameters for scraped-page requests.
type PacerConfig struct {
	MinDelay      time.Duration
	MaxDelay      time.Duration
	BurstSize     int
	BurstPauseMin time.Duration
	BurstPauseMax time.Duration
}

// DefaultPacerConfig matches the cadence the external catalog tolerates.
func DefaultPacerConfig() PacerConfig {
	return PacerConfig{
		MinDelay:      time.Second,
		MaxDelay:      1500 * time.Millisecond,
		BurstSize:     50,
		BurstPauseMin: 5 * time.Second,
		BurstPauseMax: 10 * time.Second,
	}
}

// Pacer spaces consecutive requests by a random interval inside
// [MinDelay, MaxDelay] and, after BurstSize requests, inserts one long
// pause before resetting the counter. Unlike Limiter it deliberately
// varies its timing so request trains do not look mechanical.
type Pacer struct {
	cfg PacerConfig

	mu    sync.Mutex
	count int
	last  time.Time

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewPacer creates a Pacer with the given spacing parameters.
func NewPacer(cfg PacerConfig) *Pacer {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.BurstPauseMax < cfg.BurstPauseMin {
		cfg.BurstPauseMax = cfg.BurstPauseMin
	}
	return &Pacer{
		cfg:   cfg,
		sleep: time.Sleep,
	}
}

// Wait blocks until the next request may proceed. Cancellation is only
// observed before the delay starts; once sleeping, the full delay runs.
// Callers wanting responsive cancellation check ctx between items, not
// inside one delay.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.count++
	var d time.Duration
	if p.cfg.BurstSize > 0 && p.count >= p.cfg.BurstSize {
		d = jitter(p.cfg.BurstPauseMin, p.cfg.BurstPauseMax)
		p.count = 0
		slog.Debug("Burst threshold reached, taking a longer pause", "pause", d)
	} else if !p.last.IsZero() {
		// Space against the previous request; time already spent
		// processing counts toward the delay.
		d = jitter(p.cfg.MinDelay, p.cfg.MaxDelay)
		if elapsed := time.Since(p.last); elapsed < d {
			d -= elapsed
		} else {
			d = 0
		}
	}
	p.mu.Unlock()

	if d > 0 {
		p.sleep(d)
	}

	p.mu.Lock()
	p.last = time.Now()
	p.mu.Unlock()
	return nil
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Float64()*float64(max-min))
}
