// Package ratelimit gates outbound requests against a global budget and a
// per-site budget, with exponential backoff after recorded failures.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/propscout/propscout/pkg/models"
)

// Limiter defines the interface for request gating implementations.
//
// Acquire only delays, it never rejects: a caller that waits long enough is
// always admitted. Outcomes are reported back through RecordSuccess and
// RecordFailure so the limiter can grow or decay per-site backoff.
type Limiter interface {
	// Acquire blocks until a request for the given site may proceed.
	// The only error it returns is the context's, when cancelled mid-wait.
	Acquire(ctx context.Context, site models.Site) error

	// RecordSuccess counts a completed request against the windows and
	// decays the site's backoff level.
	RecordSuccess(site models.Site)

	// RecordFailure counts a failed request, raises the site's backoff
	// level and tallies the failure kind for diagnostics.
	RecordFailure(site models.Site, kind string)

	// BackoffStrategy returns the most frequent recorded failure kind for
	// a site, or "" when none has been recorded.
	BackoffStrategy(site models.Site) string

	// Stats reports current window state for the global scope and every
	// site scope seen so far.
	Stats() models.RateStats
}

// Config holds the window policy. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	GlobalWindow      time.Duration
	GlobalMaxRequests int
	SiteWindow        time.Duration
	SiteMaxRequests   int
	BackoffBase       time.Duration // delay at level n is BackoffBase * 2^n
	BackoffMax        time.Duration
	MaxRechecks       int // bound on cap re-evaluation after a window wait
}

// DefaultConfig returns the stock policy: 10 requests per minute globally,
// 3 requests per 30s per site, backoff capped at 30s.
func DefaultConfig() Config {
	return Config{
		GlobalWindow:      60 * time.Second,
		GlobalMaxRequests: 10,
		SiteWindow:        30 * time.Second,
		SiteMaxRequests:   3,
		BackoffBase:       time.Second,
		BackoffMax:        30 * time.Second,
		MaxRechecks:       8,
	}
}

type window struct {
	requests     int
	windowStart  time.Time
	backoffLevel int
	failures     map[string]int
}

// FixedWindowLimiter implements Limiter with fixed-window counting per
// scope. One mutex guards all window state; waits happen with the lock
// released and the caps are re-checked after every wake, so a cap is never
// exceeded within a window even under concurrent callers on the same scope.
type FixedWindowLimiter struct {
	cfg    Config
	mu     sync.Mutex
	global window
	sites  map[models.Site]*window
}

// New creates a FixedWindowLimiter with the given policy.
func New(cfg Config) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		cfg:    cfg,
		global: window{windowStart: time.Now()},
		sites:  make(map[models.Site]*window),
	}
}

// siteWindow lazily creates the per-site window on first reference.
// Caller must hold l.mu.
func (l *FixedWindowLimiter) siteWindow(site models.Site, now time.Time) *window {
	w, ok := l.sites[site]
	if !ok {
		w = &window{windowStart: now, failures: make(map[string]int)}
		l.sites[site] = w
	}
	return w
}

// Acquire blocks until both the global and the site window admit a request,
// then applies the site's backoff delay if any failures are outstanding.
//
// Re-evaluation after a full-window wait is an explicit bounded loop rather
// than recursion: after cfg.MaxRechecks wakes the caller has served every
// wait it was asked to and is admitted.
func (l *FixedWindowLimiter) Acquire(ctx context.Context, site models.Site) error {
	for attempt := 0; ; attempt++ {
		l.mu.Lock()
		now := time.Now()

		// Global window: wait out the remainder, then reset.
		if l.global.requests >= l.cfg.GlobalMaxRequests {
			if elapsed := now.Sub(l.global.windowStart); elapsed < l.cfg.GlobalWindow {
				wait := l.cfg.GlobalWindow - elapsed
				l.mu.Unlock()
				log.Debug().Dur("wait", wait).Msg("global rate limit reached")
				if err := sleep(ctx, wait); err != nil {
					return err
				}
				l.mu.Lock()
				now = time.Now()
			}
			l.global.requests = 0
			l.global.windowStart = now
		}

		w := l.siteWindow(site, now)

		// Reset the site window if it elapsed, decaying backoff by one.
		if elapsed := now.Sub(w.windowStart); elapsed >= l.cfg.SiteWindow {
			w.requests = 0
			w.windowStart = now
			if w.backoffLevel > 0 {
				w.backoffLevel--
			}
		}

		if w.requests >= l.cfg.SiteMaxRequests {
			wait := l.cfg.SiteWindow - now.Sub(w.windowStart)
			l.mu.Unlock()
			log.Debug().
				Str("site", string(site)).
				Dur("wait", wait).
				Msg("site rate limit reached")
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			if attempt < l.cfg.MaxRechecks {
				continue
			}
			return nil
		}

		backoff := time.Duration(0)
		if w.backoffLevel > 0 {
			backoff = l.backoffDelay(w.backoffLevel)
		}
		l.mu.Unlock()

		if backoff > 0 {
			log.Debug().
				Str("site", string(site)).
				Dur("backoff", backoff).
				Msg("applying failure backoff")
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
		}
		return nil
	}
}

// backoffDelay is min(BackoffBase * 2^level, BackoffMax).
func (l *FixedWindowLimiter) backoffDelay(level int) time.Duration {
	d := l.cfg.BackoffBase
	for i := 0; i < level; i++ {
		d *= 2
		if d >= l.cfg.BackoffMax {
			return l.cfg.BackoffMax
		}
	}
	return d
}

// RecordSuccess counts the request and decays the site's backoff level.
func (l *FixedWindowLimiter) RecordSuccess(site models.Site) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.global.requests++
	w := l.siteWindow(site, time.Now())
	w.requests++
	if w.backoffLevel > 0 {
		w.backoffLevel--
	}
}

// RecordFailure counts the request, raises the site's backoff level and
// tallies the failure under its kind.
func (l *FixedWindowLimiter) RecordFailure(site models.Site, kind string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.global.requests++
	w := l.siteWindow(site, time.Now())
	w.requests++
	w.backoffLevel++
	if kind != "" {
		w.failures[kind]++
	}
}

// BackoffStrategy returns the most frequent recorded failure kind for a
// site, for diagnostic reporting.
func (l *FixedWindowLimiter) BackoffStrategy(site models.Site) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.sites[site]
	if !ok {
		return ""
	}
	return topFailure(w)
}

// Stats reports window state across all scopes.
func (l *FixedWindowLimiter) Stats() models.RateStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	stats := models.RateStats{
		Global: models.ScopeStats{
			Requests:        l.global.requests,
			MaxRequests:     l.cfg.GlobalMaxRequests,
			WindowRemaining: remaining(l.global.windowStart, l.cfg.GlobalWindow, now),
		},
		Sites: make(map[string]models.ScopeStats, len(l.sites)),
	}
	for site, w := range l.sites {
		stats.Sites[string(site)] = models.ScopeStats{
			Requests:        w.requests,
			MaxRequests:     l.cfg.SiteMaxRequests,
			WindowRemaining: remaining(w.windowStart, l.cfg.SiteWindow, now),
			BackoffLevel:    w.backoffLevel,
			BackoffStrategy: topFailure(w),
		}
	}
	return stats
}

func topFailure(w *window) string {
	var best string
	var bestCount int
	for kind, count := range w.failures {
		if count > bestCount {
			best, bestCount = kind, count
		}
	}
	return best
}

func remaining(start time.Time, size time.Duration, now time.Time) time.Duration {
	if r := size - now.Sub(start); r > 0 {
		return r
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
