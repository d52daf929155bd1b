// Package acquire runs the acquisition pipeline: validate and classify
// the URL, gate on the rate limiter, fetch, solve challenges when a
// browser engine is available, extract, and cache.
package acquire

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/propscout/propscout/internal/cache"
	"github.com/propscout/propscout/internal/captcha"
	"github.com/propscout/propscout/internal/engine"
	"github.com/propscout/propscout/internal/extract"
	"github.com/propscout/propscout/internal/ratelimit"
	"github.com/propscout/propscout/internal/sites"
	"github.com/propscout/propscout/pkg/models"
)

// RenderedPage is a live browser page the pipeline can script against
// and read. Release returns it to the browser pool.
type RenderedPage interface {
	captcha.Page
	HTML(ctx context.Context) (string, error)
	Release()
}

// Renderer opens pages in a real browser, for portals that refuse plain
// HTTP requests.
type Renderer interface {
	Open(ctx context.Context, opts models.RequestOptions) (RenderedPage, error)
}

// Solver detects and solves interactive challenges on a rendered page.
type Solver interface {
	Detect(ctx context.Context, page captcha.Page) ([]models.ChallengeType, error)
	Solve(ctx context.Context, page captcha.Page, challenge models.ChallengeType, siteKey, pageURL string) (string, error)
	Stats() models.ProviderStats
}

// Config holds pipeline policy.
type Config struct {
	// CacheTTL is how long successful records are cached.
	CacheTTL time.Duration
	// FetchTimeout bounds one fetch attempt.
	FetchTimeout time.Duration
	// AllowPlaceholder substitutes a flagged placeholder record when
	// extraction fails, instead of returning an error.
	AllowPlaceholder bool
}

// DefaultConfig returns the stock pipeline policy.
func DefaultConfig() Config {
	return Config{
		CacheTTL:     5 * time.Minute,
		FetchTimeout: 30 * time.Second,
	}
}

// Options collects the pipeline's collaborators. Limiter, Fetcher and
// Cache are required; Renderer and Solver are optional and enable
// challenge solving when both are present.
type Options struct {
	Limiter  ratelimit.Limiter
	Fetcher  engine.Fetcher
	Renderer Renderer
	Solver   Solver
	Cache    cache.Cache
	Config   Config
}

// Controller owns one acquisition pipeline and all its mutable state.
// Independent Controllers are fully isolated; nothing is process-global.
type Controller struct {
	limiter  ratelimit.Limiter
	fetcher  engine.Fetcher
	renderer Renderer
	solver   Solver
	cache    cache.Cache
	cfg      Config
}

// New creates a Controller. Zero Config fields fall back to defaults.
func New(opts Options) *Controller {
	cfg := opts.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Controller{
		limiter:  opts.Limiter,
		fetcher:  opts.Fetcher,
		renderer: opts.Renderer,
		solver:   opts.Solver,
		cache:    opts.Cache,
		cfg:      cfg,
	}
}

// Acquire runs the full pipeline for one listing URL.
func (c *Controller) Acquire(ctx context.Context, rawURL string, mode models.FetchMode) (*models.PropertyRecord, error) {
	match, err := sites.ClassifyString(rawURL)
	if err != nil {
		return nil, wrap("URL rejected", err)
	}

	if rec, ok := c.cache.Get(match.CanonicalURL); ok {
		log.Debug().Str("url", rawURL).Msg("cache hit")
		return rec, nil
	}

	if err := c.limiter.Acquire(ctx, match.Site); err != nil {
		return nil, err
	}

	html, err := c.fetchHTML(ctx, rawURL, match.Site, mode)
	if err != nil {
		return nil, err
	}

	rec, err := extract.Extract(html, rawURL, match.Site)
	if err != nil {
		c.limiter.RecordFailure(match.Site, "parse")
		return nil, wrap("page could not be parsed", err)
	}
	rec.PropertyID = match.PropertyID

	if !extract.Usable(rec) {
		c.limiter.RecordFailure(match.Site, "extraction")
		log.Warn().
			Str("url", rawURL).
			Str("site", string(match.Site)).
			Msg("extraction yielded no usable listing")
		if c.cfg.AllowPlaceholder {
			return placeholderRecord(rawURL, match), nil
		}
		return nil, &Error{
			Code:       CodeExtractionFailed,
			Message:    "no usable listing data on the page",
			Suggestion: "the URL may point to a search or category page; retry with a direct listing URL",
		}
	}

	c.limiter.RecordSuccess(match.Site)
	c.cache.Set(match.CanonicalURL, rec, c.cfg.CacheTTL)

	log.Info().
		Str("url", rawURL).
		Str("site", string(match.Site)).
		Str("property_id", match.PropertyID).
		Msg("listing acquired")
	return rec, nil
}

// fetchHTML retrieves the page HTML according to the fetch mode.
func (c *Controller) fetchHTML(ctx context.Context, rawURL string, site models.Site, mode models.FetchMode) (string, error) {
	opts := models.RequestOptions{URL: rawURL, Mode: mode, Timeout: c.cfg.FetchTimeout}

	if mode == models.ModeBrowser {
		return c.renderAndSolve(ctx, opts, site)
	}

	res, err := c.fetcher.Fetch(ctx, opts)
	switch {
	case err == nil:
		return res.HTML, nil
	case errors.Is(err, engine.ErrChallengeDetected):
		if mode != models.ModeStatic && c.renderer != nil && c.solver != nil {
			log.Debug().Str("url", rawURL).Msg("challenge detected, escalating to browser")
			return c.renderAndSolve(ctx, opts, site)
		}
		c.limiter.RecordFailure(site, "challenge")
		return "", wrap("page is behind an anti-bot challenge", err)
	default:
		c.limiter.RecordFailure(site, "network")
		return "", wrap("page fetch failed", err)
	}
}

// siteKeyScript reads the challenge widget's site key off the page.
const siteKeyScript = `(() => {
	const el = document.querySelector('[data-sitekey]');
	return el ? el.getAttribute('data-sitekey') : '';
})()`

// renderAndSolve opens the page in a browser, solves any detected
// challenge in place and returns the final DOM.
func (c *Controller) renderAndSolve(ctx context.Context, opts models.RequestOptions, site models.Site) (string, error) {
	if c.renderer == nil {
		c.limiter.RecordFailure(site, "network")
		return "", &Error{Code: CodeFetchFailed, Message: "browser engine is not configured"}
	}

	page, err := c.renderer.Open(ctx, opts)
	if err != nil {
		c.limiter.RecordFailure(site, "network")
		return "", wrap("browser navigation failed", err)
	}
	defer page.Release()

	if c.solver != nil {
		challenges, err := c.solver.Detect(ctx, page)
		if err != nil {
			log.Warn().Err(err).Msg("challenge detection failed, reading page as-is")
		} else if len(challenges) > 0 {
			if err := c.solveOnPage(ctx, page, challenges[0], opts.URL); err != nil {
				c.limiter.RecordFailure(site, "challenge")
				return "", wrap("challenge solving failed", err)
			}
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		c.limiter.RecordFailure(site, "network")
		return "", wrap("failed to read rendered page", err)
	}
	return html, nil
}

func (c *Controller) solveOnPage(ctx context.Context, page RenderedPage, challenge models.ChallengeType, pageURL string) error {
	var siteKey string
	if err := page.Eval(ctx, siteKeyScript, &siteKey); err != nil {
		log.Debug().Err(err).Msg("site key lookup failed")
	}

	_, err := c.solver.Solve(ctx, page, challenge, siteKey, pageURL)
	return err
}

// placeholderRecord is the substitute returned when extraction fails and
// placeholder policy is enabled. Placeholder is the only data it carries.
func placeholderRecord(rawURL string, match sites.Match) *models.PropertyRecord {
	return &models.PropertyRecord{
		SourceURL:   rawURL,
		PropertyID:  match.PropertyID,
		Site:        match.Site,
		RetrievedAt: time.Now(),
		Placeholder: true,
	}
}

// Stats aggregates the pipeline's operational state.
type Stats struct {
	Rate      models.RateStats     `json:"rate"`
	Providers models.ProviderStats `json:"providers"`
	Cache     models.CacheStats    `json:"cache"`
}

// Stats reports rate-limit, provider and cache state.
func (c *Controller) Stats() Stats {
	s := Stats{
		Rate:  c.limiter.Stats(),
		Cache: c.cache.Stats(),
	}
	if c.solver != nil {
		s.Providers = c.solver.Stats()
	}
	return s
}

// Close releases pipeline resources.
func (c *Controller) Close() {
	c.cache.Close()
}
