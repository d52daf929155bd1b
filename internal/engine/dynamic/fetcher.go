// Package dynamic fetches listing pages with a headless browser, for
// portals that render content client-side or sit behind interactive
// challenges.
package dynamic

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/propscout/propscout/internal/engine"
	"github.com/propscout/propscout/pkg/models"
)

// DefaultTimeout bounds one rendered fetch end to end.
const DefaultTimeout = 30 * time.Second

// settleDelay lets initial page scripts run before the DOM is read.
const settleDelay = 300 * time.Millisecond

// Fetcher renders pages in pooled headless-browser contexts.
type Fetcher struct {
	pool    *BrowserPool
	timeout time.Duration
}

// New creates a browser-backed Fetcher over the given pool.
func New(pool *BrowserPool, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{pool: pool, timeout: timeout}
}

// Name returns the fetcher implementation name.
func (f *Fetcher) Name() string { return "browser" }

// Page is a live rendered page held on a pooled browser context.
// Release must be called exactly once when the caller is done with it.
type Page struct {
	ctx     context.Context
	pool    *BrowserPool
	browser *browserContext
	url     string
	status  int
}

// Eval runs a script on the page and unmarshals its result into out.
// A nil out discards the result.
func (p *Page) Eval(ctx context.Context, js string, out any) error {
	runCtx := p.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	if out == nil {
		return chromedp.Run(runCtx, chromedp.Evaluate(js, nil))
	}
	return chromedp.Run(runCtx, chromedp.Evaluate(js, out))
}

// HTML returns the current serialized DOM.
func (p *Page) HTML(ctx context.Context) (string, error) {
	runCtx := p.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

// Release returns the underlying browser context to the pool.
func (p *Page) Release() {
	p.pool.release(p.browser)
}

// Open navigates a pooled browser context to opts.URL and returns the
// live page. The caller owns the page and must Release it.
func (f *Fetcher) Open(ctx context.Context, opts models.RequestOptions) (*Page, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}

	bc, err := f.pool.acquire(timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser from pool: %w", err)
	}

	runCtx, cancel := context.WithTimeout(bc.ctx, timeout)
	defer cancel()

	page := &Page{ctx: bc.ctx, pool: f.pool, browser: bc, url: opts.URL}

	// Capture the main document status from network events.
	chromedp.ListenTarget(runCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Response.URL == opts.URL {
			page.status = int(resp.Response.Status)
		}
	})

	tasks := []chromedp.Action{network.Enable()}
	if len(opts.Headers) > 0 {
		headers := make(network.Headers, len(opts.Headers))
		for key, value := range opts.Headers {
			headers[key] = value
		}
		tasks = append(tasks, network.SetExtraHTTPHeaders(headers))
	}
	tasks = append(tasks,
		chromedp.Navigate(opts.URL),
		chromedp.Sleep(settleDelay),
	)

	if err := chromedp.Run(runCtx, tasks...); err != nil {
		f.pool.release(bc)
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	return page, nil
}

// Fetch renders opts.URL and returns its DOM. A challenge interstitial
// is returned together with engine.ErrChallengeDetected; callers that
// want to solve the challenge in place should use Open instead.
func (f *Fetcher) Fetch(ctx context.Context, opts models.RequestOptions) (*models.FetchResult, error) {
	start := time.Now()

	log.Debug().
		Str("url", opts.URL).
		Str("fetcher", f.Name()).
		Msg("starting fetch")

	page, err := f.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer page.Release()

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}

	res := &models.FetchResult{
		URL:          opts.URL,
		StatusCode:   page.status,
		HTML:         html,
		FetchedAt:    time.Now(),
		ResponseTime: time.Since(start).Milliseconds(),
	}

	log.Debug().
		Str("url", opts.URL).
		Int("status", res.StatusCode).
		Int64("response_time_ms", res.ResponseTime).
		Msg("fetch completed")

	if engine.SuspectChallenge(html) {
		return res, engine.ErrChallengeDetected
	}
	return res, nil
}
