// Package static fetches listing pages over plain HTTP, falling back to
// public CORS relays when the portal refuses the direct request.
package static

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/propscout/propscout/internal/engine"
	"github.com/propscout/propscout/internal/retry"
	"github.com/propscout/propscout/pkg/models"
)

const (
	// DefaultTimeout bounds one HTTP request.
	DefaultTimeout = 30 * time.Second
	// DefaultRelayCooldown is how long a failed relay is skipped.
	DefaultRelayCooldown = 5 * time.Minute
	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 10 << 20
)

// Fetcher retrieves pages with raw HTTP requests. Direct fetches are
// retried on transient failures; persistent failures fall back to the
// relay chain in preference order.
type Fetcher struct {
	client    *http.Client
	pacer     *rate.Limiter
	relays    *relayPool
	retryCfg  retry.Config
	userAgent string
	timeout   time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRelays replaces the default relay chain.
func WithRelays(relays []Relay) Option {
	return func(f *Fetcher) { f.relays = newRelayPool(relays, DefaultRelayCooldown) }
}

// WithRelayCooldown overrides how long a failed relay is skipped.
func WithRelayCooldown(d time.Duration) Option {
	return func(f *Fetcher) { f.relays = newRelayPool(f.relays.relays, d) }
}

// WithPacing overrides the minimum spacing between outbound requests.
func WithPacing(interval time.Duration) Option {
	return func(f *Fetcher) { f.pacer = rate.NewLimiter(rate.Every(interval), 1) }
}

// New creates a static Fetcher. A nil client gets a fresh one; either
// way the client is given a public-suffix-aware cookie jar when it has
// none, so portal session cookies survive across requests.
func New(client *http.Client, userAgent string, timeout time.Duration, opts ...Option) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err == nil {
			client.Jar = jar
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	f := &Fetcher{
		client:    client,
		pacer:     rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		relays:    newRelayPool(DefaultRelays(), DefaultRelayCooldown),
		retryCfg:  retry.DefaultConfig(),
		userAgent: userAgent,
		timeout:   timeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the fetcher implementation name.
func (f *Fetcher) Name() string { return "static" }

// Fetch retrieves opts.URL, directly first and through the relay chain
// when the direct request keeps failing. A challenge interstitial is
// returned together with engine.ErrChallengeDetected.
func (f *Fetcher) Fetch(ctx context.Context, opts models.RequestOptions) (*models.FetchResult, error) {
	start := time.Now()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}

	if err := f.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	log.Debug().
		Str("url", opts.URL).
		Str("fetcher", f.Name()).
		Msg("starting fetch")

	var res *models.FetchResult
	directErr := retry.WithRetry(ctx, f.retryCfg, func() error {
		var err error
		res, err = f.get(ctx, opts.URL, opts.Headers, timeout)
		return err
	})
	if directErr == nil {
		return f.finalize(res, opts.URL, "", start)
	}

	log.Debug().
		Str("url", opts.URL).
		Err(directErr).
		Msg("direct fetch failed, trying relays")

	errs := []error{fmt.Errorf("direct: %w", directErr)}
	for _, relay := range f.relays.candidates() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res, err := f.get(ctx, relay.Wrap(opts.URL), opts.Headers, timeout)
		if err != nil {
			f.relays.markFailed(relay.Name)
			errs = append(errs, fmt.Errorf("relay %s: %w", relay.Name, err))
			continue
		}
		f.relays.markHealthy(relay.Name)
		return f.finalize(res, opts.URL, relay.Name, start)
	}

	return nil, fmt.Errorf("%w: %w", engine.ErrAllSourcesFailed, errors.Join(errs...))
}

// get performs one HTTP request with browser-like headers.
func (f *Fetcher) get(ctx context.Context, fetchURL string, headers map[string]string, timeout time.Duration) (*models.FetchResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-PT,pt;q=0.9,en;q=0.8")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, retry.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &models.FetchResult{
		StatusCode: resp.StatusCode,
		HTML:       string(body),
	}, nil
}

func (f *Fetcher) finalize(res *models.FetchResult, sourceURL, relay string, start time.Time) (*models.FetchResult, error) {
	res.URL = sourceURL
	res.Relay = relay
	res.FetchedAt = time.Now()
	res.ResponseTime = time.Since(start).Milliseconds()

	log.Debug().
		Str("url", sourceURL).
		Int("status", res.StatusCode).
		Str("relay", relay).
		Int64("response_time_ms", res.ResponseTime).
		Msg("fetch completed")

	if engine.SuspectChallenge(res.HTML) {
		return res, engine.ErrChallengeDetected
	}
	return res, nil
}
