// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/propscout/propscout/internal/acquire"
	"github.com/propscout/propscout/internal/cache"
	"github.com/propscout/propscout/internal/captcha"
	"github.com/propscout/propscout/internal/config"
	"github.com/propscout/propscout/internal/engine/dynamic"
	"github.com/propscout/propscout/internal/engine/static"
	"github.com/propscout/propscout/internal/ratelimit"
	"github.com/propscout/propscout/pkg/models"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all CLI commands.
// Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config     *config.Config
	Logger     *zerolog.Logger
	Cache      cache.Cache
	Limiter    ratelimit.Limiter
	HTTPClient *http.Client
	Fetcher    *static.Fetcher
	Solver     *captcha.Orchestrator
	Controller *acquire.Controller

	poolMu      sync.Mutex
	browserPool *dynamic.BrowserPool
	dynFetcher  *dynamic.Fetcher

	startTime time.Time
}

// New creates and initializes a new Application with all dependencies.
//
// The browser pool is not started here; it is created lazily the first
// time a rendered fetch is needed, so plain static acquisitions never
// pay Chrome startup cost.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := initLogger(cfg)

	memCache := cache.NewMemoryCache(cfg.CacheMaxEntries)

	limiter := ratelimit.New(ratelimit.Config{
		GlobalWindow:      cfg.GlobalWindow,
		GlobalMaxRequests: cfg.GlobalMaxRequests,
		SiteWindow:        cfg.SiteWindow,
		SiteMaxRequests:   cfg.SiteMaxRequests,
		BackoffBase:       time.Second,
		BackoffMax:        30 * time.Second,
		MaxRechecks:       8,
	})

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fetcher := static.New(httpClient, cfg.UserAgent, cfg.HTTPTimeout)

	providers := captcha.NewProviders([]captcha.ProviderConfig{
		{ID: captcha.TwoCaptchaID, APIKey: cfg.TwoCaptchaKey},
		{ID: captcha.AntiCaptchaID, APIKey: cfg.AntiCaptchaKey},
	}, httpClient)
	solver := captcha.NewOrchestrator(providers,
		captcha.WithMaxWait(cfg.CaptchaMaxWait),
		captcha.WithPollInterval(cfg.CaptchaPollInterval),
	)

	app := &Application{
		Config:     cfg,
		Logger:     &logger,
		Cache:      memCache,
		Limiter:    limiter,
		HTTPClient: httpClient,
		Fetcher:    fetcher,
		Solver:     solver,
		startTime:  time.Now(),
	}

	app.Controller = acquire.New(acquire.Options{
		Limiter:  limiter,
		Fetcher:  fetcher,
		Renderer: app,
		Solver:   solver,
		Cache:    memCache,
		Config: acquire.Config{
			CacheTTL:         cfg.CacheTTL,
			FetchTimeout:     cfg.HTTPTimeout,
			AllowPlaceholder: cfg.AllowPlaceholder,
		},
	})

	logger.Debug().Msg("application initialized")
	return app, nil
}

func initLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.ErrorLevel
	switch cfg.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "info":
		// Info stays quiet on the console unless verbose is requested.
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer
	if cfg.JSONLog {
		w = os.Stderr
	} else {
		w = zerolog.NewConsoleWriter()
	}
	logger := log.Output(w).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// Open satisfies acquire.Renderer: it starts the browser pool on first
// use and opens the page on a pooled context.
func (a *Application) Open(ctx context.Context, opts models.RequestOptions) (acquire.RenderedPage, error) {
	if err := a.ensureBrowserPool(); err != nil {
		return nil, err
	}
	return a.dynFetcher.Open(ctx, opts)
}

func (a *Application) ensureBrowserPool() error {
	a.poolMu.Lock()
	defer a.poolMu.Unlock()

	if a.browserPool != nil {
		return nil
	}

	if a.Config.ChromePath != "" {
		os.Setenv("CHROME_PATH", a.Config.ChromePath)
	}
	pool, err := dynamic.NewBrowserPool(dynamic.PoolOptions{
		Size:      a.Config.BrowserPoolSize,
		Headless:  a.Config.BrowserHeadless,
		UserAgent: a.Config.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("failed to start browser pool: %w", err)
	}
	a.browserPool = pool
	a.dynFetcher = dynamic.New(pool, a.Config.HTTPTimeout)
	return nil
}

// Close gracefully shuts down the application and all its resources.
func (a *Application) Close(ctx context.Context) error {
	a.Logger.Debug().Msg("shutting down")

	a.poolMu.Lock()
	if a.browserPool != nil {
		if err := a.browserPool.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("error closing browser pool")
		}
		a.browserPool = nil
	}
	a.poolMu.Unlock()

	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.HTTPClient != nil {
		a.HTTPClient.CloseIdleConnections()
	}

	a.Logger.Debug().Dur("uptime", time.Since(a.startTime)).Msg("shutdown complete")
	return nil
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
