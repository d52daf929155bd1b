package dynamic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// BrowserPool keeps warm headless-browser contexts so a rendered fetch
// does not pay Chrome startup cost on every request.
type BrowserPool struct {
	size        int
	contexts    chan *browserContext
	allocCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

type browserContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// PoolOptions configures a BrowserPool.
type PoolOptions struct {
	Size      int
	Headless  bool
	UserAgent string
}

// NewBrowserPool starts the shared allocator and warms Size browser
// contexts.
func NewBrowserPool(opts PoolOptions) (*BrowserPool, error) {
	if opts.Size <= 0 {
		opts.Size = 2
	}
	if opts.Size > 8 {
		opts.Size = 8
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.UserAgent(opts.UserAgent),
	}
	if path := FindChrome(); path != "" {
		allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(path)}, allocOpts...)
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	pool := &BrowserPool{
		size:        opts.Size,
		contexts:    make(chan *browserContext, opts.Size),
		allocCancel: allocCancel,
	}

	for i := 0; i < opts.Size; i++ {
		ctx, cancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(ctx, chromedp.Navigate("about:blank")); err != nil {
			cancel()
			pool.Close()
			return nil, fmt.Errorf("failed to warm up browser context %d: %w", i, err)
		}
		pool.contexts <- &browserContext{ctx: ctx, cancel: cancel}
	}

	log.Info().Int("pool_size", opts.Size).Msg("browser pool ready")
	return pool, nil
}

// acquire takes a browser context, blocking up to timeout.
func (bp *BrowserPool) acquire(timeout time.Duration) (*browserContext, error) {
	var bc *browserContext
	if timeout > 0 {
		select {
		case bc = <-bp.contexts:
		case <-time.After(timeout):
			return nil, fmt.Errorf("timeout waiting for available browser context")
		}
	} else {
		bc = <-bp.contexts
	}
	// A closed channel yields nil.
	if bc == nil {
		return nil, fmt.Errorf("browser pool is closed")
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		bc.cancel()
		return nil, fmt.Errorf("browser pool is closed")
	}
	return bc, nil
}

// release returns a context to the pool after clearing page state.
func (bp *BrowserPool) release(bc *browserContext) {
	// Best effort reset so state never leaks between requests.
	_ = chromedp.Run(bc.ctx, chromedp.Navigate("about:blank"))

	// The lock is held across the send: Close closes the channel under
	// the same lock, so the send can never race the close.
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		bc.cancel()
		return
	}
	select {
	case bp.contexts <- bc:
	default:
		bc.cancel()
	}
}

// Close shuts down all contexts and the allocator.
func (bp *BrowserPool) Close() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return nil
	}
	bp.closed = true

	close(bp.contexts)
	for bc := range bp.contexts {
		bc.cancel()
	}
	bp.allocCancel()

	log.Debug().Msg("browser pool closed")
	return nil
}

// Available returns how many contexts are idle.
func (bp *BrowserPool) Available() int { return len(bp.contexts) }
