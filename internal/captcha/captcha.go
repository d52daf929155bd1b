// Package captcha detects interactive challenges on pages, delegates
// solving to external providers and injects solutions back into the page.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/propscout/propscout/pkg/models"
)

// Solving errors. Both are retryable by switching provider, which is a
// caller decision, never automatic.
var (
	ErrProvider     = errors.New("captcha provider error")
	ErrSolveTimeout = errors.New("captcha solving timed out")
	ErrNoProviders  = errors.New("no captcha providers configured")
)

// Page is the contract the orchestrator expects from the rendering
// engine: evaluate a script against the live page and return its result.
type Page interface {
	Eval(ctx context.Context, js string, out any) error
}

const (
	// DefaultMaxWait bounds one solve attempt end to end.
	DefaultMaxWait = 120 * time.Second
	// DefaultPollInterval spaces result lookups at the provider.
	DefaultPollInterval = 5 * time.Second
)

// Orchestrator owns provider selection and the per-attempt solve state
// machine (Submitted → Polling → Solved|Failed|TimedOut).
//
// The current-provider index is the only mutable selection state; it is
// read once at submit time so in-flight tasks keep referencing the
// provider they were submitted to even across SwitchProvider calls.
type Orchestrator struct {
	mu        sync.Mutex
	providers []Provider
	current   int

	maxWait      time.Duration
	pollInterval time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxWait overrides the per-attempt solving deadline.
func WithMaxWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.maxWait = d }
}

// WithPollInterval overrides the spacing between result lookups.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// NewOrchestrator creates an Orchestrator over the given providers, in
// round-robin order starting from the first.
func NewOrchestrator(providers []Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers:    providers,
		maxWait:      DefaultMaxWait,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// detectScript inspects the DOM for known challenge container markers.
const detectScript = `(() => {
	const types = [];
	if (document.querySelector('.g-recaptcha') || document.querySelector('iframe[src*="recaptcha"]')) {
		types.push('recaptcha-v2');
	}
	if (document.querySelector('script[src*="recaptcha"]')) {
		types.push('recaptcha-v3');
	}
	if (document.querySelector('.h-captcha') || document.querySelector('iframe[src*="hcaptcha"]')) {
		types.push('hcaptcha');
	}
	if (document.querySelector('#captcha, .captcha, [class*="captcha"]')) {
		types.push('generic');
	}
	return types;
})()`

// Detect inspects the page for challenge markers and classifies them.
// An empty result means no challenge is present. Detection is best-effort
// page inspection, never a network call.
func (o *Orchestrator) Detect(ctx context.Context, page Page) ([]models.ChallengeType, error) {
	var found []string
	if err := page.Eval(ctx, detectScript, &found); err != nil {
		return nil, fmt.Errorf("challenge detection failed: %w", err)
	}
	types := make([]models.ChallengeType, 0, len(found))
	for _, t := range found {
		types = append(types, models.ChallengeType(t))
	}
	return types, nil
}

// Solve submits a solving task for the challenge to the current provider,
// polls for the solution and injects it into the page. It returns the
// solution token on success.
//
// A provider-reported terminal error fails the attempt immediately;
// exceeding the max wait fails it with ErrSolveTimeout. Neither switches
// provider automatically.
func (o *Orchestrator) Solve(ctx context.Context, page Page, challenge models.ChallengeType, siteKey, pageURL string) (string, error) {
	o.mu.Lock()
	if len(o.providers) == 0 {
		o.mu.Unlock()
		return "", ErrNoProviders
	}
	prov := o.providers[o.current]
	o.mu.Unlock()

	task := &models.CaptchaTask{
		ProviderID: prov.Name(),
		Challenge:  challenge,
		SiteKey:    siteKey,
		PageURL:    pageURL,
		CreatedAt:  time.Now(),
		Status:     models.TaskPending,
	}

	taskID, err := prov.Submit(ctx, challenge, siteKey, pageURL)
	if err != nil {
		task.Status = models.TaskFailed
		return "", err
	}
	task.TaskID = taskID

	log.Debug().
		Str("provider", prov.Name()).
		Str("task_id", taskID).
		Str("challenge", string(challenge)).
		Msg("captcha task submitted")

	token, err := o.poll(ctx, prov, task)
	if err != nil {
		return "", err
	}

	if page != nil {
		if err := o.inject(ctx, page, challenge, token); err != nil {
			return "", err
		}
	}

	log.Debug().
		Str("provider", prov.Name()).
		Str("task_id", taskID).
		Msg("captcha solved")
	return token, nil
}

// poll repeats result lookups, spaced pollInterval apart, until the task
// is solved, fails terminally, or the max wait elapses.
func (o *Orchestrator) poll(ctx context.Context, prov Provider, task *models.CaptchaTask) (string, error) {
	start := time.Now()
	pacer := rate.NewLimiter(rate.Every(o.pollInterval), 1)
	pacer.Allow() // burn the initial token so the first lookup waits a full interval

	for {
		if err := pacer.Wait(ctx); err != nil {
			task.Status = models.TaskFailed
			return "", err
		}
		if time.Since(start) >= o.maxWait {
			task.Status = models.TaskTimedOut
			return "", fmt.Errorf("%w after %s", ErrSolveTimeout, o.maxWait)
		}

		token, done, err := prov.Poll(ctx, task.TaskID)
		if err != nil {
			task.Status = models.TaskFailed
			return "", err
		}
		if done {
			task.Status = models.TaskSolved
			return token, nil
		}

		log.Debug().
			Str("task_id", task.TaskID).
			Dur("elapsed", time.Since(start)).
			Msg("waiting for captcha solution")
	}
}

// SwitchProvider cycles to the next configured provider in round-robin
// order and returns its name. In-flight tasks are unaffected.
func (o *Orchestrator) SwitchProvider() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.providers) == 0 {
		return ""
	}
	o.current = (o.current + 1) % len(o.providers)
	name := o.providers[o.current].Name()
	log.Info().Str("provider", name).Msg("switched captcha provider")
	return name
}

// Stats reports the current provider selection state.
func (o *Orchestrator) Stats() models.ProviderStats {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats := models.ProviderStats{}
	for i, p := range o.providers {
		stats.Available = append(stats.Available, p.Name())
		if p.Configured() {
			stats.Configured = append(stats.Configured, p.Name())
		}
		if i == o.current {
			stats.Current = p.Name()
		}
	}
	return stats
}
