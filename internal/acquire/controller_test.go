package acquire

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/propscout/propscout/internal/cache"
	"github.com/propscout/propscout/internal/captcha"
	"github.com/propscout/propscout/internal/engine"
	"github.com/propscout/propscout/internal/ratelimit"
	"github.com/propscout/propscout/pkg/models"
)

const listingURL = "https://www.idealista.pt/imovel/123456/"

func listingHTML(title string) string {
	return `<html><head><meta property="og:title" content="` + title + `"></head><body>` +
		`<div data-testid="price">275.000 €</div>` +
		strings.Repeat("<p>Apartamento com muita luz natural</p>", 40) +
		`</body></html>`
}

type fakeFetcher struct {
	res   *models.FetchResult
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, opts models.RequestOptions) (*models.FetchResult, error) {
	f.calls++
	if f.res != nil {
		f.res.URL = opts.URL
	}
	return f.res, f.err
}

func (f *fakeFetcher) Name() string { return "fake" }

type fakePage struct {
	html      string
	evalCalls []string
}

func (p *fakePage) Eval(_ context.Context, js string, out any) error {
	p.evalCalls = append(p.evalCalls, js)
	if s, ok := out.(*string); ok {
		*s = "sitekey-on-page"
	}
	return nil
}

func (p *fakePage) HTML(context.Context) (string, error) { return p.html, nil }
func (p *fakePage) Release()                             {}

type fakeRenderer struct {
	page  *fakePage
	opens int
}

func (r *fakeRenderer) Open(context.Context, models.RequestOptions) (RenderedPage, error) {
	r.opens++
	return r.page, nil
}

type fakeSolver struct {
	challenges []models.ChallengeType
	solveErr   error
	solved     int
	gotSiteKey string
}

func (s *fakeSolver) Detect(context.Context, captcha.Page) ([]models.ChallengeType, error) {
	return s.challenges, nil
}

func (s *fakeSolver) Solve(_ context.Context, _ captcha.Page, _ models.ChallengeType, siteKey, _ string) (string, error) {
	s.solved++
	s.gotSiteKey = siteKey
	if s.solveErr != nil {
		return "", s.solveErr
	}
	return "token", nil
}

func (s *fakeSolver) Stats() models.ProviderStats {
	return models.ProviderStats{Current: "fake"}
}

func testController(fetcher engine.Fetcher, opts Options) *Controller {
	opts.Fetcher = fetcher
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(ratelimit.DefaultConfig())
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryCache(16)
	}
	return New(opts)
}

func TestAcquireHappyPath(t *testing.T) {
	fetcher := &fakeFetcher{res: &models.FetchResult{StatusCode: 200, HTML: listingHTML("Apartamento T2 em Lisboa")}}
	c := testController(fetcher, Options{})
	defer c.Close()

	rec, err := c.Acquire(context.Background(), listingURL, models.ModeAuto)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if rec.Title == nil || *rec.Title != "Apartamento T2 em Lisboa" {
		t.Errorf("Title = %v", rec.Title)
	}
	if rec.Price == nil || *rec.Price != 275000 {
		t.Errorf("Price = %v, want 275000", rec.Price)
	}
	if rec.PropertyID != "123456" {
		t.Errorf("PropertyID = %q, want 123456", rec.PropertyID)
	}
	if rec.Site != models.SiteIdealista {
		t.Errorf("Site = %q", rec.Site)
	}
	if rec.Placeholder {
		t.Error("Placeholder = true on a successful acquisition")
	}
}

func TestAcquireUsesCache(t *testing.T) {
	fetcher := &fakeFetcher{res: &models.FetchResult{StatusCode: 200, HTML: listingHTML("Apartamento T2 em Lisboa")}}
	c := testController(fetcher, Options{})
	defer c.Close()

	if _, err := c.Acquire(context.Background(), listingURL, models.ModeAuto); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if _, err := c.Acquire(context.Background(), listingURL, models.ModeAuto); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1 (second hit must come from cache)", fetcher.calls)
	}
	if stats := c.Stats(); stats.Cache.Hits != 1 {
		t.Errorf("cache hits = %d, want 1", stats.Cache.Hits)
	}
}

func TestAcquireRejectsBeforeFetch(t *testing.T) {
	tests := []struct {
		name string
		url  string
		code Code
	}{
		{"bad scheme", "ftp://www.idealista.pt/imovel/1/", CodeProtocolNotAllowed},
		{"loopback", "http://127.0.0.1/imovel/1/", CodeSSRFBlocked},
		{"private range", "http://192.168.1.10/imovel/1/", CodeSSRFBlocked},
		{"unsupported site", "https://www.example.com/listing/1", CodeUnsupportedSite},
		{"unparseable", "http://%zz", CodeInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{}
			c := testController(fetcher, Options{})
			defer c.Close()

			_, err := c.Acquire(context.Background(), tt.url, models.ModeAuto)
			if got := CodeOf(err); got != tt.code {
				t.Errorf("code = %q, want %q (err: %v)", got, tt.code, err)
			}
			if fetcher.calls != 0 {
				t.Errorf("fetch calls = %d, validation must run before any network call", fetcher.calls)
			}
		})
	}
}

func TestAcquireChallengeWithoutBrowser(t *testing.T) {
	fetcher := &fakeFetcher{
		res: &models.FetchResult{StatusCode: 200, HTML: "<html>captcha</html>"},
		err: engine.ErrChallengeDetected,
	}
	c := testController(fetcher, Options{})
	defer c.Close()

	_, err := c.Acquire(context.Background(), listingURL, models.ModeAuto)
	if got := CodeOf(err); got != CodeChallengeDetected {
		t.Fatalf("code = %q, want CHALLENGE_DETECTED (err: %v)", got, err)
	}
}

func TestAcquireEscalatesChallengeToBrowser(t *testing.T) {
	fetcher := &fakeFetcher{
		res: &models.FetchResult{StatusCode: 200, HTML: "<html>captcha</html>"},
		err: engine.ErrChallengeDetected,
	}
	renderer := &fakeRenderer{page: &fakePage{html: listingHTML("Moradia V3 em Braga")}}
	solver := &fakeSolver{challenges: []models.ChallengeType{models.ChallengeRecaptchaV2}}

	c := testController(fetcher, Options{Renderer: renderer, Solver: solver})
	defer c.Close()

	rec, err := c.Acquire(context.Background(), listingURL, models.ModeAuto)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if rec.Title == nil || *rec.Title != "Moradia V3 em Braga" {
		t.Errorf("Title = %v, want the rendered page's listing", rec.Title)
	}
	if renderer.opens != 1 {
		t.Errorf("renderer opens = %d, want 1", renderer.opens)
	}
	if solver.solved != 1 {
		t.Errorf("solves = %d, want 1", solver.solved)
	}
	if solver.gotSiteKey != "sitekey-on-page" {
		t.Errorf("site key = %q, want the one read off the page", solver.gotSiteKey)
	}
}

func TestAcquireSolveTimeoutSurfaces(t *testing.T) {
	fetcher := &fakeFetcher{err: engine.ErrChallengeDetected, res: &models.FetchResult{HTML: "x"}}
	renderer := &fakeRenderer{page: &fakePage{html: "irrelevant"}}
	solver := &fakeSolver{
		challenges: []models.ChallengeType{models.ChallengeRecaptchaV2},
		solveErr:   captcha.ErrSolveTimeout,
	}

	c := testController(fetcher, Options{Renderer: renderer, Solver: solver})
	defer c.Close()

	_, err := c.Acquire(context.Background(), listingURL, models.ModeAuto)
	if got := CodeOf(err); got != CodeSolveTimeout {
		t.Fatalf("code = %q, want SOLVE_TIMEOUT (err: %v)", got, err)
	}
}

func TestAcquireStaticModeNeverEscalates(t *testing.T) {
	fetcher := &fakeFetcher{err: engine.ErrChallengeDetected, res: &models.FetchResult{HTML: "x"}}
	renderer := &fakeRenderer{page: &fakePage{html: listingHTML("Loja no Chiado")}}
	solver := &fakeSolver{}

	c := testController(fetcher, Options{Renderer: renderer, Solver: solver})
	defer c.Close()

	_, err := c.Acquire(context.Background(), listingURL, models.ModeStatic)
	if got := CodeOf(err); got != CodeChallengeDetected {
		t.Fatalf("code = %q, want CHALLENGE_DETECTED", got)
	}
	if renderer.opens != 0 {
		t.Errorf("renderer opens = %d, static mode must not render", renderer.opens)
	}
}

func TestAcquireBrowserModeSkipsStaticFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	renderer := &fakeRenderer{page: &fakePage{html: listingHTML("Quinta em Évora")}}
	solver := &fakeSolver{}

	c := testController(fetcher, Options{Renderer: renderer, Solver: solver})
	defer c.Close()

	rec, err := c.Acquire(context.Background(), listingURL, models.ModeBrowser)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if rec.Title == nil || *rec.Title != "Quinta em Évora" {
		t.Errorf("Title = %v", rec.Title)
	}
	if fetcher.calls != 0 {
		t.Errorf("static fetch calls = %d, want 0 in browser mode", fetcher.calls)
	}
}

func TestAcquireBoilerplateTitleFails(t *testing.T) {
	fetcher := &fakeFetcher{res: &models.FetchResult{StatusCode: 200, HTML: listingHTML("Casas e apartamentos para comprar")}}
	c := testController(fetcher, Options{})
	defer c.Close()

	_, err := c.Acquire(context.Background(), listingURL, models.ModeAuto)
	var ae *Error
	if !errors.As(err, &ae) || ae.Code != CodeExtractionFailed {
		t.Fatalf("err = %v, want EXTRACTION_FAILED", err)
	}
	if ae.Suggestion == "" {
		t.Error("extraction failure should carry a retry suggestion")
	}
}

func TestAcquirePlaceholderPolicy(t *testing.T) {
	fetcher := &fakeFetcher{res: &models.FetchResult{StatusCode: 200, HTML: listingHTML("Todo o país")}}
	c := testController(fetcher, Options{Config: Config{AllowPlaceholder: true}})
	defer c.Close()

	rec, err := c.Acquire(context.Background(), listingURL, models.ModeAuto)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !rec.Placeholder {
		t.Fatal("Placeholder = false, want a flagged placeholder record")
	}
	if rec.Title != nil {
		t.Errorf("Title = %q, placeholder must not carry fabricated data", *rec.Title)
	}
	if rec.SourceURL != listingURL || rec.Site != models.SiteIdealista {
		t.Errorf("placeholder provenance wrong: %+v", rec)
	}
}

func TestAcquireRecordsOutcomes(t *testing.T) {
	fetcher := &fakeFetcher{res: &models.FetchResult{StatusCode: 200, HTML: listingHTML("Apartamento T1")}}
	lim := ratelimit.New(ratelimit.DefaultConfig())
	c := testController(fetcher, Options{Limiter: lim})
	defer c.Close()

	if _, err := c.Acquire(context.Background(), listingURL, models.ModeAuto); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	stats := c.Stats()
	site := stats.Rate.Sites[string(models.SiteIdealista)]
	if site.Requests != 1 {
		t.Errorf("site requests = %d, want 1", site.Requests)
	}
	if stats.Rate.Global.Requests != 1 {
		t.Errorf("global requests = %d, want 1", stats.Rate.Global.Requests)
	}
}
