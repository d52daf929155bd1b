// Package engine defines the page-fetching contract shared by the static
// HTTP fetcher and the headless-browser fetcher.
package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/propscout/propscout/pkg/models"
)

// Fetching errors.
var (
	// ErrChallengeDetected marks a fetch that returned a block or
	// anti-bot interstitial instead of the listing page. The result is
	// still returned so callers can escalate to browser rendering.
	ErrChallengeDetected = errors.New("challenge page detected")

	// ErrAllSourcesFailed marks a fetch where the direct request and
	// every relay failed.
	ErrAllSourcesFailed = errors.New("direct fetch and all relays failed")
)

// Fetcher retrieves the raw HTML of a listing page.
type Fetcher interface {
	// Fetch retrieves the page at opts.URL. When the page is a
	// challenge interstitial the result is returned together with
	// ErrChallengeDetected.
	Fetch(ctx context.Context, opts models.RequestOptions) (*models.FetchResult, error)

	// Name returns the fetcher implementation name.
	Name() string
}

// challengeMarkers are phrases block pages and anti-bot interstitials
// show instead of listing content.
var challengeMarkers = []string{
	"please enable javascript",
	"captcha",
	"are you a robot",
	"unusual traffic",
	"access denied",
	"request blocked",
}

// minUsableBodyBytes is the size below which a response body is assumed
// to be an interstitial rather than a listing page.
const minUsableBodyBytes = 1000

// SuspectChallenge reports whether an HTML body looks like a block page
// or anti-bot challenge instead of real listing content.
func SuspectChallenge(html string) bool {
	if len(html) < minUsableBodyBytes {
		return true
	}
	lower := strings.ToLower(html)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
