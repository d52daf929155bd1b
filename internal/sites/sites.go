// Package sites knows the supported listing portals: how to recognize
// their property URLs and which selectors extract data from their markup.
package sites

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/propscout/propscout/internal/urlcheck"
	"github.com/propscout/propscout/pkg/models"
)

// ErrUnsupportedSite is returned when no site pattern matches a URL.
var ErrUnsupportedSite = errors.New("unsupported property website")

// Match is the result of classifying a validated URL.
type Match struct {
	Site         models.Site
	PropertyID   string
	CanonicalURL string
}

// order fixes the deterministic site order for classification.
var order = []models.Site{
	models.SiteIdealista,
	models.SiteImovirtual,
	models.SiteOLX,
	models.SiteSupercasa,
	models.SiteCasaSapo,
}

// patterns maps each site to its URL patterns, tried in listed order.
// A site may own several alternatives for old and new URL formats; the
// first capture group is the property identifier.
var patterns = map[models.Site][]*regexp.Regexp{
	models.SiteIdealista: {
		regexp.MustCompile(`idealista\.pt/(?:en/)?imovel/(\d+)`),
	},
	models.SiteImovirtual: {
		regexp.MustCompile(`imovirtual\.com/.*-ID([A-Z0-9]+)\.html`), // old format
		regexp.MustCompile(`imovirtual\.com/pt/anuncio/([^/]+)`),
		regexp.MustCompile(`imovirtual\.com/.*/([^/]+)$`),
	},
	models.SiteOLX: {
		regexp.MustCompile(`olx\.pt/.*-ID([a-z0-9]+)\.html`),
	},
	models.SiteSupercasa: {
		regexp.MustCompile(`supercasa\.pt/.*/(\d+)$`),
	},
	models.SiteCasaSapo: {
		regexp.MustCompile(`casa\.sapo\.pt/.*/([^/]+)/?$`),
	},
}

// Classify matches a validated URL against the site catalog and extracts
// the canonical property identifier. The URL must already have passed
// urlcheck.Validate.
func Classify(u *url.URL) (Match, error) {
	target := u.String()
	for _, site := range order {
		for _, re := range patterns[site] {
			if m := re.FindStringSubmatch(target); m != nil {
				return Match{
					Site:         site,
					PropertyID:   m[1],
					CanonicalURL: target,
				}, nil
			}
		}
	}
	return Match{}, fmt.Errorf("%w: supported sites are %v", ErrUnsupportedSite, Supported())
}

// ClassifyString validates and classifies a raw URL in one step.
func ClassifyString(raw string) (Match, error) {
	u, err := urlcheck.Validate(raw)
	if err != nil {
		return Match{}, err
	}
	return Classify(u)
}

// IsSupportedURL reports whether a raw URL validates and maps to a known site.
func IsSupportedURL(raw string) bool {
	_, err := ClassifyString(raw)
	return err == nil
}

// Supported returns the supported site set in classification order.
func Supported() []models.Site {
	out := make([]models.Site, len(order))
	copy(out, order)
	return out
}

// Detect classifies by hostname alone, without requiring a property ID
// match. Used for selector-profile lookup when extraction is fed markup
// from an arbitrary URL.
func Detect(rawURL string) models.Site {
	switch {
	case strings.Contains(rawURL, "idealista.pt"):
		return models.SiteIdealista
	case strings.Contains(rawURL, "imovirtual.com"):
		return models.SiteImovirtual
	case strings.Contains(rawURL, "olx.pt"):
		return models.SiteOLX
	case strings.Contains(rawURL, "supercasa.pt"):
		return models.SiteSupercasa
	case strings.Contains(rawURL, "casa.sapo.pt"):
		return models.SiteCasaSapo
	}
	return models.SiteUnknown
}
