// Package extract turns fetched listing HTML into a normalized
// PropertyRecord using per-site selector profiles.
//
// Extraction never fails on missing data. Each field is resolved through
// an ordered strategy list and unresolved fields stay nil; only HTML that
// cannot be parsed as a document at all is an error.
package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/propscout/propscout/internal/sites"
	"github.com/propscout/propscout/pkg/models"
)

// ErrMalformedContent marks input that cannot be parsed as a document.
var ErrMalformedContent = errors.New("content cannot be parsed as a document")

var (
	intRe   = regexp.MustCompile(`\d+`)
	floatRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
	geoRe   = regexp.MustCompile(`(-?\d+\.?\d*),\s*(-?\d+\.?\d*)`)
)

// boilerplateTitles are category/index page titles that mean the page was
// not a single listing.
var boilerplateTitles = []string{
	"Casas e apartamentos para comprar",
	"Todo o país",
}

// Extract parses listing HTML into a PropertyRecord using the selector
// profile for site. Fields that cannot be resolved are left nil.
func Extract(html, sourceURL string, site models.Site) (*models.PropertyRecord, error) {
	if strings.TrimSpace(html) == "" {
		return nil, ErrMalformedContent
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ErrMalformedContent
	}

	profile := sites.Profile(site)
	rec := &models.PropertyRecord{
		SourceURL:   sourceURL,
		Site:        site,
		RetrievedAt: time.Now(),
	}

	rec.Title = textField(doc, profile.Title)
	rec.Price = priceField(doc, profile.Price)
	rec.Location = textField(doc, profile.Location)
	rec.Area = intField(doc, profile.Area)
	rec.Bedrooms = intField(doc, profile.Bedrooms)
	rec.Bathrooms = intField(doc, profile.Bathrooms)
	rec.Images = imageList(doc, profile.Images)
	rec.Description = textField(doc, profile.Description)
	rec.Features = featureList(doc, profile.Features)
	rec.Coordinates = coordinatesField(doc, profile.Coordinates)

	// Embedded-state fallback for fields portals only expose to scripts.
	if rec.Price == nil || rec.Coordinates == nil {
		hints := harvestState(doc)
		if rec.Price == nil {
			rec.Price = hints.price
		}
		if rec.Coordinates == nil {
			rec.Coordinates = hints.coordinates
		}
	}

	log.Debug().
		Str("site", string(site)).
		Bool("title", rec.Title != nil).
		Bool("price", rec.Price != nil).
		Int("images", len(rec.Images)).
		Msg("extraction completed")

	return rec, nil
}

// Usable reports whether a record describes a real single listing: it
// must have a title that is not a category/index boilerplate phrase.
func Usable(rec *models.PropertyRecord) bool {
	if rec == nil || rec.Title == nil {
		return false
	}
	title := strings.TrimSpace(*rec.Title)
	if title == "" {
		return false
	}
	for _, phrase := range boilerplateTitles {
		if strings.Contains(title, phrase) {
			return false
		}
	}
	return true
}

// query evaluates one selector, swallowing selector-compile panics so a
// bad strategy never aborts the field.
func query(doc *goquery.Document, selector string) (sel *goquery.Selection) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Str("selector", selector).Any("panic", r).Msg("selector evaluation failed")
			sel = nil
		}
	}()
	return doc.Find(selector)
}

// textField resolves a text field: first strategy with a non-empty value
// wins, preferring a content attribute (meta tags) over element text.
func textField(doc *goquery.Document, strategies []sites.Strategy) *string {
	for _, st := range strategies {
		sel := query(doc, st.Selector)
		if sel == nil || sel.Length() == 0 {
			continue
		}
		first := sel.First()
		if content, ok := first.Attr("content"); ok {
			if v := strings.TrimSpace(content); v != "" {
				return &v
			}
		}
		if v := strings.TrimSpace(first.Text()); v != "" {
			return &v
		}
	}
	return nil
}

// intField resolves a numeric detail field. Strategies with a keyword
// filter skip elements whose text lacks it; the first integer run in a
// matching element's text wins.
func intField(doc *goquery.Document, strategies []sites.Strategy) *int {
	for _, st := range strategies {
		sel := query(doc, st.Selector)
		if sel == nil {
			continue
		}
		var out *int
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := s.Text()
			if st.Filter != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(st.Filter)) {
				return true
			}
			if m := intRe.FindString(text); m != "" {
				if n, err := strconv.Atoi(m); err == nil {
					out = &n
					return false
				}
			}
			return true
		})
		if out != nil {
			return out
		}
	}
	return nil
}

// priceField resolves the price with Portuguese locale normalization:
// "." is a thousands separator and "," the decimal separator, so
// "450.000,50 €" parses as 450000.50.
func priceField(doc *goquery.Document, strategies []sites.Strategy) *float64 {
	for _, st := range strategies {
		sel := query(doc, st.Selector)
		if sel == nil {
			continue
		}
		var out *float64
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v := parsePrice(s.Text()); v != nil {
				out = v
				return false
			}
			return true
		})
		if out != nil {
			return out
		}
	}
	return nil
}

func parsePrice(text string) *float64 {
	normalized := strings.ReplaceAll(text, ".", "")
	normalized = strings.ReplaceAll(normalized, ",", ".")
	m := floatRe.FindString(normalized)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

// imageList seeds the gallery with the page's representative og:image,
// then appends unique gallery URLs in discovery order. Lazy-loaded
// images fall back from src to data-src.
func imageList(doc *goquery.Document, strategies []sites.Strategy) []string {
	var images []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		images = append(images, u)
	}

	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		add(og)
	}

	for _, st := range strategies {
		sel := query(doc, st.Selector)
		if sel == nil {
			continue
		}
		sel.Each(func(_ int, s *goquery.Selection) {
			if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
				add(src)
				return
			}
			if src, ok := s.Attr("data-src"); ok {
				add(src)
			}
		})
	}
	return images
}

// featureList collects trimmed text across every listed selector (union,
// not first-match), keeps strings with length strictly between 2 and 50,
// and de-duplicates preserving first occurrence.
func featureList(doc *goquery.Document, strategies []sites.Strategy) []string {
	var features []string
	seen := make(map[string]bool)

	for _, st := range strategies {
		sel := query(doc, st.Selector)
		if sel == nil {
			continue
		}
		sel.Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) <= 2 || len(text) >= 50 || seen[text] {
				return
			}
			seen[text] = true
			features = append(features, text)
		})
	}
	return features
}

// coordinatesField tries structured data first, then an embedded map
// iframe's lat,lng query parameter.
func coordinatesField(doc *goquery.Document, strategies []sites.Strategy) *models.Coordinates {
	if c := jsonLDGeo(doc); c != nil {
		return c
	}
	for _, st := range strategies {
		if !strings.Contains(st.Selector, "iframe") {
			continue
		}
		sel := query(doc, st.Selector)
		if sel == nil {
			continue
		}
		var out *models.Coordinates
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src, ok := s.Attr("src")
			if !ok {
				return true
			}
			if c := parseLatLng(src); c != nil {
				out = c
				return false
			}
			return true
		})
		if out != nil {
			return out
		}
	}
	return nil
}

// jsonLDGeo scans ld+json blocks for an embedded geo object.
func jsonLDGeo(doc *goquery.Document) *models.Coordinates {
	var out *models.Coordinates
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		if c := findGeo(data, 0); c != nil {
			out = c
			return false
		}
		return true
	})
	return out
}

// findGeo walks a decoded JSON value looking for an object carrying both
// latitude and longitude.
func findGeo(v any, depth int) *models.Coordinates {
	if depth > 6 {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		lat, latOK := asFloat(val["latitude"])
		lng, lngOK := asFloat(val["longitude"])
		if latOK && lngOK {
			return &models.Coordinates{Lat: lat, Lng: lng}
		}
		for _, child := range val {
			if c := findGeo(child, depth+1); c != nil {
				return c
			}
		}
	case []any:
		for _, child := range val {
			if c := findGeo(child, depth+1); c != nil {
				return c
			}
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// parseLatLng extracts a lat,lng pair from a maps-iframe URL.
func parseLatLng(src string) *models.Coordinates {
	m := geoRe.FindStringSubmatch(src)
	if m == nil {
		return nil
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lng, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &models.Coordinates{Lat: lat, Lng: lng}
}
