package sites

import "github.com/propscout/propscout/pkg/models"

// Strategy is one rule for locating a value within a document: a CSS
// selector plus an optional keyword filter. When Filter is set, elements
// whose text does not contain it (case-insensitive) are skipped.
type Strategy struct {
	Selector string
	Filter   string
}

func sel(selectors ...string) []Strategy {
	out := make([]Strategy, len(selectors))
	for i, s := range selectors {
		out[i] = Strategy{Selector: s}
	}
	return out
}

func filtered(filter string, selectors ...string) []Strategy {
	out := make([]Strategy, len(selectors))
	for i, s := range selectors {
		out[i] = Strategy{Selector: s, Filter: filter}
	}
	return out
}

// SelectorProfile maps each record field to an ordered list of extraction
// strategies. Ordering is a priority list: the first strategy yielding a
// non-empty trimmed value wins, later entries cover markup drift.
type SelectorProfile struct {
	Title       []Strategy
	Price       []Strategy
	Location    []Strategy
	Area        []Strategy
	Bedrooms    []Strategy
	Bathrooms   []Strategy
	Images      []Strategy
	Description []Strategy
	Features    []Strategy
	Coordinates []Strategy
}

// Unit/keyword markers used to disambiguate numeric detail elements.
// "banho" covers both "casa de banho" and the plural "casas de banho";
// "quarto" likewise matches its plural by prefix.
const (
	areaMarker     = "m²"
	bedroomMarker  = "quarto"
	bathroomMarker = "banho"
)

var profiles = map[models.Site]SelectorProfile{
	models.SiteIdealista: {
		Title:       sel(`h1[data-testid="title"]`, `h1.main-info__title`, `meta[property="og:title"]`, `title`),
		Price:       sel(`[data-testid="price"]`, `.info-data-price`, `.price`, `.main-info__price`),
		Location:    sel(`[data-testid="location"]`, `.main-info__title-minor`, `.location`),
		Area:        filtered(areaMarker, `[data-testid="surface"]`, `.icon-surface + span`, `.details-property-surface`),
		Bedrooms:    filtered(bedroomMarker, `[data-testid="bedrooms"]`, `.icon-bedrooms + span`, `.details-property-habitations`),
		Bathrooms:   filtered(bathroomMarker, `[data-testid="bathrooms"]`, `.icon-bathrooms + span`, `.details-property-bathrooms`),
		Images:      sel(`[data-testid="gallery-image"]`, `.property-gallery img`, `.gallery img`),
		Description: sel(`[data-testid="description"]`, `.property-description`, `meta[property="og:description"]`),
		Features:    sel(`.info-features span`, `.property-features span`, `[data-testid="features"]`),
		Coordinates: sel(`script[type="application/ld+json"]`, `iframe[src*="google.com/maps"]`, `[data-testid="map"]`),
	},
	models.SiteImovirtual: {
		Title:       sel(`h1[data-testid="title"]`, `h1.property-title`, `h1`, `.property-title`, `meta[property="og:title"]`),
		Price:       sel(`[data-testid="price"]`, `.price-value`, `.property-price`, `.price`, `[class*="price"]`),
		Location:    sel(`[data-testid="location"]`, `.property-location`, `.location`, `.address`),
		Area:        filtered(areaMarker, `[data-testid="area"]`, `[class*="area"]`, `[class*="surface"]`),
		Bedrooms:    filtered(bedroomMarker, `[data-testid="bedrooms"]`, `[class*="bedroom"]`, `[class*="quarto"]`, `[class*="room"]`),
		Bathrooms:   filtered(bathroomMarker, `[data-testid="bathrooms"]`, `[class*="bathroom"]`, `[class*="banho"]`),
		Images:      sel(`img[data-testid="gallery-image"]`, `img[src*="property"]`, `.gallery img`),
		Description: sel(`meta[property="og:description"]`, `.property-description`, `[data-testid="description"]`),
		Features:    sel(`[data-testid="features"] span`, `.property-features span`, `.info-features span`),
		Coordinates: sel(`script[type="application/ld+json"]`, `iframe[src*="google.com/maps"]`),
	},
	models.SiteSupercasa: {
		Title:       sel(`h1.title`, `meta[property="og:title"]`, `h1`),
		Price:       sel(`.price-tag`, `.property-price`, `.value`),
		Location:    sel(`.property-address`, `h1.title`, `.location`),
		Area:        filtered(areaMarker, `.property-size`, `.info-features span`),
		Bedrooms:    filtered(bedroomMarker, `.property-rooms`, `.info-features span`),
		Bathrooms:   filtered(bathroomMarker, `.property-bathrooms`, `.info-features span`),
		Images:      sel(`.property-gallery img`, `[data-testid="gallery-image"]`),
		Description: sel(`meta[property="og:description"]`, `.property-description`),
		Features:    sel(`.property-features span`, `.info-features span`),
		Coordinates: sel(`script[type="application/ld+json"]`, `iframe[src*="google.com/maps"]`),
	},
	models.SiteOLX: {
		Title:       sel(`h1[data-testid="ad-title"]`, `meta[property="og:title"]`, `h1`),
		Price:       sel(`[data-testid="price"]`, `.price-tag`, `.price`),
		Location:    sel(`[data-testid="address"]`, `.property-address`, `.location`),
		Area:        filtered(areaMarker, `[data-testid="size"]`, `.property-size`),
		Bedrooms:    filtered(bedroomMarker, `[data-testid="rooms"]`, `.property-rooms`),
		Bathrooms:   filtered(bathroomMarker, `[data-testid="bathrooms"]`, `.property-bathrooms`),
		Images:      sel(`[data-testid="gallery-image"]`, `.property-gallery img`),
		Description: sel(`meta[property="og:description"]`, `[data-testid="description"]`),
		Features:    sel(`.property-features span`, `.info-features span`),
		Coordinates: sel(`script[type="application/ld+json"]`, `iframe[src*="google.com/maps"]`),
	},
	models.SiteCasaSapo: {
		Title:       sel(`h1.property-title`, `meta[property="og:title"]`, `h1`, `.listing-title`),
		Price:       sel(`.property-price`, `.price-value`, `[class*="price"]`, `.value`),
		Location:    sel(`.property-location`, `.address`, `.location`, `[class*="location"]`),
		Area:        filtered(areaMarker, `.property-area`, `[class*="area"]`, `[class*="m2"]`, `.area-value`),
		Bedrooms:    filtered(bedroomMarker, `.property-bedrooms`, `[class*="bedroom"]`, `[class*="quarto"]`),
		Bathrooms:   filtered(bathroomMarker, `.property-bathrooms`, `[class*="bathroom"]`, `[class*="wc"]`),
		Images:      sel(`.gallery img`, `.property-images img`, `img[src*="property"]`),
		Description: sel(`meta[property="og:description"]`, `.property-description`, `.description`),
		Features:    sel(`.property-features li`, `.features span`, `.amenities li`),
		Coordinates: sel(`script[type="application/ld+json"]`, `iframe[src*="google.com/maps"]`),
	},
}

// defaultProfile is the generic fallback for unknown sites: broad tag and
// class-substring selectors that work on most listing pages.
var defaultProfile = SelectorProfile{
	Title:       sel(`h1`, `title`, `meta[property="og:title"]`, `.property-title`, `.title`, `[data-testid="title"]`),
	Price:       sel(`.price`, `.property-price`, `.value`, `[class*="price"]`, `[data-testid="price"]`),
	Location:    sel(`.location`, `.address`, `.property-location`, `[data-testid="location"]`, `[data-testid="address"]`),
	Area:        filtered(areaMarker, `[class*="area"]`, `[class*="surface"]`, `[data-testid="area"]`, `[data-testid="surface"]`),
	Bedrooms:    filtered(bedroomMarker, `[class*="bedroom"]`, `[class*="quarto"]`, `[data-testid="bedrooms"]`, `[data-testid="rooms"]`),
	Bathrooms:   filtered(bathroomMarker, `[class*="bathroom"]`, `[class*="banho"]`, `[data-testid="bathrooms"]`),
	Images:      sel(`img`),
	Description: sel(`.description`, `.property-description`, `meta[property="og:description"]`, `[data-testid="description"]`),
	Features:    sel(`.features li`, `.property-features li`, `.amenities li`, `[class*="feature"]`),
	Coordinates: sel(`script[type="application/ld+json"]`, `iframe[src*="google.com/maps"]`),
}

// Profile returns the selector catalog for a site, falling back to the
// generic profile for unknown sites without failing.
func Profile(site models.Site) SelectorProfile {
	if p, ok := profiles[site]; ok {
		return p
	}
	return defaultProfile
}
