package extract

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/propscout/propscout/pkg/models"
)

var listingPage = `<!DOCTYPE html>
<html>
<head>
	<title>fallback title</title>
	<meta property="og:title" content="Apartamento T3 em Alvalade">
	<meta property="og:description" content="Apartamento renovado com varanda.">
	<meta property="og:image" content="https://img.example.com/cover.jpg">
	<script type="application/ld+json">
	{"@type":"Residence","geo":{"latitude":38.7223,"longitude":-9.1393}}
	</script>
</head>
<body>
	<h1 data-testid="title">Apartamento T3 em Alvalade</h1>
	<div data-testid="price">450.000,50 €</div>
	<div data-testid="location">Alvalade, Lisboa</div>
	<div data-testid="surface">120 m²</div>
	<div data-testid="bedrooms">3 quartos</div>
	<div data-testid="bathrooms">2 casas de banho</div>
	<div class="property-gallery">
		<img src="https://img.example.com/cover.jpg">
		<img src="https://img.example.com/1.jpg">
		<img data-src="https://img.example.com/lazy.jpg">
	</div>
	<div data-testid="description">Apartamento renovado com varanda.</div>
	<div class="info-features">
		<span>Varanda</span>
		<span>Elevador</span>
		<span>Varanda</span>
		<span>ar</span>
		<span>` + strings.Repeat("x", 60) + `</span>
	</div>
	<p>` + "padding " + strings.Repeat("conteúdo ", 30) + `</p>
</body>
</html>`

func strOf(t *testing.T, p *string) string {
	t.Helper()
	if p == nil {
		t.Fatal("value is nil")
	}
	return *p
}

func TestExtractListingFields(t *testing.T) {
	rec, err := Extract(listingPage, "https://www.idealista.pt/imovel/123456/", models.SiteIdealista)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got := strOf(t, rec.Title); got != "Apartamento T3 em Alvalade" {
		t.Errorf("Title = %q", got)
	}
	if rec.Price == nil || *rec.Price != 450000.50 {
		t.Errorf("Price = %v, want 450000.50", rec.Price)
	}
	if got := strOf(t, rec.Location); got != "Alvalade, Lisboa" {
		t.Errorf("Location = %q", got)
	}
	if rec.Area == nil || *rec.Area != 120 {
		t.Errorf("Area = %v, want 120", rec.Area)
	}
	if rec.Bedrooms == nil || *rec.Bedrooms != 3 {
		t.Errorf("Bedrooms = %v, want 3", rec.Bedrooms)
	}
	if rec.Bathrooms == nil || *rec.Bathrooms != 2 {
		t.Errorf("Bathrooms = %v, want 2", rec.Bathrooms)
	}
	if rec.Coordinates == nil || rec.Coordinates.Lat != 38.7223 || rec.Coordinates.Lng != -9.1393 {
		t.Errorf("Coordinates = %v, want 38.7223,-9.1393", rec.Coordinates)
	}
	if rec.Site != models.SiteIdealista {
		t.Errorf("Site = %q", rec.Site)
	}
	if rec.SourceURL != "https://www.idealista.pt/imovel/123456/" {
		t.Errorf("SourceURL = %q", rec.SourceURL)
	}
}

func TestExtractImagesSeededAndDeduplicated(t *testing.T) {
	rec, err := Extract(listingPage, "https://example.com", models.SiteIdealista)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := []string{
		"https://img.example.com/cover.jpg", // og:image seed, also in gallery
		"https://img.example.com/1.jpg",
		"https://img.example.com/lazy.jpg", // lazy-load data-src fallback
	}
	if len(rec.Images) != len(want) {
		t.Fatalf("Images = %v, want %v", rec.Images, want)
	}
	for i := range want {
		if rec.Images[i] != want[i] {
			t.Errorf("Images[%d] = %q, want %q", i, rec.Images[i], want[i])
		}
	}
}

func TestExtractFeaturesUnionDedupeAndLength(t *testing.T) {
	rec, err := Extract(listingPage, "https://example.com", models.SiteIdealista)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// "Varanda" appears twice, "ar" is too short, the 60-char entry too long.
	want := []string{"Varanda", "Elevador"}
	if len(rec.Features) != len(want) {
		t.Fatalf("Features = %v, want %v", rec.Features, want)
	}
	for i := range want {
		if rec.Features[i] != want[i] {
			t.Errorf("Features[%d] = %q, want %q", i, rec.Features[i], want[i])
		}
	}
}

func TestExtractIdempotent(t *testing.T) {
	first, err := Extract(listingPage, "https://example.com", models.SiteIdealista)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	second, err := Extract(listingPage, "https://example.com", models.SiteIdealista)
	if err != nil {
		t.Fatalf("second Extract failed: %v", err)
	}

	first.RetrievedAt = second.RetrievedAt
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("extraction is not deterministic:\n%s\n%s", a, b)
	}
}

func TestExtractTitleFallsBackToMeta(t *testing.T) {
	page := `<html><head><meta property="og:title" content="Moradia V4 em Cascais"></head>` +
		`<body><p>` + strings.Repeat("texto ", 50) + `</p></body></html>`

	rec, err := Extract(page, "https://example.com", models.SiteIdealista)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := strOf(t, rec.Title); got != "Moradia V4 em Cascais" {
		t.Errorf("Title = %q, want the og:title fallback", got)
	}
}

func TestExtractPriceLocale(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"450.000,50 €", 450000.50},
		{"1.250.000 €", 1250000},
		{"980,75", 980.75},
		{"350000", 350000},
	}
	for _, tt := range tests {
		got := parsePrice(tt.text)
		if got == nil || *got != tt.want {
			t.Errorf("parsePrice(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if got := parsePrice("sob consulta"); got != nil {
		t.Errorf("parsePrice(no digits) = %v, want nil", *got)
	}
}

func TestExtractNumericKeywordFilter(t *testing.T) {
	// The first [class*="area"] element lacks the m² marker and must be
	// skipped in favor of the one carrying it.
	page := `<html><body>
		<div class="area-badge">zona nobre 7</div>
		<div class="area-value">85 m²</div>
		<p>` + strings.Repeat("texto ", 60) + `</p>
	</body></html>`

	rec, err := Extract(page, "https://example.com", models.SiteUnknown)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec.Area == nil || *rec.Area != 85 {
		t.Errorf("Area = %v, want 85", rec.Area)
	}
}

func TestExtractBathroomsSingularAndPlural(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"singular", "1 casa de banho", 1},
		{"plural", "2 casas de banho", 2},
		{"shorthand", "3 banhos", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := `<html><body>
				<div data-testid="bathrooms">` + tt.text + `</div>
				<p>` + strings.Repeat("texto ", 60) + `</p>
			</body></html>`

			rec, err := Extract(page, "https://example.com", models.SiteIdealista)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if rec.Bathrooms == nil || *rec.Bathrooms != tt.want {
				t.Errorf("Bathrooms = %v, want %d", rec.Bathrooms, tt.want)
			}
		})
	}
}

func TestExtractCoordinatesFromMapsIframe(t *testing.T) {
	page := `<html><body>
		<iframe src="https://www.google.com/maps?q=41.1579,-8.6291&z=15"></iframe>
		<p>` + strings.Repeat("texto ", 60) + `</p>
	</body></html>`

	rec, err := Extract(page, "https://example.com", models.SiteUnknown)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec.Coordinates == nil || rec.Coordinates.Lat != 41.1579 || rec.Coordinates.Lng != -8.6291 {
		t.Errorf("Coordinates = %v, want 41.1579,-8.6291", rec.Coordinates)
	}
}

func TestExtractHarvestsEmbeddedState(t *testing.T) {
	page := `<html><body>
		<script>
			window.utag_data = { listingPrice: "325000", latitude: 38.71, longitude: -9.14 };
		</script>
		<p>` + strings.Repeat("texto ", 60) + `</p>
	</body></html>`

	rec, err := Extract(page, "https://example.com", models.SiteUnknown)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec.Price == nil || *rec.Price != 325000 {
		t.Errorf("Price = %v, want 325000 from embedded state", rec.Price)
	}
	if rec.Coordinates == nil || rec.Coordinates.Lat != 38.71 || rec.Coordinates.Lng != -9.14 {
		t.Errorf("Coordinates = %v, want embedded state values", rec.Coordinates)
	}
}

func TestExtractSurvivesThrowingScripts(t *testing.T) {
	page := `<html><body>
		<script>document.nonexistent.call();</script>
		<script>var dataLayer = [{ price: 199000 }];</script>
		<p>` + strings.Repeat("texto ", 60) + `</p>
	</body></html>`

	rec, err := Extract(page, "https://example.com", models.SiteUnknown)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec.Price == nil || *rec.Price != 199000 {
		t.Errorf("Price = %v, want 199000 despite earlier script error", rec.Price)
	}
}

func TestExtractMissingFieldsStayNil(t *testing.T) {
	page := `<html><body><p>` + strings.Repeat("texto ", 60) + `</p></body></html>`

	rec, err := Extract(page, "https://example.com", models.SiteIdealista)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec.Title != nil || rec.Price != nil || rec.Area != nil || rec.Coordinates != nil {
		t.Errorf("expected nil fields, got %+v", rec)
	}
}

func TestExtractMalformedContent(t *testing.T) {
	if _, err := Extract("", "https://example.com", models.SiteUnknown); !errors.Is(err, ErrMalformedContent) {
		t.Fatalf("err = %v, want ErrMalformedContent", err)
	}
}

func TestUsable(t *testing.T) {
	title := func(s string) *string { return &s }
	tests := []struct {
		name string
		rec  *models.PropertyRecord
		want bool
	}{
		{"nil record", nil, false},
		{"nil title", &models.PropertyRecord{}, false},
		{"empty title", &models.PropertyRecord{Title: title("  ")}, false},
		{"index boilerplate", &models.PropertyRecord{Title: title("Casas e apartamentos para comprar em Lisboa")}, false},
		{"country boilerplate", &models.PropertyRecord{Title: title("Todo o país")}, false},
		{"real listing", &models.PropertyRecord{Title: title("Apartamento T2 no Porto")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Usable(tt.rec); got != tt.want {
				t.Errorf("Usable = %v, want %v", got, tt.want)
			}
		})
	}
}
