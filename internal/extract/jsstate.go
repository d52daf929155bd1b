package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"

	"github.com/propscout/propscout/pkg/models"
)

// scriptBudget bounds total inline-script execution per document.
const scriptBudget = 200 * time.Millisecond

// stateGlobals are the well-known globals portals use to expose listing
// data to analytics and hydration code.
var stateGlobals = []string{"dataLayer", "utag_data", "__INITIAL_STATE__", "digitalData"}

var priceKeys = map[string]bool{
	"price":         true,
	"listingprice":  true,
	"propertyprice": true,
	"adprice":       true,
}

var latKeys = map[string]bool{"latitude": true, "lat": true}
var lngKeys = map[string]bool{"longitude": true, "lng": true, "lon": true}

type stateHints struct {
	price       *float64
	coordinates *models.Coordinates
}

// domStubs gives portal scripts just enough of a browser environment to
// assign their state globals without throwing on the first DOM call.
const domStubs = `
var window = this;
var self = this;
var navigator = { userAgent: "", language: "pt-PT" };
var location = { href: "", hostname: "", search: "" };
var noop = function () {};
var stubElement = {
	style: {}, dataset: {}, classList: { add: noop, remove: noop, contains: function () { return false; } },
	setAttribute: noop, getAttribute: function () { return null; },
	addEventListener: noop, removeEventListener: noop, appendChild: noop
};
var document = {
	querySelector: function () { return null; },
	querySelectorAll: function () { return []; },
	getElementById: function () { return null; },
	getElementsByClassName: function () { return []; },
	getElementsByTagName: function () { return []; },
	createElement: function () { return stubElement; },
	addEventListener: noop, removeEventListener: noop,
	documentElement: stubElement, head: stubElement, body: stubElement,
	cookie: ""
};
var localStorage = { getItem: function () { return null; }, setItem: noop, removeItem: noop };
var sessionStorage = localStorage;
var setTimeout = function () { return 0; };
var setInterval = function () { return 0; };
var clearTimeout = noop;
var clearInterval = noop;
`

// harvestState runs the document's inline scripts in a sandboxed VM and
// reads listing hints out of well-known state globals. Script errors are
// expected (the stub DOM is minimal) and ignored per script.
func harvestState(doc *goquery.Document) stateHints {
	vm := goja.New()
	if _, err := vm.RunString(domStubs); err != nil {
		return stateHints{}
	}

	timer := time.AfterFunc(scriptBudget, func() {
		vm.Interrupt("inline script budget exceeded")
	})
	defer timer.Stop()

	doc.Find("script").Not("[src]").Each(func(_ int, s *goquery.Selection) {
		src := s.Text()
		if strings.TrimSpace(src) == "" {
			return
		}
		if _, err := vm.RunString(src); err != nil {
			log.Trace().Err(err).Msg("inline script failed in sandbox")
		}
	})

	var hints stateHints
	for _, name := range stateGlobals {
		v := vm.Get(name)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			continue
		}
		walkState(v.Export(), 0, &hints)
		if hints.price != nil && hints.coordinates != nil {
			break
		}
	}
	return hints
}

// walkState searches a decoded state value for price and coordinate keys.
func walkState(v any, depth int, hints *stateHints) {
	if depth > 6 || (hints.price != nil && hints.coordinates != nil) {
		return
	}
	switch val := v.(type) {
	case map[string]any:
		var lat, lng *float64
		for key, child := range val {
			k := strings.ToLower(key)
			switch {
			case priceKeys[k] && hints.price == nil:
				if f, ok := asFloat(child); ok && f > 0 {
					hints.price = &f
				}
			case latKeys[k]:
				if f, ok := asFloat(child); ok {
					lat = &f
				}
			case lngKeys[k]:
				if f, ok := asFloat(child); ok {
					lng = &f
				}
			}
		}
		if hints.coordinates == nil && lat != nil && lng != nil {
			hints.coordinates = &models.Coordinates{Lat: *lat, Lng: *lng}
		}
		for _, child := range val {
			walkState(child, depth+1, hints)
		}
	case []any:
		for _, child := range val {
			walkState(child, depth+1, hints)
		}
	}
}
