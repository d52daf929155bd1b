package static

import (
	"net/url"
	"sync"
	"time"
)

// Relay is a public CORS relay that mirrors a page when the portal
// refuses direct requests.
type Relay struct {
	Name string
	// Wrap turns a target URL into the relay request URL.
	Wrap func(target string) string
}

// DefaultRelays are tried in order after a failed direct fetch.
func DefaultRelays() []Relay {
	return []Relay{
		{
			Name: "allorigins",
			Wrap: func(target string) string {
				return "https://api.allorigins.win/raw?url=" + url.QueryEscape(target)
			},
		},
		{
			Name: "corsproxy",
			Wrap: func(target string) string {
				return "https://corsproxy.io/?" + url.QueryEscape(target)
			},
		},
		{
			Name: "codetabs",
			Wrap: func(target string) string {
				return "https://api.codetabs.com/v1/proxy?quest=" + url.QueryEscape(target)
			},
		},
	}
}

// relayPool keeps the relay preference order and skips relays that
// failed recently.
type relayPool struct {
	relays   []Relay
	cooldown time.Duration

	mu     sync.Mutex
	failed map[string]time.Time
}

func newRelayPool(relays []Relay, cooldown time.Duration) *relayPool {
	return &relayPool{
		relays:   relays,
		cooldown: cooldown,
		failed:   make(map[string]time.Time),
	}
}

// candidates returns relays in preference order, healthy ones first.
// Cooled-down relays still appear at the end so a request is never left
// without a fallback.
func (p *relayPool) candidates() []Relay {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := make([]Relay, 0, len(p.relays))
	var cooling []Relay
	for _, r := range p.relays {
		if failTime, ok := p.failed[r.Name]; ok {
			if time.Since(failTime) < p.cooldown {
				cooling = append(cooling, r)
				continue
			}
			delete(p.failed, r.Name)
		}
		healthy = append(healthy, r)
	}
	return append(healthy, cooling...)
}

// markFailed puts a relay into cooldown.
func (p *relayPool) markFailed(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[name] = time.Now()
}

// markHealthy clears a relay's cooldown.
func (p *relayPool) markHealthy(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, name)
}
