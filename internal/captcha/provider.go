package captcha

import (
	"context"
	"net/http"
	"strings"

	"github.com/propscout/propscout/pkg/models"
)

// Provider is the capability interface every solving provider implements.
// Adding a provider means adding one implementation, not branching inside
// the orchestrator.
type Provider interface {
	// Name returns the provider identifier (e.g. "2captcha").
	Name() string

	// Configured reports whether usable credentials are present.
	Configured() bool

	// Submit creates a solving task and returns the provider's task id.
	Submit(ctx context.Context, challenge models.ChallengeType, siteKey, pageURL string) (string, error)

	// Poll checks a task once. done is false while the provider is still
	// working; a non-nil error is terminal for the task.
	Poll(ctx context.Context, taskID string) (token string, done bool, err error)
}

// ProviderConfig holds static per-provider credentials and endpoints.
// Read-only after initialization.
type ProviderConfig struct {
	ID        string
	APIKey    string
	SubmitURL string
	ResultURL string
}

// configured reports whether an API key looks real (set and not a
// template placeholder).
func (c ProviderConfig) configured() bool {
	return c.APIKey != "" && !strings.Contains(c.APIKey, "YOUR_")
}

// NewProviders builds provider implementations from their configs in
// listed order. Unknown ids are skipped.
func NewProviders(cfgs []ProviderConfig, client *http.Client) []Provider {
	if client == nil {
		client = http.DefaultClient
	}
	var out []Provider
	for _, cfg := range cfgs {
		switch cfg.ID {
		case TwoCaptchaID:
			out = append(out, NewTwoCaptcha(cfg, client))
		case AntiCaptchaID:
			out = append(out, NewAntiCaptcha(cfg, client))
		}
	}
	return out
}
