package models

import "time"

// Site identifies a supported listing portal.
type Site string

const (
	SiteIdealista  Site = "idealista"
	SiteImovirtual Site = "imovirtual"
	SiteOLX        Site = "olx"
	SiteSupercasa  Site = "supercasa"
	SiteCasaSapo   Site = "casasapo"
	SiteUnknown    Site = "unknown"
)

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PropertyRecord is the normalized output of an acquisition.
//
// Fields the extractor cannot confidently resolve are nil, never a
// placeholder string. Downstream logic treats Title == nil as a hard
// extraction failure.
type PropertyRecord struct {
	Title       *string      `json:"title"`
	Price       *float64     `json:"price"`
	Location    *string      `json:"location"`
	Area        *int         `json:"area"` // m²
	Bedrooms    *int         `json:"bedrooms"`
	Bathrooms   *int         `json:"bathrooms"`
	Images      []string     `json:"images"` // de-duplicated, discovery order
	Description *string      `json:"description"`
	Features    []string     `json:"features"` // de-duplicated short tags
	Coordinates *Coordinates `json:"coordinates"`

	SourceURL   string    `json:"source_url"`
	PropertyID  string    `json:"property_id,omitempty"`
	Site        Site      `json:"site"`
	RetrievedAt time.Time `json:"retrieved_at"`

	// Placeholder marks a record substituted after extraction failed;
	// none of its data fields describe the requested listing.
	Placeholder bool `json:"placeholder,omitempty"`
}

// ChallengeType classifies an interactive anti-bot challenge on a page.
type ChallengeType string

const (
	ChallengeRecaptchaV2 ChallengeType = "recaptcha-v2"
	ChallengeRecaptchaV3 ChallengeType = "recaptcha-v3"
	ChallengeHCaptcha    ChallengeType = "hcaptcha"
	ChallengeGeneric     ChallengeType = "generic"
)

// TaskStatus is the lifecycle state of one CAPTCHA solve attempt.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskSolved   TaskStatus = "solved"
	TaskFailed   TaskStatus = "failed"
	TaskTimedOut TaskStatus = "timed_out"
)

// CaptchaTask tracks one solving task at an external provider.
// It lives only for the duration of a single solve attempt.
type CaptchaTask struct {
	ProviderID string        `json:"provider_id"`
	TaskID     string        `json:"task_id"`
	Challenge  ChallengeType `json:"challenge"`
	SiteKey    string        `json:"site_key"`
	PageURL    string        `json:"page_url"`
	CreatedAt  time.Time     `json:"created_at"`
	Status     TaskStatus    `json:"status"`
}

// FetchMode selects the fetch engine for an acquisition.
type FetchMode string

const (
	ModeAuto    FetchMode = "auto"
	ModeStatic  FetchMode = "static"
	ModeBrowser FetchMode = "browser"
)

// RequestOptions contains options for a single acquisition request.
type RequestOptions struct {
	URL     string
	Mode    FetchMode
	Headers map[string]string
	Timeout time.Duration
}

// FetchResult is the raw outcome of a page fetch, before extraction.
type FetchResult struct {
	URL          string
	StatusCode   int
	HTML         string
	Relay        string // empty when fetched directly
	FetchedAt    time.Time
	ResponseTime int64 // milliseconds
}

// ScopeStats reports rate-limit state for one scope (global or per site).
type ScopeStats struct {
	Requests        int           `json:"requests"`
	MaxRequests     int           `json:"max_requests"`
	WindowRemaining time.Duration `json:"window_remaining"`
	BackoffLevel    int           `json:"backoff_level,omitempty"`
	BackoffStrategy string        `json:"backoff_strategy,omitempty"`
}

// RateStats reports rate-limit state across all scopes.
type RateStats struct {
	Global ScopeStats            `json:"global"`
	Sites  map[string]ScopeStats `json:"sites"`
}

// ProviderStats reports CAPTCHA provider selection state.
type ProviderStats struct {
	Current    string   `json:"current"`
	Available  []string `json:"available"`
	Configured []string `json:"configured"`
}

// CacheStats reports record-cache effectiveness.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}
