package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel    = "info"
	DefaultJSONLog     = false
	DefaultUserAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultHTTPTimeout = 30 * time.Second

	DefaultGlobalWindow      = 60 * time.Second
	DefaultGlobalMaxRequests = 10
	DefaultSiteWindow        = 30 * time.Second
	DefaultSiteMaxRequests   = 3

	DefaultBrowserPoolSize    = 2
	DefaultMaxBrowserPoolSize = 8
	DefaultBrowserHeadless    = true

	DefaultCaptchaMaxWait      = 120 * time.Second
	DefaultCaptchaPollInterval = 5 * time.Second

	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 256

	DefaultListenAddr = ":8080"
)
