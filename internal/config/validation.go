package config

import "fmt"

func validate(c *Config) error {
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be > 0")
	}
	if c.GlobalMaxRequests <= 0 || c.SiteMaxRequests <= 0 {
		return fmt.Errorf("rate limit request caps must be > 0")
	}
	if c.SiteMaxRequests > c.GlobalMaxRequests {
		return fmt.Errorf("per-site cap (%d) cannot exceed the global cap (%d)", c.SiteMaxRequests, c.GlobalMaxRequests)
	}
	if c.BrowserPoolSize <= 0 || c.BrowserPoolSize > DefaultMaxBrowserPoolSize {
		return fmt.Errorf("browser pool size must be between 1 and %d", DefaultMaxBrowserPoolSize)
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be > 0")
	}
	if c.CaptchaPollInterval >= c.CaptchaMaxWait {
		return fmt.Errorf("captcha poll interval must be shorter than the max wait")
	}
	return nil
}
