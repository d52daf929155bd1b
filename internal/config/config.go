// Package config assembles runtime configuration from defaults, an
// optional .env file, PROPSCOUT_* environment variables, stored
// credentials and CLI flags, in that precedence order.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Config holds application configuration values.
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// HTTP / fetching
	HTTPTimeout time.Duration
	UserAgent   string

	// Rate limiting (fixed windows)
	GlobalWindow      time.Duration
	GlobalMaxRequests int
	SiteWindow        time.Duration
	SiteMaxRequests   int

	// Browser engine
	BrowserPoolSize int
	BrowserHeadless bool
	ChromePath      string

	// CAPTCHA providers
	TwoCaptchaKey       string
	AntiCaptchaKey      string
	CaptchaMaxWait      time.Duration
	CaptchaPollInterval time.Duration

	// Caching
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Pipeline policy
	AllowPlaceholder bool

	// API server
	ListenAddr string
}

// Load builds a Config by combining defaults, an optional .env file,
// environment variables, stored provider credentials and CLI flags.
// Caller should pass the root *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	loadEnvFile(cmd)

	cfg := &Config{
		LogLevel:            DefaultLogLevel,
		JSONLog:             DefaultJSONLog,
		HTTPTimeout:         DefaultHTTPTimeout,
		UserAgent:           DefaultUserAgent,
		GlobalWindow:        DefaultGlobalWindow,
		GlobalMaxRequests:   DefaultGlobalMaxRequests,
		SiteWindow:          DefaultSiteWindow,
		SiteMaxRequests:     DefaultSiteMaxRequests,
		BrowserPoolSize:     DefaultBrowserPoolSize,
		BrowserHeadless:     DefaultBrowserHeadless,
		CaptchaMaxWait:      DefaultCaptchaMaxWait,
		CaptchaPollInterval: DefaultCaptchaPollInterval,
		CacheTTL:            DefaultCacheTTL,
		CacheMaxEntries:     DefaultCacheMaxEntries,
		ListenAddr:          DefaultListenAddr,
	}

	// Environment overrides
	if v := os.Getenv("PROPSCOUT_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("PROPSCOUT_CHROME_PATH"); v != "" {
		cfg.ChromePath = v
	}
	if v := os.Getenv("PROPSCOUT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PROPSCOUT_TWOCAPTCHA_KEY"); v != "" {
		cfg.TwoCaptchaKey = v
	}
	if v := os.Getenv("PROPSCOUT_ANTICAPTCHA_KEY"); v != "" {
		cfg.AntiCaptchaKey = v
	}
	if v := os.Getenv("PROPSCOUT_ALLOW_PLACEHOLDER"); v == "true" || v == "1" {
		cfg.AllowPlaceholder = true
	}
	if v := os.Getenv("PROPSCOUT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	// Keys not in the environment fall back to the OS keychain.
	if cfg.TwoCaptchaKey == "" {
		if key, err := ProviderKey(TwoCaptchaCredential); err == nil {
			cfg.TwoCaptchaKey = key
		}
	}
	if cfg.AntiCaptchaKey == "" {
		if key, err := ProviderKey(AntiCaptchaCredential); err == nil {
			cfg.AntiCaptchaKey = key
		}
	}

	// CLI flag overrides
	if cmd != nil {
		if f := cmd.Flags().Lookup("user-agent"); f != nil {
			if s := f.Value.String(); s != "" {
				cfg.UserAgent = s
			}
		}
		if f := cmd.Flags().Lookup("timeout"); f != nil {
			if s := f.Value.String(); s != "" {
				if d, err := time.ParseDuration(s); err == nil {
					cfg.HTTPTimeout = d
				}
			}
		}
		if f := cmd.Flags().Lookup("json"); f != nil {
			if f.Value.String() == "true" {
				cfg.JSONLog = true
			}
		}
		if f := cmd.Flags().Lookup("verbose"); f != nil {
			if f.Value.String() == "true" {
				cfg.LogLevel = "debug"
			}
		}
		if f := cmd.Flags().Lookup("quiet"); f != nil {
			if f.Value.String() == "true" {
				cfg.LogLevel = "error"
			}
		}
		if f := cmd.Flags().Lookup("placeholder"); f != nil {
			if f.Value.String() == "true" {
				cfg.AllowPlaceholder = true
			}
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadEnvFile loads variables from --env-file when given, otherwise from
// a .env in the working directory if present.
func loadEnvFile(cmd *cobra.Command) {
	path := ""
	if cmd != nil {
		if f := cmd.Flags().Lookup("env-file"); f != nil {
			path = f.Value.String()
		}
	}
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			log.Warn().Str("path", path).Err(err).Msg("failed to load env file")
		}
		return
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Warn().Err(err).Msg("failed to load .env")
		}
	}
}
