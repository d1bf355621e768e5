// Package translate implements machine translation providers for bundle
// values: DeepL (HTTP API with usage endpoint) and the free Google
// Translate backend.
//
// A provider translates an ordered list of strings and returns the results
// in the same order. Batching and quota accounting are left to the caller.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/minios-linux/bundlekit/locale"
)

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderDeepL  = "deepl"
	ProviderGoogle = "google"
)

// AutoDetect as source language lets the provider detect it.
const AutoDetect = "auto"

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrAuth is returned when the provider rejects the credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrQuotaExceeded is returned when the character quota is used up.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUsageUnsupported is returned by providers without a usage endpoint.
	ErrUsageUnsupported = errors.New("usage query not supported")
	// ErrUnknownProvider is returned by New for an unknown provider ID.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingKey is returned by New when a provider needs an API key.
	ErrMissingKey = errors.New("missing API key")
)

// ProviderError is a failed provider call.
type ProviderError struct {
	Provider string
	// Status is the HTTP status, 0 when the request never got a response.
	Status int
	Body   string
	Err    error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", truncate(e.Body, 200))
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Usage is the provider's character quota state.
type Usage struct {
	Characters int64 `json:"character_count"`
	Limit      int64 `json:"character_limit"`
}

// Remaining returns the characters left, or -1 when the limit is unknown.
func (u Usage) Remaining() int64 {
	if u.Limit <= 0 {
		return -1
	}
	if u.Characters >= u.Limit {
		return 0
	}
	return u.Limit - u.Characters
}

// Provider translates ordered lists of strings.
type Provider interface {
	// Name is the display name used in logs and errors.
	Name() string
	// Translate returns one translation per text, in input order.
	Translate(ctx context.Context, texts []string, source, target string) ([]string, error)
	// Usage reports the quota state, or ErrUsageUnsupported.
	Usage(ctx context.Context) (Usage, error)
}

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Config holds the settings for a translation service.
type Config struct {
	// ID is the provider identifier (deepl, google).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL; empty selects the provider default.
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout.
	Timeout time.Duration
	// MaxRetries is the number of retries on 429, 5xx and network errors.
	MaxRetries int
	// Backoff is the base wait between retries, doubled per attempt.
	Backoff time.Duration
	// Verbose enables [DEBUG] request logging.
	Verbose bool
}

func (c *Config) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 60 * time.Second
}

func (c *Config) effectiveMaxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 3
}

func (c *Config) effectiveBackoff() time.Duration {
	if c.Backoff > 0 {
		return c.Backoff
	}
	return time.Second
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Config {
	return map[string]Config{
		ProviderDeepL: {
			ID:      ProviderDeepL,
			Name:    "DeepL",
			BaseURL: DeepLProURL,
			Timeout: 60 * time.Second,
		},
		ProviderGoogle: {
			ID:      ProviderGoogle,
			Name:    "Google Translate",
			Timeout: 30 * time.Second,
		},
	}
}

// New builds the provider selected by cfg.ID. Empty fields are filled from
// DefaultProviders.
func New(cfg Config) (Provider, error) {
	def, ok := DefaultProviders()[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.ID)
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	switch cfg.ID {
	case ProviderDeepL:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s: %w", cfg.Name, ErrMissingKey)
		}
		return NewDeepL(cfg), nil
	default:
		return NewGoogle(cfg), nil
	}
}

// ---------------------------------------------------------------------------
// HTTP client with real proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	// Support both the proxy setting and HTTP_PROXY/HTTPS_PROXY env vars
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ---------------------------------------------------------------------------
// Rate limit: retry delay from a 429 response
// ---------------------------------------------------------------------------

// parseRetryDelay reads a Retry-After header given in seconds or as an
// HTTP date. Returns fallback when the header is missing or malformed.
func parseRetryDelay(header string, fallback time.Duration) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ---------------------------------------------------------------------------
// Output cleanup
// ---------------------------------------------------------------------------

var echoedMarker = regexp.MustCompile(`\s*\(([A-Za-z]{2})\)$`)

// CleanOutput removes a trailing locale marker that a provider echoed
// back from the source text. Parenthesised two-letter suffixes that are not
// known locale codes are kept.
func CleanOutput(text string) string {
	m := echoedMarker.FindStringSubmatchIndex(text)
	if m == nil {
		return text
	}
	code := text[m[2]:m[3]]
	if code != strings.ToUpper(code) || !locale.Known(code) {
		return text
	}
	return text[:m[0]]
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
