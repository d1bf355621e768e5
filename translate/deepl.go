package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minios-linux/bundlekit/locale"
)

// DeepL API endpoints. Keys ending in ":fx" belong to the free plan.
const (
	DeepLProURL  = "https://api.deepl.com/v2"
	DeepLFreeURL = "https://api-free.deepl.com/v2"
)

// DeepL status codes outside the standard set.
const statusQuotaExceeded = 456

// defaultRateLimitDelay is used when a 429 carries no Retry-After header.
const defaultRateLimitDelay = 5 * time.Second

// DeepL translates through the DeepL v2 HTTP API.
type DeepL struct {
	cfg    Config
	base   string
	client *http.Client
}

// NewDeepL returns a DeepL provider. An empty BaseURL is derived from the
// key: free keys use the free endpoint.
func NewDeepL(cfg Config) *DeepL {
	base := cfg.BaseURL
	if base == "" || base == DeepLProURL {
		base = DeepLProURL
		if strings.HasSuffix(cfg.APIKey, ":fx") {
			base = DeepLFreeURL
		}
	}
	if cfg.Name == "" {
		cfg.Name = "DeepL"
	}
	return &DeepL{
		cfg:    cfg,
		base:   strings.TrimRight(base, "/"),
		client: makeHTTPClient(cfg.Proxy, cfg.effectiveTimeout()),
	}
}

// Name implements Provider.
func (d *DeepL) Name() string { return d.cfg.Name }

// BaseURL returns the endpoint in use.
func (d *DeepL) BaseURL() string { return d.base }

// deeplLang maps a locale code to a DeepL language code. DeepL rejects a
// bare "EN" as target and wants a variant.
func deeplLang(code string, target bool) string {
	c := strings.ToUpper(locale.Normalize(code))
	if target {
		switch c {
		case "EN":
			return "EN-GB"
		case "PT":
			return "PT-PT"
		}
	}
	return c
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// Translate implements Provider. All texts go out in one request.
func (d *DeepL) Translate(ctx context.Context, texts []string, source, target string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	form := url.Values{}
	for _, t := range texts {
		form.Add("text", t)
	}
	if source != "" && !strings.EqualFold(source, AutoDetect) {
		form.Set("source_lang", deeplLang(source, false))
	}
	form.Set("target_lang", deeplLang(target, true))

	body, err := d.do(ctx, http.MethodPost, "/translate", form)
	if err != nil {
		return nil, err
	}

	var resp deeplResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ProviderError{Provider: d.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(resp.Translations) != len(texts) {
		return nil, &ProviderError{
			Provider: d.Name(),
			Err:      fmt.Errorf("got %d translations for %d texts", len(resp.Translations), len(texts)),
		}
	}
	out := make([]string, len(texts))
	for i, tr := range resp.Translations {
		out[i] = CleanOutput(tr.Text)
	}
	return out, nil
}

// Usage implements Provider.
func (d *DeepL) Usage(ctx context.Context) (Usage, error) {
	body, err := d.do(ctx, http.MethodGet, "/usage", nil)
	if err != nil {
		return Usage{}, err
	}
	var u Usage
	if err := json.Unmarshal(body, &u); err != nil {
		return Usage{}, &ProviderError{Provider: d.Name(), Err: fmt.Errorf("decoding usage: %w", err)}
	}
	return u, nil
}

// do sends one API request with retries on network errors, 429 and 5xx.
func (d *DeepL) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	endpoint := d.base + path
	maxRetries := d.cfg.effectiveMaxRetries()
	backoff := d.cfg.effectiveBackoff()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var reqBody io.Reader
		if form != nil {
			reqBody = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "DeepL-Auth-Key "+d.cfg.APIKey)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		if d.cfg.Verbose {
			log.Printf("[DEBUG] %s attempt %d: %s %s", d.Name(), attempt+1, method, endpoint)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			if attempt < maxRetries {
				wait := time.Duration(math.Pow(2, float64(attempt))) * backoff
				if err := sleep(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &ProviderError{Provider: d.Name(), Err: fmt.Errorf("request failed: %w", err)}
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return respBody, nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &ProviderError{Provider: d.Name(), Status: resp.StatusCode, Body: string(respBody), Err: ErrAuth}

		case resp.StatusCode == statusQuotaExceeded:
			return nil, &ProviderError{Provider: d.Name(), Status: resp.StatusCode, Body: string(respBody), Err: ErrQuotaExceeded}

		case resp.StatusCode == http.StatusTooManyRequests:
			retryDelay := parseRetryDelay(resp.Header.Get("Retry-After"), defaultRateLimitDelay)
			if d.cfg.Verbose {
				log.Printf("[WARN] 429 rate limited, waiting %v before retry (attempt %d/%d)", retryDelay, attempt+1, maxRetries)
			}
			if attempt < maxRetries {
				if err := sleep(ctx, retryDelay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &ProviderError{
				Provider: d.Name(),
				Status:   resp.StatusCode,
				Body:     string(respBody),
				Err:      fmt.Errorf("rate limited after %d retries", maxRetries),
			}

		case resp.StatusCode >= 500 && attempt < maxRetries:
			wait := time.Duration(math.Pow(2, float64(attempt))) * backoff
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		return nil, &ProviderError{Provider: d.Name(), Status: resp.StatusCode, Body: string(respBody)}
	}

	return nil, &ProviderError{Provider: d.Name(), Err: fmt.Errorf("exhausted all %d retries", maxRetries)}
}
