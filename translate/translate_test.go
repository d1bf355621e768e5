// Package translate contains tests for the translation providers.
package translate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newTestDeepL(t *testing.T, h http.HandlerFunc) *DeepL {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewDeepL(Config{
		APIKey:     "secret",
		BaseURL:    srv.URL,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})
}

// ---------------------------------------------------------------------------
// DeepL
// ---------------------------------------------------------------------------

func TestDeepL_Translate(t *testing.T) {
	var got url.Values
	var auth string
	d := newTestDeepL(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(body))
		io.WriteString(w, `{"translations":[{"detected_source_language":"DE","text":"Save"},{"detected_source_language":"DE","text":"Open (FR)"}]}`)
	})

	out, err := d.Translate(context.Background(), []string{"Speichern", "Öffnen"}, "de", "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if diff := cmp.Diff([]string{"Save", "Open"}, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if auth != "DeepL-Auth-Key secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if diff := cmp.Diff([]string{"Speichern", "Öffnen"}, got["text"]); diff != "" {
		t.Errorf("text fields mismatch:\n%s", diff)
	}
	if got.Get("source_lang") != "DE" || got.Get("target_lang") != "EN-GB" {
		t.Errorf("langs = %q -> %q", got.Get("source_lang"), got.Get("target_lang"))
	}
}

func TestDeepL_AutoSourceOmitted(t *testing.T) {
	var form url.Values
	d := newTestDeepL(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		io.WriteString(w, `{"translations":[{"text":"Chien"}]}`)
	})
	if _, err := d.Translate(context.Background(), []string{"Dog"}, AutoDetect, "fr"); err != nil {
		t.Fatal(err)
	}
	if _, ok := form["source_lang"]; ok {
		t.Errorf("source_lang sent for auto detection: %v", form)
	}
	if form.Get("target_lang") != "FR" {
		t.Errorf("target_lang = %q", form.Get("target_lang"))
	}
}

func TestDeepL_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusForbidden, ErrAuth},
		{http.StatusUnauthorized, ErrAuth},
		{456, ErrQuotaExceeded},
	}
	for _, tc := range cases {
		var calls int32
		d := newTestDeepL(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(tc.status)
		})
		_, err := d.Translate(context.Background(), []string{"x"}, "de", "fr")
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: error = %v, want %v", tc.status, err, tc.want)
		}
		var pe *ProviderError
		if !errors.As(err, &pe) || pe.Status != tc.status {
			t.Errorf("status %d: ProviderError = %+v", tc.status, pe)
		}
		if n := atomic.LoadInt32(&calls); n != 1 {
			t.Errorf("status %d: %d calls, want no retry", tc.status, n)
		}
	}
}

func TestDeepL_RetriesServerErrorsAndRateLimit(t *testing.T) {
	var calls int32
	d := newTestDeepL(t, func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			io.WriteString(w, `{"translations":[{"text":"ok"}]}`)
		}
	})
	out, err := d.Translate(context.Background(), []string{"x"}, "de", "fr")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if n := atomic.LoadInt32(&calls); out[0] != "ok" || n != 3 {
		t.Errorf("out=%v calls=%d", out, n)
	}
}

func TestDeepL_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	d := newTestDeepL(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := d.Translate(context.Background(), []string{"x"}, "de", "fr")
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Status != http.StatusServiceUnavailable {
		t.Fatalf("error = %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestDeepL_CountMismatch(t *testing.T) {
	d := newTestDeepL(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"translations":[{"text":"one"}]}`)
	})
	if _, err := d.Translate(context.Background(), []string{"a", "b"}, "de", "fr"); err == nil {
		t.Fatal("expected error for short response")
	}
}

func TestDeepL_Usage(t *testing.T) {
	d := newTestDeepL(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/usage" || r.Method != http.MethodGet {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"character_count":4000,"character_limit":5000}`)
	})
	u, err := d.Usage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u.Characters != 4000 || u.Limit != 5000 || u.Remaining() != 1000 {
		t.Errorf("usage = %+v remaining=%d", u, u.Remaining())
	}
}

func TestNewDeepL_FreeKeyEndpoint(t *testing.T) {
	if got := NewDeepL(Config{APIKey: "abc:fx"}).BaseURL(); got != DeepLFreeURL {
		t.Errorf("free key base = %q", got)
	}
	if got := NewDeepL(Config{APIKey: "abc"}).BaseURL(); got != DeepLProURL {
		t.Errorf("pro key base = %q", got)
	}
	if got := NewDeepL(Config{APIKey: "abc:fx", BaseURL: "http://local/v2/"}).BaseURL(); got != "http://local/v2" {
		t.Errorf("custom base = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Google
// ---------------------------------------------------------------------------

func TestGoogle_Translate(t *testing.T) {
	g := NewGoogle(Config{})
	var calls []string
	g.translate = func(text, from, to string) (string, error) {
		calls = append(calls, from+">"+to+":"+text)
		return strings.ToUpper(text) + " (DE)", nil
	}
	out, err := g.Translate(context.Background(), []string{"hund", " ", "katze"}, "auto", "de_DE")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"HUND", " ", "KATZE"}, out); diff != "" {
		t.Errorf("output mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"auto>de:hund", "auto>de:katze"}, calls); diff != "" {
		t.Errorf("calls mismatch:\n%s", diff)
	}
	if _, err := g.Usage(context.Background()); !errors.Is(err, ErrUsageUnsupported) {
		t.Errorf("Usage error = %v", err)
	}
}

func TestGoogle_Error(t *testing.T) {
	g := NewGoogle(Config{})
	g.translate = func(string, string, string) (string, error) { return "", errors.New("boom") }
	_, err := g.Translate(context.Background(), []string{"x"}, "de", "fr")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
}

// ---------------------------------------------------------------------------
// misc
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	if _, err := New(Config{ID: "nope"}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("unknown provider error = %v", err)
	}
	if _, err := New(Config{ID: ProviderDeepL}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("deepl without key error = %v", err)
	}
	p, err := New(Config{ID: ProviderGoogle})
	if err != nil || p.Name() != "Google Translate" {
		t.Errorf("google = %v, %v", p, err)
	}
}

func TestCleanOutput(t *testing.T) {
	cases := map[string]string{
		"Enregistrer (FR)": "Enregistrer",
		"Enregistrer(FR)":  "Enregistrer",
		"Size (XL)":        "Size (XL)",
		"Mode (fr)":        "Mode (fr)",
		"Plain":            "Plain",
	}
	for in, want := range cases {
		if got := CleanOutput(in); got != want {
			t.Errorf("CleanOutput(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseRetryDelay(t *testing.T) {
	fallback := 7 * time.Second
	if d := parseRetryDelay("", fallback); d != fallback {
		t.Errorf("empty = %v", d)
	}
	if d := parseRetryDelay("3", fallback); d != 3*time.Second {
		t.Errorf("seconds = %v", d)
	}
	if d := parseRetryDelay("soon", fallback); d != fallback {
		t.Errorf("garbage = %v", d)
	}
}

func TestUsageRemaining(t *testing.T) {
	if r := (Usage{Characters: 10}).Remaining(); r != -1 {
		t.Errorf("unknown limit = %d", r)
	}
	if r := (Usage{Characters: 60, Limit: 50}).Remaining(); r != 0 {
		t.Errorf("over limit = %d", r)
	}
}
