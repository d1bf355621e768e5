// Package settings stores translation provider credentials.
//
// The store lives in $XDG_DATA_HOME/bundlekit/credentials.yaml (default
// ~/.local/share/bundlekit/), mode 0600, keyed by provider ID:
//
//	deepl:
//	    key: xxxxxxxx:fx
//	    base_url: https://api-free.deepl.com/v2
//	    updated: 2026-01-02T15:04:05Z
//
// Keys given on the command line or in BUNDLEKIT_API_KEY / DEEPL_AUTH_KEY
// take precedence, see ResolveAPIKey.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	dataDirName = "bundlekit"
	fileName    = "credentials.yaml"
)

// ErrEmptyKey is returned when storing an empty API key.
var ErrEmptyKey = errors.New("empty API key")

// Info is the stored entry of one provider.
type Info struct {
	Key string `yaml:"key"`
	// BaseURL overrides the provider endpoint, e.g. the DeepL free API.
	BaseURL string    `yaml:"base_url,omitempty"`
	Updated time.Time `yaml:"updated,omitempty"`
}

// Store maps provider IDs to their credentials.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// Location
// ---------------------------------------------------------------------------

// DataDir returns the bundlekit data directory.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the store path for display, "" when it cannot be
// determined.
func FilePath() string {
	p, _ := filePath()
	return p
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the store. A missing or unparsable file yields an empty store.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return Store{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Store{}
	}
	var s Store
	if err := yaml.Unmarshal(data, &s); err != nil || s == nil {
		return Store{}
	}
	for id, info := range s {
		if info == nil {
			delete(s, id)
		}
	}
	return s
}

// Save replaces the store file. The new content is written to a temporary
// file in the same directory and renamed over the old one.
func Save(s Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, fileName+".*")
	if err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Store operations
// ---------------------------------------------------------------------------

// Set records key for providerID. An empty baseURL keeps the stored one.
func (s Store) Set(providerID, key, baseURL string, now time.Time) error {
	if key == "" {
		return ErrEmptyKey
	}
	info := &Info{Key: key, BaseURL: baseURL, Updated: now.UTC().Truncate(time.Second)}
	if old := s[providerID]; old != nil && baseURL == "" {
		info.BaseURL = old.BaseURL
	}
	s[providerID] = info
	return nil
}

// Providers returns the IDs with stored credentials, sorted.
func (s Store) Providers() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the stored entry for a provider, nil when there is none.
func Get(providerID string) *Info {
	return Load()[providerID]
}

// SetAPIKey stores key for a provider, keeping a stored base URL.
func SetAPIKey(providerID, key string) error {
	return SetAPIKeyWithBaseURL(providerID, key, "")
}

// SetAPIKeyWithBaseURL stores key and an endpoint override for a provider.
func SetAPIKeyWithBaseURL(providerID, key, baseURL string) error {
	s := Load()
	if err := s.Set(providerID, key, baseURL, time.Now()); err != nil {
		return err
	}
	return Save(s)
}

// GetAPIKey returns the stored key, "" when there is none.
func GetAPIKey(providerID string) string {
	if info := Get(providerID); info != nil {
		return info.Key
	}
	return ""
}

// GetBaseURL returns the stored endpoint override, "" when there is none.
func GetBaseURL(providerID string) string {
	if info := Get(providerID); info != nil {
		return info.BaseURL
	}
	return ""
}

// ResolveAPIKey picks the first non-empty key of: flag, environment, store.
func ResolveAPIKey(providerID, flagKey, envKey string) string {
	switch {
	case flagKey != "":
		return flagKey
	case envKey != "":
		return envKey
	}
	return GetAPIKey(providerID)
}

// Remove deletes the entry of one provider. Removing an unknown provider
// is a no-op.
func Remove(providerID string) error {
	s := Load()
	if _, ok := s[providerID]; !ok {
		return nil
	}
	delete(s, providerID)
	return Save(s)
}

// RemoveAll deletes the store file.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}

// MaskKey shortens a key for display, showing only its ends.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
