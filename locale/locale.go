// Package locale provides the registry of locales bundlekit manages,
// together with the text encoding each locale's bundle files are stored in.
//
// The table is fixed at build time. Lookups normalise the code first
// (de_DE, de-DE and DE all resolve to "de") and fall back to German when
// the code is unknown, matching how the bundles were historically
// generated.
package locale

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Charset names as understood by the charset package.
const (
	CharsetLatin1 = "ISO-8859-1"
	CharsetLatin2 = "ISO-8859-2"
	CharsetUTF8   = "UTF-8"
)

// Default is the fallback locale code for unknown lookups.
const Default = "de"

// Spec describes one supported locale.
type Spec struct {
	// Code is the lower-case ISO 639-1 code used in file names.
	Code string
	// Name is the native display name.
	Name string
	// Charset is the encoding of the locale's bundle files.
	Charset string
}

// Registry contains every supported locale keyed by code.
var Registry = map[string]Spec{
	"de": {Code: "de", Name: "Deutsch", Charset: CharsetLatin1},
	"en": {Code: "en", Name: "English", Charset: CharsetLatin1},
	"es": {Code: "es", Name: "Español", Charset: CharsetLatin1},
	"fr": {Code: "fr", Name: "Français", Charset: CharsetLatin1},
	"hu": {Code: "hu", Name: "Magyar", Charset: CharsetLatin2},
	"it": {Code: "it", Name: "Italiano", Charset: CharsetLatin1},
	"nl": {Code: "nl", Name: "Nederlands", Charset: CharsetLatin1},
	"ro": {Code: "ro", Name: "Română", Charset: CharsetLatin2},
	"ru": {Code: "ru", Name: "Русский", Charset: CharsetUTF8},
}

// Normalize reduces a locale identifier to its lower-case base language.
// Region and script subtags are dropped: "pt_BR" becomes "pt".
func Normalize(code string) string {
	trimmed := strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
	if trimmed == "" {
		return ""
	}
	if tag, err := language.Parse(trimmed); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}
	parts := strings.SplitN(trimmed, "-", 2)
	return strings.ToLower(parts[0])
}

// Known reports whether code resolves to a registry entry without falling back.
func Known(code string) bool {
	_, ok := Registry[Normalize(code)]
	return ok
}

// Lookup returns the spec for code, falling back to German.
func Lookup(code string) Spec {
	if s, ok := Registry[Normalize(code)]; ok {
		return s
	}
	return Registry[Default]
}

// Codes returns all registry codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(Registry))
	for c := range Registry {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Marker returns the " (XX)" suffix flagging a value as needing
// translation into code.
func Marker(code string) string {
	return " (" + strings.ToUpper(Normalize(code)) + ")"
}
