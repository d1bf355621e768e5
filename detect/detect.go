// Package detect finds the entries of a loaded bundle that still need
// translation.
//
// On disk, a value waiting for translation carries a trailing locale
// marker such as " (FR)". The marker is written when a locale file is
// first created from the reference bundle. Everywhere else in bundlekit
// the state is carried as a typed Status.
package detect

import (
	"strings"
	"unicode/utf8"

	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/propfile"
	"github.com/minios-linux/bundlekit/scan"
)

// Status is the translation state of one entry.
type Status int

const (
	Translated Status = iota
	NeedsTranslation
	Missing
)

func (s Status) String() string {
	switch s {
	case Translated:
		return "translated"
	case NeedsTranslation:
		return "needs-translation"
	case Missing:
		return "missing"
	}
	return "unknown"
}

// Reason tells where the source text of an untranslated entry came from.
type Reason int

const (
	// ReasonMarker: the value without its marker is the source text.
	ReasonMarker Reason = iota
	// ReasonEmpty: the value was empty; the reference value is used.
	ReasonEmpty
	// ReasonMisencoded: the marked value looked garbled; the reference
	// value is used instead.
	ReasonMisencoded
)

// Entry is one bundle entry that needs translation.
type Entry struct {
	Key    string
	Locale string
	// Value is the current on-disk value.
	Value string
	// Source is the text to translate, marker stripped.
	Source string
	File   string
	Line   int
	Status Status
	Reason Reason
}

// Marker returns the on-disk marker for a locale code.
func Marker(code string) string {
	return locale.Marker(code)
}

// StripMarker removes the target locale marker and surrounding whitespace.
// Values without the marker are returned unchanged.
func StripMarker(value, code string) string {
	if v, m := strings.TrimRight(value, trailingSpace), Marker(code); strings.HasSuffix(v, m) {
		return strings.TrimSpace(strings.TrimSuffix(v, m))
	}
	return value
}

// trailingSpace may follow the marker on disk.
const trailingSpace = " \t\f"

// Classify returns the status of a value for the target locale. A
// whitespace-only value is Missing.
func Classify(value, code string) Status {
	v := strings.TrimRight(value, trailingSpace)
	switch {
	case v == "":
		return Missing
	case strings.HasSuffix(v, Marker(code)):
		return NeedsTranslation
	}
	return Translated
}

// Misencoded reports whether a value looks like it was decoded with the
// wrong charset: it contains U+FFFD, a '?' anywhere except at the end, or
// the "Ã" + Latin-1 continuation pattern left by UTF-8 read as Latin-1.
func Misencoded(value string) bool {
	if strings.ContainsRune(value, utf8.RuneError) {
		return true
	}
	if i := strings.IndexByte(value, '?'); i >= 0 && i != len(value)-1 {
		return true
	}
	runes := []rune(value)
	for i := 0; i+1 < len(runes); i++ {
		if (runes[i] == 'Ã' || runes[i] == 'Â') && runes[i+1] >= 0x80 && runes[i+1] <= 0xBF {
			return true
		}
	}
	return false
}

// Untranslated returns the entries of b that need translation into code,
// in document order. Values that are neither empty nor marked are never
// returned.
func Untranslated(b *scan.Bundle, code string) []Entry {
	return untranslated(b.File, b.Reference, b.Path, code)
}

// UntranslatedFile is Untranslated for a bare file with an optional
// reference.
func UntranslatedFile(f, ref *propfile.File, path, code string) []Entry {
	return untranslated(f, ref, path, code)
}

func untranslated(f, ref *propfile.File, path, code string) []Entry {
	code = locale.Normalize(code)
	var out []Entry
	for _, e := range f.Entries() {
		status := Classify(e.Value, code)
		if status == Translated {
			continue
		}
		entry := Entry{
			Key:    e.Key,
			Locale: code,
			Value:  e.Value,
			File:   path,
			Line:   e.Line,
			Status: status,
		}
		refValue := ""
		if ref != nil {
			refValue, _ = ref.Get(e.Key)
		}

		switch status {
		case Missing:
			entry.Reason = ReasonEmpty
			entry.Source = refValue
		case NeedsTranslation:
			entry.Source = StripMarker(e.Value, code)
			entry.Reason = ReasonMarker
			if Misencoded(entry.Source) && refValue != "" {
				entry.Source = refValue
				entry.Reason = ReasonMisencoded
			}
		}
		out = append(out, entry)
	}
	return out
}

// Suspicious returns keys whose translated value looks mis-encoded. These
// are not scheduled for translation; they are reported for review.
func Suspicious(f *propfile.File, code string) []string {
	var keys []string
	for _, e := range f.Entries() {
		if Classify(e.Value, code) == Translated && Misencoded(e.Value) {
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Counts summarises the statuses of all entries in f.
type Counts struct {
	Total            int
	Translated       int
	NeedsTranslation int
	Missing          int
}

// Count classifies every entry of f.
func Count(f *propfile.File, code string) Counts {
	var c Counts
	for _, e := range f.Entries() {
		c.Total++
		switch Classify(e.Value, code) {
		case Translated:
			c.Translated++
		case NeedsTranslation:
			c.NeedsTranslation++
		case Missing:
			c.Missing++
		}
	}
	return c
}
