// Package i18n translates bundlekit's own messages.
//
// Catalogs are gettext .po files embedded from
// locales/<lang>/LC_MESSAGES/bundlekit.po. T and N pass the message
// through unchanged when no catalog matches.
package i18n

import (
	"embed"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/leonelquinteros/gotext"
	"golang.org/x/text/language"
)

//go:embed all:locales
var locales embed.FS

const (
	domain     = "bundlekit"
	catalogDir = "locales"
)

var (
	po     *gotext.Locale
	active = "en"
)

// Init selects the catalog for lang, or for the environment's language
// when lang is empty. Regional and encoding variants such as
// "de_AT.UTF-8" fall back to the closest embedded catalog.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}
	active = match(lang)

	po = gotext.NewLocaleFSWithPath(active, locales, catalogDir)
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// Language returns the catalog selected by Init, "en" for none.
func Language() string { return active }

// Available lists the embedded catalogs, sorted.
func Available() []string {
	entries, err := fs.ReadDir(locales, catalogDir)
	if err != nil {
		return nil
	}
	var langs []string
	for _, e := range entries {
		if e.IsDir() {
			langs = append(langs, e.Name())
		}
	}
	sort.Strings(langs)
	return langs
}

// T translates msgid.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N translates a message with plural forms chosen by n.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// match maps a POSIX or BCP 47 locale name to an embedded catalog, "en"
// when none is close enough.
func match(lang string) string {
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return "en"
	}
	avail := Available()
	if len(avail) == 0 {
		return "en"
	}
	tags := make([]language.Tag, 0, len(avail)+1)
	tags = append(tags, language.English)
	for _, a := range avail {
		tags = append(tags, language.Make(a))
	}
	_, idx, conf := language.NewMatcher(tags).Match(tag)
	if conf < language.High || idx == 0 {
		return "en"
	}
	return avail[idx-1]
}

// detectLanguage follows gettext's lookup order: LANGUAGE, LC_ALL,
// LC_MESSAGES, LANG. "C" and "POSIX" mean untranslated.
func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		if i := strings.IndexByte(val, '.'); i >= 0 {
			val = val[:i]
		}
		if val == "" || val == "C" || val == "POSIX" {
			continue
		}
		return val
	}
	return "en"
}
