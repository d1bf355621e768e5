// Package basedata merges externally produced translations into basedata
// files.
//
// A basedata file holds one record per line:
//
//	key§locale§text
//
// All locale variants of a key sit together in a block. A new translation
// is placed directly after the last existing line of its key, so related
// lines stay adjacent for review. Existing lines of the target locale for
// that key are superseded by the new line.
package basedata

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/minios-linux/bundlekit/charset"
	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/wordlist"
)

// ---------------------------------------------------------------------------
// Merge algorithm
// ---------------------------------------------------------------------------

// Stats counts what one merge did.
type Stats struct {
	// Added is the number of synthesized translation lines.
	Added int
	// Superseded is the number of old target-locale lines dropped.
	Superseded int
	// Duplicates is the number of exact duplicate lines dropped.
	Duplicates int
	// Applied lists the translation keys that found a block, in file order.
	Applied []string
}

// Merge returns lines with translations merged in for the target locale.
// sep separates the key, locale and text columns.
func Merge(lines []string, translations map[string]string, target string, sep rune) []string {
	out, _ := merge(lines, translations, target, sep)
	return out
}

// parseLine splits a record into its key and the two-character locale
// column that follows the first separator. Codes longer than two letters
// are read by their first two, so "fra" and "fr" collide.
func parseLine(l, sep string) (key, loc string, ok bool) {
	idx := strings.Index(l, sep)
	if idx < 0 {
		return "", "", false
	}
	rest := []rune(l[idx+len(sep):])
	if len(rest) > 2 {
		rest = rest[:2]
	}
	return l[:idx], string(rest), true
}

func merge(lines []string, translations map[string]string, target string, sep rune) ([]string, Stats) {
	var st Stats
	s := string(sep)
	target = locale.Normalize(target)

	// Pass 1: index of each key's last line.
	last := make(map[string]int)
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if key, _, ok := parseLine(l, s); ok {
			last[key] = i
		}
	}

	// Pass 2: copy forward, dropping superseded and duplicate lines and
	// inserting each new line right after its key's last line.
	out := make([]string, 0, len(lines)+len(translations))
	seen := make(map[string]bool, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			out = append(out, l)
			continue
		}

		key, loc, ok := parseLine(l, s)
		translation, has := "", false
		if ok {
			translation, has = translations[key]
		}

		switch {
		case has && loc == target:
			st.Superseded++
		case seen[l]:
			st.Duplicates++
		default:
			seen[l] = true
			out = append(out, l)
		}

		if has && last[key] == i {
			added := key + s + target + s + translation
			if !seen[added] {
				seen[added] = true
				out = append(out, added)
				st.Added++
			}
			st.Applied = append(st.Applied, key)
		}
	}
	return out, st
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// Options controls file merging.
type Options struct {
	// Separator between columns, default '§'.
	Separator rune
	// Charset of the basedata files, default UTF-8.
	Charset string
	// DryRun computes the result without writing.
	DryRun bool
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) separator() rune {
	if o.Separator != 0 {
		return o.Separator
	}
	return wordlist.DefaultSeparator
}

func (o *Options) charset() string {
	if o.Charset != "" {
		return o.Charset
	}
	return locale.CharsetUTF8
}

// FileResult is the outcome for one file.
type FileResult struct {
	Path    string
	Changed bool
	Stats   Stats
	// Err is set when the file could not be read or written; the file was
	// skipped.
	Err error
}

// Report summarises a merge over several files.
type Report struct {
	Files []FileResult
	// Total is the number of translations offered.
	Total int
	// Unapplied lists the translation keys that matched no block in any
	// file, sorted.
	Unapplied []string
}

// Changed returns the number of rewritten files.
func (r *Report) Changed() int {
	n := 0
	for _, f := range r.Files {
		if f.Changed {
			n++
		}
	}
	return n
}

// Applied returns the number of distinct translation keys that were merged.
func (r *Report) Applied() int {
	return r.Total - len(r.Unapplied)
}

// Err aggregates the per-file errors, nil when every file was processed.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, f := range r.Files {
		if f.Err != nil {
			result = multierror.Append(result, f.Err)
		}
	}
	return result.ErrorOrNil()
}

// MergeFile merges translations into one file and writes it back only
// when the content changed.
func MergeFile(path string, translations map[string]string, target string, opts Options) FileResult {
	res := FileResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = fmt.Errorf("reading %s: %w", path, err)
		return res
	}
	text, err := charset.Decode(data, opts.charset())
	if err != nil {
		res.Err = &charset.EncodingError{Path: path, Expected: opts.charset(), Guess: charset.Guess(data, path), Err: err}
		return res
	}

	eol := "\n"
	if strings.Contains(text, "\r\n") {
		eol = "\r\n"
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	merged, st := merge(lines, translations, target, opts.separator())
	res.Stats = st
	if len(merged) == 0 || slices.Equal(merged, lines) {
		return res
	}

	res.Changed = true
	if opts.DryRun {
		return res
	}
	out, err := charset.Encode(strings.Join(merged, eol)+eol, opts.charset())
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", path, err)
		res.Changed = false
		return res
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		res.Err = fmt.Errorf("writing %s: %w", path, err)
		res.Changed = false
		return res
	}
	opts.log("Updated %s (+%d lines)", path, st.Added)
	return res
}

// MergeFiles merges translations into every path. Unreadable or unwritable
// files are recorded and skipped.
func MergeFiles(paths []string, translations map[string]string, target string, opts Options) *Report {
	rep := &Report{Total: len(translations)}
	applied := make(map[string]bool)
	for _, p := range paths {
		res := MergeFile(p, translations, target, opts)
		if res.Err != nil {
			opts.log("Skipping %s: %v", p, res.Err)
		}
		for _, k := range res.Stats.Applied {
			applied[k] = true
		}
		rep.Files = append(rep.Files, res)
	}
	for k := range translations {
		if !applied[k] {
			rep.Unapplied = append(rep.Unapplied, k)
		}
	}
	slices.Sort(rep.Unapplied)
	return rep
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

// DefaultNames lists the basedata tables that carry translations.
var DefaultNames = []string{
	"abs-req-status-history",
	"cargo-discrepancies",
	"cargo-event-history-reasons",
	"cargo-events",
	"constants",
	"contract-states",
	"contract_types",
	"corporate-regulation-rule-values",
	"corporate-regulation-rules",
	"durations",
	"matrix-dimension-types",
	"price-formula-parameters",
	"price_criteria",
	"roster-kpi-id-suffix",
	"roster-kpi",
	"search-restrictions",
	"shp-discrepancy-remarks",
	"sla-task-attributes",
}

// Layout describes where basedata files live inside a module.
type Layout struct {
	// Dir is the data directory relative to the module root.
	Dir string `yaml:"dir,omitempty"`
	// Prefix precedes each table name.
	Prefix string `yaml:"prefix,omitempty"`
	// ProductSuffix and ProjectSuffix end product and project file names.
	ProductSuffix string `yaml:"product_suffix,omitempty"`
	ProjectSuffix string `yaml:"project_suffix,omitempty"`
	// Names are the table names.
	Names []string `yaml:"names,omitempty"`
}

// DefaultLayout returns the standard liquibase layout.
func DefaultLayout() Layout {
	return Layout{
		Dir:           filepath.Join("database", "liquibase", "latest", "data", "i18n"),
		Prefix:        "localized-",
		ProductSuffix: ".csv",
		ProjectSuffix: "-project.csv",
		Names:         slices.Clone(DefaultNames),
	}
}

// withDefaults fills empty fields from DefaultLayout.
func (l Layout) withDefaults() Layout {
	d := DefaultLayout()
	if l.Dir == "" {
		l.Dir = d.Dir
	}
	if l.Prefix == "" {
		l.Prefix = d.Prefix
	}
	if l.ProductSuffix == "" {
		l.ProductSuffix = d.ProductSuffix
	}
	if l.ProjectSuffix == "" {
		l.ProjectSuffix = d.ProjectSuffix
	}
	if len(l.Names) == 0 {
		l.Names = d.Names
	}
	return l
}

// Paths returns the candidate basedata paths for a module, existing or not.
func (l Layout) Paths(moduleDir string, product bool) []string {
	l = l.withDefaults()
	suffix := l.ProjectSuffix
	if product {
		suffix = l.ProductSuffix
	}
	paths := make([]string, 0, len(l.Names))
	for _, n := range l.Names {
		paths = append(paths, filepath.Join(moduleDir, l.Dir, l.Prefix+n+suffix))
	}
	return paths
}

// Files returns the basedata files that exist in a module.
func (l Layout) Files(moduleDir string, product bool) []string {
	var found []string
	for _, p := range l.Paths(moduleDir, product) {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			found = append(found, p)
		}
	}
	return found
}
