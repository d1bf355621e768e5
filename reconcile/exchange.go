package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minios-linux/bundlekit/batch"
	"github.com/minios-linux/bundlekit/detect"
	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/scan"
	"github.com/minios-linux/bundlekit/wordlist"
	"github.com/minios-linux/bundlekit/writer"
)

// Wordlist keys address a bundle entry as "<module>.<key>", where module is
// the bundle directory relative to the project root without the trailing
// bundle subdirectory. The module ends at the first dot.

// DefaultBundleDir is the directory inside a module holding its bundles.
const DefaultBundleDir = "properties"

// ExchangeOptions controls wordlist export and import.
type ExchangeOptions struct {
	Scan scan.Options
	// BundleDir is the bundle subdirectory of a module.
	BundleDir string
	DryRun    bool
	OnLog     func(format string, args ...any)
}

func (o *ExchangeOptions) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *ExchangeOptions) bundleDir() string {
	if o.BundleDir != "" {
		return o.BundleDir
	}
	return DefaultBundleDir
}

// ModuleKey returns the wordlist key for an entry of the bundle at path.
func ModuleKey(root, path, key, bundleDir string) (string, error) {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == bundleDir {
		rel = ""
	} else {
		rel = strings.TrimSuffix(rel, "/"+bundleDir)
	}
	if rel == "" || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s: bundle is not inside a module", path)
	}
	if strings.Contains(rel, ".") {
		return "", fmt.Errorf("%s: module path %q contains a dot", path, rel)
	}
	return rel + "." + key, nil
}

// SplitModuleKey splits a wordlist key at its first dot.
func SplitModuleKey(k string) (module, key string, ok bool) {
	i := strings.IndexByte(k, '.')
	if i <= 0 || i == len(k)-1 {
		return "", "", false
	}
	return k[:i], k[i+1:], true
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// ExportResult is what ExportFlagged collected.
type ExportResult struct {
	Pairs []wordlist.Pair
	// Skipped are entries whose bundle could not be addressed by a key.
	Skipped []Problem
	Scan    *scan.Result
}

// ExportFlagged collects the flagged entries for code as wordlist pairs of
// module key and source text, in path and document order.
func ExportFlagged(ctx context.Context, root, code string, opts ExchangeOptions) (*ExportResult, error) {
	code = locale.Normalize(code)
	res, err := scan.Scan(ctx, root, code, opts.Scan)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	out := &ExportResult{Scan: res}
	for _, b := range res.Bundles {
		for _, e := range detect.Untranslated(b, code) {
			k, err := ModuleKey(root, b.Path, e.Key, opts.bundleDir())
			if err != nil {
				out.Skipped = append(out.Skipped, Problem{Path: b.Path, Key: e.Key, Error: err.Error()})
				continue
			}
			out.Pairs = append(out.Pairs, wordlist.Pair{Key: k, Translation: e.Source})
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

// ImportResult is the outcome of ImportWordlist.
type ImportResult struct {
	Writer *writer.Report
	// Created lists bundle files created for modules that had none.
	Created []string
	// Unapplied lists keys whose module does not exist or that have no
	// module part, sorted.
	Unapplied []string
}

// Err aggregates write errors.
func (r *ImportResult) Err() error {
	return r.Writer.Err()
}

// ImportWordlist writes translations keyed by module key into the bundles
// for code. Keys missing from a bundle are appended; a module without a
// bundle for code gets a new file. Files are only written when a value
// changes.
func ImportWordlist(root, code string, list *wordlist.List, opts ExchangeOptions) (*ImportResult, error) {
	code = locale.Normalize(code)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", scan.ErrRootNotFound, root)
	}
	name := opts.Scan.FileName(code)
	res := &ImportResult{}
	results := make(map[batch.Ref]string)
	resolved := make(map[string]string)

	for _, p := range list.Pairs {
		module, key, ok := SplitModuleKey(p.Key)
		if !ok {
			res.Unapplied = append(res.Unapplied, p.Key)
			continue
		}
		path, seen := resolved[module]
		if !seen {
			path = resolveBundle(root, module, name, opts.bundleDir())
			resolved[module] = path
		}
		if path == "" {
			res.Unapplied = append(res.Unapplied, p.Key)
			continue
		}
		results[batch.Ref{File: path, Key: key}] = p.Translation
	}

	created := make(map[string]bool)
	for ref := range results {
		if created[ref.File] {
			continue
		}
		if _, err := os.Stat(ref.File); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		created[ref.File] = true
		res.Created = append(res.Created, ref.File)
		if opts.DryRun {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(ref.File), 0755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(ref.File), err)
		}
		if err := os.WriteFile(ref.File, nil, 0644); err != nil {
			return nil, fmt.Errorf("creating %s: %w", ref.File, err)
		}
		opts.log("Created %s", ref.File)
	}
	sort.Strings(res.Created)
	sort.Strings(res.Unapplied)

	if opts.DryRun {
		// New files do not exist yet; report them without reading.
		for ref := range results {
			if created[ref.File] {
				delete(results, ref)
			}
		}
	}
	res.Writer = writer.Apply(results, writer.Options{DryRun: opts.DryRun, Strict: opts.Scan.Strict, OnLog: opts.OnLog})
	return res, nil
}

// resolveBundle returns the bundle path for module, "" when the module
// directory does not exist.
func resolveBundle(root, module, name, bundleDir string) string {
	moduleDir := filepath.Join(root, filepath.FromSlash(module))
	if info, err := os.Stat(moduleDir); err != nil || !info.IsDir() {
		return ""
	}
	sub := filepath.Join(moduleDir, bundleDir)
	if info, err := os.Stat(sub); err == nil && info.IsDir() {
		return filepath.Join(sub, name)
	}
	if _, err := os.Stat(filepath.Join(moduleDir, name)); err == nil {
		return filepath.Join(moduleDir, name)
	}
	return filepath.Join(sub, name)
}
