// Package writer applies translated values back into bundle files.
//
// Each touched file is reloaded from disk, so values written by someone
// else since the scan are compared against their current state. A file is
// rewritten only when at least one value actually changes.
package writer

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/minios-linux/bundlekit/batch"
	"github.com/minios-linux/bundlekit/charset"
	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/propfile"
)

// Options controls how files are written.
type Options struct {
	// Charset overrides the charset derived from each file's locale.
	Charset string
	// Strict rejects files whose bytes do not match their charset.
	Strict bool
	// DryRun compares without writing.
	DryRun bool
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// charsetFor returns the charset a bundle file is stored in.
func (o *Options) charsetFor(path string) string {
	if o.Charset != "" {
		return o.Charset
	}
	return locale.Lookup(charset.LocaleFromName(filepath.Base(path))).Charset
}

// FileResult is the outcome for one file.
type FileResult struct {
	Path string `yaml:"path"`
	// Updated counts existing keys whose value changed.
	Updated int `yaml:"updated"`
	// Added counts keys appended to the file.
	Added int `yaml:"added"`
	// Unchanged counts keys that already had the value.
	Unchanged int `yaml:"unchanged"`
	// Written is set when the file was rewritten.
	Written bool  `yaml:"written"`
	Err     error `yaml:"-"`
}

// Report collects the per-file outcomes in path order.
type Report struct {
	Files []FileResult
}

// Written returns the number of rewritten files.
func (r *Report) Written() int {
	n := 0
	for _, f := range r.Files {
		if f.Written {
			n++
		}
	}
	return n
}

// Applied returns the number of values that changed on disk.
func (r *Report) Applied() int {
	n := 0
	for _, f := range r.Files {
		if f.Written {
			n += f.Updated + f.Added
		}
	}
	return n
}

// Err aggregates per-file errors.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, f := range r.Files {
		if f.Err != nil {
			result = multierror.Append(result, f.Err)
		}
	}
	return result.ErrorOrNil()
}

// Apply writes results grouped by file. A file that cannot be read or
// written is recorded in the report and the others are still processed.
func Apply(results map[batch.Ref]string, opts Options) *Report {
	byFile := make(map[string]map[string]string)
	for ref, value := range results {
		if byFile[ref.File] == nil {
			byFile[ref.File] = make(map[string]string)
		}
		byFile[ref.File][ref.Key] = value
	}

	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	rep := &Report{}
	for _, p := range paths {
		res := ApplyFile(p, byFile[p], opts)
		if res.Err != nil {
			opts.log("Skipping %s: %v", p, res.Err)
		}
		rep.Files = append(rep.Files, res)
	}
	return rep
}

// ApplyFile writes values into one bundle file. Keys are applied in
// sorted order so appended keys land deterministically.
func ApplyFile(path string, values map[string]string, opts Options) FileResult {
	res := FileResult{Path: path}
	cs := opts.charsetFor(path)

	read := propfile.ReadFile
	if opts.Strict {
		read = propfile.ReadFileStrict
	}
	f, err := read(path, cs)
	if err != nil {
		res.Err = err
		return res
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, existed := f.Get(k)
		if !f.Put(k, values[k]) {
			res.Unchanged++
			continue
		}
		if existed {
			res.Updated++
		} else {
			res.Added++
		}
	}

	if !f.Changed() {
		return res
	}
	if opts.DryRun {
		return res
	}
	if err := f.WriteFile(path, cs); err != nil {
		res.Err = fmt.Errorf("applying translations: %w", err)
		return res
	}
	res.Written = true
	opts.log("Updated %s (%d changed, %d added)", path, res.Updated, res.Added)
	return res
}
