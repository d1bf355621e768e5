// Package scan locates per-locale resource bundles in a directory tree and
// loads them with the charset their locale requires.
//
// Scanning is best-effort: a file that cannot be read or decoded is
// recorded in Result.Unreadable and the walk continues with its siblings.
// Only a missing root directory stops a scan.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/minios-linux/bundlekit/charset"
	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/propfile"
)

// Default naming and exclusion settings.
const (
	DefaultPrefix = "messages_"
	DefaultSuffix = ".properties"
)

// DefaultExclude lists the build output directories skipped by default.
var DefaultExclude = []string{"bin", "build"}

// ErrRootNotFound is returned when the scan root does not exist or is not
// a directory.
var ErrRootNotFound = errors.New("root directory not found")

// Options controls a scan.
type Options struct {
	// Prefix and Suffix frame the locale code in bundle file names.
	Prefix string
	Suffix string
	// Exclude lists directory names skipped wherever they appear in a path.
	Exclude []string
	// Workers bounds the number of top-level subdirectories walked at once.
	// Values below 2 walk sequentially.
	Workers int
	// Strict rejects UTF-8 content in single-byte locale files.
	Strict bool
	// Reference is the locale whose sibling bundle is loaded as fallback
	// text source. Empty disables reference loading.
	Reference string
	// OnLog emits diagnostic messages.
	OnLog func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) prefix() string {
	if o.Prefix != "" {
		return o.Prefix
	}
	return DefaultPrefix
}

func (o *Options) suffix() string {
	if o.Suffix != "" {
		return o.Suffix
	}
	return DefaultSuffix
}

func (o *Options) exclude() map[string]bool {
	names := o.Exclude
	if names == nil {
		names = DefaultExclude
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// FileName returns the bundle file name for a locale code.
func (o Options) FileName(code string) string {
	return o.prefix() + code + o.suffix()
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// Bundle is one loaded locale file.
type Bundle struct {
	// Path is the absolute file path.
	Path string
	// Locale is the normalised locale code.
	Locale string
	// Charset is the encoding the file was read with.
	Charset string
	// File is the parsed content.
	File *propfile.File
	// Reference is the sibling reference-locale bundle, nil when absent.
	Reference *propfile.File
}

// IOError reports a file or directory that could not be read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Unreadable is a file skipped during the scan.
type Unreadable struct {
	Path string
	// Err is a *charset.EncodingError or *IOError.
	Err error
}

// Result collects everything one scan found.
type Result struct {
	Bundles    []*Bundle
	Unreadable []Unreadable
}

// Errors returns the causes of all unreadable files.
func (r *Result) Errors() []error {
	return lo.Map(r.Unreadable, func(u Unreadable, _ int) error { return u.Err })
}

// collector is the shared, mutex-protected result of the parallel walk.
type collector struct {
	mu  sync.Mutex
	res Result
}

func (c *collector) addBundle(b *Bundle) {
	c.mu.Lock()
	c.res.Bundles = append(c.res.Bundles, b)
	c.mu.Unlock()
}

func (c *collector) addUnreadable(path string, err error) {
	c.mu.Lock()
	c.res.Unreadable = append(c.res.Unreadable, Unreadable{Path: path, Err: err})
	c.mu.Unlock()
}

func (c *collector) result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.Slice(c.res.Bundles, func(i, j int) bool { return c.res.Bundles[i].Path < c.res.Bundles[j].Path })
	sort.Slice(c.res.Unreadable, func(i, j int) bool { return c.res.Unreadable[i].Path < c.res.Unreadable[j].Path })
	res := c.res
	return &res
}

// ---------------------------------------------------------------------------
// Scanning
// ---------------------------------------------------------------------------

// Scan walks root and loads every bundle for the locale code.
func Scan(ctx context.Context, root, code string, opts Options) (*Result, error) {
	code = locale.Normalize(code)
	spec := locale.Lookup(code)
	name := opts.FileName(code)

	col := &collector{}
	err := walk(ctx, root, opts, func(path string, walkErr error) {
		if walkErr != nil {
			col.addUnreadable(path, &IOError{Path: path, Err: walkErr})
			return
		}
		if filepath.Base(path) != name {
			return
		}
		b, err := load(path, code, spec.Charset, opts)
		if err != nil {
			opts.log("Unreadable %s: %v", path, err)
			col.addUnreadable(path, err)
			return
		}
		col.addBundle(b)
	})
	if err != nil {
		return nil, err
	}
	return col.result(), nil
}

// Find returns the paths of all bundles for code without loading them.
func Find(ctx context.Context, root, code string, opts Options) ([]string, error) {
	name := opts.FileName(locale.Normalize(code))
	var (
		mu    sync.Mutex
		paths []string
	)
	err := walk(ctx, root, opts, func(path string, walkErr error) {
		if walkErr != nil || filepath.Base(path) != name {
			return
		}
		mu.Lock()
		paths = append(paths, path)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Locales returns the sorted locale codes that have at least one bundle
// under root.
func Locales(ctx context.Context, root string, opts Options) ([]string, error) {
	prefix, suffix := opts.prefix(), opts.suffix()
	var (
		mu    sync.Mutex
		codes []string
	)
	err := walk(ctx, root, opts, func(path string, walkErr error) {
		if walkErr != nil {
			return
		}
		base := filepath.Base(path)
		if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, suffix) {
			return
		}
		code := strings.TrimSuffix(strings.TrimPrefix(base, prefix), suffix)
		if code == "" {
			return
		}
		mu.Lock()
		codes = append(codes, locale.Normalize(code))
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	codes = lo.Uniq(codes)
	sort.Strings(codes)
	return codes, nil
}

// walk visits every regular file below root, skipping excluded directory
// segments. Each top-level subdirectory is walked as its own task on a
// bounded errgroup; visit must be safe for concurrent use.
func walk(ctx context.Context, root string, opts Options, visit func(path string, err error)) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("reading %s: %w", abs, err)
	}

	excluded := opts.exclude()
	g, gctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, entry := range entries {
		path := filepath.Join(abs, entry.Name())
		if !entry.IsDir() {
			if entry.Type().IsRegular() {
				visit(path, nil)
			}
			continue
		}
		if excluded[entry.Name()] {
			continue
		}
		g.Go(func() error {
			return walkTree(gctx, path, excluded, visit)
		})
	}
	return g.Wait()
}

func walkTree(ctx context.Context, dir string, excluded map[string]bool, visit func(string, error)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			visit(path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && excluded[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			visit(path, nil)
		}
		return nil
	})
}

// load reads one bundle and, when configured, its reference sibling.
func load(path, code, cs string, opts Options) (*Bundle, error) {
	read := propfile.ReadFile
	if opts.Strict {
		read = propfile.ReadFileStrict
	}
	f, err := read(path, cs)
	if err != nil {
		var encErr *charset.EncodingError
		if errors.As(err, &encErr) {
			return nil, encErr
		}
		return nil, &IOError{Path: path, Err: err}
	}

	b := &Bundle{Path: path, Locale: code, Charset: cs, File: f}

	ref := locale.Normalize(opts.Reference)
	if ref == "" || ref == code {
		return b, nil
	}
	refPath := filepath.Join(filepath.Dir(path), opts.FileName(ref))
	if _, err := os.Stat(refPath); err != nil {
		return b, nil
	}
	refFile, err := propfile.ReadFile(refPath, locale.Lookup(ref).Charset)
	if err != nil {
		opts.log("Reference bundle %s not usable: %v", refPath, err)
		return b, nil
	}
	b.Reference = refFile
	return b, nil
}
