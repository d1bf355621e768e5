package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"github.com/minios-linux/bundlekit/batch"
	"github.com/minios-linux/bundlekit/charset"
	"github.com/minios-linux/bundlekit/detect"
	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/propfile"
	"github.com/minios-linux/bundlekit/scan"
)

// ---------------------------------------------------------------------------
// Prepare: create locale bundles from the reference
// ---------------------------------------------------------------------------

// PrepareOptions controls Prepare.
type PrepareOptions struct {
	// Scan carries naming and exclusion settings; Scan.Reference is the
	// locale copied from (default "en").
	Scan   scan.Options
	DryRun bool
	OnLog  func(format string, args ...any)
}

func (o *PrepareOptions) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// PrepareResult lists what Prepare did.
type PrepareResult struct {
	// Created are new locale bundles copied from the reference.
	Created []string
	// Extended are existing bundles that got missing keys appended.
	Extended []string
	// Errors are per-file failures; the file was skipped.
	Errors []error
}

// Prepare makes sure every reference bundle under root has a sibling
// bundle for code. A missing bundle is created as a copy of the reference
// with the locale marker on every non-empty value; an existing bundle gets
// the keys it lacks appended the same way.
func Prepare(ctx context.Context, root, code string, opts PrepareOptions) (*PrepareResult, error) {
	code = locale.Normalize(code)
	ref := opts.Scan.Reference
	if ref == "" {
		ref = "en"
	}
	refOpts := opts.Scan
	refOpts.Reference = ""
	refs, err := scan.Scan(ctx, root, ref, refOpts)
	if err != nil {
		return nil, err
	}

	res := &PrepareResult{}
	for _, u := range refs.Unreadable {
		res.Errors = append(res.Errors, u.Err)
	}

	cs := locale.Lookup(code).Charset
	marker := locale.Marker(code)
	for _, b := range refs.Bundles {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		target := filepath.Join(filepath.Dir(b.Path), opts.Scan.FileName(code))

		if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
			f := propfile.FlaggedCopy(b.File, marker)
			f.SetEncodable(charset.Encodable(cs))
			if !opts.DryRun {
				if err := f.WriteFile(target, cs); err != nil {
					res.Errors = append(res.Errors, err)
					continue
				}
			}
			opts.log("Created %s", target)
			res.Created = append(res.Created, target)
			continue
		}

		read := propfile.ReadFile
		if opts.Scan.Strict {
			read = propfile.ReadFileStrict
		}
		f, err := read(target, cs)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		n := propfile.AppendMissing(b.File, f, marker)
		if n == 0 {
			continue
		}
		if !opts.DryRun {
			if err := f.WriteFile(target, cs); err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
		}
		opts.log("Added %d key(s) to %s", n, target)
		res.Extended = append(res.Extended, target)
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// Concat-known: offline fill from reference and default locale
// ---------------------------------------------------------------------------

// concatKnown fills each entry with the distinct non-empty reference and
// default-locale values joined by "/", followed by the marker, so the entry
// stays flagged for a later proper translation.
func concatKnown(bundles []*scan.Bundle, entries []detect.Entry, code string, opts scan.Options) map[batch.Ref]string {
	byPath := lo.KeyBy(bundles, func(b *scan.Bundle) string { return b.Path })
	defaults := make(map[string]*propfile.File)
	marker := locale.Marker(code)

	out := make(map[batch.Ref]string)
	for _, e := range entries {
		b := byPath[e.File]
		if b == nil {
			continue
		}
		def, ok := defaults[e.File]
		if !ok {
			def = loadSibling(b.Path, locale.Default, code, opts)
			defaults[e.File] = def
		}

		var known []string
		for _, f := range []*propfile.File{b.Reference, def} {
			if f == nil {
				continue
			}
			if v, ok := f.Get(e.Key); ok && v != "" {
				known = append(known, v)
			}
		}
		known = lo.Uniq(known)
		if len(known) == 0 {
			continue
		}
		out[batch.Ref{File: e.File, Key: e.Key}] = strings.Join(known, "/") + marker
	}
	return out
}

// loadSibling reads the bundle for sibling next to path, nil when it is
// the target itself or cannot be read.
func loadSibling(path, sibling, target string, opts scan.Options) *propfile.File {
	if sibling == target {
		return nil
	}
	p := filepath.Join(filepath.Dir(path), opts.FileName(sibling))
	f, err := propfile.ReadFile(p, locale.Lookup(sibling).Charset)
	if err != nil {
		return nil
	}
	return f
}

// ---------------------------------------------------------------------------
// Convert: re-encode unreadable bundles
// ---------------------------------------------------------------------------

// Conversion is one re-encoded file.
type Conversion struct {
	Path string
	From string
	To   string
}

// ConvertUnreadable scans root for code in strict mode and rewrites every
// bundle that failed to decode from its guessed charset into the locale's
// charset.
func ConvertUnreadable(ctx context.Context, root, code string, opts scan.Options, dryRun bool) ([]Conversion, error) {
	opts.Strict = true
	opts.Reference = ""
	res, err := scan.Scan(ctx, root, code, opts)
	if err != nil {
		return nil, err
	}
	to := locale.Lookup(code).Charset

	var (
		done []Conversion
		errs *multierror.Error
	)
	for _, u := range res.Unreadable {
		var ee *charset.EncodingError
		if !errors.As(u.Err, &ee) || ee.Guess == "" || ee.Guess == to {
			errs = multierror.Append(errs, u.Err)
			continue
		}
		c := Conversion{Path: u.Path, From: ee.Guess, To: to}
		if !dryRun {
			if err := charset.ConvertFile(u.Path, c.From, c.To); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("converting %s: %w", u.Path, err))
				continue
			}
		}
		done = append(done, c)
	}
	return done, errs.ErrorOrNil()
}
