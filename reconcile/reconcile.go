// Package reconcile drives a full reconciliation run for one project root
// and one target locale: scan the bundles, detect flagged entries,
// translate them in batches and write the results back.
//
// Library code never prints. Progress and state changes are reported
// through the callbacks in Options; the outcome is a Report.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"github.com/minios-linux/bundlekit/batch"
	"github.com/minios-linux/bundlekit/detect"
	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/scan"
	"github.com/minios-linux/bundlekit/translate"
	"github.com/minios-linux/bundlekit/writer"
)

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

// State is the phase of a run.
type State int

const (
	Idle State = iota
	Scanning
	Detecting
	Batching
	Translating
	QuotaCheck
	Writing
	Done
	Failed
	Aborted
)

var stateNames = map[State]string{
	Idle:        "idle",
	Scanning:    "scanning",
	Detecting:   "detecting",
	Batching:    "batching",
	Translating: "translating",
	QuotaCheck:  "quota-check",
	Writing:     "writing",
	Done:        "done",
	Failed:      "failed",
	Aborted:     "aborted",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalYAML writes the state by name.
func (s State) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Terminal reports whether no further transition follows.
func (s State) Terminal() bool {
	return s == Done || s == Failed || s == Aborted
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Mode selects how flagged entries are filled.
type Mode int

const (
	// ModeTranslate sends the entries to the provider.
	ModeTranslate Mode = iota
	// ModeConcatKnown fills entries offline with the known reference and
	// default-locale texts joined by "/", keeping the marker.
	ModeConcatKnown
)

// QuotaDecision is handed to Options.Confirm when the pending characters
// exceed the provider's remaining quota.
type QuotaDecision struct {
	Provider  string `yaml:"provider"`
	Required  int64  `yaml:"required"`
	Remaining int64  `yaml:"remaining"`
	Limit     int64  `yaml:"limit"`
}

func (d QuotaDecision) String() string {
	return fmt.Sprintf("%s: %s characters needed, %s of %s left",
		d.Provider, humanize.Comma(d.Required), humanize.Comma(d.Remaining), humanize.Comma(d.Limit))
}

// Options configures a run.
type Options struct {
	// Root is the project directory to scan.
	Root string
	// Locale is the target locale code.
	Locale string
	// Source is the language passed to the provider, "auto" for detection.
	Source string
	// Reference is the locale whose bundles supply fallback source text
	// and from which missing locale bundles are prepared.
	Reference string
	// Scan carries naming, exclusion, worker and strictness settings.
	Scan scan.Options
	// Provider translates in ModeTranslate.
	Provider translate.Provider
	// Limits are the batch ceilings.
	Limits batch.Limits
	// RestoreEmpty writes empty results for empty sources.
	RestoreEmpty bool
	// MachineSuffix is appended to every machine translation, e.g. " (T)".
	MachineSuffix string
	Mode          Mode
	// Prepare creates and extends locale bundles from the reference first.
	Prepare bool
	// DryRun does everything except writing files.
	DryRun bool

	// Confirm decides whether to continue when the quota looks
	// insufficient. Nil aborts.
	Confirm func(QuotaDecision) bool
	// OnState is called on every state transition.
	OnState func(State)
	// OnProgress is called after each batch with items done and total.
	OnProgress func(done, total int)
	// OnLog emits log messages.
	OnLog func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) reference() string {
	if o.Reference != "" {
		return o.Reference
	}
	return "en"
}

func (o *Options) source() string {
	if o.Source != "" {
		return o.Source
	}
	return o.reference()
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

// Problem is one file or entry that could not be processed.
type Problem struct {
	Path  string `yaml:"path"`
	Key   string `yaml:"key,omitempty"`
	Error string `yaml:"error"`
}

// Report is the outcome of a run.
type Report struct {
	Root   string `yaml:"root"`
	Locale string `yaml:"locale"`
	State  State  `yaml:"state"`
	// Bundles is the number of bundles loaded.
	Bundles int `yaml:"bundles"`
	// Prepared lists bundle files created or extended before the scan.
	Prepared []string `yaml:"prepared,omitempty"`
	// Unreadable lists files skipped during the scan with their cause.
	Unreadable []Problem `yaml:"unreadable,omitempty"`
	// Suspicious lists translated values that look mis-encoded.
	Suspicious []Problem `yaml:"suspicious,omitempty"`
	// NoSource lists empty entries left alone because no source text exists.
	NoSource []Problem `yaml:"no_source,omitempty"`
	// Pending is the number of entries that needed translation.
	Pending int `yaml:"pending"`
	// Failed lists entries left untranslated by a failed batch.
	Failed []Problem `yaml:"failed,omitempty"`
	// Applied is the number of values changed on disk.
	Applied int `yaml:"applied"`
	// FilesWritten is the number of rewritten bundles.
	FilesWritten int `yaml:"files_written"`
	// Characters is the number of characters sent to the provider.
	Characters int            `yaml:"characters"`
	Quota      *QuotaDecision `yaml:"quota,omitempty"`
	// Fatal is the error that moved the run to Failed.
	Fatal string `yaml:"fatal,omitempty"`

	errs  []error
	fatal error
}

func (r *Report) addErr(err error) {
	r.errs = append(r.errs, err)
}

// Err aggregates every per-file and per-batch error plus a fatal error.
func (r *Report) Err() error {
	var result *multierror.Error
	if r.fatal != nil {
		result = multierror.Append(result, r.fatal)
	}
	result = multierror.Append(result, r.errs...)
	return result.ErrorOrNil()
}

// Partial reports whether the run completed with skipped files or entries.
func (r *Report) Partial() bool {
	return len(r.errs) > 0
}

// ExitCode maps the report to a process exit code: 0 success or a
// declined quota check, 1 partial failure, 2 fatal error.
func (r *Report) ExitCode() int {
	switch {
	case r.State == Failed:
		return 2
	case r.Partial():
		return 1
	}
	return 0
}

// Summary is a one-line human readable result.
func (r *Report) Summary() string {
	parts := []string{
		fmt.Sprintf("%s: %d bundle(s)", r.Locale, r.Bundles),
		fmt.Sprintf("%d pending", r.Pending),
		fmt.Sprintf("%d applied in %d file(s)", r.Applied, r.FilesWritten),
	}
	if r.Characters > 0 {
		parts = append(parts, humanize.Comma(int64(r.Characters))+" characters")
	}
	if n := len(r.Failed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", n))
	}
	if n := len(r.Unreadable); n > 0 {
		parts = append(parts, fmt.Sprintf("%d unreadable", n))
	}
	return strings.Join(parts, ", ")
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

type run struct {
	opts Options
	rep  *Report
}

func (r *run) enter(s State) {
	r.rep.State = s
	if r.opts.OnState != nil {
		r.opts.OnState(s)
	}
}

func (r *run) fail(err error) (*Report, error) {
	r.rep.fatal = err
	r.rep.Fatal = err.Error()
	r.enter(Failed)
	return r.rep, err
}

// ErrNoProvider is returned when ModeTranslate has no provider.
var ErrNoProvider = errors.New("no translation provider configured")

// Run executes one reconciliation. The returned error is non-nil only when
// the run failed; partial failures are in the report.
func Run(ctx context.Context, opts Options) (*Report, error) {
	code := locale.Normalize(opts.Locale)
	r := &run{opts: opts, rep: &Report{Root: opts.Root, Locale: code}}
	r.enter(Idle)

	if code == "" {
		return r.fail(errors.New("no target locale"))
	}
	if opts.Mode == ModeTranslate && opts.Provider == nil {
		return r.fail(ErrNoProvider)
	}

	// Scanning
	r.enter(Scanning)
	scanOpts := opts.Scan
	scanOpts.Reference = opts.reference()
	if opts.Prepare && code != locale.Normalize(opts.reference()) {
		prep, err := Prepare(ctx, opts.Root, code, PrepareOptions{Scan: scanOpts, DryRun: opts.DryRun, OnLog: opts.OnLog})
		if err != nil {
			return r.fail(err)
		}
		r.rep.Prepared = append(prep.Created, prep.Extended...)
		for _, p := range prep.Errors {
			r.rep.addErr(p)
		}
	}
	res, err := scan.Scan(ctx, opts.Root, code, scanOpts)
	if err != nil {
		return r.fail(err)
	}
	r.rep.Bundles = len(res.Bundles)
	for _, u := range res.Unreadable {
		r.rep.Unreadable = append(r.rep.Unreadable, Problem{Path: u.Path, Error: u.Err.Error()})
		r.rep.addErr(u.Err)
	}
	opts.log("Found %d bundle(s) for %s", len(res.Bundles), code)

	// Detecting
	r.enter(Detecting)
	var entries []detect.Entry
	for _, b := range res.Bundles {
		entries = append(entries, detect.Untranslated(b, code)...)
		for _, k := range detect.Suspicious(b.File, code) {
			r.rep.Suspicious = append(r.rep.Suspicious, Problem{Path: b.Path, Key: k, Error: "value looks mis-encoded"})
		}
	}
	if opts.Mode == ModeTranslate {
		entries = r.dropSourceless(entries)
	}
	r.rep.Pending = len(entries)
	if len(entries) == 0 {
		opts.log("Nothing to translate for %s", code)
		r.enter(Done)
		return r.rep, nil
	}

	// Batching
	r.enter(Batching)
	items := lo.Map(entries, func(e detect.Entry, _ int) batch.Item {
		return batch.Item{Ref: batch.Ref{File: e.File, Key: e.Key}, Text: e.Source}
	})

	var results map[batch.Ref]string
	if opts.Mode == ModeConcatKnown {
		results = concatKnown(res.Bundles, entries, code, scanOpts)
	} else {
		// Translating
		r.enter(Translating)
		if proceed, err := r.checkQuota(ctx, items); err != nil {
			return r.fail(err)
		} else if !proceed {
			r.enter(Aborted)
			return r.rep, nil
		}
		r.enter(Translating)

		sched := &batch.Scheduler{
			Provider:     opts.Provider,
			Limits:       opts.Limits,
			RestoreEmpty: opts.RestoreEmpty,
			OnProgress:   opts.OnProgress,
			OnLog:        opts.OnLog,
		}
		out := sched.Run(ctx, items, opts.source(), code)
		r.rep.Characters = out.Meter.Characters
		r.recordBatchFailures(out)
		if errors.Is(out.Stopped, translate.ErrAuth) && len(out.Translations()) == 0 {
			return r.fail(out.Stopped)
		}
		results = out.Translations()
		if opts.MachineSuffix != "" {
			for ref, v := range results {
				if v != "" {
					results[ref] = v + opts.MachineSuffix
				}
			}
		}
	}

	// Writing
	r.enter(Writing)
	wrep := writer.Apply(results, writer.Options{
		Strict: opts.Scan.Strict,
		DryRun: opts.DryRun,
		OnLog:  opts.OnLog,
	})
	r.rep.Applied = wrep.Applied()
	r.rep.FilesWritten = wrep.Written()
	for _, f := range wrep.Files {
		if f.Err != nil {
			r.rep.Unreadable = append(r.rep.Unreadable, Problem{Path: f.Path, Error: f.Err.Error()})
			r.rep.addErr(f.Err)
		}
	}

	r.enter(Done)
	return r.rep, nil
}

// checkQuota compares the characters to send with the provider's remaining
// quota. It returns false when the caller declined.
func (r *run) checkQuota(ctx context.Context, items []batch.Item) (bool, error) {
	r.enter(QuotaCheck)
	required := int64(batch.TotalCharacters(items))
	usage, err := r.opts.Provider.Usage(ctx)
	switch {
	case errors.Is(err, translate.ErrUsageUnsupported):
		return true, nil
	case errors.Is(err, translate.ErrAuth):
		return false, err
	case err != nil:
		r.opts.log("Could not query quota: %v", err)
		return true, nil
	}

	remaining := usage.Remaining()
	if remaining < 0 || required <= remaining {
		return true, nil
	}
	dec := QuotaDecision{
		Provider:  r.opts.Provider.Name(),
		Required:  required,
		Remaining: remaining,
		Limit:     usage.Limit,
	}
	r.rep.Quota = &dec
	if r.opts.Confirm == nil || !r.opts.Confirm(dec) {
		r.opts.log("Aborted: %s", dec)
		return false, nil
	}
	return true, nil
}

// dropSourceless removes empty entries that have no reference text. They
// stay empty on disk and are listed in the report.
func (r *run) dropSourceless(entries []detect.Entry) []detect.Entry {
	return lo.Filter(entries, func(e detect.Entry, _ int) bool {
		if e.Status != detect.Missing || strings.TrimSpace(e.Source) != "" {
			return true
		}
		r.rep.NoSource = append(r.rep.NoSource, Problem{Path: e.File, Key: e.Key, Error: "no source text"})
		return false
	})
}

func (r *run) recordBatchFailures(out *batch.Result) {
	reported := make(map[batch.Ref]bool)
	add := func(ref batch.Ref, err error) {
		reported[ref] = true
		r.rep.Failed = append(r.rep.Failed, Problem{Path: ref.File, Key: ref.Key, Error: err.Error()})
	}
	for _, rej := range out.Rejected {
		add(rej.Item.Ref, rej.Err)
	}
	for _, be := range slices.Concat(out.Errors, out.Skipped) {
		for _, ref := range be.Refs {
			add(ref, be.Err)
		}
	}
	for _, ref := range out.Failed() {
		if !reported[ref] {
			add(ref, batch.ErrSkipped)
		}
	}
	if err := out.Err(); err != nil {
		r.rep.addErr(err)
	}
}
