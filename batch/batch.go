// Package batch packs pending strings into bounded batches, sends them to a
// translation provider one batch at a time, and maps the results back to
// the (file, key) pairs they came from.
//
// Two ceilings bound every batch: the number of items (PackageSize) and the
// total number of characters (CharacterLimit). The mapping back is purely
// positional, so each batch keeps the input index of every item it carries.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"github.com/minios-linux/bundlekit/translate"
)

// Default ceilings of the DeepL API.
const (
	DefaultPackageSize    = 50
	DefaultCharacterLimit = 5000
)

// emptySubstitute replaces empty strings, which providers reject.
const emptySubstitute = " "

var (
	// ErrItemTooLarge marks an item longer than the character ceiling.
	ErrItemTooLarge = errors.New("item exceeds character limit")
	// ErrCountMismatch is returned when a provider answers with a different
	// number of translations than it was sent.
	ErrCountMismatch = errors.New("provider returned wrong number of translations")
	// ErrSkipped marks batches not attempted after the run stopped.
	ErrSkipped = errors.New("batch skipped")
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Ref names the origin of a pending string.
type Ref struct {
	File string `yaml:"file"`
	Key  string `yaml:"key"`
}

func (r Ref) String() string {
	if r.File == "" {
		return r.Key
	}
	return r.File + ":" + r.Key
}

// Item is one string waiting for translation.
type Item struct {
	Ref  Ref
	Text string
}

// Record ties a position in a batch to its origin.
type Record struct {
	BatchID int
	// Index is the item's position in the planned input.
	Index int
	Ref   Ref
}

// Limits are the batch ceilings.
type Limits struct {
	PackageSize    int
	CharacterLimit int
}

// DefaultLimits returns the DeepL ceilings.
func DefaultLimits() Limits {
	return Limits{PackageSize: DefaultPackageSize, CharacterLimit: DefaultCharacterLimit}
}

func (l Limits) orDefault() Limits {
	if l.PackageSize <= 0 {
		l.PackageSize = DefaultPackageSize
	}
	if l.CharacterLimit <= 0 {
		l.CharacterLimit = DefaultCharacterLimit
	}
	return l
}

// Batch is an ordered group of items sent in one provider call.
type Batch struct {
	ID    int
	Items []Item
	// Indexes holds the input position of each item.
	Indexes []int
	// Chars is the total character count of the sent texts.
	Chars int
}

// Texts returns the strings as they are sent, with empty strings
// substituted.
func (b *Batch) Texts() []string {
	return lo.Map(b.Items, func(it Item, _ int) string { return sendable(it.Text) })
}

// Records returns the correlation records of the batch.
func (b *Batch) Records() []Record {
	recs := make([]Record, len(b.Items))
	for i, it := range b.Items {
		recs[i] = Record{BatchID: b.ID, Index: b.Indexes[i], Ref: it.Ref}
	}
	return recs
}

// Refs returns the origins of the batch's items.
func (b *Batch) Refs() []Ref {
	return lo.Map(b.Items, func(it Item, _ int) Ref { return it.Ref })
}

// Rejected is an item that cannot be sent.
type Rejected struct {
	Index int
	Item  Item
	Err   error
}

func (r Rejected) Error() string {
	return fmt.Sprintf("item %d (%s): %v", r.Index, r.Item.Ref, r.Err)
}

func (r Rejected) Unwrap() error { return r.Err }

// BatchError is a failed provider call for one batch.
type BatchError struct {
	BatchID int
	// First and Last are the input positions covered by the batch.
	First, Last int
	Refs        []Ref
	Err         error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (items %d-%d): %v", e.BatchID, e.First, e.Last, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// failure wraps err with the batch's position and origins.
func (b *Batch) failure(err error) *BatchError {
	return &BatchError{
		BatchID: b.ID,
		First:   b.Indexes[0],
		Last:    b.Indexes[len(b.Indexes)-1],
		Refs:    b.Refs(),
		Err:     err,
	}
}

// ---------------------------------------------------------------------------
// Planning
// ---------------------------------------------------------------------------

func sendable(s string) string {
	if s == "" {
		return emptySubstitute
	}
	return s
}

// Length returns the character count of s as sent.
func Length(s string) int {
	return utf8.RuneCountInString(sendable(s))
}

// TotalCharacters returns the characters a run over items would send.
func TotalCharacters(items []Item) int {
	return lo.SumBy(items, func(it Item) int { return Length(it.Text) })
}

// Plan packs items into batches in input order. A batch is flushed when
// adding the next item would exceed either ceiling. Items longer than the
// character ceiling on their own are returned as rejected.
func Plan(items []Item, limits Limits) ([]Batch, []Rejected) {
	limits = limits.orDefault()
	var (
		batches  []Batch
		rejected []Rejected
		cur      Batch
	)
	flush := func() {
		if len(cur.Items) == 0 {
			return
		}
		cur.ID = len(batches) + 1
		batches = append(batches, cur)
		cur = Batch{}
	}

	for i, it := range items {
		n := Length(it.Text)
		if n > limits.CharacterLimit {
			rejected = append(rejected, Rejected{
				Index: i,
				Item:  it,
				Err:   fmt.Errorf("%w: %d > %d", ErrItemTooLarge, n, limits.CharacterLimit),
			})
			continue
		}
		if len(cur.Items) >= limits.PackageSize || cur.Chars+n > limits.CharacterLimit {
			flush()
		}
		cur.Items = append(cur.Items, it)
		cur.Indexes = append(cur.Indexes, i)
		cur.Chars += n
	}
	flush()
	return batches, rejected
}

// ---------------------------------------------------------------------------
// Meter
// ---------------------------------------------------------------------------

// Meter accumulates what one run sent. It belongs to the run that created
// it and is not safe for concurrent use.
type Meter struct {
	Characters int `yaml:"characters"`
	Items      int `yaml:"items"`
	Batches    int `yaml:"batches"`
	Failed     int `yaml:"failed"`
}

func (m *Meter) sent(b *Batch) {
	m.Characters += b.Chars
	m.Items += len(b.Items)
	m.Batches++
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

// Scheduler runs batches through a provider.
type Scheduler struct {
	Provider translate.Provider
	Limits   Limits
	// RestoreEmpty maps results of empty inputs back to "".
	RestoreEmpty bool
	// Meter receives the run's counts; nil uses a fresh one.
	Meter *Meter
	// OnProgress is called after each batch with items done and total.
	OnProgress func(done, total int)
	// OnLog emits log messages.
	OnLog func(format string, args ...any)
}

func (s *Scheduler) log(format string, args ...any) {
	if s.OnLog != nil {
		s.OnLog(format, args...)
	}
}

// Result is the outcome of a run. Texts has one slot per input item; Done
// tells which slots hold a translation.
type Result struct {
	Items    []Item
	Texts    []string
	Done     []bool
	Batches  int
	Errors   []*BatchError
	Rejected []Rejected
	// Skipped names the batches not attempted after the run stopped. Each
	// error wraps ErrSkipped and the stop reason.
	Skipped []*BatchError
	// Stopped is the reason the run stopped early: quota, auth or
	// cancellation.
	Stopped error
	Meter   *Meter
}

// Translations returns the translated texts keyed by origin.
func (r *Result) Translations() map[Ref]string {
	out := make(map[Ref]string)
	for i, ok := range r.Done {
		if ok {
			out[r.Items[i].Ref] = r.Texts[i]
		}
	}
	return out
}

// Failed returns the origins of items without a translation, in input
// order.
func (r *Result) Failed() []Ref {
	var refs []Ref
	for i, ok := range r.Done {
		if !ok {
			refs = append(refs, r.Items[i].Ref)
		}
	}
	return refs
}

// Err aggregates rejected items, batch errors and an early stop.
func (r *Result) Err() error {
	var result *multierror.Error
	for _, rej := range r.Rejected {
		result = multierror.Append(result, rej)
	}
	for _, be := range r.Errors {
		result = multierror.Append(result, be)
	}
	for _, be := range r.Skipped {
		result = multierror.Append(result, be)
	}
	return result.ErrorOrNil()
}

// abortsRun reports whether err stops all remaining batches.
func abortsRun(err error) bool {
	return errors.Is(err, translate.ErrQuotaExceeded) || errors.Is(err, translate.ErrAuth)
}

// Run translates items from source to target. Batches are sent one after
// another. A failed batch is recorded and the run continues, except for
// quota and auth failures which skip the remaining batches. When ctx is
// canceled, the call in flight completes and no further batch starts.
func (s *Scheduler) Run(ctx context.Context, items []Item, source, target string) *Result {
	batches, rejected := Plan(items, s.Limits)
	meter := s.Meter
	if meter == nil {
		meter = &Meter{}
	}
	res := &Result{
		Items:    items,
		Texts:    make([]string, len(items)),
		Done:     make([]bool, len(items)),
		Batches:  len(batches),
		Rejected: rejected,
		Meter:    meter,
	}
	for _, rej := range rejected {
		s.log("Skipping %s: %v", rej.Item.Ref, rej.Err)
	}

	done := 0
	for i := range batches {
		b := &batches[i]
		if res.Stopped == nil && ctx.Err() != nil {
			res.Stopped = ctx.Err()
		}
		if res.Stopped != nil {
			res.Skipped = append(res.Skipped, b.failure(fmt.Errorf("%w: %w", ErrSkipped, res.Stopped)))
			continue
		}

		out, err := s.Provider.Translate(context.WithoutCancel(ctx), b.Texts(), source, target)
		if err == nil && len(out) != len(b.Items) {
			err = fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(out), len(b.Items))
		}
		if err != nil {
			be := b.failure(err)
			res.Errors = append(res.Errors, be)
			meter.Failed += len(b.Items)
			s.log("%v", be)
			if abortsRun(err) {
				res.Stopped = err
			}
			continue
		}

		meter.sent(b)
		for j, idx := range b.Indexes {
			text := out[j]
			if s.RestoreEmpty && items[idx].Text == "" {
				text = ""
			}
			res.Texts[idx] = text
			res.Done[idx] = true
		}
		done += len(b.Items)
		if s.OnProgress != nil {
			s.OnProgress(done, len(items))
		}
	}
	return res
}

// TranslateAll translates pending strings and returns a slice of the same
// length and order. Slots of failed or skipped batches keep their input
// text; the error then holds a *BatchError naming each of their ranges.
func (s *Scheduler) TranslateAll(ctx context.Context, pending []string, source, target string) ([]string, error) {
	items := lo.Map(pending, func(p string, _ int) Item { return Item{Text: p} })
	res := s.Run(ctx, items, source, target)
	out := make([]string, len(pending))
	for i := range pending {
		if res.Done[i] {
			out[i] = res.Texts[i]
		} else {
			out[i] = pending[i]
		}
	}
	return out, res.Err()
}

// Summary is a one-line description of a result.
func (r *Result) Summary() string {
	parts := []string{fmt.Sprintf("%d/%d translated", lo.Count(r.Done, true), len(r.Items))}
	if n := len(r.Errors); n > 0 {
		parts = append(parts, fmt.Sprintf("%d batch(es) failed", n))
	}
	if n := len(r.Rejected); n > 0 {
		parts = append(parts, fmt.Sprintf("%d too large", n))
	}
	if n := len(r.Skipped); n > 0 {
		parts = append(parts, fmt.Sprintf("%d batch(es) skipped", n))
	}
	return strings.Join(parts, ", ")
}
