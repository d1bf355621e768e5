package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/minios-linux/bundlekit/batch"
	"github.com/minios-linux/bundlekit/translate"
	"github.com/minios-linux/bundlekit/wordlist"
)

// WordlistOptions controls TranslateWordlist.
type WordlistOptions struct {
	Provider translate.Provider
	Limits   batch.Limits
	// Source and Target are the language codes, Source may be "auto".
	Source string
	Target string
	// Separator joins source line and translation in the output.
	Separator  rune
	OnProgress func(done, total int)
	OnLog      func(format string, args ...any)
}

// OutputPath returns the output file for a wordlist: name_out.ext next to
// the input.
func OutputPath(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + "_out" + ext
}

// TranslateWordlist translates every line of a plain list and writes
// "line<sep>translation" pairs to OutputPath(in). Lines that already
// contain the separator are skipped. Lines of failed batches are left out
// of the output and reported through the result.
func TranslateWordlist(ctx context.Context, in string, opts WordlistOptions) (string, *batch.Result, error) {
	sep := opts.Separator
	if sep == 0 {
		sep = wordlist.DefaultSeparator
	}
	lines, err := wordlist.ReadLines(in)
	if err != nil {
		return "", nil, err
	}
	lines = lo.Filter(lines, func(l string, _ int) bool { return !strings.ContainsRune(l, sep) })

	items := lo.Map(lines, func(l string, _ int) batch.Item {
		return batch.Item{Ref: batch.Ref{File: in, Key: l}, Text: l}
	})
	sched := &batch.Scheduler{
		Provider:   opts.Provider,
		Limits:     opts.Limits,
		OnProgress: opts.OnProgress,
		OnLog:      opts.OnLog,
	}
	res := sched.Run(ctx, items, opts.Source, opts.Target)

	var pairs []wordlist.Pair
	for i, ok := range res.Done {
		if !ok {
			continue
		}
		text := strings.ReplaceAll(res.Texts[i], string(sep), " ")
		pairs = append(pairs, wordlist.Pair{Key: lines[i], Translation: text})
	}
	out := OutputPath(in)
	if err := wordlist.WriteFile(out, pairs, sep); err != nil {
		return "", res, fmt.Errorf("writing wordlist: %w", err)
	}
	return out, res, nil
}
