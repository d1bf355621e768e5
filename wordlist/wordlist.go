// Package wordlist reads and writes the plain-text exchange files used for
// external translation round-trips.
//
// Two line formats exist:
//
//	key<TAB>translation      property wordlists, "\n" escaped as a literal backslash-n
//	key<SEP>translation      basedata translation lists, SEP configurable (default '§')
//
// A line with the wrong number of fields makes the whole file invalid; the
// error names the offending line.
package wordlist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/minios-linux/bundlekit/charset"
	"github.com/minios-linux/bundlekit/locale"
)

// DefaultSeparator separates fields in basedata lists and basedata files.
const DefaultSeparator = '§'

// Pair is one key/translation line.
type Pair struct {
	Key         string
	Translation string
	Line        int
}

// MalformedInputError reports a line that does not have the expected
// field count.
type MalformedInputError struct {
	Path string
	Line int
	Text string
	Want int
	Got  int
}

func (e *MalformedInputError) Error() string {
	where := fmt.Sprintf("line %d", e.Line)
	if e.Path != "" {
		where = e.Path + ":" + where
	}
	return fmt.Sprintf("%s: expected %d fields, got %d: %q", where, e.Want, e.Got, e.Text)
}

// List is an ordered set of pairs with key lookup.
type List struct {
	Pairs []Pair
	index map[string]int
}

// Get returns the translation for key.
func (l *List) Get(key string) (string, bool) {
	if i, ok := l.index[key]; ok {
		return l.Pairs[i].Translation, true
	}
	return "", false
}

// Len returns the number of pairs.
func (l *List) Len() int {
	return len(l.Pairs)
}

// Map returns key → translation.
func (l *List) Map() map[string]string {
	m := make(map[string]string, len(l.Pairs))
	for _, p := range l.Pairs {
		m[p.Key] = p.Translation
	}
	return m
}

func (l *List) add(p Pair) {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if i, ok := l.index[p.Key]; ok {
		// Later lines override earlier ones for the same key.
		l.Pairs[i].Translation = p.Translation
		return
	}
	l.index[p.Key] = len(l.Pairs)
	l.Pairs = append(l.Pairs, p)
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// ParseTSV reads a property wordlist: key<TAB>translation, with literal
// "\n" sequences in the translation turned into newlines.
func ParseTSV(r io.Reader) (*List, error) {
	return parse(r, "\t", true)
}

// Parse reads a basedata translation list: key<sep>translation.
func Parse(r io.Reader, sep rune) (*List, error) {
	return parse(r, string(sep), false)
}

// ReadTSVFile is ParseTSV on a file stored in charset cs ("" for UTF-8).
func ReadTSVFile(path, cs string) (*List, error) {
	return readFile(path, cs, func(r io.Reader) (*List, error) { return ParseTSV(r) })
}

// ReadFile is Parse on a file stored in charset cs ("" for UTF-8).
func ReadFile(path string, sep rune, cs string) (*List, error) {
	return readFile(path, cs, func(r io.Reader) (*List, error) { return Parse(r, sep) })
}

func readFile(path, cs string, parseFn func(io.Reader) (*List, error)) (*List, error) {
	if cs == "" {
		cs = locale.CharsetUTF8
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	text, err := charset.DecodeStrict(data, cs)
	if err != nil {
		return nil, &charset.EncodingError{Path: path, Expected: cs, Guess: charset.Guess(data, path), Err: err}
	}
	l, err := parseFn(strings.NewReader(text))
	if err != nil {
		if m, ok := err.(*MalformedInputError); ok {
			m.Path = path
			return nil, m
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

func parse(r io.Reader, sep string, unescapeNewlines bool) (*List, error) {
	l := &List{index: make(map[string]int)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSuffix(sc.Text(), "\r")
		if n == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, sep)
		if len(fields) != 2 {
			return nil, &MalformedInputError{Line: n, Text: text, Want: 2, Got: len(fields)}
		}
		translation := fields[1]
		if unescapeNewlines {
			translation = strings.ReplaceAll(translation, `\n`, "\n")
		}
		l.add(Pair{Key: strings.TrimSpace(fields[0]), Translation: translation, Line: n})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// ReadLines returns the non-blank lines of a plain source list, used as
// input for wordlist translation.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var lines []string
	for _, ln := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n") {
		if strings.TrimSpace(ln) != "" {
			lines = append(lines, ln)
		}
	}
	return lines, nil
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// WriteTSV writes pairs as key<TAB>translation lines, escaping newlines.
func WriteTSV(w io.Writer, pairs []Pair) error {
	return write(w, pairs, "\t", true)
}

// Write writes pairs as key<sep>translation lines.
func Write(w io.Writer, pairs []Pair, sep rune) error {
	return write(w, pairs, string(sep), false)
}

func write(w io.Writer, pairs []Pair, sep string, escapeNewlines bool) error {
	bw := bufio.NewWriter(w)
	for _, p := range pairs {
		t := p.Translation
		if escapeNewlines {
			t = strings.ReplaceAll(t, "\n", `\n`)
		}
		if strings.Contains(p.Key, sep) || strings.Contains(t, sep) {
			return fmt.Errorf("key %q: field contains separator %q", p.Key, sep)
		}
		if _, err := fmt.Fprintf(bw, "%s%s%s\n", p.Key, sep, t); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes pairs to path in the format selected by sep; a tab
// separator selects the escaped property format.
func WriteFile(path string, pairs []Pair, sep rune) error {
	var buf bytes.Buffer
	var err error
	if sep == '\t' {
		err = WriteTSV(&buf, pairs)
	} else {
		err = Write(&buf, pairs, sep)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
