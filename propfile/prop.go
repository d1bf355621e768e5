// Package propfile implements reading and writing of Java .properties
// resource bundles.
//
// Format: key=value (or key:value) pairs, one per line. Lines starting with
// '#' or '!' are comments and blank lines are kept; neither is an entry.
// Multi-line values (backslash continuation) are not supported; each line
// is treated independently.
//
// File naming convention: one file per locale next to each other:
//
//	src/.../properties/messages_en.properties  (reference)
//	src/.../properties/messages_fr.properties  (translation)
//
// The File type keeps every line in document order. Entry lines that were
// not modified are written back byte-for-byte, so rewriting a bundle only
// touches the entries that actually changed.
package propfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/minios-linux/bundlekit/charset"
)

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// lineKind classifies each line in the file.
type lineKind int

const (
	lineBlank   lineKind = iota // blank / whitespace-only line
	lineComment                 // comment line (starts with # or !)
	lineEntry                   // key=value pair
)

// line is a single line in the properties file.
type line struct {
	kind  lineKind
	raw   string // original text as read
	key   string // only for lineEntry
	value string // only for lineEntry; unescaped
	dirty bool   // value changed since parsing; raw is stale
}

// Entry is a key/value pair together with its 0-based line index.
type Entry struct {
	Key   string
	Value string
	Line  int
}

// File represents a parsed .properties file.
type File struct {
	// lines stores all lines in document order.
	lines []line
	// index maps key → index in lines for fast lookup.
	index map[string]int
	// encodable reports whether a rune can be written unescaped.
	encodable func(rune) bool
	// changed is set when an entry was modified or appended.
	changed bool
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ReadFile reads path, decodes it with the named charset and parses it.
// Decode failures are returned as *charset.EncodingError.
func ReadFile(path, cs string) (*File, error) {
	return readFile(path, cs, charset.Decode)
}

// ReadFileStrict is ReadFile but also rejects UTF-8 content in files
// whose charset is single-byte.
func ReadFileStrict(path, cs string) (*File, error) {
	return readFile(path, cs, charset.DecodeStrict)
}

func readFile(path, cs string, decode func([]byte, string) (string, error)) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	text, err := decode(data, cs)
	if err != nil {
		return nil, &charset.EncodingError{
			Path:     path,
			Expected: cs,
			Guess:    charset.Guess(data, path),
			Err:      err,
		}
	}
	f := ParseString(text)
	f.encodable = charset.Encodable(cs)
	return f, nil
}

// Parse parses UTF-8 .properties content from a byte slice.
func Parse(data []byte) (*File, error) {
	return ParseString(string(data)), nil
}

// ParseString parses already decoded .properties content.
func ParseString(text string) *File {
	f := &File{index: make(map[string]int)}

	// Normalise Windows line endings.
	text = strings.ReplaceAll(text, "\r\n", "\n")
	rawLines := strings.Split(text, "\n")

	// Drop trailing empty element from a file that ends with \n.
	if len(rawLines) > 0 && rawLines[len(rawLines)-1] == "" {
		rawLines = rawLines[:len(rawLines)-1]
	}

	for _, raw := range rawLines {
		trimmed := strings.TrimLeft(raw, leadingSpace)

		switch {
		case strings.TrimSpace(trimmed) == "":
			f.lines = append(f.lines, line{kind: lineBlank, raw: raw})

		case strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!"):
			f.lines = append(f.lines, line{kind: lineComment, raw: raw})

		default:
			k, v := splitKeyValue(trimmed)
			if k == "" {
				// Malformed line, kept as a comment.
				f.lines = append(f.lines, line{kind: lineComment, raw: raw})
				continue
			}
			if idx, exists := f.index[k]; exists {
				// Duplicate key: last value wins, first position is kept.
				f.lines[idx].value = v
				f.lines[idx].dirty = true
				continue
			}
			f.index[k] = len(f.lines)
			f.lines = append(f.lines, line{kind: lineEntry, raw: raw, key: k, value: v})
		}
	}

	return f
}

// splitKeyValue splits "key = value" or "key=value" into key and value.
// The separator is the first unescaped '=' or ':'. Whitespace around the
// key and before the value is stripped; trailing whitespace belongs to the
// value. Escapes in the value are resolved.
func splitKeyValue(s string) (key, value string) {
	escaped := false
	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '=' || ch == ':' {
			return strings.TrimSpace(s[:i]), unescape(strings.TrimLeft(s[i+1:], leadingSpace))
		}
	}
	// No separator: the whole line is a key with empty value.
	return strings.TrimSpace(s), ""
}

// unescape resolves \uXXXX, \n, \t, \r, \f and \x → x. A trailing lone
// backslash is kept.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if r, n := decodeUnicodeEscape(s[i+1:]); n > 0 {
				b.WriteRune(r)
				i += n
				continue
			}
			b.WriteString(`\u`)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// decodeUnicodeEscape decodes the hex digits following "\u". A high
// surrogate followed by a "\uDCxx" low surrogate is combined into one rune.
// Returns the number of bytes consumed, 0 when rest is not a valid escape.
func decodeUnicodeEscape(rest string) (rune, int) {
	if len(rest) < 4 {
		return 0, 0
	}
	n, err := strconv.ParseUint(rest[:4], 16, 16)
	if err != nil {
		return 0, 0
	}
	r := rune(n)
	if utf16.IsSurrogate(r) && len(rest) >= 10 && rest[4:6] == `\u` {
		if low, err := strconv.ParseUint(rest[6:10], 16, 16); err == nil {
			if pair := utf16.DecodeRune(r, rune(low)); pair != utf8.RuneError {
				return pair, 10
			}
		}
	}
	return r, 4
}

// leadingSpace is the whitespace skipped before a key and before a value.
const leadingSpace = " \t\f"

// escape renders a value for writing. Backslashes and control characters
// are escaped, as is a leading space; runes
// rejected by encodable are written as \uXXXX.
func escape(s string, encodable func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	for i, r := range s {
		if i == 0 && r == ' ' {
			b.WriteString(`\ `)
			continue
		}
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if encodable != nil && !encodable(r) {
				if r > 0xFFFF {
					r1, r2 := utf16.EncodeRune(r)
					fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
				} else {
					fmt.Fprintf(&b, `\u%04x`, r)
				}
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Keys returns all keys in document order.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.index))
	for _, ln := range f.lines {
		if ln.kind == lineEntry {
			keys = append(keys, ln.key)
		}
	}
	return keys
}

// Entries returns all entries in document order.
func (f *File) Entries() []Entry {
	entries := make([]Entry, 0, len(f.index))
	for i, ln := range f.lines {
		if ln.kind == lineEntry {
			entries = append(entries, Entry{Key: ln.key, Value: ln.value, Line: i})
		}
	}
	return entries
}

// Len returns the number of entries.
func (f *File) Len() int {
	return len(f.index)
}

// UntranslatedKeys returns keys whose value is empty or whitespace.
func (f *File) UntranslatedKeys() []string {
	var keys []string
	for _, ln := range f.lines {
		if ln.kind == lineEntry && strings.TrimSpace(ln.value) == "" {
			keys = append(keys, ln.key)
		}
	}
	return keys
}

// Get returns the value for key and whether it was found.
func (f *File) Get(key string) (string, bool) {
	if idx, ok := f.index[key]; ok {
		return f.lines[idx].value, true
	}
	return "", false
}

// Set sets the value for an existing key. Returns true on success,
// false if the key does not exist.
func (f *File) Set(key, value string) bool {
	idx, ok := f.index[key]
	if !ok {
		return false
	}
	if f.lines[idx].value != value {
		f.lines[idx].value = value
		f.lines[idx].dirty = true
		f.changed = true
	}
	return true
}

// Put sets key to value, appending the key when it does not exist yet.
// It reports whether the file content changed.
func (f *File) Put(key, value string) bool {
	if idx, ok := f.index[key]; ok {
		if f.lines[idx].value == value {
			return false
		}
		f.Set(key, value)
		return true
	}
	f.index[key] = len(f.lines)
	f.lines = append(f.lines, line{kind: lineEntry, key: key, value: value, dirty: true})
	f.changed = true
	return true
}

// Changed reports whether any entry was modified or appended since parsing.
func (f *File) Changed() bool {
	return f.changed
}

// SetEncodable sets the predicate deciding which runes are written
// literally. Runes it rejects are written as \uXXXX escapes.
func (f *File) SetEncodable(fn func(rune) bool) {
	f.encodable = fn
}

// Stats returns (total, translated, percentTranslated) for this file.
// An entry counts as translated when its value is not empty.
func (f *File) Stats() (int, int, float64) {
	total, translated := 0, 0
	for _, ln := range f.lines {
		if ln.kind == lineEntry {
			total++
			if ln.value != "" {
				translated++
			}
		}
	}
	pct := 0.0
	if total > 0 {
		pct = float64(translated) / float64(total) * 100
	}
	return total, translated, pct
}

// Values returns a map of key → value.
func (f *File) Values() map[string]string {
	m := make(map[string]string, len(f.index))
	for _, ln := range f.lines {
		if ln.kind == lineEntry {
			m[ln.key] = ln.value
		}
	}
	return m
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the file back to .properties text. Unmodified lines
// are reproduced as read.
func (f *File) Marshal() string {
	var b strings.Builder
	for _, ln := range f.lines {
		switch {
		case ln.kind == lineEntry && ln.dirty:
			b.WriteString(ln.key)
			b.WriteByte('=')
			b.WriteString(escape(ln.value, f.encodable))
		default:
			b.WriteString(ln.raw)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Encode serialises the file and encodes it with the named charset.
func (f *File) Encode(cs string) ([]byte, error) {
	if f.encodable == nil {
		f.encodable = charset.Encodable(cs)
	}
	return charset.Encode(f.Marshal(), cs)
}

// WriteFile encodes and writes to path, creating parent directories
// with 0755 permissions.
func (f *File) WriteFile(path, cs string) error {
	data, err := f.Encode(cs)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Flagged copies (create a locale from the reference bundle)
// ---------------------------------------------------------------------------

// FlaggedCopy creates a new File mirroring src's structure where every
// non-empty value carries marker, so the entries are found again as
// needing translation.
func FlaggedCopy(src *File, marker string) *File {
	f := &File{index: make(map[string]int), encodable: src.encodable, changed: true}
	for _, ln := range src.lines {
		cp := ln
		if ln.kind == lineEntry {
			cp.value = flag(ln.value, marker)
			cp.dirty = true
			f.index[ln.key] = len(f.lines)
		}
		f.lines = append(f.lines, cp)
	}
	return f
}

// AppendMissing appends every key of src that target lacks, flagged with
// marker. Returns the number of appended keys.
func AppendMissing(src, target *File, marker string) int {
	added := 0
	for _, ln := range src.lines {
		if ln.kind != lineEntry {
			continue
		}
		if _, ok := target.index[ln.key]; ok {
			continue
		}
		target.Put(ln.key, flag(ln.value, marker))
		added++
	}
	return added
}

func flag(value, marker string) string {
	if value == "" || strings.HasSuffix(value, marker) {
		return value
	}
	return value + marker
}
