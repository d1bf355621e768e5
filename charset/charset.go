// Package charset converts bundle file bytes between the encodings used by
// the locale registry (ISO-8859-1, ISO-8859-2 and UTF-8).
//
// Decoding a single-byte charset never fails on its own, so Decode with
// strict checking also rejects files that are clearly UTF-8 while a
// single-byte charset is expected. That is the common way bundle files get
// damaged: an editor silently re-saves them as UTF-8.
package charset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/minios-linux/bundlekit/locale"
)

var (
	// ErrUnknownCharset is returned for charset names not in the table below.
	ErrUnknownCharset = errors.New("unknown charset")
	// ErrInvalidUTF8 is returned when UTF-8 input contains invalid sequences.
	ErrInvalidUTF8 = errors.New("invalid UTF-8 input")
	// ErrLooksUTF8 is returned by strict decoding when a single-byte file
	// contains multi-byte UTF-8 sequences.
	ErrLooksUTF8 = errors.New("content is UTF-8 encoded")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// EncodingError reports a file that could not be decoded with the charset
// its locale requires.
type EncodingError struct {
	Path     string
	Expected string
	// Guess is the charset the content most likely uses, empty when unknown.
	Guess string
	Err   error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("%s: cannot decode as %s: %v", e.Path, e.Expected, e.Err)
	if e.Guess != "" && e.Guess != e.Expected {
		msg += fmt.Sprintf(" (looks like %s)", e.Guess)
	}
	return msg
}

func (e *EncodingError) Unwrap() error { return e.Err }

func lookup(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "ISO-8859-1", "LATIN1", "ISO8859-1":
		return charmap.ISO8859_1, nil
	case "ISO-8859-2", "LATIN2", "ISO8859-2":
		return charmap.ISO8859_2, nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252, nil
	case "WINDOWS-1250", "CP1250":
		return charmap.Windows1250, nil
	case "UTF-8", "UTF8":
		return unicode.UTF8, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCharset, name)
}

// Supported reports whether name is a known charset.
func Supported(name string) bool {
	_, err := lookup(name)
	return err == nil
}

// Decode converts data from the named charset to a Go string.
// Invalid UTF-8 input for the UTF-8 charset is an error; a leading BOM is
// dropped.
func Decode(data []byte, name string) (string, error) {
	enc, err := lookup(name)
	if err != nil {
		return "", err
	}
	if enc == unicode.UTF8 {
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w at byte %d", ErrInvalidUTF8, invalidOffset(data))
		}
		return string(data), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeStrict is Decode plus a check that single-byte content is not
// actually UTF-8.
func DecodeStrict(data []byte, name string) (string, error) {
	enc, err := lookup(name)
	if err != nil {
		return "", err
	}
	if enc != unicode.UTF8 && hasMultiByteUTF8(data) {
		return "", ErrLooksUTF8
	}
	return Decode(data, name)
}

// Encode converts s to the named charset. Runes the charset cannot
// represent are an error; callers escape them beforehand with Encodable.
func Encode(s, name string) ([]byte, error) {
	enc, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 {
		return []byte(s), nil
	}
	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding to %s: %w", name, err)
	}
	return out, nil
}

// Encodable returns a predicate telling whether a rune can be represented
// in the named charset. Unknown charsets accept everything.
func Encodable(name string) func(rune) bool {
	enc, err := lookup(name)
	if err != nil || enc == unicode.UTF8 {
		return func(rune) bool { return true }
	}
	cm, ok := enc.(*charmap.Charmap)
	if !ok {
		return func(rune) bool { return true }
	}
	return func(r rune) bool {
		_, ok := cm.EncodeRune(r)
		return ok
	}
}

// Convert re-encodes data from one charset to another.
func Convert(data []byte, from, to string) ([]byte, error) {
	text, err := Decode(data, from)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", from, err)
	}
	return Encode(text, to)
}

// ConvertFile re-encodes a file in place. The result is written to a
// temporary file in the same directory and renamed over the original.
func ConvertFile(path, from, to string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	out, err := Convert(data, from, to)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", tmpName, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Guessing
// ---------------------------------------------------------------------------

var fileLocalePattern = regexp.MustCompile(`_([A-Za-z]{2,3})(?:_[A-Za-z]{2})?\.[A-Za-z]+$`)

// LocaleFromName extracts the locale code from a bundle file name such as
// messages_fr.properties or messages_pt_BR.properties. Returns "" when the
// name carries no code.
func LocaleFromName(name string) string {
	m := fileLocalePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// Guess returns the charset data most likely uses. Content that is valid
// UTF-8 with multi-byte sequences is UTF-8; otherwise the charset of the
// locale named in fileName is assumed, or ISO-8859-1 when that locale is
// itself UTF-8.
func Guess(data []byte, fileName string) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if hasMultiByteUTF8(data) {
		return locale.CharsetUTF8
	}
	if code := LocaleFromName(fileName); code != "" {
		if cs := locale.Lookup(code).Charset; cs != locale.CharsetUTF8 {
			return cs
		}
	}
	return locale.CharsetLatin1
}

// hasMultiByteUTF8 reports whether data is valid UTF-8 containing at least
// one non-ASCII rune.
func hasMultiByteUTF8(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

func invalidOffset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}
