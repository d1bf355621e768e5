package propfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minios-linux/bundlekit/charset"
)

func TestParse_Basic(t *testing.T) {
	data := []byte("greeting=Hello\nfarewell=Goodbye\n")
	f, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := f.Get("greeting"); got != "Hello" {
		t.Errorf("greeting = %q, want %q", got, "Hello")
	}
	if got, _ := f.Get("farewell"); got != "Goodbye" {
		t.Errorf("farewell = %q, want %q", got, "Goodbye")
	}
}

func TestParse_CommentsAndBlanks(t *testing.T) {
	f := ParseString("# This is a comment\n\nkey=value\n")
	if len(f.Keys()) != 1 {
		t.Errorf("expected 1 key, got %d", len(f.Keys()))
	}
	if got, _ := f.Get("key"); got != "value" {
		t.Errorf("key = %q, want %q", got, "value")
	}
}

func TestParse_ColonSeparator(t *testing.T) {
	f := ParseString("name: World\n")
	if got, _ := f.Get("name"); got != "World" {
		t.Errorf("name = %q, want %q", got, "World")
	}
}

func TestParse_ValueWithEquals(t *testing.T) {
	f := ParseString("url=http://example.com?a=1&b=2\n")
	if got, _ := f.Get("url"); got != "http://example.com?a=1&b=2" {
		t.Errorf("url = %q", got)
	}
}

func TestParse_ExclamationComment(t *testing.T) {
	f := ParseString("! another comment\nkey=val\n")
	if len(f.Keys()) != 1 {
		t.Errorf("expected 1 key, got %d", len(f.Keys()))
	}
}

func TestParse_Escapes(t *testing.T) {
	f := ParseString(`a=Zeile 1\nZeile 2
b=caf\u00e9
c=C:\\temp
d=\ud83d\ude00
e=broken\u12
`)
	want := map[string]string{
		"a": "Zeile 1\nZeile 2",
		"b": "café",
		"c": `C:\temp`,
		"d": "😀",
		"e": `broken\u12`,
	}
	for k, w := range want {
		if got, _ := f.Get(k); got != w {
			t.Errorf("%s = %q, want %q", k, got, w)
		}
	}
}

func TestParse_DuplicateKeyKeepsFirstPosition(t *testing.T) {
	f := ParseString("a=1\nb=2\na=3\n")
	entries := f.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Key != "a" || entries[0].Value != "3" || entries[0].Line != 0 {
		t.Errorf("entries[0] = %+v", entries[0])
	}
}

func TestStats(t *testing.T) {
	f := ParseString("a=hello\nb=\nc=world\n")
	total, translated, _ := f.Stats()
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if translated != 2 {
		t.Errorf("translated = %d, want 2", translated)
	}
}

func TestUntranslatedKeys(t *testing.T) {
	f := ParseString("a=hello\nb=\nc=\n")
	if keys := f.UntranslatedKeys(); len(keys) != 2 {
		t.Errorf("untranslated = %d, want 2", len(keys))
	}
}

func TestSet_AndMarshal(t *testing.T) {
	f := ParseString("a=\nb=\n")
	f.Set("a", "value_a")
	f.Set("b", "value_b")

	out := f.Marshal()
	if !strings.Contains(out, "a=value_a") {
		t.Errorf("marshal missing a=value_a: %s", out)
	}
	if !strings.Contains(out, "b=value_b") {
		t.Errorf("marshal missing b=value_b: %s", out)
	}
	if !f.Changed() {
		t.Error("Changed() = false after Set")
	}
}

func TestSet_SameValueIsNoChange(t *testing.T) {
	f := ParseString("a = same\n")
	if !f.Set("a", "same") {
		t.Fatal("Set on existing key returned false")
	}
	if f.Changed() {
		t.Error("Changed() = true after setting identical value")
	}
	if f.Set("missing", "x") {
		t.Error("Set on missing key returned true")
	}
}

func TestPut_AppendsNewKey(t *testing.T) {
	f := ParseString("# c\na=1\n")
	if !f.Put("b", "2") {
		t.Fatal("Put(b) reported no change")
	}
	if f.Put("a", "1") {
		t.Fatal("Put(a, same) reported change")
	}
	if got := f.Marshal(); got != "# c\na=1\nb=2\n" {
		t.Fatalf("Marshal = %q", got)
	}
}

func TestMarshal_PreservesUntouchedLines(t *testing.T) {
	src := "# header\n\nkey = value\nother:  spaced\n"
	f := ParseString(src)
	if got := f.Marshal(); got != src {
		t.Errorf("round-trip failed:\ngot:  %q\nwant: %q", got, src)
	}

	f.Set("other", "new")
	want := "# header\n\nkey = value\nother=new\n"
	if got := f.Marshal(); got != want {
		t.Errorf("after Set:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestMarshal_EscapesUnencodableRunes(t *testing.T) {
	f := ParseString("a=x\n")
	f.SetEncodable(charset.Encodable("ISO-8859-1"))
	f.Set("a", "Straße – ok\nzwei")
	want := `a=Straße \u2013 ok\nzwei` + "\n"
	if got := f.Marshal(); got != want {
		t.Fatalf("Marshal = %q, want %q", got, want)
	}

	// Reading the escaped text back yields the same value.
	back := ParseString(want)
	if got, _ := back.Get("a"); got != "Straße – ok\nzwei" {
		t.Fatalf("round trip value = %q", got)
	}
}

func TestReadWriteFile_Charset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messages_ro.properties")

	f := ParseString("title=Casă\n")
	if err := f.WriteFile(path, "ISO-8859-2"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "title=Cas\xe3\n" {
		t.Fatalf("file bytes = %q", data)
	}

	back, err := ReadFile(path, "ISO-8859-2")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := back.Get("title"); got != "Casă" {
		t.Fatalf("title = %q", got)
	}
}

func TestReadFileStrict_EncodingError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messages_de.properties")
	if err := os.WriteFile(path, []byte("a=Größe\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadFile(path, "ISO-8859-1"); err != nil {
		t.Fatalf("lenient read failed: %v", err)
	}

	_, err := ReadFileStrict(path, "ISO-8859-1")
	var encErr *charset.EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("error = %v, want *charset.EncodingError", err)
	}
	if encErr.Guess != "UTF-8" {
		t.Errorf("Guess = %q, want UTF-8", encErr.Guess)
	}
}

func TestFlaggedCopy(t *testing.T) {
	src := ParseString("# reference\nsave=Save\nempty=\nkept=Open (FR)\n")
	cp := FlaggedCopy(src, " (FR)")

	want := "# reference\nsave=Save (FR)\nempty=\nkept=Open (FR)\n"
	if got := cp.Marshal(); got != want {
		t.Fatalf("Marshal = %q, want %q", got, want)
	}
	if v, _ := src.Get("save"); v != "Save" {
		t.Errorf("source modified: save = %q", v)
	}
}

func TestAppendMissing(t *testing.T) {
	src := ParseString("a=hello\nb=world\nc=new\n")
	target := ParseString("a=bonjour\n")

	if n := AppendMissing(src, target, " (FR)"); n != 2 {
		t.Fatalf("AppendMissing = %d, want 2", n)
	}
	if v, _ := target.Get("a"); v != "bonjour" {
		t.Errorf("a = %q, want bonjour", v)
	}
	if v, _ := target.Get("c"); v != "new (FR)" {
		t.Errorf("c = %q, want %q", v, "new (FR)")
	}
	if AppendMissing(src, target, " (FR)") != 0 {
		t.Error("second AppendMissing should add nothing")
	}
}

func TestParse_ValueWhitespace(t *testing.T) {
	f := ParseString("a =   padded  \nb=\\  lead\nc=\\ \n")
	want := map[string]string{
		"a": "padded  ",
		"b": "  lead",
		"c": " ",
	}
	for k, w := range want {
		if got, _ := f.Get(k); got != w {
			t.Errorf("%s = %q, want %q", k, got, w)
		}
	}
}

func TestMarshal_WhitespaceRoundTrip(t *testing.T) {
	for _, v := range []string{" ", "  x", "x ", " x ", "\tx"} {
		f := ParseString("k=old\n")
		f.Set("k", v)
		back := ParseString(f.Marshal())
		if got, _ := back.Get("k"); got != v {
			t.Errorf("round-trip of %q = %q", v, got)
		}
	}
}

func TestMarshal_KeepsWhitespaceOnlyLines(t *testing.T) {
	src := "a=1\n   \n\t\nb=2\n"
	f := ParseString(src)
	f.Set("a", "one")
	if got, want := f.Marshal(), "a=one\n   \n\t\nb=2\n"; got != want {
		t.Errorf("Marshal() = %q, want %q", got, want)
	}
}
