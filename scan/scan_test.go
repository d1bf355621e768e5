package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/minios-linux/bundlekit/charset"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

// buildTree creates a small multi-module layout:
//
//	root/messages_fr.properties
//	root/app/src/properties/messages_fr.properties (+ messages_en)
//	root/app/bin/messages_fr.properties            (excluded)
//	root/lib/build/messages_fr.properties          (excluded)
//	root/lib/src/messages_fr.properties            (UTF-8, wrong encoding)
//	root/lib/src/messages_de.properties
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "messages_fr.properties"), []byte("top=Haut\n"))
	writeFile(t, filepath.Join(root, "app", "src", "properties", "messages_fr.properties"), []byte("save=Save (FR)\nopen=Ouvrir\n"))
	writeFile(t, filepath.Join(root, "app", "src", "properties", "messages_en.properties"), []byte("save=Save\nopen=Open\n"))
	writeFile(t, filepath.Join(root, "app", "bin", "messages_fr.properties"), []byte("x=y\n"))
	writeFile(t, filepath.Join(root, "lib", "build", "messages_fr.properties"), []byte("x=y\n"))
	writeFile(t, filepath.Join(root, "lib", "src", "messages_fr.properties"), []byte("title=Économie\n"))
	writeFile(t, filepath.Join(root, "lib", "src", "messages_de.properties"), []byte("title=Wirtschaft\n"))
	return root
}

func TestScan_FindsBundlesAndSkipsExcluded(t *testing.T) {
	root := buildTree(t)

	for _, workers := range []int{1, 4} {
		res, err := Scan(context.Background(), root, "fr", Options{Workers: workers, Reference: "en"})
		if err != nil {
			t.Fatalf("workers=%d: Scan error: %v", workers, err)
		}

		var got []string
		for _, b := range res.Bundles {
			rel, _ := filepath.Rel(root, b.Path)
			got = append(got, rel)
		}
		want := []string{
			filepath.Join("app", "src", "properties", "messages_fr.properties"),
			filepath.Join("lib", "src", "messages_fr.properties"),
			"messages_fr.properties",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("workers=%d: bundles mismatch (-want +got):\n%s", workers, diff)
		}
		if len(res.Unreadable) != 0 {
			t.Fatalf("workers=%d: unexpected unreadable files: %v", workers, res.Unreadable)
		}

		app := res.Bundles[0]
		if app.Reference == nil {
			t.Fatalf("workers=%d: reference bundle not loaded", workers)
		}
		if v, _ := app.Reference.Get("save"); v != "Save" {
			t.Errorf("reference save = %q", v)
		}
		if app.Charset != "ISO-8859-1" || app.Locale != "fr" {
			t.Errorf("bundle meta = %s/%s", app.Locale, app.Charset)
		}
	}
}

func TestScan_StrictReportsWrongEncoding(t *testing.T) {
	root := buildTree(t)

	res, err := Scan(context.Background(), root, "fr", Options{Workers: 2, Strict: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Bundles) != 2 {
		t.Fatalf("bundles = %d, want 2", len(res.Bundles))
	}
	if len(res.Unreadable) != 1 {
		t.Fatalf("unreadable = %d, want 1", len(res.Unreadable))
	}

	var encErr *charset.EncodingError
	if !errors.As(res.Unreadable[0].Err, &encErr) {
		t.Fatalf("unreadable cause = %T, want *charset.EncodingError", res.Unreadable[0].Err)
	}
	if encErr.Expected != "ISO-8859-1" || encErr.Guess != "UTF-8" {
		t.Errorf("encoding error = %+v", encErr)
	}
	if len(res.Errors()) != 1 {
		t.Errorf("Errors() = %v", res.Errors())
	}
}

func TestScan_InvalidUTF8IsUnreadable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "m", "messages_ru.properties"), []byte{'k', '=', 0xE0, 0xE1})
	writeFile(t, filepath.Join(root, "n", "messages_ru.properties"), []byte("k=ключ\n"))

	res, err := Scan(context.Background(), root, "ru", Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Bundles) != 1 || len(res.Unreadable) != 1 {
		t.Fatalf("bundles=%d unreadable=%d", len(res.Bundles), len(res.Unreadable))
	}
	var encErr *charset.EncodingError
	if !errors.As(res.Unreadable[0].Err, &encErr) {
		t.Fatalf("cause = %v", res.Unreadable[0].Err)
	}
	if !errors.Is(encErr, charset.ErrInvalidUTF8) {
		t.Errorf("cause does not wrap ErrInvalidUTF8: %v", encErr)
	}
}

func TestScan_CustomExclude(t *testing.T) {
	root := buildTree(t)
	res, err := Scan(context.Background(), root, "fr", Options{Exclude: []string{"lib"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Bundles) != 3 {
		// app/src, app/bin (no longer excluded) and the top-level file.
		t.Fatalf("bundles = %d, want 3", len(res.Bundles))
	}
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), "fr", Options{})
	if !errors.Is(err, ErrRootNotFound) {
		t.Fatalf("error = %v, want ErrRootNotFound", err)
	}
}

func TestScan_Canceled(t *testing.T) {
	root := buildTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Scan(ctx, root, "fr", Options{Workers: 2}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestFindAndLocales(t *testing.T) {
	root := buildTree(t)

	paths, err := Find(context.Background(), root, "de", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "messages_de.properties" {
		t.Fatalf("Find(de) = %v", paths)
	}

	codes, err := Locales(context.Background(), root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"de", "en", "fr"}, codes); diff != "" {
		t.Fatalf("Locales mismatch (-want +got):\n%s", diff)
	}
}
