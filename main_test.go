package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/fatih/color"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// TestMain keeps stored credentials and provider keys of the machine out of
// the tests.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "bundlekit-test-")
	if err != nil {
		panic(err)
	}
	os.Setenv("XDG_DATA_HOME", dir)
	for _, name := range []string{"BUNDLEKIT_API_KEY", "DEEPL_AUTH_KEY", "BUNDLEKIT_PROVIDER", "BUNDLEKIT_BASE_URL"} {
		os.Unsetenv(name)
	}
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logOut = io.Discard
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		logOut = color.Error
		color.NoColor = noColor
	})

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}

// workspace creates root/acme/ghs_acme/properties with English and German
// bundles.
func workspace(t *testing.T) (root, props string) {
	t.Helper()
	root = t.TempDir()
	props = filepath.Join(root, "acme", "ghs_acme", "properties")
	writeFile(t, filepath.Join(props, "messages_en.properties"), "save=Save\nopen=Open\n")
	writeFile(t, filepath.Join(props, "messages_de.properties"), "save=Speichern\nopen=\xd6ffnen\n")
	return root, props
}

// fakeDeepL serves /translate by prefixing each text and /usage with a
// generous quota.
func fakeDeepL(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/usage":
			io.WriteString(w, `{"character_count":10,"character_limit":500000}`)
		case "/translate":
			if err := r.ParseForm(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			type tr struct {
				Text string `json:"text"`
			}
			var resp struct {
				Translations []tr `json:"translations"`
			}
			for _, text := range r.PostForm["text"] {
				resp.Translations = append(resp.Translations, tr{Text: r.PostForm.Get("target_lang") + " " + text})
			}
			json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// ---------------------------------------------------------------------------
// helper functions
// ---------------------------------------------------------------------------

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{&exitError{code: exitPartial}, 1},
		{fatal(errors.New("bad")), 2},
		{errors.New("unknown flag"), 2},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
	if got := (&exitError{code: 1}).Error(); got != "exit status 1" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestProgressBar(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	tests := []struct {
		name    string
		percent int
		width   int
		want    string
	}{
		{"clamps below zero", -10, 4, "░░░░   0%"},
		{"mid range", 50, 4, "██░░  50%"},
		{"clamps above hundred", 120, 4, "████ 100%"},
	}
	for _, tc := range tests {
		if got := progressBar(tc.percent, tc.width); got != tc.want {
			t.Fatalf("%s: progressBar() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSplitLangs(t *testing.T) {
	got := splitLangs(" FR, de_DE,,fr ,pt-BR")
	want := []string{"fr", "de", "pt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitLangs() = %#v, want %#v", got, want)
	}
	if got := splitLangs(""); len(got) != 0 {
		t.Fatalf("splitLangs(\"\") = %#v", got)
	}
}

func TestIntersectLanguages(t *testing.T) {
	available := []string{"en", "fr", "de", "es"}
	filter := []string{" fr ", "es", "it"}
	want := []string{"fr", "es"}
	if got := intersectLanguages(available, filter); !reflect.DeepEqual(got, want) {
		t.Fatalf("intersectLanguages() = %#v, want %#v", got, want)
	}
}

func TestFilterOutLang(t *testing.T) {
	langs := []string{"en", "fr", "en", "de"}
	want := []string{"fr", "de"}
	if got := filterOutLang(langs, "en"); !reflect.DeepEqual(got, want) {
		t.Fatalf("filterOutLang() = %#v, want %#v", got, want)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(filePath, []byte("ok"), 0644); err != nil {
		t.Fatalf("os.WriteFile() error: %v", err)
	}
	if !fileExists(filePath) {
		t.Fatalf("fileExists(file) = false, want true")
	}
	if fileExists(dir) {
		t.Fatalf("fileExists(directory) = true, want false")
	}
	if fileExists(filepath.Join(dir, "missing.txt")) {
		t.Fatalf("fileExists(missing) = true, want false")
	}
}

// ---------------------------------------------------------------------------
// commands
// ---------------------------------------------------------------------------

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "bundlekit version dev") {
		t.Fatalf("output = %q", out)
	}
}

func TestMergeBasedataCmd(t *testing.T) {
	root := t.TempDir()
	i18nDir := filepath.Join("database", "liquibase", "latest", "data", "i18n")
	project := filepath.Join(root, "acme", "ghs_acme", i18nDir, "localized-durations-project.csv")
	product := filepath.Join(root, "product", "ghs", i18nDir, "localized-durations.csv")
	writeFile(t, project, "K1§de§Hund\nK1§en§Dog\n")
	writeFile(t, product, "K2§de§Katze\n")
	translations := filepath.Join(root, "fr.txt")
	writeFile(t, translations, "K1§Chien\nK2§Chat\nK3§Oiseau\n")
	report := filepath.Join(root, "report.yaml")

	_, err := execute(t, "--root", root, "--report", report,
		"merge-basedata", "--translations", translations, "--locale", "fr", "--project", "acme", "--include-product")
	if err != nil {
		t.Fatalf("merge-basedata: %v", err)
	}
	if got := readFile(t, project); got != "K1§de§Hund\nK1§en§Dog\nK1§fr§Chien\n" {
		t.Errorf("project file = %q", got)
	}
	if got := readFile(t, product); got != "K2§de§Katze\nK2§fr§Chat\n" {
		t.Errorf("product file = %q", got)
	}
	rep := readFile(t, report)
	for _, want := range []string{"project: acme", "project: product", "- K3"} {
		if !strings.Contains(rep, want) {
			t.Errorf("report missing %q:\n%s", want, rep)
		}
	}
}

func TestMergeBasedataCmd_Latin1Translations(t *testing.T) {
	root := t.TempDir()
	i18nDir := filepath.Join("database", "liquibase", "latest", "data", "i18n")
	project := filepath.Join(root, "acme", "ghs_acme", i18nDir, "localized-durations-project.csv")
	writeFile(t, project, "K1§de§Liebling\n")
	translations := filepath.Join(root, "fr.txt")
	writeFile(t, translations, "K1\xa7Ch\xe9ri\n")

	_, err := execute(t, "--root", root,
		"merge-basedata", "--translations", translations, "--charset", "ISO-8859-1", "--locale", "fr", "--project", "acme")
	if err != nil {
		t.Fatalf("merge-basedata: %v", err)
	}
	if got := readFile(t, project); got != "K1§de§Liebling\nK1§fr§Chéri\n" {
		t.Errorf("project file = %q", got)
	}

	// Without --charset the list is read as UTF-8 and rejected.
	_, err = execute(t, "--root", root,
		"merge-basedata", "--translations", translations, "--locale", "fr", "--project", "acme")
	if exitCode(err) != exitFatal {
		t.Fatalf("exit code = %d (%v), want 2", exitCode(err), err)
	}
}

func TestMergeBasedataCmd_UnknownProjectIsFatal(t *testing.T) {
	root := t.TempDir()
	translations := filepath.Join(root, "fr.txt")
	writeFile(t, translations, "K1§Chien\n")

	_, err := execute(t, "--root", root,
		"merge-basedata", "--translations", translations, "--locale", "fr", "--project", "nope")
	if exitCode(err) != exitFatal {
		t.Fatalf("exit code = %d (%v), want 2", exitCode(err), err)
	}
}

func TestReconcileCmd_ConcatKnown(t *testing.T) {
	root, props := workspace(t)

	_, err := execute(t, "--root", root, "reconcile", "--project", "acme", "--locale", "fr", "--concat-known")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := readFile(t, filepath.Join(props, "messages_fr.properties"))
	want := "save=Save/Speichern (FR)\nopen=Open/\xd6ffnen (FR)\n"
	if got != want {
		t.Fatalf("fr bundle = %q, want %q", got, want)
	}
}

func TestReconcileCmd_DeepL(t *testing.T) {
	root, props := workspace(t)
	srv := fakeDeepL(t)
	t.Setenv("BUNDLEKIT_BASE_URL", srv.URL)
	t.Setenv("DEEPL_AUTH_KEY", "test-key")
	report := filepath.Join(root, "run.yaml")

	_, err := execute(t, "--root", root, "--report", report, "reconcile", "--project", "acme", "--locale", "it")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := readFile(t, filepath.Join(props, "messages_it.properties"))
	if got != "save=IT Save\nopen=IT Open\n" {
		t.Fatalf("it bundle = %q", got)
	}
	rep := readFile(t, report)
	if !strings.Contains(rep, "state: done") || !strings.Contains(rep, "applied: 2") {
		t.Fatalf("report:\n%s", rep)
	}
}

func TestReconcileCmd_MissingKeyIsFatal(t *testing.T) {
	root, _ := workspace(t)
	t.Setenv("DEEPL_AUTH_KEY", "")
	t.Setenv("BUNDLEKIT_API_KEY", "")

	_, err := execute(t, "--root", root, "reconcile", "--locale", "fr")
	if exitCode(err) != exitFatal {
		t.Fatalf("exit code = %d (%v), want 2", exitCode(err), err)
	}
}

func TestExportCmd(t *testing.T) {
	root, props := workspace(t)
	writeFile(t, filepath.Join(props, "messages_fr.properties"), "save=Save (FR)\nopen=Ouvrir\n")

	out, err := execute(t, "--root", root, "export", "--project", "acme", "--locale", "fr")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out != "ghs_acme.save\tSave\n" {
		t.Fatalf("export output = %q", out)
	}
}

func TestImportCmd(t *testing.T) {
	root, props := workspace(t)
	list := filepath.Join(root, "fr.tsv")
	writeFile(t, list, "ghs_acme.save\tEnregistrer\nghs_acme.open\tOuvrir\n")

	_, err := execute(t, "--root", root, "import", "--project", "acme", "--locale", "fr", "--translations", list)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	got := readFile(t, filepath.Join(props, "messages_fr.properties"))
	if got != "open=Ouvrir\nsave=Enregistrer\n" {
		t.Fatalf("fr bundle = %q", got)
	}
}

func TestStatusCmd(t *testing.T) {
	root, props := workspace(t)
	writeFile(t, filepath.Join(props, "messages_fr.properties"), "save=Save (FR)\nopen=Ouvrir\n")

	out, err := execute(t, "--root", root, "status", "--project", "acme", "--locale", "fr")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "fr") || !strings.Contains(out, "50%") {
		t.Fatalf("status output:\n%s", out)
	}
}

func TestTranslateWordlistCmd(t *testing.T) {
	root := t.TempDir()
	srv := fakeDeepL(t)
	t.Setenv("BUNDLEKIT_BASE_URL", srv.URL)
	t.Setenv("DEEPL_AUTH_KEY", "test-key")
	in := filepath.Join(root, "terms.txt")
	writeFile(t, in, "Hund\nKatze§Chat\n")

	_, err := execute(t, "--root", root, "translate-wordlist", "--in", in, "--target", "fr")
	if err != nil {
		t.Fatalf("translate-wordlist: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "terms_out.txt")); got != "Hund§FR Hund\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestAuthCmds(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := execute(t, "auth", "set", "babelfish", "--key", "x"); exitCode(err) != exitFatal {
		t.Fatalf("unknown provider accepted: %v", err)
	}
	if _, err := execute(t, "auth", "set", "deepl", "--key", "abcd1234efgh"); err != nil {
		t.Fatalf("auth set: %v", err)
	}
	out, err := execute(t, "auth", "list")
	if err != nil {
		t.Fatalf("auth list: %v", err)
	}
	if !strings.Contains(out, "configured (key: abcd...efgh)") {
		t.Fatalf("auth list output:\n%s", out)
	}

	if _, err := execute(t, "auth", "remove"); exitCode(err) != exitFatal {
		t.Fatalf("remove without provider: %v", err)
	}
	if _, err := execute(t, "auth", "remove", "deepl"); err != nil {
		t.Fatalf("auth remove: %v", err)
	}
	out, _ = execute(t, "auth", "list")
	if strings.Contains(out, "abcd") {
		t.Fatalf("key still listed:\n%s", out)
	}
}
