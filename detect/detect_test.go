package detect

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/minios-linux/bundlekit/propfile"
	"github.com/minios-linux/bundlekit/scan"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		value string
		code  string
		want  Status
	}{
		{"", "fr", Missing},
		{"Save (FR)", "fr", NeedsTranslation},
		{"Save (ES)", "fr", Translated},
		{"Save(FR)", "fr", Translated},
		{"Enregistrer", "fr", Translated},
		{"Save (FR)", "fr_FR", NeedsTranslation},
		{"  ", "fr", Missing},
		{"Save (FR)  ", "fr", NeedsTranslation},
		{" Enregistrer ", "fr", Translated},
	}
	for _, tc := range cases {
		if got := Classify(tc.value, tc.code); got != tc.want {
			t.Errorf("Classify(%q, %q) = %v, want %v", tc.value, tc.code, got, tc.want)
		}
	}
}

func TestUntranslated_MarkerStripped(t *testing.T) {
	f := propfile.ParseString("save=Save (ES)\nopen=Abrir\n")
	got := Untranslated(&scan.Bundle{Path: "messages_es.properties", File: f}, "es")
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	if got[0].Key != "save" || got[0].Source != "Save" {
		t.Fatalf("entry = %+v, want key save with source %q", got[0], "Save")
	}
	if got[0].Status != NeedsTranslation || got[0].Reason != ReasonMarker {
		t.Errorf("status/reason = %v/%v", got[0].Status, got[0].Reason)
	}
}

func TestStripMarker_TrailingWhitespace(t *testing.T) {
	if got := StripMarker("Save (FR) \t", "fr"); got != "Save" {
		t.Fatalf("StripMarker() = %q, want %q", got, "Save")
	}
	if got := StripMarker("Enregistrer ", "fr"); got != "Enregistrer " {
		t.Fatalf("StripMarker() changed an unmarked value: %q", got)
	}
}

func TestUntranslated_EmptyUsesReference(t *testing.T) {
	f := propfile.ParseString("a=\nb=\n")
	ref := propfile.ParseString("a=Apple\n")
	got := UntranslatedFile(f, ref, "x", "fr")
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Source != "Apple" || got[0].Status != Missing || got[0].Reason != ReasonEmpty {
		t.Errorf("a = %+v", got[0])
	}
	if got[1].Source != "" {
		t.Errorf("b source = %q, want empty without reference", got[1].Source)
	}
}

func TestUntranslated_MisencodedFallsBackToReference(t *testing.T) {
	f := propfile.ParseString("size=Gr??e (DE)\nq=Why? (DE)\n")
	ref := propfile.ParseString("size=Size\nq=Why?\n")
	got := UntranslatedFile(f, ref, "x", "de")
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Source != "Size" || got[0].Reason != ReasonMisencoded {
		t.Errorf("size = %+v", got[0])
	}
	// A trailing question mark is ordinary punctuation.
	if got[1].Source != "Why?" || got[1].Reason != ReasonMarker {
		t.Errorf("q = %+v", got[1])
	}
}

func TestUntranslated_StableOrderAndOnlyFlagged(t *testing.T) {
	f := propfile.ParseString("# c\nz=Z (IT)\na=\nm=Mela\nb=B (IT)\n")
	first := UntranslatedFile(f, nil, "x", "it")
	second := UntranslatedFile(f, nil, "x", "it")

	keys := func(es []Entry) []string {
		var out []string
		for _, e := range es {
			out = append(out, e.Key)
		}
		return out
	}
	if diff := cmp.Diff([]string{"z", "a", "b"}, keys(first)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(keys(first), keys(second)); diff != "" {
		t.Fatalf("order not stable:\n%s", diff)
	}
	for _, e := range first {
		if e.Value != "" && Classify(e.Value, "it") != NeedsTranslation {
			t.Errorf("returned unflagged entry %+v", e)
		}
	}
}

func TestMisencoded(t *testing.T) {
	cases := map[string]bool{
		"Größe":         false,
		"GrÃ¶ÃŸe":       true,
		"Gr�e":          true,
		"Gr?e":          true,
		"Really?":       false,
		"plain text":    false,
		"Ã is a letter": false,
	}
	for in, want := range cases {
		if got := Misencoded(in); got != want {
			t.Errorf("Misencoded(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSuspiciousAndCount(t *testing.T) {
	f := propfile.ParseString("a=GrÃ¶ÃŸe\nb=Gut\nc=\nd=x (DE)\n")
	if diff := cmp.Diff([]string{"a"}, Suspicious(f, "de")); diff != "" {
		t.Fatalf("Suspicious mismatch:\n%s", diff)
	}
	want := Counts{Total: 4, Translated: 2, NeedsTranslation: 1, Missing: 1}
	if got := Count(f, "de"); got != want {
		t.Fatalf("Count = %+v, want %+v", got, want)
	}
}
