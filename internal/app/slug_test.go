package app_test

import (
	"strings"
	"testing"

	"enjoyhub/internal/app"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Kayak Tour in Bogotá":        "kayak-tour-in-bogota",
		"  Crème brûlée -- workshop ": "creme-brulee-workshop",
		"Straße & Ölmühle":            "strasse-olmuhle",
		"São Paulo":                   "sao-paulo",
		"100% Fun!!":                  "100-fun",
		"":                            "item",
		"¡¿?!":                        "item",
		"東京 tour":                     "tour",
	}
	for in, want := range cases {
		if got := app.Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugify_Truncates(t *testing.T) {
	in := strings.Repeat("sunset ", 30)
	got := app.Slugify(in)
	if len(got) > 80 {
		t.Fatalf("slug too long: %d", len(got))
	}
	if strings.HasSuffix(got, "-") || strings.HasSuffix(got, "suns") {
		t.Fatalf("slug should end on a word boundary: %q", got)
	}
}

func TestSplitSlugID(t *testing.T) {
	slug, id, ok := app.SplitSlugID("kayak-tour-in-bogota-42")
	if !ok || slug != "kayak-tour-in-bogota" || id != 42 {
		t.Fatalf("got %q %d %v", slug, id, ok)
	}
	if _, id, ok := app.SplitSlugID("42"); !ok || id != 42 {
		t.Fatalf("bare id: %d %v", id, ok)
	}
	for _, bad := range []string{"kayak-tour", "kayak-0", "kayak-x1", ""} {
		if _, _, ok := app.SplitSlugID(bad); ok {
			t.Errorf("SplitSlugID(%q) should fail", bad)
		}
	}
}
