package textutil

import "testing"

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"The Café Scene":        "the-cafe-scene",
		"  Night / Rooftop #2 ": "night-rooftop-2",
		"Ünïcödé":               "unicode",
		"!!!":                   "scene",
		"":                      "scene",
	}
	for input, want := range cases {
		if got := Slug(input); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(" tense chase "); got != "Tense Chase" {
		t.Fatalf("unexpected display name %q", got)
	}
}
