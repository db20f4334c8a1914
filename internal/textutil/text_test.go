package textutil

import "testing"

func TestNormalizeLine(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  hello   world  ", "hello world"},
		{"line\u200bwith\u200bzero\u200bwidth", "linewithzerowidth"},
		{"\ufeffbom\u200cand\u200djoiners", "bomandjoiners"},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeLine(tc.in); got != tc.want {
			t.Fatalf("NormalizeLine(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Jujutsu Kaisen", "jujutsu-kaisen"},
		{"Attack on Titan!", "attack-on-titan"},
		{"  Spy x Family  ", "spy-x-family"},
		{"---", ""},
		{"Frieren: Beyond Journey's End", "frieren-beyond-journey-s-end"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDeslugTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"jujutsu-kaisen", "Jujutsu Kaisen"},
		{"attack_on_titan", "Attack On Titan"},
		{"one--piece", "One Piece"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := DeslugTitle(tc.in); got != tc.want {
			t.Fatalf("DeslugTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClampTail(t *testing.T) {
	if got := ClampTail("abcdef", 3); got != "def" {
		t.Fatalf("ClampTail tail = %q, want %q", got, "def")
	}
	if got := ClampTail("abc", 10); got != "abc" {
		t.Fatalf("ClampTail short = %q, want %q", got, "abc")
	}
	if got := ClampTail("abc", 0); got != "" {
		t.Fatalf("ClampTail zero = %q, want empty", got)
	}
}

func TestStripHTML(t *testing.T) {
	in := "<p>Yuji meets <b>Gojo</b>.&nbsp;Training begins.</p>"
	want := "Yuji meets Gojo . Training begins."
	if got := StripHTML(in); got != want {
		t.Fatalf("StripHTML = %q, want %q", got, want)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("what happened to the curse", 12); got != "what happene..." {
		t.Fatalf("TruncateRunes = %q", got)
	}
	if got := TruncateRunes("short", 12); got != "short" {
		t.Fatalf("TruncateRunes short = %q", got)
	}
}
