package utils

import "testing"

func TestSanitizeText(t *testing.T) {
	in := "  Hello\x00\x01 world\n\nnext\tline  "
	got := SanitizeText(in)
	want := "Hello world next line"
	if got != want {
		t.Fatalf("SanitizeText = %q, want %q", got, want)
	}
}

func TestExtractPageNumber(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"as shown on page 12 of the report", 12},
		{"see p. 7 for details", 7},
		{"3 of 10", 3},
		{"no page reference here", 0},
	}
	for _, tc := range cases {
		if got := ExtractPageNumber(tc.text); got != tc.want {
			t.Errorf("ExtractPageNumber(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestJaccardWords(t *testing.T) {
	if got := JaccardWords("", ""); got != 1.0 {
		t.Fatalf("empty texts: got %f, want 1.0", got)
	}
	if got := JaccardWords("alpha beta", "alpha beta"); got != 1.0 {
		t.Fatalf("identical texts: got %f, want 1.0", got)
	}
	if got := JaccardWords("alpha beta", "gamma delta"); got != 0 {
		t.Fatalf("disjoint texts: got %f, want 0", got)
	}
	// {a,b,c} vs {b,c,d}: 2 shared of 4 total
	if got := JaccardWords("a b c", "b c d"); got != 0.5 {
		t.Fatalf("overlap: got %f, want 0.5", got)
	}
}

func TestEditDistance(t *testing.T) {
	if got := EditDistance("kitten", "sitting", -1); got != 3 {
		t.Fatalf("kitten/sitting = %d, want 3", got)
	}
	if got := EditDistance("same", "same", 10); got != 0 {
		t.Fatalf("identical = %d, want 0", got)
	}
	// length gap beyond the cap short-circuits
	if got := EditDistance("ab", "abcdefghijkl", 5); got != 6 {
		t.Fatalf("short-circuit = %d, want 6", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("héllo", 2); got != "hé" {
		t.Fatalf("got %q, want %q", got, "hé")
	}
	if got := TruncateRunes("short", 100); got != "short" {
		t.Fatalf("got %q, want %q", got, "short")
	}
	if got := TruncateRunes("x", 0); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
