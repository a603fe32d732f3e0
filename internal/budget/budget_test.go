package budget

import (
	"strings"
	"testing"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_Truncate_WithinBudgetUnchanged(t *testing.T) {
	t.Parallel()
	s := "short text."
	if got := Truncate(s, 100); got != s {
		t.Errorf("Truncate(short) = %q, want unchanged", got)
	}
}

func Test_Truncate_CutsAtSentenceBoundary(t *testing.T) {
	t.Parallel()
	first := "This is the first sentence."
	s := first + " " + strings.Repeat("word ", 200)
	// Budget of 10 tokens = 40 chars, which lands inside the filler after
	// the first sentence; the cut should back up to the sentence boundary.
	got := Truncate(s, 10)
	if got != first {
		t.Errorf("Truncate = %q, want %q", got, first)
	}
}

func Test_Truncate_MidWordWhenNoBoundary(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("abcdefgh", 200) // no sentence boundaries at all
	got := Truncate(s, 10)
	if len(got) == 0 || len(got) > MaxChars(10) {
		t.Errorf("Truncate length = %d, want in (0, %d]", len(got), MaxChars(10))
	}
}

func Test_Truncate_IgnoresDotInsideNumber(t *testing.T) {
	t.Parallel()
	s := "pi is 3.14159 and continues " + strings.Repeat("on ", 100)
	got := Truncate(s, 10)
	if strings.HasSuffix(got, "3.") {
		t.Errorf("Truncate cut inside a number: %q", got)
	}
}

func Test_Halve(t *testing.T) {
	t.Parallel()
	s := "First sentence here. Second sentence here. Third sentence here."
	got := Halve(s)
	if len(got) == 0 || len(got) > len(s)/2 {
		t.Errorf("Halve length = %d, want in (0, %d]", len(got), len(s)/2)
	}
	if !strings.HasSuffix(got, ".") {
		t.Errorf("Halve = %q, want cut at sentence boundary", got)
	}
}

func Test_Halve_Deterministic(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("some text. ", 50)
	if Halve(s) != Halve(s) {
		t.Error("Halve is not deterministic")
	}
}
