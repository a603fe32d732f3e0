package embedder

import (
	"math"
	"testing"

	"github.com/54b3r/recall-go/internal/vector"
)

func Test_FallbackEmbedding_Deterministic(t *testing.T) {
	t.Parallel()
	texts := []string{
		"hello world",
		"The quick brown fox jumps over the lazy dog.",
		"hello world", // repeated on purpose
		"日本語のテキスト",
	}
	for _, s := range texts {
		a := FallbackEmbedding(s, 1536)
		b := FallbackEmbedding(s, 1536)
		if len(a) != 1536 || len(b) != 1536 {
			t.Fatalf("dimension = %d/%d, want 1536", len(a), len(b))
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("FallbackEmbedding(%q) differs at index %d across calls", s, i)
			}
		}
	}
}

func Test_FallbackEmbedding_UnitNorm(t *testing.T) {
	t.Parallel()
	v := FallbackEmbedding("some meaningful text with several tokens", 768)
	if n := vector.Norm(v); math.Abs(n-1.0) > 1e-5 {
		t.Errorf("norm = %v, want 1.0", n)
	}
}

func Test_FallbackEmbedding_EmptyTextIsZeroVector(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "   ", "!!! ... ???"} {
		v := FallbackEmbedding(s, 64)
		if len(v) != 64 {
			t.Fatalf("dimension = %d, want 64", len(v))
		}
		if n := vector.Norm(v); n != 0 {
			t.Errorf("norm of token-free text %q = %v, want 0", s, n)
		}
	}
}

func Test_FallbackEmbedding_NonPositiveDimensions(t *testing.T) {
	t.Parallel()
	for _, d := range []int{0, -1, -1536} {
		if v := FallbackEmbedding("some text", d); v != nil {
			t.Errorf("FallbackEmbedding(_, %d) = %v, want nil", d, v)
		}
	}
}

func Test_FallbackEmbedding_CaseAndDuplicateInsensitive(t *testing.T) {
	t.Parallel()
	a := FallbackEmbedding("Apple Banana", 256)
	b := FallbackEmbedding("apple banana apple BANANA", 256)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("tokenization should lower-case and dedupe tokens")
		}
	}
}

func Test_FallbackEmbedding_DistinctTexts(t *testing.T) {
	t.Parallel()
	a := FallbackEmbedding("completely different subject", 512)
	b := FallbackEmbedding("another thing entirely here", 512)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical fallback vectors")
	}
}
