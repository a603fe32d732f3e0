package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/54b3r/recall-go/internal/embedcache"
	"github.com/54b3r/recall-go/internal/vector"
)

// fakeClient is a scripted Client that records every batch it receives.
type fakeClient struct {
	batches [][]string
	// failures holds an error per upcoming call; nil entries succeed.
	// Calls beyond the script succeed.
	failures []error
	dims     int
}

func (f *fakeClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	call := len(f.batches)
	f.batches = append(f.batches, append([]string(nil), texts...))
	if call < len(f.failures) && f.failures[call] != nil {
		return nil, f.failures[call]
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		// A distinguishable, deterministic vector per text.
		v := make([]float32, f.dims)
		v[int(s[0])%f.dims] = 1
		v[len(s)%f.dims] += 0.5
		out[i] = v
	}
	return out, nil
}

// items returns the total number of texts sent across all API calls.
func (f *fakeClient) items() int {
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

// noLimit is a Limiter that admits immediately.
type noLimit struct{ acquires int }

func (l *noLimit) Acquire(context.Context) error {
	l.acquires++
	return nil
}

func newTestGenerator(client Client, cfg *GeneratorConfig) (*Generator, *noLimit) {
	lim := &noLimit{}
	return NewGenerator(client, embedcache.New(nil), lim, cfg, nil, nil), lim
}

func Test_GenerateBatch_OrderPreserving(t *testing.T) {
	t.Parallel()
	client := &fakeClient{dims: 8}
	g, _ := newTestGenerator(client, &GeneratorConfig{Dimensions: 8})

	texts := []string{"alpha", "bravo", "charlie"}
	vecs, err := g.GenerateBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 8 {
			t.Errorf("vector %d dimension = %d, want 8", i, len(v))
		}
	}
	// Distinct inputs produce the fake's per-text vectors in order.
	if vecs[0][int('a')%8] != 1 || vecs[1][int('b')%8] != 1 {
		t.Error("vectors not returned in input order")
	}
}

func Test_GenerateBatch_DeduplicatesAndCaches(t *testing.T) {
	t.Parallel()
	client := &fakeClient{dims: 8}
	g, _ := newTestGenerator(client, &GeneratorConfig{Dimensions: 8})
	ctx := context.Background()

	texts := []string{"same text", "same text", "same text", "same text", "same text"}
	vecs, err := g.GenerateBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if client.items() != 1 {
		t.Errorf("API saw %d items for 5 identical texts, want 1", client.items())
	}
	for i := 1; i < len(vecs); i++ {
		if vecs[i][int('s')%8] != vecs[0][int('s')%8] {
			t.Error("duplicate inputs received different vectors")
		}
	}

	// A second call is served entirely from cache.
	if _, err := g.GenerateBatch(ctx, []string{"same text"}); err != nil {
		t.Fatal(err)
	}
	if client.items() != 1 {
		t.Errorf("cached text hit the API again (%d items total)", client.items())
	}
}

func Test_GenerateBatch_AllCachedSkipsAPI(t *testing.T) {
	t.Parallel()
	client := &fakeClient{dims: 4}
	cache := embedcache.New(nil)
	cache.Put("known", []float32{1, 2, 3, 4})
	g := NewGenerator(client, cache, &noLimit{}, &GeneratorConfig{Dimensions: 4}, nil, nil)

	vecs, err := g.GenerateBatch(context.Background(), []string{"known", "known"})
	if err != nil {
		t.Fatal(err)
	}
	if len(client.batches) != 0 {
		t.Errorf("API called %d times for fully cached input, want 0", len(client.batches))
	}
	if vecs[0][0] != 1 || vecs[1][3] != 4 {
		t.Errorf("cached vectors not returned: %v", vecs)
	}
}

func Test_GenerateBatch_BatchPackingByItemCount(t *testing.T) {
	t.Parallel()
	client := &fakeClient{dims: 4}
	g, lim := newTestGenerator(client, &GeneratorConfig{Dimensions: 4, MaxBatchItems: 2})

	texts := []string{"one", "two", "three", "four", "five"}
	if _, err := g.GenerateBatch(context.Background(), texts); err != nil {
		t.Fatal(err)
	}
	if len(client.batches) != 3 { // 2 + 2 + 1
		t.Fatalf("got %d batches, want 3: %v", len(client.batches), client.batches)
	}
	for i, b := range client.batches {
		if len(b) > 2 {
			t.Errorf("batch %d holds %d items, limit is 2", i, len(b))
		}
	}
	if lim.acquires != 3 {
		t.Errorf("limiter acquired %d times, want once per batch (3)", lim.acquires)
	}
}

func Test_GenerateBatch_BatchPackingByTokenBudget(t *testing.T) {
	t.Parallel()
	client := &fakeClient{dims: 4}
	// 40-char texts estimate to 10 tokens each; a 25-token budget fits two.
	g, _ := newTestGenerator(client, &GeneratorConfig{Dimensions: 4, MaxBatchTokens: 25})

	texts := []string{
		"a" + strings.Repeat("x", 39),
		"b" + strings.Repeat("x", 39),
		"c" + strings.Repeat("x", 39),
	}
	if _, err := g.GenerateBatch(context.Background(), texts); err != nil {
		t.Fatal(err)
	}
	if len(client.batches) != 2 {
		t.Fatalf("got %d batches, want 2 (token budget splits after two texts)", len(client.batches))
	}
}

func Test_GenerateBatch_TruncatesOversizedText(t *testing.T) {
	t.Parallel()
	client := &fakeClient{dims: 4}
	g, _ := newTestGenerator(client, &GeneratorConfig{Dimensions: 4, MaxTextTokens: 10})

	long := strings.Repeat("word ", 100) // ~125 tokens
	if _, err := g.GenerateBatch(context.Background(), []string{long}); err != nil {
		t.Fatal(err)
	}
	if len(client.batches) != 1 || len(client.batches[0]) != 1 {
		t.Fatal("expected one single-item batch")
	}
	if got := client.batches[0][0]; len(got) > 40 {
		t.Errorf("API received %d chars, want <= 40 after truncation", len(got))
	}
}

func Test_GenerateBatch_OverLengthRetryHalves(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		dims:     4,
		failures: []error{errors.New("openai embedder: maximum context length exceeded")},
	}
	g, _ := newTestGenerator(client, &GeneratorConfig{Dimensions: 4})
	ctx := context.Background()

	text := strings.Repeat("sentence one here. ", 40)
	vecs, err := g.GenerateBatch(ctx, []string{text})
	if err != nil {
		t.Fatal(err)
	}
	if len(client.batches) != 2 {
		t.Fatalf("got %d API calls, want original + one retry", len(client.batches))
	}
	retried := client.batches[1][0]
	if len(retried) > len(text)/2 {
		t.Errorf("retry text length %d, want <= half of %d", len(retried), len(text))
	}
	if vecs[0] == nil {
		t.Fatal("no vector produced after successful retry")
	}

	// The truncated text, not the original, is what was cached.
	if _, err := g.GenerateBatch(ctx, []string{retried}); err != nil {
		t.Fatal(err)
	}
	if len(client.batches) != 2 {
		t.Error("truncated text was not cached by the retry path")
	}
}

func Test_GenerateBatch_FallbackOnAPIError(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		dims:     8,
		failures: []error{errors.New("connection refused")},
	}
	g, _ := newTestGenerator(client, &GeneratorConfig{Dimensions: 8})
	ctx := context.Background()

	vecs, err := g.GenerateBatch(ctx, []string{"hello world"})
	if err != nil {
		t.Fatal(err)
	}
	want := FallbackEmbedding("hello world", 8)
	for i := range want {
		if vecs[0][i] != want[i] {
			t.Fatal("failed batch did not degrade to the deterministic fallback vector")
		}
	}

	// Fallback vectors must not be cached: the next call goes to the API
	// (which now succeeds) rather than replaying the degraded vector.
	if _, err := g.GenerateBatch(ctx, []string{"hello world"}); err != nil {
		t.Fatal(err)
	}
	if len(client.batches) != 2 {
		t.Errorf("API called %d times, want 2 (fallback must not poison the cache)", len(client.batches))
	}
}

func Test_GenerateBatch_NilClientFallbackOnly(t *testing.T) {
	t.Parallel()
	g := NewGenerator(nil, embedcache.New(nil), nil, nil, nil, nil)

	vecs, err := g.GenerateBatch(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 1536 {
		t.Fatalf("got %d vectors of dim %d, want 1 of dim 1536", len(vecs), len(vecs[0]))
	}
	if n := vector.Norm(vecs[0]); math.Abs(n-1.0) > 1e-5 {
		t.Errorf("fallback vector norm = %v, want 1.0", n)
	}
}

func Test_GenerateBatch_EmptyInput(t *testing.T) {
	t.Parallel()
	client := &fakeClient{dims: 4}
	g, _ := newTestGenerator(client, nil)
	vecs, err := g.GenerateBatch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 0 {
		t.Errorf("got %d vectors for empty input", len(vecs))
	}
}

func Test_Generate_Single(t *testing.T) {
	t.Parallel()
	client := &fakeClient{dims: 4}
	g, _ := newTestGenerator(client, &GeneratorConfig{Dimensions: 4})
	v, err := g.Generate(context.Background(), "just one")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 4 {
		t.Errorf("dimension = %d, want 4", len(v))
	}
}

func Test_GenerateBatch_MixedCachedAndMissing(t *testing.T) {
	t.Parallel()
	client := &fakeClient{dims: 4}
	cache := embedcache.New(nil)
	cached := []float32{9, 9, 9, 9}
	cache.Put("cached text", cached)
	g := NewGenerator(client, cache, &noLimit{}, &GeneratorConfig{Dimensions: 4}, nil, nil)

	texts := []string{"fresh a", "cached text", "fresh b"}
	vecs, err := g.GenerateBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if vecs[1][0] != 9 {
		t.Error("cached slot did not receive the cached vector")
	}
	if client.items() != 2 {
		t.Errorf("API saw %d items, want only the 2 misses", client.items())
	}
	for i, v := range vecs {
		if v == nil {
			t.Errorf("slot %d is nil", i)
		}
	}
}

func Test_FakeClientScriptSanity(t *testing.T) {
	t.Parallel()
	// Guard against the fake silently changing shape: failures beyond the
	// script succeed, and batch recording keeps input order.
	f := &fakeClient{dims: 4, failures: []error{fmt.Errorf("boom")}}
	if _, err := f.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("scripted failure did not fire")
	}
	if _, err := f.Embed(context.Background(), []string{"y"}); err != nil {
		t.Fatalf("unscripted call failed: %v", err)
	}
}
