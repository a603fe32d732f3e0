package dedup

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/54b3r/recall-go/internal/embedder"
)

// axisClient returns one-hot vectors keyed on the first byte of each text:
// texts sharing a first byte score 1, others score 0.
type axisClient struct{ dims int }

func (c *axisClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, c.dims)
		if len(t) > 0 {
			v[int(t[0])%c.dims] = 1
		}
		out[i] = v
	}
	return out, nil
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	gen := embedder.NewGenerator(&axisClient{dims: 8}, nil, nil,
		&embedder.GeneratorConfig{Dimensions: 8}, logger, nil)
	d, err := New(gen, 0, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func Test_IsDuplicate_BothFieldsMatch(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	dup, match, err := d.IsDuplicate(context.Background(),
		Item{Problem: "pod stuck pending", Solution: "scale the node pool"},
		[]Item{{ID: "kb-1", Problem: "pod stuck pending", Solution: "scale the node pool"}},
	)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Fatal("identical pair not classified as duplicate")
	}
	if match == nil || match.ID != "kb-1" {
		t.Fatalf("match = %+v, want kb-1", match)
	}
}

func Test_IsDuplicate_OnlyProblemMatches(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	// Same problem, different solution: a new fix for a known problem is
	// new knowledge, not a duplicate.
	dup, _, err := d.IsDuplicate(context.Background(),
		Item{Problem: "pod stuck pending", Solution: "scale the node pool"},
		[]Item{{ID: "kb-1", Problem: "pod stuck pending", Solution: "zap the taint"}},
	)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup {
		t.Fatal("problem-only match classified as duplicate")
	}
}

func Test_IsDuplicate_OnlySolutionMatches(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	dup, _, err := d.IsDuplicate(context.Background(),
		Item{Problem: "pod stuck pending", Solution: "scale the node pool"},
		[]Item{{ID: "kb-1", Problem: "zone outage", Solution: "scale the node pool"}},
	)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup {
		t.Fatal("solution-only match classified as duplicate")
	}
}

func Test_IsDuplicate_EmptyExisting(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	dup, match, err := d.IsDuplicate(context.Background(),
		Item{Problem: "anything", Solution: "anything"}, nil)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup || match != nil {
		t.Fatal("empty existing set must never report a duplicate")
	}
}

func Test_IsDuplicate_ReturnsFirstMatch(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	// kb-1 and kb-2 both match; the first in scan order wins.
	dup, match, err := d.IsDuplicate(context.Background(),
		Item{Problem: "pod stuck pending", Solution: "scale the node pool"},
		[]Item{
			{ID: "kb-0", Problem: "zone outage", Solution: "zap the taint"},
			{ID: "kb-1", Problem: "pod stuck pending", Solution: "scale the node pool"},
			{ID: "kb-2", Problem: "pod stuck pending", Solution: "scale the node pool"},
		},
	)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup || match == nil || match.ID != "kb-1" {
		t.Fatalf("match = %+v, want kb-1", match)
	}
}
