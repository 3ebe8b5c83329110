package generation

import (
	"testing"

	"github.com/atlasml/atlas/internal/config"
)

func TestGreedySamplePicksArgmax(t *testing.T) {
	t.Parallel()

	g := config.DefaultGeneration()
	s := NewSampler(g)
	logits := []float32{0.1, 2.5, -1, 2.4}
	if got := s.Sample(logits, nil); got != 1 {
		t.Fatalf("greedy sample = %d, want 1", got)
	}
}

func TestSampleTopKOneIsArgmax(t *testing.T) {
	t.Parallel()

	g := config.DefaultGeneration()
	g.DoSample = true
	g.TopK = 1
	s := NewSampler(g)
	logits := []float32{0.1, 0.3, 5, 0.2}
	for i := 0; i < 10; i++ {
		if got := s.Sample(logits, nil); got != 2 {
			t.Fatalf("top_k=1 sample = %d, want 2", got)
		}
	}
}

func TestSampleSeededDeterminism(t *testing.T) {
	t.Parallel()

	logits := []float32{1, 2, 3, 4, 5}
	draw := func() []int {
		g := config.DefaultGeneration()
		g.DoSample = true
		g.Seed = 99
		g.Temperature = 0.8
		s := NewSampler(g)
		out := make([]int, 20)
		for i := range out {
			buf := append([]float32(nil), logits...)
			out[i] = s.Sample(buf, nil)
		}
		return out
	}
	a, b := draw(), draw()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at draw %d: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestRepetitionPenaltyDemotesSeenTokens(t *testing.T) {
	t.Parallel()

	g := config.DefaultGeneration()
	g.RepetitionPenalty = 10
	s := NewSampler(g)

	// Token 0 would win, but it is in the recent window.
	logits := []float32{1.0, 0.9}
	if got := s.Sample(logits, []int{0}); got != 1 {
		t.Fatalf("penalized sample = %d, want 1", got)
	}
}

func TestSampleRespectsTopPCutoff(t *testing.T) {
	t.Parallel()

	g := config.DefaultGeneration()
	g.DoSample = true
	g.TopP = 0.5
	g.Seed = 7
	s := NewSampler(g)

	// Token 3 dominates; with top_p 0.5 the shortlist is cut after it.
	logits := []float32{0, 0, 0, 20, 0}
	for i := 0; i < 10; i++ {
		buf := append([]float32(nil), logits...)
		if got := s.Sample(buf, nil); got != 3 {
			t.Fatalf("top_p sample = %d, want 3", got)
		}
	}
}
