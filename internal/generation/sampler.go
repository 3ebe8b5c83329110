// Package generation turns a loaded model and tokenizer into a text
// generation loop driven by the snapshot's generation config.
package generation

import (
	"math"
	"math/rand"

	"github.com/atlasml/atlas/internal/config"
)

// Sampler draws token ids from logits according to the generation config.
// With do_sample false it is a pure argmax; otherwise temperature, top-k,
// top-p and min-p shape the distribution. Not safe for concurrent use.
type Sampler struct {
	rng    *rand.Rand
	cfg    config.Generation
	greedy bool

	topIdx []int
	topVal []float32
	prob   []float64
}

// NewSampler builds a sampler from a normalized generation config.
func NewSampler(g *config.Generation) *Sampler {
	cfg := *g
	cfg.Normalize()
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: !cfg.DoSample,
	}
}

// Sample draws one token id. recent is the full sequence so far and feeds the
// repetition penalty; logits may be modified in place.
func (s *Sampler) Sample(logits []float32, recent []int) int {
	if s.cfg.RepetitionPenalty != 1.0 && len(recent) > 0 {
		s.applyRepetitionPenalty(logits, recent)
	}

	if s.greedy {
		return argmax(logits)
	}

	invTemp := float32(1.0)
	if s.cfg.Temperature > 0 {
		invTemp = float32(1.0 / s.cfg.Temperature)
	}
	k := s.cfg.TopK
	if k <= 0 || k > len(logits) {
		k = len(logits)
	}

	topIdx, topVal := s.topK(logits, k, invTemp)

	// softmax over the shortlist
	maxv := topVal[0]
	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i, v := range topVal {
		e := math.Exp(float64(v - maxv))
		prob[i] = e
		sum += e
	}
	if sum == 0 {
		return topIdx[0]
	}
	for i := range prob {
		prob[i] /= sum
	}

	if s.cfg.MinP > 0 {
		threshold := prob[0] * s.cfg.MinP
		newLen := 0
		var newSum float64
		for i := range prob {
			if prob[i] >= threshold {
				prob[newLen] = prob[i]
				topIdx[newLen] = topIdx[i]
				newSum += prob[i]
				newLen++
			}
		}
		prob = prob[:newLen]
		if newSum > 0 {
			for i := range prob {
				prob[i] /= newSum
			}
		}
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if c >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	r := s.rng.Float64()
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r <= c {
			return topIdx[i]
		}
	}
	return topIdx[cut-1]
}

// applyRepetitionPenalty divides positive logits of seen tokens by the
// penalty and multiplies negative ones, pushing repeats toward improbable.
func (s *Sampler) applyRepetitionPenalty(logits []float32, recent []int) {
	penalty := float32(s.cfg.RepetitionPenalty)
	seen := make(map[int]struct{}, len(recent))
	for _, id := range recent {
		if id < 0 || id >= len(logits) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if logits[id] > 0 {
			logits[id] /= penalty
		} else {
			logits[id] *= penalty
		}
	}
}

func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax of empty logits")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// topK returns the indices and temperature-scaled values of the k largest
// logits, largest first. O(V*k) insertion keeps allocations off the hot path.
func (s *Sampler) topK(logits []float32, k int, invTemp float32) ([]int, []float32) {
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range logits {
		v := l * invTemp
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v
		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
