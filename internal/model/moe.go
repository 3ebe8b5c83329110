package model

import (
	"math"

	"github.com/atlasml/atlas/internal/tensor"
)

// Expert holds one routed expert's gated FFN, sliced out of the checkpoint's
// stacked expert tensors.
type Expert struct {
	FC1 *tensor.Mat // [2*inter, hidden]; first half gates, second half projects up
	FC2 *tensor.Mat // [hidden, inter]
}

// SharedExpert is the always-on MLP added to every token's output. Its
// intermediate size is moe_intermediate_size * moe_num_shared_experts.
type SharedExpert struct {
	Up   *tensor.Mat
	Gate *tensor.Mat
	Down *tensor.Mat
}

// MoE is an expert-routing feed-forward layer. Each token is dispatched to
// its top-k experts by router score, the experts run on their assigned token
// groups, and the outputs are combined weighted by the normalized scores.
type MoE struct {
	HiddenSize int
	InterSize  int
	TopK       int

	Router  *tensor.Mat // [numExperts, hidden]
	Experts []Expert
	Shared  *SharedExpert
}

// Routing is the dispatch plan for one batch of tokens. Flat slot i = t*k+j
// is token t's j-th expert choice.
type Routing struct {
	TopIdx  []int     // T*k expert ids, per token in descending score order
	Weights []float32 // T*k combine weights, softmax over each token's selected scores
	Counts  []int     // tokens routed to each expert
	Slots   []int     // T*k flat slots grouped by expert, stable within each group
}

// Route scores every token against the router and builds the dispatch plan.
func (m *MoE) Route(tokens [][]float32) *Routing {
	numExperts := len(m.Experts)
	k := m.TopK
	T := len(tokens)

	r := &Routing{
		TopIdx:  make([]int, T*k),
		Weights: make([]float32, T*k),
		Counts:  make([]int, numExperts),
		Slots:   make([]int, T*k),
	}

	logits := make([]float32, numExperts)
	for t, x := range tokens {
		tensor.MatVec(logits, m.Router, x)
		selectTopK(logits, k, r.TopIdx[t*k:(t+1)*k], r.Weights[t*k:(t+1)*k])
		for j := 0; j < k; j++ {
			r.Counts[r.TopIdx[t*k+j]]++
		}
	}

	// Stable group-by-expert ordering of the flat slots: a counting sort keeps
	// slot order inside each expert's group.
	offsets := make([]int, numExperts)
	sum := 0
	for e, c := range r.Counts {
		offsets[e] = sum
		sum += c
	}
	for slot, e := range r.TopIdx {
		r.Slots[offsets[e]] = slot
		offsets[e]++
	}
	return r
}

// selectTopK picks the k highest logits (ties keep the lowest expert index)
// and writes softmax weights computed over the selected logits only.
func selectTopK(logits []float32, k int, idxOut []int, wOut []float32) {
	if k <= 0 {
		return
	}
	if k > len(idxOut) || k > len(wOut) {
		panic("topk output buffers too small")
	}
	best := make([]float32, k)
	for j := 0; j < k; j++ {
		idxOut[j] = -1
		best[j] = float32(math.Inf(-1))
	}
	for i, score := range logits {
		insert := -1
		for j := 0; j < k; j++ {
			if score > best[j] {
				insert = j
				break
			}
		}
		if insert == -1 {
			continue
		}
		for j := k - 1; j > insert; j-- {
			best[j] = best[j-1]
			idxOut[j] = idxOut[j-1]
		}
		best[insert] = score
		idxOut[insert] = i
	}

	maxLogit := best[0]
	var denom float32
	for j := 0; j < k; j++ {
		wOut[j] = float32(math.Exp(float64(best[j] - maxLogit)))
		denom += wOut[j]
	}
	for j := 0; j < k; j++ {
		wOut[j] /= denom
	}
}

// Forward runs the full dispatch pipeline for a batch and writes one output
// row per token. out rows must be HiddenSize long and distinct from tokens.
func (m *MoE) Forward(out, tokens [][]float32) {
	if len(out) != len(tokens) {
		panic("moe batch size mismatch")
	}
	k := m.TopK
	r := m.Route(tokens)

	// Experts run over their contiguous token groups; experts with no tokens
	// are skipped entirely.
	expertOut := make([][]float32, len(tokens)*k)
	i := 0
	for e, c := range r.Counts {
		for n := 0; n < c; n++ {
			slot := r.Slots[i]
			expertOut[i] = m.expertFFN(e, tokens[slot/k])
			i++
		}
	}

	// Unpermute: map each dispatch row back to its flat slot.
	rowOf := make([]int, len(r.Slots))
	for row, slot := range r.Slots {
		rowOf[slot] = row
	}

	for t := range tokens {
		dst := out[t]
		for i := range dst {
			dst[i] = 0
		}
		if m.Shared != nil {
			m.sharedFFN(dst, tokens[t])
		}
		for j := 0; j < k; j++ {
			slot := t*k + j
			w := r.Weights[slot]
			src := expertOut[rowOf[slot]]
			for i := range dst {
				dst[i] += w * src[i]
			}
		}
	}
}

// expertFFN applies one expert's gated projection: fc1 produces a 2*inter
// vector chunked into (gate, up), combined as silu(gate)*up, then fc2.
func (m *MoE) expertFFN(e int, x []float32) []float32 {
	expert := &m.Experts[e]
	inter := m.InterSize

	proj := make([]float32, 2*inter)
	tensor.MatVec(proj, expert.FC1, x)
	act := make([]float32, inter)
	for i := 0; i < inter; i++ {
		act[i] = tensor.Silu(proj[i]) * proj[inter+i]
	}
	out := make([]float32, m.HiddenSize)
	tensor.MatVec(out, expert.FC2, act)
	return out
}

func (m *MoE) sharedFFN(dst, x []float32) {
	inter := m.Shared.Up.R
	up := make([]float32, inter)
	gate := make([]float32, inter)
	tensor.MatVec(up, m.Shared.Up, x)
	tensor.MatVec(gate, m.Shared.Gate, x)
	for i := range up {
		up[i] = tensor.Silu(gate[i]) * up[i]
	}
	out := make([]float32, m.HiddenSize)
	tensor.MatVec(out, m.Shared.Down, up)
	for i := range dst {
		dst[i] += out[i]
	}
}
