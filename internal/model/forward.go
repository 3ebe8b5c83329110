package model

import (
	"fmt"
	"math"

	"github.com/atlasml/atlas/internal/tensor"
)

// ForwardToken runs one autoregressive step for the provided token id.
// It returns a logits slice owned by the model (overwritten on next call).
func (m *Instance) ForwardToken(tok int) ([]float32, error) {
	if tok < 0 || tok >= m.Text.VocabSize {
		return nil, fmt.Errorf("token id out of range: %d", tok)
	}
	if m.Pos >= m.MaxContext {
		return nil, fmt.Errorf("context length exceeded: %d >= %d", m.Pos, m.MaxContext)
	}

	x := m.scratch.x
	m.Embeddings.RowTo(x, tok)

	for i := range m.Layers {
		layer := &m.Layers[i]

		// Attention block: pre-norm, attention, residual.
		tensor.RMSNorm(m.scratch.tmp, x, layer.AttnNorm, m.RMSEpsilon)
		attnOut := m.attention(layer, m.scratch.tmp, m.Pos)
		tensor.Add(x, attnOut)

		// FFN block: pre-norm, dense or expert-routing, residual.
		tensor.RMSNorm(m.scratch.tmp, x, layer.FfnNorm, m.RMSEpsilon)
		var ffnOut []float32
		if layer.MoE != nil {
			layer.MoE.Forward([][]float32{m.scratch.moeOut}, [][]float32{m.scratch.tmp})
			ffnOut = m.scratch.moeOut
		} else {
			ffnOut = m.ffn(layer, m.scratch.tmp)
		}
		tensor.Add(x, ffnOut)
	}

	tensor.RMSNorm(m.scratch.tmp, x, m.OutputNorm, m.RMSEpsilon)
	tensor.MatVec(m.scratch.logits, m.Output, m.scratch.tmp)

	m.Pos++
	return m.scratch.logits, nil
}

func (m *Instance) Reset() {
	m.Pos = 0
	for i := range m.Layers {
		cache := &m.Layers[i].AttnCache
		for j := range cache.k {
			cache.k[j] = 0
		}
		for j := range cache.v {
			cache.v[j] = 0
		}
	}
}

// attention runs grouped-query attention for one position, appending this
// step's key/value rows to the layer cache.
func (m *Instance) attention(layer *Layer, x []float32, pos int) []float32 {
	headDim := m.headDim
	kvStride := layer.AttnCache.kvStride
	groupSize := m.nHead / m.nKVHead

	q := m.scratch.q
	k := m.scratch.k
	v := m.scratch.v

	tensor.MatVec(q, layer.Wq, x)
	tensor.MatVec(k, layer.Wk, x)
	tensor.MatVec(v, layer.Wv, x)

	if layer.AttnQNorm != nil {
		for h := 0; h < m.nHead; h++ {
			head := q[h*headDim : (h+1)*headDim]
			tensor.RMSNorm(head, head, layer.AttnQNorm, m.RMSEpsilon)
		}
	}
	if layer.AttnKNorm != nil {
		for h := 0; h < m.nKVHead; h++ {
			head := k[h*headDim : (h+1)*headDim]
			tensor.RMSNorm(head, head, layer.AttnKNorm, m.RMSEpsilon)
		}
	}

	tensor.ApplyRoPE(q, m.nHead, headDim, pos, m.ropeInvFreq)
	tensor.ApplyRoPE(k, m.nKVHead, headDim, pos, m.ropeInvFreq)

	copy(layer.AttnCache.k[pos*kvStride:(pos+1)*kvStride], k)
	copy(layer.AttnCache.v[pos*kvStride:(pos+1)*kvStride], v)

	attnOut := m.scratch.attnOut
	scale := float32(1.0 / math.Sqrt(float64(headDim)))

	for h := 0; h < m.nHead; h++ {
		kvHead := h / groupSize
		qHead := q[h*headDim : (h+1)*headDim]
		scores := m.scratch.scores[:pos+1]
		for t := 0; t <= pos; t++ {
			kRow := layer.AttnCache.k[t*kvStride+kvHead*headDim : t*kvStride+(kvHead+1)*headDim]
			scores[t] = tensor.Dot(qHead, kRow) * scale
		}
		tensor.Softmax(scores)
		out := attnOut[h*headDim : (h+1)*headDim]
		for i := range out {
			out[i] = 0
		}
		for t := 0; t <= pos; t++ {
			vRow := layer.AttnCache.v[t*kvStride+kvHead*headDim : t*kvStride+(kvHead+1)*headDim]
			tensor.AddScaled(out, vRow, scores[t])
		}
	}

	tensor.MatVec(m.scratch.tmp2, layer.Wo, attnOut)
	return m.scratch.tmp2
}

func (m *Instance) ffn(layer *Layer, x []float32) []float32 {
	inter := layer.FfnUp.R
	up := m.scratch.ffnUp[:inter]
	gate := m.scratch.ffnGate[:inter]
	act := m.scratch.ffnAct[:inter]

	tensor.MatVec(up, layer.FfnUp, x)
	tensor.MatVec(gate, layer.FfnGate, x)
	for i := range act {
		act[i] = tensor.Silu(gate[i]) * up[i]
	}
	tensor.MatVec(m.scratch.tmp2, layer.FfnDown, act)
	return m.scratch.tmp2
}
