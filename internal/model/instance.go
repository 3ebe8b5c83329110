package model

import (
	"github.com/atlasml/atlas/internal/config"
	"github.com/atlasml/atlas/internal/logger"
	"github.com/atlasml/atlas/internal/tensor"
)

// Layer holds one decoder block's weights and its KV cache.
type Layer struct {
	AttnNorm []float32
	FfnNorm  []float32

	// Per-head query/key norms, present on qwen3-style checkpoints.
	AttnQNorm []float32
	AttnKNorm []float32

	Wq *tensor.Mat
	Wk *tensor.Mat
	Wv *tensor.Mat
	Wo *tensor.Mat

	// Dense FFN; nil on expert-routing layers.
	FfnUp   *tensor.Mat
	FfnGate *tensor.Mat
	FfnDown *tensor.Mat

	// Expert-routing FFN; nil on dense layers.
	MoE *MoE

	AttnCache attnCache
}

type attnCache struct {
	k        []float32
	v        []float32
	kvStride int
}

// Instance is a loaded model ready for inference. It is not safe for
// concurrent use; the scratch buffers are reused across forward calls.
type Instance struct {
	Arch string
	Text *config.Llama

	Embeddings *tensor.Mat
	OutputNorm []float32
	Output     *tensor.Mat

	Layers []Layer

	Pos        int
	MaxContext int

	RMSEpsilon float32

	nHead   int
	nKVHead int
	headDim int

	ropeInvFreq []float64

	scratch scratchBufs
	log     logger.Logger
}

type scratchBufs struct {
	x       []float32
	tmp     []float32
	tmp2    []float32
	q       []float32
	k       []float32
	v       []float32
	attnOut []float32
	scores  []float32
	ffnUp   []float32
	ffnGate []float32
	ffnAct  []float32
	moeOut  []float32
	logits  []float32
}

func newScratch(hidden, qDim, kvDim, inter, maxContext, vocab int) scratchBufs {
	return scratchBufs{
		x:       make([]float32, hidden),
		tmp:     make([]float32, hidden),
		tmp2:    make([]float32, hidden),
		q:       make([]float32, qDim),
		k:       make([]float32, kvDim),
		v:       make([]float32, kvDim),
		attnOut: make([]float32, qDim),
		scores:  make([]float32, maxContext),
		ffnUp:   make([]float32, inter),
		ffnGate: make([]float32, inter),
		ffnAct:  make([]float32, inter),
		moeOut:  make([]float32, hidden),
		logits:  make([]float32, vocab),
	}
}
