package model

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/atlasml/atlas/internal/config"
	"github.com/atlasml/atlas/internal/logger"
	"github.com/atlasml/atlas/internal/safetensors"
	"github.com/atlasml/atlas/internal/tensor"
)

// Load opens the checkpoint in a snapshot directory and builds an inference
// instance. All shape and expert-count validation happens here; a model that
// loads successfully will not fail shape checks at forward time.
func Load(dir string, maxContext int, log logger.Logger) (*Instance, error) {
	if log == nil {
		log = logger.Default()
	}
	cfg, err := config.Load(filepath.Join(dir, config.ConfigFileName))
	if err != nil {
		return nil, err
	}
	spec, text, moeCfg, err := detectArch(cfg)
	if err != nil {
		return nil, err
	}

	ckpt, err := safetensors.OpenCheckpoint(dir)
	if err != nil {
		return nil, err
	}
	log.Info("loading checkpoint",
		"arch", spec.Name,
		"layers", text.NumHiddenLayers,
		"shards", ckpt.NumShards())

	if maxContext <= 0 || maxContext > text.MaxPosition {
		maxContext = text.MaxPosition
	}

	hidden := text.HiddenSize
	headDim := text.ResolvedHeadDim()
	qDim := text.NumAttentionHeads * headDim
	kvDim := text.NumKeyValueHeads * headDim

	names := &spec.Names

	m := &Instance{
		Arch:       spec.Name,
		Text:       text,
		MaxContext: maxContext,
		RMSEpsilon: float32(text.RMSNormEps),
		nHead:      text.NumAttentionHeads,
		nKVHead:    text.NumKeyValueHeads,
		headDim:    headDim,
		log:        log,
	}

	emb, err := loadMat(ckpt, names.embedding, text.VocabSize, hidden)
	if err != nil {
		return nil, err
	}
	m.Embeddings = emb

	m.OutputNorm, err = loadVec(ckpt, names.outputNorm, hidden)
	if err != nil {
		return nil, err
	}
	m.Output, err = firstMat(ckpt, names.outputCandidates(), text.VocabSize, hidden)
	if err != nil {
		return nil, err
	}

	inter := text.IntermediateSize
	if spec.HasMoE && moeCfg.MoEIntermediateSize*max(moeCfg.MoENumSharedExperts, 1) > inter {
		inter = moeCfg.MoEIntermediateSize * max(moeCfg.MoENumSharedExperts, 1)
	}

	m.Layers = make([]Layer, text.NumHiddenLayers)
	for i := range m.Layers {
		layer := &m.Layers[i]

		if layer.AttnNorm, err = loadVec(ckpt, names.attnNorm(i), hidden); err != nil {
			return nil, err
		}
		if layer.FfnNorm, err = loadVec(ckpt, names.ffnNorm(i), hidden); err != nil {
			return nil, err
		}
		if spec.HasQKNorm {
			if layer.AttnQNorm, err = firstVec(ckpt, names.qNormCandidates(i), headDim); err != nil {
				return nil, err
			}
			if layer.AttnKNorm, err = firstVec(ckpt, names.kNormCandidates(i), headDim); err != nil {
				return nil, err
			}
		}

		if layer.Wq, err = loadMat(ckpt, names.wq(i), qDim, hidden); err != nil {
			return nil, err
		}
		if layer.Wk, err = loadMat(ckpt, names.wk(i), kvDim, hidden); err != nil {
			return nil, err
		}
		if layer.Wv, err = loadMat(ckpt, names.wv(i), kvDim, hidden); err != nil {
			return nil, err
		}
		if layer.Wo, err = loadMat(ckpt, names.wo(i), hidden, qDim); err != nil {
			return nil, err
		}

		if spec.HasMoE {
			layer.MoE, err = loadMoE(ckpt, names, i, moeCfg, hidden)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
		} else {
			if layer.FfnUp, err = loadMat(ckpt, names.ffnUp(i), text.IntermediateSize, hidden); err != nil {
				return nil, err
			}
			if layer.FfnGate, err = loadMat(ckpt, names.ffnGate(i), text.IntermediateSize, hidden); err != nil {
				return nil, err
			}
			if layer.FfnDown, err = loadMat(ckpt, names.ffnDown(i), hidden, text.IntermediateSize); err != nil {
				return nil, err
			}
		}

		layer.AttnCache = attnCache{
			k:        make([]float32, maxContext*kvDim),
			v:        make([]float32, maxContext*kvDim),
			kvStride: kvDim,
		}
	}

	m.ropeInvFreq = ropeInvFreq(headDim, text.RopeTheta)
	m.scratch = newScratch(hidden, qDim, kvDim, inter, maxContext, text.VocabSize)
	return m, nil
}

func ropeInvFreq(headDim int, theta float64) []float64 {
	freqs := make([]float64, headDim/2)
	for i := range freqs {
		freqs[i] = 1.0 / math.Pow(theta, float64(2*i)/float64(headDim))
	}
	return freqs
}

// loadMoE slices the stacked expert tensors into per-expert mats. A stacked
// tensor whose leading dimension disagrees with moe_num_experts is a fatal
// construction error, never a silent truncation.
func loadMoE(ckpt *safetensors.Checkpoint, names *archNames, layer int, cfg *config.AriaText, hidden int) (*MoE, error) {
	numExperts := cfg.MoENumExperts
	inter := cfg.MoEIntermediateSize

	router, err := loadMat(ckpt, names.moeRouter(layer), numExperts, hidden)
	if err != nil {
		return nil, err
	}

	fc1Data, fc1Info, err := ckpt.ReadTensorF32(names.moeFC1(layer))
	if err != nil {
		return nil, err
	}
	if err := checkStacked(names.moeFC1(layer), fc1Info.Shape, numExperts, 2*inter, hidden); err != nil {
		return nil, err
	}
	fc2Data, fc2Info, err := ckpt.ReadTensorF32(names.moeFC2(layer))
	if err != nil {
		return nil, err
	}
	if err := checkStacked(names.moeFC2(layer), fc2Info.Shape, numExperts, hidden, inter); err != nil {
		return nil, err
	}

	experts := make([]Expert, numExperts)
	fc1Size := 2 * inter * hidden
	fc2Size := hidden * inter
	for e := range experts {
		fc1 := tensor.NewMatFromData(2*inter, hidden, fc1Data[e*fc1Size:(e+1)*fc1Size])
		fc2 := tensor.NewMatFromData(hidden, inter, fc2Data[e*fc2Size:(e+1)*fc2Size])
		experts[e] = Expert{FC1: &fc1, FC2: &fc2}
	}

	moe := &MoE{
		HiddenSize: hidden,
		InterSize:  inter,
		TopK:       cfg.MoETopK,
		Router:     router,
		Experts:    experts,
	}

	if cfg.MoENumSharedExperts > 0 {
		sharedInter := inter * cfg.MoENumSharedExperts
		shared := &SharedExpert{}
		if shared.Up, err = loadMat(ckpt, names.moeSharedUp(layer), sharedInter, hidden); err != nil {
			return nil, err
		}
		if shared.Gate, err = loadMat(ckpt, names.moeSharedGate(layer), sharedInter, hidden); err != nil {
			return nil, err
		}
		if shared.Down, err = loadMat(ckpt, names.moeSharedDown(layer), hidden, sharedInter); err != nil {
			return nil, err
		}
		moe.Shared = shared
	}
	return moe, nil
}

func checkStacked(name string, shape []int, experts, rows, cols int) error {
	if len(shape) != 3 {
		return fmt.Errorf("%s: want 3-D stacked expert tensor, got shape %v", name, shape)
	}
	if shape[0] != experts {
		return fmt.Errorf("%s: checkpoint has %d experts but config says moe_num_experts=%d",
			name, shape[0], experts)
	}
	if shape[1] != rows || shape[2] != cols {
		return fmt.Errorf("%s: shape %v does not match expected [%d %d %d]",
			name, shape, experts, rows, cols)
	}
	return nil
}

func loadVec(ckpt *safetensors.Checkpoint, name string, want int) ([]float32, error) {
	data, info, err := ckpt.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 1 || info.Shape[0] != want {
		return nil, fmt.Errorf("%s: want vector of length %d, got shape %v", name, want, info.Shape)
	}
	return data, nil
}

func loadMat(ckpt *safetensors.Checkpoint, name string, r, c int) (*tensor.Mat, error) {
	data, info, err := ckpt.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 2 || info.Shape[0] != r || info.Shape[1] != c {
		return nil, fmt.Errorf("%s: want shape [%d %d], got %v", name, r, c, info.Shape)
	}
	m := tensor.NewMatFromData(r, c, data)
	return &m, nil
}

func firstVec(ckpt *safetensors.Checkpoint, candidates []string, want int) ([]float32, error) {
	for _, name := range candidates {
		if _, ok := ckpt.Tensor(name); ok {
			return loadVec(ckpt, name, want)
		}
	}
	return nil, fmt.Errorf("none of %v found in checkpoint", candidates)
}

func firstMat(ckpt *safetensors.Checkpoint, candidates []string, r, c int) (*tensor.Mat, error) {
	for _, name := range candidates {
		if _, ok := ckpt.Tensor(name); ok {
			return loadMat(ckpt, name, r, c)
		}
	}
	return nil, fmt.Errorf("none of %v found in checkpoint", candidates)
}
