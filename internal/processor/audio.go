package processor

import (
	"fmt"
	"math"

	"github.com/atlasml/atlas/internal/config"
)

// Audio extracts model inputs from raw waveforms: optional zero-mean
// unit-variance normalization, right padding, and an attention mask.
type Audio struct {
	SamplingRate        int
	DoNormalize         bool
	ReturnAttentionMask bool
}

// NewAudio derives a feature extractor from an audio encoder config.
func NewAudio(cfg *config.Wav2Vec2) *Audio {
	return &Audio{
		SamplingRate:        cfg.SamplingRate,
		DoNormalize:         cfg.DoNormalize,
		ReturnAttentionMask: cfg.ReturnAttentionMask,
	}
}

// Process pads a batch of waveforms to the longest and normalizes each one
// over its real samples only.
func (p *Audio) Process(waveforms [][]float32, samplingRate int) (*BatchFeature, error) {
	if len(waveforms) == 0 {
		return nil, fmt.Errorf("empty audio batch")
	}
	if samplingRate != 0 && samplingRate != p.SamplingRate {
		return nil, fmt.Errorf("sampling rate mismatch: input %d Hz, extractor expects %d Hz",
			samplingRate, p.SamplingRate)
	}

	longest := 0
	for i, w := range waveforms {
		if len(w) == 0 {
			return nil, fmt.Errorf("waveform %d is empty", i)
		}
		if len(w) > longest {
			longest = len(w)
		}
	}

	out := &BatchFeature{InputValues: make([][]float32, len(waveforms))}
	if p.ReturnAttentionMask {
		out.AttentionMask = make([][]int, len(waveforms))
	}
	for i, w := range waveforms {
		row := make([]float32, longest)
		copy(row, w)
		if p.DoNormalize {
			normalizeWaveform(row[:len(w)])
		}
		out.InputValues[i] = row
		if p.ReturnAttentionMask {
			mask := make([]int, longest)
			for j := 0; j < len(w); j++ {
				mask[j] = 1
			}
			out.AttentionMask[i] = mask
		}
	}
	return out, nil
}

func normalizeWaveform(w []float32) {
	var mean float64
	for _, v := range w {
		mean += float64(v)
	}
	mean /= float64(len(w))
	var variance float64
	for _, v := range w {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(w))
	scale := 1.0 / math.Sqrt(variance+1e-7)
	for i := range w {
		w[i] = float32((float64(w[i]) - mean) * scale)
	}
}
