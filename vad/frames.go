package vad

import (
	"context"

	"github.com/skillsenselab/subgen/provider"
)

// FrameScorer assigns each fixed-length frame a speech likelihood in [0, 1].
type FrameScorer interface {
	provider.Provider

	// Score returns one score per frame, in order.
	Score(ctx context.Context, frames [][]int16, sampleRate int) ([]float64, error)
}

// FrameScoringConfig configures the frame-scoring detection strategy.
type FrameScoringConfig struct {
	// FrameMs is the scoring frame length in milliseconds.
	FrameMs int `yaml:"frame_ms" mapstructure:"frame_ms"`
	// Threshold marks a frame as speech when its score is at least this value.
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	// MinGapMs merges speech runs separated by at most this many milliseconds.
	MinGapMs int `yaml:"min_gap_ms" mapstructure:"min_gap_ms"`
	// PaddingMs extends each region on both sides, clamped to chunk bounds.
	PaddingMs int `yaml:"padding_ms" mapstructure:"padding_ms"`
	// MinSpeechMs drops padded regions shorter than this.
	MinSpeechMs int `yaml:"min_speech_ms" mapstructure:"min_speech_ms"`
}

// ApplyDefaults fills unset fields.
func (c *FrameScoringConfig) ApplyDefaults() {
	if c.FrameMs == 0 {
		c.FrameMs = 30
	}
	if c.Threshold == 0 {
		c.Threshold = 0.5
	}
	if c.MinGapMs == 0 {
		c.MinGapMs = 300
	}
	if c.PaddingMs == 0 {
		c.PaddingMs = 100
	}
	if c.MinSpeechMs == 0 {
		c.MinSpeechMs = 250
	}
}

// FrameScoring detects speech by scoring fixed frames and merging runs of
// frames above the threshold.
type FrameScoring struct {
	cfg    FrameScoringConfig
	scorer FrameScorer
}

var _ Detector = (*FrameScoring)(nil)

// NewFrameScoring creates a frame-scoring detector backed by the given scorer.
func NewFrameScoring(cfg FrameScoringConfig, scorer FrameScorer) *FrameScoring {
	cfg.ApplyDefaults()
	return &FrameScoring{cfg: cfg, scorer: scorer}
}

func (d *FrameScoring) Name() string { return "frame-scoring" }

func (d *FrameScoring) IsAvailable(ctx context.Context) bool {
	return d.scorer != nil && d.scorer.IsAvailable(ctx)
}

func (d *FrameScoring) Detect(ctx context.Context, payload []byte, sampleRate int) ([]Region, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	samples := toSamples(payload)
	duration := float64(len(samples)) / float64(sampleRate)

	frameLen := sampleRate * d.cfg.FrameMs / 1000
	if frameLen == 0 {
		frameLen = 1
	}
	frameDur := float64(frameLen) / float64(sampleRate)

	frames := make([][]int16, 0, len(samples)/frameLen+1)
	for i := 0; i < len(samples); i += frameLen {
		end := i + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		frames = append(frames, samples[i:end])
	}

	scores, err := d.scorer.Score(ctx, frames, sampleRate)
	if err != nil {
		return nil, err
	}

	// Active frames become candidate regions with the frame score as
	// confidence; Merge then fuses runs and keeps the max score.
	var active []Region
	for i, score := range scores {
		if i >= len(frames) {
			break
		}
		if score < d.cfg.Threshold {
			continue
		}
		start := float64(i) * frameDur
		end := start + float64(len(frames[i]))/float64(sampleRate)
		active = append(active, Region{Start: start, End: end, Confidence: score})
	}
	if len(active) == 0 {
		return nil, nil
	}

	merged := Merge(active, float64(d.cfg.MinGapMs)/1000)

	// Pad, clamp to chunk bounds, then re-merge in case padding created
	// overlaps. Finally drop regions still shorter than the minimum.
	pad := float64(d.cfg.PaddingMs) / 1000
	for i := range merged {
		merged[i].Start -= pad
		if merged[i].Start < 0 {
			merged[i].Start = 0
		}
		merged[i].End += pad
		if merged[i].End > duration {
			merged[i].End = duration
		}
	}
	merged = Merge(merged, 0)

	minSpeech := float64(d.cfg.MinSpeechMs) / 1000
	kept := merged[:0]
	for _, r := range merged {
		if r.Duration() >= minSpeech {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}
	return kept, nil
}

// EnergyScorerConfig configures the built-in RMS frame scorer.
type EnergyScorerConfig struct {
	// FullScaleRMS is the RMS amplitude mapped to score 1.0.
	FullScaleRMS float64 `yaml:"full_scale_rms" mapstructure:"full_scale_rms"`
}

// ApplyDefaults fills unset fields.
func (c *EnergyScorerConfig) ApplyDefaults() {
	if c.FullScaleRMS == 0 {
		c.FullScaleRMS = 3000
	}
}

// EnergyScorer scores frames by normalized RMS amplitude.
type EnergyScorer struct {
	cfg EnergyScorerConfig
}

var _ FrameScorer = (*EnergyScorer)(nil)

// NewEnergyScorer creates the built-in RMS frame scorer.
func NewEnergyScorer(cfg EnergyScorerConfig) *EnergyScorer {
	cfg.ApplyDefaults()
	return &EnergyScorer{cfg: cfg}
}

func (s *EnergyScorer) Name() string { return "energy-scorer" }
func (s *EnergyScorer) IsAvailable(_ context.Context) bool { return true }

func (s *EnergyScorer) Score(_ context.Context, frames [][]int16, _ int) ([]float64, error) {
	scores := make([]float64, len(frames))
	for i, frame := range frames {
		score := rms(frame) / s.cfg.FullScaleRMS
		if score > 1 {
			score = 1
		}
		scores[i] = score
	}
	return scores, nil
}
