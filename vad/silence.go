package vad

import (
	"context"
	"math"

	"github.com/skillsenselab/subgen/provider"
)

// Interval is a span of silence in seconds relative to the chunk start.
type Interval struct {
	Start float64
	End   float64
}

// SilenceAnalyzer finds silence intervals in a chunk of audio.
type SilenceAnalyzer interface {
	provider.Provider

	// Silences returns ordered, non-overlapping silence intervals.
	Silences(ctx context.Context, samples []int16, sampleRate int) ([]Interval, error)
}

// SilenceGapConfig configures the silence-gap detection strategy.
type SilenceGapConfig struct {
	// MinRegionSeconds discards speech intervals shorter than this.
	MinRegionSeconds float64 `yaml:"min_region_seconds" mapstructure:"min_region_seconds"`
}

// ApplyDefaults fills unset fields.
func (c *SilenceGapConfig) ApplyDefaults() {
	if c.MinRegionSeconds == 0 {
		c.MinRegionSeconds = 0.08
	}
}

// SilenceGap detects speech as the complement of silence intervals.
type SilenceGap struct {
	cfg      SilenceGapConfig
	analyzer SilenceAnalyzer
}

var _ Detector = (*SilenceGap)(nil)

// NewSilenceGap creates a silence-gap detector backed by the given analyzer.
func NewSilenceGap(cfg SilenceGapConfig, analyzer SilenceAnalyzer) *SilenceGap {
	cfg.ApplyDefaults()
	return &SilenceGap{cfg: cfg, analyzer: analyzer}
}

func (d *SilenceGap) Name() string { return "silence-gap" }

func (d *SilenceGap) IsAvailable(ctx context.Context) bool {
	return d.analyzer != nil && d.analyzer.IsAvailable(ctx)
}

// Detect returns the spans between silences. Regions shorter than
// MinRegionSeconds are discarded. Confidence is always 1.0; the silence
// strategy has no per-region score.
func (d *SilenceGap) Detect(ctx context.Context, payload []byte, sampleRate int) ([]Region, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	samples := toSamples(payload)
	duration := float64(len(samples)) / float64(sampleRate)

	silences, err := d.analyzer.Silences(ctx, samples, sampleRate)
	if err != nil {
		return nil, err
	}

	var regions []Region
	cursor := 0.0
	for _, s := range silences {
		if s.Start > cursor {
			regions = append(regions, Region{Start: cursor, End: s.Start, Confidence: 1.0})
		}
		if s.End > cursor {
			cursor = s.End
		}
	}
	if cursor < duration {
		regions = append(regions, Region{Start: cursor, End: duration, Confidence: 1.0})
	}

	kept := regions[:0]
	for _, r := range regions {
		if r.Duration() >= d.cfg.MinRegionSeconds {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// EnergyAnalyzerConfig configures the RMS-based silence analyzer.
type EnergyAnalyzerConfig struct {
	// NoiseFloor is the RMS amplitude below which a frame counts as silent.
	NoiseFloor float64 `yaml:"noise_floor" mapstructure:"noise_floor"`
	// FrameMs is the analysis frame length in milliseconds.
	FrameMs int `yaml:"frame_ms" mapstructure:"frame_ms"`
	// MinSilenceSeconds is the shortest run of silent frames reported.
	MinSilenceSeconds float64 `yaml:"min_silence_seconds" mapstructure:"min_silence_seconds"`
}

// ApplyDefaults fills unset fields.
func (c *EnergyAnalyzerConfig) ApplyDefaults() {
	if c.NoiseFloor == 0 {
		c.NoiseFloor = 400
	}
	if c.FrameMs == 0 {
		c.FrameMs = 10
	}
	if c.MinSilenceSeconds == 0 {
		c.MinSilenceSeconds = 0.3
	}
}

// EnergyAnalyzer reports silence where frame RMS stays under the noise floor.
type EnergyAnalyzer struct {
	cfg EnergyAnalyzerConfig
}

var _ SilenceAnalyzer = (*EnergyAnalyzer)(nil)

// NewEnergyAnalyzer creates the built-in RMS silence analyzer.
func NewEnergyAnalyzer(cfg EnergyAnalyzerConfig) *EnergyAnalyzer {
	cfg.ApplyDefaults()
	return &EnergyAnalyzer{cfg: cfg}
}

func (a *EnergyAnalyzer) Name() string { return "energy-silence" }
func (a *EnergyAnalyzer) IsAvailable(_ context.Context) bool { return true }

func (a *EnergyAnalyzer) Silences(_ context.Context, samples []int16, sampleRate int) ([]Interval, error) {
	frameLen := sampleRate * a.cfg.FrameMs / 1000
	if frameLen == 0 {
		frameLen = 1
	}
	frameDur := float64(frameLen) / float64(sampleRate)

	var intervals []Interval
	silentSince := -1.0
	pos := 0.0
	for i := 0; i < len(samples); i += frameLen {
		end := i + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		silent := rms(samples[i:end]) < a.cfg.NoiseFloor
		if silent && silentSince < 0 {
			silentSince = pos
		}
		if !silent && silentSince >= 0 {
			if pos-silentSince >= a.cfg.MinSilenceSeconds {
				intervals = append(intervals, Interval{Start: silentSince, End: pos})
			}
			silentSince = -1
		}
		pos += frameDur
	}
	total := float64(len(samples)) / float64(sampleRate)
	if silentSince >= 0 && total-silentSince >= a.cfg.MinSilenceSeconds {
		intervals = append(intervals, Interval{Start: silentSince, End: total})
	}
	return intervals, nil
}

// rms computes the root mean square amplitude of a sample window.
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
