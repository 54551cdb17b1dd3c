// Package vad detects speech regions inside one chunk of PCM audio.
//
// Detectors are providers: the pipeline resolves one detector per job via
// its availability check and falls back to treating the whole chunk as
// speech when none is usable.
package vad

import (
	"context"
	"encoding/binary"

	"github.com/skillsenselab/subgen/provider"
)

// Region is a span of detected speech, in seconds relative to the start of
// the chunk payload it was detected in.
type Region struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Duration returns the region length in seconds.
func (r Region) Duration() float64 { return r.End - r.Start }

// Detector is the interface speech region strategies implement.
// Detect returns ordered, non-overlapping regions.
type Detector interface {
	provider.Provider

	// Detect finds speech regions in a chunk of s16le mono PCM.
	Detect(ctx context.Context, payload []byte, sampleRate int) ([]Region, error)
}

// WholeChunk is the fallback detector: the entire chunk is one region with
// full confidence.
type WholeChunk struct{}

var _ Detector = (*WholeChunk)(nil)

func (WholeChunk) Name() string { return "whole-chunk" }
func (WholeChunk) IsAvailable(_ context.Context) bool { return true }

func (WholeChunk) Detect(_ context.Context, payload []byte, sampleRate int) ([]Region, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	return []Region{{
		Start:      0,
		End:        pcmDuration(payload, sampleRate),
		Confidence: 1.0,
	}}, nil
}

// NewRegistry creates a provider registry for speech region detectors.
func NewRegistry() *provider.Registry[Detector] {
	return provider.NewRegistry[Detector]()
}

// Resolve picks the first available detector from the ordered candidates,
// falling back to WholeChunk. The choice is made once per job; callers must
// not re-probe per chunk.
func Resolve(ctx context.Context, candidates ...Detector) Detector {
	for _, d := range candidates {
		if d.IsAvailable(ctx) {
			return d
		}
	}
	return WholeChunk{}
}

// Merge combines regions whose gap is at most maxGap seconds. Overlapping
// and adjacent regions always merge. The merged confidence is the maximum
// of the inputs. Input must be ordered by start; output stays ordered and
// non-overlapping. Merging an already merged list is a no-op.
func Merge(regions []Region, maxGap float64) []Region {
	if len(regions) == 0 {
		return nil
	}
	merged := make([]Region, 0, len(regions))
	cur := regions[0]
	for _, r := range regions[1:] {
		if r.Start-cur.End <= maxGap {
			if r.End > cur.End {
				cur.End = r.End
			}
			if r.Confidence > cur.Confidence {
				cur.Confidence = r.Confidence
			}
			continue
		}
		merged = append(merged, cur)
		cur = r
	}
	return append(merged, cur)
}

// pcmDuration returns the duration in seconds of an s16le mono payload.
func pcmDuration(payload []byte, sampleRate int) float64 {
	return float64(len(payload)/2) / float64(sampleRate)
}

// toSamples decodes s16le bytes into samples. A trailing odd byte is dropped.
func toSamples(payload []byte) []int16 {
	n := len(payload) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
	}
	return samples
}
