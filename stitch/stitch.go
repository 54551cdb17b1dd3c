// Package stitch converts raw backend segments into globally timestamped
// subtitle segments and suppresses duplicates introduced by chunk overlap.
package stitch

import (
	"strings"

	"github.com/skillsenselab/subgen/audio"
	"github.com/skillsenselab/subgen/subtitle"
	"github.com/skillsenselab/subgen/transcription"
	"github.com/skillsenselab/subgen/vad"
)

// Segment is a subtitle segment on the global media timeline.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// dedupWindow is the slack, in seconds, allowed between the end of the last
// emitted segment and the start of a candidate repeat.
const dedupWindow = 0.1

// Stitcher places raw segments on the global timeline. One Stitcher serves
// one job; it carries the dedup ledger across chunks.
type Stitcher struct {
	lastNorm string
	lastEnd  float64
}

// New creates a Stitcher with an empty ledger.
func New() *Stitcher {
	return &Stitcher{}
}

// Place maps one raw backend segment, timestamped relative to a region of a
// chunk, onto the global timeline. It returns false when the segment must
// be discarded:
//
//   - empty text after trimming, or a non-positive end
//   - the segment ends inside the chunk's carried-over overlap
//   - the segment collapses to nothing after its start is clamped out of
//     the overlap zone
//
// Region-local timestamps are shifted into chunk-payload time before the
// overlap rule is applied.
func (s *Stitcher) Place(raw transcription.Segment, region vad.Region, chunk *audio.Chunk) (Segment, bool) {
	text := strings.TrimSpace(raw.Text)
	if text == "" || raw.End <= 0 {
		return Segment{}, false
	}

	start := raw.Start + region.Start
	end := raw.End + region.Start

	if end <= chunk.OverlapUsed {
		return Segment{}, false
	}
	if start < chunk.OverlapUsed {
		start = chunk.OverlapUsed
	}
	if end <= start {
		return Segment{}, false
	}

	return Segment{
		Start: chunk.TimeOffset + start,
		End:   chunk.TimeOffset + end,
		Text:  text,
	}, true
}

// Emit records a placed segment in the ledger and reports whether it should
// be kept. A segment whose normalized text matches the previously emitted
// one and whose start falls within the dedup window of that segment's end
// is suppressed as an overlap echo.
func (s *Stitcher) Emit(seg Segment) bool {
	norm := subtitle.NormalizeText(seg.Text)
	if norm == s.lastNorm && seg.Start <= s.lastEnd+dedupWindow {
		return false
	}
	s.lastNorm = norm
	s.lastEnd = seg.End
	return true
}
