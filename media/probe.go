package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/skillsenselab/subgen/process"
	"github.com/skillsenselab/subgen/provider"
)

// ProbeResult holds the subset of ffprobe output the library cares about.
type ProbeResult struct {
	// Title from the container tags, empty when untagged.
	Title string `json:"title,omitempty"`
	// DurationSeconds of the container, zero when unknown.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	// SubtitleStreams are the embedded subtitle tracks.
	SubtitleStreams []SubtitleStream `json:"subtitle_streams"`
}

// SubtitleStream is one embedded subtitle track.
type SubtitleStream struct {
	// Index is the ffmpeg stream index, used for extraction.
	Index int `json:"index"`
	// Codec is the subtitle codec name (subrip, ass, hdmv_pgs_subtitle...).
	Codec string `json:"codec"`
	// Language is the ISO language tag, empty when untagged.
	Language string `json:"language,omitempty"`
	// Title is the track title tag, empty when untagged.
	Title string `json:"title,omitempty"`
}

// ffprobe JSON layout.

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	Index     int               `json:"index"`
	CodecType string            `json:"codec_type"`
	CodecName string            `json:"codec_name"`
	Tags      map[string]string `json:"tags"`
}

type probeFormat struct {
	Duration string            `json:"duration"`
	Tags     map[string]string `json:"tags"`
}

// Prober inspects media files with ffprobe.
type Prober struct {
	inner *process.SubprocessProvider[string, *ProbeResult]
}

var _ provider.RequestResponse[string, *ProbeResult] = (*Prober)(nil)

// NewProber creates an ffprobe-backed prober. An empty path means "ffprobe"
// on PATH.
func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	inner := process.NewSubprocessProvider[string, *ProbeResult](
		"ffprobe",
		func(input string) process.Command {
			return process.Command{
				Binary: ffprobePath,
				Args: []string{
					"-v", "error",
					"-print_format", "json",
					"-show_streams",
					"-show_format",
					input,
				},
			}
		},
		parseProbeOutput,
	).WithAvailabilityCheck(process.BinaryAvailable(ffprobePath))
	return &Prober{inner: inner}
}

func (p *Prober) Name() string { return p.inner.Name() }
func (p *Prober) IsAvailable(ctx context.Context) bool { return p.inner.IsAvailable(ctx) }

// Execute probes one file.
func (p *Prober) Execute(ctx context.Context, input string) (*ProbeResult, error) {
	return p.inner.Execute(ctx, input)
}

// Probe is a readable alias for Execute.
func (p *Prober) Probe(ctx context.Context, input string) (*ProbeResult, error) {
	return p.inner.Execute(ctx, input)
}

func parseProbeOutput(result *process.Result) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(result.Stdout, &out); err != nil {
		return nil, fmt.Errorf("media: parse ffprobe output: %w", err)
	}

	pr := &ProbeResult{
		Title:           out.Format.Tags["title"],
		SubtitleStreams: []SubtitleStream{},
	}
	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			pr.DurationSeconds = d
		}
	}
	for _, s := range out.Streams {
		if s.CodecType != "subtitle" {
			continue
		}
		pr.SubtitleStreams = append(pr.SubtitleStreams, SubtitleStream{
			Index:    s.Index,
			Codec:    s.CodecName,
			Language: s.Tags["language"],
			Title:    s.Tags["title"],
		})
	}
	return pr, nil
}
