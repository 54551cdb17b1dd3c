package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	goerrors "github.com/skillsenselab/subgen/errors"
	"github.com/skillsenselab/subgen/library"
	"github.com/skillsenselab/subgen/logger"
	"github.com/skillsenselab/subgen/media"
	"github.com/skillsenselab/subgen/pipeline"
	"github.com/skillsenselab/subgen/provider"
	"github.com/skillsenselab/subgen/subtitle"
	"github.com/skillsenselab/subgen/transcription"
	"github.com/skillsenselab/subgen/vad"
)

// SubtitleGenerator is the production Generator: it decodes a library item
// with ffmpeg, runs the transcription pipeline, and writes the result as a
// sidecar SRT next to the media file.
type SubtitleGenerator struct {
	lib       *library.Library
	decoder   *media.Decoder
	stt       *provider.Manager[transcription.Provider]
	detectors []vad.Detector
	opts      pipeline.Options
	metrics   *pipeline.Metrics
	log       *logger.Logger
}

// NewSubtitleGenerator wires the generation dependencies. metrics may be nil.
func NewSubtitleGenerator(
	lib *library.Library,
	decoder *media.Decoder,
	stt *provider.Manager[transcription.Provider],
	detectors []vad.Detector,
	opts pipeline.Options,
	metrics *pipeline.Metrics,
	log *logger.Logger,
) *SubtitleGenerator {
	opts.ApplyDefaults()
	return &SubtitleGenerator{
		lib:       lib,
		decoder:   decoder,
		stt:       stt,
		detectors: detectors,
		opts:      opts,
		metrics:   metrics,
		log:       log.WithComponent("generator"),
	}
}

// Generate implements Generator.
func (g *SubtitleGenerator) Generate(ctx context.Context, mediaID, language string, obs pipeline.Observer) (string, error) {
	path, err := g.lib.AbsolutePath(mediaID)
	if err != nil {
		return "", err
	}

	stt, err := g.stt.Get(ctx)
	if err != nil {
		return "", err
	}

	opts := g.opts
	opts.Language = language

	stream, err := g.decoder.Open(ctx, path, opts.Audio.SampleRate)
	if err != nil {
		return "", err
	}

	p := pipeline.New(ctx, stt, g.detectors, opts, obs, g.metrics, g.log)
	result, runErr := p.Run(ctx, stream.Reader())
	if runErr != nil {
		stream.Abort()
		return "", runErr
	}
	// The run consumed the whole stream, so a non-zero ffmpeg exit means
	// the input was bad and the segments are not trustworthy.
	if err := stream.Close(ctx); err != nil {
		return "", err
	}

	output := SidecarPath(path, language)
	if err := writeSRT(output, result); err != nil {
		return "", err
	}
	g.log.Info("Subtitle written", logger.Fields(
		"media_id", mediaID,
		"output", output,
		"segments", len(result.Segments),
	))
	return output, nil
}

// SidecarPath returns where the generated subtitle goes: next to the media
// file, tagged with the language ("movie.en.srt").
func SidecarPath(mediaPath, language string) string {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	return base + "." + language + ".srt"
}

func writeSRT(path string, result *pipeline.Result) error {
	cues := make([]subtitle.Cue, 0, len(result.Segments))
	for _, seg := range result.Segments {
		cues = append(cues, subtitle.Cue{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	f, err := os.Create(path) //nolint:gosec // path is derived from a confined library path
	if err != nil {
		return goerrors.Internal(err).WithDetail("operation", "write subtitle file")
	}
	subtitle.WriteSRT(f, cues)
	if err := f.Close(); err != nil {
		return goerrors.Internal(err).WithDetail("operation", "write subtitle file")
	}
	return nil
}
