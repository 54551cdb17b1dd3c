// Command subgen transcribes a single media file into an SRT subtitle file.
//
//	subgen -i movie.mkv -o movie.en.srt
//
// With -i - the input is raw mono s16le PCM on stdin, skipping ffmpeg.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillsenselab/subgen/audio"
	"github.com/skillsenselab/subgen/jobs"
	"github.com/skillsenselab/subgen/logger"
	"github.com/skillsenselab/subgen/media"
	"github.com/skillsenselab/subgen/pipeline"
	"github.com/skillsenselab/subgen/stitch"
	"github.com/skillsenselab/subgen/subtitle"
	"github.com/skillsenselab/subgen/transcription/whisper"
	"github.com/skillsenselab/subgen/vad"
)

type options struct {
	input          string
	output         string
	endpoint       string
	apiKey         string
	language       string
	sampleRate     int
	chunkSeconds   int
	overlapSeconds int
	timeout        time.Duration
	detector       string
	ffmpegPath     string
	quiet          bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "subgen: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var o options
	flag.StringVar(&o.input, "i", "", "input media file, or - for raw PCM on stdin")
	flag.StringVar(&o.output, "o", "", "output SRT file (default: sidecar next to the input, - for stdout)")
	flag.StringVar(&o.endpoint, "endpoint", "", "transcription backend URL")
	flag.StringVar(&o.apiKey, "api-key", os.Getenv("SUBGEN_API_KEY"), "bearer token for the backend")
	flag.StringVar(&o.language, "lang", "en", "transcription language")
	flag.IntVar(&o.sampleRate, "sample-rate", 16000, "PCM sample rate in Hz")
	flag.IntVar(&o.chunkSeconds, "chunk-seconds", 30, "chunk length in seconds")
	flag.IntVar(&o.overlapSeconds, "overlap-seconds", 3, "overlap carried between chunks in seconds")
	flag.DurationVar(&o.timeout, "timeout", 0, "per-request backend timeout (0 = client default)")
	flag.StringVar(&o.detector, "detector", "silence", "speech detection strategy: silence, frames or off")
	flag.StringVar(&o.ffmpegPath, "ffmpeg", "", "ffmpeg binary (default: ffmpeg on PATH)")
	flag.BoolVar(&o.quiet, "q", false, "only log warnings and errors")
	flag.Parse()

	if o.input == "" {
		flag.Usage()
		return fmt.Errorf("input file is required")
	}
	audioCfg := audio.Config{
		SampleRate:     o.sampleRate,
		ChunkSeconds:   o.chunkSeconds,
		OverlapSeconds: o.overlapSeconds,
	}
	if err := audioCfg.Validate(); err != nil {
		return err
	}

	level := "info"
	if o.quiet {
		level = "warn"
	}
	logger.Init(&logger.Config{ServiceName: "subgen", Level: level, Format: "console", Output: "stderr"})
	log := logger.Get("subgen")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stt := whisper.NewProvider(whisper.Config{
		Endpoint: o.endpoint,
		APIKey:   o.apiKey,
		Timeout:  o.timeout,
	})

	opts := pipeline.Options{Language: o.language, Audio: audioCfg}
	p := pipeline.New(ctx, stt, detectors(o.detector), opts, nil, nil, log)

	pcm, cleanup, err := openInput(ctx, o)
	if err != nil {
		return err
	}

	result, runErr := p.Run(ctx, pcm)
	if err := cleanup(runErr == nil); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}

	if err := writeOutput(o, result.Segments); err != nil {
		return err
	}
	log.Info("Done", logger.Fields(
		"chunks", result.Chunks,
		"segments", len(result.Segments),
	))
	return nil
}

// openInput returns the PCM stream and a cleanup func. The cleanup reports
// decode failures when the run itself succeeded.
func openInput(ctx context.Context, o options) (io.Reader, func(ok bool) error, error) {
	if o.input == "-" {
		return os.Stdin, func(bool) error { return nil }, nil
	}
	decoder := media.NewDecoder(media.DecoderConfig{FFmpegPath: o.ffmpegPath})
	stream, err := decoder.Open(ctx, o.input, o.sampleRate)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func(ok bool) error {
		if !ok {
			stream.Abort()
			return nil
		}
		return stream.Close(ctx)
	}
	return stream.Reader(), cleanup, nil
}

func detectors(strategy string) []vad.Detector {
	switch strategy {
	case "silence":
		return []vad.Detector{vad.NewSilenceGap(vad.SilenceGapConfig{}, vad.NewEnergyAnalyzer(vad.EnergyAnalyzerConfig{}))}
	case "frames":
		return []vad.Detector{vad.NewFrameScoring(vad.FrameScoringConfig{}, vad.NewEnergyScorer(vad.EnergyScorerConfig{}))}
	default:
		return nil
	}
}

func writeOutput(o options, segments []stitch.Segment) error {
	cues := make([]subtitle.Cue, 0, len(segments))
	for _, seg := range segments {
		cues = append(cues, subtitle.Cue{Start: seg.Start, End: seg.End, Text: seg.Text})
	}

	output := o.output
	if output == "" {
		if o.input == "-" {
			output = "-"
		} else {
			output = jobs.SidecarPath(o.input, o.language)
		}
	}
	if output == "-" {
		subtitle.WriteSRT(os.Stdout, cues)
		return nil
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	subtitle.WriteSRT(f, cues)
	return f.Close()
}
