// Package pipeline runs one transcription job: chunking decoded PCM,
// detecting speech regions, transcribing them, and stitching the results
// into ordered subtitle segments.
package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/skillsenselab/subgen/audio"
	"github.com/skillsenselab/subgen/logger"
	"github.com/skillsenselab/subgen/observability"
	"github.com/skillsenselab/subgen/stitch"
	"github.com/skillsenselab/subgen/transcription"
	"github.com/skillsenselab/subgen/vad"
)

// State is the pipeline's execution phase.
type State string

const (
	StateInit             State = "init"
	StateReadingChunks    State = "reading_chunks"
	StateDetectingRegions State = "detecting_regions"
	StateTranscribing     State = "transcribing"
	StateStitching        State = "stitching"
	StateDone             State = "done"
	StateCancelled        State = "cancelled"
	StateFailed           State = "failed"
)

// Options are the per-job tunables. Every knob lives here; the pipeline
// keeps no global state.
type Options struct {
	Language     string                    `yaml:"language" mapstructure:"language"`
	Audio        audio.Config              `yaml:"audio" mapstructure:"audio"`
	Plausibility stitch.PlausibilityConfig `yaml:"plausibility" mapstructure:"plausibility"`
}

// ApplyDefaults fills unset fields.
func (o *Options) ApplyDefaults() {
	if o.Language == "" {
		o.Language = "en"
	}
	if o.Audio.SampleRate == 0 {
		o.Audio.SampleRate = 16000
	}
	if o.Audio.ChunkSeconds == 0 {
		o.Audio.ChunkSeconds = 30
	}
	if o.Audio.OverlapSeconds == 0 {
		o.Audio.OverlapSeconds = 3
	}
	o.Plausibility.ApplyDefaults()
}

// Observer receives progress events during a run. Implementations must be
// fast; they are called inline.
type Observer interface {
	StateChanged(state State)
	ChunkStarted(index int, timeOffset float64)
	SegmentEmitted(seg stitch.Segment)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) StateChanged(State) {}
func (NopObserver) ChunkStarted(int, float64) {}
func (NopObserver) SegmentEmitted(stitch.Segment) {}

// Result holds what a run produced. Segments may be partial when Err is
// non-nil; decode failures are handled by the caller, which discards them.
type Result struct {
	Segments []stitch.Segment
	Chunks   int
	State    State
}

// Pipeline executes jobs sequentially. The detector is resolved once at
// construction and never re-probed mid-run.
type Pipeline struct {
	stt      transcription.Provider
	detector vad.Detector
	opts     Options
	obs      Observer
	metrics  *Metrics
	log      *logger.Logger
}

// New builds a pipeline. detectors are tried in order; the first available
// one wins, with the whole-chunk fallback when none is. metrics may be nil.
func New(ctx context.Context, stt transcription.Provider, detectors []vad.Detector, opts Options, obs Observer, metrics *Metrics, log *logger.Logger) *Pipeline {
	opts.ApplyDefaults()
	if obs == nil {
		obs = NopObserver{}
	}
	detector := vad.Resolve(ctx, detectors...)
	log = log.WithComponent("pipeline")
	log.Info("Detector resolved", logger.Fields("detector", detector.Name()))
	return &Pipeline{
		stt:      stt,
		detector: detector,
		opts:     opts,
		obs:      obs,
		metrics:  metrics,
		log:      log,
	}
}

// Detector returns the resolved detector name.
func (p *Pipeline) Detector() string { return p.detector.Name() }

// Run consumes the PCM stream and returns the stitched segments.
//
// Cancellation is cooperative: the context is checked between chunk reads
// and between region dispatches, and a cancelled run returns the context
// error with the segments produced so far. Transcription and protocol
// failures also return partial segments; the caller decides what to keep.
func (p *Pipeline) Run(ctx context.Context, pcm io.Reader) (*Result, error) {
	result := &Result{State: StateInit}
	p.setState(result, StateInit)

	reader, err := audio.NewReader(pcm, p.opts.Audio)
	if err != nil {
		p.setState(result, StateFailed)
		return result, err
	}

	stitcher := stitch.New()
	filter := stitch.NewPlausibilityFilter(p.opts.Plausibility)

	for {
		if err := ctx.Err(); err != nil {
			p.setState(result, StateCancelled)
			return result, err
		}

		p.setState(result, StateReadingChunks)
		chunk, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.setState(result, StateFailed)
			return result, err
		}

		result.Chunks++
		p.metrics.recordChunk(ctx)
		p.obs.ChunkStarted(chunk.Index, chunk.TimeOffset)

		spanCtx, span := observability.StartSpan(ctx, "pipeline.chunk")
		observability.SetSpanAttribute(spanCtx, "chunk.index", chunk.Index)

		err = p.processChunk(spanCtx, chunk, stitcher, filter, result)
		span.End()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.setState(result, StateCancelled)
			} else {
				p.setState(result, StateFailed)
			}
			return result, err
		}
	}

	p.setState(result, StateDone)
	p.log.Info("Run complete", logger.Fields(
		"chunks", result.Chunks,
		"segments", len(result.Segments),
	))
	return result, nil
}

func (p *Pipeline) processChunk(ctx context.Context, chunk *audio.Chunk, stitcher *stitch.Stitcher, filter *stitch.PlausibilityFilter, result *Result) error {
	p.setState(result, StateDetectingRegions)
	regions, err := p.detector.Detect(ctx, chunk.Payload, p.opts.Audio.SampleRate)
	if err != nil {
		// A failing detector degrades to the whole-chunk region rather
		// than aborting the job.
		p.log.Warn("Detector failed, using whole chunk", logger.Fields(
			"detector", p.detector.Name(),
			"error", err.Error(),
		))
		regions, _ = vad.WholeChunk{}.Detect(ctx, chunk.Payload, p.opts.Audio.SampleRate)
	}
	p.metrics.recordRegions(ctx, p.detector.Name(), len(regions))

	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.setState(result, StateTranscribing)
		payload := slicePCM(chunk.Payload, region, p.opts.Audio.SampleRate)
		if len(payload) == 0 {
			continue
		}

		start := time.Now()
		resp, err := p.stt.Transcribe(ctx, transcription.Request{
			Payload:    payload,
			SampleRate: p.opts.Audio.SampleRate,
			Language:   p.opts.Language,
		})
		p.metrics.recordTranscribe(ctx, p.stt.Name(), time.Since(start))
		if err != nil {
			return err
		}

		p.setState(result, StateStitching)
		for _, raw := range resp.Segments {
			seg, ok := stitcher.Place(raw, region, chunk)
			if !ok {
				p.metrics.recordSegment(ctx, false, "placement")
				continue
			}
			if !filter.Plausible(seg.Text, p.opts.Language) {
				p.metrics.recordSegment(ctx, false, "plausibility")
				continue
			}
			if !stitcher.Emit(seg) {
				p.metrics.recordSegment(ctx, false, "duplicate")
				continue
			}
			p.metrics.recordSegment(ctx, true, "")
			result.Segments = append(result.Segments, seg)
			p.obs.SegmentEmitted(seg)
		}
	}
	return nil
}

func (p *Pipeline) setState(result *Result, s State) {
	if result.State == s {
		return
	}
	result.State = s
	p.obs.StateChanged(s)
}

// slicePCM cuts the region's span out of the chunk payload, aligned to
// whole samples.
func slicePCM(payload []byte, region vad.Region, sampleRate int) []byte {
	start := int(region.Start*float64(sampleRate)) * 2
	end := int(region.End*float64(sampleRate)) * 2
	if start < 0 {
		start = 0
	}
	if end > len(payload) {
		end = len(payload)
	}
	if start >= end {
		return nil
	}
	return payload[start:end]
}
