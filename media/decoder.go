// Package media shells out to ffmpeg and ffprobe for decoding and probing
// media files.
package media

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/skillsenselab/subgen/errors"
	"github.com/skillsenselab/subgen/process"
)

// DecoderConfig configures the ffmpeg decoder.
type DecoderConfig struct {
	// FFmpegPath is the ffmpeg binary. Defaults to "ffmpeg" on PATH.
	FFmpegPath string `yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	// GracePeriod is how long a cancelled decode gets between SIGTERM and
	// SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
}

// ApplyDefaults fills unset fields.
func (c *DecoderConfig) ApplyDefaults() {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 5 * time.Second
	}
}

// Decoder decodes media files to mono s16le PCM via an ffmpeg subprocess.
type Decoder struct {
	cfg DecoderConfig
}

// NewDecoder creates an ffmpeg-backed decoder.
func NewDecoder(cfg DecoderConfig) *Decoder {
	cfg.ApplyDefaults()
	return &Decoder{cfg: cfg}
}

// Available reports whether the ffmpeg binary can be found.
func (d *Decoder) Available(ctx context.Context) bool {
	return process.BinaryAvailable(d.cfg.FFmpegPath)(ctx)
}

// Open starts decoding input to PCM at the given sample rate. The caller
// reads the stream to EOF and then calls Close, which reports decode
// failures.
func (d *Decoder) Open(ctx context.Context, input string, sampleRate int) (*DecodeStream, error) {
	handle, err := process.Stream(ctx, process.Command{
		Binary: d.cfg.FFmpegPath,
		Args: []string{
			"-v", "error",
			"-i", input,
			"-ac", "1",
			"-ar", strconv.Itoa(sampleRate),
			"-f", "s16le",
			"-acodec", "pcm_s16le",
			"-",
		},
		GracePeriod: d.cfg.GracePeriod,
	})
	if err != nil {
		return nil, apperrors.DecodeFailed(input, err)
	}
	return &DecodeStream{handle: handle, input: input}, nil
}

// DecodeStream is a running decode. Reader yields the PCM bytes.
type DecodeStream struct {
	handle *process.StreamHandle
	input  string
}

// Reader returns the PCM stream.
func (s *DecodeStream) Reader() io.Reader {
	return s.handle.Stdout()
}

// Close waits for ffmpeg to exit. A non-zero exit becomes a DecodeFailed
// error carrying the captured stderr; context cancellation is passed
// through unchanged so it is never mistaken for a decode failure.
func (s *DecodeStream) Close(ctx context.Context) error {
	result, err := s.handle.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(string(result.Stderr))
		return apperrors.DecodeFailed(s.input, fmt.Errorf("ffmpeg exit %d: %s", result.ExitCode, detail)).
			WithDetail("stderr", detail)
	}
	return nil
}

// Abort kills the decode without reporting its exit status.
func (s *DecodeStream) Abort() {
	_ = s.handle.Close()
}
