// Package audio turns a decoded PCM byte stream into fixed-duration chunks
// with carry-over overlap between consecutive chunks.
package audio

import (
	"fmt"
	"io"
)

// bytesPerSample for s16le mono PCM.
const bytesPerSample = 2

// Config holds chunking parameters.
type Config struct {
	// SampleRate is the PCM sample rate in Hz.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
	// ChunkSeconds is the duration of each chunk.
	ChunkSeconds int `yaml:"chunk_seconds" mapstructure:"chunk_seconds"`
	// OverlapSeconds is the duration of audio carried over from the
	// previous chunk and prepended to the next payload.
	OverlapSeconds int `yaml:"overlap_seconds" mapstructure:"overlap_seconds"`
}

// Validate checks the chunking parameters.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive (got: %d)", c.SampleRate)
	}
	if c.ChunkSeconds <= 0 {
		return fmt.Errorf("audio.chunk_seconds must be positive (got: %d)", c.ChunkSeconds)
	}
	if c.OverlapSeconds < 0 || c.OverlapSeconds >= c.ChunkSeconds {
		return fmt.Errorf("audio.overlap_seconds must be in [0, chunk_seconds) (got: %d)", c.OverlapSeconds)
	}
	return nil
}

// Chunk is one unit of audio handed to detection and transcription.
type Chunk struct {
	// Payload is the overlap tail from the previous chunk followed by the
	// newly read audio.
	Payload []byte
	// Index is the zero-based chunk position in the stream.
	Index int
	// OverlapUsed is the seconds of carried-over audio at the start of
	// Payload. Zero for the first chunk.
	OverlapUsed float64
	// TimeOffset is the global time in seconds of the start of Payload.
	TimeOffset float64
}

// Reader produces chunks lazily from a PCM byte stream. It is forward-only
// and not safe for concurrent use.
type Reader struct {
	src          io.Reader
	cfg          Config
	buf          []byte
	tail         []byte
	index        int
	overlapBytes int
	done         bool
}

// NewReader creates a chunk reader over src.
func NewReader(src io.Reader, cfg Config) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chunkBytes := cfg.SampleRate * bytesPerSample * cfg.ChunkSeconds
	return &Reader{
		src:          src,
		cfg:          cfg,
		buf:          make([]byte, chunkBytes),
		overlapBytes: cfg.SampleRate * bytesPerSample * cfg.OverlapSeconds,
	}, nil
}

// Next reads and returns the next chunk. It returns io.EOF after the stream
// is exhausted. Short reads from src are retried until a full chunk is
// assembled or the stream ends; a zero-byte read ends the sequence.
func (r *Reader) Next() (*Chunk, error) {
	if r.done {
		return nil, io.EOF
	}

	n, err := io.ReadFull(r.src, r.buf)
	if n == 0 {
		r.done = true
		if err == io.EOF || err == io.ErrUnexpectedEOF || err == nil {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("audio: read chunk %d: %w", r.index, err)
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			// unreachable with n > 0, but keep the stream terminated
			r.done = true
			return nil, io.EOF
		}
		r.done = true
		return nil, fmt.Errorf("audio: read chunk %d: %w", r.index, err)
	}
	if err == io.ErrUnexpectedEOF {
		// final partial chunk
		r.done = true
	}

	fresh := r.buf[:n]

	overlapUsed := 0.0
	payload := make([]byte, 0, len(r.tail)+n)
	if len(r.tail) > 0 {
		overlapUsed = float64(r.cfg.OverlapSeconds)
		payload = append(payload, r.tail...)
	}
	payload = append(payload, fresh...)

	offset := float64(r.index*r.cfg.ChunkSeconds) - overlapUsed
	if offset < 0 {
		offset = 0
	}

	chunk := &Chunk{
		Payload:     payload,
		Index:       r.index,
		OverlapUsed: overlapUsed,
		TimeOffset:  offset,
	}

	// The tail for the next chunk comes from the newly read audio only.
	var tailLen int
	if n >= r.overlapBytes {
		tailLen = r.overlapBytes
	} else {
		tailLen = n
	}
	r.tail = append(r.tail[:0:0], fresh[n-tailLen:]...)

	r.index++
	return chunk, nil
}

// Duration returns the payload duration in seconds for a given chunk.
func (c *Chunk) Duration(sampleRate int) float64 {
	return float64(len(c.Payload)) / float64(sampleRate*bytesPerSample)
}
