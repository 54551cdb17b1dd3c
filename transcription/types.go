package transcription

// Request holds one span of raw PCM audio (s16le, mono) to transcribe.
type Request struct {
	// Payload is the raw PCM byte stream for the span.
	Payload []byte `json:"-"`
	// SampleRate is the payload sample rate in Hz.
	SampleRate int `json:"sample_rate"`
	// Language is the expected language of the audio (e.g. "en").
	Language string `json:"language,omitempty"`
}

// Response holds the result of a transcription call.
type Response struct {
	// Segments contains time-aligned transcript segments, ordered by start
	// time, with timestamps relative to the start of the submitted payload.
	Segments []Segment `json:"segments"`
}

// Segment represents a time-aligned portion of a transcript.
type Segment struct {
	// Start is the segment start time in seconds.
	Start float64 `json:"start"`
	// End is the segment end time in seconds.
	End float64 `json:"end"`
	// Text is the transcribed text for this segment.
	Text string `json:"text"`
}
