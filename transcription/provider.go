// Package transcription defines the transcription provider interface and common
// types for interacting with speech-to-text backends.
package transcription

import (
	"context"

	"github.com/skillsenselab/subgen/provider"
)

// Provider is the interface that transcription backends must implement.
//
// Transcribe submits one audio span and returns its segments. Backends do
// not retry failed requests; retry policy belongs to the caller.
type Provider interface {
	provider.Provider // embeds Name() and IsAvailable()

	// Transcribe sends raw PCM audio for transcription and returns the result.
	Transcribe(ctx context.Context, req Request) (*Response, error)
}
