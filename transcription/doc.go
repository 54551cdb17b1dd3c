// Package transcription defines the provider interface and common types
// for interacting with speech-to-text backends.
//
// It follows the provider pattern with a pluggable registry for
// runtime-selectable backends.
//
// # Backends
//
//   - transcription/whisper: faster-whisper HTTP sidecar speaking the
//     raw-PCM wire protocol
//
// # Usage
//
//	reg := transcription.NewRegistry()
//	reg.Register("whisper", whisperProvider)
//	result, err := reg.Get("whisper").Transcribe(ctx, req)
package transcription
