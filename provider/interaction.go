package provider

import "context"

// RequestResponse represents a provider that takes one input and returns one output.
// This covers: HTTP calls, subprocess exec, and similar one-shot operations.
type RequestResponse[I, O any] interface {
	Provider
	Execute(ctx context.Context, input I) (O, error)
}
