// Package whispertest provides a fake transcription backend for tests,
// speaking the same HTTP contract as the real whisper service.
package whispertest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/skillsenselab/subgen/component"
	"github.com/skillsenselab/subgen/testutil"
	"github.com/skillsenselab/subgen/transcription"
)

// RecordedRequest captures what the backend received.
type RecordedRequest struct {
	SampleRate    string
	Language      string
	Authorization string
	PayloadBytes  int
}

// Component is a fake whisper backend implementing testutil.TestComponent.
// By default every request returns the configured segments; queued responses
// and failure injection are available for multi-call scenarios.
type Component struct {
	mu         sync.Mutex
	ts         *httptest.Server
	started    bool
	segments   []transcription.Segment
	queue      [][]transcription.Segment
	failStatus int
	rawBody    string
	requests   []RecordedRequest
}

var _ component.Component = (*Component)(nil)
var _ testutil.TestComponent = (*Component)(nil)

// NewComponent creates a fake backend. Call Start before use.
func NewComponent() *Component {
	return &Component{}
}

// Endpoint returns the transcribe URL of the running fake.
func (c *Component) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ts == nil {
		return ""
	}
	return c.ts.URL + "/transcribe"
}

// SetSegments sets the default response for every request.
func (c *Component) SetSegments(segments ...transcription.Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments = segments
}

// EnqueueSegments adds a one-shot response consumed before the default.
func (c *Component) EnqueueSegments(segments ...transcription.Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, segments)
}

// FailWith makes every request answer with the given HTTP status.
// Zero restores normal behavior.
func (c *Component) FailWith(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failStatus = status
}

// RespondRaw makes every request answer 200 with a literal body, for
// protocol violation scenarios. Empty restores normal behavior.
func (c *Component) RespondRaw(body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawBody = body
}

// Requests returns everything received so far.
func (c *Component) Requests() []RecordedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RecordedRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// --- component.Component ---

func (c *Component) Name() string { return "whisper-fake" }

func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("component already started")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/transcribe", c.handleTranscribe)
	c.ts = httptest.NewServer(mux)
	c.started = true
	return nil
}

func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ts != nil {
		c.ts.Close()
		c.ts = nil
	}
	c.started = false
	return nil
}

func (c *Component) Health(_ context.Context) component.Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "not started"}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// --- testutil.TestComponent ---

// Reset clears recorded requests and configured behavior.
func (c *Component) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments = nil
	c.queue = nil
	c.failStatus = 0
	c.rawBody = ""
	c.requests = nil
	return nil
}

// Snapshot captures the recorded requests.
func (c *Component) Snapshot(_ context.Context) (interface{}, error) {
	return c.Requests(), nil
}

// Restore replaces the recorded requests with a snapshot.
func (c *Component) Restore(_ context.Context, snapshot interface{}) error {
	requests, ok := snapshot.([]RecordedRequest)
	if !ok {
		return fmt.Errorf("invalid snapshot type %T", snapshot)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = requests
	return nil
}

func (c *Component) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	c.requests = append(c.requests, RecordedRequest{
		SampleRate:    r.Header.Get("X-Sample-Rate"),
		Language:      r.Header.Get("X-Lang"),
		Authorization: r.Header.Get("Authorization"),
		PayloadBytes:  len(body),
	})
	failStatus := c.failStatus
	rawBody := c.rawBody
	segments := c.segments
	if len(c.queue) > 0 {
		segments = c.queue[0]
		c.queue = c.queue[1:]
	}
	c.mu.Unlock()

	if failStatus != 0 {
		http.Error(w, "injected failure", failStatus)
		return
	}
	if rawBody != "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(rawBody))
		return
	}
	if segments == nil {
		segments = []transcription.Segment{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(transcription.Response{Segments: segments})
}
