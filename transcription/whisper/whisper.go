// Package whisper implements transcription.Provider against a faster-whisper
// HTTP sidecar speaking the raw-PCM wire protocol.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/skillsenselab/subgen/errors"
	"github.com/skillsenselab/subgen/provider"
	"github.com/skillsenselab/subgen/transcription"
)

const (
	// ProviderName is the registered name for the Whisper provider.
	ProviderName = "whisper"

	defaultEndpoint = "http://localhost:8387/transcribe"
	defaultTimeout  = 120 * time.Second
)

// Config holds configuration for the Whisper transcription provider.
type Config struct {
	// Endpoint is the sidecar URL. A path not ending in /transcribe is
	// normalized to point at the /transcribe route.
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	// APIKey, when set, is forwarded as a bearer token.
	APIKey  string        `json:"api_key,omitempty" yaml:"api_key" mapstructure:"api_key"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Provider implements transcription.Provider using a faster-whisper HTTP sidecar.
type Provider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ transcription.Provider = (*Provider)(nil)

// NewProvider creates a new Whisper transcription provider.
func NewProvider(cfg Config) *Provider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{
		endpoint: NormalizeEndpoint(endpoint),
		apiKey:   cfg.APIKey,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// NormalizeEndpoint ensures the URL path ends in /transcribe.
func NormalizeEndpoint(endpoint string) string {
	trimmed := strings.TrimRight(endpoint, "/")
	if strings.HasSuffix(trimmed, "/transcribe") {
		return trimmed
	}
	return trimmed + "/transcribe"
}

// Factory returns a provider.Factory that creates Whisper Provider
// instances from a generic config map.
func Factory() provider.Factory[transcription.Provider] {
	return func(cfg map[string]any) (transcription.Provider, error) {
		wc := Config{}
		if v, ok := cfg["endpoint"].(string); ok {
			wc.Endpoint = v
		}
		if v, ok := cfg["api_key"].(string); ok {
			wc.APIKey = v
		}
		if v, ok := cfg["timeout"].(time.Duration); ok {
			wc.Timeout = v
		}
		return NewProvider(wc), nil
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks if the sidecar is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	base := strings.TrimSuffix(p.endpoint, "/transcribe")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Health reports backend reachability with probe latency, implementing
// provider.HealthChecker for the daemon health endpoint.
func (p *Provider) Health(ctx context.Context) provider.HealthStatus {
	start := time.Now()
	if !p.IsAvailable(ctx) {
		return provider.HealthStatus{
			Status:  provider.StatusUnavailable,
			Message: "backend unreachable",
			Details: map[string]any{"endpoint": p.endpoint},
		}
	}
	return provider.HealthStatus{
		Status:  provider.StatusHealthy,
		Message: "backend reachable",
		Details: map[string]any{
			"endpoint":   p.endpoint,
			"latency_ms": time.Since(start).Milliseconds(),
		},
	}
}

// Transcribe POSTs the raw PCM payload to the sidecar and returns the
// parsed segments. The call is never retried here.
func (p *Provider) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set("X-Sample-Rate", strconv.Itoa(req.SampleRate))
	httpReq.Header.Set("X-Lang", req.Language)
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.TranscriptionFailed(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperrors.TranscriptionFailed(resp.StatusCode,
			fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.TranscriptionFailed(resp.StatusCode, err)
	}
	return parseResponse(body)
}

// wire types use pointers so absent required fields are detectable.

type wireResponse struct {
	Segments *[]wireSegment `json:"segments"`
}

type wireSegment struct {
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Text  *string  `json:"text"`
}

// parseResponse validates the response body against the wire contract.
func parseResponse(body []byte) (*transcription.Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apperrors.ProtocolViolation("response is not a JSON object", err)
	}
	if wire.Segments == nil {
		return nil, apperrors.ProtocolViolation("missing segments field", nil)
	}

	segments := make([]transcription.Segment, 0, len(*wire.Segments))
	for i, seg := range *wire.Segments {
		if seg.Start == nil || seg.End == nil || seg.Text == nil {
			return nil, apperrors.ProtocolViolation(
				fmt.Sprintf("segment %d is missing a required field", i), nil)
		}
		segments = append(segments, transcription.Segment{
			Start: *seg.Start,
			End:   *seg.End,
			Text:  *seg.Text,
		})
	}
	return &transcription.Response{Segments: segments}, nil
}
