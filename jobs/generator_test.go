package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/skillsenselab/subgen/audio"
	"github.com/skillsenselab/subgen/library"
	"github.com/skillsenselab/subgen/logger"
	"github.com/skillsenselab/subgen/media"
	"github.com/skillsenselab/subgen/pipeline"
	"github.com/skillsenselab/subgen/transcription"
	"github.com/skillsenselab/subgen/transcription/whisper"
	"github.com/skillsenselab/subgen/transcription/whispertest"
)

// fakeFFmpeg returns a decoder whose ffmpeg binary is a script emitting a
// fixed number of zero PCM bytes.
func fakeFFmpeg(t *testing.T, pcmBytes int) *media.Decoder {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\nhead -c " + strconv.Itoa(pcmBytes) + " /dev/zero\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return media.NewDecoder(media.DecoderConfig{FFmpegPath: path})
}

func generatorHarness(t *testing.T, backend *whispertest.Component) (*SubtitleGenerator, string, string) {
	t.Helper()
	dir := t.TempDir()
	moviePath := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(moviePath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	log := logger.NewDefault("generator-test")
	lib, err := library.New(library.Config{BaseDir: dir}, nil, log)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}

	stt := transcription.NewManager()
	stt.Register(whisper.ProviderName, whisper.Factory())
	if err := stt.Initialize(whisper.ProviderName, map[string]any{
		"endpoint": backend.Endpoint(),
	}); err != nil {
		t.Fatal(err)
	}

	opts := pipeline.Options{
		Audio: audio.Config{SampleRate: 4, ChunkSeconds: 3, OverlapSeconds: 1},
	}
	gen := NewSubtitleGenerator(lib, fakeFFmpeg(t, 24), stt, nil, opts, nil, log)
	return gen, library.ItemID("movie.mkv"), moviePath
}

func TestGenerateWritesSidecarAgainstBackend(t *testing.T) {
	ctx := context.Background()
	backend := whispertest.NewComponent()
	if err := backend.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = backend.Stop(ctx) })
	backend.SetSegments(transcription.Segment{Start: 0.5, End: 1.5, Text: "hello there"})

	gen, mediaID, moviePath := generatorHarness(t, backend)

	output, err := gen.Generate(ctx, mediaID, "en", pipeline.NopObserver{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	want := strings.TrimSuffix(moviePath, ".mkv") + ".en.srt"
	if output != want {
		t.Fatalf("expected output %q, got %q", want, output)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	srt := string(data)
	if !strings.Contains(srt, "00:00:00,500 --> 00:00:01,500") {
		t.Errorf("expected cue timestamps, got:\n%s", srt)
	}
	if !strings.Contains(srt, "hello there") {
		t.Errorf("expected cue text, got:\n%s", srt)
	}

	requests := backend.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(requests))
	}
	if requests[0].SampleRate != "4" || requests[0].Language != "en" {
		t.Errorf("unexpected request headers: %+v", requests[0])
	}
	if requests[0].PayloadBytes != 24 {
		t.Errorf("expected the full chunk payload, got %d bytes", requests[0].PayloadBytes)
	}
}

func TestGenerateBackendFailure(t *testing.T) {
	ctx := context.Background()
	backend := whispertest.NewComponent()
	if err := backend.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = backend.Stop(ctx) })
	backend.FailWith(500)

	gen, mediaID, moviePath := generatorHarness(t, backend)

	if _, err := gen.Generate(ctx, mediaID, "en", pipeline.NopObserver{}); err == nil {
		t.Fatal("expected error from failing backend")
	}
	sidecar := strings.TrimSuffix(moviePath, ".mkv") + ".en.srt"
	if _, err := os.Stat(sidecar); !os.IsNotExist(err) {
		t.Errorf("expected no sidecar written, stat err: %v", err)
	}
}
