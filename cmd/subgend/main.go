// Command subgend is the subtitle generation daemon: it serves the media
// library and job API over HTTP and runs transcription jobs against a
// whisper backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillsenselab/subgen/component"
	"github.com/skillsenselab/subgen/config"
	"github.com/skillsenselab/subgen/jobs"
	"github.com/skillsenselab/subgen/library"
	"github.com/skillsenselab/subgen/logger"
	"github.com/skillsenselab/subgen/media"
	"github.com/skillsenselab/subgen/observability"
	"github.com/skillsenselab/subgen/pipeline"
	"github.com/skillsenselab/subgen/server"
	"github.com/skillsenselab/subgen/server/api"
	"github.com/skillsenselab/subgen/transcription"
	"github.com/skillsenselab/subgen/transcription/whisper"
	"github.com/skillsenselab/subgen/vad"
)

const serviceName = "subgend"

type detectionConfig struct {
	// Strategy selects speech detection: silence, frames or off.
	Strategy     string                   `yaml:"strategy" mapstructure:"strategy"`
	SilenceGap   vad.SilenceGapConfig     `yaml:"silence_gap" mapstructure:"silence_gap"`
	FrameScoring vad.FrameScoringConfig   `yaml:"frame_scoring" mapstructure:"frame_scoring"`
	Analyzer     vad.EnergyAnalyzerConfig `yaml:"analyzer" mapstructure:"analyzer"`
	Scorer       vad.EnergyScorerConfig   `yaml:"scorer" mapstructure:"scorer"`
}

type observabilityConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

type daemonConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server        server.Config       `yaml:"server" mapstructure:"server"`
	Library       library.Config      `yaml:"library" mapstructure:"library"`
	Whisper       whisper.Config      `yaml:"whisper" mapstructure:"whisper"`
	Decoder       media.DecoderConfig `yaml:"decoder" mapstructure:"decoder"`
	FFprobePath   string              `yaml:"ffprobe_path" mapstructure:"ffprobe_path"`
	Pipeline      pipeline.Options    `yaml:"pipeline" mapstructure:"pipeline"`
	Jobs          jobs.Config         `yaml:"jobs" mapstructure:"jobs"`
	Detection     detectionConfig     `yaml:"detection" mapstructure:"detection"`
	Observability observabilityConfig `yaml:"observability" mapstructure:"observability"`
}

func (c *daemonConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Pipeline.ApplyDefaults()
	if c.Detection.Strategy == "" {
		c.Detection.Strategy = "silence"
	}
}

func (c *daemonConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Library.Validate(); err != nil {
		return err
	}
	if err := c.Pipeline.Audio.Validate(); err != nil {
		return err
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg daemonConfig
	if err := config.LoadConfig(serviceName, &cfg); err != nil {
		return err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(&cfg.Logging)
	log := logger.Get(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, shutdownOtel, err := initObservability(ctx, &cfg)
	if err != nil {
		return err
	}
	defer shutdownOtel()

	// Media access.
	prober := media.NewProber(cfg.FFprobePath)
	decoder := media.NewDecoder(cfg.Decoder)
	lib, err := library.New(cfg.Library, prober, log)
	if err != nil {
		return err
	}
	if _, err := lib.Scan(ctx); err != nil {
		log.Warn("Initial library scan failed", logger.Fields("error", err.Error()))
	}

	// Transcription backend, initialized when the component registry starts.
	stt := transcription.NewManager()
	sttComponent := transcription.NewComponent(stt, func(context.Context) error {
		stt.Register(whisper.ProviderName, whisper.Factory())
		return stt.Initialize(whisper.ProviderName, map[string]any{
			"endpoint": cfg.Whisper.Endpoint,
			"api_key":  cfg.Whisper.APIKey,
			"timeout":  cfg.Whisper.Timeout,
		})
	})

	// Jobs.
	gen := jobs.NewSubtitleGenerator(lib, decoder, stt, detectors(cfg.Detection), cfg.Pipeline, metrics, log)
	manager := jobs.NewManager(ctx, cfg.Jobs, gen, log)

	// HTTP.
	srv := server.New(&cfg.Server, log)
	registry := component.NewRegistry()
	srv.ApplyDefaults(cfg.Name, func(ctx context.Context) []component.Health {
		return registry.HealthAll(ctx)
	})
	api.NewHandler(lib, manager, decoder, log).Register(srv.GinEngine())
	if err := registry.Register(sttComponent); err != nil {
		return err
	}
	if err := registry.Register(server.NewComponent(srv)); err != nil {
		return err
	}

	if err := registry.StartAll(ctx); err != nil {
		return err
	}
	log.Info("Daemon started", logger.Fields(
		"addr", srv.Addr(),
		"library", lib.BaseDir(),
		"backend", whisper.NormalizeEndpoint(cfg.Whisper.Endpoint),
	))

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return registry.StopAll(shutdownCtx)
}

func detectors(cfg detectionConfig) []vad.Detector {
	switch cfg.Strategy {
	case "frames":
		return []vad.Detector{vad.NewFrameScoring(cfg.FrameScoring, vad.NewEnergyScorer(cfg.Scorer))}
	case "off":
		return nil
	default:
		return []vad.Detector{vad.NewSilenceGap(cfg.SilenceGap, vad.NewEnergyAnalyzer(cfg.Analyzer))}
	}
}

func initObservability(ctx context.Context, cfg *daemonConfig) (*pipeline.Metrics, func(), error) {
	if !cfg.Observability.Enabled {
		return nil, func() {}, nil
	}

	tracerCfg := observability.DefaultTracerConfig(cfg.Name)
	meterCfg := observability.DefaultMeterConfig(cfg.Name)
	tracerCfg.Environment = cfg.Environment
	meterCfg.Environment = cfg.Environment
	tracerCfg.ServiceVersion = cfg.Version
	meterCfg.ServiceVersion = cfg.Version
	if cfg.Observability.Endpoint != "" {
		tracerCfg.Endpoint = cfg.Observability.Endpoint
		meterCfg.Endpoint = cfg.Observability.Endpoint
	}

	tp, err := observability.InitTracer(ctx, tracerCfg)
	if err != nil {
		return nil, nil, err
	}
	mp, err := observability.InitMeter(ctx, &meterCfg)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	metrics, err := pipeline.NewMetrics(observability.Meter("pipeline"))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mp.Shutdown(shutdownCtx)
		_ = tp.Shutdown(shutdownCtx)
	}
	return metrics, shutdown, nil
}
