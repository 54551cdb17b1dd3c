package process

import (
	"context"
	"os/exec"
	"time"

	goerrors "github.com/skillsenselab/subgen/errors"
)

// ExecConfig holds execution defaults applied to every command a provider
// runs.
type ExecConfig struct {
	// GracePeriod is the default grace period for SIGTERM then SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period,omitempty" mapstructure:"grace_period"`
	// Timeout bounds each execution. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// SubprocessProvider wraps a Command as a provider.RequestResponse.
// The input function builds a Command from the input, and the output function
// parses the Result into the desired output type.
type SubprocessProvider[I, O any] struct {
	name      string
	buildCmd  func(I) Command
	parseOut  func(*Result) (O, error)
	available func(context.Context) bool
	exec      ExecConfig
}

// NewSubprocessProvider creates a RequestResponse provider backed by subprocess execution.
func NewSubprocessProvider[I, O any](
	name string,
	buildCmd func(I) Command,
	parseOut func(*Result) (O, error),
) *SubprocessProvider[I, O] {
	return &SubprocessProvider[I, O]{
		name:     name,
		buildCmd: buildCmd,
		parseOut: parseOut,
	}
}

// WithExecConfig sets execution defaults for the provider.
func (p *SubprocessProvider[I, O]) WithExecConfig(cfg ExecConfig) *SubprocessProvider[I, O] {
	p.exec = cfg
	return p
}

// WithAvailabilityCheck sets a custom availability check for the provider.
func (p *SubprocessProvider[I, O]) WithAvailabilityCheck(fn func(context.Context) bool) *SubprocessProvider[I, O] {
	p.available = fn
	return p
}

func (p *SubprocessProvider[I, O]) Name() string { return p.name }

func (p *SubprocessProvider[I, O]) IsAvailable(ctx context.Context) bool {
	if p.available != nil {
		return p.available(ctx)
	}
	return true
}

func (p *SubprocessProvider[I, O]) Execute(ctx context.Context, input I) (O, error) {
	cmd := p.buildCmd(input)
	if cmd.GracePeriod == 0 && p.exec.GracePeriod > 0 {
		cmd.GracePeriod = p.exec.GracePeriod
	}
	if p.exec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.exec.Timeout)
		defer cancel()
	}
	result, err := Run(ctx, cmd)
	if err != nil {
		var zero O
		return zero, goerrors.ExternalServiceError(p.name, err)
	}
	return p.parseOut(result)
}

// BinaryAvailable reports whether a binary can be resolved via PATH.
// Useful as an availability check for subprocess-backed providers.
func BinaryAvailable(binary string) func(context.Context) bool {
	return func(context.Context) bool {
		_, err := exec.LookPath(binary)
		return err == nil
	}
}
