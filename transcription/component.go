package transcription

import (
	"context"

	"github.com/skillsenselab/subgen/component"
	"github.com/skillsenselab/subgen/provider"
)

// Component exposes a transcription backend as a lifecycle-managed
// component. Backend registration and initialization are deferred to Start,
// so a misconfigured backend fails daemon startup rather than construction.
type Component struct {
	lazy *component.BaseLazyComponent
	mgr  *provider.Manager[Provider]
}

var _ component.Component = (*Component)(nil)

// NewComponent wraps the manager. init runs once when the component starts,
// typically registering and initializing the configured backend.
func NewComponent(mgr *provider.Manager[Provider], init func(ctx context.Context) error) *Component {
	return &Component{
		lazy: component.NewBaseLazyComponent("transcription", init),
		mgr:  mgr,
	}
}

// Name returns the component name.
func (c *Component) Name() string { return c.lazy.Name() }

// Start initializes the backend.
func (c *Component) Start(ctx context.Context) error {
	return c.lazy.Initialize(ctx)
}

// Stop marks the backend uninitialized.
func (c *Component) Stop(_ context.Context) error {
	return c.lazy.Close()
}

// Health reports the selected backend's health. Providers implementing
// provider.HealthChecker contribute their detailed status.
func (c *Component) Health(ctx context.Context) component.Health {
	if err := c.lazy.HealthCheck(ctx); err != nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: err.Error()}
	}
	p, err := c.mgr.Get(ctx)
	if err != nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: err.Error()}
	}
	hc, ok := p.(provider.HealthChecker)
	if !ok {
		return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: p.Name()}
	}
	st := hc.Health(ctx)
	return component.Health{
		Name:    c.Name(),
		Status:  healthStatus(st.Status),
		Message: st.Message,
	}
}

func healthStatus(s provider.Status) component.HealthStatus {
	switch s {
	case provider.StatusHealthy:
		return component.StatusHealthy
	case provider.StatusDegraded:
		return component.StatusDegraded
	default:
		return component.StatusUnhealthy
	}
}
