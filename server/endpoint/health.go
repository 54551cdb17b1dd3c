package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/subgen/component"
	"github.com/skillsenselab/subgen/observability"
	"github.com/skillsenselab/subgen/version"
)

// HealthChecker returns health status for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// Health returns a handler that aggregates component statuses into an
// observability.ServiceHealth document. Any component reporting down makes
// the whole service report 503.
func Health(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh := observability.NewServiceHealth(serviceName, version.Version)
		if checker != nil {
			for _, ch := range checker(c.Request.Context()) {
				sh.AddComponent(observability.Health{
					Name:    ch.Name,
					Status:  healthStatus(ch.Status),
					Message: ch.Message,
				})
			}
		}

		httpStatus := http.StatusOK
		if sh.Status == observability.HealthStatusDown {
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, gin.H{
			"status":     sh.Status,
			"service":    sh.Service,
			"version":    sh.Version,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": sh.Components,
		})
	}
}

func healthStatus(s component.HealthStatus) observability.HealthStatus {
	switch s {
	case component.StatusUnhealthy:
		return observability.HealthStatusDown
	case component.StatusDegraded:
		return observability.HealthStatusDegraded
	default:
		return observability.HealthStatusUp
	}
}
