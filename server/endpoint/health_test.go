package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/subgen/component"
)

func healthResponse(t *testing.T, checker HealthChecker) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/health", Health("subgend", checker))

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	return rr.Code, body
}

func TestHealthAllComponentsUp(t *testing.T) {
	code, body := healthResponse(t, func(context.Context) []component.Health {
		return []component.Health{
			{Name: "server", Status: component.StatusHealthy},
			{Name: "transcription", Status: component.StatusHealthy, Message: "backend reachable"},
		}
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "up" {
		t.Errorf("expected status up, got %v", body["status"])
	}
	components, ok := body["components"].([]any)
	if !ok || len(components) != 2 {
		t.Errorf("expected 2 components, got %v", body["components"])
	}
}

func TestHealthDownComponentMakesServiceDown(t *testing.T) {
	code, body := healthResponse(t, func(context.Context) []component.Health {
		return []component.Health{
			{Name: "server", Status: component.StatusHealthy},
			{Name: "transcription", Status: component.StatusUnhealthy, Message: "backend unreachable"},
		}
	})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body["status"] != "down" {
		t.Errorf("expected status down, got %v", body["status"])
	}
}

func TestHealthDegradedComponentKeeps200(t *testing.T) {
	code, body := healthResponse(t, func(context.Context) []component.Health {
		return []component.Health{
			{Name: "transcription", Status: component.StatusDegraded},
		}
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "degraded" {
		t.Errorf("expected status degraded, got %v", body["status"])
	}
}
