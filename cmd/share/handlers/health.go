package handlers

import (
	"net/http"

	"github.com/atmopics/share/common/bootstrap"
	"github.com/labstack/echo/v4"
)

// HealthHandler reports liveness and the health of backing stores
type HealthHandler struct {
	components *bootstrap.Components
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(components *bootstrap.Components) *HealthHandler {
	return &HealthHandler{components: components}
}

// Health checks every connected component
// GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	checks := map[string]string{}
	status, code := "ok", http.StatusOK

	for name, err := range h.components.Health(c.Request().Context()) {
		if err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	return c.JSON(code, map[string]interface{}{
		"status":     status,
		"service":    h.components.Config.Service.Name,
		"components": checks,
	})
}
