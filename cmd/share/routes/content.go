package routes

import (
	"github.com/atmopics/share/cmd/share/container"
	"github.com/atmopics/share/cmd/share/handlers"
	"github.com/atmopics/share/common/lexicon"
	"github.com/atmopics/share/common/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterContentRoutes registers one page route and one preview route per
// shared collection, plus the share link lookup
func RegisterContentRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewContentHandler(c.ContentService, c.PreviewService, c.Components.Config.Service.PublicURL, c.Components.Logger)
	throttle := middleware.RateLimitMiddleware(c.PreviewLimiter, middleware.ClientIP, c.Components.Logger)

	for _, route := range lexicon.ShareRoutes {
		e.GET(route.Template(), h.Page(route.Kind))                       // GET /i/alice.test/3k2
		e.GET(route.Template()+"/og.png", h.Preview(route.Kind), throttle) // GET /i/alice.test/3k2/og.png
	}

	api := e.Group("/api/v1")
	{
		api.GET("/share-link", h.ShareLink) // GET /api/v1/share-link?uri=at://...
	}
}

// RegisterHealthRoutes registers the health check endpoint
func RegisterHealthRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewHealthHandler(c.Components)
	e.GET("/health", h.Health)
}
