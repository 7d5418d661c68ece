package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/atmopics/share/cmd/share/container"
	"github.com/atmopics/share/cmd/share/routes"
	"github.com/atmopics/share/common/bootstrap"
	sharemw "github.com/atmopics/share/common/middleware"
	"github.com/atmopics/share/common/server"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (logger, cache, redis, db, telemetry)
	components, err := bootstrap.Setup(ctx, "share")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap share: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	e, err := NewEcho(serviceContainer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build router: %v\n", err)
		os.Exit(1)
	}

	// Previews drive a browser, so writes may take the whole render budget
	srv := server.New("share", components.Config.Service.Port, e,
		components.Config.Render.Timeout+components.Config.Repo.HTTPTimeout*3, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("Server error", "error", err)
		components.Shutdown(ctx)
		os.Exit(1)
	}
}

// NewEcho builds the router with middleware and all routes
func NewEcho(c *container.Container) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Rate limits key on the client address, so only configured proxies
	// may supply it through X-Forwarded-For
	proxies, err := c.Components.Config.TrustedProxyNets()
	if err != nil {
		return nil, err
	}
	e.IPExtractor = ipExtractor(proxies)

	e.Use(middleware.RequestID())
	e.Use(sharemw.RequestContext())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.OPTIONS},
	}))

	routes.RegisterHealthRoutes(e, c)
	routes.RegisterContentRoutes(e, c)

	return e, nil
}

func ipExtractor(proxies []*net.IPNet) echo.IPExtractor {
	if len(proxies) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, p := range proxies {
		opts = append(opts, echo.TrustIPRange(p))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
