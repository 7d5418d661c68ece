package container

import (
	"fmt"
	"net/http"

	"github.com/atmopics/share/cmd/share/service"
	"github.com/atmopics/share/common/blob"
	"github.com/atmopics/share/common/bootstrap"
	"github.com/atmopics/share/common/clients"
	"github.com/atmopics/share/common/identity"
	"github.com/atmopics/share/common/lexicon"
	"github.com/atmopics/share/common/ratelimit"
	"github.com/atmopics/share/common/render"
	"github.com/atmopics/share/common/repo"
	"github.com/atmopics/share/common/security"
)

// Container holds all initialized services (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Pipeline parts
	HTTPClient *clients.HTTPClient
	Directory  *identity.Directory
	Fetcher    *repo.Fetcher
	Lexicons   *lexicon.Registry
	URLs       *blob.Synthesizer
	Browser    *render.Browser

	// Services
	ContentService *service.ContentService
	PreviewService *service.PreviewService
	PreviewLimiter ratelimit.Limiter
}

// Options overrides parts of the container, for tests
type Options struct {
	Rasterizer render.Rasterizer
	Transport  http.RoundTripper
}

// NewContainer initializes all services once
func NewContainer(components *bootstrap.Components, opts *Options) (*Container, error) {
	if opts == nil {
		opts = &Options{}
	}
	cfg := components.Config
	log := components.Logger

	endpoints := security.NewEndpointValidator(cfg.Identity.AllowPrivateHosts)
	httpClient := clients.NewHTTPClient(
		endpoints.HTTPClient(cfg.Repo.HTTPTimeout, opts.Transport),
		log, cfg.Repo.UserAgent)
	directory := identity.NewDirectory(
		identity.NewHandleResolver(httpClient, cfg.Identity.HandleResolverURL),
		identity.NewLocator(httpClient, cfg.Identity.PLCDirectoryURL, endpoints),
		components.Cache,
		cfg.Identity.CacheTTL,
		log,
	)

	lexicons, err := lexicon.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to compile record schemas: %w", err)
	}

	fetcher := repo.NewFetcher(httpClient)
	urls := blob.NewSynthesizer(cfg.Repo.BlobCDNURL)

	contentService := service.NewContentService(&service.ContentServiceOpts{
		Identity:  directory,
		Records:   fetcher,
		Lexicons:  lexicons,
		URLs:      urls,
		Telemetry: components.Telemetry,
		PublicURL: cfg.Service.PublicURL,
		Logger:    log,
	})

	var browser *render.Browser
	rasterizer := opts.Rasterizer
	if rasterizer == nil {
		browser = render.NewBrowser(render.BrowserConfig{
			Bin:        cfg.Render.ChromeBin,
			ControlURL: cfg.Render.ControlURL,
			Timeout:    cfg.Render.Timeout,
		}, log)
		components.AddCleanup(browser.Close)
		rasterizer = render.NewRodRasterizer(browser)
	}
	previewService := service.NewPreviewService(contentService, rasterizer, log)

	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		if components.Redis == nil {
			return nil, fmt.Errorf("redis rate limiting needs a redis connection")
		}
		limiter = ratelimit.NewRedisLimiter(components.Redis, cfg.RateLimit.Limit, cfg.RateLimit.Window, log)
	default:
		limiter = ratelimit.NewLocalLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	return &Container{
		Components:     components,
		HTTPClient:     httpClient,
		Directory:      directory,
		Fetcher:        fetcher,
		Lexicons:       lexicons,
		URLs:           urls,
		Browser:        browser,
		ContentService: contentService,
		PreviewService: previewService,
		PreviewLimiter: limiter,
	}, nil
}
