// Package render drives a headless Chromium for preview rasterization and
// media probing.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atmopics/share/common/layout"
	"github.com/atmopics/share/common/logger"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrBrowserUnavailable is returned when Chromium can not be launched or reached
var ErrBrowserUnavailable = errors.New("browser unavailable")

// BrowserConfig selects how the browser is obtained
type BrowserConfig struct {
	Bin        string // chromium binary; empty lets the launcher find or fetch one
	ControlURL string // devtools websocket of a running browser; skips launching
	Timeout    time.Duration
}

// Browser is one lazily started Chromium shared by every caller. Each call
// gets its own page.
type Browser struct {
	cfg BrowserConfig
	log *logger.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewBrowser returns an unstarted browser
func NewBrowser(cfg BrowserConfig, log *logger.Logger) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Browser{cfg: cfg, log: log}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	controlURL := b.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true).Leakless(true)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("%w: launch chromium: %w", ErrBrowserUnavailable, err)
		}
		b.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if b.launcher != nil {
			b.launcher.Kill()
			b.launcher = nil
		}
		return nil, fmt.Errorf("%w: connect: %w", ErrBrowserUnavailable, err)
	}

	b.log.Info("browser connected", "control_url", controlURL)
	b.browser = browser
	return browser, nil
}

// NewPage opens a blank page with a viewport of canvas size, bound to ctx
// and the configured timeout. Callers must invoke the returned close func.
func (b *Browser) NewPage(ctx context.Context, canvas layout.Canvas) (*rod.Page, func(), error) {
	browser, err := b.connect()
	if err != nil {
		return nil, nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create page: %w", ErrBrowserUnavailable, err)
	}
	closePage := func() {
		if err := page.Close(); err != nil {
			b.log.Debug("page close failed", "error", err)
		}
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             canvas.Width,
		Height:            canvas.Height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		closePage()
		return nil, nil, fmt.Errorf("set viewport: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	return page.Context(ctx), func() {
		cancel()
		closePage()
	}, nil
}

// Close shuts the browser down. Safe to call when it never started.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher = nil
	}
	return err
}
