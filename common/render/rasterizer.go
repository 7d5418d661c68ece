package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"

	"github.com/atmopics/share/common/layout"
	"github.com/go-rod/rod/lib/proto"
)

// ErrRenderFailed is returned when markup could not be turned into an image
var ErrRenderFailed = errors.New("render failed")

// Rasterizer turns an HTML document into a PNG of exactly canvas size
type Rasterizer interface {
	Render(ctx context.Context, html string, canvas layout.Canvas) ([]byte, error)
}

// waitImages resolves once every <img> has loaded or failed
const waitImages = `() => Promise.all(Array.from(document.images).map(img =>
	img.complete ? null : new Promise(resolve => { img.onload = resolve; img.onerror = resolve; })))`

// RodRasterizer renders with the shared Chromium
type RodRasterizer struct {
	browser *Browser
}

// NewRodRasterizer creates a rasterizer on top of browser
func NewRodRasterizer(browser *Browser) *RodRasterizer {
	return &RodRasterizer{browser: browser}
}

// Render loads html into a fresh page and screenshots the canvas
func (r *RodRasterizer) Render(ctx context.Context, html string, canvas layout.Canvas) ([]byte, error) {
	page, done, err := r.browser.NewPage(ctx, canvas)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	defer done()

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("%w: set content: %w", ErrRenderFailed, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: wait load: %w", ErrRenderFailed, err)
	}
	if _, err := page.Eval(waitImages); err != nil {
		return nil, fmt.Errorf("%w: wait images: %w", ErrRenderFailed, err)
	}

	img, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			Width:  float64(canvas.Width),
			Height: float64(canvas.Height),
			Scale:  1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot: %w", ErrRenderFailed, err)
	}

	if err := checkSize(img, canvas); err != nil {
		return nil, err
	}
	return img, nil
}

func checkSize(img []byte, canvas layout.Canvas) error {
	cfg, err := png.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return fmt.Errorf("%w: decode screenshot: %w", ErrRenderFailed, err)
	}
	if cfg.Width != canvas.Width || cfg.Height != canvas.Height {
		return fmt.Errorf("%w: screenshot is %dx%d, want %dx%d",
			ErrRenderFailed, cfg.Width, cfg.Height, canvas.Width, canvas.Height)
	}
	return nil
}
