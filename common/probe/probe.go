// Package probe measures local media assets inside a browser before upload:
// native dimensions, and a first-frame still for videos.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/atmopics/share/common/layout"
	"github.com/atmopics/share/common/logger"
	"golang.org/x/image/webp"
)

var (
	ErrMetadataLoadFailed        = errors.New("metadata load failed")
	ErrThumbnailGenerationFailed = errors.New("thumbnail generation failed")
)

// ThumbnailQuality is the webp quality of generated stills
const ThumbnailQuality = 0.8

// Asset is a local media file handed to the browser
type Asset struct {
	Name     string
	MimeType string
	Data     []byte
}

// Frame is an encoded still and the native size it was drawn at
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Runtime is a media-decoding environment. Object URLs created in it hold
// the asset bytes until revoked.
type Runtime interface {
	CreateObjectURL(ctx context.Context, asset Asset) (string, error)
	RevokeObjectURL(ctx context.Context, url string) error
	LoadMetadata(ctx context.Context, url string) (layout.AspectRatio, error)
	CaptureFirstFrame(ctx context.Context, url string, quality float64) (Frame, error)
}

// OpenFunc starts a runtime session. The returned func ends it.
type OpenFunc func(ctx context.Context) (Runtime, func(), error)

// Prober runs probes in fresh runtime sessions
type Prober struct {
	open OpenFunc
	log  *logger.Logger
}

// NewProber creates a prober
func NewProber(open OpenFunc, log *logger.Logger) *Prober {
	return &Prober{open: open, log: log}
}

// withObjectURL hands fn an object URL for asset and revokes it exactly once
// after fn returns, whatever fn returned
func withObjectURL(ctx context.Context, rt Runtime, asset Asset, log *logger.Logger, fn func(url string) error) error {
	url, err := rt.CreateObjectURL(ctx, asset)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.RevokeObjectURL(context.WithoutCancel(ctx), url); err != nil {
			log.Warn("revoke object url failed", "asset", asset.Name, "error", err)
		}
	}()
	return fn(url)
}

// Dimensions reads the native width and height of a video from its metadata
func (p *Prober) Dimensions(ctx context.Context, asset Asset) (layout.AspectRatio, error) {
	rt, done, err := p.open(ctx)
	if err != nil {
		return layout.AspectRatio{}, fmt.Errorf("%w: %w", ErrMetadataLoadFailed, err)
	}
	defer done()

	var dims layout.AspectRatio
	err = withObjectURL(ctx, rt, asset, p.log, func(url string) error {
		var err error
		dims, err = rt.LoadMetadata(ctx, url)
		return err
	})
	if err != nil {
		return layout.AspectRatio{}, fmt.Errorf("%w: %s: %w", ErrMetadataLoadFailed, asset.Name, err)
	}
	if !dims.Valid() {
		return layout.AspectRatio{}, fmt.Errorf("%w: %s has no video track (%dx%d)",
			ErrMetadataLoadFailed, asset.Name, dims.Width, dims.Height)
	}

	return dims, nil
}

// Thumbnail draws the frame at t=0 and encodes it as webp. The result is
// checked to decode with the reported dimensions.
func (p *Prober) Thumbnail(ctx context.Context, asset Asset) (Frame, error) {
	rt, done, err := p.open(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrThumbnailGenerationFailed, err)
	}
	defer done()

	var frame Frame
	err = withObjectURL(ctx, rt, asset, p.log, func(url string) error {
		var err error
		frame, err = rt.CaptureFirstFrame(ctx, url, ThumbnailQuality)
		return err
	})
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %w", ErrThumbnailGenerationFailed, asset.Name, err)
	}

	if err := verifyWebP(frame); err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %w", ErrThumbnailGenerationFailed, asset.Name, err)
	}

	return frame, nil
}

func verifyWebP(frame Frame) error {
	if len(frame.Data) == 0 {
		return errors.New("empty still")
	}
	cfg, err := webp.DecodeConfig(bytes.NewReader(frame.Data))
	if err != nil {
		return fmt.Errorf("still is not webp: %w", err)
	}
	if cfg.Width != frame.Width || cfg.Height != frame.Height {
		return fmt.Errorf("still is %dx%d, video is %dx%d", cfg.Width, cfg.Height, frame.Width, frame.Height)
	}
	return nil
}
