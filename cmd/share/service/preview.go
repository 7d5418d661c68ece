package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/atmopics/share/common/blob"
	"github.com/atmopics/share/common/layout"
	"github.com/atmopics/share/common/lexicon"
	"github.com/atmopics/share/common/logger"
	"github.com/atmopics/share/common/markup"
	"github.com/atmopics/share/common/render"
	"github.com/atmopics/share/common/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// PreviewService renders social preview images
type PreviewService struct {
	content    *ContentService
	rasterizer render.Rasterizer
	canvas     layout.Canvas
	log        *logger.Logger
}

// NewPreviewService creates a preview service drawing on the standard
// social preview canvas
func NewPreviewService(content *ContentService, rasterizer render.Rasterizer, log *logger.Logger) *PreviewService {
	return &PreviewService{
		content:    content,
		rasterizer: rasterizer,
		canvas:     layout.PreviewCanvas,
		log:        log,
	}
}

// Markup builds the preview document for one record
func (p *PreviewService) Markup(ctx context.Context, kind lexicon.Kind, identifier, rkey string) (string, error) {
	route, err := routeFor(kind)
	if err != nil {
		return "", err
	}

	r, err := p.content.ResolveContent(ctx, identifier, route.Collection, rkey)
	if err != nil {
		return "", err
	}

	var card string
	switch c := r.Content.(type) {
	case *lexicon.CodeRecord:
		card = markup.CodeCard(c.Title, c.Content, p.canvas)
	case *lexicon.MarkdownRecord:
		card = markup.MarkdownCard(c.Title, c.Content, p.canvas)
	case *lexicon.ImageRecord:
		_, src, err := p.content.blobURL(r, c.Image, blob.CDN(blob.FormatJPEG))
		if err != nil {
			return "", err
		}
		fit, err := p.fit(c.AspectRatio)
		if err != nil {
			return "", err
		}
		card = markup.ImageCard(src, c.Alt, fit, p.canvas)
	case *lexicon.VideoRecord:
		_, src, err := p.content.blobURL(r, c.Thumbnail, blob.CDN(blob.FormatJPEG))
		if err != nil {
			return "", err
		}
		fit, err := p.fit(c.AspectRatio)
		if err != nil {
			return "", err
		}
		card = markup.VideoCard(src, fit, p.canvas)
	default:
		return "", fmt.Errorf("%w: %T", lexicon.ErrUnknownCollection, r.Content)
	}

	return markup.Document(card, p.canvas), nil
}

// Preview renders the preview PNG for one record
func (p *PreviewService) Preview(ctx context.Context, kind lexicon.Kind, identifier, rkey string) ([]byte, error) {
	doc, err := p.Markup(ctx, kind, identifier, rkey)
	if err != nil {
		return nil, err
	}

	route, err := routeFor(kind)
	if err != nil {
		return nil, err
	}
	attrs := []attribute.KeyValue{
		telemetry.AttrCollection.String(route.Collection),
		telemetry.AttrRKey.String(rkey),
	}

	var img []byte
	err = p.content.track(ctx, StageRender, attrs, func(ctx context.Context) error {
		var err error
		img, err = p.rasterizer.Render(ctx, doc, p.canvas)
		return err
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// fit sizes media by its recorded aspect ratio. Records without one get a
// zero layout and the card lets the browser contain the image.
func (p *PreviewService) fit(ratio *layout.AspectRatio) (layout.FitLayout, error) {
	if ratio == nil {
		return layout.FitLayout{}, nil
	}
	fit, err := layout.Fit(*ratio, p.canvas)
	if err != nil {
		return layout.FitLayout{}, stageErr(StageLayout, err)
	}
	return fit, nil
}

var errUnknownKind = errors.New("unknown content kind")

func routeFor(kind lexicon.Kind) (lexicon.Route, error) {
	for _, r := range lexicon.ShareRoutes {
		if r.Kind == kind {
			return r, nil
		}
	}
	return lexicon.Route{}, fmt.Errorf("%w: %s", errUnknownKind, kind)
}
