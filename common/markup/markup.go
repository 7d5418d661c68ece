// Package markup builds the HTML fragments rasterized into social previews.
package markup

import (
	"fmt"
	"strings"

	"github.com/atmopics/share/common/layout"
)

const (
	CodePreviewLimit     = 400
	MarkdownPreviewLimit = 300

	DefaultCodeTitle     = "Code snippet"
	DefaultMarkdownTitle = "Markdown post"
)

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// Escape makes user text safe to embed in element content and in
// double-quoted attribute values
func Escape(s string) string {
	return escaper.Replace(s)
}

// Truncate cuts s to at most limit runes and appends "..." when it cut
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func titleOr(title, fallback string) string {
	if title == "" {
		return fallback
	}
	return title
}

// CodeCard renders a code snippet preview on a dark monospace card
func CodeCard(title, content string, canvas layout.Canvas) string {
	return fmt.Sprintf(`<div style="display:flex;flex-direction:column;justify-content:center;padding:48px;width:%dpx;height:%dpx;background:#1e1e2e;color:#cdd6f4;font-family:monospace;box-sizing:border-box;">
  <div style="font-size:36px;font-weight:bold;margin-bottom:24px;color:#89b4fa;overflow:hidden;text-overflow:ellipsis;white-space:nowrap;">%s</div>
  <div style="font-size:20px;color:#a6adc8;overflow:hidden;display:-webkit-box;-webkit-line-clamp:10;-webkit-box-orient:vertical;white-space:pre-wrap;">%s</div>
</div>`,
		canvas.Width, canvas.Height,
		Escape(titleOr(title, DefaultCodeTitle)),
		Escape(Truncate(content, CodePreviewLimit)))
}

// MarkdownCard renders a markdown post preview. The source is shown as
// plain text.
func MarkdownCard(title, content string, canvas layout.Canvas) string {
	return fmt.Sprintf(`<div style="display:flex;flex-direction:column;justify-content:center;padding:60px;width:%dpx;height:%dpx;background:#111;color:#fff;font-family:sans-serif;box-sizing:border-box;">
  <div style="font-size:48px;font-weight:bold;margin-bottom:24px;overflow:hidden;text-overflow:ellipsis;white-space:nowrap;">%s</div>
  <div style="font-size:24px;color:#aaa;overflow:hidden;display:-webkit-box;-webkit-line-clamp:6;-webkit-box-orient:vertical;">%s</div>
</div>`,
		canvas.Width, canvas.Height,
		Escape(titleOr(title, DefaultMarkdownTitle)),
		Escape(Truncate(content, MarkdownPreviewLimit)))
}

// ImageCard centers an image of the given fitted size on a black canvas.
// A zero fit lets the browser contain the image in the canvas.
func ImageCard(src, alt string, fit layout.FitLayout, canvas layout.Canvas) string {
	size := `style="max-width:100%;max-height:100%;object-fit:contain;"`
	if fit.Width > 0 && fit.Height > 0 {
		size = fmt.Sprintf(`width="%d" height="%d"`, fit.Width, fit.Height)
	}
	return fmt.Sprintf(`<div style="display:flex;align-items:center;justify-content:center;width:%dpx;height:%dpx;background:#000;">
  <img src="%s" alt="%s" %s />
</div>`,
		canvas.Width, canvas.Height, Escape(src), Escape(alt), size)
}

// VideoCard is the preview for a video: its first-frame still
func VideoCard(thumbnailSrc string, fit layout.FitLayout, canvas layout.Canvas) string {
	return ImageCard(thumbnailSrc, "", fit, canvas)
}

// Document wraps a card in a full page sized to the canvas
func Document(card string, canvas layout.Canvas) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>html,body{margin:0;padding:0;width:%dpx;height:%dpx;overflow:hidden;}</style></head>
<body>%s</body></html>`, canvas.Width, canvas.Height, card)
}
