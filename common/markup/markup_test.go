package markup

import (
	"strings"
	"testing"

	"github.com/atmopics/share/common/layout"
	"github.com/stretchr/testify/assert"
)

func TestEscape(t *testing.T) {
	assert.Equal(t, "a &amp;&amp; b &lt;script&gt;&quot;x&quot;", Escape(`a && b <script>"x"`))
	assert.Equal(t, "&amp;lt;", Escape("&lt;"), "ampersand is escaped first")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abc", 2))
	assert.Equal(t, "日本...", Truncate("日本語", 2), "counts runes, not bytes")
}

func TestCodeCard(t *testing.T) {
	content := strings.Repeat("x", 450)
	html := CodeCard("", content, layout.PreviewCanvas)

	assert.Contains(t, html, DefaultCodeTitle)
	assert.Contains(t, html, strings.Repeat("x", 400)+"...")
	assert.NotContains(t, html, strings.Repeat("x", 401))
	assert.Contains(t, html, "width:1200px;height:630px")
}

func TestCodeCard_EscapesUserText(t *testing.T) {
	html := CodeCard("<b>", "if a < b && c > d {}", layout.PreviewCanvas)

	assert.Contains(t, html, "&lt;b&gt;")
	assert.Contains(t, html, "if a &lt; b &amp;&amp; c &gt; d {}")
	assert.NotContains(t, html, "<b>")
}

func TestMarkdownCard(t *testing.T) {
	html := MarkdownCard("Notes", strings.Repeat("y", 301), layout.PreviewCanvas)

	assert.Contains(t, html, "Notes")
	assert.Contains(t, html, strings.Repeat("y", 300)+"...")

	html = MarkdownCard("", "short", layout.PreviewCanvas)
	assert.Contains(t, html, DefaultMarkdownTitle)
	assert.NotContains(t, html, "short...")
}

func TestImageCard(t *testing.T) {
	html := ImageCard(`https://cdn.test/a"b`, `say "hi"`, layout.FitLayout{Width: 1120, Height: 630}, layout.PreviewCanvas)

	assert.Contains(t, html, `src="https://cdn.test/a&quot;b"`)
	assert.Contains(t, html, `alt="say &quot;hi&quot;"`)
	assert.Contains(t, html, `width="1120" height="630"`)
}

func TestVideoCard_WithoutFitContainsImage(t *testing.T) {
	html := VideoCard("https://cdn.test/t.jpg", layout.FitLayout{}, layout.PreviewCanvas)
	assert.Contains(t, html, "object-fit:contain")
}

func TestDocument(t *testing.T) {
	doc := Document("<div>card</div>", layout.PreviewCanvas)
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, "<div>card</div>")
}
