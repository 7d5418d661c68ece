package handlers

import (
	"net/http"

	"github.com/atmopics/share/cmd/share/models"
	"github.com/atmopics/share/cmd/share/service"
	"github.com/atmopics/share/common/identity"
	"github.com/atmopics/share/common/lexicon"
	"github.com/atmopics/share/common/logger"
	"github.com/atmopics/share/common/repo"
	"github.com/labstack/echo/v4"
)

// ContentHandler serves share page data, previews and share links
type ContentHandler struct {
	content   *service.ContentService
	previews  *service.PreviewService
	publicURL string
	log       *logger.Logger
}

// NewContentHandler creates a new content handler
func NewContentHandler(content *service.ContentService, previews *service.PreviewService, publicURL string, log *logger.Logger) *ContentHandler {
	return &ContentHandler{
		content:   content,
		previews:  previews,
		publicURL: publicURL,
		log:       log,
	}
}

// Page returns the page data handler for one content kind
// GET /{i,v,c,m}/:repo/:rkey
func (h *ContentHandler) Page(kind lexicon.Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		identifier, rkey := c.Param("repo"), c.Param("rkey")

		var (
			page any
			err  error
		)
		switch kind {
		case lexicon.KindImage:
			page, err = h.content.ImageView(ctx, identifier, rkey)
		case lexicon.KindVideo:
			page, err = h.content.VideoView(ctx, identifier, rkey)
		case lexicon.KindCode:
			page, err = h.content.CodeView(ctx, identifier, rkey)
		case lexicon.KindMarkdown:
			page, err = h.content.MarkdownView(ctx, identifier, rkey)
		default:
			return echo.NewHTTPError(http.StatusNotFound)
		}
		if err != nil {
			return respondError(c, h.log, err)
		}

		return c.JSON(http.StatusOK, page)
	}
}

// Preview returns the social preview image handler for one content kind
// GET /{i,v,c,m}/:repo/:rkey/og.png
func (h *ContentHandler) Preview(kind lexicon.Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		img, err := h.previews.Preview(c.Request().Context(), kind, c.Param("repo"), c.Param("rkey"))
		if err != nil {
			return respondError(c, h.log, err)
		}

		c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
		return c.Blob(http.StatusOK, "image/png", img)
	}
}

// ShareLink converts an at:// record URI into its public share URL
// GET /api/v1/share-link?uri=at://...
func (h *ContentHandler) ShareLink(c echo.Context) error {
	uri := c.QueryParam("uri")

	addr, err := repo.ParseURI(uri)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_uri", Message: err.Error()})
	}
	if _, err := identity.Classify(addr.DID); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_uri", Message: err.Error()})
	}

	link, err := lexicon.ShareLinkFromURI(h.publicURL, uri)
	if err != nil {
		return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "unsupported_collection", Message: err.Error()})
	}

	return c.JSON(http.StatusOK, models.ShareLinkResponse{URL: link})
}
