package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/atmopics/share/cmd/share/models"
	"github.com/atmopics/share/cmd/share/service"
	"github.com/atmopics/share/common/blob"
	"github.com/atmopics/share/common/identity"
	"github.com/atmopics/share/common/logger"
	"github.com/atmopics/share/common/render"
	"github.com/atmopics/share/common/repo"
	"github.com/labstack/echo/v4"
)

// statusFor maps pipeline failures onto HTTP answers. Every kind of absence
// is a plain not found to the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrUnrecognizedIdentifier),
		errors.Is(err, identity.ErrResolutionFailed),
		errors.Is(err, identity.ErrIdentityUnresolvable),
		errors.Is(err, repo.ErrRecordNotFound),
		errors.Is(err, blob.ErrBlobAbsent),
		errors.Is(err, blob.ErrBlobMalformed),
		errors.Is(err, service.ErrContentEmpty):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repo.ErrHostUnreachable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, render.ErrBrowserUnavailable):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	case errors.Is(err, repo.ErrInvalidResponse):
		return http.StatusBadGateway, "invalid_upstream_response"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

var messages = map[int]string{
	http.StatusNotFound:            "Content not found",
	http.StatusServiceUnavailable:  "The repository host is unreachable. Please try again later.",
	http.StatusBadGateway:          "The repository host returned an unexpected response.",
	http.StatusInternalServerError: "Internal error",
}

// respondError logs the distinct failure kind and stage, then answers with
// the collapsed status
func respondError(c echo.Context, log *logger.Logger, err error) error {
	status, code := statusFor(err)

	l := log.WithContext(c.Request().Context()).
		WithStage(string(service.StageOf(err))).
		WithFields(map[string]any{"path": c.Request().URL.Path, "status": status})
	switch {
	case errors.Is(err, blob.ErrBlobMalformed):
		l.Warn("malformed blob reference", "error", err)
	case status == http.StatusNotFound:
		l.Debug("content not found", "error", err)
	case status >= http.StatusInternalServerError:
		l.Error("content request failed", "error", err)
	}

	return c.JSON(status, models.ErrorResponse{Error: code, Message: messages[status]})
}
