package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"devserver/internal/model"
	"devserver/internal/service"
)

const (
	textPlainUTF8       = "text/plain; charset=utf-8"
	defaultContentType  = "application/octet-stream"
	noCacheDirectives   = "no-cache, no-store, must-revalidate"
	missingURLParameter = "Missing url parameter"
)

// Fetcher retrieves a remote URL with retries.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.FetchResult, error)
}

// ProxyHandler serves /proxy by fetching the requested URL server-side and
// relaying its body and content type.
type ProxyHandler struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.FetchService, logger *slog.Logger) *ProxyHandler {
	return newProxyHandler(svc, logger)
}

func newProxyHandler(f Fetcher, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		fetcher: f,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle reads the target from ?url= (or ?target=), fetches it and writes the
// buffered result. Every outcome becomes a complete HTTP response.
func (h *ProxyHandler) Handle(c echo.Context) error {
	target, err := service.TargetFromQuery(c.QueryParams())
	if err != nil {
		return c.Blob(http.StatusBadRequest, textPlainUTF8, []byte(missingURLParameter))
	}

	res, err := h.fetcher.Fetch(c.Request().Context(), target)
	if err != nil {
		return h.mapError(c, target, err)
	}

	ctype := res.ContentType
	if ctype == "" {
		ctype = defaultContentType
	}

	header := c.Response().Header()
	header.Set(echo.HeaderAccessControlAllowOrigin, "*")
	header.Set(echo.HeaderCacheControl, noCacheDirectives)

	return c.Blob(http.StatusOK, ctype, res.Body)
}

// mapError logs the full failure and answers 502 with the target and the last
// error's message.
func (h *ProxyHandler) mapError(c echo.Context, target string, err error) error {
	last := err
	attrs := []any{
		"url", service.RedactURL(target),
		"err", service.SanitizeError(err),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	}

	var exhausted *service.ExhaustedError
	if errors.As(err, &exhausted) {
		if exhausted.Last != nil {
			last = exhausted.Last
		}
		attempts := make([]string, 0, len(exhausted.Attempts))
		for _, a := range exhausted.Attempts {
			attempts = append(attempts, fmt.Sprintf("#%d (timeout %s): %s", a.Number, a.Timeout, service.SanitizeError(a.Err)))
		}
		attrs = append(attrs, "attempts", attempts)
	}

	switch {
	case errors.Is(err, context.Canceled):
		attrs = append(attrs, "cause", "client disconnected")
	case errors.Is(err, context.DeadlineExceeded):
		attrs = append(attrs, "cause", "timeout")
	}

	h.logger.Error("proxy fetch failed", attrs...)

	body := fmt.Sprintf("Error fetching %s:\n%s", target, last.Error())
	return c.Blob(http.StatusBadGateway, textPlainUTF8, []byte(body))
}
