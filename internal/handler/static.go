package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"devserver/internal/config"
)

// StaticHandler serves files under the document root for every path that is
// not claimed by another route.
type StaticHandler struct {
	files http.Handler
}

// NewStaticHandler creates a StaticHandler rooted at server.root.
// http.Dir rejects ".." segments, so requests cannot escape the root.
func NewStaticHandler(cfg *config.Config) *StaticHandler {
	return &StaticHandler{
		files: http.FileServer(http.Dir(cfg.Server.Root)),
	}
}

// Handle delegates to http.FileServer, which writes file contents, directory
// listings, redirects and 404s itself.
func (h *StaticHandler) Handle(c echo.Context) error {
	h.files.ServeHTTP(c.Response(), c.Request())
	return nil
}
