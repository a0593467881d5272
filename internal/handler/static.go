package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"collage-devserver/internal/config"
)

// StaticHandler serves the site directory with net/http's file server:
// index.html resolution, directory listings and content-type sniffing
// come from there.
type StaticHandler struct {
	files http.Handler
}

// NewStaticHandler creates a StaticHandler rooted at cfg.Server.Root.
func NewStaticHandler(cfg *config.Config) *StaticHandler {
	return &StaticHandler{
		files: http.FileServer(http.Dir(cfg.Server.Root)),
	}
}

// Handle serves the requested file, or the file server's 404/403.
func (h *StaticHandler) Handle(c echo.Context) error {
	h.files.ServeHTTP(c.Response(), c.Request())
	return nil
}

// Preflight answers CORS preflight requests; the CORS middleware has already
// set the headers.
func Preflight(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}
