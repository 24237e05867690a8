// Package bridge exposes the message router over HTTP. Popup and content
// contexts are remote clients of this bridge: they POST messages and read
// back exactly one response each.
package bridge

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/gumob/AISummarizer-sub000/internal/router"
	"github.com/gumob/AISummarizer-sub000/internal/store"
)

// Server wraps an echo instance with the message and article endpoints.
type Server struct {
	echo   *echo.Echo
	router *router.Router
	store  *store.Store
}

func New(r *router.Router, st *store.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Server{echo: e, router: r, store: st}
	e.POST("/v1/message", s.handleMessage)
	e.GET("/v1/healthz", s.handleHealthz)
	e.GET("/v1/article", s.handleArticle)
	return s
}

// Handler exposes the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start blocks serving on addr until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	log.Info().Str("listen", addr).Msg("bridge listening")
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleMessage dispatches one envelope. Handler-level failures still come
// back as 200 with Success=false; only a malformed envelope is a client
// error.
func (s *Server) handleMessage(c echo.Context) error {
	var msg router.Message
	if err := c.Bind(&msg); err != nil {
		return c.JSON(http.StatusBadRequest, router.Fail(err))
	}
	resp := s.router.Dispatch(c.Request().Context(), msg)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, router.OK("ok"))
}

// handleArticle is a convenience read of the cache by page URL.
func (s *Server) handleArticle(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return c.JSON(http.StatusBadRequest, router.Response{Success: false, Error: "url parameter is required"})
	}
	rec, err := s.store.GetByURL(c.Request().Context(), url)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, router.Fail(err))
	}
	if rec == nil {
		return c.JSON(http.StatusNotFound, router.Response{Success: false, Error: "article not found"})
	}
	return c.JSON(http.StatusOK, router.OK(rec))
}
