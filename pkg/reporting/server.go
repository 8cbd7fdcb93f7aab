// Package reporting exposes a read-only HTTP view of a playbook: summary,
// sections, item lookup, retrieval, and merge history.
package reporting

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/metrics"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// Server serves playbook state over HTTP. It never mutates the playbook;
// deltas are applied only through the merger by its owner.
type Server struct {
	echo      *echo.Echo
	playbook  *playbook.Playbook
	retriever *playbook.Retriever
	merger    *playbook.Merger
	collector *metrics.Collector
	logger    *logging.Logger
}

// Option configures the server.
type Option func(*Server)

// WithMerger enables the merge history endpoint.
func WithMerger(m *playbook.Merger) Option {
	return func(s *Server) { s.merger = m }
}

// WithCollector mounts /metrics for the collector's registry and counts
// served retrievals.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithRetriever enables the retrieval endpoint.
func WithRetriever(r *playbook.Retriever) Option {
	return func(s *Server) { s.retriever = r }
}

// NewServer creates the reporting server for a playbook.
func NewServer(pb *playbook.Playbook, opts ...Option) *Server {
	s := &Server{
		playbook: pb,
		logger:   logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if s.collector != nil {
		e.GET("/metrics", echo.WrapHandler(s.collector.Handler()))
	}

	api := e.Group("/api")
	api.GET("/summary", s.handleSummary)
	api.GET("/sections", s.handleSections)
	api.GET("/sections/:name", s.handleSection)
	api.GET("/items/:id", s.handleItem)
	if s.retriever != nil {
		api.GET("/retrieve", s.handleRetrieve)
	}
	if s.merger != nil {
		api.GET("/history", s.handleHistory)
	}

	s.echo = e
	return s
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	} else if errors.HasCode(err, errors.NotFound) {
		code = http.StatusNotFound
	} else if errors.HasCode(err, errors.InvalidOperation) {
		code = http.StatusBadRequest
	}

	req := c.Request()
	s.logger.Warn(req.Context(), "%d %s %s: %v", code, req.Method, req.URL.Path, err)
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]interface{}{"error": msg})
	}
}

func (s *Server) handleSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, s.playbook.Summary())
}

func (s *Server) handleSections(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sections": s.playbook.Sections(),
	})
}

func (s *Server) handleSection(c echo.Context) error {
	name := c.Param("name")
	items := s.playbook.BySection(name)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"section": name,
		"items":   items,
	})
}

func (s *Server) handleItem(c echo.Context) error {
	item, err := s.playbook.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleRetrieve(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}

	k := 0
	if raw := c.QueryParam("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "query parameter k must be an integer")
		}
		k = parsed
	}

	hits, err := s.retriever.Retrieve(c.Request().Context(), query, k)
	if err != nil {
		return err
	}
	if s.collector != nil {
		s.collector.RecordRetrieval()
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"query": query,
		"items": hits,
	})
}

func (s *Server) handleHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"deltas": s.merger.History(),
	})
}

// Start begins serving on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routes for testing.
func (s *Server) Handler() http.Handler {
	return s.echo
}
