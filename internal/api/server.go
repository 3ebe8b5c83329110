// Package api exposes the model catalog and text generation over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/atlasml/atlas/internal/generation"
	"github.com/atlasml/atlas/internal/logger"
)

// Engine abstracts a loaded model for request handling.
type Engine interface {
	Generate(ctx context.Context, prompt string, onToken func(string)) (*generation.Result, error)
}

// Catalog resolves model identifiers to engines and enumerates what is
// available locally.
type Catalog interface {
	List() []ModelInfo
	Engine(ctx context.Context, id string) (Engine, error)
}

type Server struct {
	catalog Catalog
	log     logger.Logger
}

func NewServer(catalog Catalog, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{catalog: catalog, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/models", s.handleListModels)
	// Model ids are owner/name, so the route needs both segments.
	e.GET("/v1/models/:owner/:name", s.handleGetModel)
	e.POST("/v1/generate", s.handleGenerate)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ErrorBody{
			Message: msg,
			Type:    errType,
		},
	})
}
