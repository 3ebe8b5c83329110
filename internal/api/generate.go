package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

func (s *Server) handleListModels(c *echo.Context) error {
	return c.JSON(http.StatusOK, ModelList{
		Object: "list",
		Data:   s.catalog.List(),
	})
}

func (s *Server) handleGetModel(c *echo.Context) error {
	id := c.Param("owner") + "/" + c.Param("name")
	for _, info := range s.catalog.List() {
		if info.ID == id {
			return c.JSON(http.StatusOK, info)
		}
	}
	return writeNotFound(c, fmt.Sprintf("model %q not found", id))
}

func (s *Server) handleGenerate(c *echo.Context) error {
	var req GenerateRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return writeBadRequest(c, "invalid json: "+err.Error())
	}
	if req.Model == "" {
		return writeBadRequest(c, "model is required")
	}
	if req.Prompt == "" {
		return writeBadRequest(c, "prompt is required")
	}

	ctx := c.Request().Context()
	engine, err := s.catalog.Engine(ctx, req.Model)
	if err != nil {
		return writeNotFound(c, err.Error())
	}

	id := "gen_" + uuid.NewString()
	s.log.Info("generate request", "id", id, "model", req.Model, "stream", req.Stream)

	if req.Stream {
		return s.streamGenerate(c, engine, id, &req)
	}

	result, err := engine.Generate(ctx, req.Prompt, nil)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	return c.JSON(http.StatusOK, GenerateResponse{
		ID:           id,
		Object:       "generation",
		Created:      time.Now().Unix(),
		Model:        req.Model,
		Text:         result.Text,
		FinishReason: string(result.FinishReason),
		Usage: Usage{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: len(result.TokenIDs),
			TotalTokens:      result.PromptTokens + len(result.TokenIDs),
		},
	})
}

func (s *Server) streamGenerate(c *echo.Context, engine Engine, id string, req *GenerateRequest) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return writeError(c, http.StatusInternalServerError, "server_error", "streaming unsupported")
	}

	send := func(chunk GenerateChunk) {
		raw, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		fmt.Fprintf(res, "data: %s\n\n", raw)
		flusher.Flush()
	}

	_, err := engine.Generate(c.Request().Context(), req.Prompt, func(piece string) {
		send(GenerateChunk{ID: id, Model: req.Model, Delta: piece})
	})
	if err != nil {
		send(GenerateChunk{ID: id, Model: req.Model, Error: err.Error(), Done: true})
		s.log.Error("stream generation failed", "id", id, "err", err)
		return nil
	}
	send(GenerateChunk{ID: id, Model: req.Model, Done: true})
	return nil
}
