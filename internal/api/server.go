// Package api serves the correction engine over HTTP: one POST route
// mirroring the CLI's single and batch modes, a health probe, and an
// embedded demo page.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/typofix/internal/generate"
	"github.com/samcharles93/typofix/internal/logger"
	"github.com/samcharles93/typofix/internal/prompt"
	"github.com/samcharles93/typofix/internal/webui"
)

// ServerConfig wires a Server.
type ServerConfig struct {
	Provider EngineProvider
	// DefaultModel is reported by the health probe; the provider applies
	// the same default to requests that name no model.
	DefaultModel string
	// Defaults seed each request's generation options before the body's
	// overrides apply.
	Defaults generate.Options
	Logger   logger.Logger
}

type Server struct {
	provider     EngineProvider
	defaultModel string
	defaults     generate.Options
	log          logger.Logger
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Provider == nil {
		return nil, errors.New("api: no engine provider")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		provider:     cfg.Provider,
		defaultModel: cfg.DefaultModel,
		defaults:     cfg.Defaults,
		log:          log,
	}, nil
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/", s.handleIndex)
	e.POST("/v1/corrections", s.handleCreateCorrection)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleIndex(c *echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/html; charset=utf-8")
	res.WriteHeader(http.StatusOK)
	_, err := res.Write(webui.Index())
	return err
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", ModelID: s.defaultModel})
}

func (s *Server) handleCreateCorrection(c *echo.Context) error {
	req, err := decodeJSON[CorrectionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Input != "" && len(req.Inputs) > 0 {
		return writeBadRequest(c, "input and inputs are mutually exclusive")
	}
	if req.Input == "" && len(req.Inputs) == 0 {
		return writeBadRequest(c, "input or inputs is required")
	}

	opts := s.defaults
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		opts.MaxNewTokens = *req.MaxTokens
	}

	if len(req.Inputs) > 0 {
		return s.correctBatch(c, req, opts)
	}
	return s.correctSingle(c, req, opts)
}

func (s *Server) correctSingle(c *echo.Context, req CorrectionRequest, opts generate.Options) error {
	ctx := c.Request().Context()
	var out Correction
	err := s.provider.WithEngine(ctx, req.Model, func(eng Engine) error {
		res, err := eng.Fix(ctx, req.Input, opts)
		if err != nil {
			return err
		}
		out = toCorrection(res)
		return nil
	})
	if err != nil {
		if isRequestError(err) {
			return writeBadRequest(c, err.Error())
		}
		s.log.Error("correction failed", "err", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

// correctBatch runs every non-blank input in order. A failing line becomes
// a failed item; only a provider failure fails the whole request.
func (s *Server) correctBatch(c *echo.Context, req CorrectionRequest, opts generate.Options) error {
	ctx := c.Request().Context()
	list := CorrectionList{Object: "list", Results: []Correction{}}
	err := s.provider.WithEngine(ctx, req.Model, func(eng Engine) error {
		list.ModelID = eng.ModelID()
		for _, line := range req.Inputs {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := eng.Fix(ctx, line, opts)
			if err != nil {
				s.log.Error("line failed", "input", line, "err", err)
				list.Results = append(list.Results, failedCorrection(line, eng.ModelID(), err))
				continue
			}
			list.Results = append(list.Results, toCorrection(res))
		}
		return nil
	})
	if err != nil {
		if isRequestError(err) {
			return writeBadRequest(c, err.Error())
		}
		s.log.Error("batch failed", "err", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

// isRequestError reports whether the failure is the caller's fault.
func isRequestError(err error) bool {
	return errors.Is(err, generate.ErrInvalidConfig) ||
		errors.Is(err, prompt.ErrBadInput) ||
		errors.Is(err, prompt.ErrTooLong)
}
