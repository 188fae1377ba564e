package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/notify"
	"github.com/cuemby/modelhost/pkg/pipeline"
	"github.com/cuemby/modelhost/pkg/storage"
	"github.com/cuemby/modelhost/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// APIRoot prefixes every versioned route
const APIRoot = "/api/v1"

// Pipeline runs and tears down deployments
type Pipeline interface {
	Run(ctx context.Context, up pipeline.Upload) error
	Teardown(ctx context.Context, d *types.Deployment) error
}

// Options configures a Server
type Options struct {
	Store    storage.Store
	Pipeline Pipeline
	Hub      *notify.Hub

	// UploadDir is where per-upload build contexts are created
	UploadDir string

	// MaxUploadSize bounds the request body of an upload, in bytes
	MaxUploadSize int64

	// TeardownTimeout bounds the background teardown after a delete
	TeardownTimeout time.Duration
}

// Server is the HTTP surface of modelhost
type Server struct {
	echo *echo.Echo
	opts Options

	// async runs background work; replaced in tests
	async func(func())
	now   func() time.Time
}

// NewServer builds the echo instance and registers every route
func NewServer(opts Options) *Server {
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = 10 * time.Minute
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:  e,
		opts:  opts,
		async: func(f func()) { go f() },
		now:   time.Now,
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(requestMetrics())
	e.Use(requestLogger())

	api := e.Group(APIRoot)
	upload := []echo.MiddlewareFunc{}
	if opts.MaxUploadSize > 0 {
		upload = append(upload, middleware.BodyLimit(strconv.FormatInt(opts.MaxUploadSize, 10)))
	}
	api.POST("/modelhost", s.handleUpload, upload...)
	api.GET("/deployments", s.handleList)
	api.GET("/deployments/:id", s.handleGet)
	api.DELETE("/deployments/:id", s.handleDelete)

	if opts.Hub != nil {
		e.GET("/ws", echo.WrapHandler(http.HandlerFunc(opts.Hub.ServeWS)))
	}

	registerHealthRoutes(e)
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	logger := log.WithComponent("api")
	logger.Info().Str("addr", addr).Msg("HTTP API listening")

	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := err.Error()

	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		code = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	case errors.Is(err, types.ErrNotFound):
		code = http.StatusNotFound
	}

	if code >= http.StatusInternalServerError {
		logger := log.WithComponent("api")
		logger.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Msg("Request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, messageResponse{Message: msg})
}
