// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mia-platform/transfer/internal/info"
	"github.com/mia-platform/transfer/internal/logger"
)

const (
	loggerName = "transfer:server"
)

// Handler serves a route: params holds the route parameters and the returned value is sent back
// as JSON.
type Handler func(ctx context.Context, params map[string]string, body []byte) (any, error)

type Server interface {
	AddRoute(method string, path string, handler Handler)
	Start() error
	Stop() error
	StartAsync(ctx context.Context)
}

type impServer struct {
	config

	app *fiber.App
}

var (
	ErrServerListen   = errors.New("server listen error")
	ErrServerShutdown = errors.New("server shutdown error")

	// ErrNotFound is answered with 404 when returned by a Handler.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest is answered with 400 when returned by a Handler.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict is answered with 409 when returned by a Handler.
	ErrConflict = errors.New("conflict")
)

// NewServer returns a Server configured from the environment, logging requests with the logger
// found in ctx.
func NewServer(ctx context.Context) (Server, error) {
	return newServer(ctx)
}

func newServer(ctx context.Context) (*impServer, error) {
	cfg, err := LoadServerConfig()
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: cfg.DisableStartupMessage,
		Immutable:             true,
	})
	log := logger.FromContext(ctx)
	app.Use(logger.RequestMiddlewareLogger(log, []string{"/-/"}))

	statusRoutes(app, info.AppName, info.Version)

	return &impServer{
		app:    app,
		config: *cfg,
	}, nil
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (s *impServer) AddRoute(method string, path string, handler Handler) {
	s.app.Add(method, path, func(c *fiber.Ctx) error {
		payload, err := handler(c.UserContext(), c.AllParams(), c.Body())
		if err != nil {
			status := statusFromError(err)
			if status == http.StatusInternalServerError {
				logger.FromContext(c.UserContext()).WithName(loggerName).Error("error serving request", "path", path, "error", err)
			}

			return c.Status(status).JSON(errorResponse{
				StatusCode: status,
				Error:      http.StatusText(status),
				Message:    err.Error(),
			})
		}

		if payload == nil {
			return c.SendStatus(http.StatusNoContent)
		}
		return c.JSON(payload)
	})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *impServer) Start() error {
	if err := s.app.Listen(fmt.Sprintf("%s:%d", s.HTTPHost, s.HTTPPort)); err != nil {
		return fmt.Errorf("%w: %w", ErrServerListen, err)
	}
	return nil
}

func (s *impServer) Stop() error {
	if err := s.app.Shutdown(); err != nil {
		return fmt.Errorf("%w: %w", ErrServerShutdown, err)
	}
	return nil
}

func (s *impServer) StartAsync(ctx context.Context) {
	log := logger.FromContext(ctx).WithName(loggerName)
	go func() {
		if err := s.Start(); err != nil {
			log.Error(err.Error())
		}
	}()
}
