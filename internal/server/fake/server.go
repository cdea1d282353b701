// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/mia-platform/transfer/internal/server"
)

var _ server.Server = &Server{}

type Route struct {
	Method  string
	Path    string
	Handler server.Handler
}

// Server records the registered routes and lets tests call them without listening.
type Server struct {
	tb testing.TB

	lock             sync.Mutex
	RegisteredRoutes []Route

	startOnce   sync.Once
	stopOnce    sync.Once
	startedChan chan struct{}
	closedChan  chan struct{}
}

func NewFakeServer(tb testing.TB) *Server {
	tb.Helper()

	return &Server{
		tb:          tb,
		startedChan: make(chan struct{}),
		closedChan:  make(chan struct{}),
	}
}

func (s *Server) AddRoute(method string, path string, handler server.Handler) {
	s.tb.Helper()

	s.lock.Lock()
	defer s.lock.Unlock()
	s.RegisteredRoutes = append(s.RegisteredRoutes, Route{
		Method:  method,
		Path:    path,
		Handler: handler,
	})
}

// Call invokes the handler registered for method and path.
func (s *Server) Call(ctx context.Context, method, path string, params map[string]string, body []byte) (any, error) {
	s.tb.Helper()

	s.lock.Lock()
	var handler server.Handler
	for _, route := range s.RegisteredRoutes {
		if route.Method == method && route.Path == path {
			handler = route.Handler
			break
		}
	}
	s.lock.Unlock()

	if handler == nil {
		return nil, fmt.Errorf("%w: %s %s", server.ErrNotFound, method, path)
	}

	return handler(ctx, params, body)
}

// Start blocks until Stop is called.
func (s *Server) Start() error {
	s.tb.Helper()
	s.startOnce.Do(func() { close(s.startedChan) })
	<-s.closedChan
	return nil
}

func (s *Server) Stop() error {
	s.tb.Helper()
	s.stopOnce.Do(func() { close(s.closedChan) })
	return nil
}

func (s *Server) StartAsync(_ context.Context) {
	s.tb.Helper()
	go func() {
		_ = s.Start()
	}()
}

func (s *Server) StartedServer() <-chan struct{} {
	return s.startedChan
}

func (s *Server) StoppedServer() <-chan struct{} {
	return s.closedChan
}
