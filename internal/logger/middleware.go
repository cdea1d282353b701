// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	forwardedHostHeaderKey = "x-forwarded-host"
	forwardedForHeaderKey  = "x-forwarded-for"
	userAgentHeaderKey     = "user-agent"
	RequestIDHeaderName    = "x-request-id"

	IncomingRequestMessage  = "incoming request"
	RequestCompletedMessage = "request completed"
)

// requestInfo is the http log field of a request.
type requestInfo struct {
	Request  *request  `json:"request,omitempty"`
	Response *response `json:"response,omitempty"`
}

type userAgent struct {
	Original string `json:"original,omitempty"`
}

type request struct {
	Method    string    `json:"method,omitempty"`
	UserAgent userAgent `json:"userAgent"`
}

type responseBody struct {
	Bytes int `json:"bytes,omitempty"`
}

type response struct {
	StatusCode int          `json:"statusCode,omitempty"`
	Body       responseBody `json:"body"`
}

type host struct {
	Hostname      string `json:"hostname,omitempty"`
	ForwardedHost string `json:"forwardedHost,omitempty"`
	IP            string `json:"ip,omitempty"`
}

type url struct {
	Path string `json:"path,omitempty"`
}

// fiberRequest reads the log fields of a fiber request; handlerErr is the error returned by the
// route, which fiber turns into the response only after the middleware chain returns.
type fiberRequest struct {
	c          *fiber.Ctx
	handlerErr error
}

func (r *fiberRequest) path() string {
	return string(r.c.Request().URI().RequestURI())
}

func (r *fiberRequest) hostname() string {
	hostname := string(r.c.Request().Host())
	if name, _, err := net.SplitHostPort(hostname); err == nil {
		return name
	}
	return hostname
}

func (r *fiberRequest) request() *request {
	return &request{
		Method:    r.c.Method(),
		UserAgent: userAgent{Original: r.c.Get(userAgentHeaderKey)},
	}
}

func (r *fiberRequest) host() host {
	return host{
		ForwardedHost: r.c.Get(forwardedHostHeaderKey),
		Hostname:      r.hostname(),
		IP:            r.c.Get(forwardedForHeaderKey),
	}
}

func (r *fiberRequest) fiberError() *fiber.Error {
	if fiberErr, ok := r.handlerErr.(*fiber.Error); ok {
		return fiberErr
	}
	return nil
}

func (r *fiberRequest) statusCode() int {
	if fiberErr := r.fiberError(); fiberErr != nil {
		return fiberErr.Code
	}
	return r.c.Response().StatusCode()
}

func (r *fiberRequest) bodySize() int {
	if fiberErr := r.fiberError(); fiberErr != nil {
		return len(fiberErr.Error())
	}

	if content := r.c.GetRespHeader(fiber.HeaderContentLength); content != "" {
		if length, err := strconv.Atoi(content); err == nil {
			return length
		}
	}
	return len(r.c.Response().Body())
}

// RequestID returns the x-request-id header of the request, or a new random uuid.
func RequestID(c *fiber.Ctx) string {
	if requestID := c.Get(RequestIDHeaderName); requestID != "" {
		return requestID
	}

	requestID, err := uuid.NewRandom()
	if err != nil {
		panic(fmt.Errorf("error generating request id: %w", err))
	}
	return requestID.String()
}

func logIncomingRequest(r *fiberRequest, logger Logger) {
	logger.Trace(IncomingRequestMessage,
		"http", requestInfo{Request: r.request()},
		"url", url{Path: r.path()},
		"host", r.host(),
	)
}

func logRequestCompleted(r *fiberRequest, logger Logger, startTime time.Time) {
	logger.Info(RequestCompletedMessage,
		"http", requestInfo{
			Request: r.request(),
			Response: &response{
				StatusCode: r.statusCode(),
				Body:       responseBody{Bytes: r.bodySize()},
			},
		},
		"url", url{Path: r.path()},
		"host", r.host(),
		"responseTime", float64(time.Since(startTime).Milliseconds()),
	)
}

// RequestMiddlewareLogger is a fiber middleware logging every request whose path does not start with
// one of excludedPrefix. The request logger, tagged with the request id, is stored in the user context.
func RequestMiddlewareLogger(logger Logger, excludedPrefix []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		r := &fiberRequest{c: c}
		for _, prefix := range excludedPrefix {
			if strings.HasPrefix(r.path(), prefix) {
				return c.Next()
			}
		}

		start := time.Now()
		requestLogger := logger.WithName("request").With("reqId", RequestID(c))
		c.SetUserContext(WithContext(c.UserContext(), requestLogger))

		logIncomingRequest(r, requestLogger)
		r.handlerErr = c.Next()
		logRequestCompleted(r, requestLogger, start)

		return r.handlerErr
	}
}
