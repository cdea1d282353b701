// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package azuredevops

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/transfer/internal/logger"
	"github.com/mia-platform/transfer/internal/source"
)

var (
	// ErrDevOpsSource wraps errors emitted by the Azure DevOps source.
	ErrDevOpsSource = errors.New("azure devops source")
	// ErrInvalidResumeToken reports a resume token not produced by this source.
	ErrInvalidResumeToken = errors.New("invalid resume token")
)

const (
	logName = "transfer:source:azuredevops"

	tokenSeparator = ":"
)

var timeSource = time.Now

var _ source.Loader = &Source{}
var _ source.ClosableSource = &Source{}

// Source lists Azure DevOps resources type by type. The resume token is the index of the type being
// read and the continuation token returned by Azure DevOps, joined by a colon.
type Source struct {
	envConfig
	types []string

	lock   sync.Mutex
	client *client
}

// NewSource creates a new Azure DevOps Source reading the connection settings from the env variables.
func NewSource(options map[string]any) (*Source, error) {
	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		return nil, handleErr(err)
	}

	if err := cfg.validate(); err != nil {
		return nil, handleErr(err)
	}

	types, err := decodeTypes(options)
	if err != nil {
		return nil, handleErr(err)
	}

	return &Source{
		envConfig: cfg,
		types:     types,
	}, nil
}

func (s *Source) devopsClient() (*client, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client, err := newClient(s.connection())
	if err != nil {
		return nil, err
	}

	s.client = client
	return client, nil
}

// Load implements source.Loader.
func (s *Source) Load(ctx context.Context, resumeToken string) (*source.Page, error) {
	log := logger.FromContext(ctx).WithName(logName)

	typeIndex, continuationToken, err := s.parseToken(resumeToken)
	if err != nil {
		return nil, handleErr(err)
	}

	client, err := s.devopsClient()
	if err != nil {
		return nil, handleErr(err)
	}

	resourceType := s.types[typeIndex]
	log.Trace("listing resources", "type", resourceType, "continuationToken", continuationToken)

	items, nextContinuation, err := client.listPage(ctx, resourceType, continuationToken)
	if err != nil {
		return nil, handleErr(err)
	}

	page := &source.Page{Data: make([]source.Data, 0, len(items))}
	now := timeSource()
	for _, item := range items {
		page.Data = append(page.Data, source.Data{
			Type:      resourceType,
			Operation: source.DataOperationUpsert,
			Time:      now,
			Values:    item,
		})
	}

	switch {
	case nextContinuation != "":
		page.ResumeToken = formatToken(typeIndex, nextContinuation)
	case typeIndex+1 < len(s.types):
		page.ResumeToken = formatToken(typeIndex+1, "")
	}

	log.Debug("resources listed", "type", resourceType, "count", len(page.Data), "resumeToken", page.ResumeToken)
	return page, nil
}

func (s *Source) parseToken(resumeToken string) (int, string, error) {
	if resumeToken == "" {
		return 0, "", nil
	}

	index, continuationToken, found := strings.Cut(resumeToken, tokenSeparator)
	typeIndex, err := strconv.Atoi(index)
	if !found || err != nil || typeIndex < 0 || typeIndex >= len(s.types) {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidResumeToken, resumeToken)
	}

	return typeIndex, continuationToken, nil
}

func formatToken(typeIndex int, continuationToken string) string {
	return strconv.Itoa(typeIndex) + tokenSeparator + continuationToken
}

// Close implement source.ClosableSource interface.
func (s *Source) Close(ctx context.Context, _ time.Duration) error {
	log := logger.FromContext(ctx).WithName(logName)
	log.Debug("closing Azure DevOps client")

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.client != nil {
		s.client.client.CloseIdleConnections()
		s.client = nil
	}

	log.Trace("closed Azure DevOps client")
	return nil
}

// handleErr always wraps the given error with ErrDevOpsSource.
func handleErr(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrDevOpsSource, err)
}
