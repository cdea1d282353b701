// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	asset "cloud.google.com/go/asset/apiv1"
	"cloud.google.com/go/asset/apiv1/assetpb"
	"github.com/caarlos0/env/v11"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/logger"
	"github.com/mia-platform/transfer/internal/source"
)

const (
	loggerName = "transfer:source:gcp"

	defaultPageSize = 100
	maxPageSize     = 1000
)

var (
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
	// ErrInvalidEnvVariable reports malformed environment variable values.
	ErrInvalidEnvVariable = errors.New("invalid environment value")
	// ErrGCPSource wraps errors emitted by the GCP source implementation.
	ErrGCPSource = errors.New("gcp source")

	syncParentRegex = regexp.MustCompile(`^(projects|organizations|folders)\/.*`)
)

var _ source.Loader = &Source{}
var _ source.ClosableSource = &Source{}

type assetConfig struct {
	Parent string `env:"GOOGLE_CLOUD_SYNC_PARENT"`
}

// Options holds the job file settings of a GCP source. Parent overrides GOOGLE_CLOUD_SYNC_PARENT.
type Options struct {
	Parent     string   `mapstructure:"parent"`
	AssetTypes []string `mapstructure:"assetTypes"`
}

// Source lists Cloud Asset inventory resources one page at a time; the resume token is the page
// token returned by the Cloud Asset API.
type Source struct {
	parent     string
	assetTypes []string
	pageSize   int

	clientOptions []option.ClientOption
	c             atomic.Pointer[asset.Client]
}

// NewSource returns a Source reading the parent from the options or from the environment.
func NewSource(options map[string]any, pageSize int) (*Source, error) {
	cfg, err := env.ParseAs[assetConfig]()
	if err != nil {
		return nil, handleError(err)
	}

	opts := Options{}
	if err := config.DecodeOptions(options, &opts); err != nil {
		return nil, handleError(err)
	}

	if opts.Parent != "" {
		cfg.Parent = opts.Parent
	}

	if err := checkAssetConfig(cfg); err != nil {
		return nil, handleError(err)
	}

	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &Source{
		parent:     cfg.Parent,
		assetTypes: opts.AssetTypes,
		pageSize:   min(pageSize, maxPageSize),
	}, nil
}

// checkAssetConfig validates the required configuration for Cloud Asset clients.
func checkAssetConfig(cfg assetConfig) error {
	if cfg.Parent == "" {
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "GOOGLE_CLOUD_SYNC_PARENT")
	}

	if !syncParentRegex.MatchString(cfg.Parent) {
		return fmt.Errorf("%w: %s", ErrInvalidEnvVariable, "GOOGLE_CLOUD_SYNC_PARENT must be one of 'organizations/[organization-number]', 'projects/[project-id]', 'projects/[project-number]', or 'folders/[folder-number]'")
	}
	return nil
}

// initAssetClient initializes the Cloud Asset client once and reuses it afterwards.
func (s *Source) initAssetClient(ctx context.Context) (*asset.Client, error) {
	if client := s.c.Load(); client != nil {
		return client, nil
	}

	client, err := asset.NewClient(ctx, s.clientOptions...)
	if err != nil {
		return nil, err
	}

	if !s.c.CompareAndSwap(nil, client) {
		_ = client.Close()
		return s.c.Load(), nil
	}
	return client, nil
}

// Load implements source.Loader.
func (s *Source) Load(ctx context.Context, resumeToken string) (*source.Page, error) {
	log := logger.FromContext(ctx).WithName(loggerName)

	client, err := s.initAssetClient(ctx)
	if err != nil {
		return nil, handleError(err)
	}

	log.Trace("listing assets", "parent", s.parent, "assetTypes", s.assetTypes, "pageToken", resumeToken)

	it := client.ListAssets(ctx, s.listAssetsRequest())
	pager := iterator.NewPager(it, s.pageSize, resumeToken)

	var assets []*assetpb.Asset
	nextToken, err := pager.NextPage(&assets)
	if err != nil {
		return nil, handleError(err)
	}

	page := &source.Page{
		Data:        make([]source.Data, 0, len(assets)),
		ResumeToken: nextToken,
	}
	for _, item := range assets {
		values, err := assetToMap(item)
		if err != nil {
			return nil, handleError(fmt.Errorf("asset %q: %w", item.GetName(), err))
		}

		data := source.Data{
			Type:      item.GetAssetType(),
			Operation: source.DataOperationUpsert,
			Values:    values,
		}
		if item.GetUpdateTime() != nil {
			data.Time = item.GetUpdateTime().AsTime()
		}
		page.Data = append(page.Data, data)
	}

	log.Debug("assets listed", "count", len(page.Data), "hasNextPage", nextToken != "")
	return page, nil
}

// listAssetsRequest builds a ListAssets request for the configured parent.
func (s *Source) listAssetsRequest() *assetpb.ListAssetsRequest {
	return &assetpb.ListAssetsRequest{
		Parent:      s.parent,
		AssetTypes:  s.assetTypes,
		ContentType: assetpb.ContentType_RESOURCE,
	}
}

// Close implements source.ClosableSource.
func (s *Source) Close(ctx context.Context, _ time.Duration) error {
	log := logger.FromContext(ctx).WithName(loggerName)

	client := s.c.Swap(nil)
	if client == nil {
		return nil
	}

	log.Debug("closing GCP asset client")
	if err := client.Close(); err != nil {
		return handleError(err)
	}

	log.Trace("closed GCP asset client")
	return nil
}

// assetToMap converts a Cloud Asset message to a generic map.
func assetToMap(item *assetpb.Asset) (map[string]any, error) {
	b, err := protojson.Marshal(item)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// handleError unwraps gRPC status errors and wraps them with ErrGCPSource.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	if statusErr, ok := status.FromError(err); ok {
		err = fmt.Errorf("%s: %s", statusErr.Code(), statusErr.Message())
	}

	return fmt.Errorf("%w: %w", ErrGCPSource, err)
}
