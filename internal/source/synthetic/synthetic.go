// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package synthetic

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/logger"
	"github.com/mia-platform/transfer/internal/source"
)

const (
	loggerName = "transfer:source:synthetic"

	defaultCount    = 10
	defaultPageSize = 100
	defaultDataType = "synthetic"
)

var (
	createdAtLowerBound = time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)
	createdAtUpperBound = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
)

var (
	// ErrSyntheticSource wraps errors emitted by the synthetic source.
	ErrSyntheticSource = errors.New("synthetic source")
	// ErrInvalidResumeToken reports a resume token that is not a record index.
	ErrInvalidResumeToken = errors.New("invalid resume token")
)

var _ source.Loader = &Source{}

// Options holds the settings of a synthetic source.
type Options struct {
	Count    int    `mapstructure:"count"`
	Seed     int64  `mapstructure:"seed"`
	DataType string `mapstructure:"dataType"`
}

// Source generates fake person records. Every record is derived from the seed and its own index,
// so resuming from a token yields the same records an uninterrupted run would have produced.
type Source struct {
	options  Options
	pageSize int
}

func NewSource(options map[string]any, pageSize int) (*Source, error) {
	opts := Options{Count: defaultCount, DataType: defaultDataType}
	if err := config.DecodeOptions(options, &opts); err != nil {
		return nil, handleError(err)
	}

	if opts.Count < 0 {
		return nil, handleError(fmt.Errorf("%w: count must not be negative", config.ErrValidation))
	}

	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &Source{
		options:  opts,
		pageSize: pageSize,
	}, nil
}

// Load implements source.Loader. The resume token is the index of the next record to generate.
func (s *Source) Load(ctx context.Context, resumeToken string) (*source.Page, error) {
	log := logger.FromContext(ctx).WithName(loggerName)

	start, err := s.parseIndex(resumeToken)
	if err != nil {
		return nil, handleError(err)
	}

	end := min(start+s.pageSize, s.options.Count)
	log.Trace("generating records", "from", start, "to", end)

	page := &source.Page{Data: make([]source.Data, 0, end-start)}
	for index := start; index < end; index++ {
		page.Data = append(page.Data, s.record(index))
	}

	if end < s.options.Count {
		page.ResumeToken = strconv.Itoa(end)
	}
	return page, nil
}

func (s *Source) record(index int) source.Data {
	faker := gofakeit.NewUnlocked(recordSeed(s.options.Seed, index))
	createdAt := faker.DateRange(createdAtLowerBound, createdAtUpperBound).Truncate(time.Second)

	return source.Data{
		Type:      s.options.DataType,
		Operation: source.DataOperationUpsert,
		Time:      createdAt,
		Values: map[string]any{
			"index":     index,
			"id":        faker.UUID(),
			"name":      faker.Name(),
			"email":     faker.Email(),
			"company":   faker.Company(),
			"city":      faker.City(),
			"age":       faker.IntRange(18, 90),
			"active":    faker.Bool(),
			"createdAt": createdAt.Format(time.RFC3339),
		},
	}
}

// recordSeed hashes seed and index together, so neighbouring seeds never share records. It never
// returns zero, which gofakeit replaces with a random seed.
func recordSeed(seed int64, index int) int64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(seed))
	binary.BigEndian.PutUint64(buf[8:], uint64(index))

	hash := fnv.New64a()
	_, _ = hash.Write(buf[:])
	if derived := int64(hash.Sum64()); derived != 0 {
		return derived
	}
	return 1
}

func (s *Source) parseIndex(resumeToken string) (int, error) {
	if resumeToken == "" {
		return 0, nil
	}

	index, err := strconv.Atoi(resumeToken)
	if err != nil || index < 0 || index > s.options.Count {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResumeToken, resumeToken)
	}

	return index, nil
}

func handleError(err error) error {
	return fmt.Errorf("%w: %w", ErrSyntheticSource, err)
}
