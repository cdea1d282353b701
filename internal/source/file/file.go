// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/logger"
	"github.com/mia-platform/transfer/internal/source"
)

const (
	loggerName = "transfer:source:file"

	defaultPageSize      = 100
	defaultTypePath      = "type"
	deleteOperationValue = "delete"
)

var (
	// ErrFileSource wraps errors emitted by the JSON Lines source.
	ErrFileSource = errors.New("file source")
	// ErrInvalidResumeToken reports a resume token that is not a valid offset of the file.
	ErrInvalidResumeToken = errors.New("invalid resume token")
)

var _ source.Loader = &Source{}
var _ source.ClosableSource = &Source{}

// Options holds the settings of a JSON Lines source.
type Options struct {
	// Path of the JSON Lines file to read.
	Path string `mapstructure:"path"`
	// DataType is used as the type of every record; when empty the type is read at TypePath.
	DataType string `mapstructure:"dataType"`
	// TypePath is the gjson path of the record type inside every line.
	TypePath string `mapstructure:"typePath"`
	// ValuesPath is the gjson path of the object used as record values; the whole line when empty.
	ValuesPath string `mapstructure:"valuesPath"`
	// OperationPath is the gjson path of the record operation; a "delete" value marks a deletion.
	OperationPath string `mapstructure:"operationPath"`
	// TimePath is the gjson path of an RFC 3339 timestamp used as record time.
	TimePath string `mapstructure:"timePath"`
}

// Source reads records from a JSON Lines file. The resume token is the byte offset of the first
// line of the next page.
type Source struct {
	options  Options
	pageSize int

	lock sync.Mutex
	file *os.File
}

// NewSource returns a Source configured from the free form options of a transfer file.
func NewSource(options map[string]any, pageSize int) (*Source, error) {
	opts := Options{TypePath: defaultTypePath}
	if err := config.DecodeOptions(options, &opts); err != nil {
		return nil, handleError(err)
	}

	if opts.Path == "" {
		return nil, handleError(fmt.Errorf("%w: missing path option", config.ErrValidation))
	}

	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &Source{
		options:  opts,
		pageSize: pageSize,
	}, nil
}

// Load implements source.Loader.
func (s *Source) Load(ctx context.Context, resumeToken string) (*source.Page, error) {
	log := logger.FromContext(ctx).WithName(loggerName)

	offset, err := parseOffset(resumeToken)
	if err != nil {
		return nil, handleError(err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	file, err := s.openFile()
	if err != nil {
		return nil, handleError(err)
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, handleError(err)
	}

	log.Trace("reading page", "path", s.options.Path, "offset", offset, "pageSize", s.pageSize)

	reader := bufio.NewReader(file)
	page := &source.Page{Data: make([]source.Data, 0, s.pageSize)}
	for len(page.Data) < s.pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, readErr := reader.ReadBytes('\n')
		offset += int64(len(line))

		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			data, err := s.toData(trimmed)
			if err != nil {
				return nil, handleError(fmt.Errorf("line at offset %d: %w", offset-int64(len(line)), err))
			}
			page.Data = append(page.Data, data)
		}

		if errors.Is(readErr, io.EOF) {
			log.Debug("end of file reached", "path", s.options.Path, "records", len(page.Data))
			return page, nil
		}
		if readErr != nil {
			return nil, handleError(readErr)
		}
	}

	if _, err := reader.Peek(1); errors.Is(err, io.EOF) {
		return page, nil
	}

	page.ResumeToken = strconv.FormatInt(offset, 10)
	return page, nil
}

func (s *Source) openFile() (*os.File, error) {
	if s.file != nil {
		return s.file, nil
	}

	file, err := os.Open(s.options.Path)
	if err != nil {
		return nil, err
	}

	s.file = file
	return file, nil
}

// toData converts a single JSON line into a source record.
func (s *Source) toData(line []byte) (source.Data, error) {
	if !gjson.ValidBytes(line) {
		return source.Data{}, errors.New("invalid JSON")
	}

	parsed := gjson.ParseBytes(line)
	if s.options.ValuesPath != "" {
		parsed = parsed.Get(s.options.ValuesPath)
	}

	values, ok := parsed.Value().(map[string]any)
	if !ok {
		return source.Data{}, errors.New("record values must be a JSON object")
	}

	data := source.Data{
		Type:      s.options.DataType,
		Operation: source.DataOperationUpsert,
		Values:    values,
	}

	if data.Type == "" {
		dataType := gjson.GetBytes(line, s.options.TypePath)
		if !dataType.Exists() || dataType.String() == "" {
			return source.Data{}, fmt.Errorf("missing record type at %q", s.options.TypePath)
		}
		data.Type = dataType.String()
	}

	if s.options.OperationPath != "" {
		operation := gjson.GetBytes(line, s.options.OperationPath).String()
		if strings.EqualFold(operation, deleteOperationValue) {
			data.Operation = source.DataOperationDelete
		}
	}

	if s.options.TimePath != "" {
		data.Time = gjson.GetBytes(line, s.options.TimePath).Time()
	}

	return data, nil
}

// Close implements source.ClosableSource.
func (s *Source) Close(ctx context.Context, _ time.Duration) error {
	log := logger.FromContext(ctx).WithName(loggerName)

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.file == nil {
		return nil
	}

	log.Debug("closing file", "path", s.options.Path)
	err := s.file.Close()
	s.file = nil
	return handleError(err)
}

func parseOffset(resumeToken string) (int64, error) {
	if resumeToken == "" {
		return 0, nil
	}

	offset, err := strconv.ParseInt(resumeToken, 10, 64)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResumeToken, resumeToken)
	}

	return offset, nil
}

// handleError wraps err with ErrFileSource.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrFileSource, err)
}
