// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// ErrParsing reports failures that occur while decoding transfer files.
	ErrParsing = errors.New("error parsing")
	// ErrValidation reports transfer files that decode correctly but hold invalid values.
	ErrValidation = errors.New("invalid transfer configuration")
)

// TransferConfig describes a single transfer job: where records are loaded from, how they are
// mapped and where they are written.
type TransferConfig struct {
	Name        string            `json:"name" yaml:"name" validate:"required,dns_rfc1035_label"`
	Source      SourceConfig      `json:"source" yaml:"source"`
	Destination DestinationConfig `json:"destination" yaml:"destination"`
	BatchWrite  int               `json:"batchWrite,omitempty" yaml:"batchWrite,omitempty" validate:"gte=0"`
	Trace       string            `json:"trace,omitempty" yaml:"trace,omitempty"`
	Filter      string            `json:"filter,omitempty" yaml:"filter,omitempty"`
	Mappings    []MappingConfig   `json:"mappings" yaml:"mappings" validate:"required,min=1,dive"`
}

// SourceConfig selects the loader of a transfer.
type SourceConfig struct {
	Type     string         `json:"type" yaml:"type" validate:"required,oneof=file gcp azure azure-devops synthetic"`
	PageSize int            `json:"pageSize,omitempty" yaml:"pageSize,omitempty" validate:"gte=0"`
	Options  map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// DestinationConfig selects the writer of a transfer.
type DestinationConfig struct {
	Type       string         `json:"type" yaml:"type" validate:"required,oneof=writer catalog blob pubsub eventhubs"`
	AutoCreate bool           `json:"autoCreate,omitempty" yaml:"autoCreate,omitempty"`
	DependsOn  []string       `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty" validate:"dive,dns_rfc1035_label"`
	Options    map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration values.
func (c *TransferConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	messages := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		message := fmt.Sprintf("%s failed on %q", fieldErr.Namespace(), fieldErr.Tag())
		if param := fieldErr.Param(); param != "" {
			message += " (" + param + ")"
		}
		messages = append(messages, message)
	}

	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
}

// NewTransferConfigsFromPath parses the file at path and returns every transfer configuration it
// contains. The file can hold multiple YAML documents; unknown fields are rejected.
func NewTransferConfigsFromPath(path string) ([]*TransferConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	configs := make([]*TransferConfig, 0)
	for {
		config := new(TransferConfig)
		err := decoder.Decode(&config)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, fmt.Errorf("%w %q: %w", ErrParsing, path, err)
		}

		// Skip empty documents.
		if config == nil {
			continue
		}

		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("%q: %w", path, err)
		}

		configs = append(configs, config)
	}

	return configs, nil
}

// NewTransferConfigsFromPaths parses every file in paths and checks that transfer names are unique.
func NewTransferConfigsFromPaths(paths []string) ([]*TransferConfig, error) {
	configs := make([]*TransferConfig, 0)
	names := make(map[string]string)
	for _, path := range paths {
		fileConfigs, err := NewTransferConfigsFromPath(path)
		if err != nil {
			return nil, err
		}

		for _, config := range fileConfigs {
			if previous, exists := names[config.Name]; exists {
				return nil, fmt.Errorf("%w: transfer %q defined in %q and %q", ErrValidation, config.Name, previous, path)
			}
			names[config.Name] = path
		}

		configs = append(configs, fileConfigs...)
	}

	return configs, nil
}
