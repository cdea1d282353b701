// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package mapper

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

const (
	identifierTemplateName = "identifier"
	maxIdentifierLength    = 253
)

var (
	// ErrInvalidIdentifier is returned when the rendered identifier is not a valid DNS-1123 subdomain.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	identifierRegex = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$`)
)

// Mapper will define how to map input data to an output structure defined by its Templates.
// Identifier is a special fields used to uniquely identify an entity and is required.
// All the string values will be used as go string templates to generate its value from the input data.
type Mapper interface {
	// ApplyTemplates applies the mapper templates to the given input data and returns the mapped output.
	ApplyTemplates(input map[string]any) (output MappedData, err error)
	// ApplyIdentifierTemplate renders only the identifier; deletions carry just the key values.
	ApplyIdentifierTemplate(input map[string]any) (identifier string, err error)
}

var _ Mapper = &internalMapper{}

// internalMapper is the default implementation of the Mapper interface.
type internalMapper struct {
	idTemplate   *template.Template
	specTemplate *template.Template
	specKeys     []string
}

// MappedData contains the result of applying a Mapper to some input data.
type MappedData struct {
	Identifier string
	Spec       map[string]any
}

// New creates a new Mapper with the given identifier template and a specTemplates map.
// All the templates are parsed together so a ParsingError reports every broken one.
func New(identifierTemplate string, specTemplates map[string]string) (Mapper, error) {
	var parsingErrs error
	tmpl := newTemplate("main")
	idTemplate, err := tmpl.New(identifierTemplateName).Parse(identifierTemplate)
	if err != nil {
		parsingErrs = err
	}

	specTemplate := newTemplate("spec")
	specKeys := slices.Sorted(maps.Keys(specTemplates))
	for _, key := range specKeys {
		if _, err := specTemplate.New(key).Parse(specTemplates[key]); err != nil {
			parsingErrs = errors.Join(parsingErrs, err)
		}
	}

	if parsingErrs != nil {
		return nil, NewParsingError(parsingErrs)
	}

	return &internalMapper{
		idTemplate:   idTemplate,
		specTemplate: specTemplate,
		specKeys:     specKeys,
	}, nil
}

// ApplyTemplates applies the mapper templates to the given input data and returns the mapped output.
// Every rendered spec value is decoded as YAML so numbers, booleans, lists and objects keep their
// type; values that cannot be decoded are kept as plain strings.
func (m *internalMapper) ApplyTemplates(input map[string]any) (MappedData, error) {
	identifier, err := m.ApplyIdentifierTemplate(input)
	if err != nil {
		return MappedData{}, err
	}

	spec := make(map[string]any, len(m.specKeys))
	for _, key := range m.specKeys {
		rendered, err := render(m.specTemplate.Lookup(key), input)
		if err != nil {
			return MappedData{}, err
		}

		spec[key] = decodeValue(rendered)
	}

	return MappedData{
		Identifier: identifier,
		Spec:       spec,
	}, nil
}

// ApplyIdentifierTemplate renders and validates the identifier template alone.
func (m *internalMapper) ApplyIdentifierTemplate(input map[string]any) (string, error) {
	identifier, err := render(m.idTemplate, input)
	if err != nil {
		return "", err
	}

	if err := validateIdentifier(identifier); err != nil {
		return "", template.ExecError{Name: identifierTemplateName, Err: err}
	}

	return identifier, nil
}

// newTemplate returns an empty template that fails on missing keys and knows every template function.
func newTemplate(name string) *template.Template {
	return template.New(name).
		Option("missingkey=error").
		Funcs(templateFunctions())
}

func render(tmpl *template.Template, input map[string]any) (string, error) {
	builder := new(strings.Builder)
	if err := tmpl.Execute(builder, input); err != nil {
		return "", err
	}

	return builder.String(), nil
}

func validateIdentifier(identifier string) error {
	if len(identifier) == 0 || len(identifier) > maxIdentifierLength || !identifierRegex.MatchString(identifier) {
		return fmt.Errorf("%w: %q must be a lowercase RFC 1123 subdomain of at most %d characters", ErrInvalidIdentifier, identifier, maxIdentifierLength)
	}

	return nil
}

func decodeValue(rendered string) any {
	if strings.TrimSpace(rendered) == "" {
		return rendered
	}

	var value any
	if err := yaml.Unmarshal([]byte(rendered), &value); err != nil || value == nil {
		return rendered
	}

	return value
}
