// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package mapper

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/spf13/cast"
)

// Filter decides if an input record must be kept.
type Filter interface {
	// Match reports if input satisfies the filter.
	Match(input map[string]any) (bool, error)
}

var _ Filter = &templateFilter{}

// templateFilter renders a template and interprets its trimmed output as a boolean.
type templateFilter struct {
	tmpl *template.Template
}

// NewFilter parses filterTemplate into a Filter. The rendered output must be convertible to a
// boolean ("true", "1", "false", "0", ...); an empty output rejects the record.
func NewFilter(filterTemplate string) (Filter, error) {
	tmpl, err := newTemplate("filter").Parse(filterTemplate)
	if err != nil {
		return nil, NewParsingError(err)
	}

	return &templateFilter{tmpl: tmpl}, nil
}

// Match implements Filter.
func (f *templateFilter) Match(input map[string]any) (bool, error) {
	rendered, err := render(f.tmpl, input)
	if err != nil {
		return false, err
	}

	rendered = strings.TrimSpace(rendered)
	if rendered == "" {
		return false, nil
	}

	keep, err := cast.ToBoolE(rendered)
	if err != nil {
		return false, fmt.Errorf("filter output %q is not a boolean: %w", rendered, err)
	}

	return keep, nil
}
