// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package config

// MappingConfig holds the mapping rules for a single source data type.
type MappingConfig struct {
	Type       string   `json:"type" yaml:"type" validate:"required"`
	APIVersion string   `json:"apiVersion" yaml:"apiVersion" validate:"required"`
	ItemFamily string   `json:"itemFamily" yaml:"itemFamily" validate:"required"`
	Mappings   Mappings `json:"mappings" yaml:"mappings"`
}

// Mappings holds the identifier and specification templates for mapping rules.
type Mappings struct {
	Identifier string            `json:"identifier" yaml:"identifier" validate:"required"`
	Spec       map[string]string `json:"spec" yaml:"spec"`
}
