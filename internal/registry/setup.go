// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dominikbraun/graph"

	"github.com/mia-platform/transfer/internal/logger"
)

const (
	loggerName = "transfer:registry"
)

// ErrDependencyCycle is returned when models depend on each other.
var ErrDependencyCycle = errors.New("models dependency cycle")

// ModelInfo is a model description with its state after a setup operation.
type ModelInfo struct {
	Description

	Exists bool `json:"exists"`
}

// Change reports the outcome of a setup operation on a single model.
type Change struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
}

// SetupResult collects the outcome of Install or Uninstall.
type SetupResult struct {
	Models  []ModelInfo `json:"models"`
	Log     []string    `json:"log"`
	Changes []Change    `json:"changes"`
}

// Success reports whether every change succeeded.
func (r SetupResult) Success() bool {
	for _, change := range r.Changes {
		if !change.Success {
			return false
		}
	}

	return true
}

// Install runs the install hook of every model tagged with tag, dependencies first. Models without
// a hook are skipped and reported as existing only when they are auto created.
func Install(ctx context.Context, registry *Registry, tag string) (SetupResult, error) {
	log := logger.FromContext(ctx).WithName(loggerName)

	definitions, err := sortedDefinitions(registry, tag)
	if err != nil {
		return SetupResult{}, err
	}

	result := newSetupResult(len(definitions))
	for _, definition := range definitions {
		log.Debug("installing model", "model", definition.ID, "tag", tag)

		if definition.OnInstall == nil {
			result.Log = append(result.Log, fmt.Sprintf(" > skipped `%s`, no install hook", definition.ID))
			result.Changes = append(result.Changes, Change{ID: definition.ID, Success: definition.AutoCreate, Skipped: true})
			result.Models = append(result.Models, ModelInfo{Description: definition.Description, Exists: definition.AutoCreate})
			continue
		}

		success, operationLog, err := definition.OnInstall(ctx)
		if err != nil {
			return result, fmt.Errorf("install %s: %w", definition.ID, err)
		}

		result.Log = append(result.Log, operationLog...)
		result.Changes = append(result.Changes, Change{ID: definition.ID, Success: success})
		result.Models = append(result.Models, ModelInfo{Description: definition.Description, Exists: success})
	}

	return result, nil
}

// Uninstall runs the uninstall hook of every model tagged with tag, dependents first. Models without
// a hook are skipped, reported as failed and still existing.
func Uninstall(ctx context.Context, registry *Registry, tag string) (SetupResult, error) {
	log := logger.FromContext(ctx).WithName(loggerName)

	definitions, err := sortedDefinitions(registry, tag)
	if err != nil {
		return SetupResult{}, err
	}
	slices.Reverse(definitions)

	result := newSetupResult(len(definitions))
	for _, definition := range definitions {
		log.Debug("uninstalling model", "model", definition.ID, "tag", tag)

		if definition.OnUninstall == nil {
			result.Log = append(result.Log, fmt.Sprintf(" > skipped `%s`, no uninstall hook", definition.ID))
			result.Changes = append(result.Changes, Change{ID: definition.ID, Success: false, Skipped: true})
			result.Models = append(result.Models, ModelInfo{Description: definition.Description, Exists: true})
			continue
		}

		deleted, operationLog, err := definition.OnUninstall(ctx)
		if err != nil {
			return result, fmt.Errorf("uninstall %s: %w", definition.ID, err)
		}

		result.Log = append(result.Log, operationLog...)
		result.Changes = append(result.Changes, Change{ID: definition.ID, Success: deleted})
		result.Models = append(result.Models, ModelInfo{Description: definition.Description, Exists: !deleted})
	}

	return result, nil
}

func newSetupResult(size int) SetupResult {
	return SetupResult{
		Models:  make([]ModelInfo, 0, size),
		Log:     make([]string, 0),
		Changes: make([]Change, 0, size),
	}
}

// sortedDefinitions returns the definitions of the models tagged with tag so that every model comes
// after the models it depends on. Dependencies outside of the tag are ignored; ties keep id order.
func sortedDefinitions(registry *Registry, tag string) ([]Definition, error) {
	ids := registry.ModelsByTag(tag)
	definitions := make(map[string]Definition, len(ids))
	dependencies := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, id := range ids {
		definition, err := registry.Model(id)
		if err != nil {
			return nil, err
		}
		definitions[id] = definition

		if err := dependencies.AddVertex(id); err != nil {
			return nil, err
		}
	}

	for _, id := range ids {
		for _, dependency := range definitions[id].DependsOn {
			if _, ok := definitions[dependency]; !ok {
				if _, err := registry.Model(dependency); err != nil {
					return nil, fmt.Errorf("model %s depends on %s: %w", id, dependency, err)
				}
				continue
			}

			err := dependencies.AddEdge(dependency, id)
			switch {
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, fmt.Errorf("%w: %s depends on %s", ErrDependencyCycle, id, dependency)
			case err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists):
				return nil, err
			}
		}
	}

	order, err := graph.StableTopologicalSort(dependencies, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, err
	}

	sorted := make([]Definition, 0, len(order))
	for _, id := range order {
		sorted = append(sorted, definitions[id])
	}

	return sorted, nil
}
