// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
)

var (
	// ErrModelNotFound is returned when no model is defined with the requested id.
	ErrModelNotFound = errors.New("model not found")
	// ErrModelExists is returned when defining a model with an id already in use.
	ErrModelExists = errors.New("model already exists")
	// ErrRepoLess is returned when requesting the repository of a model defined without one.
	ErrRepoLess = errors.New("repo-less model")
)

// Description identifies a model and tells how it must be provisioned.
type Description struct {
	ID string `json:"id"`
	// Provider is the system holding the model data.
	Provider string `json:"provider"`
	// Domain is the business domain the model belongs to.
	Domain string `json:"domain"`
	// ReadOnly models are never altered at runtime.
	ReadOnly bool `json:"readOnly,omitempty"`
	// AutoCreate models need no provisioning before usage.
	AutoCreate bool `json:"autoCreate,omitempty"`
	// DependsOn lists the ids of the models to install before this one.
	DependsOn []string `json:"dependsOn,omitempty"`
}

// OperationFunc is an install or uninstall hook; it reports success and a human readable log.
type OperationFunc func(ctx context.Context) (bool, []string, error)

// Definition is a model description with its optional lifecycle hooks.
type Definition struct {
	Description

	OnInstall   OperationFunc
	OnUninstall OperationFunc
}

// Repo is the runtime handle of a model, able to describe it.
type Repo interface {
	Model() Definition
}

// Spec registers a model: either Definition or NewRepo must be set. NewRepo is called at most once,
// the first time the repository is needed.
type Spec struct {
	Tags       []string
	Definition *Definition
	NewRepo    func() (Repo, error)
}

// Registry holds the defined models.
type Registry struct {
	lock  sync.Mutex
	specs map[string]Spec
	repos map[string]Repo
}

// New returns a Registry holding specs, keyed by model id.
func New(specs map[string]Spec) *Registry {
	registry := &Registry{
		specs: make(map[string]Spec, len(specs)),
		repos: make(map[string]Repo),
	}
	for id, spec := range specs {
		registry.specs[id] = spec
	}

	return registry
}

// Define adds a model to the registry.
func (r *Registry) Define(id string, spec Spec) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, exists := r.specs[id]; exists {
		return fmt.Errorf("%w: %s", ErrModelExists, id)
	}

	r.specs[id] = spec
	return nil
}

// Model returns the definition of the model id, from its spec or from its repository.
func (r *Registry) Model(id string) (Definition, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	spec, ok := r.specs[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}

	if spec.Definition != nil {
		return *spec.Definition, nil
	}

	repo, err := r.repo(id, spec)
	if err != nil {
		return Definition{}, err
	}

	return repo.Model(), nil
}

// Repo returns the repository of the model id, creating it on first use.
func (r *Registry) Repo(id string) (Repo, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	spec, ok := r.specs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}

	return r.repo(id, spec)
}

// repo must be called with the lock held.
func (r *Registry) repo(id string, spec Spec) (Repo, error) {
	if repo, ok := r.repos[id]; ok {
		return repo, nil
	}

	if spec.NewRepo == nil {
		return nil, fmt.Errorf("%w: %s", ErrRepoLess, id)
	}

	repo, err := spec.NewRepo()
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", id, err)
	}

	r.repos[id] = repo
	return repo, nil
}

// ModelsByTag returns the sorted ids of the models tagged with tag.
func (r *Registry) ModelsByTag(tag string) []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	ids := lo.Keys(lo.PickBy(r.specs, func(_ string, spec Spec) bool {
		return slices.Contains(spec.Tags, tag)
	}))
	slices.Sort(ids)
	return ids
}

// Tags returns every tag used by the defined models, sorted.
func (r *Registry) Tags() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	tags := lo.Uniq(lo.FlatMap(lo.Values(r.specs), func(spec Spec, _ int) []string {
		return spec.Tags
	}))
	slices.Sort(tags)
	return tags
}
