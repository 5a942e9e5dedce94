// Package registry holds the catalog of available action kinds and validates
// action parameters against each factory's JSON schema before instantiation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/storeflow/storeflow/pkg/triggers"
	"github.com/xeipuuv/gojsonschema"
)

var ErrActionNotRegistered = errors.New("action kind not registered")

// Action executes one workflow step against the trigger event that started
// the execution.
type Action interface {
	Execute(ctx context.Context, event triggers.Event, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory describes an action kind and builds configured instances.
type ActionFactory interface {
	ID() string
	Name() string
	Description() string
	Schema() map[string]any
	Create(ctx context.Context, params map[string]any) (Action, error)
}

type Registry struct {
	logger    *slog.Logger
	factories map[string]ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		factories: make(map[string]ActionFactory),
	}
}

func (r *Registry) Register(factory ActionFactory) {
	r.factories[factory.ID()] = factory
}

// Create validates params against the factory's schema and builds the action.
func (r *Registry) Create(ctx context.Context, kind string, params map[string]any) (Action, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotRegistered, kind)
	}

	err := validateParams(factory.Schema(), params)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters for action %q: %w", kind, err)
	}

	return factory.Create(ctx, params)
}

// Factory returns the registered factory for kind, if any.
func (r *Registry) Factory(kind string) (ActionFactory, bool) {
	factory, ok := r.factories[kind]

	return factory, ok
}

// Kinds returns the registered action kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	return kinds
}

func validateParams(schema, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(params)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
