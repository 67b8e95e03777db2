package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"themis-assess/internal/logging"
	"themis-assess/internal/repository"
	"themis-assess/internal/workflow"
)

type definitionKey struct {
	tenantID  string
	controlID uuid.UUID
}

// DefinitionRegistry validates definitions on the way in and caches them on
// the way out.
type DefinitionRegistry struct {
	store  repository.DefinitionStore
	cache  *lru.Cache[definitionKey, *workflow.Definition]
	logger *logging.Logger
}

// NewDefinitionRegistry creates a registry caching up to size definitions.
func NewDefinitionRegistry(store repository.DefinitionStore, size int, logger *logging.Logger) (*DefinitionRegistry, error) {
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[definitionKey, *workflow.Definition](size)
	if err != nil {
		return nil, fmt.Errorf("creating definition cache: %w", err)
	}
	return &DefinitionRegistry{store: store, cache: cache, logger: logger}, nil
}

// Get returns the definition bound to a control.
func (r *DefinitionRegistry) Get(ctx context.Context, tenantID string, controlID uuid.UUID) (*workflow.Definition, error) {
	key := definitionKey{tenantID, controlID}
	if def, ok := r.cache.Get(key); ok {
		return def, nil
	}
	def, err := r.store.GetDefinition(ctx, tenantID, controlID)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, def)
	return def, nil
}

// Put validates def and binds it to a control.
func (r *DefinitionRegistry) Put(ctx context.Context, tenantID string, controlID uuid.UUID, def *workflow.Definition) error {
	if err := workflow.Validate(def); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := r.store.PutDefinition(ctx, tenantID, controlID, def); err != nil {
		return err
	}
	r.cache.Remove(definitionKey{tenantID, controlID})
	r.logger.Info("workflow definition stored", "tenant_id", tenantID, "control_id", controlID, "version", def.Version)
	return nil
}
