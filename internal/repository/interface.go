package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a record changed since it was read.
	ErrVersionConflict = errors.New("record was modified concurrently")
)

// StoreError wraps a failure of the underlying storage.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

func storeErrf(op, format string, args ...any) error {
	return &StoreError{Op: op, Err: fmt.Errorf(format, args...)}
}

// TenantStore resolves tenants for the auth middleware.
type TenantStore interface {
	// GetTenantByDomain returns ErrNotFound when no tenant owns the domain.
	GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	// CreateTenant assigns an ID when the tenant has none.
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
}

// DefinitionStore keeps one workflow definition per control.
type DefinitionStore interface {
	GetDefinition(ctx context.Context, tenantID string, controlID uuid.UUID) (*workflow.Definition, error)
	PutDefinition(ctx context.Context, tenantID string, controlID uuid.UUID, def *workflow.Definition) error
}

// ExecutionStore persists workflow executions.
type ExecutionStore interface {
	// GetExecution returns ErrNotFound when the key has no execution.
	GetExecution(ctx context.Context, key models.ExecutionKey) (*models.WorkflowExecution, error)
	// CreateExecution inserts exec unless an execution already exists for its
	// key, and returns whichever record is stored.
	CreateExecution(ctx context.Context, exec *models.WorkflowExecution) (*models.WorkflowExecution, error)
	// UpdateExecution writes exec if the stored version equals expectedVersion,
	// otherwise it returns ErrVersionConflict. On success exec.Version is bumped.
	UpdateExecution(ctx context.Context, exec *models.WorkflowExecution, expectedVersion int) error
	// ListExecutions returns the executions of a project, oldest first.
	ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]*models.WorkflowExecution, error)
}

// Repository is the full persistence surface of the service.
type Repository interface {
	TenantStore
	DefinitionStore
	ExecutionStore
	Ping(ctx context.Context) error
}
