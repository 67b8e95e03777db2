package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

type projectControl struct {
	project uuid.UUID
	control uuid.UUID
}

type tenantControl struct {
	tenant  string
	control uuid.UUID
}

// MemoryStore is an in-process implementation of Repository. Records are
// copied on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	tenants     map[string]*models.Tenant
	definitions map[tenantControl]*workflow.Definition
	executions  map[projectControl]*models.WorkflowExecution
	now         func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[string]*models.Tenant),
		definitions: make(map[tenantControl]*workflow.Definition),
		executions:  make(map[projectControl]*models.WorkflowExecution),
		now:         time.Now,
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// GetTenantByDomain looks a tenant up by e-mail domain.
func (s *MemoryStore) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[domain]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// CreateTenant stores a tenant, assigning an ID when it has none.
func (s *MemoryStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tenants[tenant.Domain]; exists {
		return storeErrf("create tenant", "domain %q already registered", tenant.Domain)
	}
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	now := s.now()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	cp := *tenant
	s.tenants[tenant.Domain] = &cp
	return nil
}

// GetDefinition returns the definition bound to a control.
func (s *MemoryStore) GetDefinition(ctx context.Context, tenantID string, controlID uuid.UUID) (*workflow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[tenantControl{tenantID, controlID}]
	if !ok {
		return nil, ErrNotFound
	}
	return def, nil
}

// PutDefinition binds a definition to a control, replacing any previous one.
func (s *MemoryStore) PutDefinition(ctx context.Context, tenantID string, controlID uuid.UUID, def *workflow.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[tenantControl{tenantID, controlID}] = def
	return nil
}

// GetExecution returns a copy of the stored execution.
func (s *MemoryStore) GetExecution(ctx context.Context, key models.ExecutionKey) (*models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[projectControl{key.ProjectID, key.ControlID}]
	if !ok || exec.TenantID != key.TenantID {
		return nil, ErrNotFound
	}
	return cloneExecution(exec), nil
}

// CreateExecution inserts exec unless its key is taken.
func (s *MemoryStore) CreateExecution(ctx context.Context, exec *models.WorkflowExecution) (*models.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := projectControl{exec.ProjectID, exec.ControlID}
	if existing, ok := s.executions[k]; ok {
		if existing.TenantID != exec.TenantID {
			return nil, storeErrf("create execution", "project %s belongs to another tenant", exec.ProjectID)
		}
		return cloneExecution(existing), nil
	}
	s.executions[k] = cloneExecution(exec)
	return cloneExecution(exec), nil
}

// UpdateExecution replaces the stored execution when versions match.
func (s *MemoryStore) UpdateExecution(ctx context.Context, exec *models.WorkflowExecution, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := projectControl{exec.ProjectID, exec.ControlID}
	current, ok := s.executions[k]
	if !ok || current.TenantID != exec.TenantID {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	exec.Version = expectedVersion + 1
	exec.UpdatedAt = s.now()
	s.executions[k] = cloneExecution(exec)
	return nil
}

// ListExecutions returns a project's executions ordered by creation time.
func (s *MemoryStore) ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.WorkflowExecution
	for _, exec := range s.executions {
		if exec.TenantID != filter.TenantID || exec.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != nil && exec.Status != *filter.Status {
			continue
		}
		out = append(out, cloneExecution(exec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneExecution(e *models.WorkflowExecution) *models.WorkflowExecution {
	cp := *e
	cp.Answers = e.Answers.Clone()
	if e.CurrentNodeID != nil {
		v := *e.CurrentNodeID
		cp.CurrentNodeID = &v
	}
	if e.GeneratedFinding != nil {
		v := *e.GeneratedFinding
		cp.GeneratedFinding = &v
	}
	return &cp
}
