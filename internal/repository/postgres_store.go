package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var executionColumns = []string{
	"id", "tenant_id", "project_id", "control_id", "answers", "current_node_id",
	"status", "generated_finding", "version", "created_at", "updated_at",
}

// PostgresStore is a PostgreSQL implementation of Repository.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// GetTenantByDomain retrieves a tenant by its e-mail domain.
func (s *PostgresStore) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	query, args, err := psql.Select("id", "name", "domain", "created_at", "updated_at").
		From("tenants").
		Where(squirrel.Eq{"domain": domain}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	var tenant models.Tenant
	if err := pgxscan.Get(ctx, s.db, &tenant, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, storeErr("get tenant", err)
	}
	return &tenant, nil
}

// CreateTenant inserts a tenant, assigning an ID when it has none.
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	now := s.now()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	query, args, err := psql.Insert("tenants").
		Columns("id", "name", "domain", "created_at", "updated_at").
		Values(tenant.ID, tenant.Name, tenant.Domain, tenant.CreatedAt, tenant.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return storeErr("create tenant", err)
	}
	return nil
}

// GetDefinition loads the definition bound to a control.
func (s *PostgresStore) GetDefinition(ctx context.Context, tenantID string, controlID uuid.UUID) (*workflow.Definition, error) {
	query, args, err := psql.Select("definition").
		From("workflow_definitions").
		Where(squirrel.Eq{"tenant_id": tenantID, "control_id": controlID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	var raw []byte
	if err := s.db.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, storeErr("get definition", err)
	}
	var def workflow.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, storeErr("decode definition", err)
	}
	return &def, nil
}

// PutDefinition upserts the definition bound to a control.
func (s *PostgresStore) PutDefinition(ctx context.Context, tenantID string, controlID uuid.UUID, def *workflow.Definition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshaling definition: %w", err)
	}
	now := s.now()
	query, args, err := psql.Insert("workflow_definitions").
		Columns("tenant_id", "control_id", "definition", "created_at", "updated_at").
		Values(tenantID, controlID, raw, now, now).
		Suffix("ON CONFLICT (tenant_id, control_id) DO UPDATE SET definition = EXCLUDED.definition, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return storeErr("put definition", err)
	}
	return nil
}

type executionRow struct {
	ID               uuid.UUID `db:"id"`
	TenantID         string    `db:"tenant_id"`
	ProjectID        uuid.UUID `db:"project_id"`
	ControlID        uuid.UUID `db:"control_id"`
	Answers          []byte    `db:"answers"`
	CurrentNodeID    *string   `db:"current_node_id"`
	Status           string    `db:"status"`
	GeneratedFinding *string   `db:"generated_finding"`
	Version          int       `db:"version"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r *executionRow) toModel() (*models.WorkflowExecution, error) {
	answers := workflow.Answers{}
	if len(r.Answers) > 0 {
		if err := json.Unmarshal(r.Answers, &answers); err != nil {
			return nil, fmt.Errorf("decoding answers: %w", err)
		}
	}
	return &models.WorkflowExecution{
		ID:               r.ID,
		TenantID:         r.TenantID,
		ProjectID:        r.ProjectID,
		ControlID:        r.ControlID,
		Answers:          answers,
		CurrentNodeID:    r.CurrentNodeID,
		Status:           models.ExecutionStatus(r.Status),
		GeneratedFinding: r.GeneratedFinding,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}, nil
}

func encodeAnswers(a workflow.Answers) ([]byte, error) {
	if a == nil {
		a = workflow.Answers{}
	}
	return json.Marshal(a)
}

func (s *PostgresStore) getExecution(ctx context.Context, where squirrel.Eq) (*models.WorkflowExecution, error) {
	query, args, err := psql.Select(executionColumns...).
		From("workflow_executions").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	var row executionRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, storeErr("get execution", err)
	}
	return row.toModel()
}

// GetExecution retrieves the execution for a project control.
func (s *PostgresStore) GetExecution(ctx context.Context, key models.ExecutionKey) (*models.WorkflowExecution, error) {
	return s.getExecution(ctx, squirrel.Eq{
		"tenant_id":  key.TenantID,
		"project_id": key.ProjectID,
		"control_id": key.ControlID,
	})
}

// CreateExecution inserts exec if its project control has no execution yet,
// then returns the stored row.
func (s *PostgresStore) CreateExecution(ctx context.Context, exec *models.WorkflowExecution) (*models.WorkflowExecution, error) {
	answers, err := encodeAnswers(exec.Answers)
	if err != nil {
		return nil, fmt.Errorf("marshaling answers: %w", err)
	}
	query, args, err := psql.Insert("workflow_executions").
		Columns(executionColumns...).
		Values(
			exec.ID, exec.TenantID, exec.ProjectID, exec.ControlID, answers, exec.CurrentNodeID,
			string(exec.Status), exec.GeneratedFinding, exec.Version, exec.CreatedAt, exec.UpdatedAt,
		).
		Suffix("ON CONFLICT (project_id, control_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return nil, storeErr("create execution", err)
	}
	stored, err := s.getExecution(ctx, squirrel.Eq{"project_id": exec.ProjectID, "control_id": exec.ControlID})
	if err != nil {
		return nil, err
	}
	if stored.TenantID != exec.TenantID {
		return nil, storeErrf("create execution", "project %s belongs to another tenant", exec.ProjectID)
	}
	return stored, nil
}

// UpdateExecution writes exec guarded by the expected version.
func (s *PostgresStore) UpdateExecution(ctx context.Context, exec *models.WorkflowExecution, expectedVersion int) error {
	answers, err := encodeAnswers(exec.Answers)
	if err != nil {
		return fmt.Errorf("marshaling answers: %w", err)
	}
	now := s.now()
	query, args, err := psql.Update("workflow_executions").
		Set("answers", answers).
		Set("current_node_id", exec.CurrentNodeID).
		Set("status", string(exec.Status)).
		Set("generated_finding", exec.GeneratedFinding).
		Set("version", expectedVersion+1).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": exec.ID, "tenant_id": exec.TenantID, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return storeErr("update execution", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	exec.Version = expectedVersion + 1
	exec.UpdatedAt = now
	return nil
}

// ListExecutions returns the executions of a project, optionally narrowed by status.
func (s *PostgresStore) ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]*models.WorkflowExecution, error) {
	sb := psql.Select(executionColumns...).
		From("workflow_executions").
		Where(squirrel.Eq{"tenant_id": filter.TenantID, "project_id": filter.ProjectID}).
		OrderBy("created_at")
	if filter.Status != nil {
		sb = sb.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	var rows []*executionRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, storeErr("list executions", err)
	}
	out := make([]*models.WorkflowExecution, 0, len(rows))
	for _, row := range rows {
		exec, err := row.toModel()
		if err != nil {
			return nil, storeErr("list executions", err)
		}
		out = append(out, exec)
	}
	return out, nil
}
