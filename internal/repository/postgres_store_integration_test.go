package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"themis-assess/internal/workflow"
	"themis-assess/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	store := NewPostgresStore(pool)
	require.NoError(t, store.Ping(ctx))

	tenant := &models.Tenant{Name: "Acme Audit", Domain: "acme.test"}
	require.NoError(t, store.CreateTenant(ctx, tenant))

	t.Run("tenant lookup", func(t *testing.T) {
		got, err := store.GetTenantByDomain(ctx, "acme.test")
		require.NoError(t, err)
		assert.Equal(t, tenant.ID, got.ID)
		assert.Equal(t, "Acme Audit", got.Name)

		_, err = store.GetTenantByDomain(ctx, "nobody.test")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("definition upsert", func(t *testing.T) {
		controlID := uuid.New()
		def := workflow.NewDefinition("1", "q1",
			workflow.NewSelectNode("q1", "Is MFA enforced?",
				workflow.Option{Value: "yes", Label: "Yes", NextNodeID: "t_pass"},
				workflow.Option{Value: "no", Label: "No", NextNodeID: "t_fail"}),
			workflow.NewTerminalNode("t_pass", workflow.Finding{Type: workflow.FindingPass, Title: "Enforced"}),
			workflow.NewTerminalNode("t_fail", workflow.Finding{Type: workflow.FindingFail, Title: "Not enforced"}),
		)
		_, err := store.GetDefinition(ctx, tenant.ID, controlID)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, store.PutDefinition(ctx, tenant.ID, controlID, def))
		def.Version = "2"
		require.NoError(t, store.PutDefinition(ctx, tenant.ID, controlID, def))

		got, err := store.GetDefinition(ctx, tenant.ID, controlID)
		require.NoError(t, err)
		assert.Equal(t, "2", got.Version)
		assert.Equal(t, "q1", got.RootNodeID)
		assert.Len(t, got.Nodes, 3)
	})

	t.Run("execution lifecycle", func(t *testing.T) {
		key := models.ExecutionKey{TenantID: tenant.ID, ProjectID: uuid.New(), ControlID: uuid.New()}
		_, err := store.GetExecution(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)

		created, err := store.CreateExecution(ctx, models.NewWorkflowExecution(key, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionNotStarted, created.Status)
		assert.Empty(t, created.Answers)

		again, err := store.CreateExecution(ctx, models.NewWorkflowExecution(key, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, created.ID, again.ID, "second create returns the existing row")

		next := "q2"
		created.Answers["q1"] = workflow.Group(map[string]string{"policy": "yes"})
		created.CurrentNodeID = &next
		created.Status = models.ExecutionInProgress
		require.NoError(t, store.UpdateExecution(ctx, created, 1))
		assert.Equal(t, 2, created.Version)

		assert.ErrorIs(t, store.UpdateExecution(ctx, created, 1), ErrVersionConflict)

		got, err := store.GetExecution(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, "q2", *got.CurrentNodeID)
		v, _ := got.Answers["q1"].Field("policy")
		assert.Equal(t, "yes", v)

		status := models.ExecutionInProgress
		list, err := store.ListExecutions(ctx, models.ExecutionFilter{TenantID: tenant.ID, ProjectID: key.ProjectID, Status: &status})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, created.ID, list[0].ID)
	})

	t.Run("concurrent creates yield one row", func(t *testing.T) {
		key := models.ExecutionKey{TenantID: tenant.ID, ProjectID: uuid.New(), ControlID: uuid.New()}
		ids := make([]uuid.UUID, 8)
		var wg sync.WaitGroup
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				exec, err := store.CreateExecution(ctx, models.NewWorkflowExecution(key, time.Now()))
				if assert.NoError(t, err) {
					ids[i] = exec.ID
				}
			}(i)
		}
		wg.Wait()
		for _, id := range ids[1:] {
			assert.Equal(t, ids[0], id)
		}
	})
}
