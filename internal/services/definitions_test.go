package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"themis-assess/internal/logging"
	"themis-assess/internal/repository"
	"themis-assess/internal/workflow"
)

type countingStore struct {
	*repository.MemoryStore
	gets int
}

func (s *countingStore) GetDefinition(ctx context.Context, tenantID string, controlID uuid.UUID) (*workflow.Definition, error) {
	s.gets++
	return s.MemoryStore.GetDefinition(ctx, tenantID, controlID)
}

func TestDefinitionRegistry_CachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStore: repository.NewMemoryStore()}
	registry, err := NewDefinitionRegistry(store, 4, logging.NewNop())
	require.NoError(t, err)
	controlID := uuid.New()

	require.NoError(t, registry.Put(ctx, "t-1", controlID, passFail()))
	_, err = registry.Get(ctx, "t-1", controlID)
	require.NoError(t, err)
	_, err = registry.Get(ctx, "t-1", controlID)
	require.NoError(t, err)
	assert.Equal(t, 1, store.gets)

	updated := passFail()
	updated.Version = "2"
	require.NoError(t, registry.Put(ctx, "t-1", controlID, updated))
	def, err := registry.Get(ctx, "t-1", controlID)
	require.NoError(t, err)
	assert.Equal(t, "2", def.Version)
	assert.Equal(t, 2, store.gets)

	_, err = registry.Get(ctx, "t-2", controlID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDefinitionRegistry_RejectsInvalid(t *testing.T) {
	registry, err := NewDefinitionRegistry(repository.NewMemoryStore(), 4, logging.NewNop())
	require.NoError(t, err)

	broken := workflow.NewDefinition("1", "missing",
		workflow.NewTerminalNode("t", workflow.Finding{Type: workflow.FindingPass, Title: "ok"}))
	err = registry.Put(context.Background(), "t-1", uuid.New(), broken)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestKeyLock_ReleasesEntries(t *testing.T) {
	locks := newKeyLock[string]()
	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	assert.Equal(t, 2, locks.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, locks.size())
}
