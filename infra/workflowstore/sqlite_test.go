package workflowstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/cpflow/core/workflow"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "workflows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLookup(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	def, err := store.Save(ctx, workflow.Definition{Name: "boot", Event: "BootNotification", Graph: "{}"})
	require.NoError(t, err)
	assert.NotZero(t, def.ID)

	got, err := store.LookupByEvent(ctx, "BootNotification")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "boot", got.Name)
	assert.Equal(t, "{}", got.Graph)
}

func TestLookupUnboundEvent(t *testing.T) {
	store := newStore(t)
	got, err := store.LookupByEvent(context.Background(), "Heartbeat")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveReplacesEventBinding(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, workflow.Definition{Name: "v1", Event: "Heartbeat", Graph: `{"a":1}`})
	require.NoError(t, err)
	_, err = store.Save(ctx, workflow.Definition{Name: "v2", Event: "Heartbeat", Graph: `{"a":2}`})
	require.NoError(t, err)

	got, err := store.LookupByEvent(ctx, "Heartbeat")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.Name)
	assert.Equal(t, `{"a":2}`, got.Graph)

	defs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, workflow.Definition{Name: "auth", Event: "Authorize", Graph: "{}"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "Authorize"))

	got, err := store.LookupByEvent(ctx, "Authorize")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, store.Delete(ctx, "Authorize"))
}
