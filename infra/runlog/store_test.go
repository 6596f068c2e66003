package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corerunlog "github.com/kilianp07/cpflow/core/runlog"
)

func testStore(t *testing.T, store corerunlog.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	recs := []corerunlog.Record{
		{Timestamp: now, Source: corerunlog.SourceCentralSystem, Message: "connection established with CP_1"},
		{Timestamp: now.Add(time.Second), Source: corerunlog.SourceChargePoint, Message: "send: [2,...]"},
		{Timestamp: now.Add(2 * time.Second), Source: corerunlog.SourcePipelet, Message: `{"event":"Heartbeat"}`},
	}
	for _, r := range recs {
		require.NoError(t, store.Append(ctx, r))
	}

	all, err := store.Query(ctx, corerunlog.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	cs, err := store.Query(ctx, corerunlog.Query{Source: corerunlog.SourceCentralSystem})
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "connection established with CP_1", cs[0].Message)

	late, err := store.Query(ctx, corerunlog.Query{Start: now.Add(1500 * time.Millisecond)})
	require.NoError(t, err)
	assert.Len(t, late, 1)

	limited, err := store.Query(ctx, corerunlog.Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	assert.NoError(t, store.Close())
}

func TestJSONLStore(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "run.log"))
	require.NoError(t, err)
	testStore(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "run.db"))
	require.NoError(t, err)
	testStore(t, store)
}

func TestRecorderSwallowsErrors(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "run.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	rec := corerunlog.NewRecorder(store, nil)
	// Store is closed: the append fails internally but must not panic or
	// surface to the caller.
	rec.Record(context.Background(), corerunlog.SourceCentralSystem, "after close")
}
