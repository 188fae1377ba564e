package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cuemby/modelhost/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	d := types.NewDeployment("dep-1", "MyModel", "user-1")
	require.NoError(t, store.CreateDeployment(ctx, d))

	got, err := store.GetDeployment(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, "MyModel", got.Name)
	assert.Equal(t, types.StatusCreating, got.Status)
	assert.Empty(t, got.BucketName)

	err = store.CreateDeployment(ctx, d)
	assert.ErrorIs(t, err, types.ErrAlreadyExists)

	_, err = store.GetDeployment(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBoltStore_UpdateFieldsIsPartial(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.CreateDeployment(ctx, types.NewDeployment("dep-1", "MyModel", "user-1")))

	updated, err := store.UpdateDeploymentFields(ctx, "dep-1", types.ArtifactUpdate("models", "model.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, "models", updated.BucketName)
	assert.Equal(t, "model.tar.gz", updated.BucketObjectKey)

	_, err = store.UpdateDeploymentFields(ctx, "dep-1", types.ImageUpdate("model.tar.gz-1", "repo"))
	require.NoError(t, err)

	got, err := store.GetDeployment(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, "models", got.BucketName, "earlier fields survive later updates")
	assert.Equal(t, "model.tar.gz-1", got.ImageTag)
	assert.Equal(t, "MyModel", got.Name)

	_, err = store.UpdateDeploymentFields(ctx, "missing", types.StatusUpdate(types.StatusFailed))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBoltStore_TerminalStatusIsFinal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.CreateDeployment(ctx, types.NewDeployment("dep-1", "MyModel", "user-1")))

	_, err := store.UpdateDeploymentFields(ctx, "dep-1", types.StatusUpdate(types.StatusInService))
	require.NoError(t, err)

	_, err = store.UpdateDeploymentFields(ctx, "dep-1", types.FailedUpdate("late failure"))
	assert.ErrorIs(t, err, types.ErrTerminalStatus)

	got, err := store.GetDeployment(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInService, got.Status)
	assert.Empty(t, got.FailureReason)
}

func TestBoltStore_ConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.CreateDeployment(ctx, types.NewDeployment("dep-1", "MyModel", "user-1")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.UpdateDeploymentFields(ctx, "dep-1", types.EndpointUpdate(fmt.Sprintf("e-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	_, err := store.UpdateDeploymentFields(ctx, "dep-1", types.ArtifactUpdate("b", "k"))
	require.NoError(t, err)
	wg.Wait()

	got, err := store.GetDeployment(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, "b", got.BucketName, "no concurrent update is lost")
	assert.NotEmpty(t, got.EndpointName)
}

func TestBoltStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateDeployment(ctx, types.NewDeployment("a", "A", "u1")))
	require.NoError(t, store.CreateDeployment(ctx, types.NewDeployment("b", "B", "u2")))
	require.NoError(t, store.CreateDeployment(ctx, types.NewDeployment("c", "C", "u1")))

	all, err := store.ListDeployments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := store.ListDeploymentsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	require.NoError(t, store.DeleteDeployment(ctx, "a"))
	assert.ErrorIs(t, store.DeleteDeployment(ctx, "a"), types.ErrNotFound)

	all, err = store.ListDeployments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.NoError(t, store.Ping(ctx))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"})
	assert.Error(t, err)

	store, err := Open(context.Background(), Config{Driver: DriverBolt, DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
