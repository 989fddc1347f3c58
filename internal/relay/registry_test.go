package relay

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	ctx := context.Background()
	reg, err := OpenRegistry(ctx, filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestRegistryUpsertAndGet(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	d := model.DeviceRecord{
		DeviceID: "dev1", VaultID: "vault1", DeviceName: "laptop",
		DeviceToken: "tok1", FirstSeen: now, LastSeen: now,
	}
	require.NoError(t, reg.Upsert(ctx, d))

	got, err := reg.Get(ctx, "dev1", "vault1")
	require.NoError(t, err)
	require.Equal(t, "laptop", got.DeviceName)
	require.Equal(t, "tok1", got.DeviceToken)
}

func TestRegistryGetMissingReturnsErrNotFound(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Get(context.Background(), "nope", "vault1")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestRegistryDeviceCount(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, reg.Upsert(ctx, model.DeviceRecord{DeviceID: "a", VaultID: "v1", DeviceName: "a", FirstSeen: now, LastSeen: now}))
	require.NoError(t, reg.Upsert(ctx, model.DeviceRecord{DeviceID: "b", VaultID: "v1", DeviceName: "b", FirstSeen: now, LastSeen: now}))
	require.NoError(t, reg.Upsert(ctx, model.DeviceRecord{DeviceID: "c", VaultID: "v2", DeviceName: "c", FirstSeen: now, LastSeen: now}))

	n, err := reg.DeviceCount(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRegistryUpsertUpdatesExistingRow(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, reg.Upsert(ctx, model.DeviceRecord{
		DeviceID: "dev1", VaultID: "v1", DeviceName: "old-name", DeviceToken: "t1", FirstSeen: now, LastSeen: now,
	}))
	later := now.Add(time.Hour)
	require.NoError(t, reg.Upsert(ctx, model.DeviceRecord{
		DeviceID: "dev1", VaultID: "v1", DeviceName: "new-name", DeviceToken: "t2", FirstSeen: now, LastSeen: later,
	}))

	got, err := reg.Get(ctx, "dev1", "v1")
	require.NoError(t, err)
	require.Equal(t, "new-name", got.DeviceName)
	require.Equal(t, "t2", got.DeviceToken)

	n, err := reg.DeviceCount(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRegistryTouchLastSeen(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, reg.Upsert(ctx, model.DeviceRecord{DeviceID: "dev1", VaultID: "v1", DeviceName: "a", FirstSeen: now, LastSeen: now}))

	later := now.Add(time.Minute)
	require.NoError(t, reg.TouchLastSeen(ctx, "dev1", "v1", later))

	got, err := reg.Get(ctx, "dev1", "v1")
	require.NoError(t, err)
	require.WithinDuration(t, later, got.LastSeen, time.Millisecond)
}

func TestRegistryDeviceIDsForVault(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, reg.Upsert(ctx, model.DeviceRecord{DeviceID: "a", VaultID: "v1", DeviceName: "a", FirstSeen: now, LastSeen: now}))
	require.NoError(t, reg.Upsert(ctx, model.DeviceRecord{DeviceID: "b", VaultID: "v1", DeviceName: "b", FirstSeen: now, LastSeen: now}))

	ids, err := reg.DeviceIDsForVault(ctx, "v1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}
