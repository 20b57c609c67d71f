package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/wellness/internal/config"
	"example.com/wellness/internal/watermark"
)

func TestNewWatermarkStoreFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_sync.txt")
	store, closeFn, err := NewWatermarkStore(config.Config{WatermarkBackend: config.WatermarkFile, WatermarkPath: path})
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	fileStore, ok := store.(*watermark.FileStore)
	require.True(t, ok)
	require.Equal(t, path, fileStore.Path())
}

func TestNewWatermarkStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	store, closeFn, err := NewWatermarkStore(config.Config{
		WatermarkBackend: config.WatermarkRedis,
		RedisAddress:     mr.Addr(),
		RedisKey:         "wellness:test",
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	ctx := context.Background()
	ts := time.Date(2024, 6, 2, 6, 30, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, ts))
	stored, err := mr.Get("wellness:test")
	require.NoError(t, err)
	require.Equal(t, "2024-06-02 06:30:00", stored)

	loaded, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ts.Equal(loaded))
}

func TestNewWatermarkStoreUnknownBackend(t *testing.T) {
	_, _, err := NewWatermarkStore(config.Config{WatermarkBackend: "s3"})
	require.ErrorContains(t, err, `unknown watermark backend "s3"`)
}

func TestConnectPostgresGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := ConnectPostgres(ctx, "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", 500*time.Millisecond, zap.NewNop())
	require.ErrorContains(t, err, "connect to postgres")
}
