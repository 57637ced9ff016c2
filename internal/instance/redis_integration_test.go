//go:build integration

package instance

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dockerpkg "github.com/dyluth/thinktank/internal/docker"
)

func TestUpLookupDown(t *testing.T) {
	ctx := context.Background()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}
	defer cli.Close()

	name := "it-" + dockerpkg.GenerateRunID()[:8]
	t.Cleanup(func() { _, _ = Down(context.Background(), cli, name) })

	info, err := Up(ctx, cli, name, "")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)

	_, err = Up(ctx, cli, name, "")
	assert.ErrorContains(t, err, "already exists")

	found, err := Lookup(ctx, cli, name)
	require.NoError(t, err)
	assert.Equal(t, info.RedisPort, found.RedisPort)

	opts, err := redis.ParseURL(found.RedisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	require.Eventually(t, func() bool { return rdb.Ping(ctx).Err() == nil }, 10*time.Second, 100*time.Millisecond)

	removed, err := Down(ctx, cli, name)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	_, err = Lookup(ctx, cli, name)
	assert.ErrorContains(t, err, "not found")
}
