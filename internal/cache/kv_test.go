package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_SetGet(t *testing.T) {
	ctx := context.TODO()
	mr := miniredis.RunT(t)
	r := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")

	type entry struct {
		Name  string
		Count int
	}

	var got entry
	assert.ErrorIs(t, r.Get(ctx, "k", &got), ErrMiss)

	require.NoError(t, r.Set(ctx, "k", entry{Name: "pro", Count: 3}, time.Minute))
	require.NoError(t, r.Get(ctx, "k", &got))
	assert.Equal(t, entry{Name: "pro", Count: 3}, got)
	assert.True(t, mr.Exists("test:k"))

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, r.Get(ctx, "k", &got), ErrMiss)

	require.NoError(t, r.Set(ctx, "k", entry{}, time.Minute))
	require.NoError(t, r.Delete(ctx, "k"))
	assert.ErrorIs(t, r.Get(ctx, "k", &got), ErrMiss)
}
