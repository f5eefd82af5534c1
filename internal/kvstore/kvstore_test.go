package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	return &Store{client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
}

func TestSetGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestHSetHGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.HSet(ctx, "h", "f", "v"))
	v, err := s.HGet(ctx, "h", "f")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestLPushBRPop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.LPush(ctx, "q", "item1"))
	res, err := s.BRPop(ctx, time.Second, "q")
	require.NoError(t, err)
	require.Equal(t, []string{"q", "item1"}, res)
}

func TestPipelineZAddMultipleKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	err := s.PipelineZAdd(ctx, map[string]ZAddMembers{
		"zset:a": {"member1": 10},
		"zset:b": {"member2": 20},
	})
	require.NoError(t, err)

	members, err := s.client.ZRangeWithScores(ctx, "zset:a", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "member1", members[0].Member)
	require.Equal(t, float64(10), members[0].Score)
}

func TestPipelineZAddEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PipelineZAdd(context.Background(), nil))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", "v", 0))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, redis.Nil)
}
