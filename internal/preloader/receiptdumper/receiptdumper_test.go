package receiptdumper

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/chainindex/txprocessor/internal/config"
	"github.com/chainindex/txprocessor/internal/ethtypes"
	"github.com/chainindex/txprocessor/internal/kvstore"
)

func newStore(t *testing.T) (*kvstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return kvstore.NewForTest(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestProcessReceiptWritesUnderBlockHash(t *testing.T) {
	store, _ := newStore(t)
	hook := New(store, config.RedisDataRetentionConfig{})
	ctx := context.Background()
	receipt := &ethtypes.Receipt{Raw: []byte(`{"blockNumber":"0x10"}`), BlockNumber: 16}
	txHash := common.HexToHash("0xabc")

	require.NoError(t, hook.ProcessReceipt(ctx, txHash, receipt, "mainnet"))

	v, err := store.HGet(ctx, BlockTxHTableKey("mainnet", 16), txHash.Hex())
	require.NoError(t, err)
	require.JSONEq(t, `{"blockNumber":"0x10"}`, v)
}

func TestProcessReceiptOverwritesOnReplay(t *testing.T) {
	store, _ := newStore(t)
	hook := New(store, config.RedisDataRetentionConfig{})
	ctx := context.Background()
	txHash := common.HexToHash("0xabc")

	require.NoError(t, hook.ProcessReceipt(ctx, txHash, &ethtypes.Receipt{Raw: []byte(`{"v":1}`), BlockNumber: 5}, "ns"))
	require.NoError(t, hook.ProcessReceipt(ctx, txHash, &ethtypes.Receipt{Raw: []byte(`{"v":2}`), BlockNumber: 5}, "ns"))

	v, err := store.HGet(ctx, BlockTxHTableKey("ns", 5), txHash.Hex())
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, v)
}

func TestProcessReceiptAppliesTTL(t *testing.T) {
	store, mr := newStore(t)
	hook := New(store, config.RedisDataRetentionConfig{TTLSeconds: 60})
	ctx := context.Background()
	receipt := &ethtypes.Receipt{Raw: []byte(`{"v":1}`), BlockNumber: 7}

	require.NoError(t, hook.ProcessReceipt(ctx, common.HexToHash("0xabc"), receipt, "ns"))

	ttl := mr.TTL(BlockTxHTableKey("ns", 7))
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, 60*time.Second)
}

func TestProcessReceiptPrunesOldestBlocksBeyondMaxBlocks(t *testing.T) {
	store, _ := newStore(t)
	hook := New(store, config.RedisDataRetentionConfig{MaxBlocks: 2})
	ctx := context.Background()

	for i, blockNumber := range []uint64{1, 2, 3} {
		txHash := common.BigToHash(new(big.Int).SetInt64(int64(i)))
		require.NoError(t, hook.ProcessReceipt(ctx, txHash, &ethtypes.Receipt{Raw: []byte(`{}`), BlockNumber: blockNumber}, "ns"))
	}

	_, err := store.HGet(ctx, BlockTxHTableKey("ns", 1), common.BigToHash(new(big.Int).SetInt64(0)).Hex())
	require.ErrorIs(t, err, redis.Nil)

	v, err := store.HGet(ctx, BlockTxHTableKey("ns", 3), common.BigToHash(new(big.Int).SetInt64(2)).Hex())
	require.NoError(t, err)
	require.JSONEq(t, `{}`, v)
}
