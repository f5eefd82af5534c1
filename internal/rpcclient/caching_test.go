package rpcclient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls int
	raw   json.RawMessage
}

func (f *countingFetcher) GetTransactionReceipt(ctx context.Context, txHash string) (json.RawMessage, error) {
	f.calls++
	return f.raw, nil
}

func (f *countingFetcher) GetBlockNumber(ctx context.Context) (uint64, error) {
	return 0, nil
}

func TestCachingClientCachesNonNullResult(t *testing.T) {
	inner := &countingFetcher{raw: json.RawMessage(`{"blockNumber":"0x1"}`)}
	c, err := NewCachingClient(inner, 10, nil)
	require.NoError(t, err)

	_, err = c.GetTransactionReceipt(context.Background(), "0xabc")
	require.NoError(t, err)
	_, err = c.GetTransactionReceipt(context.Background(), "0xabc")
	require.NoError(t, err)

	require.Equal(t, 1, inner.calls)
}

func TestCachingClientDoesNotCacheNullResult(t *testing.T) {
	inner := &countingFetcher{raw: nil}
	c, err := NewCachingClient(inner, 10, nil)
	require.NoError(t, err)

	_, _ = c.GetTransactionReceipt(context.Background(), "0xabc")
	_, _ = c.GetTransactionReceipt(context.Background(), "0xabc")

	require.Equal(t, 2, inner.calls)
}
