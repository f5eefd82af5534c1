package rpcclient

import (
	"context"
	"encoding/json"

	"github.com/chainindex/txprocessor/internal/cache"
)

// ReceiptFetcher is the behavior CachingClient wraps: a hash-keyed receipt
// lookup plus the block-number read the staleness probe needs. Client
// satisfies this directly.
type ReceiptFetcher interface {
	GetTransactionReceipt(ctx context.Context, txHash string) (json.RawMessage, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// CachingClient wraps a ReceiptFetcher with a bounded LRU keyed by tx
// hash. A null receipt (tx not yet mined) is deliberately not cached,
// since its presence is expected to change on the next attempt.
// GetBlockNumber passes straight through.
type CachingClient struct {
	inner ReceiptFetcher
	cache *cache.LRU[string, json.RawMessage]
}

// NewCachingClient wraps inner with a cache of the given size. metrics may
// be nil.
func NewCachingClient(inner ReceiptFetcher, cacheSize int, metrics cache.MetricsRecorder) (*CachingClient, error) {
	c, err := cache.New[string, json.RawMessage](cacheSize, metrics)
	if err != nil {
		return nil, err
	}
	return &CachingClient{inner: inner, cache: c}, nil
}

// GetBlockNumber passes through to the wrapped client.
func (c *CachingClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	return c.inner.GetBlockNumber(ctx)
}

// GetTransactionReceipt returns the cached receipt if present, otherwise
// delegates to inner and populates the cache on a non-null result.
func (c *CachingClient) GetTransactionReceipt(ctx context.Context, txHash string) (json.RawMessage, error) {
	if raw, ok := c.cache.Get(txHash); ok {
		return raw, nil
	}

	raw, err := c.inner.GetTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	c.cache.Add(txHash, raw)
	return raw, nil
}
