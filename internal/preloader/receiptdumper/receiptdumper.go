// Package receiptdumper implements the C4 hook: it writes every receipt's
// raw JSON into the per-block hash table, independent of any event
// filtering.
package receiptdumper

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainindex/txprocessor/internal/config"
	"github.com/chainindex/txprocessor/internal/ethtypes"
	"github.com/chainindex/txprocessor/internal/kvstore"
)

// Hook is the C4 receipt dumper.
type Hook struct {
	kv        *kvstore.Store
	retention config.RedisDataRetentionConfig
}

// New builds a receipt dumper writing through kv, applying retention's
// TTL/max-blocks bound (spec.md §1: "bulk persistence with retention").
// A zero-value retention disables both bounds, keeping every block forever.
func New(kv *kvstore.Store, retention config.RedisDataRetentionConfig) *Hook {
	return &Hook{kv: kv, retention: retention}
}

// Name identifies this hook in logs and error wrapping.
func (h *Hook) Name() string { return "receipt_dumper" }

// BlockTxHTableKey is the hash key a block's receipts are stored under,
// exported so the processor/tests can read back what this hook writes.
func BlockTxHTableKey(namespace string, blockNumber uint64) string {
	return fmt.Sprintf("block_tx_htable:%s:%d", namespace, blockNumber)
}

// blockIndexKey is the sorted set (score = block number) tracking which
// per-block hash keys currently exist, used to enforce MaxBlocks.
func blockIndexKey(namespace string) string {
	return fmt.Sprintf("block_tx_htable_index:%s", namespace)
}

// ProcessReceipt writes receipt.Raw to the per-block hash table under the
// tx hash field, overwriting any prior entry (spec.md §4.4: "idempotent on
// replay"), then applies the configured TTL and prunes the oldest blocks
// beyond MaxBlocks.
func (h *Hook) ProcessReceipt(ctx context.Context, txHash common.Hash, receipt *ethtypes.Receipt, namespace string) error {
	key := BlockTxHTableKey(namespace, receipt.BlockNumber)
	if err := h.kv.HSet(ctx, key, txHash.Hex(), string(receipt.Raw)); err != nil {
		return err
	}

	if h.retention.TTLSeconds > 0 {
		if err := h.kv.Expire(ctx, key, time.Duration(h.retention.TTLSeconds)*time.Second); err != nil {
			return err
		}
	}

	if h.retention.MaxBlocks > 0 {
		indexKey := blockIndexKey(namespace)
		if err := h.kv.ZAddScore(ctx, indexKey, float64(receipt.BlockNumber), key); err != nil {
			return err
		}
		evicted, err := h.kv.TrimOldest(ctx, indexKey, h.retention.MaxBlocks)
		if err != nil {
			return err
		}
		if len(evicted) > 0 {
			if err := h.kv.Delete(ctx, evicted...); err != nil {
				return err
			}
		}
	}

	return nil
}
