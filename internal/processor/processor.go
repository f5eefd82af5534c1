// Package processor implements the C7 TxProcessor core loop: a supervisor
// that blocks on the work queue and hands each dequeued hash to a bounded
// pool of concurrent workers.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chainindex/txprocessor/internal/cache"
	"github.com/chainindex/txprocessor/internal/ethtypes"
	"github.com/chainindex/txprocessor/internal/kvstore"
	"github.com/chainindex/txprocessor/internal/metrics"
	"github.com/chainindex/txprocessor/internal/preloader"
)

// maxRetries is the number of additional attempts a transaction gets after
// its first failed fetch before being abandoned (spec.md §4.7 step 4: "if
// the new count ≤ 2").
const maxRetries = 2

// ReceiptFetcher is the subset of internal/rpcclient.Client the processor
// needs, narrowed to an interface so tests can stub it.
type ReceiptFetcher interface {
	GetTransactionReceipt(ctx context.Context, txHash string) (json.RawMessage, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// DeadLetterRecorder is satisfied by internal/deadletter.Store. Optional:
// a nil recorder just drops abandoned transactions, matching the
// original's log-and-drop behavior.
type DeadLetterRecorder interface {
	Record(ctx context.Context, namespace, txHash, reason string, attempts int) error
}

// Config tunes the processor's scheduling and staleness behavior.
type Config struct {
	Namespace          string
	QueueKey           string
	BlockTimeout       time.Duration
	MaxConcurrentWorkers int
	StalenessBlockLag  uint64
	StalenessSampleRate float64
	RetryTableSize     int
}

// DefaultConfig mirrors spec.md's stated defaults.
func DefaultConfig(namespace, queueKeyPrefix string) Config {
	return Config{
		Namespace:            namespace,
		QueueKey:             queueKeyPrefix + ":" + namespace,
		BlockTimeout:         0,
		MaxConcurrentWorkers: 64,
		StalenessBlockLag:    100,
		StalenessSampleRate:  0.1,
		RetryTableSize:       100_000,
	}
}

// Processor is the C7 core loop.
type Processor struct {
	cfg        Config
	kv         *kvstore.Store
	rpc        ReceiptFetcher
	hooks      []preloader.Hook
	deadLetter DeadLetterRecorder
	log        *zap.Logger
	metrics    *metrics.Registry

	retryCounts *cache.LRU[string, int]
	retryMu     sync.Mutex

	sem *semaphore.Weighted
}

// New builds a Processor. deadLetter may be nil.
func New(cfg Config, kv *kvstore.Store, rpc ReceiptFetcher, hooks []preloader.Hook, deadLetter DeadLetterRecorder, log *zap.Logger, reg *metrics.Registry) (*Processor, error) {
	retryCounts, err := cache.New[string, int](cfg.RetryTableSize, nil)
	if err != nil {
		return nil, err
	}
	return &Processor{
		cfg:         cfg,
		kv:          kv,
		rpc:         rpc,
		hooks:       hooks,
		deadLetter:  deadLetter,
		log:         log,
		metrics:     reg,
		retryCounts: retryCounts,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentWorkers)),
	}, nil
}

// Run blocks the calling goroutine, dequeuing transactions until ctx is
// canceled. It never returns on its own otherwise (spec.md §4.7: "the loop
// never terminates on its own").
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := p.kv.BRPop(ctx, p.cfg.BlockTimeout, p.cfg.QueueKey)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			if isConnectionError(err) {
				// The store is shared with in-flight workers and is not closed
				// here: go-redis re-dials pooled connections on the next command.
				p.log.Error("kv connection lost, reconnecting", zap.Error(err))
				time.Sleep(5 * time.Second)
				continue
			}
			p.log.Error("unexpected error in consumer loop", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}

		txHash := result[1]
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return ctx.Err()
		}
		go func() {
			defer p.sem.Release(1)
			p.processTransaction(ctx, txHash)
		}()
	}
}

// isConnectionError reports whether err looks like a lost connection
// rather than an application-level failure, driving the 5s-reconnect vs
// 2s-retry branch (spec.md §4.7 "Reconnection").
func isConnectionError(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, redis.ErrClosed)
}

// processTransaction implements spec.md §4.7's worker algorithm.
func (p *Processor) processTransaction(ctx context.Context, txHashHex string) {
	if p.metrics != nil {
		p.metrics.TransactionsConsumed.Inc()
	}

	raw, err := p.rpc.GetTransactionReceipt(ctx, txHashHex)
	if err != nil {
		p.handleFailure(ctx, txHashHex, err)
		return
	}
	if raw == nil {
		// A null receipt is not an error and does not retry.
		return
	}

	if rand.Float64() < p.cfg.StalenessSampleRate {
		current, err := p.rpc.GetBlockNumber(ctx)
		if err == nil {
			receipt, parseErr := ethtypes.ParseReceipt(raw)
			if parseErr == nil && current > receipt.BlockNumber && current-receipt.BlockNumber > p.cfg.StalenessBlockLag {
				p.log.Warn("queue judged stale, purging",
					zap.String("tx_hash", txHashHex),
					zap.Uint64("receipt_block", receipt.BlockNumber),
					zap.Uint64("current_block", current))
				if p.metrics != nil {
					p.metrics.QueuePurges.Inc()
				}
				_ = p.kv.Delete(ctx, p.cfg.QueueKey)
				return
			}
		}
	}

	receipt, err := ethtypes.ParseReceipt(raw)
	if err != nil {
		// A receipt missing blockNumber/transactionIndex is a no-op, not a
		// fetch failure, so it is not requeued.
		p.log.Warn("receipt not parseable, skipping hooks", zap.String("tx_hash", txHashHex), zap.Error(err))
		return
	}

	txHash := common.HexToHash(ethtypes.NormalizeHex(txHashHex))
	if err := preloader.RunAll(ctx, p.hooks, txHash, receipt, p.cfg.Namespace); err != nil {
		p.log.Error("preloader hook reported errors", zap.String("tx_hash", txHashHex), zap.Error(err))
		if p.metrics != nil {
			if merr, ok := err.(interface{ WrappedErrors() []error }); ok {
				for _, e := range merr.WrappedErrors() {
					var hookErr *preloader.HookError
					if errors.As(e, &hookErr) {
						p.metrics.HookErrors.WithLabelValues(hookErr.Hook).Inc()
					}
				}
			}
		}
	}
}

// handleFailure implements the retry-with-cap policy: up to maxRetries
// re-enqueues via lpush, then abandonment with an optional dead-letter
// record.
func (p *Processor) handleFailure(ctx context.Context, txHashHex string, cause error) {
	p.retryMu.Lock()
	count, _ := p.retryCounts.Get(txHashHex)
	count++
	p.retryCounts.Add(txHashHex, count)
	p.retryMu.Unlock()

	if count <= maxRetries {
		if p.metrics != nil {
			p.metrics.TransactionsRetried.Inc()
		}
		if err := p.kv.LPush(ctx, p.cfg.QueueKey, txHashHex); err != nil {
			p.log.Error("failed to requeue transaction", zap.String("tx_hash", txHashHex), zap.Error(err))
		}
		return
	}

	p.log.Error("abandoning transaction after exceeding retry cap",
		zap.String("tx_hash", txHashHex), zap.Int("attempts", count), zap.Error(cause))
	if p.metrics != nil {
		p.metrics.TransactionsAbandoned.Inc()
	}
	if p.deadLetter != nil {
		if err := p.deadLetter.Record(ctx, p.cfg.Namespace, txHashHex, cause.Error(), count); err != nil {
			p.log.Error("failed to record dead letter", zap.String("tx_hash", txHashHex), zap.Error(err))
		}
	}
}

// RunID returns a fresh random UUID string for use as a per-run correlation
// id. cmd/txprocessor does not call it; log lines carry no run id.
func RunID() string {
	return uuid.NewString()
}
