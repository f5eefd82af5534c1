// Package ethtypes holds the shared wire types read off the JSON-RPC
// transport: transaction hashes, receipts, and logs, plus the hex-quantity
// parsing helpers used throughout the rest of the module.
package ethtypes

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// BlockID identifies a block by number and hash.
type BlockID struct {
	Number uint64
	Hash   common.Hash
}

// Log is the subset of a JSON-RPC log entry the pipeline reads: address,
// topics, data, and log index. Receipts carry these as an array under
// "logs"; fields outside this set are irrelevant to the core and are left
// in the raw receipt JSON untouched.
type Log struct {
	Address  common.Address
	Topics   []common.Hash
	Data     []byte
	LogIndex uint64
}

// Receipt is a partially-decoded JSON-RPC transaction receipt. Raw keeps
// the full, untouched server response so hooks like the receipt dumper can
// persist it byte-for-byte; BlockNumber/TxIndex/Logs are the three fields
// spec.md says the core actually reads.
type Receipt struct {
	Raw         json.RawMessage
	BlockNumber uint64
	TxIndex     uint64
	Logs        []Log
}

type rawLog struct {
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	LogIndex string   `json:"logIndex"`
}

type rawReceipt struct {
	BlockNumber      string    `json:"blockNumber"`
	TransactionIndex string    `json:"transactionIndex"`
	Logs             []rawLog  `json:"logs"`
}

// ParseReceipt decodes the fields the core needs out of a raw JSON-RPC
// receipt while retaining the original bytes in Receipt.Raw. A missing
// blockNumber or transactionIndex is reported as an error; per spec.md
// §4.5 step 1 callers treat that as a no-op rather than a hard failure.
func ParseReceipt(raw json.RawMessage) (*Receipt, error) {
	var rr rawReceipt
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, errors.Wrap(err, "decode receipt envelope")
	}
	if rr.BlockNumber == "" || rr.TransactionIndex == "" {
		return nil, errors.New("receipt missing blockNumber or transactionIndex")
	}

	blockNumber, err := hexutil.DecodeUint64(rr.BlockNumber)
	if err != nil {
		return nil, errors.Wrap(err, "decode blockNumber")
	}
	txIndex, err := hexutil.DecodeUint64(rr.TransactionIndex)
	if err != nil {
		return nil, errors.Wrap(err, "decode transactionIndex")
	}

	logs := make([]Log, 0, len(rr.Logs))
	for _, l := range rr.Logs {
		if l.Address == "" || len(l.Topics) == 0 || l.LogIndex == "" {
			// Skipped without raising, per spec.md §4.5 step 2.
			continue
		}
		logIndex, err := hexutil.DecodeUint64(l.LogIndex)
		if err != nil {
			continue
		}
		topics := make([]common.Hash, 0, len(l.Topics))
		for _, t := range l.Topics {
			topics = append(topics, common.HexToHash(NormalizeHex(t)))
		}
		var data []byte
		if l.Data != "" {
			data, err = hexutil.Decode(l.Data)
			if err != nil {
				data = nil
			}
		}
		logs = append(logs, Log{
			Address:  common.HexToAddress(NormalizeHex(l.Address)),
			Topics:   topics,
			Data:     data,
			LogIndex: logIndex,
		})
	}

	return &Receipt{
		Raw:         raw,
		BlockNumber: blockNumber,
		TxIndex:     txIndex,
		Logs:        logs,
	}, nil
}

// NormalizeHex lowercases a hex string and ensures a 0x prefix. Applying it
// twice is a no-op (spec.md §8: "Topic-hash normalization is idempotent").
func NormalizeHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

// LogScore computes the composite sorted-set score spec.md §3 mandates:
// block_number * 10^6 + log_index. uint256 is used for the multiplication
// so that adversarial RPC responses with huge block numbers don't silently
// wrap around int64 before the range check below ever gets a chance to
// reject them.
const scoreBlockMultiplier = 1_000_000

func LogScore(blockNumber, logIndex uint64) (int64, error) {
	if logIndex >= scoreBlockMultiplier {
		return 0, errors.Errorf("log index %d exceeds per-block score budget", logIndex)
	}
	block := uint256.NewInt(blockNumber)
	block.Mul(block, uint256.NewInt(scoreBlockMultiplier))
	block.AddUint64(block, logIndex)
	if !block.IsUint64() || block.Uint64() > math.MaxInt64 {
		return 0, errors.Errorf("score for block %d overflows", blockNumber)
	}
	return int64(block.Uint64()), nil
}
