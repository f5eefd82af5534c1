// Package pooldetector implements the C3 UniswapV3 pool classifier: a
// short-circuiting verification pipeline gated by bytecode heuristics and
// confirmed by on-chain view calls, with persistent and in-memory caching.
package pooldetector

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chainindex/txprocessor/internal/cache"
	"github.com/chainindex/txprocessor/internal/kvstore"
)

// WETHAddress is canonical mainnet WETH, used by the temporary WETH-pair
// heuristic gate (spec.md §4.3 step 7, §9: "explicitly marked as
// temporary").
const WETHAddress = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

const (
	poolMetadataTTL = time.Hour
	erc20MetadataTTL = 24 * time.Hour
	poolCheckKeyPrefix = "uniswap_v3_pool_check:"
	poolMetaKeyPrefix  = "pool_metadata:"
	erc20MetaKeyPrefix = "erc20_metadata:"
)

var allowedFeeTiers = map[int64]bool{100: true, 500: true, 3000: true, 10000: true}

var canonicalTickSpacing = map[int64]int64{100: 1, 500: 10, 3000: 60, 10000: 200}

// TokenMetadata is the ERC-20 surface the pool's two tokens are described
// with; per-field failures fall back rather than failing the whole lookup.
type TokenMetadata struct {
	Address  string
	Name     string
	Symbol   string
	Decimals int
}

// PoolMetadata is the confirmed on-chain shape of a UniswapV3 pool.
type PoolMetadata struct {
	Address     string
	Token0      TokenMetadata
	Token1      TokenMetadata
	Factory     string
	Fee         int64
	TickSpacing int64
}

// ChainReader is the subset of on-chain access the detector needs: fetching
// deployed bytecode and performing read-only contract calls.
// *rpcclient.Client satisfies it directly via its GetCode and Call methods.
type ChainReader interface {
	GetCode(ctx context.Context, address string) ([]byte, error)
	Call(ctx context.Context, to string, data []byte) ([]byte, error)
}

// Config tunes the detector's heuristic gates.
type Config struct {
	RequireWETHPair bool
}

// DefaultConfig matches the originally shipped behavior.
func DefaultConfig() Config {
	return Config{RequireWETHPair: true}
}

// Detector is the C3 pool classifier.
type Detector struct {
	chain   ChainReader
	kv      *kvstore.Store
	cfg     Config
	log     *zap.Logger
	verdict *cache.LRU[string, bool]
	poolABI abi.ABI
	erc20ABI abi.ABI
}

// New builds a Detector. verdictCacheSize bounds the in-process verdict
// cache fronting the persistent Redis lookup (§9: "the in-memory detector
// cache grows without bound... should be bounded by an LRU").
func New(chain ChainReader, kv *kvstore.Store, cfg Config, log *zap.Logger, verdictCacheSize int, poolABI, erc20ABI abi.ABI, cacheMetrics cache.MetricsRecorder) (*Detector, error) {
	verdictCache, err := cache.New[string, bool](verdictCacheSize, cacheMetrics)
	if err != nil {
		return nil, errors.Wrap(err, "build verdict cache")
	}
	return &Detector{
		chain:    chain,
		kv:       kv,
		cfg:      cfg,
		log:      log,
		verdict:  verdictCache,
		poolABI:  poolABI,
		erc20ABI: erc20ABI,
	}, nil
}

func checksum(address string) string {
	return common.HexToAddress(address).Hex()
}

// IsUniswapV3Pool runs the short-circuiting verification pipeline described
// in spec.md §4.3. Any error anywhere in the pipeline yields a false verdict,
// which is cached the same as a genuine negative.
func (d *Detector) IsUniswapV3Pool(ctx context.Context, address string) bool {
	addr := checksum(address)

	if v, ok := d.verdict.Get(addr); ok {
		return v
	}

	cacheKey := poolCheckKeyPrefix + addr
	if raw, err := d.kv.Get(ctx, cacheKey); err == nil {
		verdict := raw == "true"
		d.verdict.Add(addr, verdict)
		return verdict
	}

	verdict := d.verify(ctx, addr)
	d.verdict.Add(addr, verdict)
	_ = d.kv.Set(ctx, cacheKey, strconv.FormatBool(verdict), 0)
	return verdict
}

func (d *Detector) verify(ctx context.Context, addr string) bool {
	code, err := d.chain.GetCode(ctx, addr)
	if err != nil || len(code) == 0 {
		return false
	}

	if !hasSelectorCoverage(code) {
		return false
	}

	meta, err := d.GetPoolMetadata(ctx, addr)
	if err != nil || meta == nil {
		return false
	}

	if !allowedFeeTiers[meta.Fee] {
		return false
	}
	if canonicalTickSpacing[meta.Fee] != meta.TickSpacing {
		return false
	}

	if d.cfg.RequireWETHPair {
		t0 := strings.ToLower(meta.Token0.Address)
		t1 := strings.ToLower(meta.Token1.Address)
		if t0 != WETHAddress && t1 != WETHAddress {
			return false
		}
	}

	return true
}

func hasSelectorCoverage(code []byte) bool {
	hexCode := strings.ToLower(common.Bytes2Hex(code))
	matches := 0
	for _, selector := range canonicalSelectors {
		if strings.Contains(hexCode, strings.TrimPrefix(selector, "0x")) {
			matches++
		}
	}
	return matches >= minSelectorMatches
}

// GetPoolMetadata performs the view calls confirming pool shape, caching
// the result under pool_metadata:<addr> for an hour on success.
func (d *Detector) GetPoolMetadata(ctx context.Context, address string) (*PoolMetadata, error) {
	addr := checksum(address)

	token0, err := d.callAddress(ctx, addr, "token0")
	if err != nil {
		return nil, errors.Wrap(err, "token0")
	}
	token1, err := d.callAddress(ctx, addr, "token1")
	if err != nil {
		return nil, errors.Wrap(err, "token1")
	}
	factory, err := d.callAddress(ctx, addr, "factory")
	if err != nil {
		return nil, errors.Wrap(err, "factory")
	}
	fee, err := d.callInt64(ctx, addr, "fee")
	if err != nil {
		return nil, errors.Wrap(err, "fee")
	}
	tickSpacing, err := d.callInt64(ctx, addr, "tickSpacing")
	if err != nil {
		return nil, errors.Wrap(err, "tickSpacing")
	}

	meta := &PoolMetadata{
		Address:     addr,
		Token0:      d.erc20Metadata(ctx, token0),
		Token1:      d.erc20Metadata(ctx, token1),
		Factory:     factory,
		Fee:         fee,
		TickSpacing: tickSpacing,
	}
	if encoded, err := json.Marshal(meta); err == nil {
		_ = d.kv.Set(ctx, poolMetaKeyPrefix+addr, string(encoded), poolMetadataTTL)
	}
	return meta, nil
}

// erc20Metadata fetches name/symbol/decimals with per-field fallback
// ("Unknown Token", "UNKNOWN", 18), spec.md §4.3 step 4 — a deliberate
// upgrade over the all-or-nothing behavior of the original Python detector.
func (d *Detector) erc20Metadata(ctx context.Context, addr string) TokenMetadata {
	m := TokenMetadata{Address: addr, Name: "Unknown Token", Symbol: "UNKNOWN", Decimals: 18}

	cacheKey := erc20MetaKeyPrefix + addr
	if raw, err := d.kv.Get(ctx, cacheKey); err == nil {
		if parsed, ok := parseCachedTokenMetadata(raw); ok {
			parsed.Address = addr
			return parsed
		}
	}

	if name, err := d.callString(ctx, addr, "name"); err == nil {
		m.Name = name
	}
	if symbol, err := d.callString(ctx, addr, "symbol"); err == nil {
		m.Symbol = symbol
	}
	if decimals, err := d.callInt64(ctx, addr, "decimals"); err == nil {
		m.Decimals = int(decimals)
	}

	_ = d.kv.Set(ctx, cacheKey, encodeTokenMetadata(m), erc20MetadataTTL)
	return m
}

func (d *Detector) callAddress(ctx context.Context, to, method string) (string, error) {
	data, err := d.poolABI.Pack(method)
	if err != nil {
		return "", err
	}
	out, err := d.chain.Call(ctx, to, data)
	if err != nil {
		return "", err
	}
	vals, err := d.poolABI.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return "", errors.New("empty result")
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return "", errors.New("unexpected return type")
	}
	return addr.Hex(), nil
}

func (d *Detector) callInt64(ctx context.Context, to, method string) (int64, error) {
	data, err := d.poolABI.Pack(method)
	if err != nil {
		data, err = d.erc20ABI.Pack(method)
		if err != nil {
			return 0, err
		}
	}
	out, err := d.chain.Call(ctx, to, data)
	if err != nil {
		return 0, err
	}
	vals, err := d.poolABI.Unpack(method, out)
	if err != nil {
		vals, err = d.erc20ABI.Unpack(method, out)
		if err != nil {
			return 0, err
		}
	}
	if len(vals) == 0 {
		return 0, errors.New("empty result")
	}
	switch v := vals[0].(type) {
	case uint8:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case *big.Int:
		return v.Int64(), nil
	default:
		return 0, errors.New("unexpected return type")
	}
}

func (d *Detector) callString(ctx context.Context, to, method string) (string, error) {
	data, err := d.erc20ABI.Pack(method)
	if err != nil {
		return "", err
	}
	out, err := d.chain.Call(ctx, to, data)
	if err != nil {
		return "", err
	}
	vals, err := d.erc20ABI.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return "", errors.New("empty result")
	}
	s, ok := vals[0].(string)
	if !ok {
		return "", errors.New("unexpected return type")
	}
	return s, nil
}

func encodeTokenMetadata(m TokenMetadata) string {
	return m.Name + "\x1f" + m.Symbol + "\x1f" + strconv.Itoa(m.Decimals)
}

func parseCachedTokenMetadata(raw string) (TokenMetadata, bool) {
	parts := strings.Split(raw, "\x1f")
	if len(parts) != 3 {
		return TokenMetadata{}, false
	}
	decimals, err := strconv.Atoi(parts[2])
	if err != nil {
		return TokenMetadata{}, false
	}
	return TokenMetadata{Name: parts[0], Symbol: parts[1], Decimals: decimals}, true
}
