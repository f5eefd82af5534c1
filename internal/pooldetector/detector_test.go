package pooldetector

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainindex/txprocessor/internal/kvstore"
)

const (
	token0Addr  = "0x1111111111111111111111111111111111111111"
	wethAddr    = WETHAddress
	factoryAddr = "0x2222222222222222222222222222222222222222"
)

var (
	testPoolABI  = MustLoadPoolABI()
	testERC20ABI = MustLoadERC20ABI()
)

func selector(a abi.ABI, method string) []byte {
	return a.Methods[method].ID
}

func packReturn(t *testing.T, a abi.ABI, method string, args ...interface{}) []byte {
	t.Helper()
	out, err := a.Methods[method].Outputs.Pack(args...)
	require.NoError(t, err)
	return out
}

// fakeChain is a ChainReader stub driven entirely by the 4-byte selector in
// the call data, so it doesn't need a real EVM to answer view calls.
type fakeChain struct {
	t                     *testing.T
	code                  []byte
	token0, token1, factory string
	fee, tickSpacing      int64
	name, symbol          string
	decimals              uint8
	failName              bool
}

func (f *fakeChain) GetCode(ctx context.Context, address string) ([]byte, error) {
	return f.code, nil
}

func (f *fakeChain) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	sig := data[:4]
	switch string(sig) {
	case string(selector(testPoolABI, "token0")):
		return packReturn(f.t, testPoolABI, "token0", common.HexToAddress(f.token0)), nil
	case string(selector(testPoolABI, "token1")):
		return packReturn(f.t, testPoolABI, "token1", common.HexToAddress(f.token1)), nil
	case string(selector(testPoolABI, "factory")):
		return packReturn(f.t, testPoolABI, "factory", common.HexToAddress(f.factory)), nil
	case string(selector(testPoolABI, "fee")):
		return packReturn(f.t, testPoolABI, "fee", bigFromInt64(f.fee)), nil
	case string(selector(testPoolABI, "tickSpacing")):
		return packReturn(f.t, testPoolABI, "tickSpacing", bigFromInt64(f.tickSpacing)), nil
	case string(selector(testERC20ABI, "name")):
		if f.failName {
			return nil, assertErr()
		}
		return packReturn(f.t, testERC20ABI, "name", f.name), nil
	case string(selector(testERC20ABI, "symbol")):
		return packReturn(f.t, testERC20ABI, "symbol", f.symbol), nil
	case string(selector(testERC20ABI, "decimals")):
		return packReturn(f.t, testERC20ABI, "decimals", f.decimals), nil
	}
	return nil, assertErr()
}

type stubErr struct{}

func (stubErr) Error() string { return "unrecognized call" }

func assertErr() error { return stubErr{} }

func bigFromInt64(v int64) *big.Int {
	return big.NewInt(v)
}

func newTestDetector(t *testing.T, chain *fakeChain, cfg Config) *Detector {
	t.Helper()
	mr := miniredis.RunT(t)
	store := kvstore.NewForTest(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	d, err := New(chain, store, cfg, zap.NewNop(), 16, testPoolABI, testERC20ABI, nil)
	require.NoError(t, err)
	return d
}

func buildBytecodeWithAllSelectors() []byte {
	var sb strings.Builder
	for _, sel := range canonicalSelectors {
		sb.WriteString(strings.TrimPrefix(sel, "0x"))
		sb.WriteString("6000")
	}
	b, err := hex.DecodeString(sb.String())
	if err != nil {
		panic(err)
	}
	return b
}

func TestIsUniswapV3PoolNoCode(t *testing.T) {
	chain := &fakeChain{t: t, code: nil}
	d := newTestDetector(t, chain, DefaultConfig())
	require.False(t, d.IsUniswapV3Pool(context.Background(), factoryAddr))
}

func TestIsUniswapV3PoolHappyPath(t *testing.T) {
	chain := &fakeChain{
		t:           t,
		code:        buildBytecodeWithAllSelectors(),
		token0:      wethAddr,
		token1:      token0Addr,
		factory:     factoryAddr,
		fee:         3000,
		tickSpacing: 60,
		name:        "Token",
		symbol:      "TKN",
		decimals:    18,
	}
	d := newTestDetector(t, chain, DefaultConfig())
	require.True(t, d.IsUniswapV3Pool(context.Background(), factoryAddr))
}

func TestIsUniswapV3PoolRejectsBadFeeTier(t *testing.T) {
	chain := &fakeChain{
		t:           t,
		code:        buildBytecodeWithAllSelectors(),
		token0:      wethAddr,
		token1:      token0Addr,
		factory:     factoryAddr,
		fee:         1234,
		tickSpacing: 60,
	}
	d := newTestDetector(t, chain, DefaultConfig())
	require.False(t, d.IsUniswapV3Pool(context.Background(), factoryAddr))
}

func TestIsUniswapV3PoolRejectsNonWETHPairWhenRequired(t *testing.T) {
	chain := &fakeChain{
		t:           t,
		code:        buildBytecodeWithAllSelectors(),
		token0:      token0Addr,
		token1:      factoryAddr,
		factory:     factoryAddr,
		fee:         3000,
		tickSpacing: 60,
	}
	d := newTestDetector(t, chain, DefaultConfig())
	require.False(t, d.IsUniswapV3Pool(context.Background(), factoryAddr))
}

func TestGetPoolMetadataFallsBackToUnknownTokenOnPartialERC20Failure(t *testing.T) {
	chain := &fakeChain{
		t:           t,
		code:        buildBytecodeWithAllSelectors(),
		token0:      wethAddr,
		token1:      token0Addr,
		factory:     factoryAddr,
		fee:         3000,
		tickSpacing: 60,
		symbol:      "TKN",
		decimals:    18,
		failName:    true,
	}
	d := newTestDetector(t, chain, DefaultConfig())
	meta, err := d.GetPoolMetadata(context.Background(), factoryAddr)
	require.NoError(t, err)
	require.Equal(t, "Unknown Token", meta.Token1.Name)
}

func TestIsUniswapV3PoolCachesVerdict(t *testing.T) {
	chain := &fakeChain{t: t, code: nil}
	d := newTestDetector(t, chain, DefaultConfig())
	ctx := context.Background()
	require.False(t, d.IsUniswapV3Pool(ctx, factoryAddr))
	_, cached := d.verdict.Get(checksum(factoryAddr))
	require.True(t, cached)
}
