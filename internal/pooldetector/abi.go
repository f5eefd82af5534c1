package pooldetector

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// minimalPoolABIJSON covers exactly the view functions the detector calls:
// token0, token1, factory, fee, tickSpacing.
const minimalPoolABIJSON = `[
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"factory","outputs":[{"name":"","type":"address"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"fee","outputs":[{"name":"","type":"uint24"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"tickSpacing","outputs":[{"name":"","type":"int24"}],"type":"function"}
]`

// minimalERC20ABIJSON covers name/symbol/decimals, grounded on the same
// source's ERC20_MINIMAL_ABI.
const minimalERC20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

// MustLoadPoolABI parses the embedded minimal pool ABI; it never fails on a
// constant literal, so panicking on error would only ever fire under test
// corruption.
func MustLoadPoolABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(minimalPoolABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustLoadERC20ABI parses the embedded minimal ERC-20 ABI.
func MustLoadERC20ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(minimalERC20ABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}
