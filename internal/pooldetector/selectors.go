package pooldetector

// canonicalSelectors holds the 4-byte function selectors the bytecode
// coverage heuristic looks for (spec.md §4.3 step 3). These are Keccak256
// of the canonical UniswapV3Pool ABI signatures, truncated to four bytes.
var canonicalSelectors = map[string]string{
	"fee":                  "0xddca3f43",
	"slot0":                "0x3850c7bd",
	"factory":              "0xc45a0155",
	"token0":               "0x0dfe1681",
	"token1":               "0xd21220a7",
	"liquidity":            "0x1a686502",
	"tickSpacing":          "0xd0c93a7c",
	"feeGrowthGlobal0X128": "0xf3058399",
	"feeGrowthGlobal1X128": "0x46141319",
}

// minSelectorMatches is the minimum number of canonicalSelectors that must
// appear in a contract's deployed bytecode for it to pass the coverage
// heuristic (spec.md §4.3 step 3: "at least 6 of 9").
const minSelectorMatches = 6
