package model

// BasisPointMax is a full removal from one bin.
const BasisPointMax = 10000

// BinLiquidityDistributionWeight is a relative weight for one bin. Only the
// ratio between weights matters.
type BinLiquidityDistributionWeight struct {
	BinID  int32  `json:"bin_id"`
	Weight uint16 `json:"weight"`
}

// BinLiquidityReduction removes BpsToRemove/10000 of the liquidity in one bin.
// The field is wider than the wire u16 so out-of-range input can be reported.
type BinLiquidityReduction struct {
	BinID       int32 `json:"bin_id"`
	BpsToRemove int32 `json:"bps_to_remove"`
}

// SlippageBound is the active bin the caller observed and how far the engine
// may find it moved at execution.
type SlippageBound struct {
	ActiveID             int32 `json:"active_id"`
	MaxActiveBinSlippage int32 `json:"max_active_bin_slippage"`
}
