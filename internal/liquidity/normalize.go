package liquidity

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"binScope/internal/model"
)

// DepositPlan is an admitted single-sided deposit. Bins are sorted by id.
type DepositPlan struct {
	Position    model.Position
	Side        model.Side
	Amount      uint64
	Slippage    model.SlippageBound
	Bins        []model.BinLiquidityDistributionWeight
	TotalWeight uint64
}

// BinShare is the informational fraction of the deposit a bin receives.
type BinShare struct {
	BinID  int32
	Weight uint16
	Share  decimal.Decimal
}

// BinIDs lists the target bins.
func (p DepositPlan) BinIDs() []int32 {
	ids := make([]int32, 0, len(p.Bins))
	for _, b := range p.Bins {
		ids = append(ids, b.BinID)
	}
	return ids
}

// Shares returns weight/sum per bin. The engine does the real split of Amount.
func (p DepositPlan) Shares() []BinShare {
	out := make([]BinShare, 0, len(p.Bins))
	if p.TotalWeight == 0 {
		return out
	}
	total := decimal.NewFromInt(int64(p.TotalWeight))
	for _, b := range p.Bins {
		out = append(out, BinShare{
			BinID:  b.BinID,
			Weight: b.Weight,
			Share:  decimal.NewFromInt(int64(b.Weight)).Div(total),
		})
	}
	return out
}

// Normalize admits a weighted single-sided deposit into position.
//
// Token X may only go to bins strictly above the observed active bin, token Y
// only to bins at or below it; every bin must lie inside the position. The
// checks run in a fixed order and the first failing rule is reported with all
// bins that break it.
func Normalize(
	position model.Position,
	side model.Side,
	amount uint64,
	bound model.SlippageBound,
	distribution []model.BinLiquidityDistributionWeight,
) (DepositPlan, error) {
	if len(distribution) == 0 {
		return DepositPlan{}, model.Violate(model.ErrEmptyDistribution, "distribution has no bins")
	}
	if bound.MaxActiveBinSlippage < 0 {
		return DepositPlan{}, model.Violate(model.ErrInvalidSlippageBound,
			fmt.Sprintf("max active bin slippage %d is negative", bound.MaxActiveBinSlippage))
	}

	var outside []int32
	for _, d := range distribution {
		if !position.Contains(d.BinID) {
			outside = append(outside, d.BinID)
		}
	}
	if len(outside) > 0 {
		return DepositPlan{}, model.Violate(model.ErrBinOutOfRange,
			fmt.Sprintf("bins outside position range [%d,%d]", position.LowerBinID, position.UpperBinID), outside...)
	}

	var wrongSide []int32
	for _, d := range distribution {
		if !onSide(side, d.BinID, bound.ActiveID) {
			wrongSide = append(wrongSide, d.BinID)
		}
	}
	if len(wrongSide) > 0 {
		return DepositPlan{}, model.Violate(model.ErrInvalidBinSide, sideRule(side, bound.ActiveID), wrongSide...)
	}

	if dups := duplicateIDs(distribution, func(d model.BinLiquidityDistributionWeight) int32 { return d.BinID }); len(dups) > 0 {
		return DepositPlan{}, model.Violate(model.ErrDuplicateBin, "bin listed more than once", dups...)
	}

	bins := make([]model.BinLiquidityDistributionWeight, len(distribution))
	copy(bins, distribution)
	sort.Slice(bins, func(i, j int) bool { return bins[i].BinID < bins[j].BinID })

	var total uint64
	for _, b := range bins {
		total += uint64(b.Weight)
	}
	if total == 0 {
		return DepositPlan{}, model.Violate(model.ErrEmptyDistribution, "all weights are zero")
	}

	return DepositPlan{
		Position:    position,
		Side:        side,
		Amount:      amount,
		Slippage:    bound,
		Bins:        bins,
		TotalWeight: total,
	}, nil
}

func onSide(side model.Side, binID, activeID int32) bool {
	if side == model.SideX {
		return binID > activeID
	}
	return binID <= activeID
}

func sideRule(side model.Side, activeID int32) string {
	if side == model.SideX {
		return fmt.Sprintf("token X bins must be > active bin %d", activeID)
	}
	return fmt.Sprintf("token Y bins must be <= active bin %d", activeID)
}

// duplicateIDs returns each repeated id once, in first-repeat order.
func duplicateIDs[T any](items []T, id func(T) int32) []int32 {
	seen := make(map[int32]int, len(items))
	var dups []int32
	for _, item := range items {
		key := id(item)
		seen[key]++
		if seen[key] == 2 {
			dups = append(dups, key)
		}
	}
	return dups
}
