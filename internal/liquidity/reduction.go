package liquidity

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"binScope/internal/model"
)

// Variant selects which withdrawal a reduction table belongs to.
type Variant uint8

const (
	// Selective removes only the listed bins; the table must be non-empty.
	Selective Variant = iota
	// AllBins drains the whole position; an empty table is allowed.
	AllBins
)

// ReductionPlan is an admitted withdrawal table. Bins are sorted by id.
type ReductionPlan struct {
	Position model.Position
	Bins     []model.BinLiquidityReduction
	// ZeroBps lists entries that remove nothing. They are kept, not rejected.
	ZeroBps []int32
}

// BinIDs lists the bins touched by the plan.
func (p ReductionPlan) BinIDs() []int32 {
	ids := make([]int32, 0, len(p.Bins))
	for _, b := range p.Bins {
		ids = append(ids, b.BinID)
	}
	return ids
}

// RemovesFully reports whether every listed bin is removed at 10000 bps.
func (p ReductionPlan) RemovesFully() bool {
	if len(p.Bins) == 0 {
		return false
	}
	for _, b := range p.Bins {
		if b.BpsToRemove != model.BasisPointMax {
			return false
		}
	}
	return true
}

// Fraction returns bps as a fraction of one.
func Fraction(bps int32) decimal.Decimal {
	return decimal.NewFromInt32(bps).Div(decimal.NewFromInt(model.BasisPointMax))
}

// ValidateReduction admits a partial withdrawal table for position.
func ValidateReduction(position model.Position, table []model.BinLiquidityReduction, variant Variant) (ReductionPlan, error) {
	if len(table) == 0 {
		if variant == AllBins {
			return ReductionPlan{Position: position}, nil
		}
		return ReductionPlan{}, model.Violate(model.ErrEmptyReduction, "selective withdrawal needs at least one bin")
	}

	var outside []int32
	for _, r := range table {
		if !position.Contains(r.BinID) {
			outside = append(outside, r.BinID)
		}
	}
	if len(outside) > 0 {
		return ReductionPlan{}, model.Violate(model.ErrBinOutOfRange,
			fmt.Sprintf("bins outside position range [%d,%d]", position.LowerBinID, position.UpperBinID), outside...)
	}

	var badBps []int32
	for _, r := range table {
		if r.BpsToRemove < 0 || r.BpsToRemove > model.BasisPointMax {
			badBps = append(badBps, r.BinID)
		}
	}
	if len(badBps) > 0 {
		return ReductionPlan{}, model.Violate(model.ErrBpsOutOfRange,
			fmt.Sprintf("bps_to_remove must be within [0,%d]", model.BasisPointMax), badBps...)
	}

	if dups := duplicateIDs(table, func(r model.BinLiquidityReduction) int32 { return r.BinID }); len(dups) > 0 {
		return ReductionPlan{}, model.Violate(model.ErrDuplicateBin, "bin listed more than once", dups...)
	}

	bins := make([]model.BinLiquidityReduction, len(table))
	copy(bins, table)
	sort.Slice(bins, func(i, j int) bool { return bins[i].BinID < bins[j].BinID })

	var zero []int32
	for _, b := range bins {
		if b.BpsToRemove == 0 {
			zero = append(zero, b.BinID)
		}
	}

	return ReductionPlan{Position: position, Bins: bins, ZeroBps: zero}, nil
}
