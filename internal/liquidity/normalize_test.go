package liquidity

import (
	"errors"
	"reflect"
	"testing"

	"binScope/internal/model"
)

var testPosition = model.Position{LowerBinID: 100, UpperBinID: 139}

func weights(pairs ...int32) []model.BinLiquidityDistributionWeight {
	out := make([]model.BinLiquidityDistributionWeight, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.BinLiquidityDistributionWeight{BinID: pairs[i], Weight: uint16(pairs[i+1])})
	}
	return out
}

func TestNormalizeAcceptsTokenXAboveActive(t *testing.T) {
	plan, err := Normalize(testPosition, model.SideX, 1_000_000,
		model.SlippageBound{ActiveID: 110, MaxActiveBinSlippage: 3},
		weights(130, 2, 120, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(plan.BinIDs(), []int32{120, 130}) {
		t.Fatalf("bins not sorted: %v", plan.BinIDs())
	}
	if plan.TotalWeight != 3 {
		t.Fatalf("total weight mismatch: %d", plan.TotalWeight)
	}

	shares := plan.Shares()
	if len(shares) != 2 {
		t.Fatalf("shares length: %d", len(shares))
	}
	if got := shares[1].Share.StringFixed(4); got != "0.6667" {
		t.Fatalf("share mismatch: %s", got)
	}
}

func TestNormalizeRejections(t *testing.T) {
	cases := []struct {
		name   string
		side   model.Side
		active int32
		slip   int32
		dist   []model.BinLiquidityDistributionWeight
		want   error
		bins   []int32
	}{
		{"below lower bound", model.SideX, 110, 3, weights(90, 1), model.ErrBinOutOfRange, []int32{90}},
		{"above upper bound", model.SideX, 110, 3, weights(120, 1, 140, 1), model.ErrBinOutOfRange, []int32{140}},
		{"token Y above active", model.SideY, 110, 3, weights(120, 1), model.ErrInvalidBinSide, []int32{120}},
		{"token X at active", model.SideX, 110, 3, weights(110, 1, 111, 1), model.ErrInvalidBinSide, []int32{110}},
		{"empty", model.SideX, 110, 3, nil, model.ErrEmptyDistribution, nil},
		{"all zero weights", model.SideX, 110, 3, weights(120, 0), model.ErrEmptyDistribution, nil},
		{"duplicate", model.SideY, 110, 3, weights(105, 1, 105, 2), model.ErrDuplicateBin, []int32{105}},
		{"negative slippage", model.SideX, 110, -1, weights(120, 1), model.ErrInvalidSlippageBound, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(testPosition, tc.side, 1, model.SlippageBound{ActiveID: tc.active, MaxActiveBinSlippage: tc.slip}, tc.dist)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var v *model.Violation
			if !errors.As(err, &v) {
				t.Fatalf("expected violation, got %T", err)
			}
			if !reflect.DeepEqual(v.BinIDs, tc.bins) {
				t.Fatalf("offending bins mismatch: %v != %v", v.BinIDs, tc.bins)
			}
		})
	}
}

func TestNormalizeTokenYAcceptsActiveBin(t *testing.T) {
	if _, err := Normalize(testPosition, model.SideY, 5,
		model.SlippageBound{ActiveID: 110}, weights(100, 1, 110, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Side X succeeds iff active < bin <= upper; side Y iff lower <= bin <= active.
func TestNormalizeAdmissionProperty(t *testing.T) {
	const active = 110
	for bin := int32(80); bin <= 160; bin++ {
		dist := weights(bin, 1)
		bound := model.SlippageBound{ActiveID: active}

		_, errX := Normalize(testPosition, model.SideX, 1, bound, dist)
		wantX := bin > active && bin <= testPosition.UpperBinID
		if (errX == nil) != wantX {
			t.Fatalf("side X bin %d: err=%v want ok=%v", bin, errX, wantX)
		}

		_, errY := Normalize(testPosition, model.SideY, 1, bound, dist)
		wantY := bin >= testPosition.LowerBinID && bin <= active
		if (errY == nil) != wantY {
			t.Fatalf("side Y bin %d: err=%v want ok=%v", bin, errY, wantY)
		}
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	dist := weights(130, 2, 120, 1)
	if _, err := Normalize(testPosition, model.SideX, 1, model.SlippageBound{ActiveID: 110}, dist); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dist[0].BinID != 130 {
		t.Fatalf("input reordered")
	}
}
