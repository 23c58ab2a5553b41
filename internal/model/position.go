package model

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Side selects the token of a single-sided deposit.
type Side uint8

const (
	SideX Side = iota
	SideY
)

func (s Side) String() string {
	if s == SideY {
		return "Y"
	}
	return "X"
}

// ParseSide accepts "x" or "y" in any case.
func ParseSide(input string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "x":
		return SideX, nil
	case "y":
		return SideY, nil
	default:
		return 0, fmt.Errorf("invalid side: %q (want x or y)", input)
	}
}

// Pool holds the identity fields of an lb pair read from chain.
type Pool struct {
	Address    solana.PublicKey `json:"address"`
	ActiveID   int32            `json:"active_id"`
	BinStep    uint16           `json:"bin_step"`
	TokenXMint solana.PublicKey `json:"token_x_mint"`
	TokenYMint solana.PublicKey `json:"token_y_mint"`
	ReserveX   solana.PublicKey `json:"reserve_x"`
	ReserveY   solana.PublicKey `json:"reserve_y"`
}

// Mint returns the mint deposited on side.
func (p Pool) Mint(side Side) solana.PublicKey {
	if side == SideY {
		return p.TokenYMint
	}
	return p.TokenXMint
}

// Reserve returns the reserve vault receiving deposits on side.
func (p Pool) Reserve(side Side) solana.PublicKey {
	if side == SideY {
		return p.ReserveY
	}
	return p.ReserveX
}

// Position is a claim on the inclusive bin range [LowerBinID, UpperBinID].
type Position struct {
	Address    solana.PublicKey `json:"address"`
	LbPair     solana.PublicKey `json:"lb_pair"`
	Owner      solana.PublicKey `json:"owner"`
	LowerBinID int32            `json:"lower_bin_id"`
	UpperBinID int32            `json:"upper_bin_id"`
}

// Contains reports whether binID lies inside the position range.
func (p Position) Contains(binID int32) bool {
	return binID >= p.LowerBinID && binID <= p.UpperBinID
}

// Width is the number of bins covered by the position.
func (p Position) Width() int {
	if p.UpperBinID < p.LowerBinID {
		return 0
	}
	return int(int64(p.UpperBinID)-int64(p.LowerBinID)) + 1
}

// PositionObservation is what a reader saw in the position account. It is
// advisory; the engine holds the authoritative liquidity.
type PositionObservation struct {
	LiquidBins  []int32 `json:"liquid_bins"`
	FeesPending bool    `json:"fees_pending"`
}

// Drained reports whether no bin held liquidity when observed.
func (o PositionObservation) Drained() bool {
	return len(o.LiquidBins) == 0
}
