package chain

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"binScope/internal/model"
)

// PositionV2 stores a fixed window of bins.
const positionBins = 70

var (
	lbPairDiscriminator     = accountDiscriminator("LbPair")
	positionV2Discriminator = accountDiscriminator("PositionV2")
)

func accountDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// lbPairLayout is the leading part of the LbPair account. Fields after the
// reserves are not read.
type lbPairLayout struct {
	Discriminator           [8]byte
	StaticParameters        [32]byte
	VariableParameters      [32]byte
	BumpSeed                [1]byte
	BinStepSeed             [2]byte
	PairType                uint8
	ActiveID                int32
	BinStep                 uint16
	Status                  uint8
	RequireBaseFactorSeed   uint8
	BaseFactorSeed          [2]byte
	ActivationType          uint8
	CreatorPoolOnOffControl uint8
	TokenXMint              solana.PublicKey
	TokenYMint              solana.PublicKey
	ReserveX                solana.PublicKey
	ReserveY                solana.PublicKey
}

type feeInfoLayout struct {
	FeeXPerTokenComplete [16]byte
	FeeYPerTokenComplete [16]byte
	FeeXPending          uint64
	FeeYPending          uint64
}

type positionV2Layout struct {
	Discriminator   [8]byte
	LbPair          solana.PublicKey
	Owner           solana.PublicKey
	LiquidityShares [positionBins][16]byte
	RewardInfos     [positionBins][48]byte
	FeeInfos        [positionBins]feeInfoLayout
	LowerBinID      int32
	UpperBinID      int32
}

// DecodePool decodes an LbPair account at address.
func DecodePool(address solana.PublicKey, data []byte) (model.Pool, error) {
	var raw lbPairLayout
	if err := bin.NewBorshDecoder(data).Decode(&raw); err != nil {
		return model.Pool{}, fmt.Errorf("decode lb pair %s: %w", address, err)
	}
	if !bytes.Equal(raw.Discriminator[:], lbPairDiscriminator[:]) {
		return model.Pool{}, fmt.Errorf("account %s is not an lb pair", address)
	}
	return model.Pool{
		Address:    address,
		ActiveID:   raw.ActiveID,
		BinStep:    raw.BinStep,
		TokenXMint: raw.TokenXMint,
		TokenYMint: raw.TokenYMint,
		ReserveX:   raw.ReserveX,
		ReserveY:   raw.ReserveY,
	}, nil
}

// DecodePosition decodes a PositionV2 account and the liquidity it held.
func DecodePosition(address solana.PublicKey, data []byte) (model.Position, model.PositionObservation, error) {
	var raw positionV2Layout
	if err := bin.NewBorshDecoder(data).Decode(&raw); err != nil {
		return model.Position{}, model.PositionObservation{}, fmt.Errorf("decode position %s: %w", address, err)
	}
	if !bytes.Equal(raw.Discriminator[:], positionV2Discriminator[:]) {
		return model.Position{}, model.PositionObservation{}, fmt.Errorf("account %s is not a position", address)
	}

	position := model.Position{
		Address:    address,
		LbPair:     raw.LbPair,
		Owner:      raw.Owner,
		LowerBinID: raw.LowerBinID,
		UpperBinID: raw.UpperBinID,
	}

	width := position.Width()
	if width > positionBins {
		width = positionBins
	}
	var obs model.PositionObservation
	for i := 0; i < width; i++ {
		if !uint128.FromBytes(raw.LiquidityShares[i][:]).IsZero() {
			obs.LiquidBins = append(obs.LiquidBins, position.LowerBinID+int32(i))
		}
		fee := raw.FeeInfos[i]
		if fee.FeeXPending > 0 || fee.FeeYPending > 0 {
			obs.FeesPending = true
		}
	}
	return position, obs, nil
}
