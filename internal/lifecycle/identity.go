package lifecycle

import (
	"github.com/gagliardetto/solana-go"

	"binScope/internal/binarray"
	"binScope/internal/model"
)

// Supplied holds account references a caller passed explicitly. Zero values
// mean "derive it"; non-zero values are cross-checked before hand-off.
type Supplied struct {
	BinArrayLower   solana.PublicKey
	BinArrayUpper   solana.PublicKey
	BitmapExtension *solana.PublicKey
	Reserve         solana.PublicKey
	TokenMint       solana.PublicKey
	ReserveX        solana.PublicKey
	ReserveY        solana.PublicKey
	TokenXMint      solana.PublicKey
	TokenYMint      solana.PublicKey
}

func checkPosition(position model.Position, pool model.Pool, signer solana.PublicKey) error {
	if position.Address.IsZero() {
		return model.Violate(model.ErrPositionIdentityMismatch, "position address is required")
	}
	if position.LowerBinID > position.UpperBinID {
		return model.Violate(model.ErrPositionIdentityMismatch, "position lower bin above upper bin",
			position.LowerBinID, position.UpperBinID)
	}
	if !position.LbPair.Equals(pool.Address) {
		return model.IdentityMismatch("position.lb_pair", position.LbPair, pool.Address)
	}
	if !position.Owner.Equals(signer) {
		return model.IdentityMismatch("position.owner", position.Owner, signer)
	}
	return nil
}

func checkShards(supplied Supplied, shards binarray.Shards) error {
	if !supplied.BinArrayLower.IsZero() && !supplied.BinArrayLower.Equals(shards.Lower) {
		return model.IdentityMismatch("bin_array_lower", shards.Lower, supplied.BinArrayLower)
	}
	if !supplied.BinArrayUpper.IsZero() && !supplied.BinArrayUpper.Equals(shards.Upper) {
		return model.IdentityMismatch("bin_array_upper", shards.Upper, supplied.BinArrayUpper)
	}
	return nil
}

// checkBitmapExtension requires the supplied extension to match the derived
// one, and rejects an extension the range does not need.
func checkBitmapExtension(supplied, derived *solana.PublicKey) error {
	if supplied == nil {
		return nil
	}
	if derived == nil {
		return model.Violate(model.ErrPositionIdentityMismatch, "bitmap extension supplied but no bin exceeds the inline bitmap")
	}
	if !supplied.Equals(*derived) {
		return model.IdentityMismatch("bin_array_bitmap_extension", *derived, *supplied)
	}
	return nil
}

func checkKey(field string, supplied, want solana.PublicKey) error {
	if want.IsZero() {
		return model.Violate(model.ErrPositionIdentityMismatch, field+" unknown for pool")
	}
	if !supplied.IsZero() && !supplied.Equals(want) {
		return model.IdentityMismatch(field, want, supplied)
	}
	return nil
}
