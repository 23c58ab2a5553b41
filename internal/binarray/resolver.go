package binarray

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	// BinsPerArray is the number of bins stored in one bin array account.
	BinsPerArray = 70
	// BitmapRange is the largest |bin id| covered by the pool's inline bitmap.
	BitmapRange = 512
)

var (
	binArraySeed       = []byte("bin_array")
	bitmapSeed         = []byte("bitmap")
	eventAuthoritySeed = []byte("__event_authority")
)

// Index returns the bin array holding binID, rounding toward negative infinity.
func Index(binID int32) int64 {
	q := int64(binID) / BinsPerArray
	if binID < 0 && int64(binID)%BinsPerArray != 0 {
		q--
	}
	return q
}

// Range returns the arrays holding lower and upper. Equal indices are normal
// for narrow positions.
func Range(lower, upper int32) (int64, int64) {
	return Index(lower), Index(upper)
}

// Address derives the bin array PDA for index in lbPair.
func Address(programID, lbPair solana.PublicKey, index int64) (solana.PublicKey, error) {
	idx := make([]byte, 8)
	binary.LittleEndian.PutUint64(idx, uint64(index))
	addr, _, err := solana.FindProgramAddress([][]byte{binArraySeed, lbPair.Bytes(), idx}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive bin array %d: %w", index, err)
	}
	return addr, nil
}

// BitmapExtension derives the bitmap extension PDA of lbPair.
func BitmapExtension(programID, lbPair solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{bitmapSeed, lbPair.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive bitmap extension: %w", err)
	}
	return addr, nil
}

// EventAuthority derives the event CPI authority of the program.
func EventAuthority(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{eventAuthoritySeed}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive event authority: %w", err)
	}
	return addr, nil
}

// NeedsBitmapExtension reports whether any bin lies beyond the inline bitmap.
func NeedsBitmapExtension(binIDs ...int32) bool {
	for _, id := range binIDs {
		if id > BitmapRange || id < -BitmapRange {
			return true
		}
	}
	return false
}

// Shards are the two bin array references a position operation must carry.
type Shards struct {
	LowerIndex int64
	UpperIndex int64
	Lower      solana.PublicKey
	Upper      solana.PublicKey
}

// Same reports whether both references denote one account.
func (s Shards) Same() bool {
	return s.LowerIndex == s.UpperIndex
}

// Resolver derives storage addresses for one program.
type Resolver struct {
	programID solana.PublicKey
}

func NewResolver(programID solana.PublicKey) *Resolver {
	return &Resolver{programID: programID}
}

// ProgramID returns the program the resolver derives for.
func (r *Resolver) ProgramID() solana.PublicKey {
	return r.programID
}

// Resolve returns the lower and upper bin arrays for [lower, upper] in lbPair.
func (r *Resolver) Resolve(lbPair solana.PublicKey, lower, upper int32) (Shards, error) {
	lowerIdx, upperIdx := Range(lower, upper)
	lowerAddr, err := Address(r.programID, lbPair, lowerIdx)
	if err != nil {
		return Shards{}, err
	}
	upperAddr := lowerAddr
	if upperIdx != lowerIdx {
		upperAddr, err = Address(r.programID, lbPair, upperIdx)
		if err != nil {
			return Shards{}, err
		}
	}
	return Shards{
		LowerIndex: lowerIdx,
		UpperIndex: upperIdx,
		Lower:      lowerAddr,
		Upper:      upperAddr,
	}, nil
}

// BitmapExtensionFor returns the extension account when any of binIDs needs it.
func (r *Resolver) BitmapExtensionFor(lbPair solana.PublicKey, binIDs ...int32) (*solana.PublicKey, error) {
	if !NeedsBitmapExtension(binIDs...) {
		return nil, nil
	}
	addr, err := BitmapExtension(r.programID, lbPair)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// EventAuthority derives the event authority for the resolver's program.
func (r *Resolver) EventAuthority() (solana.PublicKey, error) {
	return EventAuthority(r.programID)
}
