package settlement

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binScope/internal/liquidity"
	"binScope/internal/model"
)

var testProgramID = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func TestDiscriminatorMatchesAnchorConvention(t *testing.T) {
	sum := sha256.Sum256([]byte("global:remove_all_liquidity"))
	assert.Equal(t, sum[:8], removeAllLiquidityDisc[:])
}

func TestNewProgramRequiresID(t *testing.T) {
	_, err := NewProgram(solana.PublicKey{})
	require.Error(t, err)

	prog, err := NewProgram(testProgramID)
	require.NoError(t, err)
	assert.False(t, prog.EventAuthority.IsZero())
}

func TestAddLiquidityOneSideEncoding(t *testing.T) {
	prog, err := NewProgram(testProgramID)
	require.NoError(t, err)

	plan := liquidity.DepositPlan{
		Side:     model.SideX,
		Amount:   1_000_000,
		Slippage: model.SlippageBound{ActiveID: -110, MaxActiveBinSlippage: 3},
		Bins: []model.BinLiquidityDistributionWeight{
			{BinID: -100, Weight: 1},
			{BinID: -90, Weight: 2},
		},
		TotalWeight: 3,
	}
	accts := FundAccounts{
		Position:      newKey(),
		LbPair:        newKey(),
		UserToken:     newKey(),
		Reserve:       newKey(),
		TokenMint:     newKey(),
		BinArrayLower: newKey(),
		BinArrayUpper: newKey(),
		Sender:        newKey(),
		TokenProgram:  solana.TokenProgramID,
	}

	ix, err := prog.AddLiquidityOneSide(accts, plan)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+8+4+4+4+2*(4+2))

	assert.Equal(t, addLiquidityOneSideDisc[:], data[:8])
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, int32(-110), int32(binary.LittleEndian.Uint32(data[16:20])))
	assert.Equal(t, int32(3), int32(binary.LittleEndian.Uint32(data[20:24])))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, int32(-100), int32(binary.LittleEndian.Uint32(data[28:32])))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[32:34]))
	assert.Equal(t, int32(-90), int32(binary.LittleEndian.Uint32(data[34:38])))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(data[38:40]))

	metas := ix.Accounts()
	require.Len(t, metas, 12)
	assert.True(t, metas[2].PublicKey.Equals(testProgramID), "absent bitmap extension encodes as program id")
	assert.False(t, metas[2].IsWritable)
	assert.True(t, metas[8].IsSigner)
	assert.True(t, metas[10].PublicKey.Equals(prog.EventAuthority))
	assert.True(t, ix.ProgramID().Equals(testProgramID))
}

func TestRemoveLiquidityEncoding(t *testing.T) {
	prog, err := NewProgram(testProgramID)
	require.NoError(t, err)

	ext := newKey()
	accts := WithdrawAccounts{
		Position:        newKey(),
		LbPair:          newKey(),
		BitmapExtension: &ext,
		Sender:          newKey(),
	}
	plan := liquidity.ReductionPlan{Bins: []model.BinLiquidityReduction{{BinID: 105, BpsToRemove: 10000}}}

	ix, err := prog.RemoveLiquidity(accts, plan)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+4+6)
	assert.Equal(t, removeLiquidityDisc[:], data[:8])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[8:12]))
	assert.Equal(t, int32(105), int32(binary.LittleEndian.Uint32(data[12:16])))
	assert.Equal(t, uint16(10000), binary.LittleEndian.Uint16(data[16:18]))

	metas := ix.Accounts()
	require.Len(t, metas, 16)
	assert.True(t, metas[2].PublicKey.Equals(ext))
	assert.True(t, metas[2].IsWritable)
	assert.True(t, metas[11].IsSigner)
}

func TestRemoveLiquidityRefusesUnvalidatedBps(t *testing.T) {
	prog, err := NewProgram(testProgramID)
	require.NoError(t, err)

	_, err = prog.RemoveLiquidity(WithdrawAccounts{}, liquidity.ReductionPlan{
		Bins: []model.BinLiquidityReduction{{BinID: 1, BpsToRemove: 70000}},
	})
	assert.ErrorIs(t, err, model.ErrBpsOutOfRange)
}

func TestCloseAndRemoveAllCarryOnlyDiscriminator(t *testing.T) {
	prog, err := NewProgram(testProgramID)
	require.NoError(t, err)

	closeIx := prog.ClosePosition(CloseAccounts{Position: newKey(), Sender: newKey(), RentReceiver: newKey()})
	data, err := closeIx.Data()
	require.NoError(t, err)
	assert.Equal(t, closePositionDisc[:], data)
	assert.Len(t, closeIx.Accounts(), 8)

	removeIx := prog.RemoveAllLiquidity(WithdrawAccounts{})
	data, err = removeIx.Data()
	require.NoError(t, err)
	assert.Equal(t, removeAllLiquidityDisc[:], data)
}
