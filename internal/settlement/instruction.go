package settlement

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"binScope/internal/binarray"
	"binScope/internal/liquidity"
	"binScope/internal/model"
)

var (
	addLiquidityOneSideDisc = anchorDiscriminator("add_liquidity_one_side")
	removeLiquidityDisc     = anchorDiscriminator("remove_liquidity")
	removeAllLiquidityDisc  = anchorDiscriminator("remove_all_liquidity")
	closePositionDisc       = anchorDiscriminator("close_position")
)

func anchorDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// Program is the settlement engine identity. It is resolved once at startup.
type Program struct {
	ID             solana.PublicKey
	EventAuthority solana.PublicKey
}

// NewProgram derives the fixed accounts of the engine at id.
func NewProgram(id solana.PublicKey) (Program, error) {
	if id.IsZero() {
		return Program{}, fmt.Errorf("program id is required")
	}
	authority, err := binarray.EventAuthority(id)
	if err != nil {
		return Program{}, err
	}
	return Program{ID: id, EventAuthority: authority}, nil
}

// FundAccounts are the accounts of a single-sided deposit.
type FundAccounts struct {
	Position        solana.PublicKey
	LbPair          solana.PublicKey
	BitmapExtension *solana.PublicKey
	UserToken       solana.PublicKey
	Reserve         solana.PublicKey
	TokenMint       solana.PublicKey
	BinArrayLower   solana.PublicKey
	BinArrayUpper   solana.PublicKey
	Sender          solana.PublicKey
	TokenProgram    solana.PublicKey
}

// WithdrawAccounts are shared by selective and full withdrawals.
type WithdrawAccounts struct {
	Position        solana.PublicKey
	LbPair          solana.PublicKey
	BitmapExtension *solana.PublicKey
	UserTokenX      solana.PublicKey
	UserTokenY      solana.PublicKey
	ReserveX        solana.PublicKey
	ReserveY        solana.PublicKey
	TokenXMint      solana.PublicKey
	TokenYMint      solana.PublicKey
	BinArrayLower   solana.PublicKey
	BinArrayUpper   solana.PublicKey
	Sender          solana.PublicKey
	TokenXProgram   solana.PublicKey
	TokenYProgram   solana.PublicKey
}

// CloseAccounts are the accounts of close_position.
type CloseAccounts struct {
	Position      solana.PublicKey
	LbPair        solana.PublicKey
	BinArrayLower solana.PublicKey
	BinArrayUpper solana.PublicKey
	Sender        solana.PublicKey
	RentReceiver  solana.PublicKey
}

// AddLiquidityOneSide builds the deposit instruction for plan.
func (p Program) AddLiquidityOneSide(accts FundAccounts, plan liquidity.DepositPlan) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(addLiquidityOneSideDisc[:], false); err != nil {
		return nil, fmt.Errorf("write discriminator: %w", err)
	}
	if err := enc.WriteUint64(plan.Amount, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("encode amount: %w", err)
	}
	if err := enc.WriteInt32(plan.Slippage.ActiveID, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("encode active id: %w", err)
	}
	if err := enc.WriteInt32(plan.Slippage.MaxActiveBinSlippage, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("encode max active bin slippage: %w", err)
	}
	if err := enc.WriteUint32(uint32(len(plan.Bins)), binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("encode distribution length: %w", err)
	}
	for _, b := range plan.Bins {
		if err := enc.WriteInt32(b.BinID, binary.LittleEndian); err != nil {
			return nil, fmt.Errorf("encode bin %d: %w", b.BinID, err)
		}
		if err := enc.WriteUint16(b.Weight, binary.LittleEndian); err != nil {
			return nil, fmt.Errorf("encode weight of bin %d: %w", b.BinID, err)
		}
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.Position, true, false),
		solana.NewAccountMeta(accts.LbPair, true, false),
		p.optionalAccount(accts.BitmapExtension),
		solana.NewAccountMeta(accts.UserToken, true, false),
		solana.NewAccountMeta(accts.Reserve, true, false),
		solana.NewAccountMeta(accts.TokenMint, false, false),
		solana.NewAccountMeta(accts.BinArrayLower, true, false),
		solana.NewAccountMeta(accts.BinArrayUpper, true, false),
		solana.NewAccountMeta(accts.Sender, false, true),
		solana.NewAccountMeta(accts.TokenProgram, false, false),
		solana.NewAccountMeta(p.EventAuthority, false, false),
		solana.NewAccountMeta(p.ID, false, false),
	}
	return solana.NewInstruction(p.ID, accounts, buf.Bytes()), nil
}

// RemoveLiquidity builds the selective withdrawal instruction for plan.
func (p Program) RemoveLiquidity(accts WithdrawAccounts, plan liquidity.ReductionPlan) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(removeLiquidityDisc[:], false); err != nil {
		return nil, fmt.Errorf("write discriminator: %w", err)
	}
	if err := enc.WriteUint32(uint32(len(plan.Bins)), binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("encode reduction length: %w", err)
	}
	for _, b := range plan.Bins {
		if b.BpsToRemove < 0 || b.BpsToRemove > model.BasisPointMax {
			return nil, model.Violate(model.ErrBpsOutOfRange, "unvalidated reduction", b.BinID)
		}
		if err := enc.WriteInt32(b.BinID, binary.LittleEndian); err != nil {
			return nil, fmt.Errorf("encode bin %d: %w", b.BinID, err)
		}
		if err := enc.WriteUint16(uint16(b.BpsToRemove), binary.LittleEndian); err != nil {
			return nil, fmt.Errorf("encode bps of bin %d: %w", b.BinID, err)
		}
	}
	return solana.NewInstruction(p.ID, p.withdrawAccounts(accts), buf.Bytes()), nil
}

// RemoveAllLiquidity builds the full withdrawal instruction.
func (p Program) RemoveAllLiquidity(accts WithdrawAccounts) solana.Instruction {
	data := make([]byte, len(removeAllLiquidityDisc))
	copy(data, removeAllLiquidityDisc[:])
	return solana.NewInstruction(p.ID, p.withdrawAccounts(accts), data)
}

// ClosePosition builds the close instruction.
func (p Program) ClosePosition(accts CloseAccounts) solana.Instruction {
	data := make([]byte, len(closePositionDisc))
	copy(data, closePositionDisc[:])

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.Position, true, false),
		solana.NewAccountMeta(accts.LbPair, true, false),
		solana.NewAccountMeta(accts.BinArrayLower, true, false),
		solana.NewAccountMeta(accts.BinArrayUpper, true, false),
		solana.NewAccountMeta(accts.Sender, false, true),
		solana.NewAccountMeta(accts.RentReceiver, true, false),
		solana.NewAccountMeta(p.EventAuthority, false, false),
		solana.NewAccountMeta(p.ID, false, false),
	}
	return solana.NewInstruction(p.ID, accounts, data)
}

func (p Program) withdrawAccounts(accts WithdrawAccounts) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.Position, true, false),
		solana.NewAccountMeta(accts.LbPair, true, false),
		p.optionalAccount(accts.BitmapExtension),
		solana.NewAccountMeta(accts.UserTokenX, true, false),
		solana.NewAccountMeta(accts.UserTokenY, true, false),
		solana.NewAccountMeta(accts.ReserveX, true, false),
		solana.NewAccountMeta(accts.ReserveY, true, false),
		solana.NewAccountMeta(accts.TokenXMint, false, false),
		solana.NewAccountMeta(accts.TokenYMint, false, false),
		solana.NewAccountMeta(accts.BinArrayLower, true, false),
		solana.NewAccountMeta(accts.BinArrayUpper, true, false),
		solana.NewAccountMeta(accts.Sender, false, true),
		solana.NewAccountMeta(accts.TokenXProgram, false, false),
		solana.NewAccountMeta(accts.TokenYProgram, false, false),
		solana.NewAccountMeta(p.EventAuthority, false, false),
		solana.NewAccountMeta(p.ID, false, false),
	}
}

// optionalAccount encodes an absent Anchor optional account as the program id.
func (p Program) optionalAccount(key *solana.PublicKey) *solana.AccountMeta {
	if key == nil {
		return solana.NewAccountMeta(p.ID, false, false)
	}
	return solana.NewAccountMeta(*key, true, false)
}
