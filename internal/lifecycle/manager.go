package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"binScope/internal/binarray"
	"binScope/internal/liquidity"
	"binScope/internal/model"
	"binScope/internal/settlement"
	"binScope/internal/storage"
)

// Observer reads the current state of a position account.
type Observer interface {
	ObservePosition(ctx context.Context, position solana.PublicKey) (*model.PositionObservation, error)
}

// FundRequest is a single-sided deposit.
type FundRequest struct {
	Position     model.Position
	Pool         model.Pool
	Signer       solana.PublicKey
	Side         model.Side
	Amount       uint64
	Slippage     model.SlippageBound
	Distribution []model.BinLiquidityDistributionWeight
	UserToken    solana.PublicKey
	TokenProgram solana.PublicKey
	Supplied     Supplied
	Observation  *model.PositionObservation
}

// WithdrawRequest serves both the selective and the full withdrawal. The
// reduction table is ignored by remove_all except for validation.
type WithdrawRequest struct {
	Position        model.Position
	Pool            model.Pool
	Signer          solana.PublicKey
	Reductions      []model.BinLiquidityReduction
	AssertFullDrain bool
	UserTokenX      solana.PublicKey
	UserTokenY      solana.PublicKey
	TokenXProgram   solana.PublicKey
	TokenYProgram   solana.PublicKey
	Supplied        Supplied
	Observation     *model.PositionObservation
}

type CloseRequest struct {
	Position     model.Position
	Pool         model.Pool
	Signer       solana.PublicKey
	RentReceiver solana.PublicKey
	Supplied     Supplied
	Observation  *model.PositionObservation
}

// Prepared is a validated operation ready for hand-off.
type Prepared struct {
	Call      settlement.Call
	Owner     solana.PublicKey
	From      State
	To        State
	Shards    binarray.Shards
	BinIDs    []int32
	Side      string
	Amount    uint64
	Shares    []liquidity.BinShare
	Anomalies []int32
}

// Result is the outcome of a handed-off operation.
type Result struct {
	Prepared Prepared
	Receipt  settlement.Receipt
	State    State
}

// Manager gates position operations and hands admitted ones to the engine.
// It holds no per-position state; every call is validated from its inputs.
type Manager struct {
	program  settlement.Program
	resolver *binarray.Resolver
	invoker  settlement.Invoker
	journal  storage.Journal
	logger   *zap.Logger
	now      func() time.Time
}

func NewManager(program settlement.Program, invoker settlement.Invoker, journal storage.Journal, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if journal == nil {
		journal = storage.Discard{}
	}
	return &Manager{
		program:  program,
		resolver: binarray.NewResolver(program.ID),
		invoker:  invoker,
		journal:  journal,
		logger:   logger,
		now:      time.Now,
	}
}

// PrepareFund validates a deposit and builds its instruction.
func (m *Manager) PrepareFund(req FundRequest) (Prepared, error) {
	if err := checkPosition(req.Position, req.Pool, req.Signer); err != nil {
		return Prepared{}, err
	}
	if err := checkKey("token_mint", req.Supplied.TokenMint, req.Pool.Mint(req.Side)); err != nil {
		return Prepared{}, err
	}
	if err := checkKey("reserve", req.Supplied.Reserve, req.Pool.Reserve(req.Side)); err != nil {
		return Prepared{}, err
	}

	plan, err := liquidity.Normalize(req.Position, req.Side, req.Amount, req.Slippage, req.Distribution)
	if err != nil {
		return Prepared{}, err
	}

	from := Observe(model.OpFundOneSide, req.Observation)
	to, err := Transition(from, model.OpFundOneSide, false)
	if err != nil {
		return Prepared{}, err
	}

	shards, ext, err := m.accounts(req.Position, req.Pool, req.Supplied, append(plan.BinIDs(), req.Slippage.ActiveID)...)
	if err != nil {
		return Prepared{}, err
	}
	if req.UserToken.IsZero() {
		return Prepared{}, fmt.Errorf("user token account is required")
	}
	if req.TokenProgram.IsZero() {
		return Prepared{}, fmt.Errorf("token program is required")
	}

	ix, err := m.program.AddLiquidityOneSide(settlement.FundAccounts{
		Position:        req.Position.Address,
		LbPair:          req.Pool.Address,
		BitmapExtension: ext,
		UserToken:       req.UserToken,
		Reserve:         req.Pool.Reserve(req.Side),
		TokenMint:       req.Pool.Mint(req.Side),
		BinArrayLower:   shards.Lower,
		BinArrayUpper:   shards.Upper,
		Sender:          req.Signer,
		TokenProgram:    req.TokenProgram,
	}, plan)
	if err != nil {
		return Prepared{}, err
	}

	return Prepared{
		Call:   settlement.Call{Operation: model.OpFundOneSide, Position: req.Position.Address, LbPair: req.Pool.Address, Instruction: ix},
		Owner:  req.Signer,
		From:   from,
		To:     to,
		Shards: shards,
		BinIDs: plan.BinIDs(),
		Side:   req.Side.String(),
		Amount: req.Amount,
		Shares: plan.Shares(),
	}, nil
}

// PrepareRemoveSelective validates a partial withdrawal. The position only
// counts as drained when every listed bin is removed at full bps and either
// the caller asserts it or the observation shows no other liquid bin.
func (m *Manager) PrepareRemoveSelective(req WithdrawRequest) (Prepared, error) {
	accts, err := m.withdrawPreamble(req)
	if err != nil {
		return Prepared{}, err
	}
	plan, err := liquidity.ValidateReduction(req.Position, req.Reductions, liquidity.Selective)
	if err != nil {
		return Prepared{}, err
	}

	fullDrain := plan.RemovesFully() && (req.AssertFullDrain || coversLiquidBins(plan, req.Observation))
	from := Observe(model.OpRemoveSelective, req.Observation)
	to, err := Transition(from, model.OpRemoveSelective, fullDrain)
	if err != nil {
		return Prepared{}, err
	}

	shards, ext, err := m.accounts(req.Position, req.Pool, req.Supplied, append(plan.BinIDs(), req.Pool.ActiveID)...)
	if err != nil {
		return Prepared{}, err
	}
	accts.BitmapExtension = ext
	accts.BinArrayLower = shards.Lower
	accts.BinArrayUpper = shards.Upper

	ix, err := m.program.RemoveLiquidity(accts, plan)
	if err != nil {
		return Prepared{}, err
	}

	return Prepared{
		Call:      settlement.Call{Operation: model.OpRemoveSelective, Position: req.Position.Address, LbPair: req.Pool.Address, Instruction: ix},
		Owner:     req.Signer,
		From:      from,
		To:        to,
		Shards:    shards,
		BinIDs:    plan.BinIDs(),
		Anomalies: plan.ZeroBps,
	}, nil
}

// PrepareRemoveAll validates a full withdrawal. It is accepted from Empty so
// repeating it only re-checks identities.
func (m *Manager) PrepareRemoveAll(req WithdrawRequest) (Prepared, error) {
	accts, err := m.withdrawPreamble(req)
	if err != nil {
		return Prepared{}, err
	}
	plan, err := liquidity.ValidateReduction(req.Position, req.Reductions, liquidity.AllBins)
	if err != nil {
		return Prepared{}, err
	}

	from := Observe(model.OpRemoveAll, req.Observation)
	to, err := Transition(from, model.OpRemoveAll, true)
	if err != nil {
		return Prepared{}, err
	}

	shards, ext, err := m.accounts(req.Position, req.Pool, req.Supplied, req.Pool.ActiveID)
	if err != nil {
		return Prepared{}, err
	}
	accts.BitmapExtension = ext
	accts.BinArrayLower = shards.Lower
	accts.BinArrayUpper = shards.Upper

	return Prepared{
		Call:      settlement.Call{Operation: model.OpRemoveAll, Position: req.Position.Address, LbPair: req.Pool.Address, Instruction: m.program.RemoveAllLiquidity(accts)},
		Owner:     req.Signer,
		From:      from,
		To:        to,
		Shards:    shards,
		Anomalies: plan.ZeroBps,
	}, nil
}

// PrepareClose validates a close. Identity is checked before any liquidity
// rule so a mismatched position is rejected whatever it holds.
func (m *Manager) PrepareClose(req CloseRequest) (Prepared, error) {
	if err := checkPosition(req.Position, req.Pool, req.Signer); err != nil {
		return Prepared{}, err
	}
	shards, err := m.resolver.Resolve(req.Pool.Address, req.Position.LowerBinID, req.Position.UpperBinID)
	if err != nil {
		return Prepared{}, fmt.Errorf("resolve bin arrays: %w", err)
	}
	if err := checkShards(req.Supplied, shards); err != nil {
		return Prepared{}, err
	}

	if req.Observation != nil && req.Observation.FeesPending {
		return Prepared{}, model.Violate(model.ErrPositionNotEmpty, "position has unclaimed fees")
	}
	from := Observe(model.OpClose, req.Observation)
	to, err := Transition(from, model.OpClose, false)
	if err != nil {
		if req.Observation != nil {
			return Prepared{}, withBins(err, req.Observation.LiquidBins)
		}
		return Prepared{}, err
	}

	rentReceiver := req.RentReceiver
	if rentReceiver.IsZero() {
		rentReceiver = req.Signer
	}
	ix := m.program.ClosePosition(settlement.CloseAccounts{
		Position:      req.Position.Address,
		LbPair:        req.Pool.Address,
		BinArrayLower: shards.Lower,
		BinArrayUpper: shards.Upper,
		Sender:        req.Signer,
		RentReceiver:  rentReceiver,
	})

	return Prepared{
		Call:   settlement.Call{Operation: model.OpClose, Position: req.Position.Address, LbPair: req.Pool.Address, Instruction: ix},
		Owner:  req.Signer,
		From:   from,
		To:     to,
		Shards: shards,
	}, nil
}

// Fund validates and hands off a deposit.
func (m *Manager) Fund(ctx context.Context, req FundRequest) (Result, error) {
	prepared, err := m.PrepareFund(req)
	if err != nil {
		return Result{}, m.reject(ctx, model.OpFundOneSide, req.Position, req.Signer, err)
	}
	return m.Execute(ctx, prepared)
}

// RemoveSelective validates and hands off a partial withdrawal.
func (m *Manager) RemoveSelective(ctx context.Context, req WithdrawRequest) (Result, error) {
	prepared, err := m.PrepareRemoveSelective(req)
	if err != nil {
		return Result{}, m.reject(ctx, model.OpRemoveSelective, req.Position, req.Signer, err)
	}
	return m.Execute(ctx, prepared)
}

// RemoveAll validates and hands off a full withdrawal.
func (m *Manager) RemoveAll(ctx context.Context, req WithdrawRequest) (Result, error) {
	prepared, err := m.PrepareRemoveAll(req)
	if err != nil {
		return Result{}, m.reject(ctx, model.OpRemoveAll, req.Position, req.Signer, err)
	}
	return m.Execute(ctx, prepared)
}

// Close validates and hands off a close.
func (m *Manager) Close(ctx context.Context, req CloseRequest) (Result, error) {
	prepared, err := m.PrepareClose(req)
	if err != nil {
		return Result{}, m.reject(ctx, model.OpClose, req.Position, req.Signer, err)
	}
	return m.Execute(ctx, prepared)
}

// Exit drains the position and then closes it as two separate hand-offs. It
// stops at the first failure. When observer is set the close is validated
// against a fresh read of the position.
func (m *Manager) Exit(ctx context.Context, withdraw WithdrawRequest, closeReq CloseRequest, observer Observer) ([]Result, error) {
	results := make([]Result, 0, 2)
	drained, err := m.RemoveAll(ctx, withdraw)
	if err != nil {
		return results, err
	}
	results = append(results, drained)

	if observer != nil && !drained.Receipt.DryRun {
		obs, err := observer.ObservePosition(ctx, closeReq.Position.Address)
		if err != nil {
			return results, fmt.Errorf("observe position after withdrawal: %w", err)
		}
		closeReq.Observation = obs
	} else {
		closeReq.Observation = nil
	}

	closed, err := m.Close(ctx, closeReq)
	if err != nil {
		return results, err
	}
	return append(results, closed), nil
}

// Execute hands a prepared operation to the engine and journals the outcome.
// A failed hand-off leaves the position in its starting state.
func (m *Manager) Execute(ctx context.Context, p Prepared) (Result, error) {
	if m.invoker == nil {
		return Result{}, fmt.Errorf("settlement invoker is nil")
	}
	for _, id := range p.Anomalies {
		m.logger.Warn("reduction removes nothing",
			zap.String("operation", p.Call.Operation),
			zap.String("position", p.Call.Position.String()),
			zap.Int32("bin_id", id),
		)
	}
	m.logger.Info("hand-off start",
		zap.String("operation", p.Call.Operation),
		zap.String("position", p.Call.Position.String()),
		zap.Stringer("from", p.From),
		zap.Stringer("state", InFlight(p.From, p.Call.Operation)),
		zap.Int64("lower_shard", p.Shards.LowerIndex),
		zap.Int64("upper_shard", p.Shards.UpperIndex),
		zap.Int("bins", len(p.BinIDs)),
	)

	receipt, err := m.invoker.Invoke(ctx, p.Call)
	if err != nil {
		m.logger.Error("hand-off failed", zap.String("operation", p.Call.Operation), zap.Error(err))
		m.write(ctx, m.record(p, p.From, receipt, model.StatusFailed, err))
		return Result{Prepared: p, Receipt: receipt, State: p.From}, err
	}

	status := model.StatusLanded
	if receipt.DryRun {
		status = model.StatusDryRun
	}
	m.logger.Info("hand-off complete",
		zap.String("operation", p.Call.Operation),
		zap.String("position", p.Call.Position.String()),
		zap.Stringer("state", p.To),
		zap.String("status", status),
	)
	m.write(ctx, m.record(p, p.To, receipt, status, nil))
	return Result{Prepared: p, Receipt: receipt, State: p.To}, nil
}

func (m *Manager) withdrawPreamble(req WithdrawRequest) (settlement.WithdrawAccounts, error) {
	if err := checkPosition(req.Position, req.Pool, req.Signer); err != nil {
		return settlement.WithdrawAccounts{}, err
	}
	checks := []struct {
		field         string
		supplied, key solana.PublicKey
	}{
		{"token_x_mint", req.Supplied.TokenXMint, req.Pool.TokenXMint},
		{"token_y_mint", req.Supplied.TokenYMint, req.Pool.TokenYMint},
		{"reserve_x", req.Supplied.ReserveX, req.Pool.ReserveX},
		{"reserve_y", req.Supplied.ReserveY, req.Pool.ReserveY},
	}
	for _, c := range checks {
		if err := checkKey(c.field, c.supplied, c.key); err != nil {
			return settlement.WithdrawAccounts{}, err
		}
	}
	if req.UserTokenX.IsZero() || req.UserTokenY.IsZero() {
		return settlement.WithdrawAccounts{}, fmt.Errorf("user token accounts for both sides are required")
	}
	if req.TokenXProgram.IsZero() || req.TokenYProgram.IsZero() {
		return settlement.WithdrawAccounts{}, fmt.Errorf("token programs for both sides are required")
	}
	return settlement.WithdrawAccounts{
		Position:      req.Position.Address,
		LbPair:        req.Pool.Address,
		UserTokenX:    req.UserTokenX,
		UserTokenY:    req.UserTokenY,
		ReserveX:      req.Pool.ReserveX,
		ReserveY:      req.Pool.ReserveY,
		TokenXMint:    req.Pool.TokenXMint,
		TokenYMint:    req.Pool.TokenYMint,
		Sender:        req.Signer,
		TokenXProgram: req.TokenXProgram,
		TokenYProgram: req.TokenYProgram,
	}, nil
}

// accounts derives and cross-checks the shard pair and the optional bitmap
// extension. The extension predicate covers the position bounds and extra.
func (m *Manager) accounts(position model.Position, pool model.Pool, supplied Supplied, extra ...int32) (binarray.Shards, *solana.PublicKey, error) {
	shards, err := m.resolver.Resolve(pool.Address, position.LowerBinID, position.UpperBinID)
	if err != nil {
		return binarray.Shards{}, nil, fmt.Errorf("resolve bin arrays: %w", err)
	}
	if err := checkShards(supplied, shards); err != nil {
		return binarray.Shards{}, nil, err
	}
	ids := append([]int32{position.LowerBinID, position.UpperBinID}, extra...)
	ext, err := m.resolver.BitmapExtensionFor(pool.Address, ids...)
	if err != nil {
		return binarray.Shards{}, nil, fmt.Errorf("resolve bitmap extension: %w", err)
	}
	if err := checkBitmapExtension(supplied.BitmapExtension, ext); err != nil {
		return binarray.Shards{}, nil, err
	}
	return shards, ext, nil
}

func coversLiquidBins(plan liquidity.ReductionPlan, obs *model.PositionObservation) bool {
	if obs == nil {
		return false
	}
	listed := make(map[int32]struct{}, len(plan.Bins))
	for _, b := range plan.Bins {
		listed[b.BinID] = struct{}{}
	}
	for _, id := range obs.LiquidBins {
		if _, ok := listed[id]; !ok {
			return false
		}
	}
	return true
}

// withBins attaches the observed liquid bins to a not-empty rejection.
func withBins(err error, bins []int32) error {
	v, ok := err.(*model.Violation)
	if !ok || len(v.BinIDs) > 0 || len(bins) == 0 {
		return err
	}
	out := *v
	out.BinIDs = append([]int32(nil), bins...)
	return &out
}

func (m *Manager) reject(ctx context.Context, op string, position model.Position, signer solana.PublicKey, err error) error {
	m.logger.Warn("operation rejected",
		zap.String("operation", op),
		zap.String("position", position.Address.String()),
		zap.Error(err),
	)
	m.write(ctx, model.OperationRecord{
		ID:        uuid.NewString(),
		Operation: op,
		Position:  position.Address.String(),
		LbPair:    position.LbPair.String(),
		Owner:     signer.String(),
		Status:    model.StatusRejected,
		Error:     err.Error(),
		CreatedAt: m.now().UTC().Format(time.RFC3339Nano),
	})
	return err
}

func (m *Manager) record(p Prepared, to State, receipt settlement.Receipt, status string, err error) model.OperationRecord {
	rec := model.OperationRecord{
		ID:         uuid.NewString(),
		Operation:  p.Call.Operation,
		Position:   p.Call.Position.String(),
		LbPair:     p.Call.LbPair.String(),
		Owner:      p.Owner.String(),
		Side:       p.Side,
		Amount:     p.Amount,
		BinIDs:     p.BinIDs,
		LowerShard: p.Shards.LowerIndex,
		UpperShard: p.Shards.UpperIndex,
		FromState:  p.From.String(),
		ToState:    to.String(),
		Status:     status,
		CreatedAt:  m.now().UTC().Format(time.RFC3339Nano),
	}
	if receipt.Signature != (solana.Signature{}) {
		rec.Signature = receipt.Signature.String()
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// write journals a record. Journal failures are logged and never change the
// outcome of the operation.
func (m *Manager) write(ctx context.Context, rec model.OperationRecord) {
	if err := m.journal.PutOperationBatch(ctx, []model.OperationRecord{rec}); err != nil {
		m.logger.Warn("journal write failed", zap.String("id", rec.ID), zap.Error(err))
	}
}
