package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"binScope/internal/model"
)

// The engine rejects closing a funded position with NonEmptyPosition, custom
// error 6030. Preflight reports the name in its logs; a landed transaction
// only carries the code.
const (
	nonEmptyPositionName = "NonEmptyPosition"
	nonEmptyPositionCode = 6030
)

// defaultTimeout bounds confirmation when no timeout is configured.
const defaultTimeout = 2 * time.Minute

var errBlockhashExpired = errors.New("blockhash expired before confirmation")

// TransactionError is a transaction that landed with an error status.
type TransactionError struct {
	Signature solana.Signature
	Err       interface{}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// CustomCode returns the program's custom error code, if the status carries
// one in the {"InstructionError":[idx,{"Custom":N}]} shape.
func (e *TransactionError) CustomCode() (int64, bool) {
	m, ok := e.Err.(map[string]interface{})
	if !ok {
		return 0, false
	}
	pair, ok := m["InstructionError"].([]interface{})
	if !ok || len(pair) != 2 {
		return 0, false
	}
	inner, ok := pair[1].(map[string]interface{})
	if !ok {
		return 0, false
	}
	return toInt64(inner["Custom"])
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Call is one atomic hand-off: exactly one engine instruction.
type Call struct {
	Operation   string
	Position    solana.PublicKey
	LbPair      solana.PublicKey
	Instruction solana.Instruction
}

// Receipt describes a landed (or simulated) hand-off.
type Receipt struct {
	Signature solana.Signature
	DryRun    bool
}

// Invoker hands a validated call to the settlement engine.
type Invoker interface {
	Invoke(ctx context.Context, call Call) (Receipt, error)
}

// RPC is the subset of *rpc.Client used for submission.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

var _ RPC = (*rpc.Client)(nil)

// InvokerConfig controls transaction submission.
type InvokerConfig struct {
	Commitment       rpc.CommitmentType
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
	SkipPreflight    bool
	Timeout          time.Duration
	PollInterval     time.Duration
}

// RPCInvoker signs and submits each call as its own transaction. It never
// resubmits: a failed hand-off is returned to the caller, who must
// re-validate against fresh pool state before trying again.
type RPCInvoker struct {
	cfg    InvokerConfig
	rpc    RPC
	signer solana.PrivateKey
	logger *zap.Logger
}

func NewRPCInvoker(cfg InvokerConfig, client RPC, signer solana.PrivateKey, logger *zap.Logger) *RPCInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 700 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &RPCInvoker{cfg: cfg, rpc: client, signer: signer, logger: logger}
}

// Invoke submits call and waits for confirmation.
func (i *RPCInvoker) Invoke(ctx context.Context, call Call) (Receipt, error) {
	if i.rpc == nil {
		return Receipt{}, fmt.Errorf("rpc client is nil")
	}
	if call.Instruction == nil {
		return Receipt{}, fmt.Errorf("%s: instruction is nil", call.Operation)
	}
	ctx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	instructions, err := i.withComputeBudget(call.Instruction)
	if err != nil {
		return Receipt{}, err
	}

	recent, err := i.rpc.GetLatestBlockhash(ctx, i.cfg.Commitment)
	if err != nil {
		return Receipt{}, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(i.signer.PublicKey()))
	if err != nil {
		return Receipt{}, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if i.signer.PublicKey().Equals(key) {
			return &i.signer
		}
		return nil
	}); err != nil {
		return Receipt{}, fmt.Errorf("sign transaction: %w", err)
	}

	i.logger.Info("hand-off submit",
		zap.String("operation", call.Operation),
		zap.String("position", call.Position.String()),
		zap.String("lb_pair", call.LbPair.String()),
	)

	sig, err := i.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       i.cfg.SkipPreflight,
		PreflightCommitment: i.cfg.Commitment,
	})
	if err != nil {
		return Receipt{}, settlementFailure(call.Operation, err)
	}

	if err := i.waitForConfirmation(ctx, sig, recent.Value.LastValidBlockHeight); err != nil {
		return Receipt{Signature: sig}, settlementFailure(call.Operation, err)
	}

	i.logger.Info("hand-off landed", zap.String("operation", call.Operation), zap.String("signature", sig.String()))
	return Receipt{Signature: sig}, nil
}

func (i *RPCInvoker) withComputeBudget(ix solana.Instruction) ([]solana.Instruction, error) {
	instructions := make([]solana.Instruction, 0, 3)
	if i.cfg.ComputeUnitLimit > 0 {
		limitIx, err := computebudget.NewSetComputeUnitLimitInstruction(i.cfg.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit limit instruction: %w", err)
		}
		instructions = append(instructions, limitIx)
	}
	if i.cfg.ComputeUnitPrice > 0 {
		priceIx, err := computebudget.NewSetComputeUnitPriceInstruction(i.cfg.ComputeUnitPrice).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit price instruction: %w", err)
		}
		instructions = append(instructions, priceIx)
	}
	return append(instructions, ix), nil
}

// waitForConfirmation polls until sig is confirmed, fails, or can no longer
// land because the chain has passed lastValid.
func (i *RPCInvoker) waitForConfirmation(ctx context.Context, sig solana.Signature, lastValid uint64) error {
	ticker := time.NewTicker(i.cfg.PollInterval)
	defer ticker.Stop()

	expired := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := i.confirmed(ctx, sig)
			if done || err != nil {
				return err
			}
			if expired {
				return fmt.Errorf("transaction %s: %w", sig, errBlockhashExpired)
			}
			if lastValid == 0 {
				continue
			}
			height, err := i.rpc.GetBlockHeight(ctx, i.cfg.Commitment)
			if err != nil {
				i.logger.Warn("block height fetch failed", zap.Error(err), zap.String("signature", sig.String()))
				continue
			}
			// one more status poll before giving up
			expired = height > lastValid
		}
	}
}

func (i *RPCInvoker) confirmed(ctx context.Context, sig solana.Signature) (bool, error) {
	result, err := i.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		i.logger.Warn("signature status fetch failed", zap.Error(err), zap.String("signature", sig.String()))
		return false, nil
	}
	if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
		return false, nil
	}
	status := result.Value[0]
	if status.Err != nil {
		return true, &TransactionError{Signature: sig, Err: status.Err}
	}
	return status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		status.ConfirmationStatus == rpc.ConfirmationStatusFinalized, nil
}

// settlementFailure classifies an engine error. Only the non-empty position
// rejection gets its own kind; everything else is an opaque SettlementError.
func settlementFailure(op string, err error) error {
	kind := model.ErrSettlement
	if isNonEmptyPosition(err) {
		kind = model.ErrPositionNotEmpty
	}
	return &model.SettlementFailure{Kind: kind, Op: op, Err: err}
}

func isNonEmptyPosition(err error) bool {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		if code, ok := txErr.CustomCode(); ok {
			return code == nonEmptyPositionCode
		}
	}
	msg := err.Error()
	return strings.Contains(msg, nonEmptyPositionName) ||
		strings.Contains(msg, fmt.Sprintf("custom program error: %#x", nonEmptyPositionCode))
}

// DryRunInvoker records calls instead of submitting them.
type DryRunInvoker struct {
	logger *zap.Logger

	mu    sync.Mutex
	calls []Call
}

func NewDryRunInvoker(logger *zap.Logger) *DryRunInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunInvoker{logger: logger}
}

func (d *DryRunInvoker) Invoke(ctx context.Context, call Call) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if call.Instruction == nil {
		return Receipt{}, fmt.Errorf("%s: instruction is nil", call.Operation)
	}
	data, err := call.Instruction.Data()
	if err != nil {
		return Receipt{}, fmt.Errorf("instruction data: %w", err)
	}

	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()

	d.logger.Info("hand-off dry run",
		zap.String("operation", call.Operation),
		zap.String("position", call.Position.String()),
		zap.String("program", call.Instruction.ProgramID().String()),
		zap.Int("accounts", len(call.Instruction.Accounts())),
		zap.Int("data_len", len(data)),
	)
	return Receipt{DryRun: true}, nil
}

// Calls returns a copy of the recorded calls.
func (d *DryRunInvoker) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}
