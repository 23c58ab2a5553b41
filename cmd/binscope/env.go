package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"binScope/internal/chain"
	"binScope/internal/config"
	"binScope/internal/lifecycle"
	"binScope/internal/model"
	"binScope/internal/settlement"
	"binScope/internal/storage"
	"binScope/internal/storage/postgres"
)

// env is the wiring shared by every operation command.
type env struct {
	cfg     config.Config
	logger  *zap.Logger
	chain   *chain.Client
	signer  solana.PrivateKey
	program settlement.Program
	manager *lifecycle.Manager
	history storage.History
	closers []func()
}

func setup(ctx context.Context, cmd *cobra.Command, planOnly bool) (*env, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.Keypair == "" {
		return nil, fmt.Errorf("keypair is required")
	}
	e.signer, err = solana.PrivateKeyFromSolanaKeygenFile(cfg.Keypair)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}

	programID, err := config.ParsePublicKey("program id", cfg.ProgramID)
	if err != nil {
		return nil, err
	}
	e.program, err = settlement.NewProgram(programID)
	if err != nil {
		return nil, err
	}

	commitment := rpc.CommitmentType(cfg.Commitment)
	e.chain = chain.NewClient(cfg.RPCURL, chain.ClientConfig{
		Commitment:        commitment,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		RequestsPerSecond: cfg.RPCRateLimit,
	})
	e.closers = append(e.closers, e.chain.Close)

	var invoker settlement.Invoker
	if planOnly || cfg.DryRun {
		invoker = settlement.NewDryRunInvoker(logger)
	} else {
		invoker = settlement.NewRPCInvoker(settlement.InvokerConfig{
			Commitment:       commitment,
			ComputeUnitLimit: cfg.ComputeUnitLimit,
			ComputeUnitPrice: cfg.ComputeUnitPrice,
			Timeout:          cfg.TxTimeout,
		}, e.chain.RPC(), e.signer, logger)
	}

	journal, history, closeJournal, err := openJournal(ctx, cfg)
	if err != nil {
		e.close()
		return nil, err
	}
	e.closers = append(e.closers, closeJournal)
	e.history = history
	e.manager = lifecycle.NewManager(e.program, invoker, journal, logger)

	logger.Info("binscope start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("program", programID.String()),
		zap.String("signer", e.signer.PublicKey().String()),
		zap.Bool("dry_run", planOnly || cfg.DryRun),
		zap.String("journal", cfg.Journal),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)
	return e, nil
}

// openJournal picks the journal backend: Postgres when a DSN is set, then a
// JSONL file, else nothing is recorded.
func openJournal(ctx context.Context, cfg config.Config) (storage.Journal, storage.History, func(), error) {
	switch {
	case cfg.PGDSN != "":
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		return store, store, store.Close, nil
	case cfg.Journal != "":
		j := storage.NewJsonlJournal(cfg.Journal)
		return j, j, func() {}, nil
	default:
		return storage.Discard{}, storage.Discard{}, func() {}, nil
	}
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	_ = e.logger.Sync()
}

// target is a position and its pool as read from chain.
type target struct {
	position    model.Position
	pool        model.Pool
	observation model.PositionObservation
}

func (e *env) load(ctx context.Context, positionAddr string) (target, error) {
	addr, err := config.ParsePublicKey("position", positionAddr)
	if err != nil {
		return target{}, err
	}
	if addr.IsZero() {
		return target{}, fmt.Errorf("position is required")
	}
	position, obs, err := e.chain.GetPosition(ctx, addr)
	if err != nil {
		return target{}, err
	}
	pool, err := e.chain.GetPool(ctx, position.LbPair)
	if err != nil {
		return target{}, err
	}
	e.logger.Debug("position loaded",
		zap.String("position", addr.String()),
		zap.String("lb_pair", pool.Address.String()),
		zap.Int32("lower_bin_id", position.LowerBinID),
		zap.Int32("upper_bin_id", position.UpperBinID),
		zap.Int32("active_id", pool.ActiveID),
		zap.Int("liquid_bins", len(obs.LiquidBins)),
		zap.Bool("fees_pending", obs.FeesPending),
	)
	if last, ok, err := e.history.LastOperation(ctx, addr.String()); err != nil {
		e.logger.Warn("read journal failed", zap.String("position", addr.String()), zap.Error(err))
	} else if ok {
		e.logger.Info("last journaled operation",
			zap.String("position", addr.String()),
			zap.String("operation", last.Operation),
			zap.String("to_state", last.ToState),
			zap.String("status", last.Status),
			zap.String("created_at", last.CreatedAt),
		)
	}
	return target{position: position, pool: pool, observation: obs}, nil
}

// userToken returns the supplied token account, or the owner's associated
// account for mint under tokenProgram.
func (e *env) userToken(supplied string, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	key, err := config.ParsePublicKey("user token account", supplied)
	if err != nil || !key.IsZero() {
		return key, err
	}
	ata, _, err := solana.FindProgramAddress([][]byte{
		e.signer.PublicKey().Bytes(),
		tokenProgram.Bytes(),
		mint.Bytes(),
	}, solana.SPLAssociatedTokenAccountProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return ata, nil
}
