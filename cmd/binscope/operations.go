package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"binScope/internal/config"
	"binScope/internal/lifecycle"
	"binScope/internal/model"
)

func operationCommands(planOnly bool) []*cobra.Command {
	fundCmd := &cobra.Command{
		Use:   "fund",
		Short: "Deposit one token into chosen bins of a position",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runFund(cmd, planOnly) },
	}
	fundCmd.Flags().String("side", "", "deposited token (x or y)")
	fundCmd.Flags().Uint64("amount", 0, "amount in base units")
	fundCmd.Flags().StringSlice("bins", nil, "distribution as bin:weight pairs (e.g. 120:1,130:2)")
	fundCmd.Flags().Int32("max-slippage", 3, "maximum active bin deviation")
	fundCmd.Flags().String("active-id", "", "observed active bin id (defaults to the pool's current one)")
	fundCmd.Flags().String("user-token", "", "source token account (defaults to the associated account)")
	fundCmd.Flags().String("mint", "", "expected mint, cross-checked against the pool")
	fundCmd.Flags().String("reserve", "", "expected reserve, cross-checked against the pool")
	addPositionFlags(fundCmd.Flags())

	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Remove a share of liquidity from chosen bins",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runWithdraw(cmd, planOnly, false) },
	}
	withdrawCmd.Flags().StringSlice("bins", nil, "reductions as bin:bps pairs (e.g. 105:10000,106:2500)")
	withdrawCmd.Flags().Bool("full-drain", false, "assert that the listed bins are all the position holds")
	addWithdrawFlags(withdrawCmd.Flags())
	addPositionFlags(withdrawCmd.Flags())

	withdrawAllCmd := &cobra.Command{
		Use:   "withdraw-all",
		Short: "Remove all liquidity from a position",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runWithdraw(cmd, planOnly, true) },
	}
	withdrawAllCmd.Flags().Bool("close", false, "close the position after the withdrawal lands")
	withdrawAllCmd.Flags().String("rent-receiver", "", "rent receiver when closing (defaults to the signer)")
	addWithdrawFlags(withdrawAllCmd.Flags())
	addPositionFlags(withdrawAllCmd.Flags())

	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Close an empty position",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runClose(cmd, planOnly) },
	}
	closeCmd.Flags().String("rent-receiver", "", "rent receiver (defaults to the signer)")
	addPositionFlags(closeCmd.Flags())

	return []*cobra.Command{fundCmd, withdrawCmd, withdrawAllCmd, closeCmd}
}

func addPositionFlags(flags *pflag.FlagSet) {
	flags.String("position", "", "position address")
	flags.String("bin-array-lower", "", "expected lower bin array, cross-checked against the derived one")
	flags.String("bin-array-upper", "", "expected upper bin array, cross-checked against the derived one")
	flags.String("bitmap-extension", "", "expected bitmap extension, cross-checked against the derived one")
}

func addWithdrawFlags(flags *pflag.FlagSet) {
	flags.String("user-token-x", "", "token X destination (defaults to the associated account)")
	flags.String("user-token-y", "", "token Y destination (defaults to the associated account)")
}

func runFund(cmd *cobra.Command, planOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx, cmd, planOnly)
	if err != nil {
		return err
	}
	defer e.close()

	flags := cmd.Flags()
	sideFlag, _ := flags.GetString("side")
	side, err := model.ParseSide(sideFlag)
	if err != nil {
		return err
	}
	amount, _ := flags.GetUint64("amount")
	binsFlag, _ := flags.GetStringSlice("bins")
	distribution, err := config.ParseDistribution(binsFlag)
	if err != nil {
		return err
	}

	t, err := e.load(ctx, mustString(flags, "position"))
	if err != nil {
		return err
	}

	bound := model.SlippageBound{ActiveID: t.pool.ActiveID}
	bound.MaxActiveBinSlippage, _ = flags.GetInt32("max-slippage")
	if activeFlag := mustString(flags, "active-id"); activeFlag != "" {
		if bound.ActiveID, err = config.ParseActiveID(activeFlag); err != nil {
			return err
		}
	}

	supplied, err := suppliedFromFlags(flags)
	if err != nil {
		return err
	}
	if supplied.TokenMint, err = config.ParsePublicKey("mint", mustString(flags, "mint")); err != nil {
		return err
	}
	if supplied.Reserve, err = config.ParsePublicKey("reserve", mustString(flags, "reserve")); err != nil {
		return err
	}

	tokenProgram, err := e.chain.TokenProgramOf(ctx, t.pool.Mint(side))
	if err != nil {
		return err
	}
	userToken, err := e.userToken(mustString(flags, "user-token"), t.pool.Mint(side), tokenProgram)
	if err != nil {
		return err
	}

	req := lifecycle.FundRequest{
		Position:     t.position,
		Pool:         t.pool,
		Signer:       e.signer.PublicKey(),
		Side:         side,
		Amount:       amount,
		Slippage:     bound,
		Distribution: distribution,
		UserToken:    userToken,
		TokenProgram: tokenProgram,
		Supplied:     supplied,
		Observation:  &t.observation,
	}
	if planOnly {
		prepared, err := e.manager.PrepareFund(req)
		if err != nil {
			return err
		}
		return printSummary(newSummary(prepared, nil))
	}
	res, err := e.manager.Fund(ctx, req)
	if err != nil {
		return err
	}
	return printSummary(newSummary(res.Prepared, &res))
}

func runWithdraw(cmd *cobra.Command, planOnly, all bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx, cmd, planOnly)
	if err != nil {
		return err
	}
	defer e.close()

	flags := cmd.Flags()
	t, err := e.load(ctx, mustString(flags, "position"))
	if err != nil {
		return err
	}

	supplied, err := suppliedFromFlags(flags)
	if err != nil {
		return err
	}
	req := lifecycle.WithdrawRequest{
		Position:    t.position,
		Pool:        t.pool,
		Signer:      e.signer.PublicKey(),
		Supplied:    supplied,
		Observation: &t.observation,
	}
	if !all {
		binsFlag, _ := flags.GetStringSlice("bins")
		if req.Reductions, err = config.ParseReductions(binsFlag); err != nil {
			return err
		}
		req.AssertFullDrain, _ = flags.GetBool("full-drain")
	}

	if req.TokenXProgram, err = e.chain.TokenProgramOf(ctx, t.pool.TokenXMint); err != nil {
		return err
	}
	if req.TokenYProgram, err = e.chain.TokenProgramOf(ctx, t.pool.TokenYMint); err != nil {
		return err
	}
	if req.UserTokenX, err = e.userToken(mustString(flags, "user-token-x"), t.pool.TokenXMint, req.TokenXProgram); err != nil {
		return err
	}
	if req.UserTokenY, err = e.userToken(mustString(flags, "user-token-y"), t.pool.TokenYMint, req.TokenYProgram); err != nil {
		return err
	}

	closeAfter := false
	if all {
		closeAfter, _ = flags.GetBool("close")
	}

	switch {
	case planOnly && !all:
		prepared, err := e.manager.PrepareRemoveSelective(req)
		if err != nil {
			return err
		}
		return printSummary(newSummary(prepared, nil))
	case planOnly:
		prepared, err := e.manager.PrepareRemoveAll(req)
		if err != nil {
			return err
		}
		return printSummary(newSummary(prepared, nil))
	case !all:
		res, err := e.manager.RemoveSelective(ctx, req)
		if err != nil {
			return err
		}
		return printSummary(newSummary(res.Prepared, &res))
	case closeAfter:
		closeReq, err := closeRequest(e, flags, t)
		if err != nil {
			return err
		}
		results, err := e.manager.Exit(ctx, req, closeReq, e.chain)
		for i := range results {
			if perr := printSummary(newSummary(results[i].Prepared, &results[i])); perr != nil {
				return perr
			}
		}
		return err
	default:
		res, err := e.manager.RemoveAll(ctx, req)
		if err != nil {
			return err
		}
		return printSummary(newSummary(res.Prepared, &res))
	}
}

func runClose(cmd *cobra.Command, planOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx, cmd, planOnly)
	if err != nil {
		return err
	}
	defer e.close()

	t, err := e.load(ctx, mustString(cmd.Flags(), "position"))
	if err != nil {
		return err
	}
	req, err := closeRequest(e, cmd.Flags(), t)
	if err != nil {
		return err
	}
	req.Observation = &t.observation

	if planOnly {
		prepared, err := e.manager.PrepareClose(req)
		if err != nil {
			return err
		}
		return printSummary(newSummary(prepared, nil))
	}
	res, err := e.manager.Close(ctx, req)
	if err != nil {
		return err
	}
	return printSummary(newSummary(res.Prepared, &res))
}

func closeRequest(e *env, flags *pflag.FlagSet, t target) (lifecycle.CloseRequest, error) {
	supplied, err := suppliedFromFlags(flags)
	if err != nil {
		return lifecycle.CloseRequest{}, err
	}
	rentReceiver, err := config.ParsePublicKey("rent receiver", mustString(flags, "rent-receiver"))
	if err != nil {
		return lifecycle.CloseRequest{}, err
	}
	return lifecycle.CloseRequest{
		Position:     t.position,
		Pool:         t.pool,
		Signer:       e.signer.PublicKey(),
		RentReceiver: rentReceiver,
		Supplied:     supplied,
	}, nil
}

func suppliedFromFlags(flags *pflag.FlagSet) (lifecycle.Supplied, error) {
	var (
		s   lifecycle.Supplied
		err error
	)
	if s.BinArrayLower, err = config.ParsePublicKey("bin array lower", mustString(flags, "bin-array-lower")); err != nil {
		return s, err
	}
	if s.BinArrayUpper, err = config.ParsePublicKey("bin array upper", mustString(flags, "bin-array-upper")); err != nil {
		return s, err
	}
	if s.BitmapExtension, err = config.ParseOptionalPublicKey("bitmap extension", mustString(flags, "bitmap-extension")); err != nil {
		return s, err
	}
	return s, nil
}

func mustString(flags *pflag.FlagSet, name string) string {
	val, _ := flags.GetString(name)
	return val
}

type shareSummary struct {
	BinID  int32  `json:"bin_id"`
	Weight uint16 `json:"weight"`
	Share  string `json:"share"`
}

type summary struct {
	Operation     string         `json:"operation"`
	Position      string         `json:"position"`
	LbPair        string         `json:"lb_pair"`
	FromState     string         `json:"from_state"`
	ToState       string         `json:"to_state"`
	LowerShard    int64          `json:"lower_shard"`
	UpperShard    int64          `json:"upper_shard"`
	BinArrayLower string         `json:"bin_array_lower"`
	BinArrayUpper string         `json:"bin_array_upper"`
	BinIDs        []int32        `json:"bin_ids,omitempty"`
	Shares        []shareSummary `json:"shares,omitempty"`
	ZeroBpsBins   []int32        `json:"zero_bps_bins,omitempty"`
	Accounts      int            `json:"accounts"`
	Signature     string         `json:"signature,omitempty"`
	DryRun        bool           `json:"dry_run"`
}

func newSummary(p lifecycle.Prepared, res *lifecycle.Result) summary {
	s := summary{
		Operation:     p.Call.Operation,
		Position:      p.Call.Position.String(),
		LbPair:        p.Call.LbPair.String(),
		FromState:     p.From.String(),
		ToState:       p.To.String(),
		LowerShard:    p.Shards.LowerIndex,
		UpperShard:    p.Shards.UpperIndex,
		BinArrayLower: p.Shards.Lower.String(),
		BinArrayUpper: p.Shards.Upper.String(),
		BinIDs:        p.BinIDs,
		ZeroBpsBins:   p.Anomalies,
		Accounts:      len(p.Call.Instruction.Accounts()),
		DryRun:        true,
	}
	for _, share := range p.Shares {
		s.Shares = append(s.Shares, shareSummary{BinID: share.BinID, Weight: share.Weight, Share: share.Share.StringFixed(6)})
	}
	if res != nil {
		s.ToState = res.State.String()
		s.DryRun = res.Receipt.DryRun
		if !s.DryRun {
			s.Signature = res.Receipt.Signature.String()
		}
	}
	return s
}

func printSummary(s summary) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
