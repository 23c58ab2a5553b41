package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"binScope/internal/config"
)

func historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the last journaled operation of a position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			return printHistory(cmd.Context(), cfg, mustString(cmd.Flags(), "position"), cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("position", "", "position address")
	return cmd
}

func printHistory(ctx context.Context, cfg config.Config, positionAddr string, w io.Writer) error {
	addr, err := config.ParsePublicKey("position", positionAddr)
	if err != nil {
		return err
	}
	if addr.IsZero() {
		return fmt.Errorf("position is required")
	}
	if cfg.PGDSN == "" && cfg.Journal == "" {
		return fmt.Errorf("no journal configured, set --journal or --pg-dsn")
	}

	_, history, closeJournal, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	last, ok, err := history.LastOperation(ctx, addr.String())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no journaled operation for %s", addr)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(last)
}
