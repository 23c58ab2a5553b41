package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"binScope/internal/binarray"
	"binScope/internal/config"
)

func shardsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shards",
		Short: "Print the bin arrays and bitmap extension covering a bin range",
		RunE:  runShards,
	}
	cmd.Flags().String("lb-pair", "", "lb pair address")
	cmd.Flags().Int32("lower", 0, "lower bin id (inclusive)")
	cmd.Flags().Int32("upper", 0, "upper bin id (inclusive)")
	return cmd
}

type shardsOutput struct {
	LowerIndex      int64   `json:"lower_index"`
	UpperIndex      int64   `json:"upper_index"`
	BinArrayLower   string  `json:"bin_array_lower"`
	BinArrayUpper   string  `json:"bin_array_upper"`
	SameShard       bool    `json:"same_shard"`
	BitmapExtension *string `json:"bitmap_extension"`
}

func runShards(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	programID, err := config.ParsePublicKey("program id", cfg.ProgramID)
	if err != nil {
		return err
	}
	lbPair, err := config.ParsePublicKey("lb pair", mustString(cmd.Flags(), "lb-pair"))
	if err != nil {
		return err
	}
	if lbPair.IsZero() {
		return fmt.Errorf("lb pair is required")
	}
	lower, _ := cmd.Flags().GetInt32("lower")
	upper, _ := cmd.Flags().GetInt32("upper")
	if lower > upper {
		return fmt.Errorf("lower bin %d above upper bin %d", lower, upper)
	}

	resolver := binarray.NewResolver(programID)
	shards, err := resolver.Resolve(lbPair, lower, upper)
	if err != nil {
		return err
	}
	ext, err := resolver.BitmapExtensionFor(lbPair, lower, upper)
	if err != nil {
		return err
	}

	out := shardsOutput{
		LowerIndex:    shards.LowerIndex,
		UpperIndex:    shards.UpperIndex,
		BinArrayLower: shards.Lower.String(),
		BinArrayUpper: shards.Upper.String(),
		SameShard:     shards.Same(),
	}
	if ext != nil {
		s := ext.String()
		out.BitmapExtension = &s
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
