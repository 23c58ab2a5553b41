package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"binScope/internal/model"
)

// ParsePublicKey parses a base58 key. An empty input yields the zero key.
func ParsePublicKey(name, input string) (solana.PublicKey, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return solana.PublicKey{}, nil
	}
	key, err := solana.PublicKeyFromBase58(input)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, input, err)
	}
	return key, nil
}

// ParseOptionalPublicKey is ParsePublicKey returning nil for an empty input.
func ParseOptionalPublicKey(name, input string) (*solana.PublicKey, error) {
	key, err := ParsePublicKey(name, input)
	if err != nil || key.IsZero() {
		return nil, err
	}
	return &key, nil
}

// ParseActiveID parses a bin id. The whole input must be a base-10 int32.
func ParseActiveID(input string) (int32, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(input), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid active id %q", input)
	}
	return int32(id), nil
}

// ParseDistribution parses "bin:weight" pairs, e.g. "120:1,130:2".
func ParseDistribution(items []string) ([]model.BinLiquidityDistributionWeight, error) {
	pairs, err := parsePairs(items)
	if err != nil {
		return nil, err
	}
	out := make([]model.BinLiquidityDistributionWeight, 0, len(pairs))
	for _, p := range pairs {
		weight, err := strconv.ParseUint(p.value, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for bin %d: %q", p.binID, p.value)
		}
		out = append(out, model.BinLiquidityDistributionWeight{BinID: p.binID, Weight: uint16(weight)})
	}
	return out, nil
}

// ParseReductions parses "bin:bps" pairs, e.g. "105:10000,106:2500". Range
// checks are left to the reduction validator.
func ParseReductions(items []string) ([]model.BinLiquidityReduction, error) {
	pairs, err := parsePairs(items)
	if err != nil {
		return nil, err
	}
	out := make([]model.BinLiquidityReduction, 0, len(pairs))
	for _, p := range pairs {
		bps, err := strconv.ParseInt(p.value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid bps for bin %d: %q", p.binID, p.value)
		}
		out = append(out, model.BinLiquidityReduction{BinID: p.binID, BpsToRemove: int32(bps)})
	}
	return out, nil
}

type binPair struct {
	binID int32
	value string
}

func parsePairs(items []string) ([]binPair, error) {
	var out []binPair
	for _, item := range cleanStrings(items) {
		for _, pair := range splitAndClean(item) {
			parts := strings.SplitN(pair, ":", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("invalid bin pair %q (want bin:value)", pair)
			}
			binID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid bin id %q", parts[0])
			}
			out = append(out, binPair{binID: int32(binID), value: strings.TrimSpace(parts[1])})
		}
	}
	return out, nil
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
