package main

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"lukechampine.com/uint128"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/matcher"
	"github.com/coldbell/matchers/internal/matcher/compliance"
	"github.com/coldbell/matchers/internal/matcher/event"
	"github.com/coldbell/matchers/internal/matcher/macro"
	"github.com/coldbell/matchers/internal/matcher/solver"
	"github.com/coldbell/matchers/internal/matcher/volatility"
)

// keyResolver turns a key reference from a params file into a key.
type keyResolver func(ref string) (solana.PublicKey, error)

func base58Key(ref string) (solana.PublicKey, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return solana.PublicKey{}, nil
	}
	return solana.PublicKeyFromBase58(ref)
}

// The *InitFile types add the key and u128 fields the params structs keep
// out of YAML.
type solverInitFile struct {
	solver.InitParams `yaml:",inline"`
	EncryptionKey     string `yaml:"encryption_key"`
}

type volatilityInitFile struct {
	volatility.InitParams `yaml:",inline"`
	Liquidity             string `yaml:"liquidity_notional_e6"`
	MaxFill               string `yaml:"max_fill_abs"`
	VarianceTracker       string `yaml:"variance_tracker"`
	VolIndex              string `yaml:"vol_index"`
}

type macroInitFile struct {
	macro.InitParams `yaml:",inline"`
	Liquidity        string `yaml:"liquidity_notional_e6"`
	MaxFill          string `yaml:"max_fill_abs"`
	MacroOracle      string `yaml:"macro_oracle"`
}

type eventInitFile struct {
	event.InitParams `yaml:",inline"`
	Liquidity        string `yaml:"liquidity_notional_e6"`
	MaxFill          string `yaml:"max_fill_abs"`
	EventOracle      string `yaml:"event_oracle"`
}

type complianceInitFile struct {
	compliance.InitParams `yaml:",inline"`
	KycRegistry           string `yaml:"kyc_registry"`
	Liquidity             string `yaml:"liquidity_notional_e6"`
	MaxFill               string `yaml:"max_fill_abs"`
}

// initParams decodes a variant's Init parameters from YAML into the struct
// the payload encoder expects.
func initParams(program string, node *yaml.Node, resolve keyResolver) (any, error) {
	var err error
	switch program {
	case "solver":
		var file solverInitFile
		if err := node.Decode(&file); err != nil {
			return nil, err
		}
		if file.EncryptionKey != "" {
			raw, err := hex.DecodeString(strings.TrimPrefix(file.EncryptionKey, "0x"))
			if err != nil || len(raw) != 32 {
				return nil, fmt.Errorf("encryption_key must be 32 hex-encoded bytes")
			}
			copy(file.InitParams.EncryptionKey[:], raw)
		}
		return file.InitParams, nil
	case "volatility":
		var file volatilityInitFile
		if err := node.Decode(&file); err != nil {
			return nil, err
		}
		p := file.InitParams
		if p.Liquidity, err = parseU128(file.Liquidity); err != nil {
			return nil, fmt.Errorf("liquidity_notional_e6: %w", err)
		}
		if p.MaxFill, err = parseU128(file.MaxFill); err != nil {
			return nil, fmt.Errorf("max_fill_abs: %w", err)
		}
		if p.VarianceTracker, err = resolve(file.VarianceTracker); err != nil {
			return nil, fmt.Errorf("variance_tracker: %w", err)
		}
		if p.VolIndex, err = resolve(file.VolIndex); err != nil {
			return nil, fmt.Errorf("vol_index: %w", err)
		}
		return p, nil
	case "macro":
		var file macroInitFile
		if err := node.Decode(&file); err != nil {
			return nil, err
		}
		p := file.InitParams
		if p.Liquidity, err = parseU128(file.Liquidity); err != nil {
			return nil, fmt.Errorf("liquidity_notional_e6: %w", err)
		}
		if p.MaxFill, err = parseU128(file.MaxFill); err != nil {
			return nil, fmt.Errorf("max_fill_abs: %w", err)
		}
		if p.MacroOracle, err = resolve(file.MacroOracle); err != nil {
			return nil, fmt.Errorf("macro_oracle: %w", err)
		}
		return p, nil
	case "event":
		var file eventInitFile
		if err := node.Decode(&file); err != nil {
			return nil, err
		}
		p := file.InitParams
		if p.Liquidity, err = parseU128(file.Liquidity); err != nil {
			return nil, fmt.Errorf("liquidity_notional_e6: %w", err)
		}
		if p.MaxFill, err = parseU128(file.MaxFill); err != nil {
			return nil, fmt.Errorf("max_fill_abs: %w", err)
		}
		if p.EventOracle, err = resolve(file.EventOracle); err != nil {
			return nil, fmt.Errorf("event_oracle: %w", err)
		}
		return p, nil
	case "compliance":
		var file complianceInitFile
		if err := node.Decode(&file); err != nil {
			return nil, err
		}
		p := file.InitParams
		if p.KycRegistry, err = resolve(file.KycRegistry); err != nil {
			return nil, fmt.Errorf("kyc_registry: %w", err)
		}
		if p.Liquidity, err = parseU128(file.Liquidity); err != nil {
			return nil, fmt.Errorf("liquidity_notional_e6: %w", err)
		}
		if p.MaxFill, err = parseU128(file.MaxFill); err != nil {
			return nil, fmt.Errorf("max_fill_abs: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown program %q", program)
	}
}

func parseU128(raw string) (uint128.Uint128, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uint128.Zero, nil
	}
	v, ok := new(big.Int).SetString(strings.ReplaceAll(raw, "_", ""), 10)
	if !ok || v.Sign() < 0 || v.BitLen() > 128 {
		return uint128.Zero, fmt.Errorf("invalid u128 %q", raw)
	}
	return uint128.FromBig(v), nil
}

func readYAMLNode(path string) (*yaml.Node, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(body, &node); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(node.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode}, nil
	}
	return node.Content[0], nil
}

func newInitCmd() *cobra.Command {
	var paramsPath string
	cmd := &cobra.Command{
		Use:       "init [variant]",
		Short:     "Encode an Init instruction payload from a YAML parameter file",
		Args:      cobra.ExactArgs(1),
		ValidArgs: variantNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			node := &yaml.Node{Kind: yaml.MappingNode}
			if paramsPath != "" {
				var err error
				if node, err = readYAMLNode(paramsPath); err != nil {
					return err
				}
			}
			params, err := initParams(strings.ToLower(args[0]), node, base58Key)
			if err != nil {
				return err
			}
			data, err := ctxrecord.EncodePayload(ctxrecord.OpInit, params)
			if err != nil {
				return fmt.Errorf("encode init payload: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%x\n", data)
			return nil
		},
	}
	cmd.Flags().StringVarP(&paramsPath, "file", "f", "", "YAML file with the Init parameters")
	return cmd
}

func variantNames() []string {
	names := make([]string, 0, 5)
	for _, program := range matcher.All() {
		names = append(names, program.Name())
	}
	return names
}
