package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/dex"
)

func newPDACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pda",
		Short: "Derive program addresses used around matcher calls",
	}
	cmd.AddCommand(newLPPDACmd(), newWhitelistPDACmd())
	return cmd
}

func newLPPDACmd() *cobra.Command {
	var (
		program string
		slab    string
		index   uint16
	)
	cmd := &cobra.Command{
		Use:   "lp",
		Short: "Derive the LP PDA a settlement program signs matcher calls with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			programID, err := solana.PublicKeyFromBase58(program)
			if err != nil {
				return fmt.Errorf("invalid --program: %w", err)
			}
			slabKey, err := solana.PublicKeyFromBase58(slab)
			if err != nil {
				return fmt.Errorf("invalid --slab: %w", err)
			}
			pda, bump, err := dex.DeriveLPPDA(programID, slabKey, index)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s bump=%d\n", pda, bump)
			return nil
		},
	}
	cmd.Flags().StringVar(&program, "program", "", "settlement program ID")
	cmd.Flags().StringVar(&slab, "slab", "", "slab account")
	cmd.Flags().Uint16Var(&index, "index", 0, "LP index")
	_ = cmd.MarkFlagRequired("program")
	_ = cmd.MarkFlagRequired("slab")
	return cmd
}

func newWhitelistPDACmd() *cobra.Command {
	var registry, user string
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Derive a KYC registry whitelist entry address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registryID, err := solana.PublicKeyFromBase58(registry)
			if err != nil {
				return fmt.Errorf("invalid --registry: %w", err)
			}
			userKey, err := solana.PublicKeyFromBase58(user)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			pda, bump, err := dex.DeriveWhitelistPDA(registryID, userKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s bump=%d\n", pda, bump)
			return nil
		},
	}
	cmd.Flags().StringVar(&registry, "registry", "", "KYC registry program ID")
	cmd.Flags().StringVar(&user, "user", "", "user wallet")
	_ = cmd.MarkFlagRequired("registry")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

type instructionJSON struct {
	ProgramID string            `json:"program_id"`
	Accounts  []accountMetaJSON `json:"accounts"`
	Data      string            `json:"data"`
}

type accountMetaJSON struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

func newCreateAccountCmd() *cobra.Command {
	var (
		payer, account, program string
		rent                    uint64
	)
	cmd := &cobra.Command{
		Use:   "create-account",
		Short: fmt.Sprintf("Print the system instruction allocating a %d-byte context record", ctxrecord.Size),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys := make([]solana.PublicKey, 3)
			for i, raw := range []string{payer, account, program} {
				key, err := solana.PublicKeyFromBase58(raw)
				if err != nil {
					return fmt.Errorf("invalid key %q: %w", raw, err)
				}
				keys[i] = key
			}
			ix := dex.NewCreateContextAccountInstruction(keys[0], keys[1], keys[2], rent)
			data, err := ix.Data()
			if err != nil {
				return err
			}
			out := instructionJSON{ProgramID: ix.ProgramID().String(), Data: base64.StdEncoding.EncodeToString(data)}
			for _, meta := range ix.Accounts() {
				out.Accounts = append(out.Accounts, accountMetaJSON{
					Pubkey:     meta.PublicKey.String(),
					IsSigner:   meta.IsSigner,
					IsWritable: meta.IsWritable,
				})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&payer, "payer", "", "funding wallet")
	cmd.Flags().StringVar(&account, "context", "", "new context account")
	cmd.Flags().StringVar(&program, "program", "", "matcher program that will own the record")
	cmd.Flags().Uint64Var(&rent, "rent", 0, "lamports to fund the account with")
	for _, name := range []string{"payer", "context", "program"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
