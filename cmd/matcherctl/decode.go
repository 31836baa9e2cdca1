package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/coldbell/matchers/internal/ctxrecord"
)

func newDecodeCmd() *cobra.Command {
	var (
		useBase64 bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "decode [record]",
		Short: "Decode a 320-byte context record by its magic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseRecordArg(args[0], useBase64)
			if err != nil {
				return err
			}
			schema, err := ctxrecord.Identify(data)
			if err != nil {
				return fmt.Errorf("identify record: %w", err)
			}
			values, err := schema.Decode(data)
			if err != nil {
				return fmt.Errorf("decode %s record: %w", schema.Name, err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Program string            `json:"program"`
					Fields  []ctxrecord.Value `json:"fields"`
				}{Program: schema.Name, Fields: values})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "program: %s (v%d)\n", schema.Name, schema.Version)
			return printValues(cmd.OutOrStdout(), values)
		},
	}
	cmd.Flags().BoolVar(&useBase64, "base64", false, "record is base64 instead of hex")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printValues(out io.Writer, values []ctxrecord.Value) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OFFSET\tFIELD\tKIND\tVALUE\tDISPLAY")
	for _, value := range values {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\n", value.Offset, value.Name, value.Kind, value.Value, value.Display())
	}
	return w.Flush()
}

func parseRecordArg(raw string, useBase64 bool) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if useBase64 {
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 record: %w", err)
		}
		return data, nil
	}
	data, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex record: %w", err)
	}
	return data, nil
}
