package main

import (
	"encoding/binary"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/coldbell/matchers/internal/matcher"
)

func newMagicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "magics",
		Short: "List the registered matcher variants and their record magics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMAGIC\tTAG\tVERSION\tFIELDS")
			for _, program := range matcher.All() {
				schema := program.Schema()
				fmt.Fprintf(w, "%s\t0x%016x\t%s\t%d\t%d\n",
					schema.Name, schema.Magic, magicTag(schema.Magic), schema.Version, len(schema.Fields))
			}
			return w.Flush()
		},
	}
}

// magicTag renders a magic as the ASCII tag it spells, or "-" when it is
// not printable.
func magicTag(magic uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], magic)
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return "-"
		}
	}
	return string(b[:])
}
