// Command matcherctl inspects matcher context records and runs matcher
// instructions offline against an in-memory executor.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "matcherctl",
		Short:        "Offline tooling for matcher context records",
		SilenceUsage: true,
	}
	root.AddCommand(
		newMagicsCmd(),
		newInitCmd(),
		newDecodeCmd(),
		newPDACmd(),
		newCreateAccountCmd(),
		newSimulateCmd(),
	)
	return root
}
