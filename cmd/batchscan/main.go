package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags scanFlags
	root := &cobra.Command{
		Use:           "batchscan",
		Short:         "Scan Siklu EtherHaul and MultiHaul radios over SSH",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.bind(root)
	root.AddCommand(newActionCmd(&flags, "scan", "Connect and identify every target"))
	root.AddCommand(newActionCmd(&flags, "show", "Collect and parse the show output of every target"))
	root.AddCommand(newSetTimeCmd(&flags))
	root.AddCommand(newScriptCmd(&flags))
	return root
}
