package main

import (
	"fmt"
	"os"

	"github.com/lunfardo314/dagcore/global"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "dagnode",
	Short:   "DAG node: total ordering, finality and sync of a GhostDAG-style block DAG",
	Version: global.VersionString(),
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(initRunCmd(), initGraphCmd(), initOrderCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
