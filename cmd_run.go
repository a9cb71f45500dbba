package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/lunfardo314/dagcore/node"
	"github.com/spf13/cobra"
)

func initRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "starts the node with config from dagnode.yaml and flags",
		Args:  cobra.NoArgs,
		RunE:  runNode,
	}
	node.RegisterFlags(runCmd.Flags())
	return runCmd
}

func runNode(cmd *cobra.Command, _ []string) error {
	bootLog := node.NewBootstrapLogger()
	if err := node.InitConfig(cmd.Flags(), bootLog); err != nil {
		return err
	}
	cfg, err := node.ConfigFromViper()
	if err != nil {
		return err
	}
	n := node.New(node.NewEnvironmentFromViper(), cfg)
	if err = n.Start(nil); err != nil {
		return err
	}

	killChan := make(chan os.Signal, 1)
	signal.Notify(killChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-killChan:
	case <-n.Ctx().Done():
	}
	n.Stop()
	return nil
}
