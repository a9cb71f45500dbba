package main

import (
	"fmt"

	"github.com/lunfardo314/dagcore/blockstore"
	"github.com/lunfardo314/dagcore/core/ordering"
	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/node"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dbDir      string
	outputFile string
)

const defaultGraphFile = "dag"

func addDBFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&dbDir, "db.dir", "", "directory of the DAG database. Default is db.dir from the config")
}

func openStore() (*blockstore.BadgerStore, *global.Global, error) {
	if err := node.InitConfig(nil, node.NewBootstrapLogger()); err != nil {
		return nil, nil, err
	}
	env := node.NewEnvironmentFromViper()
	dir := dbDir
	if dir == "" {
		dir = viper.GetString("db.dir")
	}
	if dir == "" {
		dir = global.DefaultDBDir
	}
	store, err := blockstore.OpenBadgerStore(dir, env)
	if err != nil {
		return nil, nil, err
	}
	return store, env, nil
}

func initGraphCmd() *cobra.Command {
	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "creates .DOT file of the DAG in the database. Finalized blocks are highlighted",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, env, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err = blockstore.SaveGraph(store, outputFile); err != nil {
				return err
			}
			env.Log().Infof("DAG has been stored to %s.gv", outputFile)
			return nil
		},
	}
	addDBFlag(graphCmd)
	graphCmd.Flags().StringVarP(&outputFile, "output", "o", defaultGraphFile, "output file name without extension")
	return graphCmd
}

func initOrderCmd() *cobra.Command {
	var from string
	orderCmd := &cobra.Command{
		Use:   "order <tip hash hex>",
		Short: "prints total order of blocks up to the tip",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			tip, err := ledger.HashFromHexString(args[0])
			if err != nil {
				return err
			}
			fromHash := ledger.NilHash
			if from != "" {
				if fromHash, err = ledger.HashFromHexString(from); err != nil {
					return err
				}
			}
			store, env, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			genesis, _, err := store.GetBlockByHeight(0)
			if err != nil {
				return err
			}
			o := ordering.New(env, store, genesis, ordering.DefaultConfig())
			var blocks []ledger.Hash
			if fromHash.IsNil() {
				blocks, err = o.GetTotalOrder(tip)
			} else {
				blocks, err = o.GetOrderedBlocks(fromHash, tip)
			}
			if err != nil {
				return err
			}
			for i, h := range blocks {
				block, err := store.GetBlock(h)
				if err != nil {
					return err
				}
				fmt.Printf("%6d  %s  h=%d bs=%d txs=%d finalized=%v\n",
					i, h.String(), block.Height, block.BlueScore, len(block.Transactions), store.IsFinalized(h))
			}
			return nil
		},
	}
	addDBFlag(orderCmd)
	orderCmd.Flags().StringVar(&from, "from", "", "exclusive start of the range, hex")
	return orderCmd
}
