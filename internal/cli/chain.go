package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gaproadmap/internal/adapters/chain"
	"gaproadmap/internal/ports"
	"gaproadmap/internal/services/chainsync"
)

func newChainCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Inspect configured chain RPC endpoints",
	}
	cmd.AddCommand(newChainWaitCmd(opts))
	return cmd
}

func newChainWaitCmd(opts *globalOptions) *cobra.Command {
	var rpcURL string
	cmd := &cobra.Command{
		Use:   "wait <chainID>",
		Short: "Wait until the chain's RPC endpoint reports the chain id",
		Long: `Wait until the chain's RPC endpoint reports the chain id.

The endpoint comes from --rpc or from CHAIN_RPC_URLS ("10=https://...,8453=https://...").
Attempts and interval come from CHAIN_SYNC_ATTEMPTS and CHAIN_SYNC_INTERVAL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("chain id %q: %w", args[0], err)
			}
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if rpcURL == "" {
				rpcURL = cfg.Chains.RPCURLs[chainID]
			}
			if rpcURL == "" {
				return fmt.Errorf("%w: no RPC URL for chain %d", chainsync.ErrUnknownChain, chainID)
			}

			reader := chain.NewReader(rpcURL)
			defer reader.Close()
			svc := chainsync.New(map[int64]ports.ChainReader{chainID: reader}, cfg.Chains.SyncAttempts, cfg.Chains.SyncInterval, logger)
			if err := svc.WaitForChain(cmd.Context(), chainID); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "chain %d in sync\n", chainID)
			return err
		},
	}
	cmd.Flags().StringVar(&rpcURL, "rpc", "", "RPC endpoint URL")
	return cmd
}
