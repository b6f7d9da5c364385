// Package cli implements gapctl, the command line client for project roadmaps.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gaproadmap/internal/adapters/indexer"
	"gaproadmap/internal/config"
	"gaproadmap/internal/logging"
)

var Version = "dev"

type globalOptions struct {
	indexerURL string
	verbose    bool
}

// NewRootCmd builds the gapctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:     "gapctl",
		Version: Version,
		Short:   "Inspect GAP project roadmaps",
		Long: `gapctl reads project roadmaps from the GAP indexer.

Configuration is read from CONFIG_FILE and the environment, the same way the
server reads it. Flags override both.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.indexerURL, "indexer", "", "indexer base URL (default from INDEXER_URL)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log indexer calls to stderr")

	root.AddCommand(
		newRoadmapCmd(opts),
		newPermissionsCmd(opts),
		newChainCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// Execute runs gapctl with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *globalOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	if o.indexerURL != "" {
		cfg.Indexer.URL = o.indexerURL
	}
	if !o.verbose {
		return cfg, zap.NewNop(), nil
	}
	logger, err := logging.New("development")
	return cfg, logger, err
}

func (o *globalOptions) indexerClient(cfg config.Config, logger *zap.Logger) *indexer.Client {
	return indexer.New(cfg.Indexer.URL, logger,
		indexer.WithRetry(cfg.Indexer.MaxAttempts, cfg.Indexer.InitialDelay),
		indexer.WithTimeout(cfg.Indexer.Timeout),
	)
}
