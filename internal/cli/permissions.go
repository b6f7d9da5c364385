package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gaproadmap/internal/domain"
	"gaproadmap/internal/services/permissions"
)

func newPermissionsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Permission checks against the indexer",
	}
	cmd.AddCommand(newPermissionsCheckCmd(opts))
	return cmd
}

func newPermissionsCheckCmd(opts *globalOptions) *cobra.Command {
	var (
		token   string
		action  string
		chainID int
	)
	cmd := &cobra.Command{
		Use:   "check <resourceType> <resourceID>...",
		Short: "Check whether the token's wallet may act on resources",
		Long: `Check whether the token's wallet may act on resources.

The token is read from --token or GAP_TOKEN. Resource types: project, grant,
milestone, program, community.

Examples:
  gapctl permissions check project 0xabc 0xdef --action edit
  GAP_TOKEN=... gapctl permissions check grant 0x123 --action review`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("GAP_TOKEN")
			}
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			reqs := make([]domain.PermissionRequest, 0, len(args)-1)
			for _, id := range args[1:] {
				reqs = append(reqs, domain.PermissionRequest{
					ResourceType: domain.ResourceType(args[0]),
					ResourceID:   id,
					Action:       action,
					ChainID:      chainID,
				})
			}

			svc := permissions.New(opts.indexerClient(cfg, logger), cfg.PermissionConcurrency, logger)
			decisions, err := svc.Check(cmd.Context(), token, reqs)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RESOURCE\tACTION\tALLOWED\tREASON")
			for _, d := range decisions {
				fmt.Fprintf(tw, "%s/%s\t%s\t%t\t%s\n", d.Request.ResourceType, d.Request.ResourceID, d.Request.Action, d.Allowed, d.Reason)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default from GAP_TOKEN)")
	cmd.Flags().StringVarP(&action, "action", "a", "edit", "action to check")
	cmd.Flags().IntVar(&chainID, "chain", 0, "chain id of the resources")
	return cmd
}
