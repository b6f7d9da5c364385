package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gaproadmap/internal/domain"
	"gaproadmap/internal/milestones"
	"gaproadmap/internal/services/roadmap"
)

func newRoadmapCmd(opts *globalOptions) *cobra.Command {
	var (
		filter string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "roadmap <projectUID>",
		Short: "Print a project's unified roadmap, most recent first",
		Long: `Print a project's unified roadmap, most recent first.

Filters (comma separated): all, pending, completed, impacts, activities, updates.

Examples:
  gapctl roadmap 0x5f3c...
  gapctl roadmap 0x5f3c... --filter pending,impacts
  gapctl roadmap 0x5f3c... --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := milestones.ParseFilters(filter)
			if err != nil {
				return err
			}
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			svc := roadmap.New(opts.indexerClient(cfg, logger), logger)
			items, err := svc.Roadmap(cmd.Context(), args[0], filters)
			if err != nil {
				return err
			}
			if asJSON {
				if items == nil {
					items = []domain.UnifiedMilestone{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			return printRoadmap(cmd.OutOrStdout(), items)
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "comma separated filter tags")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func printRoadmap(out io.Writer, items []domain.UnifiedMilestone) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, "No roadmap items.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTYPE\tSTATUS\tTITLE")
	for _, m := range items {
		date := "-"
		if ts := milestones.Timestamp(m); ts > 0 {
			date = time.Unix(ts, 0).UTC().Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", date, m.Type, itemStatus(m), strings.TrimSpace(m.Title))
	}
	return tw.Flush()
}

func itemStatus(m domain.UnifiedMilestone) string {
	switch m.Type {
	case domain.TypeMilestone, domain.TypeGrant, domain.TypeProject:
	default:
		return "-"
	}
	if !m.IsCompleted() {
		return "pending"
	}
	if m.Source.GrantMilestone != nil && len(m.Source.GrantMilestone.Milestone.Verified) > 0 {
		return "verified"
	}
	return "completed"
}
