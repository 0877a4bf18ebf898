package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nhle/srehub/internal/store"
)

// orgStats is one organization's rollup row on the overview dashboard.
type orgStats struct {
	Organization string `json:"organization"`
	SourceType   string `json:"source_type"`
	Projects     int    `json:"projects"`
	TotalIssues  int    `json:"total_issues"`
	Open         int    `json:"open"`
	InProgress   int    `json:"in_progress"`
	Done         int    `json:"done"`
}

func newStatsCmd() *cobra.Command {
	var (
		ttl     time.Duration
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the cached issue overview across organizations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if refresh {
				if err := a.store.InvalidateCache(ctx, "overview", ""); err != nil {
					return err
				}
			}

			entry, err := a.store.GetOrGenerate(ctx, "overview", "all", ttl,
				func(ctx context.Context) (interface{}, error) {
					return generateOverview(ctx, a.store)
				})
			if err != nil {
				return err
			}

			var rows []orgStats
			if err := json.Unmarshal(entry.Data, &rows); err != nil {
				return fmt.Errorf("decoding cached overview: %w", err)
			}

			for _, r := range rows {
				fmt.Printf("%-10s %-25s %3d projects  %5d issues  (%d open / %d in progress / %d done)\n",
					r.SourceType, r.Organization, r.Projects,
					r.TotalIssues, r.Open, r.InProgress, r.Done)
			}

			if entry.Hit {
				fmt.Printf("cached %s ago\n",
					time.Since(entry.GeneratedAt).Round(time.Second))
			} else {
				color.Blue("generated in %s", entry.Generation.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 5*time.Minute, "cache lifetime")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "drop the cached overview first")
	return cmd
}

func generateOverview(ctx context.Context, s *store.SQLiteStore) ([]orgStats, error) {
	orgs, err := s.ListOrganizations(ctx, store.OrganizationFilter{})
	if err != nil {
		return nil, err
	}

	rows := make([]orgStats, 0, len(orgs))
	for _, org := range orgs {
		projects, err := s.ListProjects(ctx, org.ID)
		if err != nil {
			return nil, err
		}

		row := orgStats{
			Organization: org.Name,
			SourceType:   string(org.SourceType),
			Projects:     len(projects),
		}
		for _, p := range projects {
			row.TotalIssues += p.TotalIssues
			row.Open += p.OpenIssues
			row.InProgress += p.InProgressIssues
			row.Done += p.DoneIssues
		}
		rows = append(rows, row)
	}
	return rows, nil
}
