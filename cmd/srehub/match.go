package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nhle/srehub/internal/fuzzy"
	"github.com/nhle/srehub/internal/model"
)

func newMatchCmd() *cobra.Command {
	var (
		target    string
		limit     int
		threshold float64
		auto      bool
	)

	cmd := &cobra.Command{
		Use:   "match <org-id>",
		Short: "Suggest cross-system links by fuzzy title similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			matcher := fuzzy.New(a.store, a.cfg.Fuzzy, a.log)
			suggestions, err := matcher.ScanAndSuggest(
				cmd.Context(), args[0], model.SourceType(target), limit, threshold)
			if err != nil {
				return err
			}
			if len(suggestions) == 0 {
				fmt.Println("no matches above threshold")
				return nil
			}

			for _, s := range suggestions {
				fmt.Printf("%s  %s\n", s.Issue.ID, s.Issue.Title)
				for _, m := range s.Matches {
					label := color.YellowString("%.2f", m.Score)
					if m.Confidence == "high" {
						label = color.GreenString("%.2f", m.Score)
					}
					fmt.Printf("    %s %-14s %s  %s\n",
						label, m.MatchType, m.Candidate.ExternalKey, m.Candidate.Title)
				}
			}

			if auto {
				created, err := matcher.CreateLinks(cmd.Context(), suggestions)
				if err != nil {
					return err
				}
				color.Green("created %d links above the auto-create threshold", created)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", string(model.SourceTypeJira),
		"source type to match against")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum issues to scan")
	cmd.Flags().Float64Var(&threshold, "threshold", 0,
		"minimum similarity for this pass (0 uses the configured default)")
	cmd.Flags().BoolVar(&auto, "auto", false,
		"create links for high-scoring matches")
	return cmd
}
