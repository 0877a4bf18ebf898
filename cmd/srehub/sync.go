package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	var (
		all   bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "sync [org-id]",
		Short: "Sync organizations from their sources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("pass an organization id or --all")
			}

			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			engine := syncer.New(a.store, a.cfg.Sync, a.log)
			ctx := cmd.Context()

			var summaries []syncer.Summary
			if all {
				summaries, err = engine.SyncAll(ctx, force)
				if err != nil {
					return err
				}
			} else {
				summary, err := engine.SyncOne(ctx, args[0], force)
				if err != nil {
					return err
				}
				summaries = []syncer.Summary{*summary}
			}

			for _, s := range summaries {
				printSummary(&s)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "sync every organization")
	cmd.Flags().BoolVar(&force, "force", false, "ignore sync intervals and disabled flags")
	cmd.AddCommand(newSyncHistoryCmd())
	return cmd
}

func printSummary(s *syncer.Summary) {
	if s.Skipped {
		fmt.Printf("%s %s: %s\n",
			color.YellowString("skip"), s.OrganizationName, s.SkipReason)
		return
	}

	label := color.GreenString(s.Status)
	switch s.Status {
	case model.SyncStatusFailed:
		label = color.RedString(s.Status)
	case model.SyncStatusPartial:
		label = color.YellowString(s.Status)
	}

	fmt.Printf("%s %s: %d projects, %d issues (%d new), %d events in %s\n",
		label, s.OrganizationName, s.ProjectsSynced,
		s.IssuesSynced, s.IssuesCreated, s.EventsSynced,
		s.Duration.Round(time.Millisecond))
	for _, e := range s.Errors {
		fmt.Printf("    %s\n", color.RedString(e))
	}
}

func newSyncHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <org-id>",
		Short: "Show recent sync attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			attempts, err := a.store.ListSyncAttempts(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				fmt.Println("no sync attempts recorded")
				return nil
			}

			for _, at := range attempts {
				fmt.Printf("%s  %-8s  %s  %d projects / %d issues / %d events",
					at.StartedAt.Local().Format(time.RFC822),
					at.Status, at.Duration.Round(time.Millisecond),
					at.ProjectsSynced, at.IssuesSynced, at.EventsSynced)
				if at.ErrorMessage != "" {
					fmt.Printf("  %s", color.RedString(at.ErrorMessage))
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum attempts to show")
	return cmd
}
