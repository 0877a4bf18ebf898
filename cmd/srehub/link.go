package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nhle/srehub/internal/linker"
	"github.com/nhle/srehub/internal/model"
)

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Correlate issues across systems",
	}
	cmd.AddCommand(
		newLinkScanCmd(),
		newLinkPreviewCmd(),
		newLinkIssueCmd(),
		newLinkCreateTicketCmd(),
		newLinkListCmd(),
	)
	return cmd
}

func newLinkScanCmd() *cobra.Command {
	var (
		limit    int
		offset   int
		rescan   bool
	)

	cmd := &cobra.Command{
		Use:   "scan <org-id>",
		Short: "Scan an organization's issues for tracker references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			lk := linker.New(a.store, a.log)
			summary, err := lk.ScanAndLink(cmd.Context(), args[0], limit, offset, !rescan)
			if err != nil {
				return err
			}

			fmt.Printf("scanned %d issues (%d skipped): %s created, %d already linked\n",
				summary.IssuesScanned, summary.IssuesSkipped,
				color.GreenString("%d links", summary.LinksCreated),
				summary.LinksExisting)
			for _, e := range summary.Errors {
				fmt.Printf("    %s\n", color.RedString(e))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum issues to scan")
	cmd.Flags().IntVar(&offset, "offset", 0, "issues to skip before scanning")
	cmd.Flags().BoolVar(&rescan, "rescan", false, "include issues that already have links")
	return cmd
}

func newLinkPreviewCmd() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "preview <org-id>",
		Short: "Show the references a scan would act on, without writing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			lk := linker.New(a.store, a.log)
			entries, err := lk.Preview(cmd.Context(), args[0], limit, offset)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no tracker references found")
				return nil
			}

			for _, entry := range entries {
				fmt.Printf("%s  %s\n", entry.IssueID, entry.IssueTitle)
				for _, ref := range entry.References {
					if ref.BaseURL != "" {
						fmt.Printf("    -> %s (%s)\n", ref.Key, ref.BaseURL)
					} else {
						fmt.Printf("    -> %s\n", ref.Key)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum issues to inspect")
	cmd.Flags().IntVar(&offset, "offset", 0, "issues to skip before inspecting")
	return cmd
}

func newLinkIssueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue <issue-id>",
		Short: "Link one issue from its live annotations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			lk := linker.New(a.store, a.log)
			result, err := lk.LinkIssue(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s: %d references, %d links created, %d existing\n",
				result.IssueTitle, len(result.References),
				result.LinksCreated, result.LinksExisting)
			for _, e := range result.Errors {
				fmt.Printf("    %s\n", color.RedString(e))
			}
			return nil
		},
	}
}

func newLinkCreateTicketCmd() *cobra.Command {
	var (
		orgID      string
		projectKey string
		issueType  string
	)

	cmd := &cobra.Command{
		Use:   "create-ticket <issue-id>",
		Short: "Create a tracker ticket from an issue and link them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			lk := linker.New(a.store, a.log)
			link, err := lk.CreateTicketFromIssue(
				cmd.Context(), args[0], orgID, projectKey, issueType)
			if err != nil {
				return err
			}

			color.Green("linked: %s <-> %s", link.SourceIssueTitle, link.TargetIssueTitle)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "tracker organization id")
	cmd.Flags().StringVar(&projectKey, "project", "", "tracker project key")
	cmd.Flags().StringVar(&issueType, "type", "Task", "ticket issue type")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newLinkListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <issue-id>",
		Short: "List the cross-links an issue participates in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			links, err := a.store.ListLinksForIssue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(links) == 0 {
				fmt.Println("no links")
				return nil
			}

			for _, link := range links {
				fmt.Printf("%s  [%s]  %s <-> %s\n",
					link.ID, linkTypeLabel(link.LinkType),
					link.SourceIssueTitle, link.TargetIssueTitle)
				for _, se := range link.SyncErrors {
					fmt.Printf("    %s %s: %s\n",
						se.Timestamp.Local().Format("2006-01-02 15:04"),
						se.Direction, color.RedString(se.Error))
				}
			}
			return nil
		},
	}
}

func linkTypeLabel(linkType string) string {
	switch linkType {
	case model.LinkTypeAuto:
		return color.CyanString(linkType)
	case model.LinkTypeImported:
		return color.BlueString(linkType)
	default:
		return linkType
	}
}
