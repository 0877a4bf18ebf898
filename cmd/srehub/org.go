package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nhle/srehub/internal/credential"
	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
	"github.com/nhle/srehub/internal/source/registry"
	"github.com/nhle/srehub/internal/store"
)

func newOrgCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage configured organizations",
	}
	cmd.AddCommand(
		newOrgAddCmd(),
		newOrgListCmd(),
		newOrgTestCmd(),
		newOrgRemoveCmd(),
	)
	return cmd
}

func newOrgAddCmd() *cobra.Command {
	var (
		sourceType   string
		slug         string
		baseURL      string
		username     string
		token        string
		useKeyring   bool
		intervalSec  int
		settingPairs []string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			st := model.SourceType(sourceType)
			switch st {
			case model.SourceTypeSentry, model.SourceTypeJira,
				model.SourceTypeSonar, model.SourceTypeAzure:
			default:
				return fmt.Errorf("unknown source type %q", sourceType)
			}

			settings := make(map[string]string)
			for _, pair := range settingPairs {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("setting %q is not key=value", pair)
				}
				settings[k] = v
			}

			apiToken := token
			if useKeyring && token != "" {
				key := fmt.Sprintf("%s-%s-token", sourceType, slugOrName(slug, args[0]))
				if err := credential.Set(key, token); err != nil {
					return err
				}
				apiToken = "keyring:" + key
			}

			interval := time.Duration(intervalSec) * time.Second
			if intervalSec <= 0 {
				interval = time.Duration(a.cfg.Sync.DefaultIntervalSec) * time.Second
			}

			org := &model.Organization{
				ID:           uuid.New().String(),
				SourceType:   st,
				Name:         args[0],
				Slug:         slug,
				BaseURL:      baseURL,
				Username:     username,
				APIToken:     apiToken,
				Settings:     settings,
				SyncEnabled:  true,
				SyncInterval: interval,
			}
			if err := a.store.UpsertOrganization(cmd.Context(), org); err != nil {
				return err
			}

			fmt.Printf("added %s organization %s (%s)\n", st, org.Name, org.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceType, "type", "", "source type: sentry, jira, sonarcloud, azure")
	cmd.Flags().StringVar(&slug, "slug", "", "remote account identifier (org slug, subscription id)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API root (empty for the hosted default)")
	cmd.Flags().StringVar(&username, "username", "", "identity paired with the token (Jira email)")
	cmd.Flags().StringVar(&token, "token", "", "API token or secret")
	cmd.Flags().BoolVar(&useKeyring, "keyring", false, "store the token in the system keyring")
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "sync interval in seconds")
	cmd.Flags().StringArrayVar(&settingPairs, "setting", nil, "integration setting key=value (repeatable)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func slugOrName(slug, name string) string {
	if slug != "" {
		return slug
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

func newOrgListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			orgs, err := a.store.ListOrganizations(cmd.Context(), store.OrganizationFilter{})
			if err != nil {
				return err
			}
			if len(orgs) == 0 {
				fmt.Println("no organizations configured")
				return nil
			}

			for _, org := range orgs {
				fmt.Printf("%s  %-10s  %-25s  sync=%v  %s\n",
					org.ID, org.SourceType, org.Name,
					org.SyncEnabled, colorConnection(org.ConnectionStatus))
				if org.LastSyncAt != nil {
					fmt.Printf("    last sync %s\n",
						org.LastSyncAt.Local().Format(time.RFC822))
				}
				if org.ConnectionError != "" {
					fmt.Printf("    %s\n", color.RedString(org.ConnectionError))
				}
			}
			return nil
		},
	}
}

func colorConnection(status string) string {
	switch status {
	case model.ConnectionConnected:
		return color.GreenString(status)
	case model.ConnectionFailed, model.ConnectionUnauthorized:
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}

func newOrgTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <org-id>",
		Short: "Probe an organization's connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			org, err := a.store.GetOrganization(ctx, args[0])
			if err != nil {
				return err
			}

			adapter, err := registry.ForOrganization(org)
			if err != nil {
				return err
			}

			msg, probeErr := adapter.ValidateConnection(ctx)
			if probeErr != nil {
				recordProbe(ctx, a.store, org.ID, probeErr)
				color.Red("connection failed: %v", probeErr)
				return nil
			}
			recordProbe(ctx, a.store, org.ID, nil)
			color.Green("ok: %s", msg)
			return nil
		},
	}
}

func recordProbe(ctx context.Context, s *store.SQLiteStore, orgID string, probeErr error) {
	status := model.ConnectionConnected
	msg := ""
	if probeErr != nil {
		status = model.ConnectionFailed
		if source.IsAuthError(probeErr) {
			status = model.ConnectionUnauthorized
		}
		msg = probeErr.Error()
	}
	_ = s.UpdateOrganizationSyncState(ctx, orgID, nil, status, msg)
}

func newOrgRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <org-id>",
		Short: "Remove an organization and its synced data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.DeleteOrganization(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("removed", args[0])
			return nil
		},
	}
}
