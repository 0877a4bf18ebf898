// Package registry builds concrete source adapters from organization
// records. It is the only place that knows which integration package
// serves which source type; everything downstream works against the
// generic adapter contract.
package registry

import (
	"fmt"

	"github.com/nhle/srehub/internal/credential"
	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
	"github.com/nhle/srehub/internal/source/azure"
	"github.com/nhle/srehub/internal/source/jira"
	"github.com/nhle/srehub/internal/source/sentry"
	"github.com/nhle/srehub/internal/source/sonar"
)

// Factory builds an adapter for one organization. Credential
// references are resolved through the credential store at build time.
type Factory func(org *model.Organization) (source.Adapter, error)

// ForOrganization builds the adapter matching the organization's
// source type.
func ForOrganization(org *model.Organization) (source.Adapter, error) {
	token, err := credential.Resolve(org.APIToken)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials for %s: %w", org.Name, err)
	}

	switch org.SourceType {
	case model.SourceTypeSentry:
		return sentry.NewAdapter(org.BaseURL, token, org.Slug,
			org.Settings["query"]), nil

	case model.SourceTypeJira:
		return jira.NewAdapter(org.BaseURL, org.Username, token,
			org.Settings["jql_filter"]), nil

	case model.SourceTypeSonar:
		return sonar.NewAdapter(org.BaseURL, token, org.Slug), nil

	case model.SourceTypeAzure:
		secret, err := credential.Resolve(org.Settings["client_secret"])
		if err != nil {
			return nil, fmt.Errorf("resolving client secret for %s: %w", org.Name, err)
		}
		subscription := org.Settings["subscription_id"]
		if subscription == "" {
			subscription = org.Slug
		}
		return azure.NewAdapter(
			org.BaseURL,
			org.Settings["tenant_id"],
			org.Settings["client_id"],
			secret,
			subscription,
			org.Settings["resource_groups"],
		), nil

	default:
		return nil, fmt.Errorf("unsupported source type %q", org.SourceType)
	}
}
