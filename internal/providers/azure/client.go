// Package azure provides Azure Cost Management integration
package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"go.uber.org/zap"

	"github.com/lvonguyen/cloudspy/internal/providers"
)

// Credentials are supplied per request and never stored.
type Credentials struct {
	TenantID       string `json:"tenant_id"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	SubscriptionID string `json:"subscription_id"`
}

// Provider implements providers.Credentials.
func (c Credentials) Provider() string { return providers.Azure }

// Present reports whether a subscription was supplied.
func (c Credentials) Present() bool {
	return c.SubscriptionID != ""
}

func (c Credentials) hasServicePrincipal() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

type queryAPI interface {
	Usage(ctx context.Context, scope string, parameters armcostmanagement.QueryDefinition, options *armcostmanagement.QueryClientUsageOptions) (armcostmanagement.QueryClientUsageResponse, error)
}

type resourceGroupsAPI interface {
	NewListPager(options *armresources.ResourceGroupsClientListOptions) *runtime.Pager[armresources.ResourceGroupsClientListResponse]
}

type subscriptionsAPI interface {
	NewListPager(options *armsubscriptions.ClientListOptions) *runtime.Pager[armsubscriptions.ClientListResponse]
}

// CostProvider implements providers.CostProvider for Azure
type CostProvider struct {
	subscriptionID string
	query          queryAPI
	resourceGroups resourceGroupsAPI // nil without a subscription
	subscriptions  subscriptionsAPI
	logger         *zap.Logger
}

// NewCostProvider creates the Azure clients for one request. A full service
// principal yields a client-secret credential; anything less falls back to
// DefaultAzureCredential.
func NewCostProvider(ctx context.Context, creds Credentials, logger *zap.Logger) (*CostProvider, error) {
	cred, err := newCredential(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	query, err := armcostmanagement.NewQueryClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost management client: %w", err)
	}

	subs, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %w", err)
	}

	p := newCostProvider(creds.SubscriptionID, query, nil, subs, logger)
	if creds.SubscriptionID != "" {
		groups, err := armresources.NewResourceGroupsClient(creds.SubscriptionID, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource groups client: %w", err)
		}
		p.resourceGroups = groups
	}
	return p, nil
}

func newCredential(creds Credentials) (azcore.TokenCredential, error) {
	if creds.hasServicePrincipal() {
		return azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	}
	return azidentity.NewDefaultAzureCredential(nil)
}

func newCostProvider(subscriptionID string, query queryAPI, groups resourceGroupsAPI, subs subscriptionsAPI, logger *zap.Logger) *CostProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostProvider{
		subscriptionID: subscriptionID,
		query:          query,
		resourceGroups: groups,
		subscriptions:  subs,
		logger:         logger.With(zap.String("provider", providers.Azure)),
	}
}

// Name returns the provider name
func (p *CostProvider) Name() string {
	return providers.Azure
}
