// Package gcp provides GCP Cloud Billing integration
package gcp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	billing "cloud.google.com/go/billing/apiv1"
	"cloud.google.com/go/billing/apiv1/billingpb"
	budgets "cloud.google.com/go/billing/budgets/apiv1"
	"cloud.google.com/go/billing/budgets/apiv1/budgetspb"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/lvonguyen/cloudspy/internal/providers"
)

// Scopes requested for service-account credentials.
var Scopes = []string{
	"https://www.googleapis.com/auth/cloud-billing.readonly",
	"https://www.googleapis.com/auth/cloud-platform.read-only",
}

// Credentials are supplied per request and never stored.
type Credentials struct {
	ProjectID         string `json:"project_id"`
	ServiceAccountKey string `json:"service_account_key"`
}

// Provider implements providers.Credentials.
func (c Credentials) Provider() string { return providers.GCP }

// Present reports whether a project was supplied.
func (c Credentials) Present() bool {
	return c.ProjectID != ""
}

// ClientOptions converts the credentials into Google API client options.
// Without a key, Application Default Credentials apply.
func (c Credentials) ClientOptions() ([]option.ClientOption, error) {
	opts := []option.ClientOption{option.WithScopes(Scopes...)}
	if c.ServiceAccountKey == "" {
		return opts, nil
	}
	if !json.Valid([]byte(c.ServiceAccountKey)) {
		return nil, providers.Invalid(providers.GCP, "Invalid service account key JSON")
	}
	return append(opts, option.WithCredentialsJSON([]byte(c.ServiceAccountKey))), nil
}

// BillingAccount is a reshaped billing account listing entry.
type BillingAccount struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Open        bool   `json:"open"`
}

// Project is a reshaped project listing entry.
type Project struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Budget is a reshaped budget listing entry.
type Budget struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

type billingAPI interface {
	ListBillingAccounts(ctx context.Context) ([]BillingAccount, error)
	ListBudgets(ctx context.Context, billingAccount string) ([]Budget, error)
}

type projectsAPI interface {
	ListProjects(ctx context.Context) ([]Project, error)
}

// CostProvider implements providers.CostProvider for GCP
type CostProvider struct {
	projectID string
	billing   billingAPI
	projects  projectsAPI
	logger    *zap.Logger
}

// NewCostProvider prepares GCP access for one request. SDK clients are
// opened per call and closed before the call returns.
func NewCostProvider(ctx context.Context, creds Credentials, logger *zap.Logger) (*CostProvider, error) {
	opts, err := creds.ClientOptions()
	if err != nil {
		return nil, err
	}
	api := &sdkClients{opts: opts}
	return newCostProvider(creds.ProjectID, api, api, logger), nil
}

func newCostProvider(projectID string, b billingAPI, p projectsAPI, logger *zap.Logger) *CostProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostProvider{
		projectID: projectID,
		billing:   b,
		projects:  p,
		logger:    logger.With(zap.String("provider", providers.GCP)),
	}
}

// Name returns the provider name
func (p *CostProvider) Name() string {
	return providers.GCP
}

// sdkClients backs billingAPI and projectsAPI with the Google SDKs.
type sdkClients struct {
	opts []option.ClientOption
}

func (s *sdkClients) ListBillingAccounts(ctx context.Context) ([]BillingAccount, error) {
	client, err := billing.NewCloudBillingClient(ctx, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing client: %w", err)
	}
	defer client.Close()

	accounts := make([]BillingAccount, 0)
	it := client.ListBillingAccounts(ctx, &billingpb.ListBillingAccountsRequest{})
	for {
		account, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, BillingAccount{
			Name:        account.GetName(),
			DisplayName: account.GetDisplayName(),
			Open:        account.GetOpen(),
		})
	}
	return accounts, nil
}

func (s *sdkClients) ListBudgets(ctx context.Context, billingAccount string) ([]Budget, error) {
	client, err := budgets.NewBudgetClient(ctx, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create budget client: %w", err)
	}
	defer client.Close()

	parent := billingAccount
	if !strings.HasPrefix(parent, "billingAccounts/") {
		parent = "billingAccounts/" + parent
	}

	out := make([]Budget, 0)
	it := client.ListBudgets(ctx, &budgetspb.ListBudgetsRequest{Parent: parent})
	for {
		budget, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		amount := decimal.Zero
		currency := ""
		if m := budget.GetAmount().GetSpecifiedAmount(); m != nil {
			amount = decimal.New(m.GetUnits(), 0).Add(decimal.New(int64(m.GetNanos()), -9))
			currency = m.GetCurrencyCode()
		}

		out = append(out, Budget{
			Name:        budget.GetName(),
			DisplayName: budget.GetDisplayName(),
			Amount:      amount,
			Currency:    currency,
		})
	}
	return out, nil
}

func (s *sdkClients) ListProjects(ctx context.Context) ([]Project, error) {
	svc, err := cloudresourcemanager.NewService(ctx, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource manager client: %w", err)
	}

	projects := make([]Project, 0)
	err = svc.Projects.List().Pages(ctx, func(resp *cloudresourcemanager.ListProjectsResponse) error {
		for _, pr := range resp.Projects {
			if pr.LifecycleState != "ACTIVE" {
				continue
			}
			name := pr.Name
			if name == "" {
				name = pr.ProjectId
			}
			projects = append(projects, Project{
				ID:     pr.ProjectId,
				Name:   name,
				Number: strconv.FormatInt(pr.ProjectNumber, 10),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}
