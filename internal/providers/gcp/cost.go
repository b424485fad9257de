package gcp

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/status"

	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
)

const errProjectRequired = "Project ID is required"

// TestConnection lists billing accounts; an empty listing means the
// credential cannot see any billing data.
func (p *CostProvider) TestConnection(ctx context.Context) providers.ConnectionResult {
	accounts, err := p.billing.ListBillingAccounts(ctx)
	if err != nil {
		p.logger.Debug("Connection test failed", zap.Error(err))
		if s, ok := status.FromError(err); ok {
			return providers.Failed("GCP API Error: " + s.Message())
		}
		return providers.Failed(err.Error())
	}
	if len(accounts) == 0 {
		return providers.Failed("No billing accounts found or insufficient permissions")
	}
	return providers.Connected()
}

// GetCosts validates the request but returns no data: GCP has no direct
// cost API and the BigQuery billing export is not wired up.
//
// TODO: query the billing export dataset once a dataset parameter exists.
func (p *CostProvider) GetCosts(ctx context.Context, q providers.CostQuery) ([]normalizer.CostMetric, error) {
	if p.projectID == "" {
		return nil, providers.Invalid(providers.GCP, errProjectRequired)
	}
	p.logger.Debug("GCP cost retrieval not wired; returning no records",
		zap.String("project_id", p.projectID),
		zap.String("start", normalizer.FormatDate(q.Start)),
		zap.String("end", normalizer.FormatDate(q.End)),
	)
	return []normalizer.CostMetric{}, nil
}

// GetProjects lists active projects.
func (p *CostProvider) GetProjects(ctx context.Context) ([]Project, error) {
	projects, err := p.projects.ListProjects(ctx)
	if err != nil {
		return nil, providers.Wrap(providers.GCP, "retrieve GCP projects", err)
	}
	return projects, nil
}

// GetBillingAccounts lists the billing accounts visible to the credential.
func (p *CostProvider) GetBillingAccounts(ctx context.Context) ([]BillingAccount, error) {
	accounts, err := p.billing.ListBillingAccounts(ctx)
	if err != nil {
		return nil, providers.Wrap(providers.GCP, "retrieve GCP billing accounts", err)
	}
	for i := range accounts {
		if accounts[i].DisplayName == "" {
			accounts[i].DisplayName = "Unknown"
		}
	}
	return accounts, nil
}

// GetBudgets lists the budgets configured on a billing account.
func (p *CostProvider) GetBudgets(ctx context.Context, billingAccount string) ([]Budget, error) {
	if billingAccount == "" {
		return nil, providers.Invalid(providers.GCP, "Billing account is required")
	}
	out, err := p.billing.ListBudgets(ctx, billingAccount)
	if err != nil {
		return nil, providers.Wrap(providers.GCP, "retrieve GCP budgets", err)
	}
	return out, nil
}
