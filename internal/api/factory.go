package api

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/cloudspy/internal/config"
	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
	"github.com/lvonguyen/cloudspy/internal/providers/aws"
	"github.com/lvonguyen/cloudspy/internal/providers/azure"
	"github.com/lvonguyen/cloudspy/internal/providers/gcp"
)

// AWSClient is the AWS surface used by the routes.
type AWSClient interface {
	providers.CostProvider
	GetServices(ctx context.Context) ([]string, error)
	GetForecast(ctx context.Context, start, end time.Time) (normalizer.CostMetric, error)
}

// AzureClient is the Azure surface used by the routes.
type AzureClient interface {
	providers.CostProvider
	GetSubscriptions(ctx context.Context) ([]azure.Subscription, error)
}

// GCPClient is the GCP surface used by the routes.
type GCPClient interface {
	providers.CostProvider
	GetProjects(ctx context.Context) ([]gcp.Project, error)
	GetBillingAccounts(ctx context.Context) ([]gcp.BillingAccount, error)
	GetBudgets(ctx context.Context, billingAccount string) ([]gcp.Budget, error)
}

// Factory builds request-scoped provider clients from caller credentials.
type Factory struct {
	AWS   func(ctx context.Context, creds aws.Credentials) (AWSClient, error)
	Azure func(ctx context.Context, creds azure.Credentials) (AzureClient, error)
	GCP   func(ctx context.Context, creds gcp.Credentials) (GCPClient, error)
}

// NewFactory returns a Factory backed by the cloud SDKs.
func NewFactory(cfg config.AWSConfig, logger *zap.Logger) Factory {
	return Factory{
		AWS: func(ctx context.Context, creds aws.Credentials) (AWSClient, error) {
			p, err := aws.NewCostProvider(ctx, creds, aws.Options{
				Region:          cfg.Region,
				RoleSessionName: cfg.RoleSessionName,
				Logger:          logger,
			})
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		Azure: func(ctx context.Context, creds azure.Credentials) (AzureClient, error) {
			p, err := azure.NewCostProvider(ctx, creds, logger)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		GCP: func(ctx context.Context, creds gcp.Credentials) (GCPClient, error) {
			p, err := gcp.NewCostProvider(ctx, creds, logger)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

// CostProvider builds the provider matching the credential type.
func (f Factory) CostProvider(ctx context.Context, creds providers.Credentials) (providers.CostProvider, error) {
	var (
		p   providers.CostProvider
		err error
	)
	switch c := creds.(type) {
	case aws.Credentials:
		p, err = f.AWS(ctx, c)
	case azure.Credentials:
		p, err = f.Azure(ctx, c)
	case gcp.Credentials:
		p, err = f.GCP(ctx, c)
	default:
		return nil, providers.Invalid("", "unsupported provider")
	}
	if err != nil {
		return nil, clientError(creds.Provider(), err)
	}
	return p, nil
}

// clientError marks a client construction failure as internal unless it
// already carries a kind.
func clientError(provider string, err error) error {
	var pe *providers.Error
	if errors.As(err, &pe) {
		return err
	}
	return &providers.Error{
		Provider: provider,
		Op:       "create " + provider + " client",
		Kind:     providers.KindInternal,
		Err:      err,
	}
}

// unavailable stands in for a provider whose client could not be built so
// the aggregation reports the failure like any other.
type unavailable struct {
	name string
	err  error
}

func (u unavailable) Name() string { return u.name }

func (u unavailable) TestConnection(context.Context) providers.ConnectionResult {
	return providers.Failed(u.err.Error())
}

func (u unavailable) GetCosts(context.Context, providers.CostQuery) ([]normalizer.CostMetric, error) {
	return nil, u.err
}
