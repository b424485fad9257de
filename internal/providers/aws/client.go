// Package aws provides AWS Cost Explorer integration
package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/lvonguyen/cloudspy/internal/providers"
)

// Cost Explorer is served from us-east-1 regardless of where resources run.
const DefaultRegion = "us-east-1"

// DefaultRoleSessionName is used when assuming a caller-supplied role.
const DefaultRoleSessionName = "CloudSpyCostSession"

// Credentials are supplied per request and never stored.
type Credentials struct {
	RoleARN      string `json:"role_arn"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	SessionToken string `json:"session_token"`
}

// Provider implements providers.Credentials.
func (c Credentials) Provider() string { return providers.AWS }

// Present reports whether a role ARN or an access key was supplied.
func (c Credentials) Present() bool {
	return c.RoleARN != "" || c.AccessKey != ""
}

// Options tune client construction.
type Options struct {
	Region          string
	RoleSessionName string
	Logger          *zap.Logger
}

// costExplorerAPI is the subset of the Cost Explorer client we call.
type costExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
	GetDimensionValues(ctx context.Context, params *costexplorer.GetDimensionValuesInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetDimensionValuesOutput, error)
	GetCostForecast(ctx context.Context, params *costexplorer.GetCostForecastInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostForecastOutput, error)
}

// CostProvider implements providers.CostProvider for AWS
type CostProvider struct {
	client costExplorerAPI
	logger *zap.Logger
	now    func() time.Time
}

// NewCostProvider creates a Cost Explorer client from request credentials.
// A role ARN is assumed through STS; static keys are used directly; with
// neither, the SDK default credential chain applies.
func NewCostProvider(ctx context.Context, creds Credentials, opts Options) (*CostProvider, error) {
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if creds.AccessKey != "" && creds.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, creds.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// If role ARN specified, assume role
	if creds.RoleARN != "" {
		sessionName := opts.RoleSessionName
		if sessionName == "" {
			sessionName = DefaultRoleSessionName
		}
		stsClient := sts.NewFromConfig(awsCfg)
		assumed := stscreds.NewAssumeRoleProvider(stsClient, creds.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = sessionName
		})
		awsCfg.Credentials = aws.NewCredentialsCache(assumed)
	}

	return newCostProvider(costexplorer.NewFromConfig(awsCfg), opts.Logger), nil
}

func newCostProvider(client costExplorerAPI, logger *zap.Logger) *CostProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostProvider{
		client: client,
		logger: logger.With(zap.String("provider", providers.AWS)),
		now:    time.Now,
	}
}

// Name returns the provider name
func (p *CostProvider) Name() string {
	return providers.AWS
}
