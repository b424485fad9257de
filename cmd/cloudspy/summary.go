package main

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lvonguyen/cloudspy/internal/aggregator"
	"github.com/lvonguyen/cloudspy/internal/anomaly"
	"github.com/lvonguyen/cloudspy/internal/api"
	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
	"github.com/lvonguyen/cloudspy/internal/providers/aws"
	"github.com/lvonguyen/cloudspy/internal/providers/azure"
	"github.com/lvonguyen/cloudspy/internal/providers/gcp"
	"github.com/lvonguyen/cloudspy/internal/reporter"
)

const summaryWindowDays = 30

type summaryOptions struct {
	start     string
	end       string
	format    string
	anomalies bool
}

func newSummaryCmd(a *app) *cobra.Command {
	opts := summaryOptions{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a cost summary for the providers configured in the environment",
		Long: `Print a cost summary across every provider whose credentials are set:
  AWS_ROLE_ARN or AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY[/AWS_SESSION_TOKEN]
  AZURE_SUBSCRIPTION_ID with AZURE_TENANT_ID/AZURE_CLIENT_ID/AZURE_CLIENT_SECRET
  GCP_PROJECT_ID with an optional GCP_SERVICE_ACCOUNT_KEY`,
		RunE: func(cmd *cobra.Command, args []string) error {
			factory := api.NewFactory(a.cfg.AWS, a.logger)
			return runSummary(cmd.Context(), a, factory, envCredentials(os.Getenv), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.start, "start", "", "Start date (YYYY-MM-DD), defaults to 30 days ago")
	cmd.Flags().StringVar(&opts.end, "end", "", "End date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVarP(&opts.format, "format", "f", reporter.FormatText, "Output format: json, csv, html, text")
	cmd.Flags().BoolVar(&opts.anomalies, "anomalies", false, "Include detected anomalies")
	return cmd
}

// envCredentials reads one credential set per provider from the environment.
func envCredentials(getenv func(string) string) []providers.Credentials {
	return []providers.Credentials{
		aws.Credentials{
			RoleARN:      getenv("AWS_ROLE_ARN"),
			AccessKey:    getenv("AWS_ACCESS_KEY_ID"),
			SecretKey:    getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken: getenv("AWS_SESSION_TOKEN"),
		},
		azure.Credentials{
			TenantID:       getenv("AZURE_TENANT_ID"),
			ClientID:       getenv("AZURE_CLIENT_ID"),
			ClientSecret:   getenv("AZURE_CLIENT_SECRET"),
			SubscriptionID: getenv("AZURE_SUBSCRIPTION_ID"),
		},
		gcp.Credentials{
			ProjectID:         getenv("GCP_PROJECT_ID"),
			ServiceAccountKey: getenv("GCP_SERVICE_ACCOUNT_KEY"),
		},
	}
}

func runSummary(ctx context.Context, a *app, factory api.Factory, creds []providers.Credentials, opts summaryOptions, w io.Writer) error {
	period, err := summaryPeriod(opts.start, opts.end, time.Now())
	if err != nil {
		return err
	}

	var provs []providers.CostProvider
	for _, c := range creds {
		if !c.Present() {
			continue
		}
		p, err := factory.CostProvider(ctx, c)
		if err != nil {
			a.logger.Warn("Failed to initialize provider", zap.String("provider", c.Provider()), zap.Error(err))
			continue
		}
		provs = append(provs, p)
	}
	if len(provs) == 0 {
		return errors.New("no cost providers configured")
	}

	agg := aggregator.New(a.cfg.Providers.CallTimeout, a.logger)
	data := reporter.ReportData{
		Summary:     agg.Summarize(ctx, period, provs),
		GeneratedAt: time.Now().UTC(),
	}
	if opts.anomalies {
		d := anomaly.NewDetector(anomaly.DetectorConfig{
			Sensitivity: anomaly.Sensitivity(a.cfg.Anomaly.Sensitivity),
			RecentDays:  a.cfg.Anomaly.RecentDays,
			MinSpend:    *a.cfg.Anomaly.MinSpend,
		})
		data.Anomalies = agg.Anomalies(ctx, period, provs, d)
	}

	a.logger.Debug("Rendering summary",
		zap.String("period", period.String()),
		zap.Int("providers", len(provs)),
	)
	return reporter.Render(w, opts.format, data)
}

// summaryPeriod defaults each bound independently, the same way the
// dashboard routes do.
func summaryPeriod(start, end string, now time.Time) (normalizer.Period, error) {
	def := normalizer.LastDays(now, summaryWindowDays)
	if start == "" {
		start = normalizer.FormatDate(def.Start)
	}
	if end == "" {
		end = normalizer.FormatDate(def.End)
	}
	return normalizer.ParsePeriod(start, end)
}
