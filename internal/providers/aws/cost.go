package aws

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/smithy-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lvonguyen/cloudspy/internal/normalizer"
	"github.com/lvonguyen/cloudspy/internal/providers"
)

const (
	metricUnblendedCost    = "UnblendedCost"
	metricNetUnblendedCost = "NetUnblendedCost"

	// Cost Explorer accepts at most two group-by definitions.
	maxGroupBy = 2
)

// TestConnection issues a one-day cost query to confirm the credentials
// can read Cost Explorer data.
func (p *CostProvider) TestConnection(ctx context.Context) providers.ConnectionResult {
	today := p.now().UTC().Truncate(24 * time.Hour)

	_, err := p.client.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod:  dateInterval(today.AddDate(0, 0, -1), today),
		Granularity: types.GranularityDaily,
		Metrics:     []string{metricUnblendedCost},
	})
	if err != nil {
		p.logger.Debug("Connection test failed", zap.Error(err))
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return providers.Failed("AWS API Error: " + apiErr.ErrorMessage())
		}
		return providers.Failed(err.Error())
	}
	return providers.Connected()
}

// GetCosts retrieves costs from AWS Cost Explorer. The query end date is
// inclusive.
func (p *CostProvider) GetCosts(ctx context.Context, q providers.CostQuery) ([]normalizer.CostMetric, error) {
	granularity, yearly := NormalizeGranularity(q.Granularity)
	dims := NormalizeGroupBy(q.GroupBy)

	groupBy := make([]types.GroupDefinition, 0, len(dims))
	for _, d := range dims {
		groupBy = append(groupBy, types.GroupDefinition{
			Type: types.GroupDefinitionTypeDimension,
			Key:  aws.String(d),
		})
	}

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod:  dateInterval(q.Start, q.End.AddDate(0, 0, 1)),
		Granularity: granularity,
		Metrics:     []string{metricUnblendedCost, metricNetUnblendedCost},
		GroupBy:     groupBy,
	}

	metrics := make([]normalizer.CostMetric, 0)

	// Handle pagination manually
	for {
		output, err := p.client.GetCostAndUsage(ctx, input)
		if err != nil {
			return nil, providers.Wrap(providers.AWS, "retrieve AWS costs", err)
		}

		metrics = append(metrics, parseResults(output.ResultsByTime)...)

		if output.NextPageToken == nil {
			break
		}
		input.NextPageToken = output.NextPageToken
	}

	if yearly {
		metrics = rollupYears(metrics)
	}

	p.logger.Debug("Costs retrieved",
		zap.String("granularity", string(granularity)),
		zap.Strings("group_by", dims),
		zap.Int("records", len(metrics)),
	)
	return metrics, nil
}

// GetServices lists the services that reported cost in the last 30 days.
func (p *CostProvider) GetServices(ctx context.Context) ([]string, error) {
	period := normalizer.LastDays(p.now(), 30)

	input := &costexplorer.GetDimensionValuesInput{
		Dimension:  types.DimensionService,
		TimePeriod: dateInterval(period.Start, period.End),
	}

	services := make([]string, 0)
	for {
		output, err := p.client.GetDimensionValues(ctx, input)
		if err != nil {
			return nil, providers.Wrap(providers.AWS, "retrieve AWS services", err)
		}
		for _, v := range output.DimensionValues {
			services = append(services, aws.ToString(v.Value))
		}
		if output.NextPageToken == nil {
			break
		}
		input.NextPageToken = output.NextPageToken
	}
	return services, nil
}

// GetForecast retrieves the forecast unblended cost total for [start, end).
func (p *CostProvider) GetForecast(ctx context.Context, start, end time.Time) (normalizer.CostMetric, error) {
	input := &costexplorer.GetCostForecastInput{
		TimePeriod:  dateInterval(start, end),
		Metric:      types.MetricUnblendedCost,
		Granularity: types.GranularityMonthly,
	}

	result, err := p.client.GetCostForecast(ctx, input)
	if err != nil {
		return normalizer.CostMetric{}, providers.Wrap(providers.AWS, "retrieve AWS forecast", err)
	}

	amount := decimal.Zero
	unit := ""
	if result.Total != nil {
		amount = normalizer.ParseAmount(aws.ToString(result.Total.Amount))
		unit = aws.ToString(result.Total.Unit)
	}
	return normalizer.NewCostMetric("Forecast", amount, unit, normalizer.FormatDate(start)), nil
}

// NormalizeGranularity maps a caller value onto a Cost Explorer
// granularity. YEARLY is not a Cost Explorer granularity; it is queried
// monthly and rolled up, which the second return value signals.
func NormalizeGranularity(g string) (types.Granularity, bool) {
	switch strings.ToUpper(strings.TrimSpace(g)) {
	case "DAILY":
		return types.GranularityDaily, false
	case "YEARLY":
		return types.GranularityMonthly, true
	default:
		return types.GranularityMonthly, false
	}
}

// NormalizeGroupBy upper-cases the requested dimensions and drops any that
// Cost Explorer does not know. Duplicates are removed and the result is
// capped at two; an empty result falls back to SERVICE.
func NormalizeGroupBy(dims []string) []string {
	known := make(map[string]bool)
	for _, d := range types.Dimension("").Values() {
		known[string(d)] = true
	}

	seen := make(map[string]bool)
	out := make([]string, 0, maxGroupBy)
	for _, d := range dims {
		d = strings.ToUpper(strings.TrimSpace(d))
		if !known[d] || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
		if len(out) == maxGroupBy {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, string(types.DimensionService))
	}
	return out
}

// parseResults converts AWS response to normalized records
func parseResults(results []types.ResultByTime) []normalizer.CostMetric {
	var metrics []normalizer.CostMetric

	for _, result := range results {
		var periodStart string
		if result.TimePeriod != nil {
			periodStart = aws.ToString(result.TimePeriod.Start)
		}

		for _, group := range result.Groups {
			service := "Unknown"
			if len(group.Keys) > 0 {
				service = strings.Join(group.Keys, " / ")
			}

			amount := decimal.Zero
			unit := ""
			if cost, ok := group.Metrics[metricUnblendedCost]; ok {
				amount = normalizer.ParseAmount(aws.ToString(cost.Amount))
				unit = aws.ToString(cost.Unit)
			}

			metrics = append(metrics, normalizer.NewCostMetric(service, amount, unit, periodStart))
		}
	}

	return metrics
}

// rollupYears folds monthly metrics into one metric per (year, service).
// Each bucket keeps the first period start seen for its year.
func rollupYears(monthly []normalizer.CostMetric) []normalizer.CostMetric {
	type bucketKey struct{ year, service string }

	index := make(map[bucketKey]int)
	out := make([]normalizer.CostMetric, 0)

	for _, m := range monthly {
		year := m.Date
		if len(year) >= 4 {
			year = year[:4]
		}
		k := bucketKey{year, m.Service}
		if i, ok := index[k]; ok {
			out[i].Amount = out[i].Amount.Add(m.Amount)
			continue
		}
		index[k] = len(out)
		out = append(out, m)
	}
	return out
}

func dateInterval(start, end time.Time) *types.DateInterval {
	return &types.DateInterval{
		Start: aws.String(normalizer.FormatDate(start)),
		End:   aws.String(normalizer.FormatDate(end)),
	}
}
